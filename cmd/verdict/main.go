// Verdict - policy decisions that explain themselves.
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opensource-finance/verdict/internal/api"
	"github.com/opensource-finance/verdict/internal/approval"
	"github.com/opensource-finance/verdict/internal/audit"
	"github.com/opensource-finance/verdict/internal/bus"
	"github.com/opensource-finance/verdict/internal/cache"
	"github.com/opensource-finance/verdict/internal/config"
	"github.com/opensource-finance/verdict/internal/decision"
	"github.com/opensource-finance/verdict/internal/domain"
	"github.com/opensource-finance/verdict/internal/hold"
	"github.com/opensource-finance/verdict/internal/repository"
	"github.com/opensource-finance/verdict/internal/risk"
	"github.com/opensource-finance/verdict/internal/rules"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg, err := config.Load(os.Getenv("VERDICT_POLICY_FILE"))
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	slog.Info("starting verdict",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"policy_windows", len(cfg.Policy.PolicyWindows),
		"expression_rules", len(cfg.Policy.ExpressionRules),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	if busImpl != nil {
		defer busImpl.Close()
	}
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Audit records flow through the bus when there is one.
	recorder := audit.NewRecorder(busImpl, repo, logger)
	var sink *audit.Sink
	if busImpl != nil {
		sink = audit.NewSink(busImpl, repo, logger)
		if err := sink.Start(audit.Config{TenantIDs: splitList(os.Getenv("VERDICT_TENANTS"))}); err != nil {
			slog.Error("failed to start audit sink", "error", err)
			os.Exit(1)
		}
	}

	engine, err := rules.NewEngine(cfg.Policy, rules.WithLogger(logger))
	if err != nil {
		slog.Error("failed to initialize policy engine", "error", err)
		os.Exit(1)
	}
	slog.Info("policy engine initialized", "rules_count", engine.RulesCount())

	processor := decision.NewProcessor(engine, recorder, logger)

	riskOpts := []risk.Option{risk.WithRecorder(recorder), risk.WithLogger(logger)}
	if cfg.Risk.GeoIPPath != "" {
		locator, err := risk.OpenGeoIP(cfg.Risk.GeoIPPath)
		if err != nil {
			slog.Warn("geoip enrichment disabled", "path", cfg.Risk.GeoIPPath, "error", err)
		} else {
			defer locator.Close()
			riskOpts = append(riskOpts, risk.WithLocator(locator))
			slog.Info("geoip enrichment enabled", "path", cfg.Risk.GeoIPPath)
		}
	}
	riskSvc := risk.NewService(repo, cfg.Risk, riskOpts...)

	holds := hold.NewManager(cacheImpl, cfg.Hold.TTL, logger)
	approvals := approval.NewService(repo, busImpl, recorder, logger)

	srv := api.NewServer(cfg.Server, api.Dependencies{
		Repo:      repo,
		Cache:     cacheImpl,
		Processor: processor,
		Risk:      riskSvc,
		Holds:     holds,
		Approvals: approvals,
		Audit:     recorder,
		Version:   Version,
	})

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("verdict is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Stop consuming before the bus and repository close.
	if sink != nil {
		if err := sink.Stop(); err != nil {
			slog.Error("failed to stop audit sink", "error", err)
		}
		stats := sink.GetStats()
		slog.Info("audit sink stopped", "appended", stats.Appended, "failed", stats.Failed)
	}

	slog.Info("verdict shutdown complete")
}

// newLogger builds the JSON handler. VERDICT_DEBUG=true forces debug level.
func newLogger(cfg domain.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if os.Getenv("VERDICT_DEBUG") == "true" {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  VERDICT  policy decisions with reasons")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /evaluate                - Evaluate a policy context")
	fmt.Println("    POST /windows/overlaps        - Report overlapping time windows")
	fmt.Println("    POST /windows/validate        - Validate a candidate window")
	fmt.Println("    POST /risk/assess             - Assess a login attempt")
	fmt.Println("    POST /risk/step-up/complete   - Complete a pending step-up")
	fmt.Println("    PUT  /risk/actors/{a}/devices/{d} - Trust a device manually")
	fmt.Println("    POST /holds                   - Place a hold on a resource")
	fmt.Println("    POST /holds/{id}/finalize     - Consume a hold")
	fmt.Println("    POST /approvals               - Open an approval request")
	fmt.Println("    POST /approvals/{id}/decide   - Approve, reject or expire")
	fmt.Println("    GET  /audit                   - Read the audit trail")
	fmt.Println("    GET  /health                  - Health check")
	fmt.Println()
}
