// Package config builds the runtime configuration from tier defaults, an
// optional YAML policy file and VERDICT_ environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/verdict/internal/domain"
	"github.com/opensource-finance/verdict/internal/window"
	"gopkg.in/yaml.v3"
)

// Load starts from the tier defaults (VERDICT_TIER=pro selects ProConfig),
// overlays the YAML file at path when path is non-empty, then applies
// environment overrides. Keys missing from the file keep their defaults.
func Load(path string) (*domain.Config, error) {
	cfg := domain.DefaultConfig()
	if strings.EqualFold(os.Getenv("VERDICT_TIER"), string(domain.TierPro)) {
		cfg = domain.ProConfig()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config load: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config unmarshal: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func Validate(cfg *domain.Config) error {
	p := cfg.Policy
	for name, v := range map[string]int64{
		"approvalThreshold":    p.ApprovalThreshold,
		"hardLimit":            p.HardLimit,
		"unapprovedWarnAbove":  p.UnapprovedWarnAbove,
		"unapprovedBlockAbove": p.UnapprovedBlockAbove,
	} {
		if v < 0 {
			return fmt.Errorf("config: policy.%s must not be negative", name)
		}
	}
	if p.ApprovalThreshold > 0 && p.HardLimit > 0 && p.ApprovalThreshold > p.HardLimit {
		return fmt.Errorf("config: policy.approvalThreshold exceeds policy.hardLimit")
	}
	if p.UnapprovedWarnAbove > 0 && p.UnapprovedBlockAbove > 0 && p.UnapprovedWarnAbove > p.UnapprovedBlockAbove {
		return fmt.Errorf("config: policy.unapprovedWarnAbove exceeds policy.unapprovedBlockAbove")
	}

	for _, w := range p.PolicyWindows {
		if w.ID == "" {
			return fmt.Errorf("config: policy window without id")
		}
		if !w.Valid() {
			return fmt.Errorf("config: policy window %s has start >= end", w.ID)
		}
	}
	if report := window.Check(p.PolicyWindows); report.Overlaps {
		pair := report.ConflictingPairs[0]
		return fmt.Errorf("config: %w: %s overlaps %s", window.ErrWindowConflict, pair.A, pair.B)
	}

	if cfg.Risk.Trust.MaxTrusted < 0 {
		return fmt.Errorf("config: risk.trust.maxTrusted must not be negative")
	}
	return nil
}

// applyEnvOverrides lets deployments override infrastructure settings
// without editing the policy file.
func applyEnvOverrides(c *domain.Config) error {
	if v := os.Getenv("VERDICT_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("VERDICT_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: VERDICT_PORT: %w", err)
		}
		c.Server.Port = n
	}
	if v := os.Getenv("VERDICT_ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.Server.AllowedOrigins = append(c.Server.AllowedOrigins, o)
			}
		}
	}

	if v := os.Getenv("VERDICT_DB_DRIVER"); v != "" {
		c.Repository.Driver = v
	}
	if v := os.Getenv("VERDICT_SQLITE_PATH"); v != "" {
		c.Repository.SQLitePath = v
	}
	if v := os.Getenv("VERDICT_POSTGRES_HOST"); v != "" {
		c.Repository.PostgresHost = v
	}
	if v := os.Getenv("VERDICT_POSTGRES_USER"); v != "" {
		c.Repository.PostgresUser = v
	}
	if v := os.Getenv("VERDICT_POSTGRES_PASSWORD"); v != "" {
		c.Repository.PostgresPassword = v
	}
	if v := os.Getenv("VERDICT_POSTGRES_DB"); v != "" {
		c.Repository.PostgresDB = v
	}

	if v := os.Getenv("VERDICT_REDIS_ADDR"); v != "" {
		c.Cache.RedisAddr = v
	}
	if v := os.Getenv("VERDICT_REDIS_PASSWORD"); v != "" {
		c.Cache.RedisPassword = v
	}

	if v := os.Getenv("VERDICT_EVENTBUS"); v != "" {
		c.EventBus.Type = v
	}
	if v := os.Getenv("VERDICT_NATS_URL"); v != "" {
		c.EventBus.NATSUrl = v
	}
	if v := os.Getenv("VERDICT_NATS_TOKEN"); v != "" {
		c.EventBus.NATSToken = v
	}

	if v := os.Getenv("VERDICT_GEOIP_DB"); v != "" {
		c.Risk.GeoIPPath = v
	}
	if v := os.Getenv("VERDICT_HOLD_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: VERDICT_HOLD_TTL: %w", err)
		}
		c.Hold.TTL = d
	}
	if v := os.Getenv("VERDICT_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	return nil
}
