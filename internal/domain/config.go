package domain

import "time"

// Config holds the complete Verdict configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server" yaml:"server"`

	// Tier determines feature availability
	Tier Tier `json:"tier" yaml:"tier"`

	// Decision settings
	Policy PolicyConfig `json:"policy" yaml:"policy"`
	Risk   RiskConfig   `json:"risk" yaml:"risk"`
	Hold   HoldConfig   `json:"hold" yaml:"hold"`

	// Component configurations
	Repository RepositoryConfig `json:"repository" yaml:"repository"`
	Cache      CacheConfig      `json:"cache" yaml:"cache"`
	EventBus   EventBusConfig   `json:"eventBus" yaml:"eventBus"`

	// Observability
	Logging LoggingConfig `json:"logging" yaml:"logging"`
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`
}

// PolicyConfig is the fixed rule configuration a decision is evaluated against.
// Thresholds are amounts in the same currency as PolicyContext.Total.
type PolicyConfig struct {
	// Total above ApprovalThreshold needs approval; above HardLimit it is blocked.
	ApprovalThreshold int64 `json:"approvalThreshold" yaml:"approvalThreshold"`
	HardLimit         int64 `json:"hardLimit" yaml:"hardLimit"`

	// Unapproved recipients warn above UnapprovedWarnAbove and block above UnapprovedBlockAbove.
	UnapprovedWarnAbove  int64 `json:"unapprovedWarnAbove" yaml:"unapprovedWarnAbove"`
	UnapprovedBlockAbove int64 `json:"unapprovedBlockAbove" yaml:"unapprovedBlockAbove"`

	// PolicyWindows are the hours a selected slot must fall within.
	// Empty means any selected slot is within policy hours.
	PolicyWindows []TimeWindow `json:"policyWindows,omitempty" yaml:"policyWindows"`

	// CategoryRoutes maps a category to the flow that should handle it instead.
	CategoryRoutes map[string]string `json:"categoryRoutes,omitempty" yaml:"categoryRoutes"`

	// ExpressionRules extend the built-in checklist with CEL predicates.
	ExpressionRules []ExpressionRuleConfig `json:"expressionRules,omitempty" yaml:"expressionRules"`

	// MaxAlternatives caps the alternative list.
	MaxAlternatives int `json:"maxAlternatives" yaml:"maxAlternatives"`
}

// ExpressionRuleConfig is a boolean CEL predicate that emits a Reason when true.
type ExpressionRuleConfig struct {
	ID         string     `json:"id" yaml:"id"`
	Code       ReasonCode `json:"code" yaml:"code"`
	Severity   Severity   `json:"severity" yaml:"severity"`
	Expression string     `json:"expression" yaml:"expression"`
	Title      string     `json:"title" yaml:"title"`
	Detail     string     `json:"detail" yaml:"detail"`
}

// RiskConfig holds login risk and step-up settings.
type RiskConfig struct {
	// TravelThreshold is the minimum plausible interval between logins in different countries.
	TravelThreshold time.Duration `json:"travelThreshold" yaml:"travelThreshold"`

	StepUp StepUpPolicy `json:"stepUp" yaml:"stepUp"`
	Trust  TrustPolicy  `json:"trust" yaml:"trust"`

	// GeoIPPath is an optional MaxMind city database for IP enrichment.
	GeoIPPath string `json:"geoipPath,omitempty" yaml:"geoipPath"`
}

// HoldConfig holds slot reservation settings.
type HoldConfig struct {
	TTL time.Duration `json:"ttl" yaml:"ttl"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host" yaml:"host"`
	Port         int    `json:"port" yaml:"port"`
	ReadTimeout  int    `json:"readTimeout" yaml:"readTimeout"`   // seconds
	WriteTimeout int    `json:"writeTimeout" yaml:"writeTimeout"` // seconds
	// AllowedOrigins lists browser origins allowed to call the API with
	// credentials. Empty allows any origin without credentials.
	AllowedOrigins []string `json:"allowedOrigins" yaml:"allowedOrigins"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled" yaml:"enabled"`
	ServiceName  string `json:"serviceName" yaml:"serviceName"`
	ExporterType string `json:"exporterType" yaml:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint" yaml:"endpoint"`
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// Default decision settings.
const (
	DefaultApprovalThreshold    int64 = 300_000
	DefaultHardLimit            int64 = 1_000_000
	DefaultUnapprovedWarnAbove  int64 = 50_000
	DefaultUnapprovedBlockAbove int64 = 200_000
	DefaultMaxAlternatives            = 8
	DefaultTravelThreshold            = 2 * time.Hour
	DefaultMaxTrustedDevices          = 5
	DefaultTrustDuration              = 30 * 24 * time.Hour
	DefaultHoldTTL                    = 10 * time.Minute
)

// DefaultPolicyConfig returns the built-in thresholds.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		ApprovalThreshold:    DefaultApprovalThreshold,
		HardLimit:            DefaultHardLimit,
		UnapprovedWarnAbove:  DefaultUnapprovedWarnAbove,
		UnapprovedBlockAbove: DefaultUnapprovedBlockAbove,
		MaxAlternatives:      DefaultMaxAlternatives,
	}
}

// DefaultRiskConfig enables step-up for every signal family.
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		TravelThreshold: DefaultTravelThreshold,
		StepUp: StepUpPolicy{
			Enabled:            true,
			OnGeo:              true,
			OnNewDevice:        true,
			OnImpossibleTravel: true,
		},
		Trust: TrustPolicy{
			TrustAfterStepUp: true,
			MaxTrusted:       DefaultMaxTrustedDevices,
			TrustDuration:    DefaultTrustDuration,
		},
	}
}

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier:   TierCommunity,
		Policy: DefaultPolicyConfig(),
		Risk:   DefaultRiskConfig(),
		Hold:   HoldConfig{TTL: DefaultHoldTTL},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./verdict.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "verdict",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresUser: "verdict",
		PostgresDB:   "verdict",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
		NATSQueue:         "verdict",
	}
	cfg.Tracing.Enabled = true
	return cfg
}
