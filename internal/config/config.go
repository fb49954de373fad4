package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMongo    = "mongo"
	StoreDriverMemory   = "memory"
)

// Transcript storage backends.
const (
	TranscriptBackendLocal = "local"
	TranscriptBackendMinio = "minio"
	TranscriptBackendNone  = "none"
)

// Switch guard backends.
const (
	GuardBackendMemory = "memory"
	GuardBackendRedis  = "redis"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App        AppConfig
	Store      StoreConfig
	Postgres   PostgresConfig
	Mongo      MongoConfig
	Redis      RedisConfig
	Logger     LoggerConfig
	Discord    DiscordConfig
	Tickets    TicketsConfig
	Switch     SwitchConfig
	Watchdog   WatchdogConfig
	Transcript TranscriptConfig
	Minio      MinioConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// StoreConfig selects the ticket record store implementation.
type StoreConfig struct {
	Driver string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// MongoConfig holds document store connection values.
type MongoConfig struct {
	URI      string
	Database string
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// DiscordConfig holds chat platform credentials.
type DiscordConfig struct {
	Token   string
	GuildID string
}

// TicketsConfig describes the guild layout tickets are created in.
type TicketsConfig struct {
	CategoryID                 string
	LogChannelID               string
	SupportRoleID              string
	PartnerRoleID              string
	EscalationRoleID           string
	BlacklistRoleID            string
	PartnershipRequiredRoleID  string
	HighPriorityRequiredRoleID string
	DeleteDelaySeconds         int
	MentionRetractSeconds      int
}

// SwitchConfig configures the per-channel type switch guard.
type SwitchConfig struct {
	Backend         string
	CooldownSeconds int
}

// WatchdogConfig configures the inactivity sweep.
type WatchdogConfig struct {
	Enabled                bool
	IntervalMinutes        int
	OpenThresholdHours     int
	InactiveThresholdHours int
}

// TranscriptConfig configures transcript export and persistence.
type TranscriptConfig struct {
	Backend    string
	Dir        string
	Gzip       bool
	PlainLimit int
	HTMLCap    int
}

// MinioConfig holds object storage connection values.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "ticket-engine"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Store: StoreConfig{
			Driver: strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Mongo: MongoConfig{
			URI:      getEnv("MONGO_URI", "mongodb://127.0.0.1:27017"),
			Database: getEnv("MONGO_DB", "tickets"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Discord: DiscordConfig{
			Token:   os.Getenv("DISCORD_TOKEN"),
			GuildID: os.Getenv("DISCORD_GUILD_ID"),
		},
		Tickets: TicketsConfig{
			CategoryID:                 os.Getenv("TICKET_CATEGORY_ID"),
			LogChannelID:               os.Getenv("TICKET_LOG_CHANNEL_ID"),
			SupportRoleID:              os.Getenv("SUPPORT_ROLE_ID"),
			PartnerRoleID:              os.Getenv("PARTNER_ROLE_ID"),
			EscalationRoleID:           os.Getenv("ESCALATION_ROLE_ID"),
			BlacklistRoleID:            os.Getenv("BLACKLIST_ROLE_ID"),
			PartnershipRequiredRoleID:  os.Getenv("PARTNERSHIP_REQUIRED_ROLE_ID"),
			HighPriorityRequiredRoleID: os.Getenv("HIGH_PRIORITY_REQUIRED_ROLE_ID"),
			DeleteDelaySeconds:         getEnvAsInt("TICKET_DELETE_DELAY_SECONDS", 5),
			MentionRetractSeconds:      getEnvAsInt("TICKET_MENTION_RETRACT_SECONDS", 2),
		},
		Switch: SwitchConfig{
			Backend:         strings.ToLower(getEnv("SWITCH_GUARD_BACKEND", GuardBackendMemory)),
			CooldownSeconds: getEnvAsInt("SWITCH_COOLDOWN_SECONDS", 5),
		},
		Watchdog: WatchdogConfig{
			Enabled:                getEnvAsBool("WATCHDOG_ENABLED", true),
			IntervalMinutes:        getEnvAsInt("WATCHDOG_INTERVAL_MINUTES", 10),
			OpenThresholdHours:     getEnvAsInt("WATCHDOG_OPEN_THRESHOLD_HOURS", 24),
			InactiveThresholdHours: getEnvAsInt("WATCHDOG_INACTIVE_THRESHOLD_HOURS", 24),
		},
		Transcript: TranscriptConfig{
			Backend:    strings.ToLower(getEnv("TRANSCRIPT_BACKEND", TranscriptBackendLocal)),
			Dir:        getEnv("TRANSCRIPT_DIR", "transcripts"),
			Gzip:       getEnvAsBool("TRANSCRIPT_GZIP", false),
			PlainLimit: getEnvAsInt("TRANSCRIPT_PLAIN_LIMIT", 100),
			HTMLCap:    getEnvAsInt("TRANSCRIPT_HTML_CAP", 2000),
		},
		Minio: MinioConfig{
			Endpoint:  os.Getenv("MINIO_ENDPOINT"),
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			Bucket:    getEnv("MINIO_BUCKET", "transcripts"),
			UseSSL:    getEnvAsBool("MINIO_USE_SSL", false),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects unknown drivers and inconsistent combinations.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreDriverPostgres, StoreDriverMongo, StoreDriverMemory:
	default:
		return fmt.Errorf("invalid STORE_DRIVER %q", c.Store.Driver)
	}
	switch c.Transcript.Backend {
	case TranscriptBackendLocal, TranscriptBackendNone:
	case TranscriptBackendMinio:
		if c.Minio.Endpoint == "" {
			return fmt.Errorf("MINIO_ENDPOINT is required for TRANSCRIPT_BACKEND=minio")
		}
	default:
		return fmt.Errorf("invalid TRANSCRIPT_BACKEND %q", c.Transcript.Backend)
	}
	switch c.Switch.Backend {
	case GuardBackendMemory, GuardBackendRedis:
	default:
		return fmt.Errorf("invalid SWITCH_GUARD_BACKEND %q", c.Switch.Backend)
	}
	if c.Transcript.PlainLimit <= 0 || c.Transcript.PlainLimit > 100 {
		return fmt.Errorf("TRANSCRIPT_PLAIN_LIMIT must be within 1..100")
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// DeleteDelay is how long a closed space lingers before deletion.
func (t TicketsConfig) DeleteDelay() time.Duration {
	return time.Duration(t.DeleteDelaySeconds) * time.Second
}

// MentionRetract is how long the creation ping stays visible.
func (t TicketsConfig) MentionRetract() time.Duration {
	return time.Duration(t.MentionRetractSeconds) * time.Second
}

// Cooldown returns the post-switch cooldown.
func (s SwitchConfig) Cooldown() time.Duration {
	return time.Duration(s.CooldownSeconds) * time.Second
}

// Interval returns the sweep period.
func (w WatchdogConfig) Interval() time.Duration {
	return time.Duration(w.IntervalMinutes) * time.Minute
}

// OpenThreshold returns the minimum ticket age before it is considered.
func (w WatchdogConfig) OpenThreshold() time.Duration {
	return time.Duration(w.OpenThresholdHours) * time.Hour
}

// InactiveThreshold returns the idle duration that triggers a prompt.
func (w WatchdogConfig) InactiveThreshold() time.Duration {
	return time.Duration(w.InactiveThresholdHours) * time.Hour
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
