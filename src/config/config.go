package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/tracelog"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

var Config = BoardmodConfig{
	Env:         Dev,
	Addr:        ":9001",
	PrivateAddr: ":9002",
	LogLevel:    zerolog.InfoLevel,
	LogFormat:   "pretty",
	Postgres: PostgresConfig{
		User:     "boardmod",
		Password: "password",
		Hostname: "localhost",
		Port:     5432,
		DbName:   "boardmod",
		LogLevel: tracelog.LogLevelWarn,
		MinConn:  2,
		MaxConn:  16,
	},
	GeoIP: GeoIPConfig{
		CountryDBPath: "data/geolite/GeoLite2-Country.mmdb",
		ASNDBPath:     "data/geolite/GeoLite2-ASN.mmdb",
	},
	Audit: AuditConfig{
		RetentionDays:   365,
		CleanupInterval: 6 * time.Hour,
	},
	Nats: NatsConfig{
		SubjectPrefix: "boardmod",
	},
	Auth: AuthConfig{
		CookieName:      "BoardmodSession",
		CookieSecure:    true,
		SessionDuration: 14 * 24 * time.Hour,
	},
}

const ConfigFileEnvVar = "BOARDMOD_CONFIG"

func init() {
	// A missing .env is normal in production.
	_ = godotenv.Load()

	if path := os.Getenv(ConfigFileEnvVar); path != "" {
		if err := LoadFile(path, &Config); err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config file %s: %v\n", path, err)
			os.Exit(1)
		}
	}

	applyEnv(&Config, os.Getenv)
}

// Decodes a YAML config file on top of whatever is already in cfg.
func LoadFile(path string, cfg *BoardmodConfig) error {
	contents, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var raw struct {
		LogLevel         string `yaml:"log_level"`
		PostgresLogLevel string `yaml:"postgres_log_level"`
	}
	if err := yaml.Unmarshal(contents, &raw); err != nil {
		return err
	}
	if err := yaml.Unmarshal(contents, cfg); err != nil {
		return err
	}

	if raw.LogLevel != "" {
		lvl, err := zerolog.ParseLevel(raw.LogLevel)
		if err != nil {
			return err
		}
		cfg.LogLevel = lvl
	}
	if raw.PostgresLogLevel != "" {
		lvl, err := tracelog.LogLevelFromString(raw.PostgresLogLevel)
		if err != nil {
			return err
		}
		cfg.Postgres.LogLevel = lvl
	}

	return nil
}

func applyEnv(cfg *BoardmodConfig, getenv func(string) string) {
	str := func(name string, dest *string) {
		if v := getenv(name); v != "" {
			*dest = v
		}
	}
	integer := func(name string, dest *int) {
		if v, err := strconv.Atoi(getenv(name)); err == nil {
			*dest = v
		}
	}
	duration := func(name string, dest *time.Duration) {
		if v, err := time.ParseDuration(getenv(name)); err == nil {
			*dest = v
		}
	}

	var env string
	str("BOARDMOD_ENV", &env)
	if env != "" {
		cfg.Env = Environment(env)
	}
	str("BOARDMOD_ADDR", &cfg.Addr)
	str("BOARDMOD_PRIVATE_ADDR", &cfg.PrivateAddr)
	str("BOARDMOD_LOG_FORMAT", &cfg.LogFormat)
	if lvl, err := zerolog.ParseLevel(getenv("BOARDMOD_LOG_LEVEL")); err == nil && getenv("BOARDMOD_LOG_LEVEL") != "" {
		cfg.LogLevel = lvl
	}

	str("BOARDMOD_PG_USER", &cfg.Postgres.User)
	str("BOARDMOD_PG_PASSWORD", &cfg.Postgres.Password)
	str("BOARDMOD_PG_HOST", &cfg.Postgres.Hostname)
	integer("BOARDMOD_PG_PORT", &cfg.Postgres.Port)
	str("BOARDMOD_PG_DBNAME", &cfg.Postgres.DbName)

	str("BOARDMOD_GEOIP_COUNTRY_DB", &cfg.GeoIP.CountryDBPath)
	str("BOARDMOD_GEOIP_ASN_DB", &cfg.GeoIP.ASNDBPath)

	integer("BOARDMOD_AUDIT_RETENTION_DAYS", &cfg.Audit.RetentionDays)
	duration("BOARDMOD_AUDIT_CLEANUP_INTERVAL", &cfg.Audit.CleanupInterval)

	str("BOARDMOD_NATS_URL", &cfg.Nats.URL)
	str("BOARDMOD_NATS_SUBJECT_PREFIX", &cfg.Nats.SubjectPrefix)

	str("BOARDMOD_COOKIE_DOMAIN", &cfg.Auth.CookieDomain)
	if v, err := strconv.ParseBool(getenv("BOARDMOD_COOKIE_SECURE")); err == nil {
		cfg.Auth.CookieSecure = v
	}
}
