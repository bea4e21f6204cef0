package config

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog"
)

type Environment string

const (
	Live Environment = "live"
	Beta Environment = "beta"
	Dev  Environment = "dev"
)

type BoardmodConfig struct {
	Env         Environment   `yaml:"env"`
	Addr        string        `yaml:"addr"`
	PrivateAddr string        `yaml:"private_addr"`
	LogLevel    zerolog.Level `yaml:"-"`
	LogFormat   string        `yaml:"log_format"`

	Postgres PostgresConfig `yaml:"postgres"`
	GeoIP    GeoIPConfig    `yaml:"geoip"`
	Audit    AuditConfig    `yaml:"audit"`
	Nats     NatsConfig     `yaml:"nats"`
	Auth     AuthConfig     `yaml:"auth"`
}

type PostgresConfig struct {
	User     string            `yaml:"user"`
	Password string            `yaml:"password"`
	Hostname string            `yaml:"hostname"`
	Port     int               `yaml:"port"`
	DbName   string            `yaml:"dbname"`
	LogLevel tracelog.LogLevel `yaml:"-"`
	MinConn  int32             `yaml:"min_conn"`
	MaxConn  int32             `yaml:"max_conn"`
}

func (info PostgresConfig) DSN() string {
	return fmt.Sprintf("user=%s password=%s host=%s port=%d dbname=%s", info.User, info.Password, info.Hostname, info.Port, info.DbName)
}

type GeoIPConfig struct {
	CountryDBPath string `yaml:"country_db_path"`
	ASNDBPath     string `yaml:"asn_db_path"`
}

type AuditConfig struct {
	RetentionDays   int           `yaml:"retention_days"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

type NatsConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type AuthConfig struct {
	CookieName      string        `yaml:"cookie_name"`
	CookieDomain    string        `yaml:"cookie_domain"`
	CookieSecure    bool          `yaml:"cookie_secure"`
	SessionDuration time.Duration `yaml:"session_duration"`
}
