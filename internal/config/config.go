// Package config assembles the service configuration from the environment
// and an optional YAML file named by GRAPH_CONFIG_FILE. Values in the file
// take precedence over the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/OFFIS-RIT/kiwi/entitygraph/internal/util"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Debug     bool   `yaml:"debug"`
	LogFormat string `yaml:"log_format"`
	Port      string `yaml:"port"`

	// CORSOrigins are the allowed origins, all when empty.
	CORSOrigins []string `yaml:"cors_origins"`

	Database Database `yaml:"database"`
	Cache    Cache    `yaml:"cache"`
	Events   Events   `yaml:"events"`
	Auth     Auth     `yaml:"auth"`
	S3       S3       `yaml:"s3"`
}

// Database selects the graph source. SQLitePath wins over URL when both
// are set.
type Database struct {
	URL        string `yaml:"url"`
	SQLitePath string `yaml:"sqlite_path"`
	MaxRetries int    `yaml:"max_retries"`
}

type Cache struct {
	TTL          time.Duration `yaml:"ttl"`
	BuildTimeout time.Duration `yaml:"build_timeout"`

	// MaxConcurrentBuilds caps builds across projects, 0 means no cap.
	MaxConcurrentBuilds int `yaml:"max_concurrent_builds"`
}

type Events struct {
	Enabled    bool   `yaml:"enabled"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	Host       string `yaml:"host"`
	Port       string `yaml:"port"`
	Exchange   string `yaml:"exchange"`
	Queue      string `yaml:"queue"`
	MaxRetries int    `yaml:"max_retries"`
}

// URL returns the AMQP connection URL.
func (e Events) URL() string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(e.User, e.Password),
		Host:   e.Host + ":" + e.Port,
		Path:   "/",
	}
	return u.String()
}

type Auth struct {
	URL            string `yaml:"url"`
	MasterAPIKey   string `yaml:"master_api_key"`
	MasterUserID   int32  `yaml:"master_user_id"`
	MasterUserRole string `yaml:"master_user_role"`
}

type S3 struct {
	Region         string        `yaml:"region"`
	Endpoint       string        `yaml:"endpoint"`
	PublicEndpoint string        `yaml:"public_endpoint"`
	AccessKey      string        `yaml:"access_key"`
	SecretKey      string        `yaml:"secret_key"`
	Bucket         string        `yaml:"bucket"`
	LinkExpiry     time.Duration `yaml:"link_expiry"`
}

// Enabled reports whether exports can be uploaded.
func (s S3) Enabled() bool {
	return s.Bucket != ""
}

// FromEnv reads the configuration from environment variables only.
func FromEnv() Config {
	return Config{
		Debug:       util.GetEnvBool("DEBUG", false),
		LogFormat:   util.GetEnvString("LOG_FORMAT", "text"),
		Port:        util.GetEnvString("PORT", "8080"),
		CORSOrigins: util.GetEnvList("CORS_ALLOWED_ORIGINS"),
		Database: Database{
			URL:        util.GetEnv("DATABASE_URL"),
			SQLitePath: util.GetEnv("GRAPH_SQLITE_PATH"),
			MaxRetries: util.GetEnvInt("DATABASE_MAX_RETRIES", 3),
		},
		Cache: Cache{
			TTL:                 util.GetEnvDuration("GRAPH_CACHE_TTL", 0),
			BuildTimeout:        util.GetEnvDuration("GRAPH_BUILD_TIMEOUT", 2*time.Minute),
			MaxConcurrentBuilds: util.GetEnvInt("GRAPH_MAX_CONCURRENT_BUILDS", 4),
		},
		Events: Events{
			Enabled:    util.GetEnvBool("GRAPH_EVENTS_ENABLED", true),
			User:       util.GetEnvString("RABBITMQ_USER", "guest"),
			Password:   util.GetEnvString("RABBITMQ_PASSWORD", "guest"),
			Host:       util.GetEnvString("RABBITMQ_HOST", "localhost"),
			Port:       util.GetEnvString("RABBITMQ_PORT", "5672"),
			Exchange:   util.GetEnvString("GRAPH_EVENTS_EXCHANGE", "graph_events"),
			Queue:      util.GetEnvString("GRAPH_EVENTS_QUEUE", "graph_invalidation_queue"),
			MaxRetries: util.GetEnvInt("GRAPH_EVENTS_MAX_RETRIES", 10),
		},
		Auth: Auth{
			URL:            util.GetEnv("AUTH_URL"),
			MasterAPIKey:   util.GetEnv("MASTER_API_KEY"),
			MasterUserID:   int32(util.GetEnvInt("MASTER_USER_ID", 0)),
			MasterUserRole: util.GetEnv("MASTER_USER_ROLE"),
		},
		S3: S3{
			Region:         util.GetEnv("AWS_REGION"),
			Endpoint:       util.GetEnv("AWS_ENDPOINT"),
			PublicEndpoint: util.GetEnv("AWS_PUBLIC_ENDPOINT"),
			AccessKey:      util.GetEnv("AWS_ACCESS_KEY"),
			SecretKey:      util.GetEnv("AWS_SECRET_KEY"),
			Bucket:         util.GetEnv("AWS_BUCKET"),
			LinkExpiry:     util.GetEnvDuration("AWS_LINK_EXPIRY", 15*time.Minute),
		},
	}
}

// Load reads the environment and overlays the file named by
// GRAPH_CONFIG_FILE if it is set.
func Load() (Config, error) {
	cfg := FromEnv()
	if path := util.GetEnv("GRAPH_CONFIG_FILE"); path != "" {
		if err := cfg.Overlay(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Overlay replaces the values present in the YAML file at path.
func (c *Config) Overlay(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Database.URL == "" && c.Database.SQLitePath == "" {
		errs = append(errs, errors.New("either DATABASE_URL or GRAPH_SQLITE_PATH must be set"))
	}
	switch c.LogFormat {
	case "text", "json", "logfmt":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	if c.Cache.TTL < 0 || c.Cache.BuildTimeout < 0 {
		errs = append(errs, errors.New("cache durations must not be negative"))
	}
	if c.Cache.MaxConcurrentBuilds < 0 {
		errs = append(errs, errors.New("max concurrent builds must not be negative"))
	}
	if c.Events.Enabled && (c.Events.Exchange == "" || c.Events.Queue == "") {
		errs = append(errs, errors.New("events need an exchange and a queue"))
	}
	return errors.Join(errs...)
}
