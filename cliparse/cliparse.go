package cliparse

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Defaults
const (
	DefaultPort           = 3318
	DefaultDatabaseType   = "sqlite"
	DefaultLeaderboardTTL = 10 * time.Second
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
)

type Config struct {
	Port           int           `yaml:"port"`
	DatabaseURL    string        `yaml:"database_url"`
	DatabaseType   string        `yaml:"database_type"`
	AdminKeySalt   string        `yaml:"admin_key_salt"`
	NATSURL        string        `yaml:"nats_url"`
	NATSEmbedded   bool          `yaml:"nats_embedded"`
	LeaderboardTTL time.Duration `yaml:"leaderboard_ttl"`
	LogLevel       string        `yaml:"log_level"`
	LogFormat      string        `yaml:"log_format"`
}

// setting binds one key to its flag and environment variable.
type setting struct {
	flag string
	env  string
	set  func(cfg *Config, v string) error
}

var settings = []setting{
	{"port", "PORT", func(c *Config, v string) error {
		port, err := strconv.Atoi(v)
		if err != nil {
			return errors.New("invalid PORT")
		}
		c.Port = port
		return nil
	}},
	{"database-url", "DATABASE_URL", func(c *Config, v string) error { c.DatabaseURL = v; return nil }},
	{"database-type", "DATABASE_TYPE", func(c *Config, v string) error { c.DatabaseType = v; return nil }},
	{"admin-salt", "ADMIN_KEY_SALT", func(c *Config, v string) error { c.AdminKeySalt = v; return nil }},
	{"nats-url", "NATS_URL", func(c *Config, v string) error { c.NATSURL = v; return nil }},
	{"nats-embedded", "NATS_EMBEDDED", func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.New("invalid NATS_EMBEDDED")
		}
		c.NATSEmbedded = b
		return nil
	}},
	{"leaderboard-ttl", "LEADERBOARD_TTL", func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.New("invalid LEADERBOARD_TTL")
		}
		c.LeaderboardTTL = d
		return nil
	}},
	{"log-level", "LOG_LEVEL", func(c *Config, v string) error { c.LogLevel = v; return nil }},
	{"log-format", "LOG_FORMAT", func(c *Config, v string) error { c.LogFormat = v; return nil }},
}

// RegisterFlags adds the configuration flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	// Network and storage (can be CLI args or env)
	fs.IntP("port", "p", DefaultPort, "Server port")
	fs.StringP("database-url", "d", "", "Database URL")
	fs.StringP("database-type", "t", DefaultDatabaseType, "Database type (sqlite or postgres)")
	fs.String("nats-url", "", "NATS server URL")
	fs.Bool("nats-embedded", false, "Run an embedded NATS server")

	// Secrets (prefer env variables, but allow CLI for dev)
	fs.String("admin-salt", "", "Admin key salt (prefer env)")

	fs.Duration("leaderboard-ttl", DefaultLeaderboardTTL, "Leaderboard cache TTL")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warn, error)")
	fs.String("log-format", DefaultLogFormat, "Log format (text or json)")

	fs.String("config", "", "YAML config file")
	fs.String("env-file", ".env", "Dotenv file loaded into the environment if present")
}

// ParseFlags parses args and resolves the configuration.
func ParseFlags(args []string) (Config, error) {
	fs := pflag.NewFlagSet("livepoll", pflag.ContinueOnError)
	RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	return Load(fs)
}

// Load resolves the configuration from a parsed flag set. A value set on
// the command line wins over the environment, which wins over the YAML
// file, which wins over the defaults. The dotenv file never overrides
// variables already in the environment.
func Load(fs *pflag.FlagSet) (Config, error) {
	cfg := Config{
		Port:           DefaultPort,
		DatabaseType:   DefaultDatabaseType,
		LeaderboardTTL: DefaultLeaderboardTTL,
		LogLevel:       DefaultLogLevel,
		LogFormat:      DefaultLogFormat,
	}

	if envFile, _ := fs.GetString("env-file"); envFile != "" {
		err := godotenv.Load(envFile)
		if err != nil && (fs.Changed("env-file") || !errors.Is(err, os.ErrNotExist)) {
			return Config{}, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	if path, _ := fs.GetString("config"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	for _, s := range settings {
		if v, ok := os.LookupEnv(s.env); ok && v != "" {
			if err := s.set(&cfg, v); err != nil {
				return Config{}, err
			}
		}
	}

	var flagErr error
	fs.Visit(func(f *pflag.Flag) {
		for _, s := range settings {
			if s.flag == f.Name && flagErr == nil {
				flagErr = s.set(&cfg, f.Value.String())
			}
		}
	})
	if flagErr != nil {
		return Config{}, flagErr
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// Validate checks the values every command needs.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL required (use -d or DATABASE_URL env)")
	}
	if c.DatabaseType != "sqlite" && c.DatabaseType != "postgres" {
		return fmt.Errorf("unsupported database type %q", c.DatabaseType)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.LeaderboardTTL <= 0 {
		return errors.New("leaderboard TTL must be positive")
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}

	return nil
}
