// cliparse/cliparse_test.go
package cliparse

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// isolate clears the variables Load reads and points it at a missing dotenv
// file.
func isolate(t *testing.T) []string {
	t.Helper()
	for _, s := range settings {
		t.Setenv(s.env, "")
	}
	return []string{"--env-file", ""}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseFlags_EnvVars(t *testing.T) {
	args := isolate(t)
	t.Setenv("PORT", "9000")
	t.Setenv("DATABASE_URL", "postgres://test")
	t.Setenv("DATABASE_TYPE", "postgres")
	t.Setenv("ADMIN_KEY_SALT", "test-salt")
	t.Setenv("LEADERBOARD_TTL", "3s")
	t.Setenv("NATS_EMBEDDED", "true")

	cfg, err := ParseFlags(args)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Port)
	}
	if cfg.DatabaseType != "postgres" {
		t.Errorf("expected postgres, got %s", cfg.DatabaseType)
	}
	if cfg.AdminKeySalt != "test-salt" {
		t.Errorf("expected salt from env, got %q", cfg.AdminKeySalt)
	}
	if cfg.LeaderboardTTL != 3*time.Second {
		t.Errorf("expected 3s TTL, got %s", cfg.LeaderboardTTL)
	}
	if !cfg.NATSEmbedded {
		t.Error("expected embedded NATS from env")
	}
}

func TestParseFlags_CLIOverridesEnv(t *testing.T) {
	args := isolate(t)
	t.Setenv("PORT", "9000")

	cfg, err := ParseFlags(append(args, "-p", "8080", "-d", "file:test.db", "--admin-salt", "s1"))
	if err != nil {
		t.Fatal(err)
	}

	// CLI should override env
	if cfg.Port != 8080 {
		t.Errorf("CLI should override env: expected 8080, got %d", cfg.Port)
	}
}

func TestParseFlags_Defaults(t *testing.T) {
	args := isolate(t)

	cfg, err := ParseFlags(append(args, "-d", "livepoll.db"))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Port != DefaultPort {
		t.Errorf("expected default port, got %d", cfg.Port)
	}
	if cfg.DatabaseType != "sqlite" {
		t.Errorf("expected sqlite by default, got %s", cfg.DatabaseType)
	}
	if cfg.LeaderboardTTL != 10*time.Second {
		t.Errorf("expected 10s TTL, got %s", cfg.LeaderboardTTL)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "text" {
		t.Errorf("unexpected log defaults %q %q", cfg.LogLevel, cfg.LogFormat)
	}
}

func TestParseFlags_Precedence(t *testing.T) {
	args := isolate(t)
	path := writeFile(t, "livepoll.yaml", `
port: 7000
database_url: from-yaml.db
log_level: debug
leaderboard_ttl: 30s
log_format: json
`)
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("PORT", "7100")

	cfg, err := ParseFlags(append(args, "--config", path, "-p", "7200"))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Port != 7200 {
		t.Errorf("flag should win: expected 7200, got %d", cfg.Port)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("env should beat file: expected warn, got %s", cfg.LogLevel)
	}
	if cfg.DatabaseURL != "from-yaml.db" {
		t.Errorf("file should beat default: got %q", cfg.DatabaseURL)
	}
	if cfg.LeaderboardTTL != 30*time.Second {
		t.Errorf("expected 30s TTL from file, got %s", cfg.LeaderboardTTL)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("expected json from file, got %s", cfg.LogFormat)
	}
}

func TestParseFlags_DotEnv(t *testing.T) {
	isolate(t)
	path := writeFile(t, ".env", "DATABASE_URL=from-dotenv.db\nADMIN_KEY_SALT=dotenv-salt\n")
	t.Setenv("ADMIN_KEY_SALT", "real-env-salt")
	// godotenv only fills unset variables
	os.Unsetenv("DATABASE_URL")

	cfg, err := ParseFlags([]string{"--env-file", path})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.DatabaseURL != "from-dotenv.db" {
		t.Errorf("expected URL from .env, got %q", cfg.DatabaseURL)
	}
	if cfg.AdminKeySalt != "real-env-salt" {
		t.Errorf(".env must not override the environment, got %q", cfg.AdminKeySalt)
	}
}

func TestParseFlags_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		env  map[string]string
	}{
		{"missing database url", nil, nil},
		{"bad port env", []string{"-d", "x.db"}, map[string]string{"PORT": "abc"}},
		{"bad ttl env", []string{"-d", "x.db"}, map[string]string{"LEADERBOARD_TTL": "soon"}},
		{"unknown database type", []string{"-d", "x.db", "-t", "mysql"}, nil},
		{"unknown log format", []string{"-d", "x.db", "--log-format", "xml"}, nil},
		{"port out of range", []string{"-d", "x.db", "-p", "70000"}, nil},
		{"missing config file", []string{"-d", "x.db", "--config", "/nonexistent/livepoll.yaml"}, nil},
		{"missing explicit env file", []string{"-d", "x.db", "--env-file", "/nonexistent/.env"}, nil},
		{"unknown flag", []string{"--nope"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := isolate(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := ParseFlags(append(args, tt.args...)); err == nil {
				t.Error("expected error")
			}
		})
	}
}
