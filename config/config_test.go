package config

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		DBPassword:    "secret",
		EncryptionKey: strings.Repeat("k", 32),
		JWTSecret:     "jwt",
		Poll:          PollConfig{MaxResults: 20, Concurrency: 4},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing db password", func(c *Config) { c.DBPassword = "" }, "DB_PASSWORD"},
		{"short key", func(c *Config) { c.EncryptionKey = "short" }, "16, 24 or 32"},
		{"missing key", func(c *Config) { c.EncryptionKey = "" }, "ENCRYPTION_KEY is required"},
		{"missing jwt", func(c *Config) { c.JWTSecret = "" }, "JWT_SECRET"},
		{"zero concurrency", func(c *Config) { c.Poll.Concurrency = 0 }, "POLL_CONCURRENCY"},
		{"production without gemini", func(c *Config) { c.Environment = "production" }, "GEMINI_API_KEY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	t.Setenv("TEST_DURATION_SECS", "90")
	t.Setenv("TEST_DURATION_GO", "3h")
	t.Setenv("TEST_DURATION_BAD", "soon")

	if got := getEnvAsDuration("TEST_DURATION_SECS", time.Minute); got != 90*time.Second {
		t.Errorf("seconds = %s", got)
	}
	if got := getEnvAsDuration("TEST_DURATION_GO", time.Minute); got != 3*time.Hour {
		t.Errorf("go duration = %s", got)
	}
	if got := getEnvAsDuration("TEST_DURATION_BAD", time.Minute); got != time.Minute {
		t.Errorf("bad value = %s, want fallback", got)
	}
	if got := getEnvAsDuration("TEST_DURATION_UNSET", time.Minute); got != time.Minute {
		t.Errorf("unset = %s, want fallback", got)
	}
}

func TestGetEnvAsList(t *testing.T) {
	t.Setenv("TEST_ORIGINS", " https://a.test, ,https://b.test ")
	got := getEnvAsList("TEST_ORIGINS", nil)
	want := []string{"https://a.test", "https://b.test"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("list = %v, want %v", got, want)
	}

	t.Setenv("TEST_ORIGINS_EMPTY", " , ")
	if got := getEnvAsList("TEST_ORIGINS_EMPTY", []string{"x"}); !reflect.DeepEqual(got, []string{"x"}) {
		t.Fatalf("empty list = %v, want fallback", got)
	}
}

func TestMaskPassword(t *testing.T) {
	got := maskPassword("host=db password=hunter2 dbname=app")
	if strings.Contains(got, "hunter2") || !strings.Contains(got, "dbname=app") {
		t.Fatalf("masked = %q", got)
	}
}
