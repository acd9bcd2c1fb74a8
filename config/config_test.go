package config

import (
	"os"
	"testing"
)

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("GIN_MODE", "release")
	t.Setenv("SPOTCHAT_JWT_SECRET", "secret")
	t.Setenv("SPOTCHAT_PORT", "9090")
	t.Setenv("SPOTCHAT_EVENT_BACKEND", "redis")
	t.Setenv("SPOTCHAT_REDIS_URL", "redis://localhost:6379/0")

	c, err := Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if c.Port != 9090 {
		t.Errorf("expected port 9090, got %d", c.Port)
	}
	if c.MessageRateLimit != 20 {
		t.Errorf("expected default rate limit 20, got %d", c.MessageRateLimit)
	}
	if !c.UseRedisEvents() {
		t.Error("expected redis events to be enabled")
	}
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("GIN_MODE", "release")
	t.Setenv("SPOTCHAT_JWT_SECRET", "")
	os.Unsetenv("SPOTCHAT_JWT_SECRET")
	t.Setenv("JWT_SECRET", "")
	os.Unsetenv("JWT_SECRET")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when jwt secret is missing")
	}
}

func TestOrigins(t *testing.T) {
	c := &Config{AllowedOrigins: " https://a.example, ,https://b.example "}
	got := c.Origins()
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Errorf("unexpected origins: %v", got)
	}

	c.AllowedOrigins = ""
	if len(c.Origins()) != 0 {
		t.Error("expected no origins")
	}
}

func TestUseRedisEventsNeedsURL(t *testing.T) {
	c := &Config{EventBackend: "redis"}
	if c.UseRedisEvents() {
		t.Error("redis events should be disabled without a url")
	}
}
