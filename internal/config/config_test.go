package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.BusinessTimezone != "America/Monterrey" {
		t.Errorf("expected default timezone America/Monterrey, got %s", cfg.BusinessTimezone)
	}
	if cfg.BusinessOpenHour != 9 || cfg.BusinessCloseHour != 18 {
		t.Errorf("expected 9-18 business hours, got %d-%d", cfg.BusinessOpenHour, cfg.BusinessCloseHour)
	}
	if cfg.AppointmentDuration != 30*time.Minute {
		t.Errorf("expected 30m appointment duration, got %s", cfg.AppointmentDuration)
	}
	if cfg.SlotStep != 15*time.Minute {
		t.Errorf("expected 15m slot step, got %s", cfg.SlotStep)
	}
	if cfg.SessionIdleTimeout != 120*time.Minute {
		t.Errorf("expected 120m session idle timeout, got %s", cfg.SessionIdleTimeout)
	}
	if cfg.MaxAlternatives != 5 {
		t.Errorf("expected up to 5 alternative slots, got %d", cfg.MaxAlternatives)
	}
	if cfg.RequireBookingKeyword {
		t.Error("keyword gate should be off by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("APPOINTMENT_DURATION", "45m")
	t.Setenv("REQUIRE_BOOKING_KEYWORD", "true")
	t.Setenv("TRANSCRIPT_LIMIT", "10")

	cfg := Load()

	if cfg.Port != "9090" {
		t.Errorf("expected port override 9090, got %s", cfg.Port)
	}
	if cfg.AppointmentDuration != 45*time.Minute {
		t.Errorf("expected 45m duration, got %s", cfg.AppointmentDuration)
	}
	if !cfg.RequireBookingKeyword {
		t.Error("expected keyword gate enabled")
	}
	if cfg.TranscriptLimit != 10 {
		t.Errorf("expected transcript limit 10, got %d", cfg.TranscriptLimit)
	}
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("BUSINESS_OPEN_HOUR", "nine")
	t.Setenv("SESSION_IDLE_TIMEOUT", "a while")
	t.Setenv("REDIS_TLS", "yes please")

	cfg := Load()

	if cfg.BusinessOpenHour != 9 {
		t.Errorf("expected fallback open hour 9, got %d", cfg.BusinessOpenHour)
	}
	if cfg.SessionIdleTimeout != 120*time.Minute {
		t.Errorf("expected fallback idle timeout, got %s", cfg.SessionIdleTimeout)
	}
	if cfg.RedisTLS {
		t.Error("expected fallback RedisTLS=false")
	}
}
