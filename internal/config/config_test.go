package config

import "testing"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("APPOINTMENT_SERVICE_URL", "")
	t.Setenv("NOTIFICATION_SERVICE_URL", "")

	cfg := Load()
	if cfg.Port != "8005" {
		t.Errorf("expected default port 8005, got %s", cfg.Port)
	}
	if cfg.AppointmentServiceURL != "http://localhost:8002" {
		t.Errorf("unexpected appointment URL: %s", cfg.AppointmentServiceURL)
	}
	if cfg.NotificationServiceURL != "http://localhost:8004" {
		t.Errorf("unexpected notification URL: %s", cfg.NotificationServiceURL)
	}
	if cfg.DatabaseURL == "" {
		t.Error("expected a default database URL")
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("APPOINTMENT_SERVICE_URL", "http://appointments.internal:8080")
	t.Setenv("NOTIFICATION_SERVICE_URL", "http://notifications.internal:8080")
	t.Setenv("DATABASE_URL", "postgres://example/db")

	cfg := Load()
	if cfg.Port != "9000" {
		t.Errorf("expected port 9000, got %s", cfg.Port)
	}
	if cfg.AppointmentServiceURL != "http://appointments.internal:8080" {
		t.Errorf("unexpected appointment URL: %s", cfg.AppointmentServiceURL)
	}
	if cfg.NotificationServiceURL != "http://notifications.internal:8080" {
		t.Errorf("unexpected notification URL: %s", cfg.NotificationServiceURL)
	}
	if cfg.DatabaseURL != "postgres://example/db" {
		t.Errorf("unexpected database URL: %s", cfg.DatabaseURL)
	}
}
