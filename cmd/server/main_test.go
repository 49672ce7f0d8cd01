package main

import (
	"context"
	"testing"
	"time"

	"unitysales/backend/internal/config"
	"unitysales/backend/internal/httpapi"
	"unitysales/backend/internal/logging"
	"unitysales/backend/internal/store/memory"
)

const strongSecret = "0123456789abcdef0123456789abcdef"

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	cases := []config.Config{
		{AuthSecret: "short", ManagerPIN: "739154"},
		{AuthSecret: strongSecret, ManagerPIN: "12345"},
		{AuthSecret: strongSecret, ManagerPIN: "123456"},
		{AuthSecret: strongSecret, ManagerPIN: "444444"},
		{AuthSecret: strongSecret, ManagerPIN: "987654"},
		{AuthSecret: strongSecret, ManagerPIN: "73a154"},
	}
	for _, cfg := range cases {
		if err := validateSecurityConfig(cfg); err == nil {
			t.Fatalf("expected weak security config %+v to be rejected", cfg)
		}
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: strongSecret, ManagerPIN: "739154"})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestSeedAdminCreatesFirstAccount(t *testing.T) {
	repo := memory.New()
	auth := httpapi.NewAuthManager(strongSecret, time.Hour, "739154", repo)
	cfg := config.Config{SeedAdminPassword: "first-admin-pass"}

	if err := seedAdmin(context.Background(), auth, cfg, logging.Discard()); err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	users, err := repo.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 1 || users[0].Username != "admin" || users[0].Role != "admin" {
		t.Fatalf("expected one seeded admin, got %+v", users)
	}

	// A second start leaves the existing account alone.
	if err := seedAdmin(context.Background(), auth, cfg, logging.Discard()); err != nil {
		t.Fatalf("second seed: %v", err)
	}
}
