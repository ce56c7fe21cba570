package main

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"kitchenpos/backend/internal/config"
	"kitchenpos/backend/internal/lock"
	"kitchenpos/backend/internal/store/memory"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short"})
	if err == nil {
		t.Fatalf("expected weak security config to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef"})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestOpenRepositoryWithoutDatabaseUsesMemory(t *testing.T) {
	repo, closeFn, err := openRepository(context.Background(), config.Config{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	if closeFn != nil {
		t.Fatalf("expected no closer for memory store")
	}
	if _, ok := repo.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", repo)
	}
}

func TestOpenLockerWithoutRedisUsesLocal(t *testing.T) {
	locker, closeFn := openLocker(context.Background(), config.Config{}, zerolog.Nop())
	if closeFn != nil {
		t.Fatalf("expected no closer for local locker")
	}
	if _, ok := locker.(*lock.LocalLocker); !ok {
		t.Fatalf("expected local locker, got %T", locker)
	}
}
