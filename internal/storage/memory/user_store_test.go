package memory

import (
	"context"
	"errors"
	"testing"

	"aqua-launchpad/internal/domain"
	"aqua-launchpad/internal/storage"
)

func TestUserStore_InsertAndLookup(t *testing.T) {
	store := NewUserStore()
	ctx := context.Background()

	if err := store.Insert(ctx, &domain.User{ID: "u1", ReferralCode: "CODE1", CreatedAt: 1}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.Insert(ctx, &domain.User{ID: "u2", ReferralCode: "CODE1"}); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey for reused code, got %v", err)
	}

	u, err := store.GetByReferralCode(ctx, "CODE1")
	if err != nil {
		t.Fatalf("GetByReferralCode failed: %v", err)
	}
	if u.ID != "u1" {
		t.Errorf("Expected u1, got %s", u.ID)
	}

	if _, err := store.GetByID(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestUserStore_SetReferredByOnce(t *testing.T) {
	store := NewUserStore()
	ctx := context.Background()

	_ = store.Insert(ctx, &domain.User{ID: "u1", ReferralCode: "A"})
	_ = store.Insert(ctx, &domain.User{ID: "u2", ReferralCode: "B"})

	if err := store.SetReferredBy(ctx, "u2", "u1"); err != nil {
		t.Fatalf("SetReferredBy failed: %v", err)
	}
	if err := store.SetReferredBy(ctx, "u2", "u1"); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("Expected ErrConflict on rebind, got %v", err)
	}
	if err := store.SetReferredBy(ctx, "nobody", "u1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	u, _ := store.GetByID(ctx, "u2")
	if u.ReferredBy == nil || *u.ReferredBy != "u1" {
		t.Errorf("Expected referred_by u1, got %v", u.ReferredBy)
	}

	if err := store.SetWalletAddress(ctx, "u2", "WALLET"); err != nil {
		t.Fatalf("SetWalletAddress failed: %v", err)
	}
	u, _ = store.GetByID(ctx, "u2")
	if u.WalletAddress == nil || *u.WalletAddress != "WALLET" {
		t.Errorf("Expected wallet address, got %v", u.WalletAddress)
	}
}
