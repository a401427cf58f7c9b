package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/auth"
)

func TestParseTokenTable(t *testing.T) {
	users, err := auth.ParseTokenTable("tok-client:user-1:client, tok-admin:admin-1:admin")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(users))
	}
	if users["tok-admin"].Role != domain.RoleAdmin {
		t.Fatalf("expected admin role, got %s", users["tok-admin"].Role)
	}
}

func TestParseTokenTable_Errors(t *testing.T) {
	for _, raw := range []string{"no-colons", "tok:user", "tok:user:superuser", "tok::client"} {
		if _, err := auth.ParseTokenTable(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestParseTokenTable_Empty(t *testing.T) {
	users, err := auth.ParseTokenTable("  ")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(users) != 0 {
		t.Fatalf("expected empty table, got %d entries", len(users))
	}
}

func TestStaticAuthenticator_Authenticate(t *testing.T) {
	authenticator := auth.NewStaticAuthenticator(map[string]domain.User{
		"tok-1": {ID: "user-1", Role: domain.RoleClient},
	})

	user, err := authenticator.Authenticate(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	if user.ID != "user-1" {
		t.Fatalf("expected user-1, got %s", user.ID)
	}

	if _, err := authenticator.Authenticate(context.Background(), "unknown"); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
}
