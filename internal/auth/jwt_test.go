package auth

import (
	"testing"
	"time"
)

func TestNewManagerAndTokenLifecycle(t *testing.T) {
	mgr, err := NewManager("test-secret", "issuer", time.Minute*30)
	if err != nil {
		t.Fatalf("unexpected error creating manager: %v", err)
	}

	token, expiresAt, err := mgr.GenerateToken("anna", RoleAdmin)
	if err != nil {
		t.Fatalf("unexpected error generating token: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}
	if expiresAt.Before(time.Now()) {
		t.Fatal("expected future expiry time")
	}

	claims, err := mgr.ParseToken(token)
	if err != nil {
		t.Fatalf("unexpected error parsing token: %v", err)
	}
	if claims.Operator != "anna" {
		t.Fatalf("expected operator anna, got %s", claims.Operator)
	}
	if !claims.IsAdmin() {
		t.Fatalf("expected admin role, got %s", claims.Role)
	}
}

func TestGenerateTokenDefaultsToOperator(t *testing.T) {
	mgr, _ := NewManager("s", "", time.Hour)
	token, _, err := mgr.GenerateToken("bob", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	claims, err := mgr.ParseToken(token)
	if err != nil {
		t.Fatalf("unexpected error parsing token: %v", err)
	}
	if claims.Role != RoleOperator || claims.IsAdmin() {
		t.Fatalf("expected operator role, got %s", claims.Role)
	}
}

func TestGenerateTokenRejectsBadInput(t *testing.T) {
	mgr, _ := NewManager("s", "", time.Hour)
	if _, _, err := mgr.GenerateToken("  ", RoleOperator); err == nil {
		t.Fatal("expected error for empty operator")
	}
	if _, _, err := mgr.GenerateToken("bob", "root"); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestParseTokenRejectsForeignTokens(t *testing.T) {
	mgr, _ := NewManager("secret-a", "facechanger", time.Hour)
	other, _ := NewManager("secret-b", "facechanger", time.Hour)
	otherIssuer, _ := NewManager("secret-a", "someone-else", time.Hour)

	token, _, err := other.GenerateToken("eve", RoleAdmin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := mgr.ParseToken(token); err == nil {
		t.Fatal("expected signature error")
	}

	token, _, _ = otherIssuer.GenerateToken("eve", RoleAdmin)
	if _, err := mgr.ParseToken(token); err == nil {
		t.Fatal("expected issuer error")
	}

	expired, _ := NewManager("secret-a", "facechanger", time.Nanosecond)
	token, _, _ = expired.GenerateToken("eve", RoleOperator)
	time.Sleep(5 * time.Millisecond)
	if _, err := expired.ParseToken(token); err == nil {
		t.Fatal("expected expiry error")
	}
}

func TestNewManagerRequiresSecret(t *testing.T) {
	if _, err := NewManager("   ", "", time.Hour); err == nil {
		t.Fatal("expected error for empty secret")
	}
}
