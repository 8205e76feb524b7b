package jwt

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestHostTokenRoundTrip(t *testing.T) {
	svc := NewService("test-secret", time.Hour)
	hostID := uuid.New()

	token, err := svc.GenerateHostToken(hostID, "party-42")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := svc.ValidateHostToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}

	if claims.HostID != hostID {
		t.Errorf("host id = %s, want %s", claims.HostID, hostID)
	}
	if claims.RoomID != "party-42" {
		t.Errorf("room id = %s, want party-42", claims.RoomID)
	}
}

func TestHostTokenWrongSecret(t *testing.T) {
	token, err := NewService("secret-a", time.Hour).GenerateHostToken(uuid.New(), "room")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := NewService("secret-b", time.Hour).ValidateHostToken(token); err == nil {
		t.Fatal("expected validation to fail with a different secret")
	}
}

func TestHostTokenExpired(t *testing.T) {
	token, err := NewService("secret", -time.Minute).GenerateHostToken(uuid.New(), "room")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := NewService("secret", -time.Minute).ValidateHostToken(token); err == nil {
		t.Fatal("expected validation to fail for expired token")
	}
}
