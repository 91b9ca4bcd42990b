package utils

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/cppla/anyrate/config"
)

func TestMain(m *testing.M) {
	os.Setenv("JWT_SECRET", "test-secret")
	InitLogger(config.AppConfig{LogLevel: "error"})
	os.Exit(m.Run())
}

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken("anon-abc", "anonymous", false, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	claims, err := ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken failed: %v", err)
	}
	if claims.VisitorID != "anon-abc" || claims.Provider != "anonymous" || claims.Admin {
		t.Errorf("claims mismatch: %+v", claims)
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	token, err := GenerateToken("anon-old", "anonymous", false, -time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	if _, err := ParseToken(token); err == nil {
		t.Fatal("expected expired token to fail parsing")
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	if _, err := ParseToken("not.a.jwt"); err == nil {
		t.Fatal("expected garbage token to fail parsing")
	}
}

func TestMarkers(t *testing.T) {
	if HasMarker("rate", 1, "marker-visitor-1") {
		t.Fatal("fresh marker must be absent")
	}
	SetMarker("rate", 1, "marker-visitor-1")
	if !HasMarker("rate", 1, "marker-visitor-1") {
		t.Fatal("marker must be present after SetMarker")
	}
	// Same subject, different visitor and different kind stay independent.
	if HasMarker("rate", 1, "marker-visitor-2") {
		t.Error("markers must be per visitor")
	}
	if HasMarker("post-vote", 1, "marker-visitor-1") {
		t.Error("markers must be per kind")
	}
}

func TestTokenBlacklist(t *testing.T) {
	token := "blacklist-test-token"
	if IsTokenBlacklisted(token) {
		t.Fatal("token must not start blacklisted")
	}
	BlacklistToken(token, time.Now().Add(time.Hour))
	if !IsTokenBlacklisted(token) {
		t.Fatal("token must be blacklisted after BlacklistToken")
	}

	expired := "blacklist-expired-token"
	BlacklistToken(expired, time.Now().Add(-time.Minute))
	if IsTokenBlacklisted(expired) {
		t.Error("expired blacklist entries must not match")
	}
}

func TestOAuthStateSingleUse(t *testing.T) {
	SaveState("state-abc", time.Minute)
	if !ConsumeState("state-abc") {
		t.Fatal("saved state must validate once")
	}
	if ConsumeState("state-abc") {
		t.Error("state must not validate twice")
	}
	if ConsumeState("never-saved") {
		t.Error("unknown state must not validate")
	}
}

func TestSanitizeStripsScripts(t *testing.T) {
	out := Sanitize(`hello <script>alert(1)</script><b>world</b>`)
	if strings.Contains(out, "script") {
		t.Errorf("script tag survived sanitization: %q", out)
	}
	if !strings.Contains(out, "world") {
		t.Errorf("benign content lost: %q", out)
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("anyrate@6677")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if !CheckPassword(hash, "anyrate@6677") {
		t.Error("correct password rejected")
	}
	if CheckPassword(hash, "wrong") {
		t.Error("wrong password accepted")
	}
}
