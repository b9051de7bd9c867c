package auth

import (
	"testing"
	"time"
)

func TestSignAndParse(t *testing.T) {
	ts := TokenService{
		Secret:   []byte("test-secret"),
		Issuer:   "animehub-test",
		Duration: time.Hour,
	}

	user := &User{
		ID:           "u1",
		Username:     "kira",
		Email:        "kira@example.com",
		TokenVersion: 3,
	}

	token, exp, err := ts.Sign(user)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if time.Until(exp) < 55*time.Minute {
		t.Fatalf("unexpected expiry %v", exp)
	}

	claims, err := ts.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != "u1" || claims.Username != "kira" || claims.TokenVersion != 3 {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	ts := TokenService{Secret: []byte("secret-a"), Duration: time.Hour}
	token, _, err := ts.Sign(&User{ID: "u1"})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	other := TokenService{Secret: []byte("secret-b"), Duration: time.Hour}
	if _, err := other.Parse(token); err == nil {
		t.Fatal("token signed with a different secret must be rejected")
	}
}

func TestParseRejectsExpired(t *testing.T) {
	ts := TokenService{Secret: []byte("secret"), Duration: -time.Minute}
	token, _, err := ts.Sign(&User{ID: "u1"})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ts.Parse(token); err == nil {
		t.Fatal("expired token must be rejected")
	}
}
