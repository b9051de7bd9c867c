package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	secret := "webhook-secret"
	body := []byte(`{"event":"playback.stop"}`)

	if !VerifySignature(secret, body, sign(secret, body)) {
		t.Fatal("valid signature rejected")
	}
	if VerifySignature(secret, body, sign("wrong-secret", body)) {
		t.Fatal("signature with wrong secret accepted")
	}
	if VerifySignature(secret, []byte(`tampered`), sign(secret, body)) {
		t.Fatal("signature over different body accepted")
	}
	if VerifySignature(secret, body, "") {
		t.Fatal("missing signature accepted")
	}
	if VerifySignature(secret, body, "md5=abcdef") {
		t.Fatal("wrong scheme accepted")
	}
}

func TestVerifySignatureEmptySecretSkips(t *testing.T) {
	if !VerifySignature("", []byte("anything"), "") {
		t.Fatal("empty secret must disable verification")
	}
}
