package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestIssueAndVerify(t *testing.T) {
	issuer := NewIssuer("secret", time.Hour)
	token, claims, err := issuer.Issue("usr_1", "Avery", "editor")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if claims.JTI == "" {
		t.Fatal("Issue() left JTI empty")
	}
	parsed, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if parsed.Sub != "usr_1" || parsed.Name != "Avery" || parsed.Role != "editor" || parsed.JTI != claims.JTI {
		t.Fatalf("unexpected claims: %+v", parsed)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	issuer := NewIssuer("secret", time.Minute)
	token, _, err := issuer.Issue("usr_1", "Avery", "editor")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	issuer.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := issuer.Verify(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("Verify() error = %v, want ErrExpiredToken", err)
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	issuer := NewIssuer("secret", time.Hour)
	token, _, err := issuer.Issue("usr_1", "Avery", "viewer")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	forged, _ := IssueToken([]byte("other"), Claims{Sub: "usr_1", Name: "Avery", Role: "admin", JTI: "x", Exp: time.Now().Add(time.Hour).Unix()})
	payload, _, _ := strings.Cut(forged, ".")
	_, signature, _ := strings.Cut(token, ".")

	for name, candidate := range map[string]string{
		"wrong secret":  forged,
		"swapped body":  payload + "." + signature,
		"no signature":  payload,
		"extra segment": token + ".x",
	} {
		if _, err := issuer.Verify(candidate); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("%s: Verify() error = %v, want ErrInvalidToken", name, err)
		}
	}
}
