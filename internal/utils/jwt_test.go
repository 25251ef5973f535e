package utils

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestCodec(t *testing.T, now *time.Time) *TokenCodec {
	t.Helper()
	tc, err := NewTokenCodec("test-secret", "HS256")
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}
	return tc.WithClock(func() time.Time { return *now })
}

func TestTokenCodecRoundTrip(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tc := newTestCodec(t, &now)

	raw, err := tc.Encode(42, 30*time.Minute, KindAccess)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	cl, err := tc.Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cl.UserID != 42 || cl.Kind != KindAccess {
		t.Fatalf("unexpected claims: %+v", cl)
	}
	if !cl.IssuedAt.Equal(now) {
		t.Fatalf("issued at = %v, want %v", cl.IssuedAt, now)
	}
	if !cl.ExpiresAt.Equal(now.Add(30 * time.Minute)) {
		t.Fatalf("expires at = %v", cl.ExpiresAt)
	}
	if cl.ID == "" {
		t.Fatalf("expected jti")
	}
}

func TestTokenCodecUniquePerIssue(t *testing.T) {
	now := time.Now()
	tc := newTestCodec(t, &now)
	a, _ := tc.Encode(1, time.Minute, KindRefresh)
	b, _ := tc.Encode(1, time.Minute, KindRefresh)
	if a == b {
		t.Fatalf("two tokens issued in the same second must differ")
	}
}

func TestTokenCodecExpired(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tc := newTestCodec(t, &now)

	raw, err := tc.Encode(7, 10*time.Second, KindAccess)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	now = now.Add(9 * time.Second)
	if _, err := tc.Decode(raw); err != nil {
		t.Fatalf("token should still be valid: %v", err)
	}

	now = now.Add(time.Second) // exactly at exp
	if _, err := tc.Decode(raw); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestTokenCodecMalformed(t *testing.T) {
	now := time.Now()
	tc := newTestCodec(t, &now)
	raw, _ := tc.Encode(7, time.Minute, KindAccess)

	other, _ := NewTokenCodec("other-secret", "HS256")
	forged, _ := other.Encode(7, time.Minute, KindAccess)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "7", "exp": now.Add(time.Minute).Unix()})
	noneRaw, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	hs512, _ := NewTokenCodec("test-secret", "HS512")
	wrongAlg, _ := hs512.Encode(7, time.Minute, KindAccess)

	cases := map[string]string{
		"garbage":     "not-a-token",
		"tampered":    raw[:len(raw)-2] + "xx",
		"wrong key":   forged,
		"alg none":    noneRaw,
		"wrong alg":   wrongAlg,
		"empty":       "",
		"extra parts": raw + ".abc",
	}
	for name, tok := range cases {
		if _, err := tc.Decode(tok); !errors.Is(err, ErrMalformedToken) {
			t.Errorf("%s: expected ErrMalformedToken, got %v", name, err)
		}
	}
}

func TestTokenCodecRejectsBadSubject(t *testing.T) {
	now := time.Now()
	tc := newTestCodec(t, &now)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "alice",
		"exp": now.Add(time.Minute).Unix(),
	})
	raw, _ := tok.SignedString([]byte("test-secret"))
	if _, err := tc.Decode(raw); !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("expected ErrMalformedToken, got %v", err)
	}
}

func TestNewTokenCodecValidation(t *testing.T) {
	if _, err := NewTokenCodec("", "HS256"); err == nil {
		t.Fatalf("expected error for empty secret")
	}
	if _, err := NewTokenCodec("s", "RS256"); err == nil {
		t.Fatalf("expected error for asymmetric algorithm")
	}
	tc, _ := NewTokenCodec("s", "HS256")
	if _, err := tc.Encode(1, 0, KindAccess); err == nil {
		t.Fatalf("expected error for zero ttl")
	}
}

func TestHashToken(t *testing.T) {
	h := HashToken("abc")
	if len(h) != 64 || strings.ToLower(h) != h {
		t.Fatalf("unexpected digest %q", h)
	}
	if HashToken("abc") != h || HashToken("abd") == h {
		t.Fatalf("digest must be deterministic and input-sensitive")
	}
}
