package utils // package utils provides helper functions for token creation and hashing

import (
	"crypto/sha256" // SHA-256 hashing for token keys and fingerprints
	"encoding/hex"  // hex encoding of digests
	"errors"        // sentinel errors for decode failures
	"fmt"           // error wrapping
	"strconv"       // subject <-> user id conversion
	"time"          // expirations

	"github.com/golang-jwt/jwt/v5" // JWT library for creating and parsing signed tokens
	"github.com/google/uuid"       // unique token ids (jti)
)

// TokenKind distinguishes the purposes a signed token can serve. A token
// of one kind is never accepted where another kind is expected.
type TokenKind string

const (
	KindAccess     TokenKind = "access"
	KindRefresh    TokenKind = "refresh"
	KindActivation TokenKind = "activation"
)

// Decode failures. Callers branch on these: an expired token may be
// retried after a refresh, a malformed one is rejected outright.
var (
	ErrExpiredToken   = errors.New("token expired")
	ErrMalformedToken = errors.New("token malformed")
)

// Claims is the decoded content of a token issued by TokenCodec.
type Claims struct {
	UserID    uint64
	Kind      TokenKind
	ID        string // jti, unique per issued token
	Binding   string // optional state fingerprint (activation tokens)
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Remaining returns how long the token stays valid after now. It is
// never negative.
func (c Claims) Remaining(now time.Time) time.Duration {
	if d := c.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

type tokenClaims struct {
	Kind    string `json:"kind"`
	Binding string `json:"bnd,omitempty"`
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies tokens with a shared secret. The signing
// algorithm is fixed when the codec is built; tokens using any other
// algorithm fail to decode.
type TokenCodec struct {
	secret []byte
	method jwt.SigningMethod
	now    func() time.Time
}

// NewTokenCodec builds a codec for the given HMAC algorithm name
// (HS256, HS384 or HS512).
func NewTokenCodec(secret, algorithm string) (*TokenCodec, error) {
	if secret == "" {
		return nil, errors.New("token codec: empty secret")
	}
	m := jwt.GetSigningMethod(algorithm)
	if _, ok := m.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("token codec: unsupported algorithm %q", algorithm)
	}
	return &TokenCodec{secret: []byte(secret), method: m, now: time.Now}, nil
}

// WithClock returns a copy of the codec that reads the current time from
// now. It is used by tests to move time forward.
func (tc *TokenCodec) WithClock(now func() time.Time) *TokenCodec {
	cp := *tc
	cp.now = now
	return &cp
}

// Now returns the codec's notion of the current time.
func (tc *TokenCodec) Now() time.Time { return tc.now() }

// Encode issues a signed token for userID that expires after ttl.
func (tc *TokenCodec) Encode(userID uint64, ttl time.Duration, kind TokenKind) (string, error) {
	return tc.EncodeBound(userID, ttl, kind, "")
}

// EncodeBound is Encode with a binding fingerprint. Decoders compare the
// binding against the current state of the subject, which lets a token
// die as soon as that state changes.
func (tc *TokenCodec) EncodeBound(userID uint64, ttl time.Duration, kind TokenKind, binding string) (string, error) {
	if ttl <= 0 {
		return "", errors.New("token codec: ttl must be positive")
	}
	now := tc.now().UTC()
	claims := tokenClaims{
		Kind:    string(kind),
		Binding: binding,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(userID, 10),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(tc.method, claims).SignedString(tc.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Decode verifies the signature and expiry of raw and returns its claims.
// It fails with ErrExpiredToken once now >= exp and with
// ErrMalformedToken for any structural or signature problem.
func (tc *TokenCodec) Decode(raw string) (Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{tc.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tc.now),
	)
	var tcl tokenClaims
	tok, err := parser.ParseWithClaims(raw, &tcl, func(t *jwt.Token) (interface{}, error) {
		return tc.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpiredToken
		}
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if !tok.Valid {
		return Claims{}, ErrMalformedToken
	}
	uid, err := strconv.ParseUint(tcl.Subject, 10, 64)
	if err != nil || uid == 0 {
		return Claims{}, fmt.Errorf("%w: bad subject", ErrMalformedToken)
	}
	out := Claims{
		UserID:  uid,
		Kind:    TokenKind(tcl.Kind),
		ID:      tcl.ID,
		Binding: tcl.Binding,
	}
	if tcl.IssuedAt != nil {
		out.IssuedAt = tcl.IssuedAt.Time
	}
	out.ExpiresAt = tcl.ExpiresAt.Time
	return out, nil
}

// HashToken returns the SHA-256 hex digest of a raw token. Revocation
// entries are keyed by the digest so raw tokens never sit in Redis.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
