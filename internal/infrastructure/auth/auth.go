// Package auth verifies caller identity: HS256 bearer tokens for users and a
// bcrypt-hashed API key for administrators.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// BEARER TOKENS
// ══════════════════════════════════════════════════════════════════════════════

// DefaultTTL is the lifetime of tokens minted without an explicit TTL.
const DefaultTTL = time.Hour

var (
	ErrMissingSecret = errors.New("auth: token secret is empty")
	ErrInvalidToken  = errors.New("auth: invalid token")
)

// Tokens signs and verifies HS256 tokens whose subject is a user UUID.
type Tokens struct {
	secret []byte
	issuer string
	leeway time.Duration
	now    func() time.Time
}

// NewTokens creates a token service. issuer may be empty, in which case the
// iss claim is neither set nor checked.
func NewTokens(secret, issuer string) (*Tokens, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return &Tokens{
		secret: []byte(secret),
		issuer: issuer,
		leeway: 30 * time.Second,
		now:    time.Now,
	}, nil
}

// Issue mints a token for userID valid for ttl.
func (t *Tokens) Issue(userID string, ttl time.Duration) (string, error) {
	id, err := shared.NewUserID(userID)
	if err != nil {
		return "", err
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	now := t.now()
	claims := jwt.RegisteredClaims{
		Subject:   id.String(),
		Issuer:    t.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Verify parses a token and returns the user it identifies.
// Every failure wraps shared.ErrUnauthenticated.
func (t *Tokens) Verify(token string) (shared.UserID, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(t.leeway),
		jwt.WithTimeFunc(t.now),
	}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, opts...)
	if err != nil {
		return "", shared.ErrUnauthenticated.Wrap(fmt.Errorf("%w: %v", ErrInvalidToken, err))
	}

	userID, err := shared.NewUserID(claims.Subject)
	if err != nil {
		return "", shared.ErrUnauthenticated.Wrap(fmt.Errorf("%w: subject: %v", ErrInvalidToken, err))
	}
	return userID, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN API KEY
// ══════════════════════════════════════════════════════════════════════════════

// AdminKey checks administrator API keys against a bcrypt hash.
type AdminKey struct {
	hash []byte
}

// NewAdminKey wraps a bcrypt hash. An empty hash yields a key that rejects
// everything.
func NewAdminKey(hash string) (*AdminKey, error) {
	if hash == "" {
		return &AdminKey{}, nil
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("auth: admin key hash: %w", err)
	}
	return &AdminKey{hash: []byte(hash)}, nil
}

// Enabled reports whether a hash is configured.
func (k *AdminKey) Enabled() bool {
	return k != nil && len(k.hash) > 0
}

// Verify reports whether key matches the configured hash.
func (k *AdminKey) Verify(key string) bool {
	if !k.Enabled() || key == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(k.hash, []byte(key)) == nil
}

// HashAdminKey returns the bcrypt hash to configure for key.
func HashAdminKey(key string) (string, error) {
	if key == "" {
		return "", errors.New("auth: admin key is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash admin key: %w", err)
	}
	return string(hash), nil
}
