package servicetoken

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"pagetext/internal/util"
)

const (
	// DefaultTokenTTL is the lifetime of an issued internal token.
	DefaultTokenTTL = 60 * time.Second
	// DefaultLeeway is the clock skew tolerated by Verify.
	DefaultLeeway = 15 * time.Second
	// DefaultKeyID is the kid header used when none is configured.
	DefaultKeyID = "internal-active"
)

// Signer issues short-lived RS256 tokens for calls between services.
type Signer struct {
	issuer string
	ttl    time.Duration
	keyID  string
	key    *rsa.PrivateKey
}

type SignerOptions struct {
	PrivateKeyPath string
	KeyID          string
	Issuer         string
	TTL            time.Duration
}

func NewSigner(opts SignerOptions) (*Signer, error) {
	issuer := strings.TrimSpace(opts.Issuer)
	if issuer == "" {
		return nil, errors.New("service token issuer is required")
	}
	path := strings.TrimSpace(opts.PrivateKeyPath)
	if path == "" {
		return nil, errors.New("service token private key path is required")
	}
	key, err := loadPrivateKey(path)
	if err != nil {
		return nil, fmt.Errorf("load internal jwt private key: %w", err)
	}
	s := &Signer{issuer: issuer, ttl: opts.TTL, keyID: strings.TrimSpace(opts.KeyID), key: key}
	if s.ttl <= 0 {
		s.ttl = DefaultTokenTTL
	}
	if s.keyID == "" {
		s.keyID = DefaultKeyID
	}
	return s, nil
}

// Sign issues a token addressed to audience.
func (s *Signer) Sign(audience string) (string, error) {
	audience = strings.TrimSpace(audience)
	if audience == "" {
		return "", errors.New("service token audience is required")
	}
	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   s.issuer,
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		ID:        util.NewID(),
	})
	token.Header["kid"] = s.keyID
	return token.SignedString(s.key)
}
