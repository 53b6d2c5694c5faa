package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

type claims struct {
	Kind string `json:"kind"`
	jwt.RegisteredClaims
}

// JWTStrategy issues and verifies HS256 tokens.
type JWTStrategy struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewJWTStrategy(secret string, opts Options) *JWTStrategy {
	return &JWTStrategy{secret: []byte(secret), ttl: opts.TTL, now: time.Now}
}

func (s *JWTStrategy) Name() string {
	return "jwt"
}

func (s *JWTStrategy) IssueToken(subject int64, kind string) (string, error) {
	if len(s.secret) == 0 {
		return "", errors.New("jwt secret is empty")
	}
	if kind != KindWorker && kind != KindFrontend {
		return "", fmt.Errorf("unknown token kind %q", kind)
	}

	now := s.now()
	c := claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  strconv.FormatInt(subject, 10),
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if s.ttl > 0 {
		c.ExpiresAt = jwt.NewNumericDate(now.Add(s.ttl))
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
}

func (s *JWTStrategy) ParseToken(token string) (*Principal, error) {
	if len(s.secret) == 0 {
		return nil, errors.New("jwt secret is empty")
	}

	tok, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", t.Method.Alg())
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}

	c, ok := tok.Claims.(*claims)
	if !ok {
		return nil, ErrInvalidToken
	}

	kind := strings.ToLower(c.Kind)
	if kind != KindWorker && kind != KindFrontend {
		return nil, ErrInvalidToken
	}

	var subject int64
	if c.Subject != "" {
		subject, err = strconv.ParseInt(c.Subject, 10, 64)
		if err != nil {
			return nil, ErrInvalidToken
		}
	}
	if kind == KindWorker && subject <= 0 {
		return nil, ErrInvalidToken
	}

	return &Principal{Subject: subject, Kind: kind}, nil
}
