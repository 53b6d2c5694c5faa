package test

import (
	"context"
	"fmt"
	"sync"

	domainErrors "github.com/wrwrabbit/apk-customizer-bot/internal/domain/errors"
	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/model"
	pkgAuth "github.com/wrwrabbit/apk-customizer-bot/internal/pkg/auth"
)

// HasherStub provides deterministic user id hashing for tests.
type HasherStub struct{}

// Hash returns a readable key for userID.
func (HasherStub) Hash(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}

// StrategyStub issues and parses tokens via function overrides.
type StrategyStub struct {
	IssueFn func(int64, string) (string, error)
	ParseFn func(string) (*pkgAuth.Principal, error)
	NameVal string
}

// IssueToken returns deterministic tokens for tests.
func (s StrategyStub) IssueToken(subject int64, kind string) (string, error) {
	if s.IssueFn != nil {
		return s.IssueFn(subject, kind)
	}
	return fmt.Sprintf("%s:%d", kind, subject), nil
}

// ParseToken parses previously issued token strings.
func (s StrategyStub) ParseToken(token string) (*pkgAuth.Principal, error) {
	if s.ParseFn != nil {
		return s.ParseFn(token)
	}
	var (
		kind    string
		subject int64
	)
	if _, err := fmt.Sscanf(token, "worker:%d", &subject); err == nil {
		kind = pkgAuth.KindWorker
	} else if token == "frontend:0" {
		kind = pkgAuth.KindFrontend
	} else {
		return nil, pkgAuth.ErrInvalidToken
	}
	return &pkgAuth.Principal{Subject: subject, Kind: kind}, nil
}

// Name returns the strategy identifier used in tests.
func (s StrategyStub) Name() string {
	if s.NameVal != "" {
		return s.NameVal
	}
	return "stub"
}

// WorkerAuthStub authenticates a fixed set of workers and records heartbeats.
type WorkerAuthStub struct {
	StrategyStub
	Workers      map[int64]*model.Worker
	Err          error
	HeartbeatErr error

	mu         sync.Mutex
	heartbeats []int64
}

// AuthenticateWorker mirrors the registry rules: unknown worker or foreign address is unauthorized.
func (s *WorkerAuthStub) AuthenticateWorker(_ context.Context, id int64, remoteAddr string) (*model.Worker, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	w, ok := s.Workers[id]
	if !ok || !w.AllowsAddr(remoteAddr) {
		return nil, domainErrors.ErrUnauthorized
	}
	return w, nil
}

// Heartbeat records the worker id.
func (s *WorkerAuthStub) Heartbeat(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heartbeats = append(s.heartbeats, id)
	return s.HeartbeatErr
}

// Heartbeats returns recorded heartbeat ids.
func (s *WorkerAuthStub) Heartbeats() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.heartbeats...)
}

var _ pkgAuth.Strategy = StrategyStub{}
var _ pkgAuth.UserHasher = HasherStub{}
