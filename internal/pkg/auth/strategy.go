package auth

import (
	"errors"
	"time"
)

// Token kinds issued by the controller.
const (
	KindWorker   = "worker"
	KindFrontend = "frontend"
)

var ErrInvalidToken = errors.New("invalid token")

// Principal identifies the caller behind a bearer token. Subject is the
// worker id for worker tokens and zero for frontend tokens.
type Principal struct {
	Subject int64
	Kind    string
}

type Strategy interface {
	IssueToken(subject int64, kind string) (string, error)
	ParseToken(token string) (*Principal, error)
	Name() string
}

// Options tunes issued tokens. A non-positive TTL issues tokens without expiry.
type Options struct {
	TTL time.Duration
}
