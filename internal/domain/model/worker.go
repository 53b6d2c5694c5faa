package model

import "time"

// Worker is a registered build machine.
type Worker struct {
	ID             int64
	Name           string
	IP             *string
	LastOnlineDate time.Time
	RecordCreated  time.Time
}

// Online reports whether the worker heartbeated within threshold.
func (w Worker) Online(now time.Time, threshold time.Duration) bool {
	return now.Sub(w.LastOnlineDate) <= threshold
}

// AllowsAddr reports whether calls from addr are accepted.
func (w Worker) AllowsAddr(addr string) bool {
	if w.IP == nil || *w.IP == "" {
		return true
	}
	return *w.IP == addr
}
