package usecase

import (
	"strings"

	domainErrors "github.com/wrwrabbit/apk-customizer-bot/internal/domain/errors"
)

const maxWorkerNameLength = 64

// ValidatePriority checks an explicit priority. Zero is accepted only where the caller derives one.
func ValidatePriority(priority int, allowDerived bool) error {
	if priority == 0 && allowDerived {
		return nil
	}
	if priority < 1 {
		return domainErrors.ErrInvalidPriority
	}
	return nil
}

// ValidateWorkerName checks a worker name before registration.
func ValidateWorkerName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxWorkerNameLength {
		return domainErrors.ErrInvalidWorker
	}
	for _, r := range name {
		if r <= ' ' || r == 0x7f {
			return domainErrors.ErrInvalidWorker
		}
	}
	return nil
}
