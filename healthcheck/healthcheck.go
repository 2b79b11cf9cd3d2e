// Package healthcheck provides memory.HealthChecker implementations for the
// services a memory store depends on, and a gRPC health publisher so other
// processes can probe this one.
package healthcheck

import (
	"context"
	"errors"

	"github.com/becomeliminal/nim-memory/memory"
)

// Func adapts a function to memory.HealthChecker.
type Func func(ctx context.Context) error

// HealthCheck calls f.
func (f Func) HealthCheck(ctx context.Context) error {
	return f(ctx)
}

// All passes only if every checker passes. Nil checkers are skipped.
func All(checkers ...memory.HealthChecker) memory.HealthChecker {
	return Func(func(ctx context.Context) error {
		var errs []error
		for _, c := range checkers {
			if c == nil {
				continue
			}
			if err := c.HealthCheck(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}
