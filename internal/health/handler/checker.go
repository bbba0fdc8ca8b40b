// Package handler serves liveness and readiness over HTTP and the standard gRPC health protocol.
package handler

import (
	"context"
	"fmt"
	"time"
)

const defaultCheckTimeout = 2 * time.Second

// Pinger is used to check DB connectivity for readiness (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker is used to check the revocation policy engine for readiness.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Checker runs the readiness checks. Nil dependencies are skipped.
type Checker struct {
	db      Pinger
	policy  PolicyChecker
	timeout time.Duration
}

// NewChecker returns a Checker over the given dependencies.
func NewChecker(db Pinger, policy PolicyChecker) *Checker {
	return &Checker{db: db, policy: policy, timeout: defaultCheckTimeout}
}

// Ready returns nil when every configured dependency answers within the timeout.
func (c *Checker) Ready(ctx context.Context) error {
	if c == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if c.db != nil {
		if err := c.db.PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if c.policy != nil {
		if err := c.policy.HealthCheck(ctx); err != nil {
			return fmt.Errorf("policy: %w", err)
		}
	}
	return nil
}
