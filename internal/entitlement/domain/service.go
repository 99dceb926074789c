package domain

import (
	"context"
	"errors"

	usagedomain "github.com/smallbiznis/htmlpdf/internal/usage/domain"
)

// Resolver decides whether a render may run and how it is billed.
type Resolver interface {
	Decide(ctx context.Context, userID string) (*Decision, error)
}

// Reason names the rule that produced a decision.
type Reason string

const (
	ReasonNewUser        Reason = "new_user"
	ReasonWindowRollover Reason = "window_rollover"
	ReasonSubscription   Reason = "subscription"
	ReasonWithinFreeTier Reason = "within_free_tier"
	ReasonFreeTierSpent  Reason = "free_tier_exhausted"
)

type Decision struct {
	Admitted    bool
	Entitlement usagedomain.Entitlement
	CostCents   int
	Reason      Reason
	// State is the metering row the decision was made against.
	State *usagedomain.UserMetering
}

func (d *Decision) Billable() bool {
	return d != nil && d.Entitlement.Billable()
}

var ErrInvalidUser = errors.New("invalid_user")
