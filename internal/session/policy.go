package session

import (
	"fmt"
	"time"

	"github.com/better-wallet/controller/pkg/types"
)

// Decision is the outcome of evaluating a call batch against a session.
type Decision int

const (
	// DecisionDeny routes the batch to the owner.
	DecisionDeny Decision = iota
	// DecisionAllow lets the session key sign the batch.
	DecisionAllow
)

func (d Decision) String() string {
	if d == DecisionAllow {
		return "allow"
	}
	return "deny"
}

// Result carries the decision and a human readable reason.
type Result struct {
	Decision Decision
	Reason   string
}

// Allowed reports whether the batch may be session-signed.
func (r Result) Allowed() bool {
	return r.Decision == DecisionAllow
}

// Policy evaluates batches against a stored session.
//
// Expiry is enforced on-chain. By default a present but expired session is
// still reported usable and the chain rejects the transaction; CheckExpiry
// opts into denying it client-side.
type Policy struct {
	CheckExpiry bool
	Now         func() time.Time
}

// Evaluate returns DecisionAllow iff every call in the batch is allowed (and,
// with CheckExpiry, the session has not expired).
func (p Policy) Evaluate(s *Session, calls []types.Call) Result {
	if s == nil {
		return Result{Decision: DecisionDeny, Reason: "no session"}
	}

	if p.CheckExpiry {
		now := time.Now
		if p.Now != nil {
			now = p.Now
		}
		if s.IsExpired(now()) {
			return Result{Decision: DecisionDeny, Reason: fmt.Sprintf("session expired at %d", s.ExpiresAt)}
		}
	}

	for i, call := range calls {
		if !s.IsCallAllowed(call) {
			return Result{
				Decision: DecisionDeny,
				Reason:   fmt.Sprintf("call %d (%s:%s) not in allowlist", i, call.To, call.Selector),
			}
		}
	}

	return Result{Decision: DecisionAllow, Reason: "all calls allowed"}
}
