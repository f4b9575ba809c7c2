package authz

import "context"

// Outcome is the tri-state result of one authorization check.
type Outcome int

const (
	Abstain Outcome = iota
	Granted
	Denied
)

func (o Outcome) String() string {
	switch o {
	case Granted:
		return "granted"
	case Denied:
		return "denied"
	default:
		return "abstain"
	}
}

// Decision is produced once per check and never mutated afterwards.
type Decision struct {
	Outcome Outcome
	Reason  string
}

// Allowed reports whether the call may proceed. Abstaining is a denial.
func (d Decision) Allowed() bool { return d.Outcome == Granted }

func Grant() Decision { return Decision{Outcome: Granted} }

func Deny(reason string) Decision { return Decision{Outcome: Denied, Reason: reason} }

func AbstainWith(reason string) Decision { return Decision{Outcome: Abstain, Reason: reason} }

// Request asks whether Subject holds Relation on Object. It backs the
// hasPermission expression function.
type Request struct {
	Subject  string         // e.g. "user:alice"
	Relation string         // e.g. "read", "delete"
	Object   string         // e.g. "document:42"
	Context  map[string]any // optional: constraints passed to conditions
}

// Authorizer evaluates object-level permissions.
type Authorizer interface {
	Check(ctx context.Context, req Request) (Decision, error)
}
