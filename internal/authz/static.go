package authz

import "context"

// DenyAll refuses every permission check. It is the default when no
// permission backend is configured.
type DenyAll struct{}

func (DenyAll) Check(context.Context, Request) (Decision, error) {
	return Deny("no_permission_evaluator"), nil
}

// Static answers every check the same way. Useful for local runs and tests.
type Static struct {
	AlwaysAllow bool
}

func (s *Static) Check(ctx context.Context, req Request) (Decision, error) {
	if s.AlwaysAllow {
		return Grant(), nil
	}
	return Deny("static_deny"), nil
}
