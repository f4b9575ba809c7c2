package method

import (
	"context"
	"fmt"
	"strings"

	"github.com/TwigBush/methodsec/internal/authz"
	"github.com/TwigBush/methodsec/internal/expression"
)

type Kind string

const (
	KindPreFilter     Kind = "pre-filter"
	KindPreAuthorize  Kind = "pre-authorize"
	KindSecured       Kind = "secured"
	KindJSR250        Kind = "jsr250"
	KindPostAuthorize Kind = "post-authorize"
	KindPostFilter    Kind = "post-filter"
)

type Phase int

const (
	Before Phase = iota
	After
)

// Stage is one check point around the target. The set of stages is closed:
// only this package builds them.
type Stage interface {
	Kind() Kind
	Phase() Phase
	Apply(ctx context.Context, inv *Invocation) (authz.Decision, error)
}

// shared is the read-only state every stage of a pipeline evaluates against.
type shared struct {
	cfg Config
}

func (s *shared) root(inv *Invocation) *expression.Root {
	return &expression.Root{
		Identity:     inv.Identity,
		Trust:        s.cfg.Trust,
		Method:       inv.Method.Name,
		Args:         inv.namedArgs(),
		ReturnObject: inv.Result,
		Permissions:  s.cfg.Permissions,
		RolePrefix:   s.cfg.RolePrefix,
	}
}

const (
	reasonNoIdentity       = "no identity in context"
	reasonForeignAnonymous = "anonymous identity not issued here"

	// stageIdentity labels denials raised before any stage runs.
	stageIdentity = "identity"
)

type preFilter struct {
	*shared
	expr   expression.Expression
	target int // -1 when resolved per call
}

func (s *preFilter) Kind() Kind   { return KindPreFilter }
func (s *preFilter) Phase() Phase { return Before }

func (s *preFilter) Apply(ctx context.Context, inv *Invocation) (authz.Decision, error) {
	idx, err := s.resolveTarget(inv)
	if err != nil {
		return authz.Decision{}, err
	}
	root := s.root(inv)
	filtered, err := filterCollection(inv.Args[idx], func(el any) (bool, error) {
		r := *root
		r.FilterObject = el
		return s.expr.Evaluate(ctx, &r)
	})
	if err != nil {
		return authz.Decision{}, err
	}
	inv.Args[idx] = filtered
	return authz.Grant(), nil
}

func (s *preFilter) resolveTarget(inv *Invocation) (int, error) {
	if s.target >= 0 {
		if s.target >= len(inv.Args) {
			return 0, fmt.Errorf("filter target %d out of range", s.target)
		}
		return s.target, nil
	}
	if len(inv.Args) == 1 {
		return 0, nil
	}
	found := -1
	for i, a := range inv.Args {
		if !isCollection(a) {
			continue
		}
		if found >= 0 {
			return 0, fmt.Errorf("several collection arguments, name a filter target")
		}
		found = i
	}
	if found < 0 {
		return 0, fmt.Errorf("no collection argument to filter")
	}
	return found, nil
}

type preAuthorize struct {
	*shared
	expr expression.Expression
}

func (s *preAuthorize) Kind() Kind   { return KindPreAuthorize }
func (s *preAuthorize) Phase() Phase { return Before }

func (s *preAuthorize) Apply(ctx context.Context, inv *Invocation) (authz.Decision, error) {
	return evaluate(ctx, s.expr, s.root(inv))
}

type secured struct {
	authorities []string
}

func (s *secured) Kind() Kind   { return KindSecured }
func (s *secured) Phase() Phase { return Before }

func (s *secured) Apply(_ context.Context, inv *Invocation) (authz.Decision, error) {
	if inv.Identity == nil {
		return authz.Deny(reasonNoIdentity), nil
	}
	for _, a := range s.authorities {
		if inv.Identity.HasAuthority(a) {
			return authz.Grant(), nil
		}
	}
	return authz.Deny("requires one of " + strings.Join(s.authorities, ", ")), nil
}

type jsr250 struct {
	*shared
	mode  RoleMode
	roles []string // already prefixed
}

func (s *jsr250) Kind() Kind   { return KindJSR250 }
func (s *jsr250) Phase() Phase { return Before }

func (s *jsr250) Apply(_ context.Context, inv *Invocation) (authz.Decision, error) {
	id := inv.Identity
	if id == nil {
		return authz.Deny(reasonNoIdentity), nil
	}
	if !s.cfg.Trust.IsAuthenticated(id) {
		return authz.Deny("unauthenticated"), nil
	}
	switch s.mode {
	case PermitAll:
		return authz.Grant(), nil
	case DenyAll:
		return authz.Deny("deny all"), nil
	case RolesAll:
		for _, r := range s.roles {
			if !id.HasAuthority(r) {
				return authz.Deny("missing role " + r), nil
			}
		}
		return authz.Grant(), nil
	case RolesAny:
		for _, r := range s.roles {
			if id.HasAuthority(r) {
				return authz.Grant(), nil
			}
		}
		return authz.Deny("requires one of " + strings.Join(s.roles, ", ")), nil
	}
	return authz.AbstainWith("unknown role mode " + string(s.mode)), nil
}

type postAuthorize struct {
	*shared
	expr expression.Expression
}

func (s *postAuthorize) Kind() Kind   { return KindPostAuthorize }
func (s *postAuthorize) Phase() Phase { return After }

func (s *postAuthorize) Apply(ctx context.Context, inv *Invocation) (authz.Decision, error) {
	return evaluate(ctx, s.expr, s.root(inv))
}

type postFilter struct {
	*shared
	expr expression.Expression
}

func (s *postFilter) Kind() Kind   { return KindPostFilter }
func (s *postFilter) Phase() Phase { return After }

func (s *postFilter) Apply(ctx context.Context, inv *Invocation) (authz.Decision, error) {
	root := s.root(inv)
	filtered, err := filterCollection(inv.Result, func(el any) (bool, error) {
		r := *root
		r.FilterObject = el
		return s.expr.Evaluate(ctx, &r)
	})
	if err != nil {
		return authz.Decision{}, err
	}
	inv.Result = filtered
	return authz.Grant(), nil
}

func evaluate(ctx context.Context, e expression.Expression, root *expression.Root) (authz.Decision, error) {
	ok, err := e.Evaluate(ctx, root)
	if err != nil {
		return authz.Decision{}, err
	}
	if !ok {
		if root.Identity == nil {
			return authz.Deny(reasonNoIdentity), nil
		}
		return authz.Deny("expression evaluated false: " + e.String()), nil
	}
	return authz.Grant(), nil
}
