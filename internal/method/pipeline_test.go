package method

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/go-test/deep"
	"github.com/sourcegraph/conc"
	"go.uber.org/multierr"

	"github.com/TwigBush/methodsec/internal/authz"
	"github.com/TwigBush/methodsec/internal/events"
	"github.com/TwigBush/methodsec/internal/identity"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return nil
}

func (r *recorder) snapshot() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

func ctxWith(id *identity.Identity) context.Context {
	h := identity.NewHolder()
	if id != nil {
		h.Set(id)
	}
	return identity.WithHolder(context.Background(), h)
}

func allStyles() Config {
	cfg := DefaultConfig()
	cfg.SecuredEnabled = true
	cfg.JSR250Enabled = true
	return cfg
}

func mustPipeline(t *testing.T, cfg Config, methods ...Method) *Pipeline {
	t.Helper()
	p, err := New(cfg, methods...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

// countingTarget returns its first argument and counts calls.
func countingTarget(calls *int) Target {
	return func(ctx context.Context, inv *Invocation) (any, error) {
		*calls++
		if len(inv.Args) == 0 {
			return nil, nil
		}
		return inv.Args[0], nil
	}
}

func TestPreAuthorize_GrantedEndToEnd(t *testing.T) {
	p := mustPipeline(t, DefaultConfig(), Method{
		Name:       "Orders.Get",
		Params:     []string{"id"},
		Attributes: Attributes{PreAuthorize: "hasAuthority('ROLE_A')"},
	})
	calls := 0
	got, err := p.Invoke(ctxWith(identity.NewAuthenticated("user", "ROLE_A")), "Orders.Get", []any{"o-1"}, countingTarget(&calls))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got != "o-1" || calls != 1 {
		t.Fatalf("got %v after %d calls, want o-1 after 1", got, calls)
	}
	if s := p.Stats(); s.Granted != 1 || s.Denied != 0 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestPreAuthorize_DeniedNeverInvokes(t *testing.T) {
	rec := &recorder{}
	cfg := DefaultConfig()
	cfg.Events = rec
	p := mustPipeline(t, cfg, Method{
		Name:       "Orders.Delete",
		Params:     []string{"id"},
		Attributes: Attributes{PreAuthorize: "hasRole('ADMIN')", PostAuthorize: "true"},
	})
	calls := 0
	_, err := p.Invoke(ctxWith(identity.NewAuthenticated("user", "ROLE_USER")), "Orders.Delete", []any{"o-1"}, countingTarget(&calls))
	ade, ok := authz.IsAccessDenied(err)
	if !ok {
		t.Fatalf("err = %v, want access denied", err)
	}
	if ade.Stage != string(KindPreAuthorize) || ade.Method != "Orders.Delete" {
		t.Fatalf("denial = %+v", ade)
	}
	if calls != 0 {
		t.Fatalf("target ran %d times, want 0", calls)
	}
	evs := rec.snapshot()
	if len(evs) != 1 || evs[0].Outcome != "denied" || evs[0].Principal != "user" {
		t.Fatalf("events = %+v", evs)
	}
}

func TestPostAuthorize_DeniedAfterSideEffects(t *testing.T) {
	p := mustPipeline(t, DefaultConfig(), Method{
		Name:   "Docs.Get",
		Params: []string{"id"},
		Attributes: Attributes{
			PreAuthorize:  "isAuthenticated()",
			PostAuthorize: "returnObject.Owner == principal",
		},
	})
	type doc struct{ Owner string }
	sideEffects := 0
	target := func(ctx context.Context, inv *Invocation) (any, error) {
		sideEffects++
		return doc{Owner: "bob"}, nil
	}
	got, err := p.Invoke(ctxWith(identity.NewAuthenticated("alice")), "Docs.Get", []any{"d-1"}, target)
	if sideEffects != 1 {
		t.Fatalf("side effects = %d, want 1", sideEffects)
	}
	if got != nil {
		t.Fatalf("caller observed %v, want nothing", got)
	}
	if ade, ok := authz.IsAccessDenied(err); !ok || ade.Stage != string(KindPostAuthorize) {
		t.Fatalf("err = %v, want post-authorize denial", err)
	}
}

func TestPreFilter_KeepsMatchingElements(t *testing.T) {
	p := mustPipeline(t, DefaultConfig(), Method{
		Name:   "Docs.SaveAll",
		Params: []string{"ids", "note"},
		Attributes: Attributes{
			PreFilter: &Filter{Expr: "filterObject % 2 == 0", Target: "ids"},
		},
	})
	var seen []int
	target := func(ctx context.Context, inv *Invocation) (any, error) {
		seen = inv.Args[0].([]int)
		return len(seen), nil
	}
	original := []int{1, 2, 3, 4, 6}
	got, err := p.Invoke(ctxWith(identity.NewAuthenticated("alice")), "Docs.SaveAll", []any{original, "x"}, target)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if diff := deep.Equal(seen, []int{2, 4, 6}); diff != nil {
		t.Fatalf("filtered args: %v", diff)
	}
	if got != 3 {
		t.Fatalf("got %v, want 3", got)
	}
	if diff := deep.Equal(original, []int{1, 2, 3, 4, 6}); diff != nil {
		t.Fatalf("caller slice mutated: %v", diff)
	}
}

func TestPreFilter_InfersSingleCollection(t *testing.T) {
	p := mustPipeline(t, DefaultConfig(), Method{
		Name:       "Docs.Tag",
		Params:     []string{"owner", "tags"},
		Attributes: Attributes{PreFilter: &Filter{Expr: "filterObject != 'secret'"}},
	})
	var seen []string
	target := func(ctx context.Context, inv *Invocation) (any, error) {
		seen = inv.Args[1].([]string)
		return nil, nil
	}
	_, err := p.Invoke(ctxWith(identity.NewAuthenticated("alice")), "Docs.Tag", []any{"alice", []string{"a", "secret", "b"}}, target)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if diff := deep.Equal(seen, []string{"a", "b"}); diff != nil {
		t.Fatalf("filtered: %v", diff)
	}
}

func TestPreFilter_AmbiguousTarget(t *testing.T) {
	p := mustPipeline(t, DefaultConfig(), Method{
		Name:       "Docs.Merge",
		Params:     []string{"a", "b"},
		Attributes: Attributes{PreFilter: &Filter{Expr: "true"}},
	})
	calls := 0
	_, err := p.Invoke(ctxWith(identity.NewAuthenticated("alice")), "Docs.Merge", []any{[]int{1}, []int{2}}, countingTarget(&calls))
	if err == nil || calls != 0 {
		t.Fatalf("err = %v, calls = %d; want error and no call", err, calls)
	}
	if _, ok := authz.IsAccessDenied(err); ok {
		t.Fatalf("a filter misuse must not look like a denial")
	}
}

func TestPostFilter_Slice(t *testing.T) {
	type doc struct {
		ID    string
		Owner string
	}
	p := mustPipeline(t, DefaultConfig(), Method{
		Name:       "Docs.List",
		Attributes: Attributes{PostFilter: "filterObject.Owner == principal"},
	})
	target := func(ctx context.Context, inv *Invocation) (any, error) {
		return []doc{{"1", "alice"}, {"2", "bob"}, {"3", "alice"}}, nil
	}
	got, err := p.Invoke(ctxWith(identity.NewAuthenticated("alice")), "Docs.List", nil, target)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	want := []doc{{"1", "alice"}, {"3", "alice"}}
	if diff := deep.Equal(got, want); diff != nil {
		t.Fatalf("post filter: %v", diff)
	}
}

func TestPostFilter_Map(t *testing.T) {
	p := mustPipeline(t, DefaultConfig(), Method{
		Name:       "Docs.Index",
		Attributes: Attributes{PostFilter: "filterObject.Value > 1"},
	})
	target := func(ctx context.Context, inv *Invocation) (any, error) {
		return map[string]int{"a": 1, "b": 2, "c": 3}, nil
	}
	got, err := p.Invoke(ctxWith(identity.NewAuthenticated("alice")), "Docs.Index", nil, target)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if diff := deep.Equal(got, map[string]int{"b": 2, "c": 3}); diff != nil {
		t.Fatalf("post filter: %v", diff)
	}
}

func TestTargetFailure_SkipsPostStages(t *testing.T) {
	rec := &recorder{}
	cfg := DefaultConfig()
	cfg.Events = rec
	cfg.PublishGranted = true
	p := mustPipeline(t, cfg, Method{
		Name:       "Docs.Get",
		Attributes: Attributes{PreAuthorize: "permitAll()", PostAuthorize: "denyAll()"},
	})
	boom := errors.New("storage unavailable")
	_, err := p.Invoke(ctxWith(identity.NewAuthenticated("alice")), "Docs.Get", nil, func(context.Context, *Invocation) (any, error) {
		return nil, boom
	})
	if err != boom {
		t.Fatalf("err = %v, want the target error unchanged", err)
	}
	for _, e := range rec.snapshot() {
		if e.Stage == string(KindPostAuthorize) {
			t.Fatalf("post-authorize ran after target failure: %+v", e)
		}
	}
	if s := p.Stats(); s.Failed != 1 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestJSR250_UnauthenticatedAlwaysDenied(t *testing.T) {
	p := mustPipeline(t, allStyles(), Method{
		Name:       "Admin.Reset",
		Attributes: Attributes{Roles: &RoleRule{Mode: RolesAny, Authorities: []string{"ADMIN"}}},
	})
	calls := 0
	id := identity.NewUnauthenticated("mallory", "ROLE_ADMIN")
	_, err := p.Invoke(ctxWith(id), "Admin.Reset", nil, countingTarget(&calls))
	ade, ok := authz.IsAccessDenied(err)
	if !ok || ade.Stage != string(KindJSR250) || ade.Reason != "unauthenticated" {
		t.Fatalf("err = %v, want unauthenticated jsr250 denial", err)
	}
	if calls != 0 {
		t.Fatalf("target ran")
	}
}

func TestJSR250_Modes(t *testing.T) {
	admin := identity.NewAuthenticated("root", "ROLE_ADMIN", "ROLE_OPS")
	user := identity.NewAuthenticated("alice", "ROLE_USER")
	anon := identity.NewAnonymous("k", "anonymousUser", identity.AuthorityList("ROLE_ANONYMOUS"))

	cases := []struct {
		name  string
		rule  RoleRule
		id    *identity.Identity
		allow bool
	}{
		{"any granted", RoleRule{Mode: RolesAny, Authorities: []string{"USER", "ADMIN"}}, admin, true},
		{"any denied", RoleRule{Mode: RolesAny, Authorities: []string{"ADMIN"}}, user, false},
		{"all granted", RoleRule{Mode: RolesAll, Authorities: []string{"ADMIN", "ROLE_OPS"}}, admin, true},
		{"all denied", RoleRule{Mode: RolesAll, Authorities: []string{"ADMIN", "AUDIT"}}, admin, false},
		{"permit all", RoleRule{Mode: PermitAll}, user, true},
		{"permit all anonymous", RoleRule{Mode: PermitAll}, anon, false},
		{"deny all", RoleRule{Mode: DenyAll}, admin, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rule := tc.rule
			p := mustPipeline(t, allStyles(), Method{Name: "M", Attributes: Attributes{Roles: &rule}})
			calls := 0
			_, err := p.Invoke(ctxWith(tc.id), "M", nil, countingTarget(&calls))
			if tc.allow && err != nil {
				t.Fatalf("err = %v, want allow", err)
			}
			if !tc.allow && !errors.Is(err, authz.ErrAccessDenied) {
				t.Fatalf("err = %v, want denial", err)
			}
		})
	}
}

func TestJSR250_AnonymousConfiguredAsAuthenticated(t *testing.T) {
	cfg := allStyles()
	cfg.Trust.AnonymousIsAuthenticated = true
	p := mustPipeline(t, cfg, Method{Name: "Public.Read", Attributes: Attributes{Roles: &RoleRule{Mode: PermitAll}}})
	anon := identity.NewAnonymous("k", "anonymousUser", identity.AuthorityList("ROLE_ANONYMOUS"))
	calls := 0
	if _, err := p.Invoke(ctxWith(anon), "Public.Read", nil, countingTarget(&calls)); err != nil {
		t.Fatalf("err = %v", err)
	}
}

func TestSecured(t *testing.T) {
	p := mustPipeline(t, allStyles(), Method{
		Name:       "Billing.Refund",
		Attributes: Attributes{Secured: []string{"ROLE_BILLING", "ROLE_ADMIN"}},
	})
	calls := 0
	if _, err := p.Invoke(ctxWith(identity.NewAuthenticated("b", "ROLE_BILLING")), "Billing.Refund", nil, countingTarget(&calls)); err != nil {
		t.Fatalf("err = %v", err)
	}
	_, err := p.Invoke(ctxWith(identity.NewAuthenticated("c", "BILLING")), "Billing.Refund", nil, countingTarget(&calls))
	if ade, ok := authz.IsAccessDenied(err); !ok || ade.Stage != string(KindSecured) {
		t.Fatalf("err = %v, want secured denial", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestNoIdentityDenies(t *testing.T) {
	p := mustPipeline(t, allStyles(), Method{
		Name:       "Docs.Get",
		Attributes: Attributes{PreAuthorize: "isAuthenticated()"},
	})
	calls := 0
	_, err := p.Invoke(context.Background(), "Docs.Get", nil, countingTarget(&calls))
	ade, ok := authz.IsAccessDenied(err)
	if !ok || ade.Reason != reasonNoIdentity {
		t.Fatalf("err = %v, want no identity denial", err)
	}
}

// keyVerifier accepts anonymous identities stamped with hash.
type keyVerifier string

func (k keyVerifier) Verify(id *identity.Identity) error {
	if id.KeyHash() != string(k) {
		return errors.New("key hash mismatch")
	}
	return nil
}

func TestForeignAnonymousDeniedBeforeStages(t *testing.T) {
	rec := &recorder{}
	cfg := allStyles()
	cfg.Anonymous = keyVerifier("ours")
	cfg.Events = rec
	p := mustPipeline(t, cfg, Method{
		Name:       "Docs.List",
		Attributes: Attributes{PreAuthorize: "permitAll()"},
	})

	calls := 0
	foreign := identity.NewAnonymous("theirs", "anonymousUser", identity.AuthorityList("ROLE_ADMIN"))
	_, err := p.Invoke(ctxWith(foreign), "Docs.List", nil, countingTarget(&calls))
	ade, ok := authz.IsAccessDenied(err)
	if !ok || ade.Stage != stageIdentity || ade.Reason != reasonForeignAnonymous {
		t.Fatalf("err = %v, want foreign anonymous denial", err)
	}
	if calls != 0 {
		t.Fatalf("target ran %d times", calls)
	}
	if evs := rec.snapshot(); len(evs) != 1 || evs[0].Stage != stageIdentity {
		t.Fatalf("events = %+v", evs)
	}

	own := identity.NewAnonymous("ours", "anonymousUser", identity.AuthorityList("ROLE_ANONYMOUS"))
	if _, err := p.Invoke(ctxWith(own), "Docs.List", nil, countingTarget(&calls)); err != nil || calls != 1 {
		t.Fatalf("own anonymous: err = %v, calls = %d", err, calls)
	}
	if _, err := p.Invoke(ctxWith(identity.NewAuthenticated("alice")), "Docs.List", nil, countingTarget(&calls)); err != nil {
		t.Fatalf("authenticated: %v", err)
	}
	if got := p.Stats().Denied; got != 1 {
		t.Fatalf("denied = %d, want 1", got)
	}
}

func TestStageOrder(t *testing.T) {
	m := Method{
		Name:   "All",
		Params: []string{"items"},
		Attributes: Attributes{
			PreFilter:     &Filter{Expr: "true"},
			PreAuthorize:  "true",
			PostAuthorize: "true",
			PostFilter:    "true",
			Secured:       []string{"ROLE_A"},
			Roles:         &RoleRule{Mode: PermitAll},
		},
	}
	p := mustPipeline(t, allStyles(), m)
	want := []Kind{KindPreFilter, KindPreAuthorize, KindSecured, KindJSR250, KindPostAuthorize, KindPostFilter}
	if diff := deep.Equal(p.Stages("All"), want); diff != nil {
		t.Fatalf("order: %v", diff)
	}

	cfg := allStyles()
	cfg.JSR250BeforeSecured = true
	p = mustPipeline(t, cfg, m)
	want = []Kind{KindPreFilter, KindPreAuthorize, KindJSR250, KindSecured, KindPostAuthorize, KindPostFilter}
	if diff := deep.Equal(p.Stages("All"), want); diff != nil {
		t.Fatalf("order with jsr250 first: %v", diff)
	}
}

func TestChainSplitsByPhase(t *testing.T) {
	p := mustPipeline(t, allStyles(), Method{
		Name: "All",
		Attributes: Attributes{
			PreAuthorize:  "true",
			PostAuthorize: "true",
			PostFilter:    "true",
			Secured:       []string{"ROLE_A"},
		},
	})
	c := p.chains["All"]
	if len(c.before) != 2 || len(c.after) != 2 {
		t.Fatalf("before = %d, after = %d, want 2 and 2", len(c.before), len(c.after))
	}
	for _, st := range c.before {
		if st.Phase() != Before {
			t.Fatalf("%s placed before the target with phase %v", st.Kind(), st.Phase())
		}
	}
	for _, st := range c.after {
		if st.Phase() != After {
			t.Fatalf("%s placed after the target with phase %v", st.Kind(), st.Phase())
		}
	}
}

func TestDisabledStylesAreIgnored(t *testing.T) {
	cfg := Config{RolePrefix: DefaultRolePrefix}
	p := mustPipeline(t, cfg, Method{
		Name: "M",
		Attributes: Attributes{
			PreAuthorize: "denyAll()",
			Secured:      []string{"ROLE_NOBODY"},
			Roles:        &RoleRule{Mode: DenyAll},
		},
	})
	if got := p.Stages("M"); len(got) != 0 {
		t.Fatalf("stages = %v, want none", got)
	}
	calls := 0
	if _, err := p.Invoke(ctxWith(nil), "M", nil, countingTarget(&calls)); err != nil || calls != 1 {
		t.Fatalf("err = %v, calls = %d", err, calls)
	}
}

func TestUnregisteredMethodPassesThrough(t *testing.T) {
	p := mustPipeline(t, DefaultConfig())
	calls := 0
	got, err := p.Protect("Other.Call", countingTarget(&calls))(ctxWith(nil), "x")
	if err != nil || got != "x" || calls != 1 {
		t.Fatalf("got %v, %v after %d calls", got, err, calls)
	}
}

func TestArgCountMismatch(t *testing.T) {
	p := mustPipeline(t, DefaultConfig(), Method{Name: "M", Params: []string{"a", "b"}, Attributes: Attributes{PreAuthorize: "true"}})
	calls := 0
	if _, err := p.Invoke(ctxWith(nil), "M", []any{1}, countingTarget(&calls)); err == nil || calls != 0 {
		t.Fatalf("err = %v, calls = %d", err, calls)
	}
}

func TestNew_ReportsEveryBadExpression(t *testing.T) {
	_, err := New(allStyles(),
		Method{Name: "A", Attributes: Attributes{PreAuthorize: "hasRole("}},
		Method{Name: "B", Params: []string{"id"}, Attributes: Attributes{PostAuthorize: "nope == id"}},
		Method{Name: "C", Params: []string{"ids"}, Attributes: Attributes{PreFilter: &Filter{Expr: "true", Target: "missing"}}},
		Method{Name: "D", Attributes: Attributes{PreAuthorize: "true"}},
	)
	if err == nil {
		t.Fatalf("New accepted bad expressions")
	}
	var methods []string
	for _, e := range multierr.Errors(err) {
		var ce *authz.ConfigurationError
		if !errors.As(e, &ce) {
			t.Fatalf("unexpected error type %T: %v", e, e)
		}
		methods = append(methods, ce.Method)
	}
	if diff := deep.Equal(methods, []string{"A", "B", "C"}); diff != nil {
		t.Fatalf("reported methods: %v", diff)
	}
	if !errors.Is(err, authz.ErrConfiguration) {
		t.Fatalf("errors.Is(ErrConfiguration) = false")
	}
}

func TestNew_InvalidMethods(t *testing.T) {
	cases := map[string][]Method{
		"empty name":      {{Name: ""}},
		"duplicate":       {{Name: "A"}, {Name: "A"}},
		"duplicate param": {{Name: "A", Params: []string{"x", "x"}}},
		"bad role mode":   {{Name: "A", Attributes: Attributes{Roles: &RoleRule{Mode: "some"}}}},
		"roles missing":   {{Name: "A", Attributes: Attributes{Roles: &RoleRule{Mode: RolesAll}}}},
	}
	for name, methods := range cases {
		if _, err := New(allStyles(), methods...); !errors.Is(err, authz.ErrInvalidConfiguration) {
			t.Fatalf("%s: err = %v, want invalid configuration", name, err)
		}
	}
}

func TestConcurrentInvocations(t *testing.T) {
	p := mustPipeline(t, DefaultConfig(), Method{
		Name:       "Docs.List",
		Attributes: Attributes{PreAuthorize: "hasRole('USER')", PostFilter: "filterObject.Owner == principal"},
	})
	type doc struct{ Owner string }
	target := func(ctx context.Context, inv *Invocation) (any, error) {
		return []doc{{"alice"}, {"bob"}, {"carol"}}, nil
	}

	var wg conc.WaitGroup
	users := []string{"alice", "bob", "carol", "dave"}
	results := make([][]doc, 64)
	for i := range results {
		i := i
		wg.Go(func() {
			name := users[i%len(users)]
			got, err := p.Invoke(ctxWith(identity.NewAuthenticated(name, "ROLE_USER")), "Docs.List", nil, target)
			if err != nil {
				t.Errorf("Invoke(%s): %v", name, err)
				return
			}
			results[i] = got.([]doc)
		})
	}
	wg.Wait()

	for i, r := range results {
		name := users[i%len(users)]
		if name == "dave" {
			if len(r) != 0 {
				t.Fatalf("dave saw %v", r)
			}
			continue
		}
		if len(r) != 1 || r[0].Owner != name {
			t.Fatalf("%s saw %v", name, r)
		}
	}
	if s := p.Stats(); s.Granted != 64 {
		t.Fatalf("granted = %d, want 64", s.Granted)
	}
}
