package method

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"github.com/TwigBush/methodsec/internal/authz"
	"github.com/TwigBush/methodsec/internal/events"
	"github.com/TwigBush/methodsec/internal/expression"
	"github.com/TwigBush/methodsec/internal/identity"
)

var tracer = otel.Tracer("github.com/TwigBush/methodsec/internal/method")

type chain struct {
	method *Method
	before []Stage
	after  []Stage
}

// Pipeline holds the compiled stage chains of every protected method. It is
// immutable after New and safe for concurrent use.
type Pipeline struct {
	shared *shared
	chains map[string]*chain

	granted *atomic.Int64
	denied  *atomic.Int64
	failed  *atomic.Int64
}

// Stats are running totals since the pipeline was built.
type Stats struct {
	Granted int64 `json:"granted"`
	Denied  int64 `json:"denied"`
	Failed  int64 `json:"failed"`
}

// New compiles the rules of every method up front. Every bad rule is
// reported, not just the first one.
func New(cfg Config, methods ...Method) (*Pipeline, error) {
	cfg = cfg.withDefaults()
	sh := &shared{cfg: cfg}
	p := &Pipeline{
		shared:  sh,
		chains:  make(map[string]*chain, len(methods)),
		granted: atomic.NewInt64(0),
		denied:  atomic.NewInt64(0),
		failed:  atomic.NewInt64(0),
	}

	var errs error
	for i := range methods {
		m := methods[i]
		if err := validateMethod(m); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if _, dup := p.chains[m.Name]; dup {
			errs = multierr.Append(errs, &authz.InvalidConfigurationError{
				Field:  "methods",
				Reason: fmt.Sprintf("duplicate method %q", m.Name),
			})
			continue
		}
		c, err := sh.compile(&m)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		p.chains[m.Name] = c
	}
	if errs != nil {
		return nil, errs
	}
	slog.Info("pipeline_ready",
		"methods", len(p.chains),
		"pre_post", cfg.PrePostEnabled,
		"secured", cfg.SecuredEnabled,
		"jsr250", cfg.JSR250Enabled,
	)
	return p, nil
}

func validateMethod(m Method) error {
	if m.Name == "" {
		return &authz.InvalidConfigurationError{Field: "methods", Reason: "method name is required"}
	}
	seen := make(map[string]bool, len(m.Params))
	for _, p := range m.Params {
		if p == "" || seen[p] {
			return &authz.InvalidConfigurationError{
				Field:  m.Name + ".params",
				Reason: fmt.Sprintf("parameter names must be unique and non-empty: %v", m.Params),
			}
		}
		seen[p] = true
	}
	if r := m.Attributes.Roles; r != nil {
		switch r.Mode {
		case RolesAny, RolesAll:
			if len(r.Authorities) == 0 {
				return &authz.InvalidConfigurationError{Field: m.Name + ".roles", Reason: "authorities are required"}
			}
		case PermitAll, DenyAll:
		default:
			return &authz.InvalidConfigurationError{Field: m.Name + ".roles", Reason: fmt.Sprintf("unknown mode %q", r.Mode)}
		}
	}
	return nil
}

// compile builds the stage chain for m in the fixed order
// pre-filter, pre-authorize, secured/jsr250, then post-authorize, post-filter.
func (s *shared) compile(m *Method) (*chain, error) {
	c := &chain{method: m}
	a := m.Attributes
	var errs error

	comp := func(kind Kind, src string) expression.Expression {
		e, err := s.cfg.Expressions.Compile(src, m.Params)
		if err != nil {
			errs = multierr.Append(errs, &authz.ConfigurationError{Method: m.Name, Stage: string(kind), Expr: src, Err: err})
			return nil
		}
		return e
	}

	var preFilt, preAuth, postAuth, postFilt Stage
	if s.cfg.PrePostEnabled {
		if a.PreFilter != nil && a.PreFilter.Expr != "" {
			target := -1
			if a.PreFilter.Target != "" {
				target = indexOf(m.Params, a.PreFilter.Target)
				if target < 0 {
					errs = multierr.Append(errs, &authz.ConfigurationError{
						Method: m.Name, Stage: string(KindPreFilter), Expr: a.PreFilter.Expr,
						Err: fmt.Errorf("unknown filter target %q", a.PreFilter.Target),
					})
				}
			}
			if e := comp(KindPreFilter, a.PreFilter.Expr); e != nil && (target >= 0 || a.PreFilter.Target == "") {
				preFilt = &preFilter{shared: s, expr: e, target: target}
			}
		}
		if a.PreAuthorize != "" {
			if e := comp(KindPreAuthorize, a.PreAuthorize); e != nil {
				preAuth = &preAuthorize{shared: s, expr: e}
			}
		}
		if a.PostAuthorize != "" {
			if e := comp(KindPostAuthorize, a.PostAuthorize); e != nil {
				postAuth = &postAuthorize{shared: s, expr: e}
			}
		}
		if a.PostFilter != "" {
			if e := comp(KindPostFilter, a.PostFilter); e != nil {
				postFilt = &postFilter{shared: s, expr: e}
			}
		}
	}

	var sec, roles Stage
	if s.cfg.SecuredEnabled && len(a.Secured) > 0 {
		sec = &secured{authorities: append([]string(nil), a.Secured...)}
	}
	if s.cfg.JSR250Enabled && a.Roles != nil {
		prefixed := make([]string, len(a.Roles.Authorities))
		for i, r := range a.Roles.Authorities {
			prefixed[i] = expression.WithRolePrefix(s.cfg.RolePrefix, r)
		}
		roles = &jsr250{shared: s, mode: a.Roles.Mode, roles: prefixed}
	}
	first, second := sec, roles
	if s.cfg.JSR250BeforeSecured {
		first, second = roles, sec
	}
	for _, st := range []Stage{preFilt, preAuth, first, second, postAuth, postFilt} {
		if st == nil {
			continue
		}
		if st.Phase() == Before {
			c.before = append(c.before, st)
		} else {
			c.after = append(c.after, st)
		}
	}

	if errs != nil {
		return nil, errs
	}
	return c, nil
}

func indexOf(list []string, v string) int {
	for i, s := range list {
		if s == v {
			return i
		}
	}
	return -1
}

// Stages lists the stage kinds that guard name, in execution order.
func (p *Pipeline) Stages(name string) []Kind {
	c, ok := p.chains[name]
	if !ok {
		return nil
	}
	out := make([]Kind, 0, len(c.before)+len(c.after))
	for _, s := range c.before {
		out = append(out, s.Kind())
	}
	for _, s := range c.after {
		out = append(out, s.Kind())
	}
	return out
}

// Methods returns the protected method names.
func (p *Pipeline) Methods() []string {
	out := make([]string, 0, len(p.chains))
	for name := range p.chains {
		out = append(out, name)
	}
	return out
}

func (p *Pipeline) Stats() Stats {
	return Stats{
		Granted: p.granted.Load(),
		Denied:  p.denied.Load(),
		Failed:  p.failed.Load(),
	}
}

// Invoke runs target for the named method behind its stage chain. Methods
// with no registered rules go straight to target.
//
// A denial is returned as *authz.AccessDeniedError. An error from target is
// returned unchanged and the post stages are skipped.
func (p *Pipeline) Invoke(ctx context.Context, name string, args []any, target Target) (any, error) {
	id := identity.Current(ctx, p.shared.cfg.Holders)
	c, ok := p.chains[name]
	if !ok {
		return target(ctx, &Invocation{
			ID:       uuid.NewString(),
			Method:   &Method{Name: name},
			Args:     args,
			Identity: id,
		})
	}
	if len(c.method.Params) > 0 && len(args) != len(c.method.Params) {
		return nil, fmt.Errorf("%s: got %d args, want %d", name, len(args), len(c.method.Params))
	}

	inv := &Invocation{
		ID:       uuid.NewString(),
		Method:   c.method,
		Args:     append([]any(nil), args...),
		Identity: id,
	}

	ctx, span := tracer.Start(ctx, "methodsec.invoke", trace.WithAttributes(
		attribute.String("methodsec.method", name),
		attribute.String("methodsec.invocation_id", inv.ID),
		attribute.String("methodsec.principal", id.Name()),
	))
	defer span.End()

	if v := p.shared.cfg.Anonymous; v != nil && id.Anonymous() {
		if err := v.Verify(id); err != nil {
			slog.Warn("anon_rejected", "inv", inv.ID, "method", name, "err", err)
			return nil, p.deny(ctx, span, inv, stageIdentity, reasonForeignAnonymous)
		}
	}

	for _, st := range c.before {
		if err := p.apply(ctx, span, inv, st); err != nil {
			return nil, err
		}
	}

	res, err := target(ctx, inv)
	if err != nil {
		p.failed.Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "target failed")
		return nil, err
	}
	inv.Result = res

	for _, st := range c.after {
		if err := p.apply(ctx, span, inv, st); err != nil {
			return nil, err
		}
	}
	p.granted.Inc()
	return inv.Result, nil
}

// Protect binds target to the named method so callers pass plain arguments.
func (p *Pipeline) Protect(name string, target Target) func(ctx context.Context, args ...any) (any, error) {
	return func(ctx context.Context, args ...any) (any, error) {
		return p.Invoke(ctx, name, args, target)
	}
}

func (p *Pipeline) apply(ctx context.Context, span trace.Span, inv *Invocation, st Stage) error {
	d, err := st.Apply(ctx, inv)
	if err != nil {
		p.failed.Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, string(st.Kind()))
		return fmt.Errorf("%s %s: %w", inv.Method.Name, st.Kind(), err)
	}
	if d.Allowed() {
		if p.shared.cfg.PublishGranted {
			p.publish(ctx, inv, string(st.Kind()), d)
		}
		return nil
	}

	reason := d.Reason
	if reason == "" {
		reason = d.Outcome.String()
	}
	return p.deny(ctx, span, inv, string(st.Kind()), reason)
}

func (p *Pipeline) deny(ctx context.Context, span trace.Span, inv *Invocation, stage, reason string) error {
	p.denied.Inc()
	span.SetStatus(codes.Error, "access denied")
	span.SetAttributes(attribute.String("methodsec.denied_stage", stage))
	slog.Info("access_denied",
		"inv", inv.ID,
		"method", inv.Method.Name,
		"stage", stage,
		"principal", inv.Identity.Name(),
		"reason", reason,
	)
	p.publish(ctx, inv, stage, authz.Decision{Outcome: authz.Denied, Reason: reason})
	// The result of a denied post stage must never reach the caller.
	inv.Result = nil
	return &authz.AccessDeniedError{Method: inv.Method.Name, Stage: stage, Reason: reason}
}

func (p *Pipeline) publish(ctx context.Context, inv *Invocation, stage string, d authz.Decision) {
	err := p.shared.cfg.Events.Publish(ctx, events.Event{
		InvocationID: inv.ID,
		Method:       inv.Method.Name,
		Stage:        stage,
		Outcome:      d.Outcome.String(),
		Reason:       d.Reason,
		Principal:    inv.Identity.Name(),
		At:           time.Now().UTC(),
	})
	if err != nil {
		slog.Warn("authz_event_publish_failed", "inv", inv.ID, "err", err)
	}
}
