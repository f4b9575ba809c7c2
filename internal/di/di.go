// Package di wires the runtime from a loaded config file.
package di

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/TwigBush/methodsec/internal/anonymous"
	"github.com/TwigBush/methodsec/internal/authz"
	"github.com/TwigBush/methodsec/internal/config"
	"github.com/TwigBush/methodsec/internal/events"
	"github.com/TwigBush/methodsec/internal/expression"
	"github.com/TwigBush/methodsec/internal/identity"
	"github.com/TwigBush/methodsec/internal/method"
	"github.com/TwigBush/methodsec/internal/playground"
	"github.com/TwigBush/methodsec/internal/sample"
)

// Runtime is everything a server or CLI command needs.
type Runtime struct {
	Config      *config.File
	Pipeline    *method.Pipeline
	Holders     identity.Strategy
	Trust       identity.TrustResolver
	Anonymous   *anonymous.Provider // nil when disabled
	Permissions authz.Authorizer
	Events      events.Publisher
	Stream      *playground.SSEHub // nil unless events.stream is set
	Store       *sample.Store
	Documents   *sample.Service

	closers []io.Closer
}

// Build wires every component from f. Nothing is looked up by name after it
// returns.
func Build(ctx context.Context, f *config.File) (*Runtime, error) {
	rt := &Runtime{Config: f, Store: sample.NewStore(sample.Seed()...)}

	holders, err := ProvideHolders(f.MethodSecurity.HolderStrategy)
	if err != nil {
		return nil, err
	}
	rt.Holders = holders

	handler, err := expression.Lookup(f.MethodSecurity.ExpressionHandler)
	if err != nil {
		return nil, err
	}

	if rt.Permissions, err = ProvideAuthorizer(f.Permissions, rt.Store); err != nil {
		return nil, err
	}

	pub, closers, err := ProvidePublisher(f.Events)
	if err != nil {
		return nil, err
	}
	if f.Events.Stream {
		rt.Stream = playground.NewSSEHub()
		pub = events.Multi{pub, rt.Stream}
	}
	rt.Events = pub
	rt.closers = closers

	if f.Anonymous.Enabled {
		if rt.Anonymous, err = ProvideAnonymous(f.Anonymous); err != nil {
			_ = rt.Close()
			return nil, err
		}
	}

	cfg := f.MethodConfig()
	cfg.Expressions = handler
	cfg.Holders = holders
	rt.Trust = identity.TrustResolver{AnonymousIsAuthenticated: f.Anonymous.AuthenticatedForAuthorization}
	cfg.Trust = rt.Trust
	cfg.Permissions = rt.Permissions
	cfg.Events = pub
	if rt.Anonymous != nil {
		cfg.Anonymous = rt.Anonymous
	}

	methods := f.ProtectedMethods()
	if len(methods) == 0 {
		methods = sample.DefaultMethods()
	}
	if rt.Pipeline, err = method.New(cfg, methods...); err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.Documents = sample.NewService(rt.Pipeline, rt.Store)

	slog.InfoContext(ctx, "runtime_ready",
		"permissions", f.Permissions.Backend,
		"events", f.Events.Sink,
		"expressions", f.MethodSecurity.ExpressionHandler,
		"holders", f.MethodSecurity.HolderStrategy,
		"anonymous", rt.Anonymous != nil,
	)
	return rt, nil
}

// Close releases event sinks.
func (rt *Runtime) Close() error {
	var err error
	for _, c := range rt.closers {
		err = multierr.Append(err, c.Close())
	}
	rt.closers = nil
	return err
}

func ProvideHolders(ref string) (identity.Strategy, error) {
	switch ref {
	case "", "context":
		return identity.ContextStrategy{}, nil
	case "global":
		return &identity.GlobalStrategy{}, nil
	default:
		return nil, &authz.InvalidConfigurationError{
			Field:  "method_security.holder_strategy",
			Reason: fmt.Sprintf("unknown strategy %q", ref),
		}
	}
}

func ProvidePublisher(e config.Events) (events.Publisher, []io.Closer, error) {
	redisStream := func() *events.RedisStream {
		return events.NewRedisStream(events.RedisConfig{
			Addr:     e.Redis.Addr,
			Password: e.Redis.Password,
			DB:       e.Redis.DB,
			Stream:   e.Redis.Stream,
			MaxLen:   e.Redis.MaxLen,
		})
	}
	switch e.Sink {
	case "", "slog":
		return events.Slog{}, nil, nil
	case "none":
		return events.Nop{}, nil, nil
	case "redis":
		r := redisStream()
		return r, []io.Closer{r}, nil
	case "both":
		r := redisStream()
		return events.Multi{events.Slog{}, r}, []io.Closer{r}, nil
	default:
		return nil, nil, &authz.InvalidConfigurationError{
			Field:  "events.sink",
			Reason: fmt.Sprintf("unknown sink %q", e.Sink),
		}
	}
}

// ProvideAnonymous builds the anonymous provider. An empty key gets a random
// one, so anonymous identities from another process never verify here.
func ProvideAnonymous(a config.Anonymous) (*anonymous.Provider, error) {
	key := a.Key
	if key == "" {
		key = uuid.NewString()
	}
	principal := a.Principal
	if principal == "" {
		principal = anonymous.DefaultPrincipal
	}
	authorities := identity.AuthorityList(a.Authorities...)
	if len(a.Authorities) == 0 {
		authorities = identity.AuthorityList(anonymous.DefaultAuthority)
	}
	return anonymous.NewWith(key, principal, authorities)
}
