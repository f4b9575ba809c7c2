// Package sample is a small document service whose operations run behind the
// method authorization pipeline.
package sample

import (
	"context"
	"errors"
	"fmt"

	"github.com/TwigBush/methodsec/internal/method"
)

// ErrBadArguments means a protected call reached its target with arguments
// of the wrong shape, usually from a misdeclared method in the config.
var ErrBadArguments = errors.New("bad_arguments")

const (
	MethodList   = "Documents.List"
	MethodGet    = "Documents.Get"
	MethodDelete = "Documents.Delete"
	MethodShare  = "Documents.Share"

	// MethodSubscribe guards the live decision stream.
	MethodSubscribe = "Events.Subscribe"
)

// DefaultMethods are the rules used when the config file declares none.
func DefaultMethods() []method.Method {
	return []method.Method{
		{
			Name: MethodList,
			Attributes: method.Attributes{
				PostFilter: "filterObject.Public or filterObject.Owner == principal or principal in filterObject.SharedWith or hasRole('ADMIN')",
			},
		},
		{
			Name:   MethodGet,
			Params: []string{"id"},
			Attributes: method.Attributes{
				PostAuthorize: "returnObject.Public or hasPermission(returnObject, 'viewer') or hasRole('ADMIN')",
			},
		},
		{
			Name:   MethodDelete,
			Params: []string{"id"},
			Attributes: method.Attributes{
				PreAuthorize: "hasRole('ADMIN') or hasPermission('document:' + id, 'owner')",
			},
		},
		{
			Name:   MethodShare,
			Params: []string{"id", "users"},
			Attributes: method.Attributes{
				PreFilter:    &method.Filter{Expr: "filterObject != principal", Target: "users"},
				PreAuthorize: "isAuthenticated() and hasPermission('document:' + id, 'owner')",
			},
		},
		{
			Name:       MethodSubscribe,
			Attributes: method.Attributes{PreAuthorize: "hasRole('ADMIN')"},
		},
	}
}

// Service exposes the store through protected calls.
type Service struct {
	store *Store

	list, get, del, share func(ctx context.Context, args ...any) (any, error)
}

func NewService(p *method.Pipeline, store *Store) *Service {
	s := &Service{store: store}
	s.list = p.Protect(MethodList, func(ctx context.Context, inv *method.Invocation) (any, error) {
		return store.List(), nil
	})
	s.get = p.Protect(MethodGet, func(ctx context.Context, inv *method.Invocation) (any, error) {
		id, err := argAt[string](inv, 0)
		if err != nil {
			return nil, err
		}
		return store.Get(id)
	})
	s.del = p.Protect(MethodDelete, func(ctx context.Context, inv *method.Invocation) (any, error) {
		id, err := argAt[string](inv, 0)
		if err != nil {
			return nil, err
		}
		return nil, store.Delete(id)
	})
	s.share = p.Protect(MethodShare, func(ctx context.Context, inv *method.Invocation) (any, error) {
		id, err := argAt[string](inv, 0)
		if err != nil {
			return nil, err
		}
		users, err := argAt[[]string](inv, 1)
		if err != nil {
			return nil, err
		}
		return store.Share(id, users)
	})
	return s
}

func argAt[T any](inv *method.Invocation, i int) (T, error) {
	var zero T
	if i >= len(inv.Args) {
		return zero, fmt.Errorf("%w: %s has no argument %d", ErrBadArguments, inv.Method.Name, i)
	}
	v, ok := inv.Args[i].(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s argument %d is %T, want %T", ErrBadArguments, inv.Method.Name, i, inv.Args[i], zero)
	}
	return v, nil
}

func result[T any](out any) (T, error) {
	v, ok := out.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: result is %T, want %T", ErrBadArguments, out, zero)
	}
	return v, nil
}

func (s *Service) List(ctx context.Context) ([]Document, error) {
	out, err := s.list(ctx)
	if err != nil {
		return nil, err
	}
	return result[[]Document](out)
}

func (s *Service) Get(ctx context.Context, id string) (Document, error) {
	out, err := s.get(ctx, id)
	if err != nil {
		return Document{}, err
	}
	return result[Document](out)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	_, err := s.del(ctx, id)
	return err
}

func (s *Service) Share(ctx context.Context, id string, users []string) (Document, error) {
	out, err := s.share(ctx, id, users)
	if err != nil {
		return Document{}, err
	}
	return result[Document](out)
}
