package sample

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/TwigBush/methodsec/internal/authz"
)

var ErrNotFound = errors.New("document_not_found")

type Document struct {
	ID         string   `json:"id"`
	Owner      string   `json:"owner"`
	Title      string   `json:"title"`
	Public     bool     `json:"public"`
	SharedWith []string `json:"shared_with,omitempty"`
}

// PermissionObject names the document in permission checks.
func (d Document) PermissionObject() string { return "document:" + d.ID }

func (d Document) clone() Document {
	d.SharedWith = append([]string(nil), d.SharedWith...)
	return d
}

// Store is an in-memory document table. It doubles as a permission backend
// answering owner and viewer relations.
type Store struct {
	mu   sync.RWMutex
	docs map[string]Document
}

func NewStore(seed ...Document) *Store {
	s := &Store{docs: make(map[string]Document, len(seed))}
	for _, d := range seed {
		s.docs[d.ID] = d.clone()
	}
	return s
}

// Seed is the demo data served by `methodsec serve`.
func Seed() []Document {
	return []Document{
		{ID: "d1", Owner: "alice", Title: "Roadmap", SharedWith: []string{"bob"}},
		{ID: "d2", Owner: "bob", Title: "Budget"},
		{ID: "d3", Owner: "carol", Title: "Handbook", Public: true},
	}
}

func (s *Store) List() []Document {
	s.mu.RLock()
	out := make([]Document, 0, len(s.docs))
	for _, d := range s.docs {
		out = append(out, d.clone())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) Get(id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return d.clone(), nil
}

func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return ErrNotFound
	}
	delete(s.docs, id)
	return nil
}

// Share adds users to the document's share list, skipping ones already there.
func (s *Store) Share(id string, users []string) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	for _, u := range users {
		if !contains(d.SharedWith, u) && u != d.Owner {
			d.SharedWith = append(d.SharedWith, u)
		}
	}
	s.docs[id] = d
	return d.clone(), nil
}

// Check implements authz.Authorizer for "user:NAME" subjects and
// "document:ID" objects. owner implies viewer.
func (s *Store) Check(_ context.Context, req authz.Request) (authz.Decision, error) {
	user, ok := strings.CutPrefix(req.Subject, "user:")
	if !ok {
		return authz.Deny("unsupported_subject"), nil
	}
	id, ok := strings.CutPrefix(req.Object, "document:")
	if !ok {
		id = req.Object
	}
	d, err := s.Get(id)
	if errors.Is(err, ErrNotFound) {
		return authz.Deny("unknown_object"), nil
	}
	switch req.Relation {
	case "owner":
		if d.Owner == user {
			return authz.Grant(), nil
		}
	case "viewer":
		if d.Owner == user || d.Public || contains(d.SharedWith, user) {
			return authz.Grant(), nil
		}
	default:
		return authz.AbstainWith("unknown_relation"), nil
	}
	return authz.Deny("no_relation"), nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
