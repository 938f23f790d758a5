// Package memory provides an in-process document store and interaction log.
package memory

import (
	"context"
	"sync"
	"time"

	"autoqa/internal/domain"
)

var (
	_ domain.DocumentStore  = (*Store)(nil)
	_ domain.InteractionLog = (*Store)(nil)
)

// Store keeps documents and interactions in memory. It is safe for concurrent use.
type Store struct {
	mu           sync.RWMutex
	docs         []domain.Document
	urls         map[string]struct{}
	hashes       map[string]struct{}
	interactions []domain.Interaction
}

// New returns an empty store.
func New() *Store {
	return &Store{
		urls:   make(map[string]struct{}),
		hashes: make(map[string]struct{}),
	}
}

func (s *Store) AppendDocument(_ context.Context, doc domain.Document) (bool, error) {
	hash := domain.ContentHash(doc.Content)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.urls[doc.URL]; ok {
		return false, nil
	}
	if _, ok := s.hashes[hash]; ok {
		return false, nil
	}
	doc.ID = int64(len(s.docs) + 1)
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	s.docs = append(s.docs, doc)
	s.urls[doc.URL] = struct{}{}
	s.hashes[hash] = struct{}{}
	return true, nil
}

func (s *Store) AllDocuments(_ context.Context) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Document, len(s.docs))
	copy(out, s.docs)
	return out, nil
}

func (s *Store) CountDocuments(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs), nil
}

func (s *Store) AppendInteraction(_ context.Context, in domain.Interaction) error {
	in.Sources = append([]string(nil), in.Sources...)
	s.mu.Lock()
	s.interactions = append(s.interactions, in)
	s.mu.Unlock()
	return nil
}

func (s *Store) LastInteraction(_ context.Context) (*domain.Interaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.interactions) == 0 {
		return nil, domain.ErrNotFound
	}
	in := s.interactions[len(s.interactions)-1]
	return &in, nil
}

func (s *Store) ListInteractions(_ context.Context, limit int) ([]domain.Interaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.Interaction{}
	for i := len(s.interactions) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.interactions[i])
	}
	return out, nil
}

func (s *Store) CountInteractions(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.interactions), nil
}
