package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

type memoryEntry struct {
	doc Document
	seq int64
}

// MemoryStore keeps documents in process memory. Commits apply to a copy of
// the data set which replaces the live one only when every mutation succeeds.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]memoryEntry
	seq  int64
	now  func() time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]memoryEntry), now: time.Now}
}

// WithClock overrides the clock used for timestamps.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

// Query returns documents matching filter.
func (s *MemoryStore) Query(ctx context.Context, filter Filter) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	match, err := encodeMatch(filter.Match)
	if err != nil {
		return nil, err
	}

	entries := make([]memoryEntry, 0, len(s.docs))
	for _, e := range s.docs {
		if filter.Type != "" && e.doc.Type != filter.Type {
			continue
		}
		if filter.ID != "" && e.doc.ID != filter.ID {
			continue
		}
		if filter.Slug != "" && e.doc.Slug != filter.Slug {
			continue
		}
		if !bodyMatches(e.doc.Body, match) {
			continue
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.doc.CreatedAt.Equal(b.doc.CreatedAt) {
			if filter.Newest {
				return a.doc.CreatedAt.After(b.doc.CreatedAt)
			}
			return a.doc.CreatedAt.Before(b.doc.CreatedAt)
		}
		if filter.Newest {
			return a.seq > b.seq
		}
		return a.seq < b.seq
	})
	if filter.Limit > 0 && len(entries) > filter.Limit {
		entries = entries[:filter.Limit]
	}
	docs := make([]Document, 0, len(entries))
	for _, e := range entries {
		docs = append(docs, e.doc)
	}
	return docs, nil
}

// Get fetches one document by ID.
func (s *MemoryStore) Get(ctx context.Context, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.docs[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return e.doc, nil
}

// Create inserts a single document.
func (s *MemoryStore) Create(ctx context.Context, doc Document) (Document, error) {
	res, err := s.Commit(ctx, NewTransaction().Create(doc))
	if err != nil {
		return Document{}, err
	}
	return s.Get(ctx, res.Results[0].ID)
}

// Patch merges set into the body of document id.
func (s *MemoryStore) Patch(ctx context.Context, id string, set map[string]any) (Document, error) {
	if _, err := s.Commit(ctx, NewTransaction().Patch(id, set)); err != nil {
		return Document{}, err
	}
	return s.Get(ctx, id)
}

// Delete removes document id.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	_, err := s.Commit(ctx, NewTransaction().Delete(id))
	return err
}

// Commit applies every mutation or none.
func (s *MemoryStore) Commit(ctx context.Context, tx *Transaction) (TransactionResult, error) {
	muts, err := prepareAll(tx)
	if err != nil {
		return TransactionResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return TransactionResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]memoryEntry, len(s.docs)+len(muts))
	for k, v := range s.docs {
		next[k] = v
	}
	seq := s.seq
	now := s.now().UTC()

	for _, m := range muts {
		switch m.Op {
		case OpCreate:
			if _, exists := next[m.ID]; exists {
				return TransactionResult{}, fmt.Errorf("%w: id %s", ErrConflict, m.ID)
			}
			if m.Document.Slug != "" && slugTaken(next, m.Document.Type, m.Document.Slug) {
				return TransactionResult{}, fmt.Errorf("%w: slug %s", ErrConflict, m.Document.Slug)
			}
			doc := m.Document
			doc.CreatedAt, doc.UpdatedAt = now, now
			seq++
			next[m.ID] = memoryEntry{doc: doc, seq: seq}
		case OpPatch:
			e, ok := next[m.ID]
			if !ok {
				return TransactionResult{}, ErrNotFound
			}
			body, err := mergeBody(e.doc.Body, m.Set)
			if err != nil {
				return TransactionResult{}, fmt.Errorf("docstore: patch %s: %w", m.ID, err)
			}
			e.doc.Body = body
			e.doc.UpdatedAt = now
			next[m.ID] = e
		case OpDelete:
			if _, ok := next[m.ID]; !ok {
				return TransactionResult{}, ErrNotFound
			}
			delete(next, m.ID)
		}
	}

	s.docs = next
	s.seq = seq
	return newResult(muts), nil
}

// Len returns the number of stored documents.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

func slugTaken(docs map[string]memoryEntry, docType, slug string) bool {
	for _, e := range docs {
		if e.doc.Type == docType && e.doc.Slug == slug {
			return true
		}
	}
	return false
}

func encodeMatch(match map[string]any) (map[string][]byte, error) {
	if len(match) == 0 {
		return nil, nil
	}
	out := make(map[string][]byte, len(match))
	for k, v := range match {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("docstore: encode match: %w", err)
		}
		out[k] = raw
	}
	return out, nil
}

func bodyMatches(body json.RawMessage, match map[string][]byte) bool {
	if len(match) == 0 {
		return true
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return false
	}
	for k, want := range match {
		got, ok := fields[k]
		if !ok {
			return false
		}
		if !bytes.Equal(compact(got), want) {
			return false
		}
	}
	return true
}

func compact(raw json.RawMessage) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}

var _ Store = (*MemoryStore)(nil)
