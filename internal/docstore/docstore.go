// Package docstore is the catalog's document store: typed JSON documents with
// query, create, patch, delete and atomic multi-mutation commits.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound indicates the document does not exist.
	ErrNotFound = errors.New("docstore: not found")
	// ErrConflict indicates a slug already used by another document of the same type.
	ErrConflict = errors.New("docstore: conflict")
	// ErrInvalidMutation indicates a mutation the store refuses before touching data.
	ErrInvalidMutation = errors.New("docstore: invalid mutation")
)

// Document is one stored record. Body is a JSON object owned by the caller.
type Document struct {
	ID        string          `json:"_id"`
	Type      string          `json:"_type"`
	Slug      string          `json:"slug,omitempty"`
	Body      json.RawMessage `json:"body"`
	CreatedAt time.Time       `json:"_createdAt"`
	UpdatedAt time.Time       `json:"_updatedAt"`
}

// Filter selects documents. Zero fields do not constrain the result.
// Match is compared against top-level body keys.
type Filter struct {
	Type   string
	ID     string
	Slug   string
	Match  map[string]any
	Newest bool
	Limit  int
}

// Store is implemented by every document store driver.
type Store interface {
	Query(ctx context.Context, filter Filter) ([]Document, error)
	Get(ctx context.Context, id string) (Document, error)
	Create(ctx context.Context, doc Document) (Document, error)
	Patch(ctx context.Context, id string, set map[string]any) (Document, error)
	Delete(ctx context.Context, id string) error
	Commit(ctx context.Context, tx *Transaction) (TransactionResult, error)
}

// Operation names a mutation kind.
type Operation string

const (
	OpCreate Operation = "create"
	OpPatch  Operation = "update"
	OpDelete Operation = "delete"
)

// Mutation is one queued change.
type Mutation struct {
	Op       Operation
	Document Document
	ID       string
	Set      map[string]any
}

// Transaction queues mutations that are committed together.
type Transaction struct {
	mutations []Mutation
}

// NewTransaction returns an empty transaction.
func NewTransaction() *Transaction {
	return &Transaction{}
}

// Create queues a document creation.
func (t *Transaction) Create(doc Document) *Transaction {
	t.mutations = append(t.mutations, Mutation{Op: OpCreate, Document: doc})
	return t
}

// Patch queues a shallow merge of set into the body of document id.
func (t *Transaction) Patch(id string, set map[string]any) *Transaction {
	t.mutations = append(t.mutations, Mutation{Op: OpPatch, ID: id, Set: set})
	return t
}

// Delete queues a document deletion.
func (t *Transaction) Delete(id string) *Transaction {
	t.mutations = append(t.mutations, Mutation{Op: OpDelete, ID: id})
	return t
}

// Len returns the number of queued mutations.
func (t *Transaction) Len() int {
	if t == nil {
		return 0
	}
	return len(t.mutations)
}

// TransactionResult is what a successful commit reports.
type TransactionResult struct {
	TransactionID string           `json:"transactionId"`
	Results       []MutationResult `json:"results"`
}

// MutationResult identifies the document touched by one mutation.
type MutationResult struct {
	ID        string    `json:"id"`
	Operation Operation `json:"operation"`
}

// prepare validates a mutation and fills the document ID for creates.
func prepare(m Mutation) (Mutation, error) {
	switch m.Op {
	case OpCreate:
		if m.Document.Type == "" {
			return m, fmt.Errorf("%w: document type required", ErrInvalidMutation)
		}
		if len(m.Document.Body) == 0 {
			m.Document.Body = json.RawMessage(`{}`)
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(m.Document.Body, &fields); err != nil || fields == nil {
			return m, fmt.Errorf("%w: body must be a JSON object", ErrInvalidMutation)
		}
		if m.Document.ID == "" {
			m.Document.ID = uuid.NewString()
		}
		m.ID = m.Document.ID
	case OpPatch, OpDelete:
		if m.ID == "" {
			return m, fmt.Errorf("%w: document id required", ErrInvalidMutation)
		}
	default:
		return m, fmt.Errorf("%w: unknown operation %q", ErrInvalidMutation, m.Op)
	}
	return m, nil
}

func prepareAll(tx *Transaction) ([]Mutation, error) {
	if tx.Len() == 0 {
		return nil, fmt.Errorf("%w: empty transaction", ErrInvalidMutation)
	}
	out := make([]Mutation, 0, tx.Len())
	for _, m := range tx.mutations {
		p, err := prepare(m)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func newResult(muts []Mutation) TransactionResult {
	res := TransactionResult{TransactionID: uuid.NewString(), Results: make([]MutationResult, 0, len(muts))}
	for _, m := range muts {
		res.Results = append(res.Results, MutationResult{ID: m.ID, Operation: m.Op})
	}
	return res
}

// mergeBody applies set as a shallow merge over body.
func mergeBody(body json.RawMessage, set map[string]any) (json.RawMessage, error) {
	fields := map[string]any{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, err
		}
		if fields == nil {
			fields = map[string]any{}
		}
	}
	for k, v := range set {
		fields[k] = v
	}
	return json.Marshal(fields)
}
