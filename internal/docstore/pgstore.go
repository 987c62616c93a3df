package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storedash/storedash/internal/platform/db"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const documentColumns = `id, doc_type, COALESCE(slug, ''), body, created_at, updated_at`

// PGStore keeps documents in the PostgreSQL documents table.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs a PostgreSQL backed store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Query returns documents matching filter.
func (s *PGStore) Query(ctx context.Context, filter Filter) ([]Document, error) {
	query, args, err := buildQuery(filter)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("docstore: query: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// buildQuery renders filter as SQL. Rows written by one commit share
// created_at, so seq keeps them in insertion order.
func buildQuery(filter Filter) (string, []any, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE 1=1`
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.Type != "" {
		query += ` AND doc_type = ` + arg(filter.Type)
	}
	if filter.ID != "" {
		query += ` AND id = ` + arg(filter.ID)
	}
	if filter.Slug != "" {
		query += ` AND slug = ` + arg(filter.Slug)
	}
	if len(filter.Match) > 0 {
		match, err := json.Marshal(filter.Match)
		if err != nil {
			return "", nil, fmt.Errorf("docstore: encode match: %w", err)
		}
		query += ` AND body @> ` + arg(string(match)) + `::jsonb`
	}
	if filter.Newest {
		query += ` ORDER BY created_at DESC, seq DESC`
	} else {
		query += ` ORDER BY created_at ASC, seq ASC`
	}
	if filter.Limit > 0 {
		query += ` LIMIT ` + arg(filter.Limit)
	}
	return query, args, nil
}

// Get fetches one document by ID.
func (s *PGStore) Get(ctx context.Context, id string) (Document, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	return doc, err
}

// Create inserts a single document.
func (s *PGStore) Create(ctx context.Context, doc Document) (Document, error) {
	m, err := prepare(Mutation{Op: OpCreate, Document: doc})
	if err != nil {
		return Document{}, err
	}
	return insert(ctx, s.pool, m.Document)
}

// Patch merges set into the body of document id.
func (s *PGStore) Patch(ctx context.Context, id string, set map[string]any) (Document, error) {
	if _, err := prepare(Mutation{Op: OpPatch, ID: id}); err != nil {
		return Document{}, err
	}
	return patch(ctx, s.pool, id, set)
}

// Delete removes document id.
func (s *PGStore) Delete(ctx context.Context, id string) error {
	return remove(ctx, s.pool, id)
}

// Commit applies every mutation in one database transaction.
func (s *PGStore) Commit(ctx context.Context, tx *Transaction) (TransactionResult, error) {
	muts, err := prepareAll(tx)
	if err != nil {
		return TransactionResult{}, err
	}
	err = db.WithTx(ctx, s.pool, func(q pgx.Tx) error {
		for _, m := range muts {
			var err error
			switch m.Op {
			case OpCreate:
				_, err = insert(ctx, q, m.Document)
			case OpPatch:
				_, err = patch(ctx, q, m.ID, m.Set)
			case OpDelete:
				err = remove(ctx, q, m.ID)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return TransactionResult{}, err
	}
	return newResult(muts), nil
}

func insert(ctx context.Context, q querier, doc Document) (Document, error) {
	var slug *string
	if doc.Slug != "" {
		slug = &doc.Slug
	}
	err := q.QueryRow(ctx,
		`INSERT INTO documents (id, doc_type, slug, body) VALUES ($1, $2, $3, $4::jsonb) RETURNING created_at, updated_at`,
		doc.ID, doc.Type, slug, string(doc.Body),
	).Scan(&doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return Document{}, translate(err)
	}
	return doc, nil
}

func patch(ctx context.Context, q querier, id string, set map[string]any) (Document, error) {
	payload, err := json.Marshal(set)
	if err != nil {
		return Document{}, fmt.Errorf("docstore: encode patch: %w", err)
	}
	row := q.QueryRow(ctx,
		`UPDATE documents SET body = body || $2::jsonb, updated_at = now() WHERE id = $1 RETURNING `+documentColumns,
		id, string(payload),
	)
	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, translate(err)
	}
	return doc, nil
}

func remove(ctx context.Context, q querier, id string) error {
	tag, err := q.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanDocument(row pgx.Row) (Document, error) {
	var (
		doc  Document
		body []byte
	)
	if err := row.Scan(&doc.ID, &doc.Type, &doc.Slug, &body, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return Document{}, err
	}
	doc.Body = json.RawMessage(body)
	return doc, nil
}

func translate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
	}
	return fmt.Errorf("docstore: %w", err)
}

var _ Store = (*PGStore)(nil)
