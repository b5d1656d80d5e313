package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/passvault/internal/errs"
	"github.com/and161185/passvault/internal/model"
	"github.com/and161185/passvault/internal/repository"
)

var _ repository.CredentialRepository = (*CredentialRepo)(nil)

// CredentialRepo implements CredentialRepository over a JSONB document table.
type CredentialRepo struct {
	db    *DB
	table string // quoted identifier
	q     queries
}

type queries struct {
	findByOwner    string
	findOneID      string
	insert         string
	deleteByID     string
	deleteMatching string
}

// NewCredentialRepo constructs a credential repository over the given collection (table).
func NewCredentialRepo(db *DB, collection string) *CredentialRepo {
	if collection == "" {
		collection = DefaultCollection
	}
	t := pgx.Identifier{collection}.Sanitize()
	return &CredentialRepo{db: db, table: t, q: queries{
		findByOwner: `
SELECT id, doc
FROM ` + t + `
WHERE doc->'user'->>'displayName' = $1 AND doc->'user'->>'email' = $2
ORDER BY created_at, id`,
		findOneID: `
SELECT id
FROM ` + t + `
WHERE doc->'form'->>'site' = $1 AND doc->'form'->>'username' = $2
  AND doc->'user'->>'displayName' = $3 AND doc->'user'->>'email' = $4
ORDER BY created_at, id
LIMIT 1`,
		insert:     `INSERT INTO ` + t + ` (doc) VALUES ($1::jsonb) RETURNING id`,
		deleteByID: `DELETE FROM ` + t + ` WHERE id = $1`,
		deleteMatching: `
DELETE FROM ` + t + `
WHERE id = (SELECT id FROM ` + t + ` WHERE doc @> $1::jsonb ORDER BY created_at, id LIMIT 1)`,
	}}
}

// FindByOwner returns every document of the owner, oldest first.
func (r *CredentialRepo) FindByOwner(ctx context.Context, owner model.OwnerIdentity) ([]model.CredentialRecord, error) {
	rows, err := r.db.Pool.Query(ctx, r.q.findByOwner, owner.DisplayName, owner.Email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.CredentialRecord{}
	for rows.Next() {
		var (
			id  uuid.UUID
			raw []byte
		)
		if err = rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		var doc model.Document
		if err = json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode document %s: %w", id, err)
		}
		out = append(out, model.CredentialRecord{ID: id, Form: doc.Form, User: doc.User})
	}
	return out, rows.Err()
}

// FindOneID returns the id of the oldest document matching all four fields.
func (r *CredentialRepo) FindOneID(ctx context.Context, site, username string, owner model.OwnerIdentity) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.db.Pool.QueryRow(ctx, r.q.findOneID, site, username, owner.DisplayName, owner.Email).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, errs.ErrNotFound
		}
		return uuid.Nil, err
	}
	return id, nil
}

// Insert writes doc in one statement; the id comes from the column default.
func (r *CredentialRepo) Insert(ctx context.Context, doc model.Document) (uuid.UUID, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return uuid.Nil, fmt.Errorf("encode document: %w", err)
	}
	var id uuid.UUID
	if err := r.db.Pool.QueryRow(ctx, r.q.insert, string(b)).Scan(&id); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// DeleteByID removes one document by primary key.
func (r *CredentialRepo) DeleteByID(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, r.q.deleteByID, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteOneMatching removes the oldest document for which doc @> filter holds.
func (r *CredentialRepo) DeleteOneMatching(ctx context.Context, filter map[string]any) (bool, error) {
	b, err := json.Marshal(filter)
	if err != nil {
		return false, fmt.Errorf("encode filter: %w", err)
	}
	tag, err := r.db.Pool.Exec(ctx, r.q.deleteMatching, string(b))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// CheckCollection fails when the collection table does not exist. The table name is
// baked into the first migration, so pointing an already migrated database at a new
// collection leaves it missing; startup calls this to fail fast instead.
func (r *CredentialRepo) CheckCollection(ctx context.Context) error {
	var exists bool
	if err := r.db.Pool.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, r.table).Scan(&exists); err != nil {
		return fmt.Errorf("check collection %s: %w", r.table, err)
	}
	if !exists {
		return fmt.Errorf("collection %s does not exist; it is created by the first migration only, migrate a fresh database or keep the original collection name", r.table)
	}
	return nil
}

// Ping checks the store is reachable.
func (r *CredentialRepo) Ping(ctx context.Context) error { return r.db.Ping(ctx) }
