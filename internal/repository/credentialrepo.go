// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/passvault/internal/model"
)

// CredentialRepository is the document-store query interface behind the gateway.
// It stores and returns passwords exactly as given; encryption happens above it.
type CredentialRepository interface {
	// FindByOwner returns all documents whose user.displayName and user.email equal owner's.
	FindByOwner(ctx context.Context, owner model.OwnerIdentity) ([]model.CredentialRecord, error)

	// FindOneID returns the id of one document matching site, username and owner,
	// or errs.ErrNotFound.
	FindOneID(ctx context.Context, site, username string, owner model.OwnerIdentity) (uuid.UUID, error)

	// Insert stores a new document in a single write and returns its store-generated id.
	Insert(ctx context.Context, doc model.Document) (uuid.UUID, error)

	// DeleteByID removes the document with id and reports whether one was removed.
	DeleteByID(ctx context.Context, id uuid.UUID) (bool, error)

	// DeleteOneMatching removes at most one document that contains filter as a
	// sub-document and reports whether one was removed.
	DeleteOneMatching(ctx context.Context, filter map[string]any) (bool, error)

	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error
}
