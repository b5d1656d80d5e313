// Package service contains the store gateway: the layer that encrypts passwords on the
// way in, decrypts them on the way out, and maps store failures onto errs sentinels.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/passvault/internal/errs"
	"github.com/and161185/passvault/internal/model"
	"github.com/and161185/passvault/internal/repository"
)

// Cipher is the password codec used by the gateway. *crypto.Cipher implements it.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(encoded string) (string, error)
}

// Observer receives per-operation timings. A nil Observer is allowed.
type Observer interface {
	StoreOp(op string, took time.Duration, err error)
	DecryptFailed()
}

// Store operation names reported to the Observer.
const (
	OpFindByOwner        = "find_by_owner"
	OpExists             = "exists"
	OpSave               = "save"
	OpDeleteByID         = "delete_by_id"
	OpDeleteByOwnerMatch = "delete_by_owner_match"
)

// CredentialGateway defines query and mutation operations over credential records.
type CredentialGateway interface {
	// FindByOwner returns all records of owner with decrypted passwords.
	FindByOwner(ctx context.Context, owner model.OwnerIdentity) ([]model.CredentialRecord, error)
	// Exists reports whether a record with site, username and owner is stored.
	Exists(ctx context.Context, site, username string, owner model.OwnerIdentity) (uuid.UUID, bool, error)
	// Save encrypts the password and inserts a new record.
	Save(ctx context.Context, form model.CredentialForm, owner model.OwnerIdentity) (uuid.UUID, error)
	// DeleteByID removes a record by id.
	DeleteByID(ctx context.Context, id uuid.UUID) (bool, error)
	// DeleteByOwnerMatch removes at most one record containing the flat filter {id} merged with user.
	DeleteByOwnerMatch(ctx context.Context, looseID any, user map[string]any) (bool, error)
	// Ping checks the store.
	Ping(ctx context.Context) error
}

// Gateway is the CredentialGateway over a repository and a Cipher.
type Gateway struct {
	repo   repository.CredentialRepository
	cipher Cipher
	obs    Observer
}

var _ CredentialGateway = (*Gateway)(nil)

// NewGateway constructs a gateway over repo. obs may be nil.
func NewGateway(repo repository.CredentialRepository, c Cipher, obs Observer) *Gateway {
	if obs == nil {
		obs = nopObserver{}
	}
	return &Gateway{repo: repo, cipher: c, obs: obs}
}

// FindByOwner decrypts every password before returning. One undecryptable record
// fails the whole call; the error names its id.
func (g *Gateway) FindByOwner(ctx context.Context, owner model.OwnerIdentity) ([]model.CredentialRecord, error) {
	start := time.Now()
	recs, err := g.repo.FindByOwner(ctx, owner)
	g.obs.StoreOp(OpFindByOwner, time.Since(start), err)
	if err != nil {
		return nil, storeErr("find by owner", err)
	}
	for i := range recs {
		pt, err := g.cipher.Decrypt(recs[i].Form.Password)
		if err != nil {
			g.obs.DecryptFailed()
			return nil, fmt.Errorf("record %s: %w", recs[i].ID, err)
		}
		recs[i].Form.Password = pt
	}
	return recs, nil
}

// Exists never touches the password.
func (g *Gateway) Exists(ctx context.Context, site, username string, owner model.OwnerIdentity) (uuid.UUID, bool, error) {
	start := time.Now()
	id, err := g.repo.FindOneID(ctx, site, username, owner)
	g.obs.StoreOp(OpExists, time.Since(start), err)
	switch {
	case err == nil:
		return id, true, nil
	case errors.Is(err, errs.ErrNotFound):
		return uuid.Nil, false, nil
	default:
		return uuid.Nil, false, storeErr("exists", err)
	}
}

// Save performs no duplicate check: two saves of the same form yield two records.
func (g *Gateway) Save(ctx context.Context, form model.CredentialForm, owner model.OwnerIdentity) (uuid.UUID, error) {
	if form.Site == "" || form.Username == "" || form.Password == "" {
		return uuid.Nil, fmt.Errorf("%w: empty site/username/password", errs.ErrInvalidRequest)
	}
	enc, err := g.cipher.Encrypt(form.Password)
	if err != nil {
		return uuid.Nil, fmt.Errorf("encrypt: %w", err)
	}
	form.Password = enc

	start := time.Now()
	id, err := g.repo.Insert(ctx, model.Document{Form: form, User: owner})
	g.obs.StoreOp(OpSave, time.Since(start), err)
	if err != nil {
		return uuid.Nil, storeErr("save", err)
	}
	return id, nil
}

// DeleteByID reports false, not an error, when nothing was removed.
func (g *Gateway) DeleteByID(ctx context.Context, id uuid.UUID) (bool, error) {
	start := time.Now()
	ok, err := g.repo.DeleteByID(ctx, id)
	g.obs.StoreOp(OpDeleteByID, time.Since(start), err)
	if err != nil {
		return false, storeErr("delete by id", err)
	}
	return ok, nil
}

// DeleteByOwnerMatch builds the filter by laying user's keys over {"id": looseID}.
// Stored documents are {form, user} with no top-level "id" key, and the filter always
// carries one, so it never matches a document written by Save. The method is kept for
// wire compatibility; callers that need a delete should use DeleteByID.
func (g *Gateway) DeleteByOwnerMatch(ctx context.Context, looseID any, user map[string]any) (bool, error) {
	if looseID == nil || user == nil {
		return false, fmt.Errorf("%w: id and user are required", errs.ErrInvalidRequest)
	}
	filter := make(map[string]any, len(user)+1)
	filter["id"] = looseID
	for k, v := range user {
		filter[k] = v
	}

	start := time.Now()
	ok, err := g.repo.DeleteOneMatching(ctx, filter)
	g.obs.StoreOp(OpDeleteByOwnerMatch, time.Since(start), err)
	if err != nil {
		return false, storeErr("delete by owner match", err)
	}
	return ok, nil
}

// Ping reports whether the store is reachable, wrapped as errs.ErrStoreUnavailable.
func (g *Gateway) Ping(ctx context.Context) error {
	if err := g.repo.Ping(ctx); err != nil {
		return storeErr("ping", err)
	}
	return nil
}

func storeErr(op string, err error) error {
	if errors.Is(err, errs.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, errs.ErrStoreUnavailable, err)
}

type nopObserver struct{}

func (nopObserver) StoreOp(string, time.Duration, error) {}
func (nopObserver) DecryptFailed()                       {}
