// Package model defines domain entities used by services and repositories.
package model

import (
	"github.com/gofrs/uuid/v5"
)

// OwnerIdentity scopes credential records to a caller. It is a matching key supplied by
// the caller on every request, not an account: nothing enforces uniqueness.
type OwnerIdentity struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

// CredentialForm is a single site credential. Password is plaintext at the API boundary
// and ciphertext ("<ivHex>:<cipherHex>") inside the store.
type CredentialForm struct {
	Site     string `json:"site"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// CredentialRecord is a persisted credential tagged with its owner.
type CredentialRecord struct {
	ID   uuid.UUID      `json:"_id"` // generated by the store on insert
	Form CredentialForm `json:"form"`
	User OwnerIdentity  `json:"user"`
}

// Document is the stored body of a record; the id lives outside of it.
type Document struct {
	Form CredentialForm `json:"form"`
	User OwnerIdentity  `json:"user"`
}
