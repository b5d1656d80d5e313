package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xeipuuv/gojsonschema"

	"github.com/and161185/passvault/internal/errs"
)

const saveRequestSchema = `{
  "type": "object",
  "required": ["form", "user"],
  "properties": {
    "form": {
      "type": "object",
      "required": ["site", "username", "password"],
      "properties": {
        "site":     {"type": "string", "minLength": 1},
        "username": {"type": "string", "minLength": 1},
        "password": {"type": "string", "minLength": 1}
      }
    },
    "user": {
      "type": "object",
      "properties": {
        "displayName": {"type": "string"},
        "email":       {"type": "string"}
      }
    }
  }
}`

// The loose delete matches on whatever the caller puts into user, so user is only
// required to be an object.
const looseDeleteRequestSchema = `{
  "type": "object",
  "required": ["id", "user"],
  "properties": {
    "id":   {"type": ["string", "number"], "minLength": 1},
    "user": {"type": "object"}
  }
}`

var (
	saveSchema        = mustSchema(saveRequestSchema)
	looseDeleteSchema = mustSchema(looseDeleteRequestSchema)
)

func mustSchema(src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("model: compile schema: %v", err))
	}
	return s
}

// SaveRequest is the body of the save operation.
type SaveRequest struct {
	Form CredentialForm `json:"form"`
	User OwnerIdentity  `json:"user"`
}

// LooseDeleteRequest is the body of the structural-filter delete. ID is kept untyped:
// the filter compares it as whatever JSON value the caller sent.
type LooseDeleteRequest struct {
	ID   any            `json:"id"`
	User map[string]any `json:"user"`
}

// ParseSaveRequest validates raw against the save schema and decodes it.
// Any violation is reported as errs.ErrInvalidRequest.
func ParseSaveRequest(raw []byte) (SaveRequest, error) {
	var req SaveRequest
	if err := validate(saveSchema, raw); err != nil {
		return req, err
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return req, fmt.Errorf("%w: %v", errs.ErrInvalidRequest, err)
	}
	// password is stored encrypted, so only the plaintext-stored fields are checked
	for _, v := range []string{req.Form.Site, req.Form.Username, req.User.DisplayName, req.User.Email} {
		if !Storable(v) {
			return req, fmt.Errorf("%w: field contains NUL or invalid UTF-8", errs.ErrInvalidRequest)
		}
	}
	return req, nil
}

// ParseLooseDeleteRequest validates raw against the loose delete schema and decodes it,
// preserving numeric ids exactly.
func ParseLooseDeleteRequest(raw []byte) (LooseDeleteRequest, error) {
	var req LooseDeleteRequest
	if err := validate(looseDeleteSchema, raw); err != nil {
		return req, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		return req, fmt.Errorf("%w: %v", errs.ErrInvalidRequest, err)
	}
	if !storableValue(req.ID) || !storableValue(req.User) {
		return req, fmt.Errorf("%w: value contains NUL or invalid UTF-8", errs.ErrInvalidRequest)
	}
	return req, nil
}

// Storable reports whether s can be stored in or compared against a Postgres text or
// jsonb value: it must be valid UTF-8 without NUL characters.
func Storable(s string) bool {
	return utf8.ValidString(s) && !strings.ContainsRune(s, 0)
}

func storableValue(v any) bool {
	switch t := v.(type) {
	case string:
		return Storable(t)
	case map[string]any:
		for k, e := range t {
			if !Storable(k) || !storableValue(e) {
				return false
			}
		}
	case []any:
		for _, e := range t {
			if !storableValue(e) {
				return false
			}
		}
	}
	return true
}

func validate(schema *gojsonschema.Schema, raw []byte) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return fmt.Errorf("%w: empty body", errs.ErrInvalidRequest)
	}
	res, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrInvalidRequest, err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %s", errs.ErrInvalidRequest, strings.Join(msgs, "; "))
	}
	return nil
}
