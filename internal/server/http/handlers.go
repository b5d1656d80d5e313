package httpserver

import (
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/and161185/passvault/internal/errs"
	"github.com/and161185/passvault/internal/model"
	"github.com/and161185/passvault/internal/service"
)

// List returns every record of the owner given by query parameters s (displayName)
// and e (email), with plaintext passwords.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	owner := model.OwnerIdentity{DisplayName: q.Get("s"), Email: q.Get("e")}
	if owner.DisplayName == "" || owner.Email == "" || !storable(owner.DisplayName, owner.Email) {
		writeError(w, http.StatusBadRequest, msgInvalidRequest)
		return
	}

	recs, err := h.gw.FindByOwner(r.Context(), owner)
	if err != nil {
		h.logger(r).Error("list passwords", zap.Error(err))
		writeError(w, http.StatusInternalServerError, msgFetchFailed)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

// Check reports whether a record for site and username exists for the owner.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	site, username := q.Get("site"), q.Get("username")
	owner := model.OwnerIdentity{DisplayName: q.Get("userDisplayName"), Email: q.Get("userEmail")}
	if site == "" || username == "" || owner.DisplayName == "" || owner.Email == "" ||
		!storable(site, username, owner.DisplayName, owner.Email) {
		writeError(w, http.StatusBadRequest, msgInvalidRequest)
		return
	}

	id, found, err := h.gw.Exists(r.Context(), site, username, owner)
	if err != nil {
		h.logger(r).Error("check password", zap.Error(err))
		writeError(w, http.StatusInternalServerError, msgServerError)
		return
	}
	if !found {
		writeJSON(w, http.StatusOK, checkResponse{Exists: false})
		return
	}
	writeJSON(w, http.StatusOK, checkResponse{Exists: true, ID: &id})
}

// Save validates the body and stores a new record.
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	raw, ok := h.readBody(w, r)
	if !ok {
		return
	}
	req, err := model.ParseSaveRequest(raw)
	if err != nil {
		h.logger(r).Debug("save: rejected body", zap.Error(err))
		writeError(w, http.StatusBadRequest, msgInvalidRequest)
		return
	}

	id, err := h.gw.Save(r.Context(), req.Form, req.User)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, saveResponse{Success: true, Result: id})
	case errors.Is(err, errs.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, msgInvalidRequest)
	default:
		h.logger(r).Error("save password", zap.Error(err))
		writeError(w, http.StatusInternalServerError, msgServerError)
	}
}

// DeleteLoose removes at most one record matching the flat filter {id} merged with user.
func (h *Handler) DeleteLoose(w http.ResponseWriter, r *http.Request) {
	raw, ok := h.readBody(w, r)
	if !ok {
		return
	}
	req, err := model.ParseLooseDeleteRequest(raw)
	if err != nil {
		h.logger(r).Debug("delete: rejected body", zap.Error(err))
		writeError(w, http.StatusBadRequest, msgInvalidRequest)
		return
	}

	removed, err := h.del.DeleteByOwnerMatch(r.Context(), req.ID, req.User, r.RemoteAddr)
	switch {
	case err == nil && removed:
		writeJSON(w, http.StatusOK, looseDeleteResponse{Success: true, Result: deletedCount{DeletedCount: 1}})
	case err == nil:
		writeJSON(w, http.StatusNotFound, messageResponse{Message: msgPasswordNotFound})
	case errors.Is(err, errs.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, msgInvalidRequest)
	case h.rateLimited(w, err):
	default:
		h.logger(r).Error("delete password", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, messageResponse{Error: msgDeleteFailed})
	}
}

// DeleteByID removes the record named by the path id. Ids that are not UUIDs
// cannot exist and get the same 404 as a miss.
func (h *Handler) DeleteByID(w http.ResponseWriter, r *http.Request) {
	removed, err := h.del.DeleteByID(r.Context(), r.PathValue("id"), r.RemoteAddr)
	switch {
	case err == nil && removed:
		writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: msgFormDeleted})
	case err == nil:
		writeJSON(w, http.StatusNotFound, messageResponse{Message: msgFormNotFound})
	case h.rateLimited(w, err):
	default:
		h.logger(r).Error("delete form", zap.Error(err))
		writeError(w, http.StatusInternalServerError, msgServerError)
	}
}

// Healthz reports whether the store answers a ping.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.health(r.Context()); err != nil {
		h.logger(r).Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// rateLimited writes a 429 with Retry-After when err is a limiter block.
func (h *Handler) rateLimited(w http.ResponseWriter, err error) bool {
	if !errors.Is(err, errs.ErrRateLimited) {
		return false
	}
	var ra *service.RetryAfterError
	if errors.As(err, &ra) && ra.After > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(ra.After.Seconds()))))
	}
	writeJSON(w, http.StatusTooManyRequests, messageResponse{Message: msgTooManyMisses})
	return true
}

// storable rejects query values the store cannot compare (NUL, invalid UTF-8).
func storable(vals ...string) bool {
	for _, v := range vals {
		if !model.Storable(v) {
			return false
		}
	}
	return true
}

func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidRequest)
		return nil, false
	}
	return raw, true
}

func (h *Handler) logger(r *http.Request) *zap.Logger {
	if id, ok := RequestIDFromCtx(r.Context()); ok {
		return h.log.With(zap.String("request_id", id))
	}
	return h.log
}
