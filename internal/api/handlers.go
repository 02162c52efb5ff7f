// ABOUTME: Request handlers mapping HTTP calls onto store operations
// ABOUTME: Translates store errors into JSON error responses with matching status codes

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/2389/till/internal/auth"
	"github.com/2389/till/internal/store"
)

// idempotencyHeader carries a client-chosen key for safely retrying creates.
const idempotencyHeader = "Idempotency-Key"

// PruneRequest is the body of POST /api/changes/prune. Exactly one field is set.
type PruneRequest struct {
	Before    string `json:"before,omitempty"`
	OlderThan string `json:"olderThan,omitempty"`
}

// handleGet handles GET /api/tables/{table}.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	table := store.Table(mux.Vars(r)["table"])

	v, err := s.store.Get(r.Context(), table)
	if err != nil {
		s.sendStoreError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, v)
}

// handleCreate handles POST /api/tables/{table}. A repeated Idempotency-Key
// from the same caller gets the first response back without a second create.
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	table := store.Table(mux.Vars(r)["table"])

	var replayKey string
	if key := r.Header.Get(idempotencyHeader); key != "" {
		replayKey = auth.Subject(r.Context()) + "\x00" + string(table) + "\x00" + key
		if cached, ok := s.replays.Get(replayKey); ok {
			w.Header().Set("Idempotent-Replayed", "true")
			writeBody(w, cached.status, cached.body)
			return
		}
	}

	data, ok := s.decodeFields(w, r)
	if !ok {
		return
	}

	rec, err := s.store.Create(r.Context(), table, data)
	if err != nil {
		s.sendStoreError(w, r, err)
		return
	}

	body, err := json.Marshal(rec)
	if err != nil {
		sendJSONError(w, http.StatusInternalServerError, "encoding response failed")
		return
	}
	if replayKey != "" {
		s.replays.Put(replayKey, replay{status: http.StatusCreated, body: body})
	}
	writeBody(w, http.StatusCreated, body)
}

// handleUpdate handles PATCH /api/tables/{table}/{id} and PATCH /api/tables/shop.
// A missing record answers 200 with a null body.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	table, id := tableAndID(r)

	patch, ok := s.decodeFields(w, r)
	if !ok {
		return
	}

	rec, err := s.store.Update(r.Context(), table, id, patch)
	if err != nil {
		s.sendStoreError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, rec)
}

// handleDelete handles DELETE /api/tables/{table}/{id} and DELETE /api/tables/shop.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	table, id := tableAndID(r)

	removed, err := s.store.Delete(r.Context(), table, id)
	if err != nil {
		s.sendStoreError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, map[string]bool{"deleted": removed})
}

// handleChanges handles GET /api/changes?since=T&table=X.
func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	changes, err := s.store.ChangesSince(r.Context(), q.Get("since"), store.Table(q.Get("table")))
	if err != nil {
		s.sendStoreError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, map[string][]store.ChangeEntry{"changes": changes})
}

// handlePrune handles POST /api/changes/prune.
func (s *Server) handlePrune(w http.ResponseWriter, r *http.Request) {
	var req PruneRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	cutoff, err := pruneCutoff(req, time.Now())
	if err != nil {
		sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	pruned, err := s.store.PruneChanges(r.Context(), cutoff)
	if err != nil {
		s.sendStoreError(w, r, err)
		return
	}
	s.logger.Info("change log pruned via api", "pruned", pruned, "subject", auth.Subject(r.Context()))
	sendJSON(w, http.StatusOK, map[string]int{"pruned": pruned})
}

func pruneCutoff(req PruneRequest, now time.Time) (time.Time, error) {
	switch {
	case req.Before != "" && req.OlderThan != "":
		return time.Time{}, errors.New("set either before or olderThan, not both")
	case req.Before != "":
		t, ok := store.ParseTimestamp(req.Before)
		if !ok {
			return time.Time{}, fmt.Errorf("unparsable before %q", req.Before)
		}
		return t, nil
	case req.OlderThan != "":
		d, err := time.ParseDuration(req.OlderThan)
		if err != nil || d < 0 {
			return time.Time{}, fmt.Errorf("invalid olderThan %q", req.OlderThan)
		}
		return now.Add(-d), nil
	default:
		return time.Time{}, errors.New("before or olderThan is required")
	}
}

// tableAndID reads route vars; the shop routes carry neither.
func tableAndID(r *http.Request) (store.Table, string) {
	vars := mux.Vars(r)
	table, ok := vars["table"]
	if !ok {
		table = string(store.TableShop)
	}
	return store.Table(table), vars["id"]
}

// decodeFields reads a JSON object body. It writes a 400 and returns false on failure.
func (s *Server) decodeFields(w http.ResponseWriter, r *http.Request) (store.Fields, bool) {
	var fields store.Fields
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&fields); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return nil, false
	}
	return fields, true
}

// sendStoreError maps store errors onto HTTP statuses.
func (s *Server) sendStoreError(w http.ResponseWriter, r *http.Request, err error) {
	var storageErr *store.StorageError
	switch {
	case errors.Is(err, store.ErrInvalidKey):
		sendJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrInvalidArgument):
		sendJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrClosed):
		sendJSONError(w, http.StatusServiceUnavailable, "store is shutting down")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// Client went away; the mutation and its write still complete
		s.logger.Debug("request abandoned", "path", r.URL.Path, "error", err)
		sendJSONError(w, http.StatusServiceUnavailable, "request cancelled")
	case errors.As(err, &storageErr):
		s.logger.Error("storage failure", "op", storageErr.Op, "path", r.URL.Path, "error", err)
		sendJSONError(w, http.StatusInternalServerError, "storage error")
	default:
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
		sendJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}
