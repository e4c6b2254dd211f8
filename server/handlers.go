package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/jonwraymond/ledgerops/ledger"
	"github.com/jonwraymond/ledgerops/observe"
)

var errBadRequest = errors.New("bad request")

const maxBodyBytes = 1 << 20

// entryRequest is the body of create and update.
type entryRequest struct {
	Date        string `json:"date"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	Type        string `json:"type"`
}

func (e entryRequest) entry() (ledger.Entry, error) {
	t, err := ledger.ParseEntryType(e.Type)
	if err != nil {
		return ledger.Entry{}, err
	}
	date, err := parseDate(e.Date)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("%w: %w", ledger.ErrInvalidEntry, err)
	}
	return ledger.Entry{
		Date:        date,
		Amount:      e.Amount,
		Description: e.Description,
		Type:        t,
	}, nil
}

// parseDate accepts RFC 3339 timestamps and YYYY-MM-DD dates.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q is not YYYY-MM-DD or RFC 3339", s)
	}
	return t, nil
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid body: %w", errBadRequest, err)
	}
	return nil
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, message string, err error, ids ...string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), message,
			observe.Field{Key: "path", Value: r.URL.Path},
			observe.Field{Key: "error", Value: err},
		)
	}
	writeJSON(w, status, failure(message, err, ids...))
}

func (s *Server) handleGetAll(w http.ResponseWriter, r *http.Request) {
	entries, err := s.service.All(r.Context())
	if err != nil {
		s.fail(w, r, "failed to query entries", err)
		return
	}
	writeJSON(w, http.StatusOK, ok("query succeeded", entries))
}

func (s *Server) handleGetByType(w http.ResponseWriter, r *http.Request) {
	t, err := ledger.ParseEntryType(r.PathValue("tipo"))
	if err != nil {
		s.fail(w, r, "invalid entry type", err)
		return
	}
	entries, err := s.service.ByType(r.Context(), t)
	if err != nil {
		s.fail(w, r, "failed to query entries by type", err)
		return
	}
	writeJSON(w, http.StatusOK, ok("query succeeded", entries))
}

func (s *Server) handleGetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.fail(w, r, "invalid entry id", fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}
	e, err := s.service.ByID(r.Context(), id)
	if err != nil {
		s.fail(w, r, "failed to query entry", err, id.String())
		return
	}
	writeJSON(w, http.StatusOK, ok("query succeeded", []ledger.Entry{e}))
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := time.Parse(time.DateOnly, q.Get("from"))
	if err != nil {
		s.fail(w, r, "invalid date range", fmt.Errorf("%w: from: %w", ledger.ErrInvalidRange, err))
		return
	}
	to, err := time.Parse(time.DateOnly, q.Get("to"))
	if err != nil {
		s.fail(w, r, "invalid date range", fmt.Errorf("%w: to: %w", ledger.ErrInvalidRange, err))
		return
	}
	balances, err := s.service.Balances(r.Context(), from, to)
	if err != nil {
		s.fail(w, r, "failed to query balances", err)
		return
	}
	writeJSON(w, http.StatusOK, ok("query succeeded", balances))
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req entryRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, "invalid entry", err)
		return
	}
	e, err := req.entry()
	if err != nil {
		s.fail(w, r, "invalid entry", err)
		return
	}
	created, err := s.service.Create(r.Context(), e)
	if err != nil {
		s.fail(w, r, "failed to create entry", err)
		return
	}
	s.logger.Info(r.Context(), "entry created", observe.Field{Key: "id", Value: created.ID.String()})
	w.Header().Set("Location", "/api/lancamento/getbyid/"+created.ID.String())
	writeJSON(w, http.StatusCreated, ok("entry created", []ledger.Entry{created}))
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.fail(w, r, "invalid entry id", fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}
	var req entryRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, "invalid entry", err, id.String())
		return
	}
	e, err := req.entry()
	if err != nil {
		s.fail(w, r, "invalid entry", err, id.String())
		return
	}
	e.ID = id
	updated, err := s.service.Update(r.Context(), e)
	if err != nil {
		s.fail(w, r, "failed to update entry", err, id.String())
		return
	}
	writeJSON(w, http.StatusOK, ok("entry updated", []ledger.Entry{updated}))
}

func (s *Server) handleDeleteMany(w http.ResponseWriter, r *http.Request) {
	var raw []string
	if err := decodeBody(r, &raw); err != nil {
		s.fail(w, r, "invalid id list", err)
		return
	}
	if len(raw) == 0 {
		s.fail(w, r, "at least one id is required", ledger.ErrEmptyIDs)
		return
	}
	ids := make([]uuid.UUID, 0, len(raw))
	for _, v := range raw {
		id, err := uuid.Parse(v)
		if err != nil {
			s.fail(w, r, "invalid id list", fmt.Errorf("%w: %w", errBadRequest, err), v)
			return
		}
		ids = append(ids, id)
	}

	removed, err := s.service.DeleteMany(r.Context(), ids)
	if err != nil {
		s.fail(w, r, "failed to delete entries", err, raw...)
		return
	}
	out := make([]string, 0, len(removed))
	for _, id := range removed {
		out = append(out, id.String())
	}
	writeJSON(w, http.StatusOK, ok(fmt.Sprintf("%d entries deleted", len(out)), out))
}
