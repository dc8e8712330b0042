package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gisman/bigcache/internal/cacheengine"
)

type setRequest struct {
	Value    json.RawMessage `json:"value"`
	Expire   *float64        `json:"expire"`
	Duration *string         `json:"duration"`
}

type setResponse struct {
	Key    string   `json:"key"`
	Value  json.RawMessage `json:"value"`
	Expire *float64 `json:"expire"`
}

type getResponse struct {
	Key      string          `json:"key"`
	Value    json.RawMessage `json:"value"`
	Expire   *float64        `json:"expire"`
	Duration *string         `json:"duration"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type countResponse struct {
	Count int64 `json:"count"`
}

type statsResponse struct {
	Stats cacheengine.Snapshot `json:"stats"`
}

func (s *server) handleSet(w http.ResponseWriter, r *http.Request) {
	key := normalizeKey(r.PathValue("key"))

	var req setRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed json body")
		return
	}

	e, err := s.engine(w)
	if err != nil {
		return
	}

	expire, err := e.Set(key, req.Value, req.Expire, req.Duration)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, setResponse{Key: key, Value: req.Value, Expire: expire})
}

func (s *server) handleGet(w http.ResponseWriter, r *http.Request) {
	key := normalizeKey(r.PathValue("key"))

	e, err := s.engine(w)
	if err != nil {
		return
	}

	rec, err := e.Get(key)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, getResponse{
		Key:      key,
		Value:    rec.Value,
		Expire:   rec.Expire,
		Duration: rec.Duration,
	})
}

func (s *server) handleDelete(w http.ResponseWriter, r *http.Request) {
	key := normalizeKey(r.PathValue("key"))

	e, err := s.engine(w)
	if err != nil {
		return
	}

	if err := e.Delete(key); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "deleted"})
}

func (s *server) handleSetOpaque(w http.ResponseWriter, r *http.Request) {
	key := normalizeKey(r.PathValue("key"))

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	e, err := s.engine(w)
	if err != nil {
		return
	}

	if err := e.SetOpaque(key, body); err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"key": key, "expire": "not set"})
}

func (s *server) handleGetOpaque(w http.ResponseWriter, r *http.Request) {
	key := normalizeKey(r.PathValue("key"))

	e, err := s.engine(w)
	if err != nil {
		return
	}

	data, err := e.GetOpaque(key)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *server) handleDeletePrefix(w http.ResponseWriter, r *http.Request) {
	prefix := normalizeKey(r.PathValue("prefix"))

	e, err := s.engine(w)
	if err != nil {
		return
	}

	n, err := e.DeletePrefix(prefix)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "deleted", "count": n})
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	e, err := s.engine(w)
	if err != nil {
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{Stats: e.Stats()})
}

func (s *server) handleCount(w http.ResponseWriter, r *http.Request) {
	e, err := s.engine(w)
	if err != nil {
		return
	}

	n, err := e.Count()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Count: n})
}

func (s *server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Clear(); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "cleared"})
}

func (s *server) handleClose(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Close(); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "closed"})
}

// engine fetches the active Cache Engine, writing a 500 response itself
// when the store has already been closed so callers can just check err.
func (s *server) engine(w http.ResponseWriter) (*cacheengine.Engine, error) {
	e, err := s.ctrl.Engine()
	if err != nil {
		writeEngineError(w, err)
		return nil, err
	}
	return e, nil
}

func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cacheengine.ErrMiss):
		writeError(w, http.StatusNotFound, "miss")
	case errors.Is(err, cacheengine.ErrExpired):
		writeError(w, http.StatusNotFound, "expired")
	case errors.Is(err, cacheengine.ErrBadRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "store unavailable")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, messageResponse{Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
