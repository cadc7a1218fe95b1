package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
)

const defaultMaxValueSize = 1 << 20

// Server holds the API server state
type Server struct {
	store   KVStore
	config  ServerConfig
	metrics *Metrics
}

// NewServer creates a new API server
func NewServer(store KVStore, config ServerConfig, metrics *Metrics) *Server {
	if config.MaxValueSize <= 0 {
		config.MaxValueSize = defaultMaxValueSize
	}
	return &Server{
		store:   store,
		config:  config,
		metrics: metrics,
	}
}

// record reports op to the metrics, if any.
func (s *Server) record(op string, err error, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordDBOperation(op, err, time.Since(start))
	}
}

// handleHealth reports that the server is up.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.metrics != nil {
		s.metrics.RecordHealthCheck(true)
	}
	sendSuccess(w, map[string]string{"status": "healthy"})
}

// handlePut stores the request body under key. The mode query parameter
// selects set (default), add, append or replace.
func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	key := chi.URLParam(r, "key")
	if key == "" {
		sendError(w, "Key is required", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.MaxValueSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			sendError(w, "Value too large", http.StatusRequestEntityTooLarge)
			return
		}
		sendError(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	mode := r.URL.Query().Get("mode")
	var stored = true
	switch mode {
	case "", "set":
		mode = "set"
		err = s.store.Set([]byte(key), body)
	case "add":
		stored, err = s.store.PutIfAbsent([]byte(key), body)
	case "append":
		err = s.store.Append([]byte(key), body)
	case "replace":
		stored, err = s.store.Replace([]byte(key), body)
	default:
		sendError(w, "Unknown mode "+strconv.Quote(mode), http.StatusBadRequest)
		return
	}
	s.record(mode, err, start)

	switch {
	case err != nil:
		sendStoreError(w, err)
	case !stored && mode == "add":
		sendError(w, "Key already exists", http.StatusConflict)
	case !stored:
		sendError(w, "Key not found", http.StatusNotFound)
	default:
		sendSuccess(w, map[string]string{"message": "Key-value pair stored successfully"})
	}
}

// handleGet writes the raw value of key.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	key := chi.URLParam(r, "key")
	if key == "" {
		sendError(w, "Key is required", http.StatusBadRequest)
		return
	}

	value, err := s.store.Get([]byte(key))
	s.record("get", err, start)
	if err != nil {
		sendStoreError(w, err)
		return
	}
	if value == nil {
		sendError(w, "Key not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(value)))
	_, _ = w.Write(value)
}

// handleDelete removes key.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	key := chi.URLParam(r, "key")
	if key == "" {
		sendError(w, "Key is required", http.StatusBadRequest)
		return
	}

	removed, err := s.store.Remove([]byte(key))
	s.record("delete", err, start)
	switch {
	case err != nil:
		sendStoreError(w, err)
	case !removed:
		sendError(w, "Key not found", http.StatusNotFound)
	default:
		sendSuccess(w, map[string]string{"message": "Key deleted successfully"})
	}
}

// handleIncrement adds to the counter stored under key.
func (s *Server) handleIncrement(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	key := chi.URLParam(r, "key")
	if key == "" {
		sendError(w, "Key is required", http.StatusBadRequest)
		return
	}

	req := IncrementRequest{Delta: 1}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			sendError(w, "Invalid JSON request", http.StatusBadRequest)
			return
		}
	}

	var (
		v   int64
		err error
	)
	switch {
	case req.Default != nil:
		v, err = s.store.IncrementOrSetDefaultString(key, req.Delta, *req.Default)
	case req.Create:
		v, err = s.store.IncrementOrSetString(key, req.Delta)
	default:
		v, err = s.store.IncrementString(key, req.Delta)
	}
	s.record("increment", err, start)
	if err != nil {
		sendStoreError(w, err)
		return
	}
	sendSuccess(w, IncrementResponse{Key: key, Value: v})
}

// handleKeys matches keys by exactly one of the prefix, regex or similar
// query parameters. limit caps the result; distance applies to similar.
func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	q := r.URL.Query()

	var limit int64 // zero lists every match
	if l := q.Get("limit"); l != "" {
		n, err := strconv.ParseInt(l, 10, 64)
		if err != nil || n < 1 {
			sendError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	given := 0
	for _, p := range []string{"prefix", "regex", "similar"} {
		if q.Has(p) {
			given++
		}
	}
	if given > 1 {
		sendError(w, "Use only one of prefix, regex or similar", http.StatusBadRequest)
		return
	}

	var (
		keys []string
		err  error
		op   string
	)
	switch {
	case q.Has("regex"):
		op = "match_regex"
		if limit > 0 {
			keys, err = s.store.MatchRegexStringLimit(q.Get("regex"), limit)
		} else {
			keys, err = s.store.MatchRegexString(q.Get("regex"))
		}
	case q.Has("similar"):
		distance := 1
		if d := q.Get("distance"); d != "" {
			if distance, err = strconv.Atoi(d); err != nil || distance < 0 {
				sendError(w, "distance must be a non-negative integer", http.StatusBadRequest)
				return
			}
		}
		op = "match_similar"
		if limit > 0 {
			keys, err = s.store.MatchSimilarStringLimit(q.Get("similar"), distance, limit)
		} else {
			keys, err = s.store.MatchSimilarString(q.Get("similar"), distance)
		}
	default:
		op = "match_prefix"
		if limit > 0 {
			keys, err = s.store.MatchPrefixStringLimit(q.Get("prefix"), limit)
		} else {
			keys, err = s.store.MatchPrefixString(q.Get("prefix"))
		}
	}
	s.record(op, err, start)
	if err != nil {
		sendStoreError(w, err)
		return
	}
	if keys == nil {
		keys = []string{}
	}
	sendSuccess(w, KeysResponse{Keys: keys})
}

// handleStatus describes the open database.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	resp, err := s.status()
	s.record("status", err, start)
	if err != nil {
		sendStoreError(w, err)
		return
	}
	sendSuccess(w, resp)
}

func (s *Server) status() (*StatusResponse, error) {
	var (
		resp StatusResponse
		err  error
	)
	if resp.Path, err = s.store.Path(); err != nil {
		return nil, err
	}
	typ, err := s.store.Type()
	if err != nil {
		return nil, err
	}
	resp.Type = typ.String()
	if resp.Count, err = s.store.Count(); err != nil {
		return nil, err
	}
	if resp.Size, err = s.store.SizeInBytes(); err != nil {
		return nil, err
	}
	if resp.Status, err = s.store.Status(); err != nil {
		return nil, err
	}
	resp.Encoding = s.store.Encoding()
	return &resp, nil
}

// refreshStats copies the record count and size into the gauges.
func (s *Server) refreshStats() error {
	count, err := s.store.Count()
	if err != nil {
		return err
	}
	size, err := s.store.SizeInBytes()
	if err != nil {
		return err
	}
	s.metrics.UpdateDBStats(count, size)
	return nil
}
