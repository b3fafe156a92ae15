// Package server exposes a repository gate and a key registry over HTTP.
//
// The API is deliberately unauthenticated: the repository accepts writes from
// anyone who can produce a valid proof, and reads reveal nothing to clients
// who cannot derive the sequence hashes they are after.
package server

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hushwire/hushwire/pkg/hashchain"
	"github.com/hushwire/hushwire/pkg/keyring"
	"github.com/hushwire/hushwire/pkg/notify"
	"github.com/hushwire/hushwire/pkg/party"
	"github.com/hushwire/hushwire/pkg/proof"
	"github.com/hushwire/hushwire/pkg/repository"
)

// Server routes HTTP requests to a repository client and a key registry.
type Server struct {
	repo repository.Client
	keys keyring.Registry
	log  *zap.Logger
}

// New builds a Server. A nil logger disables request logging.
func New(repo repository.Client, keys keyring.Registry, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{repo: repo, keys: keys, log: log}
}

// Router assembles the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))
	r.Use(s.requestLogger)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/messages", s.postMessage)
		r.Get("/messages/{hash}", s.getMessage)
		r.Get("/filter", s.getFilter)
		r.Get("/filter/epochs", s.getEpochs)
		r.Get("/filter/epochs/{epoch}", s.getArchivedFilter)
		r.Post("/keys", s.postKey)
		r.Get("/keys/{account}", s.getKey)
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// MessageRequest is the write body. Byte fields travel as base64, the JSON
// default for []byte.
type MessageRequest struct {
	SequenceHash []byte `json:"sequence_hash"`
	Ciphertext   []byte `json:"ciphertext"`
	Proof        []byte `json:"proof"`
}

// MessageResponse is the read body.
type MessageResponse struct {
	Ciphertext []byte    `json:"ciphertext"`
	StoredAt   time.Time `json:"stored_at"`
}

// EpochsResponse lists archived epochs.
type EpochsResponse struct {
	Epochs []uint64 `json:"epochs"`
}

// KeyRequest publishes an account's public key.
type KeyRequest struct {
	Account   string `json:"account"`
	PublicKey string `json:"public_key"`
}

// KeyResponse returns an account's public key.
type KeyResponse struct {
	Account   string `json:"account"`
	PublicKey string `json:"public_key"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	h, err := hashchain.SequenceHashFromBytes(req.SequenceHash)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	err = s.repo.Write(r.Context(), h, req.Ciphertext, req.Proof)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, map[string]string{"status": "accepted"})
	case errors.Is(err, repository.ErrDuplicateKey):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, proof.ErrInvalidProof):
		writeError(w, http.StatusUnprocessableEntity, err)
	case errors.Is(err, repository.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func (s *Server) getMessage(w http.ResponseWriter, r *http.Request) {
	raw, err := hex.DecodeString(chi.URLParam(r, "hash"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	h, err := hashchain.SequenceHashFromBytes(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	entry, err := s.repo.Read(r.Context(), h)
	if errors.Is(err, repository.ErrUnavailable) {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if entry == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Ciphertext: entry.Ciphertext, StoredAt: entry.StoredAt})
}

func (s *Server) writeFilter(w http.ResponseWriter, f *notify.Filter) {
	data, err := f.Marshal()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/cbor")
	_, _ = w.Write(data)
}

func (s *Server) getFilter(w http.ResponseWriter, r *http.Request) {
	f, err := s.repo.CurrentFilter(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeFilter(w, f)
}

func (s *Server) getEpochs(w http.ResponseWriter, r *http.Request) {
	epochs, err := s.repo.Epochs(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if epochs == nil {
		epochs = []uint64{}
	}
	writeJSON(w, http.StatusOK, EpochsResponse{Epochs: epochs})
}

func (s *Server) getArchivedFilter(w http.ResponseWriter, r *http.Request) {
	epoch, err := strconv.ParseUint(chi.URLParam(r, "epoch"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	f, err := s.repo.ArchivedFilter(r.Context(), epoch)
	if errors.Is(err, notify.ErrUnknownEpoch) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeFilter(w, f)
}

func (s *Server) postKey(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req KeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Account == "" {
		writeError(w, http.StatusBadRequest, errors.New("server: missing account"))
		return
	}
	id := party.ID(req.PublicKey)
	if err := id.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.keys.Publish(r.Context(), req.Account, id); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getKey(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	id, err := s.keys.Lookup(r.Context(), account)
	if errors.Is(err, keyring.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, KeyResponse{Account: account, PublicKey: string(id)})
}
