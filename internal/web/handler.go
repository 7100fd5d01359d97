// Package web serves the JSON API used by the wiki browser client.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/cexll/repowiki/internal/concurrency"
	"github.com/cexll/repowiki/internal/githost"
	"github.com/cexll/repowiki/internal/mermaid"
	"github.com/cexll/repowiki/internal/repourl"
	"github.com/cexll/repowiki/internal/research"
	"github.com/cexll/repowiki/internal/wikicache"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const maxBodyBytes = 10 << 20

// HostClientFunc returns a client for a provider, authenticated with token
// when it is not empty.
type HostClientFunc func(t repourl.Type, token string) (githost.Client, error)

// Handler handles API requests
type Handler struct {
	logger     *zap.Logger
	cache      wikicache.Store
	render     mermaid.RenderConfig
	parser     repourl.Parser
	hostClient HostClientFunc
	validate   *validator.Validate
	// serializes writes per wiki cache key
	writes *concurrency.Manager
}

// Options configures a Handler.
type Options struct {
	Logger       *zap.Logger
	Cache        wikicache.Store
	RenderConfig mermaid.RenderConfig
	Parser       repourl.Parser
	HostClient   HostClientFunc
}

// NewHandler creates a new API handler
func NewHandler(opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Cache == nil {
		opts.Cache = wikicache.NewMemoryStore()
	}
	if opts.HostClient == nil {
		opts.HostClient = func(t repourl.Type, token string) (githost.Client, error) {
			return githost.NewClient(t, githost.Options{Token: token, Logger: opts.Logger})
		}
	}
	return &Handler{
		logger:     opts.Logger.Named("web"),
		cache:      opts.Cache,
		render:     opts.RenderConfig,
		parser:     opts.Parser,
		hostClient: opts.HostClient,
		validate:   validator.New(),
		writes:     concurrency.NewManager(),
	}
}

// RegisterRoutes registers API routes and the request id middleware
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.Use(h.requestID)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/diagrams/sanitize", h.handleSanitize).Methods("POST")
	api.HandleFunc("/diagrams/sanitize_markdown", h.handleSanitizeMarkdown).Methods("POST")
	api.HandleFunc("/diagrams/failures", h.handleFailure).Methods("POST")
	api.HandleFunc("/diagrams/config", h.handleRenderConfig).Methods("GET")
	api.HandleFunc("/research/status", h.handleResearchStatus).Methods("POST")
	api.HandleFunc("/repos/structure", h.handleRepoStructure).Methods("GET")
	api.HandleFunc("/wiki_cache/list", h.handleCacheList).Methods("GET")
	api.HandleFunc("/wiki_cache", h.handleCacheGet).Methods("GET")
	api.HandleFunc("/wiki_cache", h.handleCachePut).Methods("PUT")
	api.HandleFunc("/wiki_cache", h.handleCacheDelete).Methods("DELETE")

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods("GET")
}

type ctxKey struct{}

// requestID tags every request with an id, reusing a valid incoming one.
func (h *Handler) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		logger := h.logger.With(zap.String("request_id", id))
		logger.Debug("request", zap.String("method", r.Method), zap.String("path", r.URL.Path))
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, logger)))
	})
}

func (h *Handler) log(r *http.Request) *zap.Logger {
	if l, ok := r.Context().Value(ctxKey{}).(*zap.Logger); ok {
		return l
	}
	return h.logger
}

type sanitizeRequest struct {
	Source string `json:"source" validate:"max=1000000"`
}

type sanitizeResponse struct {
	Dialect mermaid.Dialect `json:"dialect"`
	Cleaned string          `json:"cleaned"`
	Changed bool            `json:"changed"`
}

func (h *Handler) handleSanitize(w http.ResponseWriter, r *http.Request) {
	var req sanitizeRequest
	if !h.decode(w, r, &req) {
		return
	}
	cleaned := mermaid.Sanitize(req.Source)
	writeJSON(w, http.StatusOK, sanitizeResponse{
		Dialect: mermaid.DetectDialect(req.Source),
		Cleaned: cleaned,
		Changed: cleaned != strings.TrimSpace(req.Source),
	})
}

type sanitizeMarkdownRequest struct {
	Markdown string `json:"markdown" validate:"max=10000000"`
}

type sanitizeMarkdownResponse struct {
	Markdown      string `json:"markdown"`
	ChangedBlocks int    `json:"changed_blocks"`
}

func (h *Handler) handleSanitizeMarkdown(w http.ResponseWriter, r *http.Request) {
	var req sanitizeMarkdownRequest
	if !h.decode(w, r, &req) {
		return
	}
	doc, changed := mermaid.SanitizeMarkdown(req.Markdown)
	writeJSON(w, http.StatusOK, sanitizeMarkdownResponse{Markdown: doc, ChangedBlocks: changed})
}

type failureRequest struct {
	Source string `json:"source" validate:"required"`
	Error  string `json:"error" validate:"required"`
}

func (h *Handler) handleFailure(w http.ResponseWriter, r *http.Request) {
	var req failureRequest
	if !h.decode(w, r, &req) {
		return
	}
	report := mermaid.NewRenderFailure(req.Source, req.Error)
	h.log(r).Warn("diagram render failed",
		zap.String("dialect", string(report.Dialect)),
		zap.String("engine_error", report.EngineError),
		zap.Int("source_bytes", len(report.Original)))
	writeJSON(w, http.StatusOK, report)
}

type renderConfigResponse struct {
	Theme  string               `json:"theme"`
	Config mermaid.RenderConfig `json:"config"`
	CSS    string               `json:"css"`
}

func (h *Handler) handleRenderConfig(w http.ResponseWriter, r *http.Request) {
	dark := r.URL.Query().Get("theme") == "dark"
	theme := "light"
	if dark {
		theme = "dark"
	}
	writeJSON(w, http.StatusOK, renderConfigResponse{Theme: theme, Config: h.render, CSS: h.render.CSSFor(dark)})
}

type researchRequest struct {
	Content   string `json:"content" validate:"required"`
	Iteration int    `json:"iteration" validate:"min=1"`
}

func (h *Handler) handleResearchStatus(w http.ResponseWriter, r *http.Request) {
	var req researchRequest
	if !h.decode(w, r, &req) {
		return
	}
	st := research.Evaluate(req.Content, req.Iteration)
	if st.Forced {
		h.log(r).Info("research forced to conclude", zap.Int("iteration", req.Iteration))
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) handleRepoStructure(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	raw := q.Get("repo_url")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "repo_url is required")
		return
	}

	repo, err := h.parser.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if repo.Type == repourl.Local {
		writeError(w, http.StatusBadRequest, "local repositories are read by the client")
		return
	}

	client, err := h.hostClient(repo.Type, q.Get("token"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	structure, err := githost.FetchStructure(r.Context(), client, repo.Owner, repo.Name)
	if err != nil {
		status := hostErrorStatus(err)
		h.log(r).Warn("fetch repository structure failed",
			zap.String("repo", repo.FullName()),
			zap.String("type", string(repo.Type)),
			zap.Int("status", status),
			zap.Error(err))
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, structure)
}

// hostErrorStatus maps a host failure to the status returned to the client.
func hostErrorStatus(err error) int {
	if errors.Is(err, githost.ErrNotFound) {
		return http.StatusNotFound
	}
	var statusErr *githost.StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return statusErr.StatusCode
		}
	}
	return http.StatusBadGateway
}

func cacheKey(r *http.Request) wikicache.Key {
	q := r.URL.Query()
	return wikicache.Key{
		Owner:    q.Get("owner"),
		Repo:     q.Get("repo"),
		RepoType: q.Get("repo_type"),
		Language: q.Get("language"),
	}
}

func (h *Handler) handleCacheGet(w http.ResponseWriter, r *http.Request) {
	key := cacheKey(r)
	if err := key.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entry, err := h.cache.Get(r.Context(), key)
	if err != nil {
		h.cacheError(w, r, key, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) handleCachePut(w http.ResponseWriter, r *http.Request) {
	key := cacheKey(r)
	if err := key.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var entry wikicache.Entry
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	entry.Key = key

	err := h.writes.Guard(key.String(), func() error {
		return h.cache.Put(r.Context(), &entry)
	})
	if err != nil {
		h.cacheError(w, r, key, err)
		return
	}
	h.log(r).Info("wiki cached", zap.String("key", key.String()), zap.Int("pages", len(entry.GeneratedPages)))
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (h *Handler) handleCacheDelete(w http.ResponseWriter, r *http.Request) {
	key := cacheKey(r)
	if err := key.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	err := h.writes.Guard(key.String(), func() error {
		return h.cache.Delete(r.Context(), key)
	})
	if err != nil {
		h.cacheError(w, r, key, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) handleCacheList(w http.ResponseWriter, r *http.Request) {
	list, err := h.cache.List(r.Context())
	if err != nil {
		h.log(r).Error("list wiki cache failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list wiki cache")
		return
	}
	if list == nil {
		list = []wikicache.Summary{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) cacheError(w http.ResponseWriter, r *http.Request, key wikicache.Key, err error) {
	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, wikicache.ErrNotFound):
		writeError(w, http.StatusNotFound, "wiki cache entry not found")
	case errors.Is(err, concurrency.ErrBusy):
		writeError(w, http.StatusConflict, "wiki cache entry is being written")
	case errors.As(err, &verrs):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.log(r).Error("wiki cache failure", zap.String("key", key.String()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "wiki cache failure")
	}
}

// decode reads a JSON body into v and validates it. It writes the error
// response itself and reports whether the handler should continue.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
