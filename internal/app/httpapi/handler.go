// Package httpapi exposes the token layer over HTTP: token CRUD, operation
// panels, workflow sessions, module management, registry views, the live
// operation feed, and system diagnostics.
package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	app "github.com/Issuance-Network/token_layer/internal/app"
	"github.com/Issuance-Network/token_layer/internal/app/domain/operation"
	"github.com/Issuance-Network/token_layer/internal/app/metrics"
	"github.com/Issuance-Network/token_layer/internal/app/services/tokens"
	"github.com/Issuance-Network/token_layer/internal/app/storage"
	"github.com/Issuance-Network/token_layer/internal/config"
	"github.com/Issuance-Network/token_layer/internal/errors"
	"github.com/Issuance-Network/token_layer/internal/middleware"
	"github.com/Issuance-Network/token_layer/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Options tunes the handler beyond what the application provides.
type Options struct {
	AuditMax      int
	AuditFilePath string
	Log           *logger.Logger

	// Done stops the rate limiter's eviction loop. Leave nil to skip
	// background eviction, e.g. in tests.
	Done <-chan struct{}
}

type handler struct {
	app     *app.Application
	audit   *auditLog
	log     *logger.Logger
	started time.Time
}

// NewHandler builds the full router with the middleware chain applied:
// tracing, CORS, authentication, rate limiting, metrics, and auditing.
func NewHandler(application *app.Application, cfg config.Config, opts Options) (http.Handler, error) {
	log := opts.Log
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	sink, err := newFileAuditSink(opts.AuditFilePath)
	if err != nil {
		return nil, fmt.Errorf("audit sink: %w", err)
	}
	h := &handler{
		app:     application,
		audit:   newAuditLog(opts.AuditMax, sink),
		log:     log,
		started: time.Now().UTC(),
	}

	r := mux.NewRouter()
	if cfg.Metrics.Enabled {
		r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	}
	h.routes(r.PathPrefix("/v1").Subrouter(), !cfg.Auth.Disabled)

	var chain http.Handler = r
	chain = h.audit.record(chain)
	limiter := middleware.NewRateLimiter(cfg.Auth.RateLimit, cfg.Auth.RateBurst, cfg.Auth.RateTTL, log)
	if opts.Done != nil && cfg.Auth.RateTTL > 0 {
		limiter.StartCleanup(cfg.Auth.RateTTL, opts.Done)
	}
	chain = limiter.Handler(chain)
	// Auth sits outside the limiter so keys come from the verified project
	// claim rather than the remote address.
	if !cfg.Auth.Disabled {
		auth := middleware.NewAuthMiddleware([]byte(cfg.Auth.JWTSecret), log, []string{
			"/v1/health", "/v1/ready", "/metrics",
		})
		chain = auth.Handler(chain)
	}
	chain = middleware.NewCORSMiddleware(cfg.Server.Origins()).Handler(chain)
	if cfg.Metrics.Enabled {
		chain = metrics.InstrumentHandler(chain)
	}
	chain = middleware.NewTracingMiddleware(log).Handler(chain)
	return chain, nil
}

func (h *handler) routes(v1 *mux.Router, guardProjects bool) {
	v1.HandleFunc("/health", h.health).Methods(http.MethodGet)
	v1.HandleFunc("/ready", h.ready).Methods(http.MethodGet)
	v1.HandleFunc("/system/status", h.systemStatus).Methods(http.MethodGet)

	v1.HandleFunc("/modules/registry", h.moduleRegistry).Methods(http.MethodGet)
	v1.HandleFunc("/modules/marketplace", h.moduleMarketplace).Methods(http.MethodGet)
	v1.HandleFunc("/modules/registry/{type}/versions", h.moduleVersions).Methods(http.MethodGet)

	v1.HandleFunc("/feed", h.feed).Methods(http.MethodGet)

	// Tenant-scoped routes. With auth enabled every request here must carry
	// a project claim; with auth disabled the X-Project-ID header stands in.
	scoped := v1.NewRoute().Subrouter()
	if guardProjects {
		scoped.Use(middleware.RequireProject)
	}

	scoped.HandleFunc("/tokens", h.createToken).Methods(http.MethodPost)
	scoped.HandleFunc("/tokens", h.listTokens).Methods(http.MethodGet)
	scoped.HandleFunc("/tokens/{id}", h.getToken).Methods(http.MethodGet)
	scoped.HandleFunc("/tokens/{id}", h.updateToken).Methods(http.MethodPatch)
	scoped.HandleFunc("/tokens/{id}/properties", h.tokenProperties).Methods(http.MethodGet)
	scoped.HandleFunc("/tokens/{id}/properties/{field}", h.patchProperty).Methods(http.MethodPatch)
	scoped.HandleFunc("/tokens/{id}/panel", h.tokenPanel).Methods(http.MethodGet)
	scoped.HandleFunc("/tokens/{id}/operations", h.tokenOperations).Methods(http.MethodGet)
	scoped.HandleFunc("/tokens/{id}/sessions", h.startSession).Methods(http.MethodPost)
	scoped.HandleFunc("/tokens/{id}/modules", h.tokenModules).Methods(http.MethodGet)

	scoped.HandleFunc("/operations/{id}", h.getOperation).Methods(http.MethodGet)

	scoped.HandleFunc("/sessions/{id}", h.getSession).Methods(http.MethodGet)
	scoped.HandleFunc("/sessions/{id}/submit", h.submitSession).Methods(http.MethodPost)
	scoped.HandleFunc("/sessions/{id}/execute", h.executeSession).Methods(http.MethodPost)
	scoped.HandleFunc("/sessions/{id}/back", h.backSession).Methods(http.MethodPost)
	scoped.HandleFunc("/sessions/{id}/reset", h.resetSession).Methods(http.MethodPost)

	scoped.HandleFunc("/audit", h.auditTrail).Methods(http.MethodGet)
}

// projectID resolves the tenant scope: auth claims first, the X-Project-ID
// header only when authentication is disabled and no claim is present.
func projectID(r *http.Request) string {
	if p := middleware.ProjectID(r.Context()); p != "" {
		return p
	}
	return strings.TrimSpace(r.Header.Get("X-Project-ID"))
}

type createTokenRequest struct {
	Standard    string                 `json:"standard"`
	Name        string                 `json:"name"`
	Symbol      string                 `json:"symbol"`
	Decimals    int                    `json:"decimals"`
	MaxSupply   string                 `json:"max_supply,omitempty"`
	Address     string                 `json:"address,omitempty"`
	ChainID     string                 `json:"chain_id,omitempty"`
	Metadata    map[string]string      `json:"metadata,omitempty"`
	Properties  map[string]interface{} `json:"properties,omitempty"`
	RecordIndex int                    `json:"record_index,omitempty"`
}

func (h *handler) createToken(w http.ResponseWriter, r *http.Request) {
	var req createTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	tok, err := h.app.Tokens.Create(r.Context(), projectID(r), tokens.CreateInput{
		Standard:    req.Standard,
		Name:        req.Name,
		Symbol:      req.Symbol,
		Decimals:    req.Decimals,
		MaxSupply:   req.MaxSupply,
		Address:     req.Address,
		ChainID:     req.ChainID,
		Metadata:    req.Metadata,
		Properties:  req.Properties,
		RecordIndex: req.RecordIndex,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tokenDTOFrom(tok))
}

func (h *handler) listTokens(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Tokens.List(r.Context(), projectID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]tokenDTO, 0, len(list))
	for _, tok := range list {
		out = append(out, tokenDTOFrom(tok))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tokens": out})
}

func (h *handler) getToken(w http.ResponseWriter, r *http.Request) {
	tok, err := h.app.Tokens.Get(r.Context(), projectID(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenDTOFrom(tok))
}

type updateTokenRequest struct {
	Name             *string           `json:"name,omitempty"`
	Symbol           *string           `json:"symbol,omitempty"`
	MaxSupply        *string           `json:"max_supply,omitempty"`
	Address          *string           `json:"address,omitempty"`
	ChainID          *string           `json:"chain_id,omitempty"`
	DeploymentStatus *string           `json:"deployment_status,omitempty"`
	Paused           *bool             `json:"paused,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

func (h *handler) updateToken(w http.ResponseWriter, r *http.Request) {
	var req updateTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	tok, err := h.app.Tokens.Update(r.Context(), projectID(r), mux.Vars(r)["id"], tokens.UpdateInput{
		Name:             req.Name,
		Symbol:           req.Symbol,
		MaxSupply:        req.MaxSupply,
		Address:          req.Address,
		ChainID:          req.ChainID,
		DeploymentStatus: req.DeploymentStatus,
		Paused:           req.Paused,
		Metadata:         req.Metadata,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenDTOFrom(tok))
}

func (h *handler) tokenProperties(w http.ResponseWriter, r *http.Request) {
	records, err := h.app.Tokens.Properties(r.Context(), projectID(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]propertiesDTO, 0, len(records))
	for _, rec := range records {
		out = append(out, propertiesDTOFrom(rec))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"properties": out})
}

type patchPropertyRequest struct {
	Value       interface{} `json:"value"`
	RecordIndex int         `json:"record_index,omitempty"`
}

func (h *handler) patchProperty(w http.ResponseWriter, r *http.Request) {
	var req patchPropertyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	vars := mux.Vars(r)
	rec, err := h.app.Tokens.SetPropertyField(r.Context(), projectID(r), vars["id"], req.RecordIndex, vars["field"], req.Value)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, propertiesDTOFrom(rec))
}

func (h *handler) tokenPanel(w http.ResponseWriter, r *http.Request) {
	panel, err := h.app.Panels.ForToken(r.Context(), projectID(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, panel)
}

func (h *handler) tokenOperations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.OperationFilter{
		Operation: operation.Type(q.Get("operation")),
		Status:    operation.Status(q.Get("status")),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, errors.InvalidInput("limit must be a non-negative integer"))
			return
		}
		filter.Limit = limit
	}
	records, err := h.app.Operations.History(r.Context(), projectID(r), mux.Vars(r)["id"], filter)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]operationDTO, 0, len(records))
	for _, rec := range records {
		out = append(out, operationDTOFrom(rec))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"operations": out})
}

func (h *handler) getOperation(w http.ResponseWriter, r *http.Request) {
	rec, err := h.app.Operations.Operation(r.Context(), projectID(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, operationDTOFrom(rec))
}

type startSessionRequest struct {
	Operation string `json:"operation"`
	Initiator string `json:"initiator,omitempty"`
}

func (h *handler) startSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	initiator := strings.TrimSpace(req.Initiator)
	if initiator == "" {
		initiator = middleware.UserID(r.Context())
	}
	session, err := h.app.Operations.StartSession(r.Context(), projectID(r), mux.Vars(r)["id"], initiator, operation.Type(strings.ToLower(strings.TrimSpace(req.Operation))))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionDTOFrom(session))
}

func (h *handler) getSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.app.Operations.Session(mux.Vars(r)["id"], projectID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionDTOFrom(session))
}

func (h *handler) submitSession(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, errors.InvalidInput("read request body"))
		return
	}
	snap, err := h.app.Operations.Submit(r.Context(), mux.Vars(r)["id"], projectID(r), raw)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *handler) executeSession(w http.ResponseWriter, r *http.Request) {
	snap, err := h.app.Operations.Execute(r.Context(), mux.Vars(r)["id"], projectID(r))
	if err != nil {
		writeSnapshotError(w, snap.State != "", snap, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *handler) backSession(w http.ResponseWriter, r *http.Request) {
	snap, err := h.app.Operations.Back(mux.Vars(r)["id"], projectID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *handler) resetSession(w http.ResponseWriter, r *http.Request) {
	snap, err := h.app.Operations.Reset(r.Context(), mux.Vars(r)["id"], projectID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *handler) tokenModules(w http.ResponseWriter, r *http.Request) {
	attachments, err := h.app.Modules.Attachments(r.Context(), projectID(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]attachmentDTO, 0, len(attachments))
	for _, att := range attachments {
		out = append(out, attachmentDTOFrom(att))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"modules": out})
}

func registryFilterFrom(q map[string][]string) storage.RegistryFilter {
	get := func(key string) string {
		if vals := q[key]; len(vals) > 0 {
			return strings.TrimSpace(vals[0])
		}
		return ""
	}
	return storage.RegistryFilter{
		ModuleType:  strings.ToLower(get("type")),
		Publisher:   get("publisher"),
		ChainID:     get("chain_id"),
		AuditedOnly: get("audited") == "true",
		ActiveOnly:  get("active") == "true",
		Search:      get("search"),
	}
}

func (h *handler) moduleRegistry(w http.ResponseWriter, r *http.Request) {
	entries, err := h.app.Registry.Marketplace(r.Context(), registryFilterFrom(r.URL.Query()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": registryDTOsFrom(entries)})
}

func (h *handler) moduleMarketplace(w http.ResponseWriter, r *http.Request) {
	filter := registryFilterFrom(r.URL.Query())
	filter.ActiveOnly = true
	entries, err := h.app.Registry.Marketplace(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": registryDTOsFrom(entries)})
}

func (h *handler) moduleVersions(w http.ResponseWriter, r *http.Request) {
	entries, err := h.app.Registry.Versions(r.Context(), mux.Vars(r)["type"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"versions": registryDTOsFrom(entries)})
}

func (h *handler) auditTrail(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, errors.InvalidInput("limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": h.audit.forProject(projectID(r), limit),
	})
}

func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.InvalidInput(fmt.Sprintf("invalid request body: %v", err))
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	serviceErr := errors.GetServiceError(err)
	if serviceErr == nil {
		serviceErr = errors.Internal("request failed", err)
	}
	writeJSON(w, serviceErr.HTTPStatus, map[string]interface{}{"error": serviceErr})
}

// writeSnapshotError includes the machine snapshot when a transition fails,
// so a client sees the preserved state alongside the error.
func writeSnapshotError(w http.ResponseWriter, hasSnap bool, snap interface{}, err error) {
	serviceErr := errors.GetServiceError(err)
	if serviceErr == nil {
		serviceErr = errors.Internal("request failed", err)
	}
	body := map[string]interface{}{"error": serviceErr}
	if hasSnap {
		body["session"] = snap
	}
	writeJSON(w, serviceErr.HTTPStatus, body)
}
