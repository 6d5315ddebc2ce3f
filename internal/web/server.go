package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"cosmossdk.io/math"
	"github.com/elys-network/autocompound/internal/compounder"
	"github.com/elys-network/autocompound/internal/logger"
	"github.com/elys-network/autocompound/internal/types"
	"github.com/elys-network/autocompound/internal/utils"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var webLogger = logger.GetForComponent("web_server")

const (
	defaultLimit = 20
	maxLimit     = 100
)

// WebServer exposes the engine's accessors and operations over HTTP.
type WebServer struct {
	router *mux.Router
	port   string
	engine *compounder.Engine
	audit  AuditLog
	health func(ctx context.Context) error
	server *http.Server

	credentials *Credentials
}

// Config holds the dependencies of a WebServer.
type Config struct {
	Port   string
	Engine *compounder.Engine
	Audit  AuditLog                        // Optional; event routes return 404 without it
	Health func(ctx context.Context) error // Optional dependency check, e.g. the database ping

	// Credentials authenticate the mutating routes. Without them every mutating route
	// answers 401 and the API is read-only.
	Credentials *Credentials
}

// NewWebServer creates a new web server instance
func NewWebServer(cfg Config) (*WebServer, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("web server configuration validation failed: engine cannot be nil")
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}

	ws := &WebServer{
		router: mux.NewRouter(),
		port:   cfg.Port,
		engine: cfg.Engine,
		audit:  cfg.Audit,
		health: cfg.Health,

		credentials: cfg.Credentials,
	}
	if ws.credentials == nil {
		webLogger.Warn().Msg("No API credentials configured, mutating routes are disabled")
	}
	ws.setupRoutes()
	return ws, nil
}

// Handler returns the router, for tests and embedding.
func (ws *WebServer) Handler() http.Handler {
	return ws.router
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")
	ws.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/parameters", ws.handleGetParameters).Methods("GET")

	// Pools. Hooks and forced flushes need an operator token, compounds a participant token.
	api.HandleFunc("/pools", ws.handleGetPools).Methods("GET")
	api.HandleFunc("/pools/{pool}", ws.handleGetPool).Methods("GET")
	api.HandleFunc("/pools/{pool}/batch", ws.handleGetPendingBatch).Methods("GET")
	api.HandleFunc("/pools/{pool}/batches", ws.handleGetPoolBatches).Methods("GET")
	api.HandleFunc("/pools/{pool}/participants", ws.handleGetActiveParticipants).Methods("GET")
	api.HandleFunc("/pools/{pool}/initialize", ws.requireOperator(ws.handleInitializePool)).Methods("POST")
	api.HandleFunc("/pools/{pool}/swaps", ws.requireOperator(ws.handleSwap)).Methods("POST")
	api.HandleFunc("/pools/{pool}/liquidity/add", ws.requireOperator(ws.handleLiquidity(true))).Methods("POST")
	api.HandleFunc("/pools/{pool}/liquidity/remove", ws.requireOperator(ws.handleLiquidity(false))).Methods("POST")
	api.HandleFunc("/pools/{pool}/compound", ws.requireParticipant(ws.handleCompound)).Methods("POST")
	api.HandleFunc("/pools/{pool}/emergency-compound", ws.requireParticipant(ws.handleEmergencyCompound)).Methods("POST")
	api.HandleFunc("/pools/{pool}/schedule", ws.requireParticipant(ws.handleScheduleCompound)).Methods("POST")
	api.HandleFunc("/pools/{pool}/force-batch", ws.requireOperator(ws.handleForceBatch)).Methods("POST")

	// Participants. Strategy changes need the named participant's own token.
	api.HandleFunc("/participants/{participant}/strategy", ws.handleGetStrategy).Methods("GET")
	api.HandleFunc("/participants/{participant}/strategy/activate", ws.requireParticipant(ws.handleActivate)).Methods("POST")
	api.HandleFunc("/participants/{participant}/strategy/deactivate", ws.requireParticipant(ws.handleDeactivate)).Methods("POST")
	api.HandleFunc("/participants/{participant}/strategy/update", ws.requireParticipant(ws.handleUpdate)).Methods("POST")
	api.HandleFunc("/participants/{participant}/pools/{pool}", ws.handleGetParticipantPool).Methods("GET")
	api.HandleFunc("/participants/{participant}/events", ws.handleGetParticipantEvents).Methods("GET")

	// Audit log
	api.HandleFunc("/events", ws.handleGetEvents).Methods("GET")
	api.HandleFunc("/batches/summary", ws.handleGetBatchSummary).Methods("GET")

	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Start starts the web server. It returns http.ErrServerClosed after Shutdown.
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	ws.server = &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return ws.server.ListenAndServe()
}

// Shutdown gracefully stops a started server.
func (ws *WebServer) Shutdown(ctx context.Context) error {
	if ws.server == nil {
		return nil
	}
	return ws.server.Shutdown(ctx)
}

// handleHealth returns server health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	dependencyHealthy := true
	var dependencyError string
	if ws.health != nil {
		if err := ws.health(r.Context()); err != nil {
			dependencyHealthy = false
			dependencyError = err.Error()
		}
	}

	pools := ws.engine.GetPools()
	pending := 0
	for _, p := range pools {
		pending += ws.engine.GetPendingBatchSize(p.PoolID)
	}

	overallStatus := "OK"
	statusCode := http.StatusOK
	if !dependencyHealthy {
		overallStatus = "DEGRADED"
		statusCode = http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
		},
		"engine": map[string]interface{}{
			"pools":             len(pools),
			"pending_requests":  pending,
			"cost_gate_enabled": ws.engine.Parameters().CostGateEnabled,
		},
		"dependencies": map[string]interface{}{
			"healthy": dependencyHealthy,
			"error":   dependencyError,
		},
	}
	ws.writeJSONResponse(w, statusCode, response)
}

func (ws *WebServer) handleGetParameters(w http.ResponseWriter, r *http.Request) {
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"parameters": ws.engine.Parameters(),
		"timestamp":  time.Now().UTC(),
	})
}

func (ws *WebServer) handleGetPools(w http.ResponseWriter, r *http.Request) {
	pools := ws.engine.GetPools()
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"pools": pools,
		"count": len(pools),
	})
}

func (ws *WebServer) handleGetPool(w http.ResponseWriter, r *http.Request) {
	pool := poolVar(r)
	agg, ok := ws.engine.GetPool(pool)
	if !ok {
		ws.writeErrorResponse(w, http.StatusNotFound, "Pool not found")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, agg)
}

func (ws *WebServer) handleGetPendingBatch(w http.ResponseWriter, r *http.Request) {
	pool := poolVar(r)
	requests := ws.engine.GetPendingBatch(pool)
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"pool":           pool,
		"requests":       requests,
		"size":           len(requests),
		"should_execute": ws.engine.ShouldExecuteBatch(r.Context(), pool),
	})
}

func (ws *WebServer) handleGetActiveParticipants(w http.ResponseWriter, r *http.Request) {
	pool := poolVar(r)
	participants := ws.engine.GetActiveParticipants(pool)
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"pool":         pool,
		"participants": participants,
		"count":        len(participants),
	})
}

func (ws *WebServer) handleGetStrategy(w http.ResponseWriter, r *http.Request) {
	participant := participantVar(r)
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"participant": participant,
		"strategy":    ws.engine.GetStrategy(participant),
		"gas_credits": ws.engine.GetGasCredits(participant),
	})
}

func (ws *WebServer) handleGetParticipantPool(w http.ResponseWriter, r *http.Request) {
	participant, pool := participantVar(r), poolVar(r)
	reason := ws.engine.EligibilityReason(r.Context(), participant, pool)
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"participant":     participant,
		"pool":            pool,
		"fee_accounting":  ws.engine.GetFeeAccounting(participant, pool),
		"should_compound": reason == "",
		"reason":          reason,
	})
}

type initializeRequest struct {
	FeeTier uint32 `json:"fee_tier"`
}

func (ws *WebServer) handleInitializePool(w http.ResponseWriter, r *http.Request) {
	var req initializeRequest
	if !ws.decode(w, r, &req) {
		return
	}
	pool := poolVar(r)
	if err := ws.engine.AfterInitialize(r.Context(), pool, req.FeeTier); err != nil {
		ws.writeEngineError(w, err)
		return
	}
	agg, _ := ws.engine.GetPool(pool)
	ws.writeJSONResponse(w, http.StatusCreated, agg)
}

type swapRequest struct {
	Trader  types.Address `json:"trader"`
	Delta0  string        `json:"delta0"`
	Delta1  string        `json:"delta1"`
	FeeTier uint32        `json:"fee_tier"`
}

func (ws *WebServer) handleSwap(w http.ResponseWriter, r *http.Request) {
	var req swapRequest
	if !ws.decode(w, r, &req) {
		return
	}
	if req.Trader == "" {
		ws.writeErrorResponse(w, http.StatusBadRequest, "trader is required")
		return
	}
	d0, err := utils.ParseDelta(req.Delta0)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid delta0: "+err.Error())
		return
	}
	d1, err := utils.ParseDelta(req.Delta1)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid delta1: "+err.Error())
		return
	}

	ack, err := ws.engine.AfterSwap(r.Context(), compounder.SwapEvent{
		Trader:  req.Trader,
		Pool:    poolVar(r),
		Delta0:  d0,
		Delta1:  d1,
		FeeTier: req.FeeTier,
	})
	if err != nil {
		ws.writeEngineError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, ack)
}

type amountRequest struct {
	Participant types.Address `json:"participant"`
	Amount      string        `json:"amount"`
}

func (ws *WebServer) handleLiquidity(add bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req amountRequest
		if !ws.decode(w, r, &req) {
			return
		}
		amount, ok := ws.parseAmount(w, req.Amount)
		if !ok {
			return
		}

		pool := poolVar(r)
		var err error
		if add {
			err = ws.engine.AfterAddLiquidity(r.Context(), req.Participant, pool, amount)
		} else {
			err = ws.engine.AfterRemoveLiquidity(r.Context(), req.Participant, pool, amount)
		}
		if err != nil {
			ws.writeEngineError(w, err)
			return
		}
		ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
			"participant": req.Participant,
			"pool":        pool,
			"strategy":    ws.engine.GetStrategy(req.Participant),
		})
	}
}

type participantRequest struct {
	Participant types.Address `json:"participant"`
}

func (ws *WebServer) handleCompound(w http.ResponseWriter, r *http.Request) {
	var req participantRequest
	if !ws.decode(w, r, &req) {
		return
	}
	caller, ok := ws.actingCaller(w, r, req.Participant)
	if !ok {
		return
	}
	pool := poolVar(r)
	if err := ws.engine.Compound(r.Context(), caller, pool); err != nil {
		ws.writeEngineError(w, err)
		return
	}
	ws.writeParticipantPool(w, caller, pool)
}

func (ws *WebServer) handleEmergencyCompound(w http.ResponseWriter, r *http.Request) {
	var req participantRequest
	if !ws.decode(w, r, &req) {
		return
	}
	caller, ok := ws.actingCaller(w, r, req.Participant)
	if !ok {
		return
	}
	pool := poolVar(r)
	if err := ws.engine.EmergencyCompound(r.Context(), caller, pool); err != nil {
		ws.writeEngineError(w, err)
		return
	}
	ws.writeParticipantPool(w, caller, pool)
}

func (ws *WebServer) handleScheduleCompound(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !ws.decode(w, r, &req) {
		return
	}
	caller, ok := ws.actingCaller(w, r, req.Participant)
	if !ok {
		return
	}
	amount, ok := ws.parseAmount(w, req.Amount)
	if !ok {
		return
	}
	pool := poolVar(r)
	if err := ws.engine.ScheduleCompound(r.Context(), caller, pool, amount); err != nil {
		ws.writeEngineError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusAccepted, map[string]interface{}{
		"pool":       pool,
		"batch_size": ws.engine.GetPendingBatchSize(pool),
	})
}

func (ws *WebServer) handleForceBatch(w http.ResponseWriter, r *http.Request) {
	pool := poolVar(r)
	if err := ws.engine.ForceBatchExecution(r.Context(), pool); err != nil {
		ws.writeEngineError(w, err)
		return
	}
	agg, _ := ws.engine.GetPool(pool)
	ws.writeJSONResponse(w, http.StatusOK, agg)
}

type strategyRequest struct {
	Pool          types.PoolID `json:"pool"`
	CostThreshold uint64       `json:"cost_threshold"`
	RiskLevel     uint8        `json:"risk_level"`
}

func (ws *WebServer) handleActivate(w http.ResponseWriter, r *http.Request) {
	var req strategyRequest
	if !ws.decode(w, r, &req) {
		return
	}
	participant := participantVar(r)
	if err := ws.engine.ActivateStrategy(r.Context(), participant, req.Pool, req.CostThreshold, req.RiskLevel); err != nil {
		ws.writeEngineError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusCreated, ws.engine.GetStrategy(participant))
}

func (ws *WebServer) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	var req strategyRequest
	if !ws.decode(w, r, &req) {
		return
	}
	participant := participantVar(r)
	if err := ws.engine.DeactivateStrategy(r.Context(), participant, req.Pool); err != nil {
		ws.writeEngineError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, ws.engine.GetStrategy(participant))
}

func (ws *WebServer) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req strategyRequest
	if !ws.decode(w, r, &req) {
		return
	}
	participant := participantVar(r)
	if err := ws.engine.UpdateStrategy(r.Context(), participant, req.CostThreshold, req.RiskLevel); err != nil {
		ws.writeEngineError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, ws.engine.GetStrategy(participant))
}

func (ws *WebServer) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	if ws.audit == nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "Event history is not available")
		return
	}
	limit := limitParam(r)
	records, err := ws.audit.RecentEvents(r.Context(), limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get recent events")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve events")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"events": records,
		"count":  len(records),
		"limit":  limit,
	})
}

func (ws *WebServer) handleGetParticipantEvents(w http.ResponseWriter, r *http.Request) {
	if ws.audit == nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "Event history is not available")
		return
	}
	participant := participantVar(r)
	limit := limitParam(r)
	records, err := ws.audit.ParticipantEvents(r.Context(), participant, limit)
	if err != nil {
		webLogger.Error().Err(err).Str("participant", string(participant)).Msg("Failed to get participant events")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve events")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"participant": participant,
		"events":      records,
		"count":       len(records),
		"limit":       limit,
	})
}

func (ws *WebServer) handleGetPoolBatches(w http.ResponseWriter, r *http.Request) {
	if ws.audit == nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "Event history is not available")
		return
	}
	pool := poolVar(r)
	limit := limitParam(r)
	batches, err := ws.audit.PoolBatches(r.Context(), pool, limit)
	if err != nil {
		webLogger.Error().Err(err).Str("pool", string(pool)).Msg("Failed to get pool batches")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve batches")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"pool":    pool,
		"batches": batches,
		"count":   len(batches),
	})
}

func (ws *WebServer) handleGetBatchSummary(w http.ResponseWriter, r *http.Request) {
	if ws.audit == nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "Event history is not available")
		return
	}
	summary, err := ws.audit.BatchSummary(r.Context())
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get batch summary")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve batch summary")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, summary)
}

func (ws *WebServer) writeParticipantPool(w http.ResponseWriter, participant types.Address, pool types.PoolID) {
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"participant":    participant,
		"pool":           pool,
		"strategy":       ws.engine.GetStrategy(participant),
		"fee_accounting": ws.engine.GetFeeAccounting(participant, pool),
		"gas_credits":    ws.engine.GetGasCredits(participant),
	})
}

// decode reads a JSON body. An empty body leaves dst untouched.
func (ws *WebServer) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func (ws *WebServer) parseAmount(w http.ResponseWriter, s string) (math.Int, bool) {
	amount, err := utils.ParseAmount(s)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid amount: "+err.Error())
		return math.Int{}, false
	}
	return amount, true
}

// statusForKind maps an engine error kind to an HTTP status.
func statusForKind(kind compounder.ErrorKind) int {
	switch kind {
	case compounder.KindValidation:
		return http.StatusBadRequest
	case compounder.KindState:
		return http.StatusConflict
	case compounder.KindEligibility, compounder.KindData:
		return http.StatusUnprocessableEntity
	case compounder.KindBatch:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (ws *WebServer) writeEngineError(w http.ResponseWriter, err error) {
	kind := compounder.Kind(err)
	status := statusForKind(kind)
	event := webLogger.Warn()
	if status >= http.StatusInternalServerError {
		event = webLogger.Error()
	}
	event.Err(err).Str("kind", string(kind)).Msg("Engine operation failed")

	ws.writeJSONResponse(w, status, map[string]interface{}{
		"error":     true,
		"kind":      kind,
		"message":   err.Error(),
		"timestamp": time.Now().UTC(),
	})
}

func poolVar(r *http.Request) types.PoolID {
	return types.PoolID(mux.Vars(r)["pool"])
}

func participantVar(r *http.Request) types.Address {
	return types.Address(mux.Vars(r)["participant"])
}

func limitParam(r *http.Request) int {
	limit := defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= maxLimit {
			limit = parsedLimit
		}
	}
	return limit
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
