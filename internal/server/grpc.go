package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"NFTLend/internal/ingestion"
	"NFTLend/internal/observability"
	"NFTLend/internal/persistence"
	"NFTLend/internal/projection"
	"NFTLend/internal/query"

	googleuuid "github.com/google/uuid"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// GRPCServer wraps the gRPC server and the HTTP/JSON gateway mux.
type GRPCServer struct {
	grpcServer    *grpc.Server
	httpServer    *http.Server
	grpcAddr      string
	httpAddr      string
	deps          *ServerDeps
	healthChecker *observability.HealthChecker
}

// ServerDeps holds all dependencies needed by the API handlers.
type ServerDeps struct {
	DB            *sql.DB
	QueryService  *query.QueryService
	IngestService *ingestion.GRPCIngestService
	SnapshotMgr   *persistence.SnapshotManager
	StartTime     time.Time
	HealthChecker *observability.HealthChecker
}

// NewGRPCServer creates a new gRPC server with health and reflection
// registered. The query API itself is HTTP/JSON, served by the gateway.
func NewGRPCServer(grpcAddr, httpAddr string, deps *ServerDeps) *GRPCServer {
	grpcServer := grpc.NewServer()

	// Health check
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	// Reflection for grpcurl / grpcui
	reflection.Register(grpcServer)

	return &GRPCServer{
		grpcServer:    grpcServer,
		grpcAddr:      grpcAddr,
		httpAddr:      httpAddr,
		deps:          deps,
		healthChecker: deps.HealthChecker,
	}
}

// StartGRPC starts the gRPC server (blocking).
func (s *GRPCServer) StartGRPC(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	go func() {
		<-ctx.Done()
		log.Println("INFO: gRPC server shutting down...")
		s.grpcServer.GracefulStop()
	}()

	log.Printf("INFO: gRPC server listening on %s", s.grpcAddr)
	return s.grpcServer.Serve(lis)
}

// StartHTTPGateway starts the HTTP/JSON API server (blocking).
// HTTP/JSON is the primary query surface for tooling, dashboards, curl.
func (s *GRPCServer) StartHTTPGateway(ctx context.Context) error {
	mux := runtime.NewServeMux()

	logger := observability.NewLogger("http")
	api := &apiHandlers{deps: s.deps, logger: logger}
	if err := api.register(mux); err != nil {
		return fmt.Errorf("register api routes: %w", err)
	}

	httpMux := http.NewServeMux()
	if s.healthChecker != nil {
		httpMux.HandleFunc("/healthz", s.healthChecker.LivenessHandler)
		httpMux.HandleFunc("/readyz", s.healthChecker.ReadinessHandler)
	} else {
		httpMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			fmt.Fprintf(w, `{"status":"ok"}`)
		})
	}
	httpMux.Handle("/", mux)

	s.httpServer = &http.Server{
		Addr:    s.httpAddr,
		Handler: accessLog(logger, httpMux),
	}

	go func() {
		<-ctx.Done()
		log.Println("INFO: HTTP gateway shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	log.Printf("INFO: HTTP gateway listening on %s", s.httpAddr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// ============================================================================
// HTTP/JSON API handlers
// ============================================================================

type apiHandlers struct {
	deps   *ServerDeps
	logger zerolog.Logger
}

// accessLog wraps a handler with structured request logging. Health probes
// are skipped to keep the log readable.
func accessLog(logger zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" || r.URL.Path == "/readyz" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (a *apiHandlers) register(mux *runtime.ServeMux) error {
	routes := []struct {
		method  string
		pattern string
		handler runtime.HandlerFunc
	}{
		{"GET", "/v1/users/{user_id}/balances/{asset}", a.getBalance},
		{"GET", "/v1/users/{user_id}/loans", a.getUserLoans},
		{"GET", "/v1/users/{user_id}/journals", a.getJournalHistory},
		{"GET", "/v1/loans/{loan_id}", a.getLoan},
		{"GET", "/v1/loans/{loan_id}/auction-history", a.getAuctionHistory},
		{"GET", "/v1/collateral/{nft_asset}/{nft_token_id}/loan", a.getCollateralLoan},
		{"GET", "/v1/auctions", a.getAuctionLoans},
		{"POST", "/v1/ingest/events", a.submitEvent},
		{"GET", "/v1/admin/event-log", a.getEventLogInfo},
		{"GET", "/v1/admin/integrity", a.verifyIntegrity},
		{"POST", "/v1/admin/rebuild-projections", a.rebuildProjections},
	}

	for _, r := range routes {
		if err := mux.HandlePath(r.method, r.pattern, r.handler); err != nil {
			return fmt.Errorf("route %s %s: %w", r.method, r.pattern, err)
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func parseUUIDParam(params map[string]string, key string) (googleuuid.UUID, error) {
	raw, ok := params[key]
	if !ok {
		return googleuuid.Nil, fmt.Errorf("%s is required", key)
	}
	return googleuuid.Parse(raw)
}

func parseUintParam(params map[string]string, key string) (uint64, error) {
	raw, ok := params[key]
	if !ok {
		return 0, fmt.Errorf("%s is required", key)
	}
	return strconv.ParseUint(raw, 10, 64)
}

func parseLimit(r *http.Request, def, max int) int {
	limit := def
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > max {
		limit = max
	}
	return limit
}

func (a *apiHandlers) getBalance(w http.ResponseWriter, r *http.Request, params map[string]string) {
	userID, err := parseUUIDParam(params, "user_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid user_id: %v", err))
		return
	}
	asset := params["asset"]
	if asset == "" {
		writeError(w, http.StatusBadRequest, "asset is required")
		return
	}

	bal, err := a.deps.QueryService.GetBalance(r.Context(), userID, asset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("get balance: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, bal)
}

func (a *apiHandlers) getLoan(w http.ResponseWriter, r *http.Request, params map[string]string) {
	loanID, err := parseUintParam(params, "loan_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid loan_id: %v", err))
		return
	}

	loan, err := a.deps.QueryService.GetLoan(r.Context(), loanID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (a *apiHandlers) getCollateralLoan(w http.ResponseWriter, r *http.Request, params map[string]string) {
	nftAsset := params["nft_asset"]
	if nftAsset == "" {
		writeError(w, http.StatusBadRequest, "nft_asset is required")
		return
	}
	tokenID, err := parseUintParam(params, "nft_token_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid nft_token_id: %v", err))
		return
	}

	loan, err := a.deps.QueryService.GetCollateralLoan(r.Context(), nftAsset, tokenID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("get collateral loan: %v", err))
		return
	}
	if loan == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no open loan for %s #%d", nftAsset, tokenID))
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (a *apiHandlers) getUserLoans(w http.ResponseWriter, r *http.Request, params map[string]string) {
	userID, err := parseUUIDParam(params, "user_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid user_id: %v", err))
		return
	}

	loans, err := a.deps.QueryService.GetUserLoans(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("get user loans: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"loans": loans})
}

func (a *apiHandlers) getAuctionLoans(w http.ResponseWriter, r *http.Request, params map[string]string) {
	limit := parseLimit(r, 50, 100)

	var afterLoanID *uint64
	if raw := r.URL.Query().Get("after_loan_id"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid after_loan_id: %v", err))
			return
		}
		afterLoanID = &v
	}

	loans, err := a.deps.QueryService.GetAuctionLoans(r.Context(), limit, afterLoanID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("get auction loans: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"loans": loans})
}

func (a *apiHandlers) getAuctionHistory(w http.ResponseWriter, r *http.Request, params map[string]string) {
	loanID, err := parseUintParam(params, "loan_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid loan_id: %v", err))
		return
	}
	limit := parseLimit(r, 50, 200)

	var beforeTs *int64
	if raw := r.URL.Query().Get("before_timestamp"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid before_timestamp: %v", err))
			return
		}
		beforeTs = &v
	}

	history, err := a.deps.QueryService.GetAuctionHistory(r.Context(), loanID, limit, beforeTs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("get auction history: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"history": history})
}

func (a *apiHandlers) getJournalHistory(w http.ResponseWriter, r *http.Request, params map[string]string) {
	userID, err := parseUUIDParam(params, "user_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid user_id: %v", err))
		return
	}
	limit := parseLimit(r, 100, 500)

	var afterSeq *int64
	if raw := r.URL.Query().Get("after_sequence"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid after_sequence: %v", err))
			return
		}
		afterSeq = &v
	}

	entries, err := a.deps.QueryService.GetJournalHistory(r.Context(), userID, limit, afterSeq)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("get journals: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"journals": entries})
}

// submitEventRequest is the manual injection payload: the event type name
// plus the same JSON body the NATS subjects carry.
type submitEventRequest struct {
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

func (a *apiHandlers) submitEvent(w http.ResponseWriter, r *http.Request, params map[string]string) {
	var req submitEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
		return
	}
	if req.EventType == "" {
		writeError(w, http.StatusBadRequest, "event_type is required")
		return
	}

	raw := ingestion.RawEvent{
		Subject:   req.EventType,
		Data:      req.Payload,
		Timestamp: time.Now(),
	}
	evt, err := ingestion.ParseRawEvent(raw, req.EventType)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("parse payload: %v", err))
		return
	}

	select {
	case a.deps.IngestService.EventChan() <- evt:
		writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
	case <-r.Context().Done():
		writeError(w, http.StatusRequestTimeout, "context cancelled")
	}
}

func (a *apiHandlers) getEventLogInfo(w http.ResponseWriter, r *http.Request, params map[string]string) {
	latestSeq, err := a.deps.SnapshotMgr.GetLatestSequence(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("get latest sequence: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"last_sequence":  latestSeq,
		"uptime_seconds": int64(time.Since(a.deps.StartTime).Seconds()),
	})
}

func (a *apiHandlers) verifyIntegrity(w http.ResponseWriter, r *http.Request, params map[string]string) {
	report, err := a.deps.QueryService.VerifyIntegrity(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("verify integrity: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *apiHandlers) rebuildProjections(w http.ResponseWriter, r *http.Request, params map[string]string) {
	a.logger.Info().Msg("projection rebuild requested")
	if err := projection.RebuildProjections(r.Context(), a.deps.DB); err != nil {
		a.logger.Error().Err(err).Msg("projection rebuild failed")
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("rebuild failed: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"started": true})
}
