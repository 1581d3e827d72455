package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"provindex/internal/application"
	"provindex/internal/domain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type ProvenanceRunner interface {
	Run(ctx context.Context, filter application.TransferFilter) (application.Result, error)
}

type AssetDetailsReader interface {
	Read(ctx context.Context, id uint64) (domain.AssetDetails, error)
}

type RPCStatus interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
}

type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

type Dependencies struct {
	Pipeline     ProvenanceRunner
	Assets       AssetDetailsReader
	Participants application.ParticipantSource
	Reports      application.ReportStore
	RPC          RPCStatus
	Metrics      *Metrics
}

type Server struct {
	pipeline     ProvenanceRunner
	assets       AssetDetailsReader
	participants application.ParticipantSource
	reports      application.ReportStore
	rpc          RPCStatus
	metrics      *Metrics
	buildInfo    BuildInfo
}

func NewServer(deps Dependencies, buildInfo BuildInfo) (*Server, error) {
	if deps.Pipeline == nil || deps.Assets == nil || deps.Participants == nil || deps.Reports == nil || deps.RPC == nil {
		return nil, errors.New("http server dependencies must not be nil")
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Server{
		pipeline:     deps.Pipeline,
		assets:       deps.Assets,
		participants: deps.Participants,
		reports:      deps.Reports,
		rpc:          deps.RPC,
		metrics:      metrics,
		buildInfo:    buildInfo,
	}, nil
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/transactions", s.handleTransactions)
	r.Get("/assets/{id}", s.handleAsset)
	r.Get("/participants", s.handleParticipants)
	r.Get("/runs", s.handleRuns)
	r.Get("/version", s.handleVersion)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	return r
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.reports.Ping(ctx); err != nil {
		respondError(w, http.StatusServiceUnavailable, "report store not ready")
		return
	}
	if _, err := s.rpc.LatestBlockNumber(ctx); err != nil {
		respondError(w, http.StatusServiceUnavailable, "rpc not ready")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type transactionsResponse struct {
	RunID        string                       `json:"run_id"`
	Transactions []domain.DetailedTransaction `json:"transactions"`
	Dropped      []application.DroppedEvent   `json:"dropped"`
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	filter, err := parseTransferFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := s.pipeline.Run(r.Context(), filter)
	if err != nil {
		slog.Error("provenance run failed", "err", err)
		status := http.StatusInternalServerError
		if errors.Is(err, application.ErrParticipantsUnavailable) || errors.Is(err, application.ErrEventsUnavailable) {
			status = http.StatusBadGateway
		}
		respondError(w, status, "provenance unavailable")
		return
	}
	if err := s.reports.StoreRun(r.Context(), result.Report); err != nil {
		slog.Warn("run report not stored", "run_id", result.Report.RunID, "err", err)
	}
	respondJSON(w, http.StatusOK, transactionsResponse{
		RunID:        result.Report.RunID,
		Transactions: result.Transactions,
		Dropped:      result.Report.Dropped,
	})
}

func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		respondError(w, http.StatusBadRequest, "invalid asset id")
		return
	}
	details, err := s.assets.Read(r.Context(), id)
	if err != nil {
		if errors.Is(err, application.ErrAssetNotFound) {
			respondError(w, http.StatusNotFound, "asset not found")
			return
		}
		slog.Error("asset read failed", "asset_id", id, "err", err)
		respondError(w, http.StatusBadGateway, "asset unavailable")
		return
	}
	respondJSON(w, http.StatusOK, details)
}

type participantView struct {
	domain.Participant
	Coordinates domain.Coordinates `json:"coordinates"`
}

func (s *Server) handleParticipants(w http.ResponseWriter, r *http.Request) {
	index, err := application.LoadParticipantIndex(r.Context(), s.participants)
	if err != nil {
		slog.Error("participant registry read failed", "err", err)
		respondError(w, http.StatusBadGateway, "participants unavailable")
		return
	}
	participants := index.All()
	sort.Slice(participants, func(a, b int) bool {
		return participants[a].Address < participants[b].Address
	})
	views := make([]participantView, 0, len(participants))
	for _, participant := range participants {
		views = append(views, participantView{
			Participant: participant,
			Coordinates: application.ParseCoordinates(participant.Location),
		})
	}
	respondJSON(w, http.StatusOK, views)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	reports, err := s.reports.ListRuns(r.Context(), application.RunQueryFilter{Limit: limit})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "query failed")
		return
	}
	respondJSON(w, http.StatusOK, reports)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.buildInfo)
}

func parseTransferFilter(r *http.Request) (application.TransferFilter, error) {
	query := r.URL.Query()
	var filter application.TransferFilter

	if raw := query.Get("asset_id"); raw != "" {
		value, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return application.TransferFilter{}, errors.New("invalid asset_id")
		}
		filter.AssetID = &value
	}
	if raw := strings.TrimSpace(query.Get("address")); raw != "" {
		if !common.IsHexAddress(raw) {
			return application.TransferFilter{}, errors.New("invalid address")
		}
		filter.Address = strings.ToLower(raw)
	}
	from, to, err := parseBlockRange(r)
	if err != nil {
		return application.TransferFilter{}, err
	}
	if from != nil && to != nil && *from > *to {
		return application.TransferFilter{}, errors.New("from_block is after to_block")
	}
	filter.FromBlock = from
	filter.ToBlock = to
	return filter, nil
}

func parseLimit(r *http.Request) (int, error) {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			return 0, errors.New("invalid limit")
		}
		return value, nil
	}
	return 50, nil
}

func parseBlockRange(r *http.Request) (*uint64, *uint64, error) {
	fromRaw := r.URL.Query().Get("from_block")
	toRaw := r.URL.Query().Get("to_block")

	var from *uint64
	var to *uint64

	if fromRaw != "" {
		value, err := strconv.ParseUint(fromRaw, 10, 64)
		if err != nil {
			return nil, nil, errors.New("invalid from_block")
		}
		from = &value
	}
	if toRaw != "" {
		value, err := strconv.ParseUint(toRaw, 10, 64)
		if err != nil {
			return nil, nil, errors.New("invalid to_block")
		}
		to = &value
	}
	return from, to, nil
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
