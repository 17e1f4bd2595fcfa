package api

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MJE43/lotto-desk/internal/draw"
	"github.com/MJE43/lotto-desk/internal/fair"
	"github.com/MJE43/lotto-desk/internal/history"
	"github.com/MJE43/lotto-desk/internal/matrix"
	"github.com/MJE43/lotto-desk/internal/metrics"
)

type matrixView struct {
	matrix.Config
	TotalSteps int  `json:"totalSteps"`
	Playable   bool `json:"playable"`
}

type matrixRequest struct {
	Matrix string `json:"matrix"`
}

type predictRequest struct {
	Matrix  string `json:"matrix"`
	Context string `json:"context"`
}

type verifyRequest struct {
	ServerSeed string `json:"serverSeed"`
	ClientSeed string `json:"clientSeed"`
	Nonce      uint64 `json:"nonce"`
	Matrix     string `json:"matrix"`
}

// GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"uptime":    time.Since(s.startTime).Round(time.Second).String(),
		"entries":   s.deps.Session.Len(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// GET /api/v1/matrices
func (s *Server) handleMatrices(w http.ResponseWriter, r *http.Request) {
	all := matrix.List()
	out := make([]matrixView, 0, len(all))
	for _, c := range all {
		out = append(out, matrixView{Config: c, TotalSteps: c.TotalSteps(), Playable: c.Validate() == nil})
	}
	writeJSON(w, http.StatusOK, map[string]any{"matrices": out})
}

// POST /api/v1/draws
func (s *Server) handleDraw(w http.ResponseWriter, r *http.Request) {
	var req matrixRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	cfg, err := lookup(req.Matrix)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	d, proof, err := draw.SampleWithProof(s.deps.Sampler, cfg)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	metrics.RecordDraw(string(cfg.Type), "sample")

	body := map[string]any{"matrix": cfg.Type, "draw": d, "sum": d.Sum()}
	if rc, ok := proof.(fair.Receipt); ok {
		body["receipt"] = rc
	}
	writeJSON(w, http.StatusOK, body)
}

// POST /api/v1/predictions
func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	t, err := parseMatrix(req.Matrix)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	e, err := s.deps.Session.Predict(r.Context(), t, req.Context)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"entry": e, "stats": s.deps.Session.Stats()})
}

// GET /api/v1/history?type=
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	f, err := typeFilter(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	entries := s.deps.Session.History(f)
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

// DELETE /api/v1/history
func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Session.Clear(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DELETE /api/v1/history/{id}
func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Session.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/v1/history/{id}/restore
func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	e, err := s.deps.Session.Restore(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entry": e, "stats": s.deps.Session.Stats()})
}

// GET /api/v1/history/export
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	doc, err := s.deps.Session.Export()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+history.StorageKey+`.json"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

// POST /api/v1/history/import
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		s.writeError(w, r, validationError("body", "unreadable body"))
		return
	}
	n, err := s.deps.Session.Import(r.Context(), raw)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"imported": n})
}

// GET /api/v1/archive?type=&limit=&offset=
func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	if s.deps.Archive == nil {
		s.writeError(w, r, NewError(ErrTypeUnavailable, "archive is disabled").Build())
		return
	}
	f, err := typeFilter(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit := clampInt(qInt(r, "limit", 100), 1, 500)
	offset := clampInt(qInt(r, "offset", 0), 0, 1_000_000)
	records, err := s.deps.Archive.List(r.Context(), f, limit, offset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	total, err := s.deps.Archive.Count(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records, "count": len(records), "total": total})
}

// GET /api/v1/predictor/logs
func (s *Server) handlePredictorLogs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Script == nil {
		s.writeError(w, r, NewError(ErrTypeUnavailable, "script predictor is not configured").Build())
		return
	}
	logs := s.deps.Script.Logs()
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs, "count": len(logs)})
}

// GET /api/v1/current
func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	e, ok := s.deps.Session.Current()
	if !ok {
		s.writeError(w, r, NewError(ErrTypeNotFound, "no current result").Build())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entry": e})
}

// GET /api/v1/stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Session.Stats())
}

// GET /api/v1/simulation
func (s *Server) handleSimulationState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Scheduler.Snapshot())
}

// POST /api/v1/simulation
func (s *Server) handleSimulationStart(w http.ResponseWriter, r *http.Request) {
	var req matrixRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	t, err := parseMatrix(req.Matrix)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	snap, started, err := s.deps.Scheduler.Start(t)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status := http.StatusAccepted
	if !started {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{"started": started, "snapshot": snap})
}

// POST /api/v1/simulation/reset
func (s *Server) handleSimulationReset(w http.ResponseWriter, r *http.Request) {
	snap, err := s.deps.Scheduler.Reset()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GET /api/v1/fair/commitment
func (s *Server) handleCommitment(w http.ResponseWriter, r *http.Request) {
	d := s.deps.Dealer
	if d == nil {
		s.writeError(w, r, NewError(ErrTypeUnavailable, "fair draws are disabled").Build())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"serverSeedHash": d.Commitment(),
		"clientSeed":     d.ClientSeed(),
		"nonce":          d.Nonce(),
	})
}

// POST /api/v1/fair/verify
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.ServerSeed == "" || req.ClientSeed == "" {
		s.writeError(w, r, validationError("serverSeed/clientSeed", "serverSeed and clientSeed are required"))
		return
	}
	if req.Nonce == 0 {
		s.writeError(w, r, validationError("nonce", "nonce must be >= 1"))
		return
	}
	cfg, err := lookup(req.Matrix)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	d, err := fair.Verify(req.ServerSeed, req.ClientSeed, req.Nonce, cfg)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"draw":           d,
		"serverSeedHash": fair.HashSeed(req.ServerSeed),
	})
}

// typeFilter reads ?type=, accepting a display name, a slug or "All".
func typeFilter(r *http.Request) (history.Filter, error) {
	v := r.URL.Query().Get("type")
	if v == "" || v == history.All {
		return history.Filter{}, nil
	}
	t, err := matrix.Parse(v)
	if err != nil {
		return history.Filter{}, err
	}
	return history.Filter{MatrixType: string(t)}, nil
}

func parseMatrix(s string) (matrix.Type, error) {
	if strings.TrimSpace(s) == "" {
		return "", validationError("matrix", "matrix is required")
	}
	return matrix.Parse(s)
}

func lookup(s string) (matrix.Config, error) {
	t, err := parseMatrix(s)
	if err != nil {
		return matrix.Config{}, err
	}
	cfg, err := matrix.Lookup(t)
	if err != nil {
		return matrix.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return matrix.Config{}, err
	}
	return cfg, nil
}
