package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"preview_engine/db"
	"preview_engine/manifest"
	"preview_engine/metrics"
	"preview_engine/render"
	"preview_engine/sandbox"
	"preview_engine/session"
)

// Query limits for list endpoints.
const (
	defaultListLimit = 20
	maxListLimit     = 200
	// maxThumbnailSide bounds ?max= on image requests.
	maxThumbnailSide = 4096
)

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	s.mux.HandleFunc("POST /api/sessions", s.handleOpenSession)
	s.mux.HandleFunc("DELETE /api/sessions/{id}", s.handleCloseSession)

	s.mux.HandleFunc("GET /api/sessions/{id}/previews", s.handleListPreviews)
	s.mux.HandleFunc("POST /api/sessions/{id}/previews", s.handleRequestPreviews)
	s.mux.HandleFunc("GET /api/sessions/{id}/previews/{file}", s.handlePreviewImage)
	s.mux.HandleFunc("POST /api/sessions/{id}/reload", s.handleReload)
	s.mux.HandleFunc("POST /api/sessions/{id}/generation", s.handleSetGeneration)

	s.mux.HandleFunc("GET /api/metrics", s.handleMetrics)
	s.mux.HandleFunc("GET /api/history", s.handleHistory)

	s.mux.HandleFunc("GET /ws", s.hub.HandleConnection)
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string                `json:"status"`
	Version   string                `json:"version"`
	BuildTime string                `json:"build_time,omitempty"`
	GitCommit string                `json:"git_commit,omitempty"`
	System    *metrics.SystemStatus `json:"system,omitempty"`
	Database  string                `json:"database,omitempty"`
	Sessions  int                   `json:"sessions"`
	Clients   int                   `json:"ws_clients"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		Version:   s.config.Version.Version,
		BuildTime: s.config.Version.BuildTime,
		GitCommit: s.config.Version.GitCommit,
		Sessions:  len(s.deps.Sessions.List()),
		Clients:   s.hub.ClientCount(),
	}
	status := http.StatusOK

	if s.deps.Metrics != nil {
		sys := s.deps.Metrics.SystemStatus()
		resp.System = &sys
		if sys.Health != metrics.HealthRunning {
			resp.Status = "degraded"
		}
	}
	if s.deps.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.DB.Ping(ctx); err != nil {
			resp.Status = "unavailable"
			resp.Database = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			resp.Database = "ok"
		}
	}
	writeJSON(w, status, resp)
}

// SessionList is the body of GET /api/sessions.
type SessionList struct {
	Sessions []session.Info `json:"sessions"`
	Count    int            `json:"count"`
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	infos := s.deps.Sessions.List()
	writeJSON(w, http.StatusOK, SessionList{Sessions: infos, Count: len(infos)})
}

type openSessionRequest struct {
	ManifestDir string `json:"manifest_dir"`
}

func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	if s.deps.Open == nil {
		writeError(w, http.StatusNotImplemented, "not_supported", "opening sessions over HTTP is disabled")
		return
	}
	var req openSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ManifestDir) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "manifest_dir is required")
		return
	}

	sess, err := s.deps.Open(r.Context(), req.ManifestDir)
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.sessionInfo(sess))
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.deps.Sessions.Remove(id); err != nil {
		s.writeSessionError(w, err)
		return
	}
	s.hub.Broadcast(NewSessionClosedMessage(id))
	w.WriteHeader(http.StatusNoContent)
}

// PreviewList is the body of the preview list endpoints.
type PreviewList struct {
	SessionID  string             `json:"session_id"`
	Generation sandbox.Generation `json:"generation"`
	Previews   []previewJSON      `json:"previews"`
}

// handleListPreviews returns the states of all previews, or of the
// repeated ?key= IDs, and schedules renders for stale ones.
func (s *Server) handleListPreviews(w http.ResponseWriter, r *http.Request) {
	s.requestPreviews(w, r, r.URL.Query()["key"])
}

type requestPreviewsRequest struct {
	KeyIDs []string `json:"key_ids"`
}

func (s *Server) handleRequestPreviews(w http.ResponseWriter, r *http.Request) {
	var req requestPreviewsRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	s.requestPreviews(w, r, req.KeyIDs)
}

func (s *Server) requestPreviews(w http.ResponseWriter, r *http.Request, keyIDs []string) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	previews, err := sess.Request(keyIDs...)
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	id := sess.ID().String()
	writeJSON(w, http.StatusOK, PreviewList{
		SessionID:  id,
		Generation: sess.Generation(),
		Previews:   newPreviewsJSON(id, previews),
	})
}

// handlePreviewImage serves /previews/{keyID}.png.
//
//   - Success: the PNG, scaled down to ?max= pixels on its longer side
//   - Pending: 202 with the preview JSON; retry after a previews_changed
//     message or pass ?wait=true to block until the render completes
//   - Error: 422 with the preview JSON
func (s *Server) handlePreviewImage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	keyID, isPNG := strings.CutSuffix(r.PathValue("file"), ".png")
	if !isPNG || keyID == "" {
		writeError(w, http.StatusNotFound, "not_found", "expected {key_id}.png")
		return
	}

	maxSide := 0
	if v := r.URL.Query().Get("max"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxThumbnailSide {
			writeError(w, http.StatusBadRequest, "invalid_request", "max must be between 1 and "+strconv.Itoa(maxThumbnailSide))
			return
		}
		maxSide = n
	}

	var p session.Preview
	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		ctx, cancel := context.WithTimeout(r.Context(), s.config.MaxWait)
		defer cancel()
		var err error
		p, err = sess.Render(ctx, keyID)
		if err != nil {
			s.writeSessionError(w, err)
			return
		}
	} else {
		previews, err := sess.Request(keyID)
		if err != nil {
			s.writeSessionError(w, err)
			return
		}
		p = previews[0]
	}

	id := sess.ID().String()
	switch p.State.Status {
	case render.StatusPending:
		writeJSON(w, http.StatusAccepted, newPreviewJSON(id, p))
		return
	case render.StatusError:
		writeJSON(w, http.StatusUnprocessableEntity, newPreviewJSON(id, p))
		return
	}

	img := render.Thumbnail(p.State.Image, maxSide)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		s.logger.Error("PNG encoding failed", zap.String("key_id", keyID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "encode_failed", err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

// ReloadResponse is the body of POST /reload.
type ReloadResponse struct {
	SessionID         string             `json:"session_id"`
	Added             int                `json:"added"`
	Removed           int                `json:"removed"`
	GenerationChanged bool               `json:"generation_changed"`
	Generation        sandbox.Generation `json:"generation"`
	Previews          int                `json:"previews"`
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	res, err := sess.Reload(r.Context())
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	id := sess.ID().String()
	gen := sess.Generation()
	if res.GenerationChanged {
		s.hub.Broadcast(NewGenerationMessage(id, gen))
	}
	writeJSON(w, http.StatusOK, ReloadResponse{
		SessionID:         id,
		Added:             res.Added,
		Removed:           res.Removed,
		GenerationChanged: res.GenerationChanged,
		Generation:        gen,
		Previews:          len(sess.Keys()),
	})
}

func (s *Server) handleSetGeneration(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var gen sandbox.Generation
	if !decodeBody(w, r, &gen) {
		return
	}
	if err := gen.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_generation", err.Error())
		return
	}
	if err := sess.SetGeneration(gen); err != nil {
		s.writeSessionError(w, err)
		return
	}
	id := sess.ID().String()
	s.hub.Broadcast(NewGenerationMessage(id, gen))
	writeJSON(w, http.StatusOK, GenerationData{SessionID: id, Generation: gen})
}

// MetricsResponse is the body of GET /api/metrics.
type MetricsResponse struct {
	metrics.RenderMetrics
	Recent []metrics.RenderSample `json:"recent"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.deps.Metrics == nil {
		writeError(w, http.StatusNotFound, "not_found", "metrics are disabled")
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, MetricsResponse{
		RenderMetrics: s.deps.Metrics.RenderMetrics(),
		Recent:        s.deps.Metrics.RecentRenders(limit),
	})
}

// HistoryResponse is the body of GET /api/history.
type HistoryResponse struct {
	Renders []db.RenderRecord `json:"renders"`
	Count   int               `json:"count"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeError(w, http.StatusNotFound, "not_found", "render history is disabled")
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	records, err := s.deps.History.Recent(r.Context(), db.RenderQuery{
		SessionID:  q.Get("session"),
		FunctionID: q.Get("function"),
		Status:     q.Get("status"),
		Limit:      limit,
	})
	if err != nil {
		s.logger.Error("History query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query_failed", err.Error())
		return
	}
	if records == nil {
		records = []db.RenderRecord{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Renders: records, Count: len(records)})
}

// session resolves {id} and writes the error response when it is unknown.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.deps.Sessions.Get(r.PathValue("id"))
	if err != nil {
		s.writeSessionError(w, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) sessionInfo(sess *session.Session) session.Info {
	return session.Info{
		ID:          sess.ID().String(),
		ManifestDir: sess.Dir(),
		OpenedAt:    sess.OpenedAt(),
		Previews:    len(sess.Keys()),
		Stats:       sess.Stats(),
	}
}

// writeSessionError maps session, manifest and sandbox errors to statuses.
func (s *Server) writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session_not_found", err.Error())
	case errors.Is(err, session.ErrUnknownKey):
		writeError(w, http.StatusNotFound, "unknown_key", err.Error())
	case errors.Is(err, session.ErrSessionClosed):
		writeError(w, http.StatusGone, "session_closed", err.Error())
	case errors.Is(err, manifest.ErrInvalidManifest), errors.Is(err, manifest.ErrDuplicateBuild):
		writeError(w, http.StatusUnprocessableEntity, "invalid_manifest", err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeError(w, http.StatusGatewayTimeout, "timeout", err.Error())
	default:
		s.logger.Error("Request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return false
	}
	return true
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultListLimit, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
		return 0, false
	}
	return min(n, maxListLimit), true
}
