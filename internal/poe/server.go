package poe

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"echobot/internal/domain"
	"echobot/internal/journal"
	"echobot/internal/metrics"
)

const maxRequestBytes = 4 << 20

// Journal records handled requests. *journal.Store implements it.
type Journal interface {
	LogRequest(ctx context.Context, e journal.Entry) error
	LogReport(ctx context.Context, r journal.Report) error
}

// AttachmentUploader uploads generated files. *Uploader implements it.
type AttachmentUploader interface {
	Upload(ctx context.Context, accessKey, messageID string, art domain.Artifact) (*UploadResult, error)
}

// Route mounts one bot at a path, guarded by its access key.
type Route struct {
	Path      string
	Bot       domain.Bot
	AccessKey string
}

type ServerConfig struct {
	Host            string
	Port            int
	Routes          []Route
	Uploader        AttachmentUploader
	Journal         Journal // optional
	MetricsEndpoint string  // empty disables /metrics
	Logger          *slog.Logger
}

// Server speaks the bot protocol over HTTP for one or more bots.
type Server struct {
	cfg    ServerConfig
	logger *slog.Logger
	router *chi.Mux
	server *http.Server
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if len(cfg.Routes) == 0 {
		return nil, fmt.Errorf("no bots configured")
	}
	for _, rt := range cfg.Routes {
		if rt.AccessKey == "" {
			return nil, fmt.Errorf("bot %s at %s has no access key", rt.Bot.Name(), rt.Path)
		}
	}
	s := &Server{cfg: cfg, logger: cfg.Logger}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	if s.cfg.MetricsEndpoint != "" {
		r.Get(s.cfg.MetricsEndpoint, metrics.Collector.Handler())
	}
	for _, rt := range s.cfg.Routes {
		h := &botHandler{route: rt, server: s}
		r.Post(rt.Path, h.ServeHTTP)
		r.Get(rt.Path, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprintf(w, "<html><body><h1>%s</h1><p>This is a bot server endpoint.</p></body></html>", rt.Bot.Name())
		})
	}
	return r
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	for _, rt := range s.cfg.Routes {
		s.logger.Info("bot mounted", "bot", rt.Bot.Name(), "path", rt.Path)
	}
	s.logger.Info("bot server starting", "addr", s.server.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("bot server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("bot server: %w", err)
	}
}

type botHandler struct {
	route  Route
	server *Server
}

func (h *botHandler) authorized(r *http.Request) bool {
	got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.route.AccessKey)) == 1
}

func (h *botHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := h.server.logger.With("bot", h.route.Bot.Name(), "request_id", middleware.GetReqID(r.Context()))

	if !h.authorized(r) {
		metrics.AuthFailures.Inc()
		logger.Warn("rejected request with bad access key", "remote", r.RemoteAddr)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid access key"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "cannot read body"})
		return
	}
	defer r.Body.Close()

	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(body, &head); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid JSON"})
		return
	}

	switch head.Type {
	case domain.RequestQuery:
		var req domain.QueryRequest
		if err := json.Unmarshal(body, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid query request"})
			return
		}
		h.handleQuery(w, r, &req, logger)
	case domain.RequestSettings:
		metrics.SettingsTotal.Inc()
		writeJSON(w, http.StatusOK, h.route.Bot.Settings())
	case domain.RequestReportFeedback:
		metrics.ReportsTotal.Inc()
		var fb domain.ReportFeedbackRequest
		_ = json.Unmarshal(body, &fb)
		logger.Info("feedback report", "message_id", fb.MessageID, "feedback", fb.FeedbackType)
		h.logReport(r.Context(), journal.Report{
			Bot: h.route.Bot.Name(), Kind: journal.ReportFeedback,
			MessageID: fb.MessageID, UserID: fb.UserID, Detail: fb.FeedbackType,
		}, logger)
		writeJSON(w, http.StatusOK, struct{}{})
	case domain.RequestReportError:
		metrics.ReportsTotal.Inc()
		var er domain.ReportErrorRequest
		_ = json.Unmarshal(body, &er)
		logger.Warn("error report", "message", er.Message)
		h.logReport(r.Context(), journal.Report{
			Bot: h.route.Bot.Name(), Kind: journal.ReportError, Detail: er.Message,
		}, logger)
		writeJSON(w, http.StatusOK, struct{}{})
	default:
		writeJSON(w, http.StatusNotImplemented, map[string]string{"detail": "unsupported request type: " + head.Type})
	}
}

func (h *botHandler) handleQuery(w http.ResponseWriter, r *http.Request, req *domain.QueryRequest, logger *slog.Logger) {
	metrics.QueriesTotal.Inc()
	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()

	if req.AccessKey == "" || req.AccessKey == missingAccessKey {
		req.AccessKey = h.route.AccessKey
	}

	events, err := NewEventWriter(w)
	if err != nil {
		logger.Error("cannot stream response", "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	start := time.Now()
	last := req.LastMessage()
	logger = logger.With("message_id", req.MessageID, "user_id", req.UserID)
	logger.Info("query received", "command", commandName(last.Content), "attachments", len(last.Attachments))

	_ = events.Meta()
	out := &streamResponder{
		events:    events,
		uploader:  h.server.cfg.Uploader,
		accessKey: req.AccessKey,
		messageID: req.MessageID,
	}
	respErr := h.route.Bot.Respond(r.Context(), req, out)

	entry := journal.Entry{
		Bot:            h.route.Bot.Name(),
		Command:        commandName(last.Content),
		UserID:         req.UserID,
		ConversationID: req.ConversationID,
		MessageID:      req.MessageID,
		HasAttachment:  len(last.Attachments) > 0,
		Outcome:        journal.OutcomeOK,
		Latency:        time.Since(start),
	}
	if respErr != nil {
		metrics.FatalErrors.Inc()
		logger.Error("query failed", "err", respErr)
		entry.Outcome = journal.OutcomeFatal
		entry.Error = respErr.Error()
		if errors.Is(respErr, context.Canceled) {
			logger.Info("client went away")
		} else {
			_ = events.Error(respErr.Error())
		}
	}
	_ = events.Done()
	logger.Info("query done", "latency", entry.Latency, "outcome", entry.Outcome)

	if h.server.cfg.Journal != nil {
		// request context may already be cancelled
		if err := h.server.cfg.Journal.LogRequest(context.WithoutCancel(r.Context()), entry); err != nil {
			logger.Warn("journal write failed", "err", err)
		}
	}
}

func (h *botHandler) logReport(ctx context.Context, rep journal.Report, logger *slog.Logger) {
	if h.server.cfg.Journal == nil {
		return
	}
	if err := h.server.cfg.Journal.LogReport(ctx, rep); err != nil {
		logger.Warn("journal write failed", "err", err)
	}
}

// commandName returns the slash command a message starts with, or "default".
func commandName(content string) string {
	if !strings.HasPrefix(content, "/") {
		return "default"
	}
	name, _, _ := strings.Cut(content[1:], " ")
	name, _, _ = strings.Cut(name, "\n")
	if name == "" {
		return "default"
	}
	return name
}

// streamResponder adapts an event stream to domain.Responder.
type streamResponder struct {
	events    *EventWriter
	uploader  AttachmentUploader
	accessKey string
	messageID string
}

func (s *streamResponder) Send(_ context.Context, p domain.PartialResponse) error {
	return s.events.Partial(p)
}

func (s *streamResponder) Attach(ctx context.Context, art domain.Artifact) error {
	if s.uploader == nil {
		return fmt.Errorf("attachments are not configured")
	}
	_, err := s.uploader.Upload(ctx, s.accessKey, s.messageID, art)
	return err
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
