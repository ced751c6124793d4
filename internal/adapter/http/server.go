// Package http is the ingress boundary of the orchestration core. It accepts
// customer messages, tokenizes the customer reference before anything else
// sees it, and drops the turn onto the bus. Conversation processing is fully
// asynchronous; ingress answers 202 with the identifiers needed to follow up.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	otelx "github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/adapter/otel"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/domain/envelope"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/port/bus"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/token"
)

const bodyLimit = 64 << 10

// Server is the HTTP ingress.
type Server struct {
	bus       bus.Bus
	tokenizer *token.Tokenizer
	log       *slog.Logger
}

// NewServer creates the ingress server.
func NewServer(b bus.Bus, tokenizer *token.Tokenizer, log *slog.Logger) *Server {
	return &Server{bus: b, tokenizer: tokenizer, log: log}
}

// Router builds the chi router with the standard middleware stack.
func (s *Server) Router(serviceName string) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(otelx.HTTPMiddleware(serviceName))

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/messages", s.handleMessage)
	})
	return r
}

type messageRequest struct {
	ContextID   string `json:"context_id,omitempty"` // omit to start a new conversation
	CustomerRef string `json:"customer_ref"`
	Content     string `json:"content"`
}

type messageResponse struct {
	ContextID string `json:"context_id"`
	TaskID    string `json:"task_id"`
	MessageID string `json:"message_id"`
}

// handleMessage accepts one customer message and opens a pipeline turn.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[messageRequest](w, r, bodyLimit)
	if !ok {
		return
	}
	if !requireField(w, req.CustomerRef, "customer_ref") {
		return
	}
	if !requireField(w, req.Content, "content") {
		return
	}

	ref, err := s.tokenizer.Tokenize(req.CustomerRef)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid customer_ref")
		return
	}

	contextID := req.ContextID
	if contextID == "" {
		contextID = uuid.NewString()
	}

	env, err := envelope.New(envelope.TopicInbound, contextID, envelope.InboundPayload{
		CustomerRef: ref,
		Content:     req.Content,
	})
	if err != nil {
		writeInternalError(w, s.log, err)
		return
	}
	data, err := env.Encode()
	if err != nil {
		writeInternalError(w, s.log, err)
		return
	}
	if err := s.bus.Publish(r.Context(), envelope.TopicInbound, data); err != nil {
		writeInternalError(w, s.log, err)
		return
	}

	writeJSON(w, http.StatusAccepted, messageResponse{
		ContextID: env.ContextID,
		TaskID:    env.TaskID,
		MessageID: env.MessageID,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	code := http.StatusOK
	if !s.bus.IsConnected() {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": status})
}

// ListenAndServe runs the ingress until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr, serviceName string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(serviceName),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
