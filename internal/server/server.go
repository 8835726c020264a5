// Package server exposes the chat relay over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/m2tx/chat_relay/assets"
	"github.com/m2tx/chat_relay/internal/agent"
)

const (
	// ReadHeaderTimeout bounds how long a client may take to send request headers.
	ReadHeaderTimeout = 10 * time.Second

	// IdleTimeout is the maximum amount of time to wait for the next request.
	IdleTimeout = 60 * time.Second

	// ShutdownTimeout is the maximum time to wait for open streams on shutdown.
	ShutdownTimeout = 30 * time.Second
)

const streamPath = "/chat/stream"

// Server serves the front-end page, conversation history and the chat stream.
// Chat streams have no write timeout: they stay open until the reply ends.
type Server struct {
	agent    *agent.Agent
	provider string
	limiter  *clientLimiter
	server   *http.Server
}

// Options tunes optional server behaviour.
type Options struct {
	// Provider names the completion backend reported by /health.
	Provider string

	// RateLimit is the number of chat streams per second allowed per client.
	// Zero disables limiting.
	RateLimit float64
	RateBurst int
}

func New(addr string, a *agent.Agent, opts Options) *Server {
	s := &Server{
		agent:    a,
		provider: opts.Provider,
		limiter:  newClientLimiter(opts.RateLimit, opts.RateBurst),
	}

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		IdleTimeout:       IdleTimeout,
	}

	return s
}

// Handler returns the routed handler. Requests other than chat streams are
// access logged; streams log their own start and outcome.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /conversation/{conversationId}", s.handleGetConversation)
	mux.HandleFunc("DELETE /conversation/{conversationId}", s.handleDeleteConversation)
	mux.HandleFunc("GET "+streamPath, s.handleChatStream)

	return accessLog(mux)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		log.Printf("server: running at http://localhost%s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Printf("server: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}

	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	http.ServeFileFS(w, r, assets.Dir, assets.IndexFile)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"status":   "ok",
		"provider": s.provider,
		"model":    s.agent.Model(),
	})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.agent.GetConversation(r.PathValue("conversationId")))
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	s.agent.ClearConversation(r.PathValue("conversationId"))
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.allow(r.RemoteAddr) {
		log.Printf("server: rate limit exceeded for %s", r.RemoteAddr)
		http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	query := r.URL.Query()

	// Failures are logged and reported to the client inside the stream.
	_ = s.agent.Stream(r.Context(), w, query.Get("conversationId"), query.Get("message"))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")

	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("server: encode response: %v", err)
	}
}
