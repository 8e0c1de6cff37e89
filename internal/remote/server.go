// Package remote exposes a control.Client over HTTP and provides the
// matching client, so short lived CLI invocations can drive the long lived
// agent started by `pfctl serve`.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"pfctl/internal/control"
	"pfctl/pkg/logging"
)

// StopOrDeleteRequest is the body of DELETE /portforward. StopOrDelete true
// stops the session, false deletes it.
type StopOrDeleteRequest struct {
	Cluster      string `json:"cluster"`
	ID           string `json:"id"`
	StopOrDelete bool   `json:"stopOrDelete"`
}

// Server serves a control.Client.
type Server struct {
	backend    control.Client
	httpServer *http.Server
}

// NewServer creates a server for backend.
func NewServer(backend control.Client) *Server {
	return &Server{backend: backend}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /portforward/list", s.handleList)
	mux.HandleFunc("POST /portforward", s.handleStart)
	mux.HandleFunc("DELETE /portforward", s.handleStopOrDelete)
	return mux
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener is Serve on an existing listener.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("RemoteServer", "Serving port forward API on %s", ln.Addr())
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		logging.Error("RemoteServer", err, "Error shutting down HTTP server")
		return err
	}
	logging.Info("RemoteServer", "Port forward API stopped")
	return nil
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	cluster := r.URL.Query().Get("cluster")
	list, err := s.backend.List(r.Context(), cluster)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req control.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	started, err := s.backend.Start(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, started)
}

func (s *Server) handleStopOrDelete(w http.ResponseWriter, r *http.Request) {
	var req StopOrDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.ID == "" || req.Cluster == "" {
		writeError(w, http.StatusBadRequest, errors.New("cluster and id are required"))
		return
	}

	var err error
	if req.StopOrDelete {
		err = s.backend.Stop(r.Context(), req.Cluster, req.ID)
	} else {
		err = s.backend.Delete(r.Context(), req.Cluster, req.ID)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("RemoteServer", err, "Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	http.Error(w, control.Message(err), status)
}
