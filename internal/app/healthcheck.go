package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vk/taskancestry/internal/ctxlog"
	"github.com/vk/taskancestry/internal/snapshot"
)

// healthHandler reports liveness.
func (app *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	logger := ctxlog.FromContext(app.ctx)
	logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

// snapshotHandler builds and exports a live snapshot on POST.
func (app *App) snapshotHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	g, err := app.trigger.Snapshot(app.ctx, snapshot.ReasonRequest)
	if errors.Is(err, snapshot.ErrClosed) {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		ctxlog.FromContext(app.ctx).Error("Requested snapshot failed.", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "%s vertices=%d edges=%d\n", g.ID, g.Len(), len(g.Edges))
}

// ancestryView is the /ancestry response for one entity id.
type ancestryView struct {
	ID           uint64   `json:"id"`
	Ancestors    []uint64 `json:"ancestors"`
	ChildTasks   []uint64 `json:"child_tasks"`
	ChildRegions []uint64 `json:"child_regions"`
	Team         []uint64 `json:"team"`
}

// ancestryHandler answers GET /ancestry?id=N from the extended ancestry
// index. It is 404 while extended_ancestry is off.
func (app *App) ancestryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	index := app.collector.Index()
	if index == nil {
		http.Error(w, "extended ancestry tracking is disabled", http.StatusNotFound)
		return
	}
	id, err := strconv.ParseUint(r.URL.Query().Get("id"), 10, 64)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid id: %v", err), http.StatusBadRequest)
		return
	}

	view := ancestryView{
		ID:           id,
		Ancestors:    index.Ancestors(id),
		ChildTasks:   index.ChildTasks(id),
		ChildRegions: index.ChildRegions(id),
		Team:         index.Team(id),
	}
	if view.Ancestors == nil {
		view.Ancestors = []uint64{}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(view); err != nil {
		ctxlog.FromContext(app.ctx).Warn("Failed to write ancestry response.", "error", err)
	}
}

func (app *App) healthMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", app.healthHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(app.promRegistry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/snapshot", app.snapshotHandler)
	mux.HandleFunc("/ancestry", app.ancestryHandler)
	return mux
}

// healthCheckServer initializes and runs the health check HTTP server.
func (app *App) healthCheckServer() {
	logger := ctxlog.FromContext(app.ctx)
	logger.Debug("Configuring health check server.")
	if app.config.HealthcheckPort <= 0 {
		logger.Debug("Health check server not started: disabled")
		return
	}

	addr := fmt.Sprintf(":%d", app.config.HealthcheckPort)
	app.httpServer = &http.Server{
		Addr:    addr,
		Handler: app.healthMux(),
	}

	go func() {
		logger.Info("Health check server starting", "address", fmt.Sprintf("http://localhost%s/health", addr))
		if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Health check server failed unexpectedly", "error", err)
		}
	}()
}

func (app *App) closeHealthCheckServer() error {
	logger := ctxlog.FromContext(app.ctx)
	logger.Debug("Closing health check server...")

	if app.httpServer == nil {
		logger.Debug("Health check server was not running.")
		return nil
	}

	ctx, cancel := context.WithTimeout(app.ctx, 5*time.Second)
	defer cancel()

	logger.Info("Shutting down health check server...")
	if err := app.httpServer.Shutdown(ctx); err != nil {
		logger.Error("Health check server shutdown failed", "error", err)
		return err
	}

	logger.Debug("Health check server shut down gracefully.")
	return nil
}
