// Package api exposes the engine's admin surface over HTTP: catalog
// inspection, run history, manual triggering, and force-cancel.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/steadystate/havoc/pkg/catalog"
	"github.com/steadystate/havoc/pkg/coordinator"
	"github.com/steadystate/havoc/pkg/history"
	"github.com/steadystate/havoc/pkg/log"
	"github.com/steadystate/havoc/pkg/metrics"
	"github.com/steadystate/havoc/pkg/scheduler"
	"github.com/steadystate/havoc/pkg/types"
)

// Server wires the admin endpoints to the engine components.
type Server struct {
	catalog     *catalog.Catalog
	coordinator *coordinator.Coordinator
	scheduler   *scheduler.Scheduler
	history     *history.Store
	registry    *prometheus.Registry

	httpServer *http.Server
}

func NewServer(address string, cat *catalog.Catalog, coord *coordinator.Coordinator, sched *scheduler.Scheduler, store *history.Store) (*Server, error) {
	s := &Server{
		catalog:     cat,
		coordinator: coord,
		scheduler:   sched,
		history:     store,
		registry:    prometheus.NewRegistry(),
	}
	if err := metrics.Register(s.registry); err != nil {
		return nil, err
	}
	s.httpServer = &http.Server{
		Addr:    address,
		Handler: s.router(),
	}
	return s, nil
}

func (s *Server) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/definitions", s.handleListDefinitions)
		v1.GET("/definitions/:id", s.handleGetDefinition)
		v1.POST("/definitions/:id/trigger", s.handleTrigger)
		v1.GET("/runs", s.handleListRuns)
		v1.GET("/runs/active", s.handleActiveRuns)
		v1.GET("/runs/:id", s.handleGetRun)
		v1.POST("/runs/:id/halt", s.handleHaltRun)
	}
	return router
}

// Serve blocks until ListenAndServe returns.
func (s *Server) Serve() error {
	log.Infof("[Admin]: Serving on %v", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the routed mux, used by tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleListDefinitions(c *gin.Context) {
	definitions := s.catalog.All()
	if definitions == nil {
		definitions = []*types.ExperimentDefinition{}
	}
	c.JSON(http.StatusOK, definitions)
}

func (s *Server) handleGetDefinition(c *gin.Context) {
	definition, ok := s.catalog.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, errorResponse{Error: "no definition with this id"})
		return
	}
	c.JSON(http.StatusOK, definition)
}

// handleTrigger fires a scheduled experiment immediately. The run still
// has to pass the safety pre-check, a NO_GO comes back as a SKIPPED
// execution, not an HTTP error.
func (s *Server) handleTrigger(c *gin.Context) {
	execution, err := s.scheduler.TriggerNow(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, execution)
}

func (s *Server) handleListRuns(c *gin.Context) {
	runs := s.history.All()
	if definitionID := c.Query("definition"); definitionID != "" {
		runs = s.history.ForDefinition(definitionID)
	}
	if runs == nil {
		runs = []types.ExperimentExecution{}
	}
	c.JSON(http.StatusOK, runs)
}

func (s *Server) handleActiveRuns(c *gin.Context) {
	active := s.coordinator.ActiveRuns()
	if active == nil {
		active = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"active": active})
}

func (s *Server) handleGetRun(c *gin.Context) {
	record, ok := s.history.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, errorResponse{Error: "no run record with this id"})
		return
	}
	c.JSON(http.StatusOK, record)
}

type haltRequest struct {
	Reason string `json:"reason"`
}

// handleHaltRun force-cancels a running experiment through the same
// path a safety breach takes.
func (s *Server) handleHaltRun(c *gin.Context) {
	var req haltRequest
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "operator requested cancellation"
	}

	if err := s.coordinator.Halt(c.Param("id"), req.Reason); err != nil {
		c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"runID": c.Param("id"), "halting": true})
}
