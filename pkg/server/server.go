// Package server exposes the committed graph to downstream read
// collaborators (response generator, graph visualizer) over HTTP. It
// is strictly read-only: lookups by term or symbol, and build stats.
package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dgtm-project/dgtm/internal/manager"
	"github.com/dgtm-project/dgtm/pkg/semgraph"
)

// Server serves lookups against the dataset described by cfg.
type Server struct {
	cfg    *semgraph.Config
	mgr    *manager.Manager
	router *gin.Engine
}

// New builds the server and its routes.
func New(cfg *semgraph.Config, mgr *manager.Manager) *Server {
	r := gin.Default()
	s := &Server{cfg: cfg, mgr: mgr, router: r}
	s.setupRoutes()
	return s
}

// Run starts the server on addr.
func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}

// Router returns the underlying engine, for tests.
func (s *Server) Router() *gin.Engine { return s.router }

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/v1/lookup/term/:term", s.handleLookupTerm)
	s.router.GET("/v1/lookup/symbol/:symbol", s.handleLookupSymbol)
	s.router.GET("/v1/stats", s.handleStats)
	s.router.GET("/v1/export/d3", s.handleExportD3)
}

func (s *Server) healthCheck(c *gin.Context) {
	c.Status(http.StatusOK)
}

// nodeResponse is the wire shape of a lookup result.
type nodeResponse struct {
	Node      *semgraph.EntityNode `json:"node"`
	Symbol    string               `json:"symbol"`
	Relations []relationResponse   `json:"relations,omitempty"`
}

type relationResponse struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
	Weight int    `json:"weight,omitempty"`
}

func (s *Server) handleLookupTerm(c *gin.Context) {
	h, err := s.mgr.Open(s.cfg)
	if err != nil {
		s.fail(c, err)
		return
	}
	node, rels, err := h.Lookup(c.Param("term"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, buildResponse(node, rels))
}

func (s *Server) handleLookupSymbol(c *gin.Context) {
	sym, err := semgraph.ParseSymbol(c.Param("symbol"))
	if err != nil {
		s.fail(c, err)
		return
	}
	h, err := s.mgr.Open(s.cfg)
	if err != nil {
		s.fail(c, err)
		return
	}
	node, rels, err := h.LookupSymbol(sym)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, buildResponse(node, rels))
}

func (s *Server) handleStats(c *gin.Context) {
	h, err := s.mgr.Open(s.cfg)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.Stats())
}

func (s *Server) handleExportD3(c *gin.Context) {
	h, err := s.mgr.Open(s.cfg)
	if err != nil {
		s.fail(c, err)
		return
	}
	g, err := h.ExportD3()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

func buildResponse(node *semgraph.EntityNode, rels []semgraph.Relation) nodeResponse {
	resp := nodeResponse{Node: node, Symbol: node.Symbol.String()}
	for _, rel := range rels {
		resp.Relations = append(resp.Relations, relationResponse{
			Source: rel.Source.String(),
			Target: rel.Target.String(),
			Type:   rel.Type.String(),
			Weight: rel.Weight,
		})
	}
	return resp
}

func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, semgraph.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, semgraph.ErrInvalidInput):
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
