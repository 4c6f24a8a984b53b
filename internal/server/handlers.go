package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/digitalex/codeless/internal/generation"
	"github.com/digitalex/codeless/internal/logging"
)

// codeResponse carries one generated artifact.
type codeResponse struct {
	Code string `json:"code"`
}

// refineRequest starts a full refinement session.
type refineRequest struct {
	Interface string `json:"interface"`
}

// refineResponse summarizes a finished session.
type refineResponse struct {
	SessionID       string `json:"session_id"`
	State           string `json:"state"`
	Passed          bool   `json:"passed"`
	TestCode        string `json:"test_code"`
	ImplCode        string `json:"impl_code"`
	Diagnostic      string `json:"diagnostic,omitempty"`
	TestGenerations int    `json:"test_generations"`
	ImplGenerations int    `json:"impl_generations"`
	OracleRuns      int    `json:"oracle_runs"`
	DurationMillis  int64  `json:"duration_ms"`
}

func (s *Server) generateTests(c *gin.Context) {
	var req generation.TestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Interface) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "interface must not be empty"})
		return
	}

	log := logging.Get(logging.CategoryAPI)
	log.Info("generate tests request (%d prior attempts)", len(req.PriorAttempts))

	code, err := s.tests.Generate(c.Request.Context(), req)
	if err != nil {
		log.Error("test generation failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "test generation failed"})
		return
	}
	c.JSON(http.StatusOK, codeResponse{Code: code})
}

func (s *Server) generateImpl(c *gin.Context) {
	var req generation.ImplRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Interface) == "" || strings.TrimSpace(req.Tests) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "interface and tests must not be empty"})
		return
	}

	log := logging.Get(logging.CategoryAPI)
	log.Info("generate impl request (%d prior attempts)", len(req.PriorAttempts))

	code, err := s.impl.Generate(c.Request.Context(), req)
	if err != nil {
		log.Error("implementation generation failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "implementation generation failed"})
		return
	}
	c.JSON(http.StatusOK, codeResponse{Code: code})
}

func (s *Server) runRefinement(c *gin.Context) {
	if s.refiner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "refinement is not configured"})
		return
	}

	var req refineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Interface) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "interface must not be empty"})
		return
	}

	result, err := s.refiner.Run(c.Request.Context(), req.Interface)
	if err != nil {
		logging.Get(logging.CategoryAPI).Error("refinement session failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, refineResponse{
		SessionID:       result.SessionID,
		State:           string(result.State),
		Passed:          result.Passed,
		TestCode:        result.TestCode,
		ImplCode:        result.ImplCode,
		Diagnostic:      result.Diagnostic,
		TestGenerations: result.TestGenerations,
		ImplGenerations: result.ImplGenerations,
		OracleRuns:      result.OracleRuns,
		DurationMillis:  result.Duration.Milliseconds(),
	})
}

func (s *Server) listSessions(c *gin.Context) {
	if s.audit == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit store is not configured"})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	records, err := s.audit.ListSessions(limit)
	if err != nil {
		logging.Get(logging.CategoryAPI).Error("failed to list sessions: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sessions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": records})
}

func (s *Server) getSession(c *gin.Context) {
	if s.audit == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit store is not configured"})
		return
	}

	id := c.Param("id")
	record, err := s.audit.GetSession(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	attempts, err := s.audit.ListAttempts(id)
	if err != nil {
		logging.Get(logging.CategoryAPI).Error("failed to list attempts: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load attempts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": record, "attempts": attempts})
}
