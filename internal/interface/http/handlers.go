package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/application/command"
	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/application/query"
	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/domain/badge"
	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/domain/shared"
	"github.com/Posologia-Edu/pbl-virtual-sub001/pkg/logger"
)

// ErrMalformedBody is returned for request bodies that are not valid JSON.
var ErrMalformedBody = shared.NewDomainError("api", "DecodeRequest", shared.ErrInvalidInput, "malformed request body")

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(c *gin.Context) {
	status := s.deps.HealthChecker.Check(c.Request.Context())
	if !status.Healthy {
		c.JSON(http.StatusServiceUnavailable, status)
		return
	}
	c.JSON(http.StatusOK, status)
}

// handleReady handles the readiness probe endpoint (for Kubernetes).
func (s *Server) handleReady(c *gin.Context) {
	status := s.deps.HealthChecker.Check(c.Request.Context())
	if !status.Ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "reason": status.Message})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// handleLive handles the liveness probe endpoint (for Kubernetes).
func (s *Server) handleLive(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// BADGE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type computeRequest struct {
	UserID string `json:"user_id"`
	RoomID string `json:"room_id"`
}

type computeResponse struct {
	Badges    []query.BadgeDTO `json:"badges"`
	NewBadges int              `json:"new_badges"`
	Metrics   badge.Metrics    `json:"metrics"`
}

// handleComputeBadges evaluates every rule for the requested user and
// returns the full badge summary.
func (s *Server) handleComputeBadges(c *gin.Context) {
	var req computeRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		s.abort(c, ErrMalformedBody.Wrap(err))
		return
	}

	result, err := s.deps.ComputeBadges.Handle(c.Request.Context(), command.ComputeBadgesCommand{
		CallerID:      callerID(c),
		UserID:        req.UserID,
		RoomID:        req.RoomID,
		CorrelationID: c.GetString(ctxRequestID),
	})
	if err != nil {
		s.abort(c, err)
		return
	}

	c.JSON(http.StatusOK, computeResponse{
		Badges:    query.NewBadgeDTOs(result.Badges),
		NewBadges: result.NewBadges,
		Metrics:   result.Metrics,
	})
}

// handleGetUserBadges returns the badges of a user without evaluating rules.
func (s *Server) handleGetUserBadges(c *gin.Context) {
	dto, err := s.deps.GetUserBadges.Handle(c.Request.Context(), query.GetUserBadgesQuery{
		CallerID: callerID(c),
		UserID:   c.Query("user_id"),
	})
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, dto)
}

// handleListDefinitions returns the achievement catalog.
func (s *Server) handleListDefinitions(c *gin.Context) {
	dto, err := s.deps.ListDefinitions.Handle(c.Request.Context(), query.ListDefinitionsQuery{
		Category: c.Query("category"),
	})
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, dto)
}

type definitionRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Category    string `json:"category"`
}

// handleUpsertDefinition creates or replaces the definition named by :slug.
func (s *Server) handleUpsertDefinition(c *gin.Context) {
	var req definitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abort(c, ErrMalformedBody.Wrap(err))
		return
	}

	result, err := s.deps.UpsertDefinition.Handle(c.Request.Context(), command.UpsertDefinitionCommand{
		Slug:          c.Param("slug"),
		Name:          req.Name,
		Description:   req.Description,
		Icon:          req.Icon,
		Category:      req.Category,
		CorrelationID: c.GetString(ctxRequestID),
	})
	if err != nil {
		s.abort(c, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	c.JSON(status, query.NewDefinitionDTO(result.Definition))
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

const msgInternal = "internal server error"

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	switch {
	case shared.IsValidation(err):
		return http.StatusBadRequest
	case shared.IsUnauthorized(err):
		return http.StatusUnauthorized
	case shared.IsForbidden(err):
		return http.StatusForbidden
	case shared.IsNotFound(err):
		return http.StatusNotFound
	case shared.IsRateLimited(err):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage never exposes causes: client errors get the domain message,
// everything else a fixed text.
func publicMessage(err error, status int) string {
	if status >= http.StatusInternalServerError {
		return msgInternal
	}
	var de *shared.DomainError
	if errors.As(err, &de) {
		return de.Message
	}
	return http.StatusText(status)
}

// abort writes the error response and records err for the request log.
func (s *Server) abort(c *gin.Context, err error) {
	status := statusFor(err)
	_ = c.Error(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(c.Request.Context()).Error("request failed",
			logger.String("path", c.Request.URL.Path),
			logger.Err(err),
		)
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: publicMessage(err, status)})
}
