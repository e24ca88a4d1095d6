// Package handlers exposes the HTTP control surface of the service.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sharmina-lina/livetweets-main/internal/popularity"
	"github.com/sharmina-lina/livetweets-main/internal/stream"
	"github.com/sharmina-lina/livetweets-main/pkg/clients/firehose"
	"github.com/sharmina-lina/livetweets-main/pkg/logging"
)

// ruleManager is the slice of the rule manager the handlers need
type ruleManager interface {
	AddRules(ctx context.Context, defs []firehose.RuleDefinition) error
	DeleteAllActive(ctx context.Context) error
}

// ranker is the slice of the popularity ranker the handlers need
type ranker interface {
	Top10(ctx context.Context) (popularity.Lists, error)
}

// socketServer upgrades broadcast subscriber connections
type socketServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
}

// Handlers wires the stream session, rules, and rankings to HTTP
type Handlers struct {
	session *stream.Session
	rules   ruleManager
	ranker  ranker
	hub     socketServer
	logger  logging.Logger
}

// NewHandlers creates the HTTP handler set
func NewHandlers(session *stream.Session, rules ruleManager, ranker ranker, hub socketServer, logger logging.Logger) *Handlers {
	return &Handlers{
		session: session,
		rules:   rules,
		ranker:  ranker,
		hub:     hub,
		logger:  logger,
	}
}

// Register mounts all routes on the router
func (h *Handlers) Register(router *gin.Engine) {
	router.POST("/stream/start", h.StartStream)
	router.POST("/stream/open", h.OpenStream)
	router.POST("/stream/stop", h.StopStream)
	router.GET("/stream/state", h.StreamState)
	router.POST("/rules", h.AddRules)
	router.DELETE("/rules", h.DeleteRules)
	router.GET("/popularity", h.Popularity)
	router.GET("/ws", h.ServeWS)
}

// StartStream initiates a stream session
func (h *Handlers) StartStream(c *gin.Context) {
	if err := h.session.Start(c.Request.Context()); err != nil {
		h.writeStreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "Stream initiated", "state": h.session.State()})
}

// OpenStream connects the filtered stream of an initiated session. The
// consume loop must outlive this request, so it gets a fresh context.
func (h *Handlers) OpenStream(c *gin.Context) {
	if err := h.session.OpenFilter(context.Background()); err != nil {
		h.writeStreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "Streaming", "state": h.session.State()})
}

// StopStream disconnects the active stream session
func (h *Handlers) StopStream(c *gin.Context) {
	if err := h.session.Stop(); err != nil {
		h.writeStreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "Disconnect signal sent", "state": h.session.State()})
}

// StreamState reports the session lifecycle phase
func (h *Handlers) StreamState(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"state": h.session.State()})
}

type addRulesRequest struct {
	Rules []firehose.RuleDefinition `json:"rules" binding:"required"`
}

// AddRules submits a batch of filter rules, replacing stored duplicates
func (h *Handlers) AddRules(c *gin.Context) {
	var req addRulesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid rule payload"})
		return
	}

	if err := h.rules.AddRules(c.Request.Context(), req.Rules); err != nil {
		h.writeStreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "Rules submitted"})
}

// DeleteRules removes every active filter rule
func (h *Handlers) DeleteRules(c *gin.Context) {
	if err := h.rules.DeleteAllActive(c.Request.Context()); err != nil {
		h.writeStreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "No rules stored in stream"})
}

// Popularity returns the current top-10 entity rankings
func (h *Handlers) Popularity(c *gin.Context) {
	lists, err := h.ranker.Top10(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to build popularity lists")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build popularity lists"})
		return
	}
	c.JSON(http.StatusOK, lists)
}

// ServeWS upgrades the connection and subscribes it to the broadcast hub
func (h *Handlers) ServeWS(c *gin.Context) {
	h.hub.ServeWS(c.Writer, c.Request)
}

// writeStreamError maps domain errors onto HTTP responses
func (h *Handlers) writeStreamError(c *gin.Context, err error) {
	var providerErr *firehose.ProviderError
	switch {
	case errors.Is(err, stream.ErrAlreadyActive):
		c.JSON(http.StatusConflict, gin.H{"error": "Stream already initiated"})
	case errors.Is(err, stream.ErrNoActiveStream):
		c.JSON(http.StatusConflict, gin.H{"error": "No active stream"})
	case errors.As(err, &providerErr):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":       providerErr.Error(),
			"status_code": providerErr.StatusCode,
		})
	default:
		h.logger.WithError(err).Error("Stream operation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
