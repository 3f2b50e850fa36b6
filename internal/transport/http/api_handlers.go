package http

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/robceliesius/plugin-ably/internal/plugin"
	"github.com/robceliesius/plugin-ably/internal/realtime"
	"github.com/robceliesius/plugin-ably/internal/token"
)

// Adapter is the plugin surface the HTTP layer exposes.
type Adapter interface {
	Manifest() plugin.Manifest
	State() plugin.State
	Execute(ctx context.Context, code string, params map[string]any) (any, error)
	FetchCollection(ctx context.Context, c plugin.Collection) plugin.CollectionResult
}

// TokenIssuer signs realtime credentials for /token.
type TokenIssuer interface {
	Issue(clientID string) (*realtime.Token, error)
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// APIHandlers provides HTTP handlers for REST API endpoints.
type APIHandlers struct {
	adapter Adapter
	issuer  TokenIssuer
	log     *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance. issuer may be nil.
func NewAPIHandlers(adapter Adapter, issuer TokenIssuer, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		adapter: adapter,
		issuer:  issuer,
		log:     logger,
	}
}

// Manifest describes actions and triggers.
// GET /api/manifest
func (h *APIHandlers) Manifest(c *gin.Context) {
	c.JSON(http.StatusOK, h.adapter.Manifest())
}

// State returns the projected adapter state.
// GET /api/state
func (h *APIHandlers) State(c *gin.Context) {
	c.JSON(http.StatusOK, h.adapter.State())
}

// Action runs a plugin action with the JSON body as parameters.
// POST /api/actions/:code
func (h *APIHandlers) Action(c *gin.Context) {
	code := c.Param("code")

	params := map[string]any{}
	if err := c.ShouldBindJSON(&params); err != nil && !errors.Is(err, io.EOF) {
		h.log.Debug().Err(err).Str("action", code).Msg("invalid action request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: plugin.ErrCodeValidation})
		return
	}

	result, err := h.adapter.Execute(c.Request.Context(), code, params)
	if err != nil {
		errCode := plugin.ErrorCode(err)
		status := statusFor(errCode)
		if status >= http.StatusInternalServerError {
			h.log.Error().Err(err).Str("action", code).Msg("action failed")
		} else {
			h.log.Debug().Err(err).Str("action", code).Msg("action rejected")
		}
		c.JSON(status, ErrorResponse{Error: err.Error(), Code: errCode})
		return
	}

	c.JSON(http.StatusOK, result)
}

// Collection fetches a history collection. Failures are reported in the body.
// POST /api/collections/history
func (h *APIHandlers) Collection(c *gin.Context) {
	var req plugin.Collection
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid collection request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: plugin.ErrCodeValidation})
		return
	}
	c.JSON(http.StatusOK, h.adapter.FetchCollection(c.Request.Context(), req))
}

// Token issues a realtime credential for the requested client id.
// POST /token
func (h *APIHandlers) Token(c *gin.Context) {
	var req token.Request
	if err := c.ShouldBindJSON(&req); err != nil || req.ClientID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "clientId is required"})
		return
	}

	tok, err := h.issuer.Issue(req.ClientID)
	if err != nil {
		h.log.Error().Err(err).Str("client_id", req.ClientID).Msg("failed to issue token")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Debug().Str("client_id", req.ClientID).Str("user_id", req.UserID).Msg("token issued")
	c.JSON(http.StatusOK, tok)
}

func healthHandler(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}
