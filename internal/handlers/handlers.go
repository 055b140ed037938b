package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/unicodeveloper/supplement-research/internal/auth"
	"github.com/unicodeveloper/supplement-research/internal/models"
	"github.com/unicodeveloper/supplement-research/internal/research"
)

type Handler struct {
	service Servicer
	auth    Authenticator
	tokens  *auth.TokenStore
	hosted  bool
	Log     *slog.Logger
}

type Servicer interface {
	CreateResearch(ctx context.Context, req models.ResearchRequest) (*models.CreateResponse, error)
	Status(ctx context.Context, taskID string) (*models.ResearchTask, bool, error)
	Cancel(ctx context.Context, taskID string)
	Archive(ctx context.Context, taskID string) (string, []string, error)
}

type Authenticator interface {
	Begin(form *models.ResearchRequest) (string, error)
	Callback(ctx context.Context, code, state string) (*models.AuthSession, error)
	RestoreFormValues() (*models.ResearchRequest, error)
}

func NewHandler(srv Servicer, authn Authenticator, tokens *auth.TokenStore, hosted bool, log *slog.Logger) *Handler {
	return &Handler{
		service: srv,
		auth:    authn,
		tokens:  tokens,
		hosted:  hosted,
		Log:     log,
	}
}

func (h *Handler) CreateResearch(c *gin.Context) {
	var req models.ResearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Log.Error("invalid request", slog.String("path", c.Request.URL.Path), slog.String("error", err.Error()))

		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}
	if req.SupplementName == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid_request", Message: "supplementName is required"})
		return
	}

	res, err := h.service.CreateResearch(c.Request.Context(), req)
	if err != nil {
		h.writeResearchError(c, err)
		return
	}

	c.JSON(http.StatusCreated, res)
}

func (h *Handler) Status(c *gin.Context) {
	taskID := c.Query("taskId")
	if taskID == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid_request", Message: "taskId is required"})
		return
	}

	task, needsSignIn, err := h.service.Status(c.Request.Context(), taskID)
	if needsSignIn || errors.Is(err, research.ErrAuthRequired) {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: models.ErrorCodeAuthRequired})
		return
	}
	if err != nil {
		h.writeResearchError(c, err)
		return
	}

	c.JSON(http.StatusOK, task)
}

type taskIDRequest struct {
	TaskID string `json:"taskId"`
}

func (h *Handler) Cancel(c *gin.Context) {
	var req taskIDRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.TaskID == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid_request", Message: "taskId is required"})
		return
	}

	// Best-effort by contract: local cleanup happens regardless of upstream.
	h.service.Cancel(c.Request.Context(), req.TaskID)

	c.JSON(http.StatusAccepted, gin.H{"success": true})
}

func (h *Handler) Archive(c *gin.Context) {
	var req taskIDRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.TaskID == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid_request", Message: "taskId is required"})
		return
	}

	url, failures, err := h.service.Archive(c.Request.Context(), req.TaskID)
	if err != nil {
		if errors.Is(err, research.ErrAuthRequired) {
			c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: models.ErrorCodeAuthRequired})
			return
		}
		c.JSON(http.StatusConflict, models.ErrorResponse{Error: "archive_failed", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"archive_url": url, "failures": failures})
}

// Login starts the PKCE flow. In-progress form values travel as query
// parameters and are restored after the round trip. Self-hosted deployments
// never sign in, whatever the OAuth configuration says.
func (h *Handler) Login(c *gin.Context) {
	if !h.hosted {
		c.JSON(http.StatusConflict, models.ErrorResponse{Error: "oauth_not_configured"})
		return
	}

	var form *models.ResearchRequest
	if name := c.Query("supplementName"); name != "" {
		form = &models.ResearchRequest{
			SupplementName:     name,
			ResearchFocus:      c.Query("researchFocus"),
			CurrentSupplements: c.Query("currentSupplements"),
			HealthGoals:        c.Query("healthGoals"),
		}
	}

	authURL, err := h.auth.Begin(form)
	if errors.Is(err, auth.ErrNotConfigured) {
		c.JSON(http.StatusConflict, models.ErrorResponse{Error: "oauth_not_configured"})
		return
	}
	if err != nil {
		h.Log.Error("oauth initiation failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "oauth_init_failed"})
		return
	}

	c.Redirect(http.StatusFound, authURL)
}

// Callback completes the PKCE flow. Failures redirect back to the sign-in
// prompt instead of rendering raw error text.
func (h *Handler) Callback(c *gin.Context) {
	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		c.Redirect(http.StatusFound, "/?error=auth_failed")
		return
	}

	if _, err := h.auth.Callback(c.Request.Context(), code, state); err != nil {
		h.Log.Error("oauth callback failed", slog.String("error", err.Error()))
		c.Redirect(http.StatusFound, "/?error=auth_failed")
		return
	}

	c.Redirect(http.StatusFound, "/")
}

func (h *Handler) Logout(c *gin.Context) {
	if err := h.tokens.Clear(); err != nil {
		h.Log.Error("sign-out failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "logout_failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) Session(c *gin.Context) {
	if !h.hosted {
		c.JSON(http.StatusOK, gin.H{"authenticated": false, "hosted": false})
		return
	}
	user := h.tokens.User()
	c.JSON(http.StatusOK, gin.H{
		"authenticated": h.tokens.SignedIn(),
		"hosted":        true,
		"user":          user,
	})
}

// RestoreFormValues pops the form values saved before an OAuth redirect.
// At-most-once: the second call returns null.
func (h *Handler) RestoreFormValues(c *gin.Context) {
	form, err := h.auth.RestoreFormValues()
	if err != nil {
		h.Log.Error("restoring form values failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "restore_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"formValues": form})
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) writeResearchError(c *gin.Context, err error) {
	h.Log.Error("request failed", slog.String("path", c.Request.URL.Path), slog.String("error", err.Error()))

	if errors.Is(err, research.ErrAuthRequired) {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: models.ErrorCodeAuthRequired})
		return
	}

	var ce *research.CreationError
	if errors.As(err, &ce) {
		c.JSON(http.StatusBadGateway, models.ErrorResponse{Error: "task_creation_failed", Message: ce.Message})
		return
	}

	var se *research.StatusError
	if errors.As(err, &se) {
		c.JSON(http.StatusBadGateway, models.ErrorResponse{Error: "status_check_failed", Message: se.Message})
		return
	}

	c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "internal_error", Message: err.Error()})
}
