package rest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/civicworks/civicd/internal/domain"
	"github.com/civicworks/civicd/internal/present/rest/middleware"
	"github.com/civicworks/civicd/internal/present/rest/presenter"
	"github.com/civicworks/civicd/internal/usecase"
)

// RealtimeService streams lifecycle events for a single websocket
// subscriber. It must stop, even mid-send, once ctx is canceled.
type RealtimeService interface {
	Realtime(ctx context.Context, input <-chan []string, output chan<- domain.Event)
}

type Handler struct {
	account *usecase.AccountUsecase
	issue   *usecase.IssueUsecase
	signal  RealtimeService
}

func NewHandler(
	account *usecase.AccountUsecase,
	issue *usecase.IssueUsecase,
	signal RealtimeService,
) *Handler {
	return &Handler{
		account: account,
		issue:   issue,
		signal:  signal,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo, auth *middleware.AuthMiddleware) {
	e.Use(auth.IdentifyIdentity)

	api := e.Group("/api/v1")
	api.POST("/auth/register", h.handleRegister)
	api.POST("/auth/login", h.handleLogin)

	api.GET("/users/me", h.handleMe, auth.Require())
	api.PUT("/users/me/location", h.handleUpdateLocation, auth.Require(domain.RoleWorker))
	api.GET("/workers", h.handleListWorkers, auth.Require(domain.RoleAdmin))

	api.GET("/issues", h.handleListIssues, auth.Require())
	api.POST("/issues", h.handleCreateIssue, auth.Require(domain.RoleCitizen))
	api.GET("/issues/:id", h.handleGetIssue, auth.Require())
	api.PUT("/issues/:id/status", h.handleUpdateStatus, auth.Require(domain.RoleAdmin, domain.RoleWorker))
	api.PUT("/issues/:id/assignee", h.handleReassign, auth.Require(domain.RoleAdmin))
	api.POST("/issues/:id/resolve", h.handleResolve, auth.Require(domain.RoleCitizen))
	api.POST("/issues/:id/comments", h.handleComment, auth.Require())

	e.GET("/realtime", h.handleRealtime, auth.Require())
}

type registerRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	MobileNumber string `json:"mobileNumber"`
}

type sessionResponse struct {
	Token string           `json:"token"`
	User  domain.Principal `json:"user"`
}

func (h *Handler) handleRegister(c echo.Context) error {
	ctx := c.Request().Context()

	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, "invalid request body")
	}

	principal, token, err := h.account.Register(ctx, usecase.RegisterInput{
		Email:        req.Email,
		Password:     req.Password,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		MobileNumber: req.MobileNumber,
	})
	if err != nil {
		return presenter.Error(c, err)
	}

	return presenter.Created(c, sessionResponse{Token: token, User: principal})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) handleLogin(c echo.Context) error {
	ctx := c.Request().Context()

	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, "invalid request body")
	}

	principal, token, err := h.account.Login(ctx, req.Email, req.Password)
	if err != nil {
		return presenter.Error(c, err)
	}

	return presenter.OK(c, sessionResponse{Token: token, User: principal})
}

func (h *Handler) handleMe(c echo.Context) error {
	principal, _ := middleware.PrincipalFrom(c.Request().Context())
	return presenter.OK(c, principal)
}

type locationRequest struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (h *Handler) handleUpdateLocation(c echo.Context) error {
	ctx := c.Request().Context()
	principal, _ := middleware.PrincipalFrom(ctx)

	var req locationRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, "invalid request body")
	}

	updated, err := h.account.UpdateLocation(ctx, principal, domain.Location{Lat: req.Lat, Lng: req.Lng})
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, updated)
}

func (h *Handler) handleListWorkers(c echo.Context) error {
	workers, err := h.account.Workers(c.Request().Context())
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, workers)
}

type createIssueRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	PhotoURLs   []string        `json:"photoUrls"`
	Location    locationRequest `json:"location"`
}

func (h *Handler) handleCreateIssue(c echo.Context) error {
	ctx := c.Request().Context()
	principal, _ := middleware.PrincipalFrom(ctx)

	var req createIssueRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, "invalid request body")
	}

	created, err := h.issue.Create(ctx, principal, usecase.CreateIssueInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		PhotoURLs:   req.PhotoURLs,
		Location:    domain.Location{Lat: req.Location.Lat, Lng: req.Location.Lng},
	})
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.Created(c, created)
}

func (h *Handler) handleListIssues(c echo.Context) error {
	ctx := c.Request().Context()
	principal, _ := middleware.PrincipalFrom(ctx)

	issues, err := h.issue.List(ctx, principal)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, issues)
}

func (h *Handler) handleGetIssue(c echo.Context) error {
	issue, err := h.issue.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, issue)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) handleUpdateStatus(c echo.Context) error {
	ctx := c.Request().Context()
	principal, _ := middleware.PrincipalFrom(ctx)

	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, "invalid request body")
	}

	updated, err := h.issue.UpdateStatus(ctx, principal, c.Param("id"), req.Status)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, updated)
}

type assignRequest struct {
	Worker string `json:"worker"`
}

func (h *Handler) handleReassign(c echo.Context) error {
	ctx := c.Request().Context()
	principal, _ := middleware.PrincipalFrom(ctx)

	var req assignRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, "invalid request body")
	}
	if req.Worker == "" {
		return presenter.BadRequest(c, "worker identifier is required")
	}

	updated, err := h.issue.Reassign(ctx, principal, c.Param("id"), req.Worker)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, updated)
}

type resolveRequest struct {
	Rating int `json:"rating"`
}

func (h *Handler) handleResolve(c echo.Context) error {
	ctx := c.Request().Context()
	principal, _ := middleware.PrincipalFrom(ctx)

	var req resolveRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, "invalid request body")
	}

	resolved, err := h.issue.Resolve(ctx, principal, c.Param("id"), req.Rating)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, resolved)
}

type commentRequest struct {
	Text string `json:"text"`
}

func (h *Handler) handleComment(c echo.Context) error {
	ctx := c.Request().Context()
	principal, _ := middleware.PrincipalFrom(ctx)

	var req commentRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, "invalid request body")
	}

	updated, err := h.issue.Comment(ctx, principal, c.Param("id"), req.Text)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.Created(c, updated)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type realtimeRequest struct {
	Type     string   `json:"type"`
	Prefixes []string `json:"prefixes"`
}

func (h *Handler) handleRealtime(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error(
			"Failed to upgrade WebSocket",
			slog.String("error", err.Error()),
			slog.String("module", "socket"),
		)
		return err
	}
	defer func() {
		ws.Close()
	}()

	// The derived context is the only shutdown signal toward the
	// signal service: canceling it unblocks a send in flight, so the
	// output channel is never closed from the receiving side.
	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	input := make(chan []string)
	output := make(chan domain.Event)

	go h.signal.Realtime(ctx, input, output)

	quit := make(chan struct{})

	go func() {
		defer close(quit)
		for {
			var req realtimeRequest
			err := ws.ReadJSON(&req)
			if err != nil {

				wsErr, ok := err.(*websocket.CloseError)
				if ok {
					if !(wsErr.Code == websocket.CloseNormalClosure || wsErr.Code == websocket.CloseGoingAway) {
						slog.DebugContext(
							ctx, "WebSocket closed",
							slog.String("error", wsErr.Error()),
							slog.String("module", "socket"),
						)
					}
				} else {
					slog.ErrorContext(
						ctx, "Error reading message",
						slog.String("error", err.Error()),
						slog.String("module", "socket"),
					)
				}

				return
			}

			switch req.Type {
			case "listen":
				select {
				case input <- req.Prefixes:
				case <-ctx.Done():
					return
				}
				slog.DebugContext(
					ctx, fmt.Sprintf("Socket subscribe: %s", req.Prefixes),
					slog.String("module", "socket"),
				)
			case "h": // heartbeat
				// do nothing
			default:
				slog.InfoContext(
					ctx, "Unknown request type",
					slog.String("type", req.Type),
					slog.String("module", "socket"),
				)
			}
		}
	}()

	for {
		select {
		case <-quit:
			return nil
		case event := <-output:
			err := ws.WriteJSON(event)
			if err != nil {
				slog.ErrorContext(
					ctx, "Error writing message",
					slog.String("error", err.Error()),
					slog.String("module", "socket"),
				)
				return nil
			}
		}
	}
}
