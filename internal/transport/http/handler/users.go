package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"animehub/internal/domain"
	"animehub/internal/service"
	"animehub/internal/transport/http/ez"
)

// Users is the admin surface for accounts.
type Users struct {
	sessions *service.SessionService
	mod      *service.ModerationService
}

func NewUsers(s *service.SessionService, m *service.ModerationService) *Users {
	return &Users{sessions: s, mod: m}
}

type actionIn struct {
	Reason string `json:"reason"`
	Days   int    `json:"days"`
}

func (h *Users) MountAdmin(admin *gin.RouterGroup) {
	e := ez.New(admin)

	ez.RegisterAction(e, ez.Action[struct{}, []domain.User]{
		Method: http.MethodGet,
		Path:   "/users",
		Binder: ez.BindNone,
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) ([]domain.User, error) {
			users, err := h.sessions.ListUsers(c.Request.Context())
			if users == nil {
				users = []domain.User{}
			}
			return users, err
		},
	})

	ez.RegisterAction(e, ez.Action[struct{}, *domain.User]{
		Method: http.MethodGet,
		Path:   "/users/:id",
		Binder: ez.BindNone,
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) (*domain.User, error) {
			return h.sessions.GetUser(c.Request.Context(), c.Param("id"))
		},
	})

	ez.RegisterAction(e, ez.Action[struct{}, []domain.AdminAction]{
		Method: http.MethodGet,
		Path:   "/users/:id/actions",
		Binder: ez.BindNone,
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) ([]domain.AdminAction, error) {
			acts, err := h.mod.AdminHistory(c.Request.Context(), ez.UserID(c), c.Param("id"))
			if acts == nil {
				acts = []domain.AdminAction{}
			}
			return acts, err
		},
	})

	actions := map[string]func(c *gin.Context, id string, in *actionIn) (*domain.User, error){
		"/users/:id/warn": func(c *gin.Context, id string, in *actionIn) (*domain.User, error) {
			return h.mod.WarnUser(c.Request.Context(), ez.UserID(c), id, in.Reason)
		},
		"/users/:id/suspend": func(c *gin.Context, id string, in *actionIn) (*domain.User, error) {
			return h.mod.SuspendUser(c.Request.Context(), ez.UserID(c), id, in.Reason, in.Days)
		},
		"/users/:id/ban": func(c *gin.Context, id string, in *actionIn) (*domain.User, error) {
			return h.mod.BanUser(c.Request.Context(), ez.UserID(c), id, in.Reason)
		},
		"/users/:id/restore": func(c *gin.Context, id string, in *actionIn) (*domain.User, error) {
			return h.mod.RestoreUser(c.Request.Context(), ez.UserID(c), id, in.Reason)
		},
	}
	for path, act := range actions {
		ez.RegisterAction(e, ez.Action[actionIn, *domain.User]{
			Method: http.MethodPost,
			Path:   path,
			Binder: ez.BindJSON,
			Auth:   true,
			Handler: func(c *gin.Context, in *actionIn) (*domain.User, error) {
				return act(c, c.Param("id"), in)
			},
		})
	}

	ez.RegisterAction(e, ez.Action[struct{}, *domain.User]{
		Method: http.MethodPost,
		Path:   "/users/:id/approve",
		Binder: ez.BindNone,
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) (*domain.User, error) {
			return h.mod.ApproveAccount(c.Request.Context(), ez.UserID(c), c.Param("id"))
		},
	})
}
