package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"animehub/internal/domain"
	"animehub/internal/service"
	"animehub/internal/transport/http/ez"
)

type Notifications struct{ notes *service.NotificationService }

func NewNotifications(n *service.NotificationService) *Notifications {
	return &Notifications{notes: n}
}

type inboxOut struct {
	Items  []domain.Notification `json:"items"`
	Unread int                   `json:"unread"`
}

func (h *Notifications) MountAPI(_, authed *gin.RouterGroup) {
	e := ez.New(authed)

	ez.RegisterAction(e, ez.Action[struct{}, inboxOut]{
		Method: http.MethodGet,
		Path:   "/notifications",
		Binder: ez.BindNone,
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) (inboxOut, error) {
			ctx, uid := c.Request.Context(), ez.UserID(c)
			items, err := h.notes.GetUserNotifications(ctx, uid)
			if err != nil {
				return inboxOut{}, err
			}
			unread, err := h.notes.GetUnreadCount(ctx, uid)
			if err != nil {
				return inboxOut{}, err
			}
			if items == nil {
				items = []domain.Notification{}
			}
			return inboxOut{Items: items, Unread: unread}, nil
		},
	})

	ez.RegisterAction(e, ez.Action[struct{}, gin.H]{
		Method: http.MethodGet,
		Path:   "/notifications/unread-count",
		Binder: ez.BindNone,
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) (gin.H, error) {
			n, err := h.notes.GetUnreadCount(c.Request.Context(), ez.UserID(c))
			if err != nil {
				return nil, err
			}
			return gin.H{"unread": n}, nil
		},
	})

	ez.RegisterAction(e, ez.Action[struct{}, gin.H]{
		Method: http.MethodPost,
		Path:   "/notifications/:id/read",
		Binder: ez.BindNone,
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) (gin.H, error) {
			if err := h.notes.MarkAsRead(c.Request.Context(), ez.UserID(c), c.Param("id")); err != nil {
				return nil, err
			}
			return gin.H{"id": c.Param("id")}, nil
		},
	})

	ez.RegisterAction(e, ez.Action[struct{}, gin.H]{
		Method: http.MethodPost,
		Path:   "/notifications/read-all",
		Binder: ez.BindNone,
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) (gin.H, error) {
			n, err := h.notes.MarkAllAsRead(c.Request.Context(), ez.UserID(c))
			if err != nil {
				return nil, err
			}
			return gin.H{"changed": n}, nil
		},
	})
}
