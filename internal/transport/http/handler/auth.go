// Package handler exposes the services of one tab as gin actions.
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"animehub/internal/domain"
	"animehub/internal/service"
	"animehub/internal/transport/http/ez"
)

type Auth struct{ sessions *service.SessionService }

func NewAuth(s *service.SessionService) *Auth { return &Auth{sessions: s} }

func (*Auth) Priority() int { return 10 }

type tokenOut struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      *domain.User `json:"user,omitempty"`
}

type sessionOut struct {
	User      *domain.User `json:"user"`
	ExpiresAt *time.Time   `json:"expiresAt,omitempty"`
}

func (h *Auth) MountAPI(pub, authed *gin.RouterGroup) {
	ezPub := ez.New(pub)
	ezAuth := ez.New(authed)

	ez.RegisterAction(ezPub, ez.Action[service.SignUpInput, tokenOut]{
		Method: http.MethodPost,
		Path:   "/auth/signup",
		Binder: ez.BindJSON,
		Handler: func(c *gin.Context, in *service.SignUpInput) (tokenOut, error) {
			u, sess, err := h.sessions.SignUp(c.Request.Context(), *in)
			if err != nil {
				return tokenOut{}, err
			}
			return tokenOut{Token: sess.Token, ExpiresAt: sess.ExpiresAt, User: u}, nil
		},
	})

	type signInIn struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	ez.RegisterAction(ezPub, ez.Action[signInIn, tokenOut]{
		Method: http.MethodPost,
		Path:   "/auth/signin",
		Binder: ez.BindJSON,
		Handler: func(c *gin.Context, in *signInIn) (tokenOut, error) {
			u, sess, err := h.sessions.SignIn(c.Request.Context(), in.Email, in.Password)
			if err != nil {
				return tokenOut{}, err
			}
			return tokenOut{Token: sess.Token, ExpiresAt: sess.ExpiresAt, User: u}, nil
		},
	})

	ez.RegisterAction(ezAuth, ez.Action[struct{}, sessionOut]{
		Method: http.MethodGet,
		Path:   "/auth/session",
		Binder: ez.BindNone,
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) (sessionOut, error) {
			u, sess, err := h.sessions.Inspect(c.Request.Context(), ez.Token(c))
			if err != nil {
				return sessionOut{}, err
			}
			return sessionOut{User: u, ExpiresAt: &sess.ExpiresAt}, nil
		},
	})

	// revokes the caller's token only
	ez.RegisterAction(ezAuth, ez.Action[struct{}, gin.H]{
		Method: http.MethodPost,
		Path:   "/auth/signout",
		Binder: ez.BindNone,
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) (gin.H, error) {
			if err := h.sessions.Revoke(c.Request.Context(), ez.Token(c)); err != nil {
				return nil, err
			}
			return gin.H{"signedOut": true}, nil
		},
	})

	ez.RegisterAction(ezAuth, ez.Action[struct{}, tokenOut]{
		Method: http.MethodPost,
		Path:   "/auth/refresh",
		Binder: ez.BindNone,
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) (tokenOut, error) {
			sess, err := h.sessions.Reissue(c.Request.Context(), ez.UserID(c))
			if err != nil {
				return tokenOut{}, err
			}
			return tokenOut{Token: sess.Token, ExpiresAt: sess.ExpiresAt}, nil
		},
	})

	ez.RegisterAction(ezAuth, ez.Action[struct{}, *domain.User]{
		Method: http.MethodGet,
		Path:   "/me",
		Binder: ez.BindNone,
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) (*domain.User, error) {
			return h.sessions.GetUser(c.Request.Context(), ez.UserID(c))
		},
	})

	ez.RegisterAction(ezAuth, ez.Action[service.ProfilePatch, *domain.User]{
		Method: http.MethodPatch,
		Path:   "/me",
		Binder: ez.BindJSON,
		Auth:   true,
		Handler: func(c *gin.Context, in *service.ProfilePatch) (*domain.User, error) {
			return h.sessions.UpdateUser(c.Request.Context(), ez.UserID(c), *in)
		},
	})
}
