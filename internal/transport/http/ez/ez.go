// Package ez registers typed actions on a gin group: bind, authorize, run,
// then answer with the response envelope.
package ez

import (
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"animehub/internal/domain"
	resp "animehub/internal/transport/http/response"
)

// Context keys set by the auth middleware.
const (
	KeyUserID = "userId"
	KeyRole   = "role"
	KeyUser   = "user"
	KeyToken  = "token"
)

type EZ struct{ g *gin.RouterGroup }

func New(g *gin.RouterGroup) EZ { return EZ{g: g} }

type Binder string

const (
	BindJSON  Binder = "json"
	BindQuery Binder = "query"
	BindURI   Binder = "uri"
	BindNone  Binder = "none"
	// BindOptionalJSON accepts an empty body and leaves the input zero.
	BindOptionalJSON Binder = "json?"
)

// AErr carries an explicit response code.
type AErr struct {
	Code int
	Msg  string
	Err  error
}

func (e *AErr) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "action error"
}

func (e *AErr) Unwrap() error { return e.Err }

func BadRequest(msg string) error   { return &AErr{Code: resp.CodeBadRequest, Msg: msg} }
func Unauthorized(msg string) error { return &AErr{Code: resp.CodeUnauthorized, Msg: msg} }
func Forbidden(msg string) error    { return &AErr{Code: resp.CodeForbidden, Msg: msg} }
func NotFound(msg string) error     { return &AErr{Code: resp.CodeNotFound, Msg: msg} }
func Internal(msg string, err error) error {
	return &AErr{Code: resp.CodeServerError, Msg: msg, Err: err}
}

type Action[I any, O any] struct {
	Method  string
	Path    string // e.g. "/progress/anime/:id"
	Binder  Binder
	Auth    bool     // requires userId in context
	Roles   []string // optional role allow-list
	Handler func(c *gin.Context, in *I) (O, error)
}

func RegisterAction[I any, O any](e EZ, a Action[I, O]) {
	h := func(c *gin.Context) {
		if a.Auth {
			if c.GetString(KeyUserID) == "" {
				c.JSON(http.StatusOK, resp.Error(resp.CodeUnauthorized, "unauthorized"))
				return
			}
			if len(a.Roles) > 0 && !slices.Contains(a.Roles, c.GetString(KeyRole)) {
				c.JSON(http.StatusOK, resp.Error(resp.CodeForbidden, "forbidden"))
				return
			}
		}

		var in I
		var bindErr error
		switch a.Binder {
		case BindJSON:
			bindErr = c.ShouldBindJSON(&in)
		case BindQuery:
			bindErr = c.ShouldBindQuery(&in)
		case BindURI:
			bindErr = c.ShouldBindUri(&in)
		case BindOptionalJSON:
			if c.Request.ContentLength != 0 {
				bindErr = c.ShouldBindJSON(&in)
			}
		}
		if bindErr != nil {
			c.JSON(http.StatusOK, resp.Error(resp.CodeBadRequest, bindErr.Error()))
			return
		}

		out, err := a.Handler(c, &in)
		if err != nil {
			Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, resp.OK(out))
	}

	switch strings.ToUpper(a.Method) {
	case http.MethodGet:
		e.g.GET(a.Path, h)
	case http.MethodPut:
		e.g.PUT(a.Path, h)
	case http.MethodPatch:
		e.g.PATCH(a.Path, h)
	case http.MethodDelete:
		e.g.DELETE(a.Path, h)
	default:
		e.g.POST(a.Path, h)
	}
}

// Fail answers with the envelope matching err. Unmapped errors are attached
// to the context so the access log records them.
func Fail(c *gin.Context, err error) {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		c.JSON(http.StatusOK, resp.Field(resp.CodeBadRequest, ve.Error(), ve.Field))
		return
	}
	code := Code(err)
	if code == resp.CodeServerError {
		_ = c.Error(err)
		c.JSON(http.StatusOK, resp.Error(code, ""))
		return
	}
	c.JSON(http.StatusOK, resp.Error(code, err.Error()))
}

// Code maps a service error to a response code.
func Code(err error) int {
	var ae *AErr
	if errors.As(err, &ae) {
		return ae.Code
	}
	switch {
	case errors.Is(err, domain.ErrValidation):
		return resp.CodeBadRequest
	case errors.Is(err, domain.ErrNotAuthenticated), errors.Is(err, domain.ErrInvalidCredentials):
		return resp.CodeUnauthorized
	case errors.Is(err, domain.ErrForbidden), errors.Is(err, domain.ErrAccountBanned),
		errors.Is(err, domain.ErrAccountSuspended):
		return resp.CodeForbidden
	case errors.Is(err, domain.ErrNotFound):
		return resp.CodeNotFound
	case errors.Is(err, domain.ErrAlreadyDecided), errors.Is(err, domain.ErrEmailTaken),
		errors.Is(err, domain.ErrAccountAlreadyBanned), errors.Is(err, domain.ErrQuizState):
		return resp.CodeConflict
	}
	return resp.CodeServerError
}

// UserID is the authenticated caller set by the auth middleware.
func UserID(c *gin.Context) string { return c.GetString(KeyUserID) }

// Token is the caller's bearer token.
func Token(c *gin.Context) string { return c.GetString(KeyToken) }
