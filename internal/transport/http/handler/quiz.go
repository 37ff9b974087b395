package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"animehub/internal/quiz"
	"animehub/internal/transport/http/ez"
)

type Quizzes struct{ mgr *quiz.Manager }

func NewQuizzes(m *quiz.Manager) *Quizzes { return &Quizzes{mgr: m} }

type quizSummary struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Questions    int    `json:"questions"`
	TimeLimitSec int    `json:"timeLimitSec,omitempty"`
}

type limitIn struct {
	Seconds int `json:"seconds" binding:"required"`
}

type beginIn struct {
	TimeLimitSec int `json:"timeLimitSec"`
}

type answerIn struct {
	Index int    `json:"index"`
	Value string `json:"value" binding:"required"`
}

func (h *Quizzes) MountAPI(pub, authed *gin.RouterGroup) {
	ezPub := ez.New(pub)
	e := ez.New(authed)

	ez.RegisterAction(ezPub, ez.Action[struct{}, []quizSummary]{
		Method: http.MethodGet,
		Path:   "/quizzes",
		Binder: ez.BindNone,
		Handler: func(_ *gin.Context, _ *struct{}) ([]quizSummary, error) {
			all := h.mgr.Quizzes()
			out := make([]quizSummary, 0, len(all))
			for _, q := range all {
				out = append(out, quizSummary{ID: q.ID, Title: q.Title, Questions: len(q.Questions), TimeLimitSec: q.TimeLimitSec})
			}
			return out, nil
		},
	})

	// answers are never serialized
	ez.RegisterAction(ezPub, ez.Action[struct{}, *quiz.Quiz]{
		Method: http.MethodGet,
		Path:   "/quizzes/:id",
		Binder: ez.BindNone,
		Handler: func(c *gin.Context, _ *struct{}) (*quiz.Quiz, error) {
			return h.mgr.Quiz(c.Param("id"))
		},
	})

	ez.RegisterAction(e, ez.Action[struct{}, gin.H]{
		Method: http.MethodGet,
		Path:   "/quiz/time-limit",
		Binder: ez.BindNone,
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) (gin.H, error) {
			d, err := h.mgr.TimeLimit(c.Request.Context(), ez.UserID(c))
			if err != nil {
				return nil, err
			}
			return gin.H{"seconds": int(d / time.Second)}, nil
		},
	})

	ez.RegisterAction(e, ez.Action[limitIn, gin.H]{
		Method: http.MethodPut,
		Path:   "/quiz/time-limit",
		Binder: ez.BindJSON,
		Auth:   true,
		Handler: func(c *gin.Context, in *limitIn) (gin.H, error) {
			if err := h.mgr.SetTimeLimit(c.Request.Context(), ez.UserID(c), time.Duration(in.Seconds)*time.Second); err != nil {
				return nil, err
			}
			return gin.H{"seconds": in.Seconds}, nil
		},
	})

	ez.RegisterAction(e, ez.Action[beginIn, quiz.View]{
		Method: http.MethodPost,
		Path:   "/quizzes/:id/session",
		Binder: ez.BindOptionalJSON,
		Auth:   true,
		Handler: func(c *gin.Context, in *beginIn) (quiz.View, error) {
			limit := time.Duration(in.TimeLimitSec) * time.Second
			s, err := h.mgr.Begin(c.Request.Context(), ez.UserID(c), c.Param("id"), limit)
			if err != nil {
				return quiz.View{}, err
			}
			return s.View(), nil
		},
	})

	ez.RegisterAction(e, ez.Action[struct{}, quiz.View]{
		Method: http.MethodGet,
		Path:   "/quizzes/:id/session",
		Binder: ez.BindNone,
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) (quiz.View, error) {
			s, err := h.mgr.Session(ez.UserID(c), c.Param("id"))
			if err != nil {
				return quiz.View{}, err
			}
			return s.View(), nil
		},
	})

	ez.RegisterAction(e, ez.Action[answerIn, quiz.View]{
		Method: http.MethodPost,
		Path:   "/quizzes/:id/session/answers",
		Binder: ez.BindJSON,
		Auth:   true,
		Handler: func(c *gin.Context, in *answerIn) (quiz.View, error) {
			s, err := h.mgr.Session(ez.UserID(c), c.Param("id"))
			if err != nil {
				return quiz.View{}, err
			}
			if err := s.Answer(in.Index, in.Value); err != nil {
				return quiz.View{}, err
			}
			return s.View(), nil
		},
	})

	for path, step := range map[string]func(*quiz.Session) (int, error){
		"/quizzes/:id/session/next": (*quiz.Session).Next,
		"/quizzes/:id/session/prev": (*quiz.Session).Prev,
	} {
		ez.RegisterAction(e, ez.Action[struct{}, quiz.View]{
			Method: http.MethodPost,
			Path:   path,
			Binder: ez.BindNone,
			Auth:   true,
			Handler: func(c *gin.Context, _ *struct{}) (quiz.View, error) {
				s, err := h.mgr.Session(ez.UserID(c), c.Param("id"))
				if err != nil {
					return quiz.View{}, err
				}
				if _, err := step(s); err != nil {
					return quiz.View{}, err
				}
				return s.View(), nil
			},
		})
	}

	ez.RegisterAction(e, ez.Action[struct{}, quiz.Result]{
		Method: http.MethodPost,
		Path:   "/quizzes/:id/session/submit",
		Binder: ez.BindNone,
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) (quiz.Result, error) {
			s, err := h.mgr.Session(ez.UserID(c), c.Param("id"))
			if err != nil {
				return quiz.Result{}, err
			}
			return s.Submit()
		},
	})

	ez.RegisterAction(e, ez.Action[struct{}, gin.H]{
		Method: http.MethodDelete,
		Path:   "/quizzes/:id/session",
		Binder: ez.BindNone,
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) (gin.H, error) {
			if err := h.mgr.Abandon(ez.UserID(c), c.Param("id")); err != nil {
				return nil, err
			}
			return gin.H{"abandoned": c.Param("id")}, nil
		},
	})
}
