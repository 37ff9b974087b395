package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"animehub/internal/domain"
	"animehub/internal/service"
	"animehub/internal/transport/http/ez"
)

// Submissions serves critic content on the user API and the review queue
// on the admin API.
type Submissions struct{ mod *service.ModerationService }

func NewSubmissions(m *service.ModerationService) *Submissions { return &Submissions{mod: m} }

type decisionIn struct {
	Notes string `json:"notes"`
}

type engagementIn struct {
	Views    int `json:"views"`
	Likes    int `json:"likes"`
	Comments int `json:"comments"`
}

type submissionQuery struct {
	Status   string `form:"status"`
	CriticID string `form:"criticId"`
	Type     string `form:"type"`
}

func nonNil(s []domain.Submission) []domain.Submission {
	if s == nil {
		return []domain.Submission{}
	}
	return s
}

func (h *Submissions) MountAPI(pub, authed *gin.RouterGroup) {
	ezPub := ez.New(pub)
	ezAuth := ez.New(authed)

	ez.RegisterAction(ezPub, ez.Action[struct{}, []domain.Submission]{
		Method: http.MethodGet,
		Path:   "/submissions/published",
		Binder: ez.BindNone,
		Handler: func(c *gin.Context, _ *struct{}) ([]domain.Submission, error) {
			subs, err := h.mod.PublishedSubmissions(c.Request.Context())
			return nonNil(subs), err
		},
	})

	ez.RegisterAction(ezPub, ez.Action[struct{}, *domain.Submission]{
		Method: http.MethodGet,
		Path:   "/submissions/:id",
		Binder: ez.BindNone,
		Handler: func(c *gin.Context, _ *struct{}) (*domain.Submission, error) {
			sub, err := h.mod.GetSubmission(c.Request.Context(), c.Param("id"))
			if err != nil {
				return nil, err
			}
			if !sub.Published {
				return nil, domain.ErrNotFound
			}
			return sub, nil
		},
	})

	ez.RegisterAction(ezPub, ez.Action[engagementIn, *domain.Submission]{
		Method: http.MethodPost,
		Path:   "/submissions/:id/engagement",
		Binder: ez.BindJSON,
		Handler: func(c *gin.Context, in *engagementIn) (*domain.Submission, error) {
			return h.mod.RecordEngagement(c.Request.Context(), c.Param("id"), in.Views, in.Likes, in.Comments)
		},
	})

	ez.RegisterAction(ezAuth, ez.Action[domain.SubmissionInput, *domain.Submission]{
		Method: http.MethodPost,
		Path:   "/submissions",
		Binder: ez.BindJSON,
		Auth:   true,
		Roles:  []string{string(domain.RoleCritique)},
		Handler: func(c *gin.Context, in *domain.SubmissionInput) (*domain.Submission, error) {
			return h.mod.CreateSubmission(c.Request.Context(), ez.UserID(c), *in)
		},
	})

	ez.RegisterAction(ezAuth, ez.Action[struct{}, []domain.Submission]{
		Method: http.MethodGet,
		Path:   "/submissions/mine",
		Binder: ez.BindNone,
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) ([]domain.Submission, error) {
			subs, err := h.mod.ListSubmissions(c.Request.Context(), domain.SubmissionFilter{CriticID: ez.UserID(c)})
			return nonNil(subs), err
		},
	})
}

func (h *Submissions) MountAdmin(admin *gin.RouterGroup) {
	e := ez.New(admin)

	ez.RegisterAction(e, ez.Action[submissionQuery, []domain.Submission]{
		Method: http.MethodGet,
		Path:   "/submissions",
		Binder: ez.BindQuery,
		Auth:   true,
		Handler: func(c *gin.Context, in *submissionQuery) ([]domain.Submission, error) {
			subs, err := h.mod.ListSubmissions(c.Request.Context(), domain.SubmissionFilter{
				Status:   domain.SubmissionStatus(in.Status),
				CriticID: in.CriticID,
				Type:     domain.SubmissionType(in.Type),
			})
			return nonNil(subs), err
		},
	})

	decisions := map[string]func(c *gin.Context, id, notes string) (*domain.Submission, error){
		"/submissions/:id/approve": func(c *gin.Context, id, notes string) (*domain.Submission, error) {
			return h.mod.ApproveSubmission(c.Request.Context(), ez.UserID(c), id, notes)
		},
		"/submissions/:id/reject": func(c *gin.Context, id, notes string) (*domain.Submission, error) {
			return h.mod.RejectSubmission(c.Request.Context(), ez.UserID(c), id, notes)
		},
		"/submissions/:id/request-edit": func(c *gin.Context, id, notes string) (*domain.Submission, error) {
			return h.mod.RequestEdit(c.Request.Context(), ez.UserID(c), id, notes)
		},
	}
	for path, decide := range decisions {
		ez.RegisterAction(e, ez.Action[decisionIn, *domain.Submission]{
			Method: http.MethodPost,
			Path:   path,
			Binder: ez.BindJSON,
			Auth:   true,
			Handler: func(c *gin.Context, in *decisionIn) (*domain.Submission, error) {
				return decide(c, c.Param("id"), in.Notes)
			},
		})
	}
}
