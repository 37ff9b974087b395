package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"animehub/internal/domain"
	"animehub/internal/service"
	"animehub/internal/transport/http/ez"
)

type Progress struct{ progress *service.ProgressService }

func NewProgress(p *service.ProgressService) *Progress { return &Progress{progress: p} }

type contentURI struct {
	Kind string `uri:"kind"`
	ID   string `uri:"id" binding:"required"`
}

type listOut struct {
	Items []string `json:"items"`
}

func (h *Progress) MountAPI(_, authed *gin.RouterGroup) {
	e := ez.New(authed)

	ez.RegisterAction(e, ez.Action[struct{}, *domain.UserProgress]{
		Method: http.MethodGet,
		Path:   "/progress",
		Binder: ez.BindNone,
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) (*domain.UserProgress, error) {
			return h.progress.GetUserProgress(c.Request.Context(), ez.UserID(c))
		},
	})

	ez.RegisterAction(e, ez.Action[domain.AnimePatch, *domain.AnimeProgress]{
		Method: http.MethodPut,
		Path:   "/progress/anime/:id",
		Binder: ez.BindJSON,
		Auth:   true,
		Handler: func(c *gin.Context, in *domain.AnimePatch) (*domain.AnimeProgress, error) {
			return h.progress.UpdateAnimeProgress(c.Request.Context(), ez.UserID(c), c.Param("id"), *in)
		},
	})

	ez.RegisterAction(e, ez.Action[domain.MangaPatch, *domain.MangaProgress]{
		Method: http.MethodPut,
		Path:   "/progress/manga/:id",
		Binder: ez.BindJSON,
		Auth:   true,
		Handler: func(c *gin.Context, in *domain.MangaPatch) (*domain.MangaProgress, error) {
			return h.progress.UpdateMangaProgress(c.Request.Context(), ez.UserID(c), c.Param("id"), *in)
		},
	})

	ez.RegisterAction(e, ez.Action[contentURI, gin.H]{
		Method: http.MethodDelete,
		Path:   "/progress/:kind/:id",
		Binder: ez.BindURI,
		Auth:   true,
		Handler: func(c *gin.Context, in *contentURI) (gin.H, error) {
			err := h.progress.RemoveProgress(c.Request.Context(), ez.UserID(c), domain.ContentKind(in.Kind), in.ID)
			if err != nil {
				return nil, err
			}
			return gin.H{"removed": in.ID}, nil
		},
	})

	membership := []struct {
		path   string
		method string
		fn     func(c *gin.Context, id string) ([]string, error)
	}{
		{"/watchlist/:id", http.MethodPost, func(c *gin.Context, id string) ([]string, error) {
			return h.progress.AddToWatchlist(c.Request.Context(), ez.UserID(c), id)
		}},
		{"/watchlist/:id", http.MethodDelete, func(c *gin.Context, id string) ([]string, error) {
			return h.progress.RemoveFromWatchlist(c.Request.Context(), ez.UserID(c), id)
		}},
		{"/bookmarks/:id", http.MethodPost, func(c *gin.Context, id string) ([]string, error) {
			return h.progress.AddToBookmarks(c.Request.Context(), ez.UserID(c), id)
		}},
		{"/bookmarks/:id", http.MethodDelete, func(c *gin.Context, id string) ([]string, error) {
			return h.progress.RemoveFromBookmarks(c.Request.Context(), ez.UserID(c), id)
		}},
	}
	for _, m := range membership {
		fn := m.fn
		ez.RegisterAction(e, ez.Action[contentURI, listOut]{
			Method: m.method,
			Path:   m.path,
			Binder: ez.BindURI,
			Auth:   true,
			Handler: func(c *gin.Context, in *contentURI) (listOut, error) {
				items, err := fn(c, in.ID)
				if err != nil {
					return listOut{}, err
				}
				if items == nil {
					items = []string{}
				}
				return listOut{Items: items}, nil
			},
		})
	}

	// null until the first computation
	ez.RegisterAction(e, ez.Action[struct{}, *domain.UserStats]{
		Method: http.MethodGet,
		Path:   "/stats",
		Binder: ez.BindNone,
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) (*domain.UserStats, error) {
			return h.progress.GetUserStats(c.Request.Context(), ez.UserID(c))
		},
	})

	ez.RegisterAction(e, ez.Action[struct{}, *domain.UserStats]{
		Method: http.MethodPost,
		Path:   "/stats/refresh",
		Binder: ez.BindNone,
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) (*domain.UserStats, error) {
			return h.progress.UpdateUserStats(c.Request.Context(), ez.UserID(c))
		},
	})
}
