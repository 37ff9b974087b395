package router

import (
	"sort"

	"github.com/gin-gonic/gin"

	"animehub/internal/tab"
	"animehub/internal/transport/http/handler"
)

// APIModule mounts on /api/v1. pub needs no token; authed carries the
// caller's userId and role.
type APIModule interface {
	MountAPI(pub, authed *gin.RouterGroup)
}

// AdminModule mounts on /admin/v1, already restricted to admins.
type AdminModule interface{ MountAdmin(*gin.RouterGroup) }

// Lower mounts first; the default is 100.
type prioritizer interface{ Priority() int }

type Registry struct {
	apiMods   []APIModule
	adminMods []AdminModule
}

// Register sorts mod into the API and/or admin lists.
func (r *Registry) Register(mods ...any) {
	for _, mod := range mods {
		if m, ok := mod.(APIModule); ok {
			r.apiMods = append(r.apiMods, m)
		}
		if m, ok := mod.(AdminModule); ok {
			r.adminMods = append(r.adminMods, m)
		}
	}
}

func (r *Registry) MountAllAPI(pub, authed *gin.RouterGroup) {
	mods := append([]APIModule(nil), r.apiMods...)
	sort.SliceStable(mods, func(i, j int) bool {
		return priorityOf(mods[i]) < priorityOf(mods[j])
	})
	for _, m := range mods {
		m.MountAPI(pub, authed)
	}
}

func (r *Registry) MountAllAdmin(admin *gin.RouterGroup) {
	mods := append([]AdminModule(nil), r.adminMods...)
	sort.SliceStable(mods, func(i, j int) bool {
		return priorityOf(mods[i]) < priorityOf(mods[j])
	})
	for _, m := range mods {
		m.MountAdmin(admin)
	}
}

func priorityOf(v any) int {
	if p, ok := v.(prioritizer); ok {
		return p.Priority()
	}
	return 100
}

// Modules registers every handler over t's services.
func Modules(t *tab.Tab) *Registry {
	r := &Registry{}
	r.Register(
		handler.NewAuth(t.Sessions),
		handler.NewProgress(t.Progress),
		handler.NewNotifications(t.Notifications),
		handler.NewSubmissions(t.Moderation),
		handler.NewQuizzes(t.Quizzes),
		handler.NewUsers(t.Sessions, t.Moderation),
	)
	return r
}
