// Package v1 implements the tutoring REST API.
package v1

import (
	"github.com/labstack/echo/v4"

	"github.com/hrygo/tutorsense/ai/batch"
	"github.com/hrygo/tutorsense/ai/session"
	"github.com/hrygo/tutorsense/internal/profile"
	"github.com/hrygo/tutorsense/store"
)

type APIV1Service struct {
	Profile  *profile.Profile
	Store    *store.Store
	Sessions *session.Orchestrator
	Batcher  *batch.Scheduler
}

func NewAPIV1Service(profile *profile.Profile, store *store.Store, sessions *session.Orchestrator, batcher *batch.Scheduler) *APIV1Service {
	return &APIV1Service{
		Profile:  profile,
		Store:    store,
		Sessions: sessions,
		Batcher:  batcher,
	}
}

// RegisterRoutes mounts the v1 API on the echo instance.
func (s *APIV1Service) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")

	g.POST("/session", s.CreateSession)
	g.POST("/session/:id/message", s.SendMessage)
	g.POST("/session/:id/end", s.EndSession)

	g.GET("/users/:uid/sessions", s.ListUserSessions)
	g.GET("/usage", s.GetUsage)

	g.POST("/batch", s.EnqueueBatch)
}
