package server

import (
	"github.com/go-chi/chi/v5"
)

// setupRoutes builds the chi route tree of spec §6.
func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		r.Route("/agents", func(r chi.Router) {
			r.Get("/", s.handleListAgents)
			r.Post("/", s.handleCreateAgent)
			r.Delete("/{id}", s.handleDeleteAgent)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.handleListSessions)
			r.Post("/", s.handleCreateSession)
			r.Put("/{id}", s.handleUpdateSession)
			r.Delete("/{id}", s.handleDeleteSession)
			r.Post("/{id}/archive", s.handleArchiveSession)
			r.Post("/{id}/restore", s.handleRestoreSession)
			r.Get("/{id}/messages", s.handleSessionMessages)
			r.Get("/{id}/history", s.handleSessionMessages)
			r.Post("/{id}/generate-title", s.handleGenerateTitle)
			r.Post("/{id}/compress", s.handleCompressSession)
		})

		r.With(rateLimit(s.chatLimiter)).Post("/chat", s.handleChat)

		r.Route("/files", func(r chi.Router) {
			r.Use(rateLimit(s.filesLimiter))
			r.Get("/", s.handleGetFile)
			r.Post("/", s.handlePutFile)
			r.Get("/index", s.handleFilesIndex)
		})
		r.With(rateLimit(s.filesLimiter)).Get("/skills", s.handleListSkills)

		r.Route("/config", func(r chi.Router) {
			r.Get("/rag-mode", s.handleGetConfig(configFieldRagMode))
			r.Put("/rag-mode", s.handlePutConfig(configFieldRagMode))
			r.Get("/runtime", s.handleGetConfig(configFieldRuntime))
			r.Put("/runtime", s.handlePutConfig(configFieldRuntime))
			r.Get("/tracing", s.handleGetConfig(configFieldTracing))
			r.Put("/tracing", s.handlePutConfig(configFieldTracing))
		})

		r.Route("/scheduler", func(r chi.Router) {
			r.Use(s.schedulerAPIGuard)

			r.Route("/cron/jobs", func(r chi.Router) {
				r.Get("/", s.handleListCronJobs)
				r.Post("/", s.handleCreateCronJob)
				r.Put("/{id}", s.handleUpdateCronJob)
				r.Delete("/{id}", s.handleDeleteCronJob)
				r.Post("/{id}/run", s.handleRunCronJobNow)
				r.Get("/{id}/runs", s.handleCronJobRuns)
				r.Get("/{id}/failures", s.handleCronFailures)
			})

			r.Get("/heartbeat", s.handleGetHeartbeatConfig)
			r.Put("/heartbeat", s.handlePutHeartbeatConfig)
			r.Get("/heartbeat/runs", s.handleHeartbeatRuns)
		})
	})
}
