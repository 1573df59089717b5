// Package handlers exposes the HTTP surface of the session service.
package handlers

import "net/http"

// Dependencies carries everything the HTTP layer needs. Fields are
// interfaces so tests can swap in fakes.
type Dependencies struct {
	Coordinator SessionCoordinator
	Stream      EventStream
	Admin       AdminService
	Limiter     RateLimiter
}

// RegisterRoutes attaches every endpoint to the mux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	sessions := SessionHandler{Coordinator: deps.Coordinator, Limiter: deps.Limiter}
	participants := ParticipantHandler{Coordinator: deps.Coordinator}
	votes := VoteHandler{Coordinator: deps.Coordinator}
	events := EventHandler{Coordinator: deps.Coordinator, Stream: deps.Stream}

	mux.HandleFunc("GET /healthz", HealthCheck)

	mux.HandleFunc("POST /api/v1/sessions", sessions.Create)
	mux.HandleFunc("GET /api/v1/sessions/{id}", sessions.Get)
	mux.HandleFunc("PATCH /api/v1/sessions/{id}", sessions.Update)
	mux.HandleFunc("POST /api/v1/sessions/{id}/join", sessions.Join)
	mux.HandleFunc("POST /api/v1/sessions/{id}/restart", sessions.Restart)
	mux.HandleFunc("GET /api/v1/sessions/{id}/participants", sessions.Participants)
	mux.HandleFunc("PATCH /api/v1/participants/{id}", participants.Update)

	mux.HandleFunc("GET /api/v1/sessions/{id}/deck", votes.Deck)
	mux.HandleFunc("POST /api/v1/sessions/{id}/votes", votes.Cast)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}/votes/{itemKey}", votes.Undo)
	mux.HandleFunc("POST /api/v1/sessions/{id}/resolve", votes.Resolve)
	mux.HandleFunc("POST /api/v1/sessions/{id}/final-votes", votes.CastFinal)
	mux.HandleFunc("GET /api/v1/sessions/{id}/results", votes.Results)

	mux.HandleFunc("GET /api/v1/sessions/{id}/events", events.Serve)

	if deps.Admin != nil {
		admin := AdminHandler{Service: deps.Admin, Limiter: deps.Limiter}
		mux.HandleFunc("POST /api/v1/admin/login", admin.Login)
		mux.HandleFunc("PUT /api/v1/admin/password", admin.SetPassword)
		mux.HandleFunc("POST /api/v1/admin/logo", admin.UploadLogo)
		mux.HandleFunc("GET /api/v1/admin/settings/{key}", admin.GetSetting)
		mux.HandleFunc("PUT /api/v1/admin/settings/{key}", admin.PutSetting)
		mux.HandleFunc("GET /api/v1/branding", admin.Branding)
	}
}
