package testutil

import (
	"net/http"
	"time"

	id "proctrack/pkg/domain"
	"proctrack/pkg/requestcontext"
)

// WithActor adds an authenticated actor to the request context, as the auth
// middleware would.
func WithActor(req *http.Request, actor id.Actor) *http.Request {
	return req.WithContext(requestcontext.WithActor(req.Context(), actor))
}

// WithTime pins the request time.
func WithTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}
