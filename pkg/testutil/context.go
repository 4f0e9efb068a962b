package testutil

import (
	"net/http"

	id "landregistry/pkg/domain"
	"landregistry/pkg/requestcontext"
)

// WithCaller adds an authenticated caller to the request context, as the
// bearer token middleware would. Invalid addresses are not added.
func WithCaller(req *http.Request, caller string) *http.Request {
	if addr, err := id.ParseAddress(caller); err == nil {
		return req.WithContext(requestcontext.WithCaller(req.Context(), addr))
	}
	return req
}
