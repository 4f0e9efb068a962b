package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "landregistry/pkg/domain"
	"landregistry/pkg/requestcontext"
)

type stubVerifier map[string]id.Address

func (s stubVerifier) Verify(token string) (id.Address, error) {
	if a, ok := s[token]; ok {
		return a, nil
	}
	return "", errors.New("bad token")
}

func newHandler(seen *id.Address) http.Handler {
	verifier := stubVerifier{"good": "0xseller"}
	return RequireCaller(verifier, slog.New(slog.DiscardHandler))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*seen = requestcontext.Caller(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
}

func TestRequireCaller(t *testing.T) {
	t.Run("valid bearer token", func(t *testing.T) {
		var seen id.Address
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer good")
		w := httptest.NewRecorder()

		newHandler(&seen).ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, id.Address("0xseller"), seen)
	})

	t.Run("missing header", func(t *testing.T) {
		var seen id.Address
		w := httptest.NewRecorder()
		newHandler(&seen).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		var body map[string]string
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, "unauthenticated", body["error"])
		assert.Empty(t, seen)
	})

	t.Run("invalid token", func(t *testing.T) {
		var seen id.Address
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer nope")
		w := httptest.NewRecorder()

		newHandler(&seen).ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("query token only for websocket upgrades", func(t *testing.T) {
		var seen id.Address
		w := httptest.NewRecorder()
		newHandler(&seen).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/?access_token=good", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		req := httptest.NewRequest(http.MethodGet, "/?access_token=good", nil)
		req.Header.Set("Upgrade", "websocket")
		w = httptest.NewRecorder()
		newHandler(&seen).ServeHTTP(w, req)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, id.Address("0xseller"), seen)
	})
}
