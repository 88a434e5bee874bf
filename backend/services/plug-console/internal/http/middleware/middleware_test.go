package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type stubTokens map[string]int64

func (s stubTokens) ValidateToken(token string) (int64, error) {
	id, ok := s[token]
	if !ok {
		return 0, errors.New("bad token")
	}
	return id, nil
}

func echoUser(w http.ResponseWriter, r *http.Request) {
	id, ok := UserIDFromContext(r.Context())
	if !ok {
		w.WriteHeader(http.StatusTeapot)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte{byte('0' + id)})
}

func TestAuthMiddleware(t *testing.T) {
	handler := AuthMiddleware(stubTokens{"good": 7})(http.HandlerFunc(echoUser))

	cases := []struct {
		name   string
		header string
		query  string
		status int
		body   string
	}{
		{name: "missing", status: http.StatusUnauthorized},
		{name: "bearer", header: "Bearer good", status: http.StatusOK, body: "7"},
		{name: "lowercase scheme", header: "bearer good", status: http.StatusOK, body: "7"},
		{name: "wrong scheme", header: "Basic good", status: http.StatusUnauthorized},
		{name: "bad token", header: "Bearer nope", status: http.StatusUnauthorized},
		{name: "query fallback", query: "?token=good", status: http.StatusOK, body: "7"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/console"+tc.query, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
			if tc.body != "" {
				assert.Equal(t, tc.body, rec.Body.String())
			}
		})
	}
}

func TestRecoveryAndLogging(t *testing.T) {
	logger := zap.NewNop()
	panicking := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })
	handler := Chain(panicking, RecoveryMiddleware(logger), LoggingMiddleware(logger))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { order = append(order, "handler") }), mark("a"), mark("b"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"a", "b", "handler"}, order)
}
