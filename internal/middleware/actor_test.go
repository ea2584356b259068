package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestActorLiftsHeaderIntoContext(t *testing.T) {
	var got string
	h := Actor(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ActorID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(ActorHeader, "user-1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if got != "user-1" {
		t.Errorf("ActorID = %q, want user-1", got)
	}
}

func TestActorIDEmptyWithoutHeader(t *testing.T) {
	var got string
	h := Actor(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ActorID(r.Context())
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if got != "" {
		t.Errorf("ActorID = %q, want empty", got)
	}
}
