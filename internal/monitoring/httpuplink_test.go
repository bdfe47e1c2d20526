package monitoring

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestHTTPUplinkPublishPostsEnvelope(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	u := NewHTTPUplink(srv.URL)
	if err := u.Publish(t.Context(), uuid.New(), TopicHeartbeat, []byte(`{"worker":"binance"}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(gotBody) == 0 {
		t.Fatal("expected request body")
	}
}

func TestHTTPUplinkPublishErrorsOnNonOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	u := NewHTTPUplink(srv.URL)
	if err := u.Publish(t.Context(), uuid.New(), TopicHeartbeat, []byte(`{}`)); err == nil {
		t.Fatal("expected error")
	}
}
