package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	r := mux.NewRouter()
	r.Use(RequestLogger(zap.New(core)))
	r.HandleFunc("/drills/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}).Methods("GET")

	before := testutil.ToFloat64(RequestCounter.WithLabelValues("GET", "/drills/{id}", "418"))

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest("GET", "/drills/wall-ball", nil))
	if rr.Code != http.StatusTeapot {
		t.Fatalf("status = %d, want 418", rr.Code)
	}

	after := testutil.ToFloat64(RequestCounter.WithLabelValues("GET", "/drills/{id}", "418"))
	if after-before != 1 {
		t.Errorf("request counter moved by %v, want 1", after-before)
	}

	entries := logs.FilterMessage("request").All()
	if len(entries) != 1 {
		t.Fatalf("logged %d request entries, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["status"] != int64(http.StatusTeapot) || fields["path"] != "/drills/wall-ball" {
		t.Errorf("log fields = %v", fields)
	}
}
