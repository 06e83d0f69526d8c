package analysis

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPAnalyzer_Analyze(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "u1/abc-a.mp4", req.ObjectKey)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"score": 91, "transcript": "ok", "feedback": "fine"}`))
	}))
	defer srv.Close()

	a := NewHTTPAnalyzer(srv.URL, 5*time.Second, slog.Default())
	res, err := a.Analyze(context.Background(), Request{ObjectKey: "u1/abc-a.mp4", Name: "a.mp4"})

	require.NoError(t, err)
	assert.Equal(t, 91, res.Score)
	assert.Equal(t, ResultStatusCompleted, res.Status)
}

func TestHTTPAnalyzer_Analyze_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := NewHTTPAnalyzer(srv.URL, 5*time.Second, slog.Default())
	_, err := a.Analyze(context.Background(), Request{ObjectKey: "u1/abc-a.mp4"})

	assert.ErrorContains(t, err, "status 500")
}

func TestHTTPAnalyzer_Analyze_ContextDeadline(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	a := NewHTTPAnalyzer(srv.URL, time.Minute, slog.Default())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := a.Analyze(ctx, Request{ObjectKey: "u1/abc-a.mp4"})
	assert.Error(t, err, "a hung backend must surface as an error, not a stuck call")
}
