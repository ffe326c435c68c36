package scoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoreParsesVerdict(t *testing.T) {
	var gotAuth string
	var gotBody Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.Equal(t, "/v1/score", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(Result{Score: 4.5, Passed: true, Summary: "clean and complete"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret-key", 5*time.Second)
	res, err := c.Score(context.Background(), Request{
		Title: "Fix a bug", Comment: "patched and tested", TimeTakenMin: 42,
	})
	require.NoError(t, err)
	assert.Equal(t, 4.5, res.Score)
	assert.True(t, res.Passed)
	assert.Equal(t, "clean and complete", res.Summary)
	assert.Equal(t, "Bearer secret-key", gotAuth)
	assert.Equal(t, int64(42), gotBody.TimeTakenMin)
}

func TestScoreRejectsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 5*time.Second)
	_, err := c.Score(context.Background(), Request{Title: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestScoreRejectsMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"score": "very good"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 5*time.Second)
	_, err := c.Score(context.Background(), Request{Title: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed")
}

func TestScoreRejectsOutOfRangeScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Result{Score: 7.5, Passed: true})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 5*time.Second)
	_, err := c.Score(context.Background(), Request{Title: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside 0-5")
}

func TestScoreHonorsContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := NewClient(srv.URL, "", 5*time.Second)
	_, err := c.Score(ctx, Request{Title: "x"})
	assert.Error(t, err)
}
