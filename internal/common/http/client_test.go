package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echo struct {
	Value int `json:"value"`
}

func TestPostJSON_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var in echo
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		_ = json.NewEncoder(w).Encode(echo{Value: in.Value * 2})
	}))
	defer srv.Close()

	c := NewClient(time.Second, WithBaseDelay(time.Millisecond))
	var out echo
	require.NoError(t, c.PostJSON(context.Background(), srv.URL, echo{Value: 21}, &out))
	assert.Equal(t, 42, out.Value)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestPostJSON_ClientErrorNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad features", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(time.Second, WithBaseDelay(time.Millisecond))
	err := c.PostJSON(context.Background(), srv.URL, echo{}, &echo{})

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.Contains(t, se.Body, "bad features")
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestPostJSON_GivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(time.Second, WithRetries(2), WithBaseDelay(time.Millisecond))
	err := c.PostJSON(context.Background(), srv.URL, echo{}, &echo{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 retries")
}

func TestPostJSON_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient(time.Second, WithBaseDelay(time.Millisecond))
	err := c.PostJSON(ctx, srv.URL, echo{}, &echo{})
	assert.ErrorIs(t, err, context.Canceled)
}
