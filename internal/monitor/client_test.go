package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/filingqa/internal/qa"
)

func TestStatsClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/stats", r.URL.Path)
		_ = json.NewEncoder(w).Encode(qa.StatsSnapshot{
			Queries:     map[qa.Status]int64{qa.StatusAnswered: 3},
			Total:       3,
			IndexBuilt:  true,
			IndexChunks: 42,
		})
	}))
	defer srv.Close()

	snap, err := NewStatsClient(srv.URL + "/").Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), snap.Total)
	assert.Equal(t, int64(3), snap.Queries[qa.StatusAnswered])
	assert.Equal(t, 42, snap.IndexChunks)
}

func TestStatsClient_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewStatsClient(srv.URL).Stats(context.Background())
	assert.ErrorContains(t, err, "unexpected status code 500")

	_, err = NewStatsClient("http://127.0.0.1:1").Stats(context.Background())
	assert.Error(t, err)
}
