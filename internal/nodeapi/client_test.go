package nodeapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDashboardParsesCapacity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/sno/", r.URL.Path)
		w.Write([]byte(`{"nodeID":"abc","diskSpace":{"used":100,"available":900,"trash":5}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	d, err := c.GetDashboard(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", d.NodeID)
	assert.Equal(t, int64(100), d.DiskSpace.Used)
	assert.Equal(t, int64(900), d.DiskSpace.Available)
}

func TestGetSatellitesParsesReputation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/sno/satellites", r.URL.Path)
		w.Write([]byte(`{"satellites":[{"id":"sat1","auditScore":0.98,"suspensionScore":1.0,"onlineScore":0.95}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	sats, err := c.GetSatellites(context.Background())
	require.NoError(t, err)
	require.Len(t, sats, 1)
	assert.Equal(t, "sat1", sats[0].ID)
	assert.InDelta(t, 0.98, sats[0].AuditScore, 1e-9)
}

func TestClientWithoutAPIBaseErrors(t *testing.T) {
	c := NewClient("")
	_, err := c.GetDashboard(context.Background())
	assert.Error(t, err)
}

func TestNonOKStatusReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.GetDashboard(context.Background())
	assert.Error(t, err)
}
