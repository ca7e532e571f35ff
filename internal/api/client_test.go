package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridesync-data/ridesync/internal/httputil"
	"github.com/ridesync-data/ridesync/internal/testutil"
)

func TestClientUploadAndIngest(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.mux)
	defer srv.Close()

	client := NewClient(srv.URL, "rider-1")

	csv := testutil.IMUCSV(300, 1_000_000, 10)
	view, err := client.UploadSensorLog("ride.csv", strings.NewReader(csv), 300)
	require.NoError(t, err)
	assert.Equal(t, "uploaded", view.Status)
	assert.Equal(t, int64(300), view.DeclaredCount)

	require.NoError(t, client.StartIngest(view.ID))

	require.Eventually(t, func() bool {
		got, err := client.GetSensorLog(view.ID)
		return err == nil && got.Status == "ready"
	}, 10*time.Second, 20*time.Millisecond)

	got, err := client.GetSensorLog(view.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(300), got.ProcessedCount)
}

func TestClientErrorSurfacesServerMessage(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.mux)
	defer srv.Close()

	client := NewClient(srv.URL, "rider-1")
	_, err := client.GetSensorLog("missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestClientAssociateUsesMock(t *testing.T) {
	mock := &httputil.MockHTTPClient{
		Responses: []*httputil.MockResponse{
			{StatusCode: http.StatusOK, Body: `{"matched":true,"committed":true,"match":{"activity_log_id":"act-1","confidence":0.93,"band":"excellent","drift_ms":1200,"overlap_start_ms":0,"overlap_end_ms":60000,"overlap_duration_s":60,"sensor_coverage":1,"activity_coverage":1,"accepted":true}}`},
		},
	}
	client := NewClient("http://ridesync.test", "rider-1")
	client.HTTP = mock

	resp, err := client.Associate("log-1", "automatic")
	require.NoError(t, err)
	assert.True(t, resp.Committed)
	require.NotNil(t, resp.Match)
	assert.Equal(t, "act-1", resp.Match.ActivityLogID)

	reqs := mock.RecordedRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "rider-1", reqs[0].Header.Get("X-Owner-ID"))
	assert.Equal(t, "/api/associate", reqs[0].URL.Path)
}
