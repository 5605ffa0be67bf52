package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/video-system/go-camera-pp/internal/diag"
	"github.com/video-system/go-camera-pp/pkg/pipeline"
	"github.com/video-system/go-camera-pp/pkg/sfl"
)

type fakePipes struct{}

func (fakePipes) ListPipes() []string { return []string{"preview"} }

func (fakePipes) Statuses() map[string]pipeline.PipeStatus {
	return map[string]pipeline.PipeStatus{"preview": {ID: "preview", Running: true, Processed: 3}}
}

func nopMerge([]sfl.Buffer, sfl.Buffer, any) error { return nil }

func newServer(t *testing.T) (*httptest.Server, *sfl.Manager, *diag.Context) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	d := diag.New(3, logger)

	ctor := func(typ sfl.Type) sfl.Constructor {
		return func(_ int, log *logrus.Entry) sfl.Library {
			return sfl.NewEngine(sfl.EngineConfig{Name: typ.String(), Type: typ, Merge: nopMerge}, log)
		}
	}
	m := sfl.NewManager("SFL_MGR", 3, map[sfl.Type]sfl.Constructor{
		sfl.HDR:   ctor(sfl.HDR),
		sfl.Night: ctor(sfl.Night),
	}, d)
	t.Cleanup(func() { _ = m.Close() })

	s := NewServer(ServerConfig{Pipes: fakePipes{}, SFL: m, Stats: d, Log: logrus.NewEntry(logger)})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, m, d
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp
}

func TestHealth(t *testing.T) {
	ts, _, _ := newServer(t)
	var body map[string]string
	resp := get(t, ts.URL+"/health", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestPipes(t *testing.T) {
	ts, _, _ := newServer(t)

	var body struct {
		IDs   []string                         `json:"ids"`
		Pipes map[string]pipeline.PipeStatus `json:"pipes"`
	}
	resp := get(t, ts.URL+"/api/v1/pipes", &body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"preview"}, body.IDs)
	assert.True(t, body.Pipes["preview"].Running)
	assert.EqualValues(t, 3, body.Pipes["preview"].Processed)

	resp = post(t, ts.URL+"/api/v1/pipes", "{}")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestStats(t *testing.T) {
	ts, _, d := newServer(t)

	var st diag.Stats
	resp := get(t, ts.URL+"/api/v1/stats", &st)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, d.ID(), st.SessionID)
	assert.Equal(t, 3, st.CameraID)
	assert.EqualValues(t, 2, st.LibsAlive)
}

func TestSFLType(t *testing.T) {
	ts, m, _ := newServer(t)

	resp := post(t, ts.URL+"/api/v1/sfl/type", `{"type":"hdr"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, sfl.HDR, m.Type())

	var st sfl.Status
	resp = get(t, ts.URL+"/api/v1/sfl", &st)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "SFL_MGR", st.Name)
	assert.Equal(t, sfl.HDR, st.Current)
	require.Len(t, st.Libraries, int(sfl.NumTypes)-1)
	assert.True(t, st.Libraries[sfl.HDR-1].Present)
	assert.False(t, st.Libraries[sfl.OIS-1].Present)

	resp = post(t, ts.URL+"/api/v1/sfl/type", `{"type":"sparkle"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = post(t, ts.URL+"/api/v1/sfl/type", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = get(t, ts.URL+"/api/v1/sfl/type", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestSFLRunBlocksSwitch(t *testing.T) {
	ts, m, _ := newServer(t)

	require.Equal(t, http.StatusOK, post(t, ts.URL+"/api/v1/sfl/type", `{"type":"NIGHT"}`).StatusCode)
	require.Equal(t, http.StatusOK, post(t, ts.URL+"/api/v1/sfl/run", `{"type":"NIGHT","enable":true}`).StatusCode)
	assert.True(t, m.RunEnable(sfl.Night))

	resp := post(t, ts.URL+"/api/v1/sfl/type", `{"type":"HDR"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, sfl.Night, m.Type())

	require.Equal(t, http.StatusOK, post(t, ts.URL+"/api/v1/sfl/run", `{"type":"NIGHT","enable":false}`).StatusCode)
	require.Equal(t, http.StatusOK, post(t, ts.URL+"/api/v1/sfl/type", `{"type":"HDR"}`).StatusCode)
	assert.Equal(t, sfl.HDR, m.Type())
}

func TestSFLEnable(t *testing.T) {
	ts, m, _ := newServer(t)

	resp := post(t, ts.URL+"/api/v1/sfl/enable", `{"type":"night","enable":true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, m.Enable(sfl.Night))

	resp = post(t, ts.URL+"/api/v1/sfl/enable", `{"type":"panorama","enable":true}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = post(t, ts.URL+"/api/v1/sfl/enable", `{"type":"none","enable":true}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
