package api

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/radar-sweep/internal/monitoring"
	"github.com/banshee-data/radar-sweep/internal/sweep"
	"github.com/banshee-data/radar-sweep/internal/testutil"
	"github.com/banshee-data/radar-sweep/internal/timeutil"
	"github.com/banshee-data/radar-sweep/internal/version"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

type fixture struct {
	buf    *sweep.Buffer
	recon  *sweep.Reconstructor
	stats  *sweep.Stats
	server *Server
	mux    *http.ServeMux
}

func newFixture(t *testing.T, n, moveSize int, profiles ProfileStore) *fixture {
	t.Helper()
	buf, err := sweep.NewBuffer(n)
	require.NoError(t, err)
	recon, err := sweep.NewReconstructor(buf, moveSize)
	require.NoError(t, err)

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	stats := sweep.NewStats(start)
	s := NewServer(recon, stats, profiles)
	s.clock = timeutil.NewMockClock(start.Add(10 * time.Second))
	return &fixture{buf: buf, recon: recon, stats: stats, server: s, mux: s.ServeMux()}
}

func (f *fixture) get(path string) *httptest.ResponseRecorder {
	return f.do(http.MethodGet, path, "")
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	return testutil.Serve(f.mux, testutil.LoopbackRequest(method, path, strings.NewReader(body)))
}

func TestShowSweep(t *testing.T) {
	f := newFixture(t, 4, 1, nil)
	f.buf.Write(0, 100)
	f.buf.Write(1, 200)

	w := f.get("/api/sweep")
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	got := testutil.DecodeJSON[SweepResponse](t, w)

	assert.Equal(t, 4, got.Resolution)
	assert.Equal(t, 1, got.MoveSize)
	assert.Equal(t, sweep.Index(1), got.MostRecent)
	assert.True(t, got.HasData)
	require.Len(t, got.Chords, 4)

	// chord 1 joins step 0 (100 on +x) to step 1 (200 on +y)
	want := sweep.Chord{
		FromIndex: 0,
		ToIndex:   1,
		From:      sweep.Point{X: 100, Y: 0},
		To:        sweep.Point{X: 0, Y: 200},
	}
	if diff := cmp.Diff(want, got.Chords[1], cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("chord 1 mismatch (-want +got):\n%s", diff)
	}
	// chord 0 wraps back to step 3
	assert.Equal(t, sweep.Index(3), got.Chords[0].FromIndex)
}

func TestShowSweep_MethodNotAllowed(t *testing.T) {
	f := newFixture(t, 4, 1, nil)
	for _, path := range []string{"/api/sweep", "/api/sweep/head", "/api/sweep/annotation", "/api/stats", "/api/version"} {
		w := f.do(http.MethodPost, path, "")
		testutil.AssertStatusCode(t, w.Code, http.StatusMethodNotAllowed)
	}
}

func TestShowHead(t *testing.T) {
	f := newFixture(t, 4, 1, nil)
	f.buf.Write(2, 50)

	w := f.get("/api/sweep/head")
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	got := testutil.DecodeJSON[sweep.Chord](t, w)

	assert.Equal(t, sweep.Index(2), got.ToIndex)
	assert.InDelta(t, 0, got.From.X, 1e-9)
	assert.InDelta(t, 0, got.From.Y, 1e-9)
	assert.InDelta(t, -400, got.To.X, 1e-9)
	assert.InDelta(t, 0, got.To.Y, 1e-9)
}

func TestShowAnnotation(t *testing.T) {
	f := newFixture(t, 2048, 16, nil)

	w := f.get("/api/sweep/annotation")
	got := testutil.DecodeJSON[AnnotationResponse](t, w)
	assert.False(t, got.HasData)

	f.buf.Write(512, 250)
	w = f.get("/api/sweep/annotation")
	got = testutil.DecodeJSON[AnnotationResponse](t, w)
	assert.True(t, got.HasData)
	assert.Equal(t, sweep.Index(512), got.Angle)
	assert.Equal(t, sweep.Distance(250), got.Distance)
	assert.Equal(t, "Step: 512 Distance: 250 cm", got.Text)
}

func TestMoveSize(t *testing.T) {
	f := newFixture(t, 64, 16, nil)

	w := f.get("/api/sweep/move-size")
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.Equal(t, MoveSizeResponse{MoveSize: 16, Resolution: 64}, testutil.DecodeJSON[MoveSizeResponse](t, w))

	w = f.do(http.MethodPut, "/api/sweep/move-size", `{"move_size": 4}`)
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.Equal(t, 4, f.recon.MoveSize())

	tests := []struct {
		name string
		body string
	}{
		{"too large", `{"move_size": 65}`},
		{"negative", `{"move_size": -1}`},
		{"missing", `{}`},
		{"not json", `four`},
		{"unknown field", `{"size": 3}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(http.MethodPut, "/api/sweep/move-size", tt.body)
			testutil.AssertStatusCode(t, w.Code, http.StatusBadRequest)
			assert.Equal(t, 4, f.recon.MoveSize(), "rejected update must not change move size")
		})
	}

	w = f.do(http.MethodDelete, "/api/sweep/move-size", "")
	testutil.AssertStatusCode(t, w.Code, http.StatusMethodNotAllowed)
	assert.Equal(t, "GET, PUT", w.Header().Get("Allow"))
}

func TestShowVersion(t *testing.T) {
	f := newFixture(t, 4, 1, nil)
	got := testutil.DecodeJSON[VersionResponse](t, f.get("/api/version"))
	assert.Equal(t, version.Version, got.Version)
	assert.Equal(t, version.GitSHA, got.GitSHA)
}

func TestLoggingMiddleware(t *testing.T) {
	var lines []string
	monitoring.SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, format)
	})
	defer monitoring.SetLogger(nil)

	f := newFixture(t, 4, 1, nil)
	h := LoggingMiddleware(f.mux)
	w := testutil.Serve(h, testutil.LoopbackRequest(http.MethodGet, "/api/version", nil))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "[%s]"))
}

func TestStatusCodeColor(t *testing.T) {
	assert.Contains(t, statusCodeColor(200), "200")
	assert.Contains(t, statusCodeColor(200), colorBoldGreen)
	assert.Contains(t, statusCodeColor(302), colorYellow)
	assert.Contains(t, statusCodeColor(404), colorBoldRed)
	assert.Contains(t, statusCodeColor(503), colorBoldRed)
	assert.Equal(t, "100", statusCodeColor(100))
}
