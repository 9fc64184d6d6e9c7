package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeController records calls and answers with canned results.
type fakeController struct {
	mu       sync.Mutex
	playing  bool
	stopErr  error
	pressErr error

	stops   int
	presses int
	urls    []string
	bytes   [][]byte
}

func (f *fakeController) Playing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playing
}

func (f *fakeController) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return f.stopErr
}

func (f *fakeController) PlayURL(mediaURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, mediaURL)
	return nil
}

func (f *fakeController) PlayBytes(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bytes = append(f.bytes, data)
	return nil
}

func (f *fakeController) HandleButtonPress() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.presses++
	return f.pressErr
}

type fakeDirectory struct {
	controllers map[string]*fakeController
}

func (f *fakeDirectory) Lookup(key string) (Controller, bool) {
	c, ok := f.controllers[key]
	return c, ok
}

func (f *fakeDirectory) Keys() []string {
	keys := make([]string, 0, len(f.controllers))
	for k := range f.controllers {
		keys = append(keys, k)
	}
	return keys
}

func testAPI(t *testing.T) (*fakeController, http.Handler) {
	t.Helper()
	ctrl := &fakeController{}
	dir := &fakeDirectory{controllers: map[string]*fakeController{"frontdoor": ctrl}}
	return ctrl, NewServer("127.0.0.1:0", dir).Handler()
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload), "body: %s", rec.Body.String())
	return rec, payload
}

func TestStatus(t *testing.T) {
	_, h := testAPI(t)
	rec, payload := doRequest(t, h, http.MethodGet, "/status", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", payload["status"])
}

func TestList(t *testing.T) {
	_, h := testAPI(t)
	rec, payload := doRequest(t, h, http.MethodGet, "/list", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"frontdoor"}, payload["devices"])
}

func TestInfoReportsPlaybackState(t *testing.T) {
	ctrl, h := testAPI(t)

	_, payload := doRequest(t, h, http.MethodGet, "/frontdoor/info", "")
	assert.Equal(t, "idle", payload["state"])

	ctrl.mu.Lock()
	ctrl.playing = true
	ctrl.mu.Unlock()

	_, payload = doRequest(t, h, http.MethodGet, "/frontdoor/info", "")
	assert.Equal(t, "playing", payload["state"])
}

func TestUnknownDoorbell(t *testing.T) {
	_, h := testAPI(t)
	for _, probe := range []struct{ method, path string }{
		{http.MethodGet, "/backdoor/info"},
		{http.MethodPost, "/backdoor/stop"},
		{http.MethodPost, "/backdoor/simulateButtonPress"},
	} {
		rec, payload := doRequest(t, h, probe.method, probe.path, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, probe.path)
		assert.Equal(t, "doorbell not found", payload["error"], probe.path)
	}
}

func TestStop(t *testing.T) {
	ctrl, h := testAPI(t)
	rec, _ := doRequest(t, h, http.MethodPost, "/frontdoor/stop", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ctrl.stops)
}

func TestStopErrorSurfaces(t *testing.T) {
	ctrl, h := testAPI(t)
	ctrl.stopErr = errors.New("output stream failed to stop")

	rec, payload := doRequest(t, h, http.MethodPost, "/frontdoor/stop", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "output stream failed to stop", payload["error"])
}

func TestPlayStartsAsyncPlayback(t *testing.T) {
	ctrl, h := testAPI(t)

	rec, payload := doRequest(t, h, http.MethodPost, "/frontdoor/play", `{"media_id":"http://media/clip.mp3"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", payload["status"])

	// Playback starts in the background after the response
	assert.Eventually(t, func() bool {
		ctrl.mu.Lock()
		defer ctrl.mu.Unlock()
		return len(ctrl.urls) == 1 && ctrl.urls[0] == "http://media/clip.mp3"
	}, time.Second, time.Millisecond)
}

func TestPlayRejectsMissingMediaID(t *testing.T) {
	_, h := testAPI(t)

	for _, body := range []string{"", "{}", `{"media_id":""}`, "not json"} {
		rec, payload := doRequest(t, h, http.MethodPost, "/frontdoor/play", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
		assert.Equal(t, "media_id is required", payload["error"], "body %q", body)
	}
}

func TestSimulateButtonPress(t *testing.T) {
	ctrl, h := testAPI(t)
	rec, _ := doRequest(t, h, http.MethodPost, "/frontdoor/simulateButtonPress", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ctrl.presses)
}

func TestPlayAudioFileForwardsPayload(t *testing.T) {
	ctrl, h := testAPI(t)

	payload := []byte{0x01, 0x02, 0x03, 0x04}
	req := httptest.NewRequest(http.MethodPost, "/frontdoor/playAudioFile", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, ctrl.bytes, 1)
	assert.Equal(t, payload, ctrl.bytes[0])
}
