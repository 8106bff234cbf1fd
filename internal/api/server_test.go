package api

import (
	"bytes"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bryanchriswhite/wincap/internal/capture"
	"github.com/bryanchriswhite/wincap/internal/config"
	"github.com/bryanchriswhite/wincap/internal/session"
	"github.com/bryanchriswhite/wincap/internal/window"
	"github.com/gorilla/websocket"
)

type fakeBackend struct{}

func (fakeBackend) ListWindows() ([]window.Descriptor, error) {
	return []window.Descriptor{
		{Title: "Calculator", Class: "Calc", Handle: 7, Geometry: window.Geometry{Width: 2, Height: 2}},
		{Title: "Gone", Class: "Gone", Handle: 8},
	}, nil
}
func (fakeBackend) Close() error { return nil }
func (fakeBackend) Name() string { return "fake" }

// fakeStream produces a 2x2 frame every 2ms
type fakeStream struct{}

func (fakeStream) Next(timeout time.Duration) (capture.RawFrame, error) {
	time.Sleep(2 * time.Millisecond)
	return capture.RawFrame{Pixels: bytes.Repeat([]byte{1, 2, 3, 255}, 4), Width: 2, Height: 2}, nil
}
func (fakeStream) Close() error { return nil }

type fakeSource struct{}

func (fakeSource) Open(target window.Descriptor) (capture.Stream, error) {
	if target.Title == "Gone" {
		return nil, capture.ErrUnavailable
	}
	return fakeStream{}, nil
}
func (fakeSource) Name() string { return "fake" }

var _ capture.Source = fakeSource{}

func newTestServer(t *testing.T) (*Server, *session.Manager, *httptest.Server) {
	t.Helper()
	cfgMgr, err := config.NewManager(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	mgr := session.NewManager(window.NewCatalog(fakeBackend{}), fakeSource{}, 10*time.Millisecond)
	s := NewServer(mgr, cfgMgr, nil)
	s.EventInterval = 10 * time.Millisecond
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		mgr.StopCapture()
	})
	return s, mgr, ts
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	data, _ := json.Marshal(body)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestHealth(t *testing.T) {
	_, _, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body map[string]string
	json.NewDecoder(resp.Body).Decode(&body)
	if resp.StatusCode != http.StatusOK || body["status"] != "healthy" {
		t.Fatalf("health = %d %v", resp.StatusCode, body)
	}
}

func TestListWindows(t *testing.T) {
	_, _, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/api/windows")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var windows []window.Descriptor
	if err := json.NewDecoder(resp.Body).Decode(&windows); err != nil {
		t.Fatal(err)
	}
	if len(windows) != 2 || windows[0].Title != "Calculator" {
		t.Fatalf("windows = %+v", windows)
	}
}

func TestStartCaptureStatusCodes(t *testing.T) {
	tests := []struct {
		name       string
		body       interface{}
		wantStatus int
		wantError  string
	}{
		{name: "bad body", body: "nope", wantStatus: http.StatusBadRequest},
		{name: "no title", body: map[string]string{"class": "Calc"}, wantStatus: http.StatusBadRequest},
		{name: "not found", body: map[string]string{"title": "Nope", "class": "Nope"}, wantStatus: http.StatusNotFound, wantError: "WindowNotFound"},
		{name: "attach refused", body: map[string]string{"title": "Gone", "class": "Gone"}, wantStatus: http.StatusBadGateway, wantError: "PlatformCaptureUnavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, ts := newTestServer(t)
			resp := postJSON(t, ts.URL+"/api/capture/start", tt.body)
			defer resp.Body.Close()
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			var body map[string]string
			json.NewDecoder(resp.Body).Decode(&body)
			if !strings.Contains(body["error"], tt.wantError) {
				t.Fatalf("error = %q, want it to mention %q", body["error"], tt.wantError)
			}
		})
	}
}

func TestCaptureLifecycle(t *testing.T) {
	_, mgr, ts := newTestServer(t)
	req := map[string]string{"title": "Calculator", "class": "Calc"}

	resp := postJSON(t, ts.URL+"/api/capture/start", req)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start status = %d", resp.StatusCode)
	}

	resp = postJSON(t, ts.URL+"/api/capture/start", req)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second start status = %d, want 409", resp.StatusCode)
	}
	if !mgr.IsCapturing() {
		t.Fatal("conflicting start stopped the session")
	}

	resp, err := http.Get(ts.URL + "/api/capture/frame?format=png&wait=1s")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("frame status = %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Frame-Width") != "2" || resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("headers = %v", resp.Header)
	}
	if _, err := png.Decode(resp.Body); err != nil {
		t.Fatalf("frame is not a PNG: %v", err)
	}
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/api/capture/status")
	if err != nil {
		t.Fatal(err)
	}
	var st session.Status
	json.NewDecoder(resp.Body).Decode(&st)
	resp.Body.Close()
	if !st.Capturing || st.State != "running" || st.Target == nil || st.Target.Title != "Calculator" {
		t.Fatalf("status = %+v", st)
	}

	resp = postJSON(t, ts.URL+"/api/capture/stop", nil)
	resp.Body.Close()
	if mgr.IsCapturing() {
		t.Fatal("still capturing after stop")
	}

	resp, err = http.Get(ts.URL + "/api/capture/frame")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("idle frame status = %d, want 204", resp.StatusCode)
	}
}

func TestFrameBadQuery(t *testing.T) {
	_, _, ts := newTestServer(t)
	for _, q := range []string{"format=gif", "max_width=-1", "max_width=abc"} {
		resp, err := http.Get(ts.URL + "/api/capture/frame?" + q)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: status = %d", q, resp.StatusCode)
		}
	}
}

func TestCaptureEvents(t *testing.T) {
	_, mgr, ts := newTestServer(t)
	if !mgr.StartCapture("Calculator", "Calc") {
		t.Fatal(mgr.GetLastError())
	}

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/capture/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var st session.Status
	for i := 0; i < 3; i++ {
		if err := conn.ReadJSON(&st); err != nil {
			t.Fatal(err)
		}
	}
	if !st.Capturing || st.FrameCount == 0 {
		t.Fatalf("status = %+v", st)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	_, _, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/config")
	if err != nil {
		t.Fatal(err)
	}
	var cfg config.Config
	json.NewDecoder(resp.Body).Decode(&cfg)
	resp.Body.Close()
	if cfg.ServerPort != 8080 {
		t.Fatalf("port = %d", cfg.ServerPort)
	}

	body := strings.NewReader(`{"output": {"jpeg_quality": 55, "max_width": 640}}`)
	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/config", body)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	json.NewDecoder(resp.Body).Decode(&cfg)
	resp.Body.Close()
	if cfg.Output.JPEGQuality != 55 || cfg.Output.MaxWidth != 640 || cfg.ServerPort != 8080 {
		t.Fatalf("updated config = %+v", cfg)
	}
}
