package server

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/yctsai/notetender/lineapi"
	"github.com/yctsai/notetender/session"
	"github.com/yctsai/notetender/telemetry"
)

type recordingBot struct {
	events []lineapi.Event
}

func (r *recordingBot) HandleEvent(ctx context.Context, ev lineapi.Event) {
	r.events = append(r.events, ev)
}

type okPinger struct{ err error }

func (p okPinger) Ping(ctx context.Context) error { return p.err }

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func newTestServer(t *testing.T, bot *recordingBot, sheets Pinger) *httptest.Server {
	t.Helper()
	telemetry.Init()
	line := lineapi.New("secret", "token", "", "")
	h := NewHandlers(nil, line, bot, sheets, session.NewStore())
	srv := httptest.NewServer(NewMux(h))
	t.Cleanup(srv.Close)
	return srv
}

func TestCallbackDispatchesEvents(t *testing.T) {
	bot := &recordingBot{}
	srv := newTestServer(t, bot, okPinger{})

	body := []byte(`{"events":[{"type":"message","replyToken":"rt","source":{"userId":"U1"},"message":{"id":"m1","type":"text","text":"hi"}}]}`)
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/callback", strings.NewReader(string(body)))
	req.Header.Set("X-Line-Signature", sign("secret", body))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	buf := make([]byte, 2)
	n, _ := resp.Body.Read(buf)
	if string(buf[:n]) != "OK" {
		t.Errorf("body = %q", buf[:n])
	}
	if len(bot.events) != 1 || bot.events[0].Text != "hi" {
		t.Errorf("events = %v", bot.events)
	}
}

func TestCallbackMissingSignature(t *testing.T) {
	bot := &recordingBot{}
	srv := newTestServer(t, bot, okPinger{})

	resp, err := http.Post(srv.URL+"/callback", "application/json", strings.NewReader(`{"events":[]}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if len(bot.events) != 0 {
		t.Errorf("events dispatched without signature")
	}
}

func TestCallbackBadSignature(t *testing.T) {
	bot := &recordingBot{}
	srv := newTestServer(t, bot, okPinger{})

	body := []byte(`{"events":[]}`)
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/callback", strings.NewReader(string(body)))
	req.Header.Set("X-Line-Signature", sign("wrong-secret", body))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestCallbackMalformedBody(t *testing.T) {
	srv := newTestServer(t, &recordingBot{}, okPinger{})

	body := []byte(`not json`)
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/callback", strings.NewReader(string(body)))
	req.Header.Set("X-Line-Signature", sign("secret", body))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestCallbackRejectsGet(t *testing.T) {
	srv := newTestServer(t, &recordingBot{}, okPinger{})
	resp, err := http.Get(srv.URL + "/callback")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, &recordingBot{}, okPinger{})
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]string
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body["status"] != "healthy" || body["google_sheets"] != "ok" || body["timestamp"] == "" {
		t.Errorf("body = %v", body)
	}
}

func TestHealthEndpointProbeFailure(t *testing.T) {
	srv := newTestServer(t, &recordingBot{}, okPinger{err: fmt.Errorf("api unreachable")})
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]string
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body["status"] != "unhealthy" {
		t.Errorf("body = %v", body)
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv := newTestServer(t, &recordingBot{}, okPinger{})
	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if _, ok := body["recording_sessions"]; !ok {
		t.Errorf("body = %v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, &recordingBot{}, okPinger{})
	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestCorrelationIDHeader(t *testing.T) {
	srv := newTestServer(t, &recordingBot{}, okPinger{})
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.Header.Get("X-Correlation-ID") == "" {
		t.Errorf("missing correlation id header")
	}
}
