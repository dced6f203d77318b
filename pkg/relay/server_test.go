package relay

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haivivi/voxlock/pkg/asd"
	"github.com/haivivi/voxlock/pkg/landmark"
	"github.com/haivivi/voxlock/pkg/trace"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func centeredFace(id int, mouthY float64) landmark.Face {
	named := map[string][2]float64{"nose-tip": {0.5, 0.4}}
	for _, r := range asd.MouthRoles {
		named[string(r)] = [2]float64{0.5, mouthY}
	}
	return landmark.Face{ID: id, Landmarks: named}
}

func startServer(t *testing.T, cfg Config) (*httptest.Server, *websocket.Conn) {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = quietLogger()
	}
	srv, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return ts, conn
}

func readMsg(t *testing.T, conn *websocket.Conn) Outbound {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg Outbound
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	return msg
}

func sendFrame(t *testing.T, conn *websocket.Conn, f landmark.Frame) {
	t.Helper()
	if err := conn.WriteJSON(Inbound{Type: TypeFrame, Frame: &f}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
}

func TestSessionFlow(t *testing.T) {
	_, conn := startServer(t, Config{Engine: asd.EngineConfig{Weights: asd.PresetCenterBias}})

	hello := readMsg(t, conn)
	if hello.Type != TypeHello || hello.Session == "" || hello.Threshold != asd.DefaultThreshold {
		t.Fatalf("hello = %+v", hello)
	}
	if hello.Weights == nil || *hello.Weights != asd.PresetCenterBias {
		t.Errorf("weights = %v", hello.Weights)
	}

	loud := 1.0
	sendFrame(t, conn, landmark.Frame{Seq: 1, TimestampMs: ptr(1000.0), Energy: &loud, Faces: []landmark.Face{centeredFace(0, 0.6)}})

	scores := readMsg(t, conn)
	if scores.Type != TypeScores || len(scores.Scores) != 1 || !scores.Scores[0].Above {
		t.Fatalf("scores = %+v", scores)
	}
	speaker := readMsg(t, conn)
	if speaker.Type != TypeSpeaker || speaker.Speaker == nil || speaker.Speaker.Kind != asd.EventActivated {
		t.Fatalf("speaker = %+v", speaker)
	}
	if speaker.Status != "Auto-selected Speaker 1 (Score: 0.40)" {
		t.Errorf("status = %q", speaker.Status)
	}
	filter := readMsg(t, conn)
	if filter.Type != TypeFilter || filter.Filter == nil || filter.Filter.CenterFrequencyHz != 200 {
		t.Fatalf("filter = %+v", filter)
	}

	// Same speaker again: scores only.
	sendFrame(t, conn, landmark.Frame{Seq: 2, TimestampMs: ptr(1016.0), Energy: &loud, Faces: []landmark.Face{centeredFace(0, 0.6)}})
	if msg := readMsg(t, conn); msg.Type != TypeScores || msg.Seq != 2 {
		t.Fatalf("msg = %+v", msg)
	}

	// Broken face: scores plus a diagnostic, the stream continues.
	sendFrame(t, conn, landmark.Frame{Seq: 3, Faces: []landmark.Face{{ID: 1, Mesh: [][]float64{{0.5, 0.5}}}}})
	if msg := readMsg(t, conn); msg.Type != TypeScores {
		t.Fatalf("msg = %+v", msg)
	}
	if msg := readMsg(t, conn); msg.Type != TypeError || !strings.Contains(msg.Error, "missing landmark role") {
		t.Fatalf("msg = %+v", msg)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := readMsg(t, conn); msg.Type != TypeError || !strings.HasPrefix(msg.Error, "invalid message") {
		t.Fatalf("msg = %+v", msg)
	}

	conn.WriteJSON(Inbound{Type: "dance"})
	if msg := readMsg(t, conn); msg.Type != TypeError {
		t.Fatalf("msg = %+v", msg)
	}
}

func TestSkipScores(t *testing.T) {
	_, conn := startServer(t, Config{SkipScores: true})
	readMsg(t, conn)

	loud := 1.0
	sendFrame(t, conn, landmark.Frame{Seq: 1, Energy: &loud, Faces: []landmark.Face{centeredFace(2, 0.6)}})
	msg := readMsg(t, conn)
	if msg.Type != TypeSpeaker || msg.Speaker.ID != 2 {
		t.Fatalf("msg = %+v", msg)
	}
	if msg := readMsg(t, conn); msg.Type != TypeFilter || msg.Filter.CenterFrequencyHz != 600 {
		t.Fatalf("msg = %+v", msg)
	}
}

func TestRecordsSessions(t *testing.T) {
	store := trace.NewMemory()
	_, conn := startServer(t, Config{Store: store, SkipScores: true})
	hello := readMsg(t, conn)

	loud := 1.0
	sendFrame(t, conn, landmark.Frame{Seq: 5, Energy: &loud, Faces: []landmark.Face{centeredFace(1, 0.6)}})
	readMsg(t, conn)
	readMsg(t, conn)
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

	ctx := context.Background()
	deadline := time.Now().Add(5 * time.Second)
	for {
		events, err := trace.Events(ctx, store, hello.Session)
		if err != nil {
			t.Fatalf("Events: %v", err)
		}
		if len(events) == 1 {
			e := events[0]
			if e.Frame != 5 || e.Speaker != 1 || e.Filter == nil || e.Filter.CenterFrequencyHz != 400 {
				t.Errorf("event = %+v", e)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("no event recorded, got %d", len(events))
		}
		time.Sleep(10 * time.Millisecond)
	}

	info, err := trace.Session(ctx, store, hello.Session)
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if info.Source != "relay" {
		t.Errorf("source = %q", info.Source)
	}
}

func TestShutdownFlushesOpenSessions(t *testing.T) {
	tests := []struct {
		name     string
		speakers []int
	}{
		{"no-frames", nil},
		{"one-speaker", []int{1}},
		{"switches", []int{1, 2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := trace.NewMemory()
			srv, err := NewServer(Config{Store: store, SkipScores: true, Logger: quietLogger()})
			if err != nil {
				t.Fatalf("NewServer: %v", err)
			}
			ts := httptest.NewServer(srv)
			defer ts.Close()
			url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
			conn, _, err := websocket.DefaultDialer.Dial(url, nil)
			if err != nil {
				t.Fatalf("Dial: %v", err)
			}
			defer conn.Close()
			hello := readMsg(t, conn)

			loud := 1.0
			for i, id := range tt.speakers {
				sendFrame(t, conn, landmark.Frame{Seq: uint64(i + 1), Energy: &loud, Faces: []landmark.Face{centeredFace(id, 0.6)}})
				if msg := readMsg(t, conn); msg.Type != TypeSpeaker {
					t.Fatalf("msg = %+v, want speaker", msg)
				}
				if msg := readMsg(t, conn); msg.Type != TypeFilter {
					t.Fatalf("msg = %+v, want filter", msg)
				}
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				t.Fatalf("Shutdown: %v", err)
			}

			// Shutdown has returned, so every event is already stored.
			events, err := trace.Events(context.Background(), store, hello.Session)
			if err != nil {
				t.Fatalf("Events: %v", err)
			}
			if len(events) != len(tt.speakers) {
				t.Fatalf("recorded %d events, want %d", len(events), len(tt.speakers))
			}
			for i, e := range events {
				if int(e.Speaker) != tt.speakers[i] || e.Filter == nil {
					t.Errorf("event %d = %+v, want speaker %d with filter", i, e, tt.speakers[i])
				}
			}

			conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			for {
				if _, _, err = conn.ReadMessage(); err != nil {
					break
				}
			}
			if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
				t.Errorf("read err = %v, want going-away close", err)
			}

			if _, resp, err := websocket.DefaultDialer.Dial(url, nil); err == nil {
				t.Error("dial after shutdown succeeded")
			} else if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
				t.Errorf("dial after shutdown: %v %v", resp, err)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	ts, conn := startServer(t, Config{Version: "v1.2.3"})
	readMsg(t, conn)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	var h Health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if h.Status != "ok" || h.Version != "v1.2.3" || h.Sessions != 1 || h.Served != 1 {
		t.Errorf("health = %+v", h)
	}
}

func TestSchema(t *testing.T) {
	srv, err := NewServer(Config{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/schema")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "application/schema+json" {
		t.Errorf("content type = %q", ct)
	}
	var schema struct {
		Title      string                     `json:"title"`
		Properties map[string]json.RawMessage `json:"properties"`
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := json.Unmarshal(body, &schema); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if schema.Title != "voxlock client message" {
		t.Errorf("title = %q", schema.Title)
	}
	for _, field := range []string{"type", "frame"} {
		if _, ok := schema.Properties[field]; !ok {
			t.Errorf("schema has no %q property: %v", field, schema.Properties)
		}
	}
	if !strings.Contains(string(body), `"faces"`) {
		t.Errorf("schema does not describe frame faces: %s", body)
	}
}

func TestOriginCheck(t *testing.T) {
	srv, err := NewServer(Config{AllowedOrigins: []string{"https://ok.example"}, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ts := httptest.NewServer(srv)
	defer ts.Close()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example"}})
	if err == nil {
		t.Fatal("expected rejected origin")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("resp = %v", resp)
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://ok.example"}})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	conn.Close()
}

func TestNewServerRejectsWeights(t *testing.T) {
	if _, err := NewServer(Config{Engine: asd.EngineConfig{Weights: asd.Weights{Lip: 3}}}); err == nil {
		t.Error("expected error")
	}
}

func TestStatusLine(t *testing.T) {
	got := StatusLine(asd.SpeakerChangeEvent{Kind: asd.EventReleased, ID: 2})
	if got != "Released Speaker 3" {
		t.Errorf("got %q", got)
	}
}
