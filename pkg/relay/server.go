package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/haivivi/voxlock/pkg/asd"
	"github.com/haivivi/voxlock/pkg/trace"
)

// TopicSpeakerChanged is published on a session's bus for every change
// event. Handlers receive (frame uint64, ev asd.SpeakerChangeEvent,
// filter *asd.FilterConfig).
const TopicSpeakerChanged = "speaker:changed"

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendQueue  = 64
	maxMessage = 1 << 20
)

// Config configures a Server.
type Config struct {
	// Engine is the template for each connection's engine. Its Logger,
	// Energy and Effect fields are replaced per connection.
	Engine asd.EngineConfig

	// Threshold is reported to clients for score overlays. It should
	// match the selection threshold (default asd.DefaultThreshold).
	Threshold float64

	// Store, when set, records every session's speaker changes.
	Store trace.Store

	// SkipScores disables the per-frame scores message.
	SkipScores bool

	// AllowedOrigins restricts browser origins. Empty allows any.
	AllowedOrigins []string

	Version string
	Logger  *slog.Logger
}

// Server is an http.Handler serving /ws, /healthz and /schema.
//
// Websocket sessions are hijacked from net/http, so http.Server.Shutdown
// does not see them; call Server.Shutdown to close and wait for them.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	upgrader websocket.Upgrader
	mux      *http.ServeMux
	schema   []byte
	active   atomic.Int64
	total    atomic.Int64

	// base is cancelled by Shutdown and parents every session.
	base     context.Context
	stop     context.CancelFunc
	mu       sync.Mutex
	closed   bool
	sessions sync.WaitGroup
}

var _ http.Handler = (*Server)(nil)

// NewServer validates cfg and creates a Server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = asd.DefaultThreshold
	}
	probe := cfg.Engine
	probe.Logger = cfg.Logger
	if _, err := asd.NewEngine(probe); err != nil {
		return nil, fmt.Errorf("relay: %w", err)
	}

	s := &Server{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "relay"),
		mux:    http.NewServeMux(),
	}
	s.base, s.stop = context.WithCancel(context.Background())
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  16 << 10,
		WriteBufferSize: 16 << 10,
		CheckOrigin:     s.checkOrigin,
	}
	s.mux.HandleFunc("GET /ws", s.handleWS)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	schema, err := Schema()
	if err != nil {
		return nil, err
	}
	if s.schema, err = json.MarshalIndent(schema, "", "  "); err != nil {
		return nil, fmt.Errorf("relay: %w", err)
	}
	s.mux.HandleFunc("GET /schema", s.handleSchema)
	return s, nil
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, o := range s.cfg.AllowedOrigins {
		if o == origin || o == "*" {
			return true
		}
	}
	return false
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Health is the /healthz payload.
type Health struct {
	Status   string `json:"status"`
	Version  string `json:"version,omitempty"`
	Sessions int64  `json:"sessions"`
	Served   int64  `json:"served"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(Health{
		Status:   "ok",
		Version:  s.cfg.Version,
		Sessions: s.active.Load(),
		Served:   s.total.Load(),
	})
}

func (s *Server) handleSchema(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/schema+json")
	w.Write(s.schema)
}

// Shutdown stops accepting sessions, sends every open session a going-away
// close, and waits until they have ended and flushed their recordings or
// ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.stop()

	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("relay: %d sessions still open: %w", s.active.Load(), ctx.Err())
	}
}

// acquire registers a session unless the server is shutting down.
func (s *Server) acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.sessions.Add(1)
	return true
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.acquire() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.sessions.Done()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	s.active.Add(1)
	s.total.Add(1)
	defer s.active.Add(-1)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	defer context.AfterFunc(s.base, cancel)()

	id := uuid.NewString()
	logger := s.logger.With("session", id, "remote", r.RemoteAddr)
	sess, err := s.newSession(ctx, id, ws, logger)
	if err != nil {
		logger.Error("session setup failed", "err", err)
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "session setup failed"),
			time.Now().Add(writeWait))
		ws.Close()
		return
	}
	logger.Info("session started")
	err = sess.run(ctx)
	logger.Info("session ended", "frames", sess.frames, "err", err)
}

type session struct {
	id        string
	ws        *websocket.Conn
	engine    *asd.Engine
	bus       evbus.Bus
	out       chan Outbound
	threshold float64
	scores    bool
	logger    *slog.Logger
	frames    uint64
}

func (s *Server) newSession(ctx context.Context, id string, ws *websocket.Conn, logger *slog.Logger) (*session, error) {
	ecfg := s.cfg.Engine
	ecfg.Logger = logger
	ecfg.Energy = nil
	ecfg.Effect = nil
	engine, err := asd.NewEngine(ecfg)
	if err != nil {
		return nil, err
	}

	sess := &session{
		id:        id,
		ws:        ws,
		engine:    engine,
		bus:       evbus.New(),
		out:       make(chan Outbound, sendQueue),
		threshold: s.cfg.Threshold,
		scores:    !s.cfg.SkipScores,
		logger:    logger,
	}
	if err := sess.bus.Subscribe(TopicSpeakerChanged, sess.notify); err != nil {
		return nil, err
	}
	if s.cfg.Store != nil {
		info := trace.SessionInfo{ID: id, Source: "relay", Weights: engine.Weights()}
		rec, err := trace.NewRecorder(ctx, s.cfg.Store, info, logger)
		if err != nil {
			return nil, err
		}
		record := func(frame uint64, ev asd.SpeakerChangeEvent, filter *asd.FilterConfig) {
			// The request context is gone once the client disconnects;
			// late events still get written.
			if err := rec.Record(context.WithoutCancel(ctx), frame, ev, filter); err != nil {
				logger.Warn("record failed", "err", err)
			}
		}
		if err := sess.bus.SubscribeAsync(TopicSpeakerChanged, record, true); err != nil {
			return nil, err
		}
	}
	return sess, nil
}

func (sess *session) run(ctx context.Context) error {
	sess.send(Outbound{
		Type:      TypeHello,
		Session:   sess.id,
		Threshold: sess.threshold,
		Weights:   ptr(sess.engine.Weights()),
	})

	// The reader closes out when it stops, which ends the writer; the
	// writer closes the socket when it stops, which ends the reader.
	var g errgroup.Group
	g.Go(func() error {
		defer close(sess.out)
		defer sess.bus.WaitAsync()
		return sess.readLoop()
	})
	g.Go(func() error {
		return sess.writeLoop(ctx)
	})
	err := g.Wait()
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil
	}
	if ctx.Err() != nil {
		// Closed by Shutdown.
		return nil
	}
	return err
}

func (sess *session) readLoop() error {
	sess.ws.SetReadLimit(maxMessage)
	sess.ws.SetReadDeadline(time.Now().Add(pongWait))
	sess.ws.SetPongHandler(func(string) error {
		return sess.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	var prevTS *float64
	for {
		_, data, err := sess.ws.ReadMessage()
		if err != nil {
			return err
		}
		var msg Inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			sess.send(Outbound{Type: TypeError, Error: "invalid message: " + err.Error()})
			continue
		}
		switch msg.Type {
		case TypeFrame:
			if msg.Frame == nil {
				sess.send(Outbound{Type: TypeError, Error: "frame message without frame"})
				continue
			}
			if err := msg.Frame.Validate(); err != nil {
				sess.send(Outbound{Type: TypeError, Seq: msg.Frame.Seq, Error: err.Error()})
				continue
			}
			frame := msg.Frame.Core(prevTS)
			if msg.Frame.TimestampMs != nil {
				prevTS = msg.Frame.TimestampMs
			}
			sess.step(frame)
		case TypeReset:
			sess.engine.Reset()
			prevTS = nil
		default:
			sess.send(Outbound{Type: TypeError, Error: fmt.Sprintf("unknown message type %q", msg.Type)})
		}
	}
}

func (sess *session) step(frame asd.Frame) {
	sess.frames++
	res := sess.engine.Step(frame)
	if sess.scores {
		sess.send(scoresMessage(res, sess.threshold))
	}
	for _, err := range res.Errors {
		sess.send(Outbound{Type: TypeError, Seq: res.Seq, Error: err.Error()})
	}
	if res.Event != nil {
		sess.bus.Publish(TopicSpeakerChanged, res.Seq, *res.Event, res.Filter)
	}
}

// notify turns a change event into client messages.
func (sess *session) notify(frame uint64, ev asd.SpeakerChangeEvent, filter *asd.FilterConfig) {
	sess.send(Outbound{Type: TypeSpeaker, Seq: frame, Speaker: &ev, Status: StatusLine(ev)})
	if filter != nil {
		sess.send(Outbound{Type: TypeFilter, Seq: frame, Filter: filter})
	}
}

// send queues msg. Per-frame scores are dropped when the client falls
// behind; everything else waits.
func (sess *session) send(msg Outbound) {
	if msg.Type == TypeScores {
		select {
		case sess.out <- msg:
		default:
			sess.logger.Debug("scores dropped", "seq", msg.Seq)
		}
		return
	}
	sess.out <- msg
}

func (sess *session) writeLoop(ctx context.Context) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer sess.ws.Close()
	for {
		select {
		case msg, ok := <-sess.out:
			if !ok {
				sess.ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeWait))
				return nil
			}
			sess.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sess.ws.WriteJSON(msg); err != nil {
				// Keep draining so the reader never blocks on a dead peer.
				go drain(sess.out)
				return err
			}
		case <-ticker.C:
			if err := sess.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				go drain(sess.out)
				return err
			}
		case <-ctx.Done():
			sess.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			go drain(sess.out)
			return ctx.Err()
		}
	}
}

func drain(ch <-chan Outbound) {
	for range ch {
	}
}

func ptr[T any](v T) *T { return &v }

// ErrClosed is returned by Serve after Shutdown.
var ErrClosed = errors.New("relay: server closed")

// Serve listens on addr until ctx is done, then shuts down gracefully:
// plain requests are drained first, then every websocket session is
// closed and waited for.
func Serve(ctx context.Context, addr string, s *Server, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := s.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ErrClosed
	}
}
