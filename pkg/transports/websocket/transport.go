// Package websocket is the browser transport: each websocket connection is
// one session streaming microphone PCM in and receiving detection events.
package websocket

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	gws "github.com/gorilla/websocket"
	"github.com/harunnryd/bargein/pkg/errorsx"
	"github.com/harunnryd/bargein/pkg/frames"
	"github.com/harunnryd/bargein/pkg/interrupt"
	"github.com/harunnryd/bargein/pkg/logging"
	"github.com/harunnryd/bargein/pkg/priority"
)

var ErrSendQueueFull = errors.New("websocket send queue full")

type Config struct {
	ServerAddr     string   `mapstructure:"server_addr"`
	WebsocketPath  string   `mapstructure:"ws_path"`
	HealthPath     string   `mapstructure:"health_path"`
	AllowAnyOrigin bool     `mapstructure:"allow_any_origin"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// SampleRate is assumed when a start message carries none.
	SampleRate      int `mapstructure:"sample_rate"`
	MaxMessageBytes int `mapstructure:"max_message_bytes"`
	SendQueue       int `mapstructure:"send_queue"`
	WriteTimeoutMS  int `mapstructure:"write_timeout_ms"`
}

func (c Config) withDefaults() Config {
	if c.ServerAddr == "" {
		c.ServerAddr = ":8080"
	}
	if c.WebsocketPath == "" {
		c.WebsocketPath = "/ws"
	}
	if c.HealthPath == "" {
		c.HealthPath = "/health"
	}
	if !c.AllowAnyOrigin && len(c.AllowedOrigins) == 0 {
		c.AllowAnyOrigin = true
	}
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 1 << 20
	}
	if c.SendQueue <= 0 {
		c.SendQueue = 256
	}
	if c.WriteTimeoutMS <= 0 {
		c.WriteTimeoutMS = 5000
	}
	return c
}

type Transport struct {
	cfg      Config
	server   *http.Server
	upgrader gws.Upgrader
	logger   *slog.Logger

	recvMu sync.RWMutex
	recvCh chan frames.Frame
	closed bool

	mu       sync.Mutex
	sessions map[string]*session
	addr     string

	draining atomic.Bool
}

func New(cfg Config) *Transport {
	cfg = cfg.withDefaults()
	t := &Transport{
		cfg: cfg,
		upgrader: gws.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		logger:   logging.NewComponentLogger(slog.Default(), "websocket_transport"),
		recvCh:   make(chan frames.Frame, 512),
		sessions: make(map[string]*session),
		addr:     cfg.ServerAddr,
	}
	t.upgrader.CheckOrigin = t.checkOrigin
	return t
}

func (t *Transport) Name() string { return "websocket" }

func (t *Transport) Recv() <-chan frames.Frame { return t.recvCh }

func (t *Transport) ReadyFields() map[string]any {
	t.mu.Lock()
	addr := t.addr
	t.mu.Unlock()
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return map[string]any{
		"ws_url":     "ws://" + addr + t.cfg.WebsocketPath,
		"health_url": "http://" + addr + t.cfg.HealthPath,
	}
}

func (t *Transport) ActiveSessions() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// Handler serves the websocket and health endpoints.
func (t *Transport) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(t.cfg.WebsocketPath, t)
	mux.HandleFunc(t.cfg.HealthPath, t.handleHealth)
	return mux
}

func (t *Transport) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ln, err := net.Listen("tcp", t.cfg.ServerAddr)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.addr = ln.Addr().String()
	t.mu.Unlock()
	t.server = &http.Server{
		ReadHeaderTimeout: 5 * time.Second,
		Handler:           t.Handler(),
	}
	go func() {
		<-ctx.Done()
		_ = t.Stop()
	}()
	go func() {
		if err := t.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.logger.Error("websocket_transport_server_error", "error", err.Error())
		}
	}()
	return nil
}

// Stop refuses new connections, tells connected clients the server is going
// away and closes Recv.
func (t *Transport) Stop() error {
	if !t.draining.CompareAndSwap(false, true) {
		return nil
	}
	if t.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = t.server.Shutdown(ctx)
		cancel()
	}
	t.mu.Lock()
	sessions := t.sessions
	t.sessions = make(map[string]*session)
	t.mu.Unlock()
	for _, sess := range sessions {
		sess.goingAway()
	}

	t.recvMu.Lock()
	if !t.closed {
		t.closed = true
		close(t.recvCh)
	}
	t.recvMu.Unlock()
	return nil
}

func (t *Transport) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	state := "ok"
	if t.draining.Load() {
		status = http.StatusServiceUnavailable
		state = "draining"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"status": state, "sessions": t.ActiveSessions()})
}

func (t *Transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if t.draining.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	conn.SetReadLimit(int64(t.cfg.MaxMessageBytes))

	var sess *session
	for {
		kind, msg, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if kind == gws.BinaryMessage {
			if sess != nil {
				t.emitAudio(sess, msg)
			}
			continue
		}
		var in ClientMessage
		if err := json.Unmarshal(msg, &in); err != nil {
			t.logger.Debug("websocket_bad_message", "error", err.Error())
			continue
		}
		switch in.Type {
		case "start":
			if sess != nil {
				continue
			}
			sess = t.attach(conn, in, r.UserAgent())
		case "media":
			if sess == nil {
				continue
			}
			payload, err := base64.StdEncoding.DecodeString(in.Payload)
			if err != nil {
				continue
			}
			t.emitAudio(sess, payload)
		case "tts":
			if sess == nil {
				continue
			}
			code := frames.ControlTTSStop
			if in.Active {
				code = frames.ControlTTSStart
			}
			t.emit(frames.NewControlFrame(sess.id, time.Now().UnixNano(), code, sess.meta()))
		case "mic_error":
			if sess == nil {
				continue
			}
			meta := sess.meta()
			meta[frames.MetaErrorName] = in.Name
			meta[frames.MetaErrorMessage] = in.Message
			t.emit(frames.NewSystemFrame(sess.id, time.Now().UnixNano(), frames.SystemMicError, meta))
		case "stop":
			if sess != nil {
				t.end(sess)
				// Flush queued events before the connection closes.
				sess.drain()
			}
			return
		}
	}
	if sess != nil {
		t.end(sess)
	}
}

func (t *Transport) attach(conn *gws.Conn, in ClientMessage, userAgent string) *session {
	id := strings.TrimSpace(in.SessionID)
	if id == "" {
		id = uuid.NewString()
	}
	rate := in.SampleRate
	if rate <= 0 {
		rate = t.cfg.SampleRate
	}
	t.mu.Lock()
	old := t.sessions[id]
	traceID := uuid.NewString()
	if old != nil {
		traceID = old.traceID
	}
	sess := newSession(id, traceID, rate, conn, t.cfg)
	t.sessions[id] = sess
	t.mu.Unlock()
	if old != nil {
		// A reconnect replaces the previous connection of the same session.
		old.close()
	}
	go sess.loop()

	ua := in.UserAgent
	if ua == "" {
		ua = userAgent
	}
	meta := sess.meta()
	meta[frames.MetaUserAgent] = ua
	meta[frames.MetaPlatform] = in.Platform
	meta[frames.MetaDevice] = in.Device
	meta[frames.MetaSource] = "transport"
	if in.NativeSpeech != nil {
		meta[frames.MetaNativeSpeech] = strconv.FormatBool(*in.NativeSpeech)
	}
	if in.TouchPoints > 0 {
		meta[frames.MetaTouchPoints] = strconv.Itoa(in.TouchPoints)
	}
	if old == nil {
		t.emit(frames.NewSystemFrame(id, time.Now().UnixNano(), frames.SystemStart, meta))
	}
	t.logger.Info("websocket_session_started", "session_id", id, "sample_rate", rate, "reconnect", old != nil)
	_ = sess.enqueue(ServerMessage{Type: "ready", SessionID: id})
	return sess
}

// end emits the stop frame unless a newer connection took the session over.
func (t *Transport) end(sess *session) {
	t.mu.Lock()
	current := t.sessions[sess.id] == sess
	if current {
		delete(t.sessions, sess.id)
	}
	t.mu.Unlock()
	if current {
		t.emit(frames.NewSystemFrame(sess.id, time.Now().UnixNano(), frames.SystemStop, sess.meta()))
		st := sess.queue.Stats()
		t.logger.Info("websocket_session_ended",
			"session_id", sess.id,
			"events_sent", st.HighPop,
			"debug_sent", st.LowPop,
			"dropped", st.Dropped)
	}
	sess.closeQueue()
}

func (t *Transport) emitAudio(sess *session, pcm []byte) {
	if len(pcm) < 2 {
		return
	}
	t.emit(frames.NewAudioFrame(sess.id, time.Now().UnixNano(), pcm, sess.rate, 1, sess.meta()))
}

func (t *Transport) emit(f frames.Frame) {
	t.recvMu.RLock()
	defer t.recvMu.RUnlock()
	if t.closed {
		return
	}
	select {
	case t.recvCh <- f:
	default:
		t.logger.Warn("websocket_recv_queue_full", "kind", string(f.Kind()))
	}
}

// Send delivers an engine event to the client of the frame's session.
// Frames for unknown sessions are dropped.
func (t *Transport) Send(f frames.Frame) error {
	meta := f.Meta()
	sess := t.session(meta[frames.MetaSessionID])
	if sess == nil {
		return nil
	}
	msg, ok := encodeFrame(f)
	if !ok {
		return nil
	}
	if err := sess.enqueue(msg); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonTransportSend)
	}
	return nil
}

func encodeFrame(f frames.Frame) (ServerMessage, bool) {
	switch fr := f.(type) {
	case frames.TextFrame:
		return ServerMessage{
			Type:   "transcript",
			Text:   fr.Text(),
			Source: fr.Meta()[frames.MetaTranscriptSource],
		}, true
	case frames.ControlFrame:
		switch fr.Code() {
		case frames.ControlSpeechStart:
			return ServerMessage{Type: "speech_start"}, true
		case frames.ControlStartInterruption:
			return ServerMessage{Type: "interruption", Volume: interrupt.VolumeOf(fr)}, true
		case frames.ControlError:
			return ServerMessage{Type: "error", Message: fr.Meta()[frames.MetaErrorMessage]}, true
		}
	case frames.SystemFrame:
		if fr.Name() == frames.SystemDebug {
			return ServerMessage{Type: "debug", Line: fr.Meta()[frames.MetaDebugLine]}, true
		}
	}
	return ServerMessage{}, false
}

func (t *Transport) session(id string) *session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessions[id]
}

func (t *Transport) checkOrigin(r *http.Request) bool {
	if t.cfg.AllowAnyOrigin {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	origin = strings.TrimRight(origin, "/")
	originHost := strings.TrimPrefix(origin, "https://")
	originHost = strings.TrimPrefix(originHost, "http://")
	for _, allowed := range t.cfg.AllowedOrigins {
		a := strings.TrimSpace(allowed)
		if a == "" {
			continue
		}
		a = strings.TrimRight(a, "/")
		if strings.HasPrefix(a, "http://") || strings.HasPrefix(a, "https://") {
			if strings.EqualFold(a, origin) {
				return true
			}
			continue
		}
		if strings.EqualFold(a, originHost) {
			return true
		}
	}
	return false
}

type session struct {
	id      string
	traceID string
	rate    int
	conn    *gws.Conn
	timeout time.Duration

	// Debug lines ride the low lane so detection events are never queued
	// behind them.
	queue   *priority.Queue[[]byte]
	closing chan struct{}
	done    chan struct{}

	mu     sync.Mutex
	closed bool
}

func newSession(id, traceID string, rate int, conn *gws.Conn, cfg Config) *session {
	return &session{
		id:      id,
		traceID: traceID,
		rate:    rate,
		conn:    conn,
		timeout: time.Duration(cfg.WriteTimeoutMS) * time.Millisecond,
		queue:   priority.New[[]byte](cfg.SendQueue, cfg.SendQueue, 4),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (s *session) meta() map[string]string {
	return map[string]string{
		frames.MetaSessionID: s.id,
		frames.MetaStreamID:  s.id,
		frames.MetaTraceID:   s.traceID,
	}
}

func (s *session) enqueue(msg ServerMessage) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	var pushed bool
	if msg.Type == "debug" {
		pushed = s.queue.TryPushLow(b)
	} else {
		pushed = s.queue.TryPushHigh(b)
	}
	if !pushed {
		return ErrSendQueueFull
	}
	return nil
}

func (s *session) loop() {
	defer close(s.done)
	for {
		msg, ok := s.queue.Pop(s.closing)
		if !ok {
			return
		}
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.timeout))
		if err := s.conn.WriteMessage(gws.TextMessage, msg); err != nil {
			return
		}
	}
}

func (s *session) closeQueue() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.closing)
	}
}

// drain waits for the writer to flush what was queued before closeQueue.
func (s *session) drain() {
	select {
	case <-s.done:
	case <-time.After(s.timeout):
	}
}

func (s *session) close() {
	s.closeQueue()
	_ = s.conn.Close()
}

// goingAway flushes pending events and closes with a 1001 close frame.
func (s *session) goingAway() {
	s.closeQueue()
	s.drain()
	deadline := time.Now().Add(time.Second)
	_ = s.conn.WriteControl(gws.CloseMessage, gws.FormatCloseMessage(gws.CloseGoingAway, "server shutting down"), deadline)
	_ = s.conn.Close()
}
