package session

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"profanity-stream-service/internal/auth"
	"profanity-stream-service/internal/models"
	"profanity-stream-service/internal/observability/metrics"
	"profanity-stream-service/internal/pcm"
	"profanity-stream-service/internal/service/catalog"
	"profanity-stream-service/internal/service/vad"
)

const testWindow = 8

type inbound struct {
	mt   int
	data []byte
}

type fakeConn struct {
	mu       sync.Mutex
	in       []inbound
	out      []any
	reads    int
	onRead   func(n int)
	readErr  error
	writeErr error
	closed   bool
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	c.mu.Lock()
	if len(c.in) == 0 {
		err := c.readErr
		c.mu.Unlock()
		if err == nil {
			err = &websocket.CloseError{Code: websocket.CloseNormalClosure}
		}
		return 0, nil, err
	}
	m := c.in[0]
	c.in = c.in[1:]
	c.reads++
	n, hook := c.reads, c.onRead
	c.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return m.mt, m.data, nil
}

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.out = append(c.out, v)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) audio(amplitude float32, n int) *fakeConn {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = amplitude
	}
	c.in = append(c.in, inbound{websocket.BinaryMessage, pcm.Encode(samples)})
	return c
}

func (c *fakeConn) text(s string) *fakeConn {
	c.in = append(c.in, inbound{websocket.TextMessage, []byte(s)})
	return c
}

type fakeTranscriber struct {
	mu    sync.Mutex
	text  string
	panic string
	calls int
}

func (f *fakeTranscriber) Transcribe(_ context.Context, w []float32) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.panic != "" {
		panic(f.panic)
	}
	return f.text
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []models.DetectionEvent
	err    error
}

func (f *fakeRecorder) Record(_ context.Context, ev models.DetectionEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

// blockingTranscriber holds loud windows until release is closed and records
// every window it sees.
type blockingTranscriber struct {
	mu      sync.Mutex
	windows [][]float32
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingTranscriber) Transcribe(_ context.Context, w []float32) string {
	b.mu.Lock()
	b.windows = append(b.windows, append([]float32(nil), w...))
	b.mu.Unlock()
	if w[0] > 0.3 {
		b.once.Do(func() { close(b.entered) })
		<-b.release
		return "아 진짜 짜증나네"
	}
	return "안녕하세요"
}

type rejectAll struct{ err error }

func (r rejectAll) Verify(context.Context, string) error { return r.err }

type fixture struct {
	ctrl    *Controller
	cat     *catalog.Catalog
	tr      *fakeTranscriber
	rec     *fakeRecorder
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, verifier auth.Verifier) *fixture {
	t.Helper()
	f := &fixture{
		cat:     catalog.NewDefault(),
		tr:      &fakeTranscriber{},
		rec:     &fakeRecorder{},
		metrics: metrics.NewMetricsWith(prometheus.NewRegistry()),
	}
	if verifier == nil {
		verifier = auth.Open{}
	}
	ctrl, err := NewController(Deps{
		Catalog:     f.cat,
		Gate:        vad.DefaultGate(),
		Transcriber: f.tr,
		Recorder:    f.rec,
		Verifier:    verifier,
		Metrics:     f.metrics,
	}, Config{WindowSize: testWindow, MaxLength: 2 * testWindow, Backend: "test"})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	f.ctrl = ctrl
	return f
}

func TestNewController_RequiresDeps(t *testing.T) {
	if _, err := NewController(Deps{}, DefaultConfig()); err == nil {
		t.Error("expected error for missing deps")
	}
}

func TestDecodePCM16_OddLength(t *testing.T) {
	if _, err := DecodePCM16([]byte{1, 2, 3}); !errors.Is(err, ErrMalformedFrame) {
		t.Errorf("expected ErrMalformedFrame, got %v", err)
	}
	samples, err := DecodePCM16([]byte{0x00, 0x40})
	if err != nil || len(samples) != 1 || samples[0] != 0.5 {
		t.Errorf("expected [0.5], got %v, %v", samples, err)
	}
}

func TestServe_SilentWindowSkipsTranscription(t *testing.T) {
	f := newFixture(t, nil)
	conn := (&fakeConn{}).audio(0.0005, testWindow)

	if err := f.ctrl.Serve(context.Background(), conn, "ab12cd34"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(conn.out) != 1 {
		t.Fatalf("expected 1 message, got %d", len(conn.out))
	}
	msg, ok := conn.out[0].(models.NoActivityResult)
	if !ok {
		t.Fatalf("expected NoActivityResult, got %T", conn.out[0])
	}
	if msg.Detected || msg.Message != models.ReasonNoVoiceActivity {
		t.Errorf("expected no voice activity, got %+v", msg)
	}
	if math.Abs(msg.Energy-0.0005) > 1e-4 {
		t.Errorf("expected energy near 0.0005, got %v", msg.Energy)
	}
	if f.tr.calls != 0 {
		t.Errorf("expected no transcription calls, got %d", f.tr.calls)
	}
	if !conn.closed {
		t.Error("expected connection closed")
	}
}

func TestServe_RejectsUnauthenticated(t *testing.T) {
	tests := []struct {
		name     string
		verifier auth.Verifier
		userID   string
		reason   string
	}{
		{"missing identity", auth.Open{}, "", "missing"},
		{"unknown identity", rejectAll{auth.ErrUnknownIdentity}, "zz99", "unknown"},
		{"lookup failure", rejectAll{errors.New("db down")}, "ab12", "lookup_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.verifier)
			conn := (&fakeConn{}).audio(0.5, testWindow)

			if err := f.ctrl.Serve(context.Background(), conn, tt.userID); err == nil {
				t.Error("expected rejection error")
			}

			if len(conn.out) != 1 {
				t.Fatalf("expected 1 message, got %d", len(conn.out))
			}
			msg, ok := conn.out[0].(models.ControlMessage)
			if !ok || msg.Type != models.TypeError || msg.Error != "authentication failed" {
				t.Errorf("expected authentication failed error, got %+v", conn.out[0])
			}
			if !conn.closed {
				t.Error("expected connection closed")
			}
			if conn.reads != 0 {
				t.Errorf("expected no reads after rejection, got %d", conn.reads)
			}
			if f.tr.calls != 0 {
				t.Errorf("expected no transcription calls, got %d", f.tr.calls)
			}
			if got := testutil.ToFloat64(f.metrics.SessionsTotal); got != 0 {
				t.Errorf("expected no streaming sessions, got %v", got)
			}
			if got := testutil.ToFloat64(f.metrics.SessionsRejected.WithLabelValues(tt.reason)); got != 1 {
				t.Errorf("expected 1 rejection with reason %s, got %v", tt.reason, got)
			}
		})
	}
}

func TestServe_DetectedWindowPersistsAndEmits(t *testing.T) {
	f := newFixture(t, nil)
	f.tr.text = "아 진짜 짜증나네"
	conn := (&fakeConn{}).audio(0.5, testWindow)

	if err := f.ctrl.Serve(context.Background(), conn, "ab12cd34"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(conn.out) != 1 {
		t.Fatalf("expected 1 message, got %d", len(conn.out))
	}
	msg, ok := conn.out[0].(models.DetectedResult)
	if !ok {
		t.Fatalf("expected DetectedResult, got %T", conn.out[0])
	}
	if !msg.Detected || msg.Pattern != "짜증" || msg.Confidence != 0.8 {
		t.Errorf("unexpected result %+v", msg)
	}
	if len(msg.Patterns) != 1 || msg.Patterns[0] != "짜증" {
		t.Errorf("expected patterns [짜증], got %v", msg.Patterns)
	}
	if msg.Timestamp.IsZero() {
		t.Error("expected timestamp set")
	}

	if len(f.rec.events) != 1 {
		t.Fatalf("expected 1 recorded event, got %d", len(f.rec.events))
	}
	ev := f.rec.events[0]
	if ev.UserID != "ab12cd34" || ev.SessionID == "" || ev.Sensitivity != 2 {
		t.Errorf("unexpected event %+v", ev)
	}
	if got := testutil.ToFloat64(f.metrics.Detections.WithLabelValues("짜증")); got != 1 {
		t.Errorf("expected 1 detection metric, got %v", got)
	}
}

func TestServe_CleanAndNoSpeech(t *testing.T) {
	tests := []struct {
		name string
		text string
		want func(t *testing.T, msg any)
	}{
		{"clean", "오늘 날씨 좋다", func(t *testing.T, msg any) {
			r, ok := msg.(models.CleanResult)
			if !ok || r.Detected || r.Text != "오늘 날씨 좋다" {
				t.Errorf("expected clean result, got %+v", msg)
			}
		}},
		{"no speech", "", func(t *testing.T, msg any) {
			r, ok := msg.(models.NoActivityResult)
			if !ok || r.Message != models.ReasonNoSpeech {
				t.Errorf("expected no speech result, got %+v", msg)
			}
		}},
		{"whitespace only", "   ", func(t *testing.T, msg any) {
			r, ok := msg.(models.NoActivityResult)
			if !ok || r.Message != models.ReasonNoSpeech {
				t.Errorf("expected no speech result, got %+v", msg)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.tr.text = tt.text
			conn := (&fakeConn{}).audio(0.5, testWindow)

			if err := f.ctrl.Serve(context.Background(), conn, "ab12cd34"); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(conn.out) != 1 {
				t.Fatalf("expected 1 message, got %d", len(conn.out))
			}
			tt.want(t, conn.out[0])
			if len(f.rec.events) != 0 {
				t.Errorf("expected nothing recorded, got %d", len(f.rec.events))
			}
		})
	}
}

func TestServe_PersistenceFailureStillEmits(t *testing.T) {
	f := newFixture(t, nil)
	f.tr.text = "병신"
	f.rec.err = errors.New("disk full")
	conn := (&fakeConn{}).audio(0.5, testWindow)

	if err := f.ctrl.Serve(context.Background(), conn, "ab12cd34"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(conn.out) != 1 {
		t.Fatalf("expected 1 message, got %d", len(conn.out))
	}
	if _, ok := conn.out[0].(models.DetectedResult); !ok {
		t.Errorf("expected DetectedResult, got %T", conn.out[0])
	}
	if got := testutil.ToFloat64(f.metrics.RecorderErrors.WithLabelValues("test")); got != 1 {
		t.Errorf("expected 1 recorder error, got %v", got)
	}
}

func TestServe_OneResultPerWindow(t *testing.T) {
	f := newFixture(t, nil)
	f.tr.text = "오늘 날씨 좋다"
	conn := (&fakeConn{}).
		audio(0.5, testWindow/2).
		audio(0.5, testWindow/2).
		audio(0.5, testWindow/2)

	if err := f.ctrl.Serve(context.Background(), conn, "ab12cd34"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 4 → none, 8 → one window leaving 4, 8 → one window.
	if len(conn.out) != 2 {
		t.Errorf("expected 2 results, got %d", len(conn.out))
	}
	if f.tr.calls != 2 {
		t.Errorf("expected 2 transcription calls, got %d", f.tr.calls)
	}
}

func TestServe_PingAndUnsupported(t *testing.T) {
	f := newFixture(t, nil)
	f.tr.text = "오늘 날씨 좋다"
	conn := (&fakeConn{}).
		text(" ping\n").
		text(`{"action":"start"}`).
		audio(0.5, testWindow)

	if err := f.ctrl.Serve(context.Background(), conn, "ab12cd34"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(conn.out) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(conn.out))
	}
	if msg, ok := conn.out[0].(models.ControlMessage); !ok || msg.Type != models.TypePong {
		t.Errorf("expected pong, got %+v", conn.out[0])
	}
	if msg, ok := conn.out[1].(models.ControlMessage); !ok || msg.Type != models.TypeUnsupported {
		t.Errorf("expected unsupported, got %+v", conn.out[1])
	}
	if _, ok := conn.out[2].(models.CleanResult); !ok {
		t.Errorf("expected session to keep streaming, got %T", conn.out[2])
	}
}

func TestServe_OddLengthFrameClosesWithError(t *testing.T) {
	f := newFixture(t, nil)
	conn := &fakeConn{in: []inbound{{websocket.BinaryMessage, []byte{1, 2, 3}}}}
	conn.audio(0.5, testWindow)

	err := f.ctrl.Serve(context.Background(), conn, "ab12cd34")
	if !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("expected ErrMalformedFrame, got %v", err)
	}

	if len(conn.out) != 1 {
		t.Fatalf("expected 1 message, got %d", len(conn.out))
	}
	msg, ok := conn.out[0].(models.ControlMessage)
	if !ok || msg.Type != models.TypeError || !strings.Contains(msg.Error, "malformed audio frame") {
		t.Errorf("expected malformed frame error, got %+v", conn.out[0])
	}
	if conn.reads != 1 {
		t.Errorf("expected reading to stop after the bad frame, got %d reads", conn.reads)
	}
	if !conn.closed {
		t.Error("expected connection closed")
	}
}

func TestServe_OversizedFrameClosesWithError(t *testing.T) {
	f := newFixture(t, nil)
	conn := (&fakeConn{readErr: websocket.ErrReadLimit}).audio(0.5, testWindow)

	err := f.ctrl.Serve(context.Background(), conn, "ab12cd34")
	if !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("expected ErrMalformedFrame, got %v", err)
	}

	if len(conn.out) != 2 {
		t.Fatalf("expected result then error, got %d messages", len(conn.out))
	}
	msg, ok := conn.out[1].(models.ControlMessage)
	if !ok || msg.Type != models.TypeError || !strings.Contains(msg.Error, "size limit") {
		t.Errorf("expected size limit error, got %+v", conn.out[1])
	}
	if got := testutil.ToFloat64(f.metrics.SessionsFailed.WithLabelValues("malformed_frame")); got != 1 {
		t.Errorf("expected 1 malformed_frame failure, got %v", got)
	}
	if !conn.closed {
		t.Error("expected connection closed")
	}
}

func TestServe_PanicInPipelineClosesWithError(t *testing.T) {
	f := newFixture(t, nil)
	f.tr.panic = "boom"
	conn := (&fakeConn{}).audio(0.5, testWindow)

	err := f.ctrl.Serve(context.Background(), conn, "ab12cd34")
	if !errors.Is(err, ErrPipelinePanic) {
		t.Fatalf("expected ErrPipelinePanic, got %v", err)
	}
	msg, ok := conn.out[0].(models.ControlMessage)
	if !ok || msg.Error != "internal error" {
		t.Errorf("expected generic internal error, got %+v", conn.out[0])
	}
	if got := testutil.ToFloat64(f.metrics.SessionsFailed.WithLabelValues("panic")); got != 1 {
		t.Errorf("expected 1 failed session, got %v", got)
	}
}

func TestServe_WriteFailureClosesSilently(t *testing.T) {
	f := newFixture(t, nil)
	conn := (&fakeConn{writeErr: errors.New("broken pipe")}).
		audio(0.0005, testWindow).
		audio(0.0005, testWindow)

	err := f.ctrl.Serve(context.Background(), conn, "ab12cd34")
	if !errors.Is(err, ErrWriteFailed) {
		t.Fatalf("expected ErrWriteFailed, got %v", err)
	}
	if conn.reads != 1 {
		t.Errorf("expected reading to stop after the failed write, got %d reads", conn.reads)
	}
	if !conn.closed {
		t.Error("expected connection closed")
	}
}

func TestServe_SensitivityChangeAppliesToNextWindow(t *testing.T) {
	f := newFixture(t, nil)
	f.tr.text = "미친 소리"
	conn := (&fakeConn{}).
		audio(0.5, testWindow).
		audio(0.5, testWindow/2)
	conn.onRead = func(n int) {
		if n == 2 {
			if err := f.cat.SetSensitivity(3); err != nil {
				t.Errorf("SetSensitivity: %v", err)
			}
		}
	}

	if err := f.ctrl.Serve(context.Background(), conn, "ab12cd34"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(conn.out) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(conn.out))
	}
	if _, ok := conn.out[0].(models.CleanResult); !ok {
		t.Errorf("expected clean at level 2, got %T", conn.out[0])
	}
	msg, ok := conn.out[1].(models.DetectedResult)
	if !ok || msg.Pattern != "미친" {
		t.Errorf("expected detection at level 3, got %+v", conn.out[1])
	}
}

func TestServe_SessionMetrics(t *testing.T) {
	f := newFixture(t, nil)
	conn := (&fakeConn{}).audio(0.0005, testWindow)

	_ = f.ctrl.Serve(context.Background(), conn, "ab12cd34")

	if got := testutil.ToFloat64(f.metrics.SessionsTotal); got != 1 {
		t.Errorf("expected 1 session, got %v", got)
	}
	if got := testutil.ToFloat64(f.metrics.SessionsActive); got != 0 {
		t.Errorf("expected 0 active sessions, got %v", got)
	}
	if got := testutil.ToFloat64(f.metrics.WindowsAnalyzed.WithLabelValues(metrics.OutcomeNoActivity)); got != 1 {
		t.Errorf("expected 1 no-activity window, got %v", got)
	}
	if got := testutil.ToFloat64(f.metrics.AudioBytesReceived); got != 2*testWindow {
		t.Errorf("expected %d bytes, got %v", 2*testWindow, got)
	}
}

func TestServe_ConcurrentSessionsAreIsolated(t *testing.T) {
	tr := &blockingTranscriber{entered: make(chan struct{}), release: make(chan struct{})}
	ctrl, err := NewController(Deps{
		Catalog:     catalog.NewDefault(),
		Gate:        vad.DefaultGate(),
		Transcriber: tr,
		Recorder:    &fakeRecorder{},
		Verifier:    auth.Open{},
		Metrics:     metrics.NewMetricsWith(prometheus.NewRegistry()),
	}, Config{WindowSize: testWindow, MaxLength: 2 * testWindow, Backend: "test"})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}

	loud := (&fakeConn{}).audio(0.5, testWindow)
	loudDone := make(chan error, 1)
	go func() { loudDone <- ctrl.Serve(context.Background(), loud, "loud") }()
	<-tr.entered

	// The loud session is blocked in transcription; this one must still finish.
	quiet := (&fakeConn{}).audio(0.1, testWindow/2).audio(0.1, testWindow/2)
	if err := ctrl.Serve(context.Background(), quiet, "quiet"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(quiet.out) != 1 {
		t.Fatalf("expected 1 message, got %d", len(quiet.out))
	}
	clean, ok := quiet.out[0].(models.CleanResult)
	if !ok {
		t.Fatalf("expected CleanResult, got %T", quiet.out[0])
	}
	if math.Abs(clean.Energy-0.1) > 1e-3 {
		t.Errorf("expected energy near 0.1, got %v", clean.Energy)
	}

	close(tr.release)
	if err := <-loudDone; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	loud.mu.Lock()
	defer loud.mu.Unlock()
	if len(loud.out) != 1 {
		t.Fatalf("expected 1 message, got %d", len(loud.out))
	}
	if _, ok := loud.out[0].(models.DetectedResult); !ok {
		t.Errorf("expected DetectedResult, got %T", loud.out[0])
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.windows) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(tr.windows))
	}
	for _, w := range tr.windows {
		for _, v := range w {
			if math.Abs(float64(v-w[0])) > 1e-3 {
				t.Errorf("expected a window from one session only, got %v", w)
				break
			}
		}
	}
}
