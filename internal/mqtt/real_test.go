package mqtt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/valve-controller/internal/logic"
	"github.com/sweeney/valve-controller/internal/metrics"
)

// doneToken is a paho.Token that has already completed.
type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakePaho is a minimal paho.Client that records publishes and subscriptions.
type fakePaho struct {
	mu          sync.Mutex
	open        bool
	connectErrs []error
	connects    int
	published   []published
	handlers    map[string]paho.MessageHandler
}

func newFakePaho() *fakePaho {
	return &fakePaho{handlers: make(map[string]paho.MessageHandler)}
}

func (f *fakePaho) IsConnected() bool { return f.IsConnectionOpen() }

func (f *fakePaho) IsConnectionOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakePaho) setOpen(open bool) {
	f.mu.Lock()
	f.open = open
	f.mu.Unlock()
}

func (f *fakePaho) Connect() paho.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if len(f.connectErrs) > 0 {
		err := f.connectErrs[0]
		f.connectErrs = f.connectErrs[1:]
		return doneToken{err: err}
	}
	f.open = true
	return doneToken{}
}

func (f *fakePaho) Disconnect(uint) { f.setOpen(false) }

func (f *fakePaho) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, published{topic, qos, retained, payload.([]byte)})
	return doneToken{}
}

func (f *fakePaho) Subscribe(topic string, _ byte, cb paho.MessageHandler) paho.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = cb
	return doneToken{}
}

func (f *fakePaho) SubscribeMultiple(map[string]byte, paho.MessageHandler) paho.Token {
	return doneToken{}
}

func (f *fakePaho) Unsubscribe(...string) paho.Token { return doneToken{} }

func (f *fakePaho) AddRoute(string, paho.MessageHandler) {}

func (f *fakePaho) OptionsReader() paho.ClientOptionsReader { return paho.ClientOptionsReader{} }

func (f *fakePaho) sent() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.published...)
}

// fakeMessage is a minimal paho.Message.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

var testNow = time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)

func newTestClient(bufSize int) (*RealClient, *fakePaho, chan Inbound) {
	inbound := make(chan Inbound, 8)
	c := newClient(Options{
		Topics:     NewTopics(""),
		BufferSize: bufSize,
		NewBackOff: func() backoff.BackOff { return &backoff.ZeroBackOff{} },
	}, inbound, func() time.Time { return testNow })
	fp := newFakePaho()
	c.client = fp
	return c, fp, inbound
}

func TestRealClientPublishWhenConnected(t *testing.T) {
	c, fp, _ := newTestClient(10)
	fp.setOpen(true)

	tr := logic.Transition{
		Timestamp: testNow,
		From:      logic.StateClosedScheduled,
		To:        logic.StateOpenScheduled,
		Reason:    logic.ReasonSchedule,
	}
	if err := c.PublishTransition(tr); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sent := fp.sent()
	if len(sent) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(sent))
	}
	if sent[0].topic != "indra/events" || sent[0].qos != 1 || sent[0].retained {
		t.Errorf("unexpected publish: %+v", sent[0])
	}
}

func TestRealClientBuffersWhileDisconnected(t *testing.T) {
	c, fp, inbound := newTestClient(10)

	c.PublishSystem(SystemEvent{Timestamp: testNow, Event: EventStartup, Retained: true})
	c.PublishStatus([]byte(`{"valve":"closed"}`))
	if len(fp.sent()) != 0 {
		t.Fatal("nothing should be sent while disconnected")
	}
	if c.Buffered() != 2 {
		t.Fatalf("expected 2 buffered, got %d", c.Buffered())
	}

	fp.setOpen(true)
	c.onConnect(fp)

	sent := fp.sent()
	if len(sent) != 2 {
		t.Fatalf("expected 2 replayed, got %d", len(sent))
	}
	if sent[0].topic != "indra/system" || !sent[0].retained {
		t.Errorf("first replay: %+v", sent[0])
	}
	if sent[1].topic != "indra/status" {
		t.Errorf("second replay: %+v", sent[1])
	}
	if c.Buffered() != 0 {
		t.Errorf("buffer should be empty after replay")
	}

	select {
	case in := <-inbound:
		if in.Kind != InboundConnected {
			t.Errorf("expected connected event, got %s", in.Kind)
		}
	default:
		t.Error("expected connected event on inbound channel")
	}
}

func TestRealClientScheduleRequestNotBuffered(t *testing.T) {
	c, fp, _ := newTestClient(10)

	err := c.PublishScheduleRequest(42)
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if c.Buffered() != 0 {
		t.Error("schedule request must not be buffered")
	}

	fp.setOpen(true)
	if err := c.PublishScheduleRequest(42); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sent := fp.sent()
	if len(sent) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(sent))
	}
	if sent[0].topic != "indra/schedule_request" || sent[0].qos != 2 {
		t.Errorf("unexpected publish: %+v", sent[0])
	}
	if string(sent[0].payload) != `{"timestamp":42}` {
		t.Errorf("payload: got %s", sent[0].payload)
	}
}

func TestRealClientRoutesSubscriptions(t *testing.T) {
	c, fp, inbound := newTestClient(10)
	fp.setOpen(true)
	c.onConnect(fp)
	<-inbound // connected

	tests := []struct {
		topic string
		want  InboundKind
	}{
		{"indra/schedule", InboundSchedule},
		{"indra/manual", InboundManual},
	}
	for _, tt := range tests {
		handler, ok := fp.handlers[tt.topic]
		if !ok {
			t.Fatalf("no subscription for %s", tt.topic)
		}
		handler(fp, fakeMessage{topic: tt.topic, payload: []byte(`{}`)})

		in := <-inbound
		if in.Kind != tt.want {
			t.Errorf("%s: got kind %s, want %s", tt.topic, in.Kind, tt.want)
		}
		if string(in.Payload) != `{}` {
			t.Errorf("%s: payload %s", tt.topic, in.Payload)
		}
		if !in.Received.Equal(testNow) {
			t.Errorf("%s: received %v", tt.topic, in.Received)
		}
	}
}

func TestRealClientConnectionLost(t *testing.T) {
	c, fp, inbound := newTestClient(10)
	c.onConnectionLost(fp, errors.New("eof"))

	in := <-inbound
	if in.Kind != InboundDisconnected {
		t.Errorf("expected disconnected, got %s", in.Kind)
	}
}

// dropCounter records IncInboundDropped calls.
type dropCounter struct {
	metrics.NoopRecorder
	mu    sync.Mutex
	kinds []string
}

func (d *dropCounter) IncInboundDropped(kind string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.kinds = append(d.kinds, kind)
}

func TestRealClientInboundFullDrops(t *testing.T) {
	inbound := make(chan Inbound, 1)
	drops := &dropCounter{}
	c := newClient(Options{Topics: NewTopics(""), Metrics: drops}, inbound, time.Now)

	c.enqueue(Inbound{Kind: InboundManual})
	c.enqueue(Inbound{Kind: InboundSchedule}) // must not block

	if len(inbound) != 1 {
		t.Errorf("expected 1 queued, got %d", len(inbound))
	}
	if len(drops.kinds) != 1 || drops.kinds[0] != "schedule" {
		t.Errorf("dropped kinds: got %v, want [schedule]", drops.kinds)
	}
}

func TestRealClientInboundFullWithoutMetrics(t *testing.T) {
	inbound := make(chan Inbound)
	c := newClient(Options{Topics: NewTopics("")}, inbound, time.Now)
	c.enqueue(Inbound{Kind: InboundConnected})
}

func TestSuperviseRetriesUntilConnected(t *testing.T) {
	c, fp, _ := newTestClient(10)
	fp.connectErrs = []error{errors.New("refused"), errors.New("refused")}

	if err := c.Supervise(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fp.connects != 3 {
		t.Errorf("expected 3 connect attempts, got %d", fp.connects)
	}
	if !c.IsConnected() {
		t.Error("expected connected")
	}
}

func TestSuperviseStopsOnCancel(t *testing.T) {
	c, fp, _ := newTestClient(10)
	fp.connectErrs = make([]error, 1000)
	for i := range fp.connectErrs {
		fp.connectErrs[i] = errors.New("refused")
	}
	c.newBackOff = func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.Supervise(ctx); err == nil {
		t.Fatal("expected error after cancel")
	}
	if c.IsConnected() {
		t.Error("should not be connected")
	}
}

func TestTLSFilesEmpty(t *testing.T) {
	cfg, err := TLSFiles("", "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg != nil {
		t.Error("expected nil config when no files are set")
	}
}

func TestTLSFilesMissingCA(t *testing.T) {
	if _, err := TLSFiles(t.TempDir()+"/missing.pem", "", ""); err == nil {
		t.Error("expected error for missing CA file")
	}
}
