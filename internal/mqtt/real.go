package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	paho "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/sweeney/valve-controller/internal/logic"
	"github.com/sweeney/valve-controller/internal/metrics"
	"github.com/sweeney/valve-controller/internal/schedule"
)

const (
	publishTimeout   = 5 * time.Second
	subscribeTimeout = 10 * time.Second
)

var errConnectTimeout = errors.New("mqtt: connect timeout")

// Options configures RealClient.
type Options struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	Topics         Topics
	TLS            *tls.Config
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	BufferSize     int

	// NewBackOff builds the policy for the initial connect. Defaults to an
	// exponential backoff capped at one minute that never gives up.
	NewBackOff func() backoff.BackOff

	// Metrics counts inbound messages dropped on a full queue. Optional.
	Metrics metrics.Recorder
}

// TLSFiles loads a client TLS configuration from PEM files. An empty caFile
// uses the system roots; empty certFile/keyFile disables client certificates.
func TLSFiles(caFile, certFile, keyFile string) (*tls.Config, error) {
	if caFile == "" && certFile == "" && keyFile == "" {
		return nil, nil
	}
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if caFile != "" {
		pem, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("read ca cert: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("ca cert %s: no certificates found", caFile)
		}
		cfg.RootCAs = pool
	}
	if certFile != "" || keyFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("load client cert: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}

// RealClient connects to an actual MQTT broker. It satisfies Publisher and
// ConnectionStatus and feeds subscriptions into an Inbound channel.
type RealClient struct {
	client     paho.Client
	topics     Topics
	inbound    chan<- Inbound
	now        func() time.Time
	newBackOff func() backoff.BackOff
	timeout    time.Duration
	metrics    metrics.Recorder

	mu      sync.Mutex
	offline *offlineQueue
}

// NewRealClient builds the paho client. It does not connect; call Supervise.
func NewRealClient(o Options, inbound chan<- Inbound) *RealClient {
	c := newClient(o, inbound, time.Now)

	will, _ := FormatSystemPayload(SystemEvent{
		Timestamp: c.now(),
		Event:     EventShutdown,
		Reason:    "MQTT_DISCONNECT",
	})

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(time.Minute).
		SetConnectTimeout(c.timeout).
		SetWill(o.Topics.System, string(will), 1, true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost)
	if o.KeepAlive > 0 {
		opts.SetKeepAlive(o.KeepAlive)
	}
	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}
	if o.TLS != nil {
		opts.SetTLSConfig(o.TLS)
	}

	c.client = paho.NewClient(opts)
	return c
}

func newClient(o Options, inbound chan<- Inbound, now func() time.Time) *RealClient {
	c := &RealClient{
		topics:     o.Topics,
		inbound:    inbound,
		now:        now,
		newBackOff: o.NewBackOff,
		timeout:    o.ConnectTimeout,
		metrics:    o.Metrics,
		offline:    newOfflineQueue(o.BufferSize),
	}
	if c.metrics == nil {
		c.metrics = metrics.NoopRecorder{}
	}
	if c.timeout <= 0 {
		c.timeout = 10 * time.Second
	}
	if c.newBackOff == nil {
		c.newBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxInterval = time.Minute
			b.MaxElapsedTime = 0
			return b
		}
	}
	return c
}

// Supervise performs the initial connect, retrying with backoff until it
// succeeds or ctx is cancelled. Later reconnects are handled by paho.
func (c *RealClient) Supervise(ctx context.Context) error {
	b := backoff.WithContext(c.newBackOff(), ctx)
	err := backoff.RetryNotify(func() error {
		token := c.client.Connect()
		if !token.WaitTimeout(c.timeout) {
			return errConnectTimeout
		}
		return token.Error()
	}, b, func(err error, next time.Duration) {
		log.WithError(err).WithField("retry_in", next).Warn("mqtt: connect failed")
	})
	if err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}
	return nil
}

// onConnect runs in its own goroutine for every (re)connect.
func (c *RealClient) onConnect(client paho.Client) {
	log.Info("mqtt: connected")
	subs := map[string]InboundKind{
		c.topics.Schedule: InboundSchedule,
		c.topics.Manual:   InboundManual,
	}
	for topic, kind := range subs {
		token := client.Subscribe(topic, 1, func(_ paho.Client, msg paho.Message) {
			c.enqueue(Inbound{Kind: kind, Payload: msg.Payload(), Received: c.now()})
		})
		if !token.WaitTimeout(subscribeTimeout) {
			log.WithField("topic", topic).Error("mqtt: subscribe timeout")
			continue
		}
		if err := token.Error(); err != nil {
			log.WithError(err).WithField("topic", topic).Error("mqtt: subscribe failed")
		}
	}
	c.flush(client)
	c.enqueue(Inbound{Kind: InboundConnected, Received: c.now()})
}

func (c *RealClient) onConnectionLost(_ paho.Client, err error) {
	log.WithError(err).Warn("mqtt: connection lost")
	c.enqueue(Inbound{Kind: InboundDisconnected, Received: c.now()})
}

func (c *RealClient) enqueue(in Inbound) {
	select {
	case c.inbound <- in:
	default:
		log.WithField("kind", in.Kind.String()).Warn("mqtt: inbound queue full, dropping message")
		c.metrics.IncInboundDropped(in.Kind.String())
	}
}

func (c *RealClient) flush(client paho.Client) {
	c.mu.Lock()
	pending := c.offline.drain()
	c.mu.Unlock()
	if len(pending) == 0 {
		return
	}
	log.WithField("count", len(pending)).Info("mqtt: replaying buffered messages")
	for _, m := range pending {
		if err := wait(client.Publish(m.topic, m.qos, m.retained, m.payload), m.topic); err != nil {
			log.WithError(err).Warn("mqtt: replay failed")
		}
	}
}

// publish sends now when connected and queues otherwise.
func (c *RealClient) publish(topic string, qos byte, retained bool, payload []byte) error {
	c.mu.Lock()
	if !c.client.IsConnectionOpen() {
		c.offline.push(pendingMsg{topic: topic, payload: payload, qos: qos, retained: retained})
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	return wait(c.client.Publish(topic, qos, retained, payload), topic)
}

func wait(token paho.Token, topic string) error {
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// PublishScheduleRequest is not buffered; a fresh request goes out on every connect.
func (c *RealClient) PublishScheduleRequest(version int64) error {
	if !c.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	payload, err := schedule.FormatRequest(version)
	if err != nil {
		return fmt.Errorf("format schedule request: %w", err)
	}
	return wait(c.client.Publish(c.topics.ScheduleRequest, 2, false, payload), c.topics.ScheduleRequest)
}

// PublishStatus sends a status response.
func (c *RealClient) PublishStatus(payload []byte) error {
	return c.publish(c.topics.Status, 1, false, payload)
}

// PublishTransition sends a valve transition.
func (c *RealClient) PublishTransition(tr logic.Transition) error {
	payload, err := FormatTransition(tr)
	if err != nil {
		return fmt.Errorf("format transition: %w", err)
	}
	return c.publish(c.topics.Events, 1, false, payload)
}

// PublishSystem sends a system lifecycle event.
func (c *RealClient) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return c.publish(c.topics.System, 1, event.Retained, payload)
}

// IsConnected reports whether the broker connection is currently up.
func (c *RealClient) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// Buffered returns the number of messages waiting for a connection.
func (c *RealClient) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offline.len()
}

// Close disconnects from the broker.
func (c *RealClient) Close() error {
	c.client.Disconnect(1000) // 1 second quiesce
	return nil
}
