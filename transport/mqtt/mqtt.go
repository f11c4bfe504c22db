// Package mqtt is the transport for the installation's MQTT broker.
package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ambitiousfew/stationlink/log"
	"github.com/ambitiousfew/stationlink/transport"
	paho "github.com/eclipse/paho.mqtt.golang"
)

const name = "mqtt"

// Option configures a Transport.
type Option func(*Transport)

// WithClientID sets the MQTT client id, it must be unique per broker.
func WithClientID(id string) Option {
	return func(t *Transport) {
		t.clientID = id
	}
}

// WithCredentials sets the username and password sent on connect.
func WithCredentials(username, password string) Option {
	return func(t *Transport) {
		t.username = username
		t.password = password
	}
}

// WithTLS enables TLS with cfg.
func WithTLS(cfg *tls.Config) Option {
	return func(t *Transport) {
		t.tlsConfig = cfg
	}
}

// WithQoS sets the quality of service for subscriptions and publishes, 0 by default.
func WithQoS(qos byte) Option {
	return func(t *Transport) {
		if qos <= 2 {
			t.qos = qos
		}
	}
}

// WithConnectTimeout bounds the connect handshake.
func WithConnectTimeout(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.connectTimeout = d
		}
	}
}

// WithLogger sets the transport logger.
func WithLogger(logger log.Logger) Option {
	return func(t *Transport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// Transport is a paho MQTT client. It reconnects on its own and subscribes
// every topic again once the connection is back.
type Transport struct {
	broker         string
	clientID       string
	username       string
	password       string
	tlsConfig      *tls.Config
	qos            byte
	connectTimeout time.Duration
	logger         log.Logger
	newClient      func(*paho.ClientOptions) paho.Client

	mu      sync.Mutex
	client  paho.Client
	handler transport.Handler
	topics  map[string]struct{}
}

var _ transport.Transport = (*Transport)(nil)

// New returns a transport for broker, a URL such as tcp://broker.local:1883.
func New(broker string, opts ...Option) *Transport {
	t := &Transport{
		broker:         broker,
		clientID:       "stationlink",
		connectTimeout: 10 * time.Second,
		logger:         log.Noop(),
		newClient:      paho.NewClient,
		topics:         make(map[string]struct{}),
	}

	for _, opt := range opts {
		opt(t)
	}
	return t
}

// BrokerURL builds the broker URL from an address and port. An address that
// already carries a scheme is returned untouched, a zero port picks the MQTT default.
func BrokerURL(address string, port int, useTLS bool) string {
	if strings.Contains(address, "://") {
		return address
	}

	scheme, defaultPort := "tcp", 1883
	if useTLS {
		scheme, defaultPort = "ssl", 8883
	}
	if port == 0 {
		port = defaultPort
	}
	return scheme + "://" + address + ":" + strconv.Itoa(port)
}

func (t *Transport) SetHandler(h transport.Handler) {
	t.mu.Lock()
	t.handler = h
	t.mu.Unlock()
}

func (t *Transport) Connect(ctx context.Context) error {
	opts := paho.NewClientOptions().
		AddBroker(t.broker).
		SetClientID(t.clientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectTimeout(t.connectTimeout).
		SetOrderMatters(true).
		SetDefaultPublishHandler(t.onMessage).
		SetOnConnectHandler(t.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			t.logger.Log(log.LevelWarning, "mqtt connection lost, reconnecting", log.String("broker", t.broker), log.Error("error", err))
		})
	if t.username != "" {
		opts.SetUsername(t.username)
		opts.SetPassword(t.password)
	}
	if t.tlsConfig != nil {
		opts.SetTLSConfig(t.tlsConfig)
	}

	client := t.newClient(opts)
	if err := wait(ctx, client.Connect()); err != nil {
		return transport.OpError{Transport: name, Action: transport.ActionConnect, Topic: t.broker, Err: err}
	}

	t.mu.Lock()
	t.client = client
	t.mu.Unlock()

	t.logger.Log(log.LevelInfo, "mqtt connected", log.String("broker", t.broker), log.String("client_id", t.clientID))
	return nil
}

func (t *Transport) Disconnect(_ context.Context) error {
	t.mu.Lock()
	client := t.client
	t.client = nil
	t.mu.Unlock()

	if client != nil {
		client.Disconnect(250)
	}
	return nil
}

func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client != nil && t.client.IsConnectionOpen()
}

// Subscribe records topic for resubscription and subscribes it when connected.
func (t *Transport) Subscribe(ctx context.Context, topicName string) error {
	t.mu.Lock()
	t.topics[topicName] = struct{}{}
	client := t.client
	t.mu.Unlock()

	if client == nil || !client.IsConnectionOpen() {
		return transport.OpError{Transport: name, Action: transport.ActionSubscribe, Topic: topicName, Err: transport.ErrNotConnected}
	}
	if err := wait(ctx, client.Subscribe(topicName, t.qos, t.onMessage)); err != nil {
		return transport.OpError{Transport: name, Action: transport.ActionSubscribe, Topic: topicName, Err: err}
	}
	return nil
}

func (t *Transport) Unsubscribe(ctx context.Context, topicName string) error {
	t.mu.Lock()
	delete(t.topics, topicName)
	client := t.client
	t.mu.Unlock()

	if client == nil || !client.IsConnectionOpen() {
		return nil
	}
	if err := wait(ctx, client.Unsubscribe(topicName)); err != nil {
		return transport.OpError{Transport: name, Action: transport.ActionUnsubscribe, Topic: topicName, Err: err}
	}
	return nil
}

func (t *Transport) Publish(ctx context.Context, topicName string, payload []byte) error {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()

	if client == nil || !client.IsConnectionOpen() {
		return transport.OpError{Transport: name, Action: transport.ActionPublish, Topic: topicName, Err: transport.ErrNotConnected}
	}
	if err := wait(ctx, client.Publish(topicName, t.qos, false, payload)); err != nil {
		return transport.OpError{Transport: name, Action: transport.ActionPublish, Topic: topicName, Err: err}
	}
	return nil
}

// onConnect runs on every (re)connect. The session is clean, so every known
// topic is subscribed again.
func (t *Transport) onConnect(client paho.Client) {
	t.mu.Lock()
	topics := make([]string, 0, len(t.topics))
	for topicName := range t.topics {
		topics = append(topics, topicName)
	}
	t.mu.Unlock()

	for _, topicName := range topics {
		topicName := topicName
		token := client.Subscribe(topicName, t.qos, t.onMessage)
		go func() {
			if !token.WaitTimeout(t.connectTimeout) || token.Error() != nil {
				t.logger.Log(log.LevelError, "error resubscribing", log.String("topic", topicName), log.Error("error", token.Error()))
			}
		}()
	}
	if len(topics) > 0 {
		t.logger.Log(log.LevelInfo, "mqtt resubscribed", log.Int("topics", len(topics)))
	}
}

func (t *Transport) onMessage(_ paho.Client, m paho.Message) {
	t.mu.Lock()
	h := t.handler
	t.mu.Unlock()

	if h == nil {
		return
	}
	h.HandleMessage(m.Topic(), m.Payload())
}

func wait(ctx context.Context, token paho.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return fmt.Errorf("waiting for broker: %w", ctx.Err())
	}
}
