package mqtt

import (
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// Client wraps the Paho MQTT client for the player.
type Client struct {
	client    paho.Client
	brokerURL string

	mu        sync.Mutex
	onConnect []func()
}

// NewClient creates a new MQTT client but does not connect.
func NewClient(brokerURL, clientID string) *Client {
	c := &Client{brokerURL: brokerURL}

	opts := paho.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetKeepAlive(30 * time.Second).
		SetOnConnectHandler(func(paho.Client) { c.connected() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection to %s lost: %v", brokerURL, err)
		})

	c.client = paho.NewClient(opts)
	return c
}

// OnConnect registers fn to run after every successful (re)connect.
// Subscriptions do not survive a reconnect, so this is where they belong.
func (c *Client) OnConnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnect = append(c.onConnect, fn)
}

func (c *Client) connected() {
	c.mu.Lock()
	fns := append([]func(){}, c.onConnect...)
	c.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Connect attempts to connect to the broker.
// Returns an error if connection fails, but does not block indefinitely.
func (c *Client) Connect() error {
	token := c.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return &ConnectTimeoutError{}
	}
	return token.Error()
}

// Subscribe subscribes to a topic with the given handler.
func (c *Client) Subscribe(topic string, handler paho.MessageHandler) error {
	token := c.client.Subscribe(topic, 1, handler)
	if !token.WaitTimeout(10 * time.Second) {
		return &SubscribeTimeoutError{Topic: topic}
	}
	return token.Error()
}

// Disconnect cleanly disconnects from the broker.
func (c *Client) Disconnect() {
	c.client.Disconnect(1000)
}

// IsConnected returns true if the client is connected.
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// BrokerURL returns the broker this client was created for.
func (c *Client) BrokerURL() string { return c.brokerURL }

// ConnectTimeoutError indicates connection timed out.
type ConnectTimeoutError struct{}

func (e *ConnectTimeoutError) Error() string {
	return "mqtt connect timeout"
}

// SubscribeTimeoutError indicates subscription timed out.
type SubscribeTimeoutError struct {
	Topic string
}

func (e *SubscribeTimeoutError) Error() string {
	return "mqtt subscribe timeout: " + e.Topic
}

// Start connects, logging errors but not crashing. The client keeps
// retrying in the background. Returns true if connected.
func (c *Client) Start() bool {
	if err := c.Connect(); err != nil {
		log.Printf("mqtt: failed to connect to %s: %v", c.brokerURL, err)
		return false
	}
	log.Printf("mqtt: connected to %s", c.brokerURL)
	return true
}
