package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

const (
	defaultPrefix     = "quadenc"
	disconnectTimeout = 2 * time.Second
)

// Client wraps the MQTT client with encoder status and control topics.
type Client struct {
	client       paho.Client
	clientID     string
	prefix       string
	enabled      bool
	onConnect    func()
	onDisconnect func()
	onControl    func(verb string, payload []byte)
}

// Config holds MQTT connection settings.
type Config struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	CACert      string `yaml:"ca_cert"`
	ClientCert  string `yaml:"client_cert"`
	ClientKey   string `yaml:"client_key"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// Handlers holds callback functions for MQTT events.
type Handlers struct {
	OnConnect    func()
	OnDisconnect func()

	// OnControl receives messages on <prefix>/control/node/<client_id>/<verb>.
	OnControl func(verb string, payload []byte)
}

// New creates a new MQTT client. Returns a disabled no-op client if host is empty.
func New(cfg Config, clientID string, handlers Handlers) (*Client, error) {
	c := &Client{
		clientID:     clientID,
		prefix:       cfg.TopicPrefix,
		onConnect:    handlers.OnConnect,
		onDisconnect: handlers.OnDisconnect,
		onControl:    handlers.OnControl,
	}
	if c.prefix == "" {
		c.prefix = defaultPrefix
	}

	if cfg.Host == "" {
		c.enabled = false
		log.Println("MQTT disabled (no host configured)")
		return c, nil
	}

	c.enabled = true

	var broker string
	var tlsConfig *tls.Config

	if cfg.CACert != "" || cfg.ClientCert != "" {
		if cfg.Port == 0 {
			cfg.Port = 8883
		}
		broker = fmt.Sprintf("ssl://%s:%d", cfg.Host, cfg.Port)

		var err error
		tlsConfig, err = buildTLSConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("build TLS config: %w", err)
		}
	} else {
		if cfg.Port == 0 {
			cfg.Port = 1883
		}
		broker = fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)
		log.Println("MQTT using non-TLS connection")
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetKeepAlive(60 * time.Second).
		SetConnectionLostHandler(c.handleConnectionLost).
		SetOnConnectHandler(c.handleConnect).
		SetDefaultPublishHandler(c.handleMessage)

	if tlsConfig != nil {
		opts.SetTLSConfig(tlsConfig)
	}

	c.client = paho.NewClient(opts)

	paho.ERROR = log.New(os.Stdout, "[MQTT ERROR] ", 0)
	paho.CRITICAL = log.New(os.Stdout, "[MQTT CRIT] ", 0)
	paho.WARN = log.New(os.Stdout, "[MQTT WARN] ", 0)

	return c, nil
}

func buildTLSConfig(cfg Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{}

	if cfg.CACert != "" {
		caCert, err := os.ReadFile(cfg.CACert)
		if err != nil {
			return nil, fmt.Errorf("read CA cert: %w", err)
		}
		caPool := x509.NewCertPool()
		if !caPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("no certificates in %s", cfg.CACert)
		}
		tlsConfig.RootCAs = caPool
	}

	if cfg.ClientCert != "" && cfg.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCert, cfg.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("load client cert: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

// StatusTopic returns <prefix>/status/node/<client_id>/<name>.
func (c *Client) StatusTopic(name string) string {
	return fmt.Sprintf("%s/status/node/%s/%s", c.prefix, c.clientID, name)
}

// ControlTopic returns <prefix>/control/node/<client_id>/<verb>.
func (c *Client) ControlTopic(verb string) string {
	return fmt.Sprintf("%s/control/node/%s/%s", c.prefix, c.clientID, verb)
}

// controlVerb extracts the verb from a control topic for this node.
func (c *Client) controlVerb(topic string) (string, bool) {
	base := c.ControlTopic("")
	if !strings.HasPrefix(topic, base) {
		return "", false
	}
	verb := strings.TrimPrefix(topic, base)
	if verb == "" || strings.Contains(verb, "/") {
		return "", false
	}
	return verb, true
}

// Connect connects to the MQTT broker. Control topics are subscribed on every
// (re)connect. If disabled, calls onConnect immediately.
func (c *Client) Connect() error {
	if !c.enabled {
		if c.onConnect != nil {
			c.onConnect()
		}
		return nil
	}

	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("connect: %w", token.Error())
	}
	log.Println("MQTT connected")
	return nil
}

// Disconnect disconnects from the MQTT broker. No-op if disabled. Gives up
// after disconnectTimeout if paho is stuck in a connect retry.
func (c *Client) Disconnect() {
	if !c.enabled || c.client == nil {
		return
	}

	done := make(chan struct{})
	go func() {
		c.client.Disconnect(250)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(disconnectTimeout):
		log.Println("MQTT disconnect timed out")
	}
}

// Subscribe subscribes to a topic. No-op if disabled.
func (c *Client) Subscribe(topic string) error {
	if !c.enabled {
		return nil
	}

	if token := c.client.Subscribe(topic, 0, nil); token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", topic, token.Error())
	}
	return nil
}

// Publish publishes a message to a topic. No-op if disabled.
func (c *Client) Publish(topic string, payload string) {
	if !c.enabled {
		return
	}
	c.client.Publish(topic, 0, false, payload)
}

// PublishStatus publishes v as JSON on the status topic name.
func (c *Client) PublishStatus(name string, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s status: %w", name, err)
	}
	c.Publish(c.StatusTopic(name), string(b))
	return nil
}

// IsEnabled returns whether MQTT is enabled.
func (c *Client) IsEnabled() bool {
	return c.enabled
}

func (c *Client) handleConnect(client paho.Client) {
	log.Println("MQTT connection established")
	if err := c.Subscribe(c.ControlTopic("+")); err != nil {
		log.Printf("Subscribe error: %v", err)
	}
	if c.onConnect != nil {
		c.onConnect()
	}
}

func (c *Client) handleConnectionLost(client paho.Client, err error) {
	log.Printf("MQTT connection lost: %v", err)
	if c.onDisconnect != nil {
		c.onDisconnect()
	}
}

func (c *Client) handleMessage(client paho.Client, msg paho.Message) {
	c.dispatch(msg.Topic(), msg.Payload())
}

func (c *Client) dispatch(topic string, payload []byte) {
	verb, ok := c.controlVerb(topic)
	if !ok {
		return
	}
	if c.onControl != nil {
		c.onControl(verb, payload)
	}
}
