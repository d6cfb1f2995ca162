package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/5usu/depthcam/internal/logger"
	"github.com/5usu/depthcam/internal/model"
)

const publishTimeout = 2 * time.Second

// MQTTEmitter publishes FPS reports to an MQTT broker.
type MQTTEmitter struct {
	broker   string
	clientID string
	topic    string
	client   mqtt.Client
	logger   *logger.Logger

	mu        sync.RWMutex
	published uint64
	errors    uint64
	connected bool
}

// EmitterStats contains emitter statistics.
type EmitterStats struct {
	Connected bool   `json:"connected"`
	Published uint64 `json:"published"`
	Errors    uint64 `json:"errors"`
}

func NewMQTTEmitter(broker, clientID, topic string, logger *logger.Logger) *MQTTEmitter {
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}
	return &MQTTEmitter{
		broker:   broker,
		clientID: clientID,
		topic:    topic,
		logger:   logger,
	}
}

// Connect establishes the broker connection. Later drops reconnect on
// their own.
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(e.broker)
	opts.SetClientID(e.clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.setConnected(true)
		e.logger.Info("MQTT connection established (%s as %s)", e.broker, e.clientID)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.setConnected(false)
		e.logger.Warning("MQTT connection lost, will auto-reconnect: %v", err)
	}

	e.client = mqtt.NewClient(opts)
	token := e.client.Connect()

	select {
	case <-token.Done():
	case <-time.After(5 * time.Second):
		return fmt.Errorf("mqtt connection timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	e.setConnected(true)
	return nil
}

// Observe publishes r without waiting for the broker.
func (e *MQTTEmitter) Observe(r model.Report) {
	if !e.isConnected() {
		e.countError()
		return
	}

	payload, err := json.Marshal(r)
	if err != nil {
		e.countError()
		return
	}

	token := e.client.Publish(e.topic, 0, false, payload)
	go func() {
		if !token.WaitTimeout(publishTimeout) || token.Error() != nil {
			e.countError()
			return
		}
		e.mu.Lock()
		e.published++
		e.mu.Unlock()
	}()
}

// Disconnect closes the MQTT connection.
func (e *MQTTEmitter) Disconnect() {
	if e.client != nil && e.client.IsConnected() {
		e.client.Disconnect(250)
		e.logger.Info("MQTT disconnected")
	}
	e.setConnected(false)
}

func (e *MQTTEmitter) Stats() EmitterStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return EmitterStats{Connected: e.connected, Published: e.published, Errors: e.errors}
}

func (e *MQTTEmitter) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *MQTTEmitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}
