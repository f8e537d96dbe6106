package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/i474232898/sleep-weather-logger/internal/sleeplog"
)

const publishTimeout = 5 * time.Second

var errStopped = errors.New("mqtt publisher stopped")

// Config describes the broker connection.
type Config struct {
	Broker   string // e.g. tcp://localhost:1883
	Topic    string
	ClientID string
}

// MQTTPublisher sends every appended record as JSON to a single topic.
type MQTTPublisher struct {
	client mqtt.Client
	topic  string
	logger *zap.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewMQTTPublisher(cfg Config, logger *zap.Logger) *MQTTPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		logger.Info("mqtt connected", zap.String("broker", cfg.Broker))
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", zap.Error(err))
	})

	return newPublisher(mqtt.NewClient(opts), cfg.Topic, logger)
}

func newPublisher(client mqtt.Client, topic string, logger *zap.Logger) *MQTTPublisher {
	if topic == "" {
		topic = "sleep-weather/records"
	}
	return &MQTTPublisher{
		client: client,
		topic:  topic,
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// Connect waits for the initial broker connection, respecting ctx and Close.
func (p *MQTTPublisher) Connect(ctx context.Context) error {
	select {
	case <-p.stopCh:
		return errStopped
	default:
	}
	if p.client.IsConnected() {
		return nil
	}

	token := p.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopCh:
			return errStopped
		default:
		}
	}
}

// Publish sends rec with QoS 1, not retained.
func (p *MQTTPublisher) Publish(ctx context.Context, rec sleeplog.Record) error {
	if !p.client.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	token := p.client.Publish(p.topic, 1, false, data)

	timer := time.NewTimer(publishTimeout)
	defer timer.Stop()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("publish timeout for topic %s", p.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish record: %w", err)
	}

	p.logger.Debug("published record", zap.String("topic", p.topic), zap.String("id", rec.ID))
	return nil
}

// Close disconnects from the broker. Safe to call more than once.
func (p *MQTTPublisher) Close() error {
	p.stopOnce.Do(func() {
		close(p.stopCh)
		p.client.Disconnect(250)
		p.logger.Info("mqtt disconnected")
	})
	return nil
}

// NopPublisher discards records.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, sleeplog.Record) error { return nil }

func (NopPublisher) Close() error { return nil }
