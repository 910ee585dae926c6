package display

import (
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.viam.com/rdk/logging"

	"forcetrial/internal/acquisition"
)

// Publisher is the part of mqtt.Client the publisher needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Connect dials broker and returns a connected client.
func Connect(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connecting to mqtt broker %s: %w", broker, token.Error())
	}
	return client, nil
}

// MQTTPublisher publishes progress and window events as retained JSON
// messages under <prefix>/progress and <prefix>/window. Publishing never
// blocks the acquisition loop; failures are logged.
type MQTTPublisher struct {
	client Publisher
	prefix string
	logger logging.Logger
}

func NewMQTTPublisher(client Publisher, prefix string, logger logging.Logger) *MQTTPublisher {
	if prefix == "" {
		prefix = "forcetrial"
	}
	return &MQTTPublisher{client: client, prefix: prefix, logger: logger}
}

// Compile-time interface check.
var _ acquisition.Observer = (*MQTTPublisher)(nil)

func (p *MQTTPublisher) ProgressTopic() string { return p.prefix + "/progress" }
func (p *MQTTPublisher) WindowTopic() string   { return p.prefix + "/window" }

func (p *MQTTPublisher) OnProgress(ev acquisition.Progress) {
	p.publish(p.ProgressTopic(), ev)
}

func (p *MQTTPublisher) OnDisplay(w acquisition.Window) {
	p.publish(p.WindowTopic(), w)
}

func (p *MQTTPublisher) publish(topic string, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		p.logger.Warnf("encoding %s payload: %v", topic, err)
		return
	}
	token := p.client.Publish(topic, 0, true, payload)
	select {
	case <-token.Done():
		p.checkToken(topic, token)
	default:
		go func() {
			<-token.Done()
			p.checkToken(topic, token)
		}()
	}
}

func (p *MQTTPublisher) checkToken(topic string, token mqtt.Token) {
	if err := token.Error(); err != nil {
		p.logger.Warnf("publishing to %s: %v", topic, err)
	}
}
