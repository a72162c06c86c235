package app

import (
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// publisher is the part of mqtt.Client the producer needs.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

func connectMQTT(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("MQTT connect %s: %w", broker, token.Error())
	}
	return client, nil
}

// publishJSON publishes v as a retained JSON message and waits for the broker.
func publishJSON(p publisher, topic string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("json marshal (%s): %w", topic, err)
	}
	if token := p.Publish(topic, 0, true, payload); token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT publish (%s): %w", topic, token.Error())
	}
	return nil
}

// subscribeJSON subscribes to topic and hands every decoded payload to handle.
// Payloads that do not decode into T are logged and dropped.
func subscribeJSON[T any](client mqtt.Client, component, topic string, handle func(T)) error {
	token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		decodeJSON(component, topic, msg.Payload(), handle)
	})
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("MQTT subscribe %s: %w", topic, token.Error())
	}
	log.Printf("%s: subscribed to %s", component, topic)
	return nil
}

func decodeJSON[T any](component, topic string, payload []byte, handle func(T)) bool {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		log.Warnf("%s: %s unmarshal error: %v", component, topic, err)
		return false
	}
	handle(v)
	return true
}
