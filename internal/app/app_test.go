package app

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/imu_fusion/internal/config"
	"github.com/relabs-tech/imu_fusion/internal/imu"
)

type fakeToken struct{ err error }

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type message struct {
	topic    string
	retained bool
	payload  []byte
}

// fakePublisher records publishes; topics listed in fail get a token error.
type fakePublisher struct {
	mu   sync.Mutex
	msgs []message
	fail map[string]error
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail[topic]; err != nil {
		return &fakeToken{err: err}
	}
	p.msgs = append(p.msgs, message{topic: topic, retained: retained, payload: payload.([]byte)})
	return &fakeToken{}
}

func (p *fakePublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, m := range p.msgs {
		out = append(out, m.topic)
	}
	return out
}

func (p *fakePublisher) decodeLast(topic string, v interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.msgs) - 1; i >= 0; i-- {
		if p.msgs[i].topic == topic {
			return json.Unmarshal(p.msgs[i].payload, v)
		}
	}
	return errors.New("no message on " + topic)
}

type scriptedSource struct {
	samples []imu.IMURaw
	err     error
}

func (s *scriptedSource) ReadRaw() (imu.IMURaw, error) {
	if len(s.samples) == 0 {
		return imu.IMURaw{}, s.err
	}
	r := s.samples[0]
	s.samples = s.samples[1:]
	return r, nil
}

// testConfig returns the built-in defaults.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Default()
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}
