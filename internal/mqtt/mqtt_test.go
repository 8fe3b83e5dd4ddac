package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omniface/omniface-go/internal/conf"
	"github.com/omniface/omniface-go/internal/errors"
	"github.com/omniface/omniface-go/internal/observability/metrics"
)

type published struct {
	topic   string
	payload []byte
}

type recordingClient struct {
	mu           sync.Mutex
	messages     []published
	disconnected bool
}

func (r *recordingClient) Connect(context.Context) error { return nil }
func (r *recordingClient) IsConnected() bool             { return true }

func (r *recordingClient) Publish(_ context.Context, topic string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, published{topic: topic, payload: payload})
	return nil
}

func (r *recordingClient) Disconnect() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnected = true
}

func TestPublisherTopicsAndPayload(t *testing.T) {
	t.Parallel()

	rc := &recordingClient{}
	p := NewPublisher(rc, "omniface/")
	assert.Equal(t, "omniface/4/attendance", p.Topic(4, KindAttendance))

	personID := uint(9)
	err := p.Publish(context.Background(), Event{
		Kind: KindAttendance, TenantID: 4, PersonID: &personID, Name: "ana",
		Status: "early", CameraID: 0, SessionID: "s1", Date: "2026-03-02", Time: "08:00:00",
	})
	require.NoError(t, err)
	require.NoError(t, p.Publish(context.Background(), Event{Kind: KindExit, TenantID: 4, Name: "ana"}))

	require.Len(t, rc.messages, 2)
	assert.Equal(t, "omniface/4/attendance", rc.messages[0].topic)
	assert.Equal(t, "omniface/4/exit", rc.messages[1].topic)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(rc.messages[0].payload, &decoded))
	assert.Equal(t, "ana", decoded["name"])
	assert.Equal(t, "early", decoded["status"])
	assert.InDelta(t, 9, decoded["person_id"], 0)

	var exit map[string]any
	require.NoError(t, json.Unmarshal(rc.messages[1].payload, &exit))
	assert.NotContains(t, exit, "status")

	p.Close()
	assert.True(t, rc.disconnected)
}

func TestPublisherRejectsUnknownKind(t *testing.T) {
	t.Parallel()

	p := NewPublisher(&recordingClient{}, "omniface")
	err := p.Publish(context.Background(), Event{Kind: "visit"})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestNewClientConfig(t *testing.T) {
	t.Parallel()

	settings := &conf.Settings{}
	settings.Main.Name = "gate-1"
	settings.MQTT = conf.MQTTSettings{Broker: "tcp://broker:1883", Username: "u", Password: "p", Retain: true}

	c, ok := NewClient(settings, nil).(*client)
	require.True(t, ok)
	assert.Equal(t, "gate-1", c.config.ClientID, "client id falls back to the instance name")
	assert.Equal(t, "omniface", c.config.Topic)
	assert.True(t, c.config.Retain)
	assert.False(t, c.IsConnected())
	assert.NotContains(t, c.String(), "p@")
}

func TestPublishWhileDisconnected(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := metrics.NewMQTTMetrics(reg)
	require.NoError(t, err)

	c := newClient(DefaultConfig(), m)
	err = c.Publish(context.Background(), "omniface/1/exit", []byte("{}"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryMQTTConnection))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Errors))

	c.Disconnect()
	c.Disconnect()
}

func TestConnectRejectsBadBrokerURL(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Broker = "://bad"
	c := newClient(cfg, nil)
	require.Error(t, c.Connect(context.Background()))

	// a second attempt inside the cooldown is refused without dialing
	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too recent")
}
