package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/omniface/omniface-go/internal/errors"
)

// Event kinds, also the last topic segment
const (
	KindAttendance = "attendance"
	KindExit       = "exit"
)

// Event is the JSON payload published for every persisted record
type Event struct {
	Kind      string `json:"kind"`
	TenantID  uint   `json:"tenant_id"`
	PersonID  *uint  `json:"person_id,omitempty"`
	Name      string `json:"name"`
	Status    string `json:"status,omitempty"`
	Emotion   string `json:"emotion,omitempty"`
	CameraID  int    `json:"camera_id"`
	SessionID string `json:"session_id"`
	PhotoPath string `json:"photo_path,omitempty"`
	Date      string `json:"date"`
	Time      string `json:"time"`
}

// Publisher sends events below a base topic
type Publisher struct {
	client Client
	base   string
}

// NewPublisher wraps a connected client
func NewPublisher(c Client, baseTopic string) *Publisher {
	return &Publisher{client: c, base: strings.TrimSuffix(baseTopic, "/")}
}

// Topic returns <base>/<tenant>/<kind>
func (p *Publisher) Topic(tenantID uint, kind string) string {
	return fmt.Sprintf("%s/%d/%s", p.base, tenantID, kind)
}

// Publish marshals ev and sends it to its tenant topic
func (p *Publisher) Publish(ctx context.Context, ev Event) error {
	if ev.Kind != KindAttendance && ev.Kind != KindExit {
		return errors.Newf("unknown event kind %q", ev.Kind).
			Component("mqtt").
			Category(errors.CategoryValidation).
			Build()
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("kind", ev.Kind).
			Build()
	}
	return p.client.Publish(ctx, p.Topic(ev.TenantID, ev.Kind), payload)
}

// Close disconnects the underlying client
func (p *Publisher) Close() {
	p.client.Disconnect()
}
