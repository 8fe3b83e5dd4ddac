package session

import (
	"context"
	"time"

	"github.com/omniface/omniface-go/internal/analytics"
)

// Message types carried in the "type" field
const (
	TypeFrame = "frame"
	TypeError = "error"
)

// FaceMessage describes one annotated face of a frame
type FaceMessage struct {
	BBox       [4]int  `json:"bbox"` // x1, y1, x2, y2
	Name       string  `json:"name"`
	Similarity float32 `json:"similarity"`
	Emotion    string  `json:"emotion,omitempty"`
	QualityOK  bool    `json:"quality_ok"`
	PhotoPath  string  `json:"photo_path,omitempty"`
	Registered bool    `json:"registered"`
}

// FrameMessage is sent for every processed frame
type FrameMessage struct {
	Type      string            `json:"type"`
	Frame     string            `json:"frame"` // base64 JPEG
	Faces     []FaceMessage     `json:"faces"`
	FPS       float64           `json:"fps"`
	Timestamp float64           `json:"timestamp"` // unix seconds
	CameraID  int               `json:"camera_id"`
	SessionID string            `json:"session_id"`
	Mode      Mode              `json:"mode"`
	Summary   analytics.Summary `json:"summary"`
}

// ErrorMessage is sent once before a stream is closed abnormally
type ErrorMessage struct {
	Type   string `json:"type"`
	Detail string `json:"detail"`
}

// NewErrorMessage wraps detail in an error envelope
func NewErrorMessage(detail string) ErrorMessage {
	return ErrorMessage{Type: TypeError, Detail: detail}
}

// Sink delivers frame messages to the client. An error ends the stream.
type Sink interface {
	SendFrame(ctx context.Context, msg *FrameMessage) error
}

// SinkFunc adapts a function to Sink
type SinkFunc func(ctx context.Context, msg *FrameMessage) error

// SendFrame implements Sink
func (f SinkFunc) SendFrame(ctx context.Context, msg *FrameMessage) error {
	return f(ctx, msg)
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
