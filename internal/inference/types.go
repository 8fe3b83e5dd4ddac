// Package inference runs face detection, embedding, matching and emotion
// classification for camera frames. One Worker serves each tenant and drains
// its queue in batches.
package inference

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/omniface/omniface-go/internal/errors"
	"github.com/omniface/omniface-go/internal/modelcache"
)

// UnknownLabel names faces without an index match above the threshold
const UnknownLabel = "unknown"

// DefaultThreshold is the minimum inner product for a match
const DefaultThreshold = 0.55

// ErrWorkerStopped is returned for requests the worker will never serve
var ErrWorkerStopped = errors.NewStd("inference worker stopped")

// Detection is one face found by a Detector
type Detection struct {
	Box       image.Rectangle
	Score     float32
	Landmarks []image.Point
}

// Detector finds faces in a BGR frame
type Detector interface {
	Detect(img gocv.Mat) ([]Detection, error)
}

// Embedder computes the identity embedding of the face in box
type Embedder interface {
	Embed(img gocv.Mat, box image.Rectangle) ([]float32, error)
}

// EmotionClassifier names the expression of the face in box
type EmotionClassifier interface {
	Classify(img gocv.Mat, box image.Rectangle) (string, error)
}

// Models bundles the networks shared by every worker. Emotion may be nil.
type Models struct {
	Detector Detector
	Embedder Embedder
	Emotion  EmotionClassifier
}

// Face is the recognition outcome for one detected face
type Face struct {
	Box        image.Rectangle
	Landmarks  []image.Point
	Label      string
	Known      bool
	Similarity float32
	Emotion    string
}

// Result answers one Request. Err is set when the frame could not be processed.
type Result struct {
	Faces []Face
	Err   error
}

// Request asks a worker to recognise faces in Frame against Index.
// The worker owns Frame once Submit succeeds and closes it. Reply must have
// capacity for one result; it receives exactly one.
type Request struct {
	Frame gocv.Mat
	Index *modelcache.VectorIndex
	Reply chan Result
}

// NewRequest builds a request with a buffered reply channel
func NewRequest(frame gocv.Mat, index *modelcache.VectorIndex) *Request {
	return &Request{Frame: frame, Index: index, Reply: make(chan Result, 1)}
}
