package inference

import (
	"fmt"
	"image"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/tphakala/go-tflite"
	"gocv.io/x/gocv"

	"github.com/omniface/omniface-go/internal/conf"
	"github.com/omniface/omniface-go/internal/errors"
	"github.com/omniface/omniface-go/internal/logger"
	"github.com/omniface/omniface-go/internal/vision"
)

const (
	// EmbedderInputSize is the square face size the embedder expects
	EmbedderInputSize = 112
	// DefaultMinScore drops weak detections
	DefaultMinScore = 0.5
)

// EmotionLabels are the classifier output classes in order
var EmotionLabels = []string{"angry", "disgust", "fear", "happy", "sad", "surprise", "neutral"}

// tfliteModel owns one interpreter. Interpreters are not safe for concurrent
// use, so every call holds mu.
type tfliteModel struct {
	path        string
	mu          sync.Mutex
	model       *tflite.Model
	options     *tflite.InterpreterOptions
	interpreter *tflite.Interpreter
}

func loadTFLite(path string, threads int) (*tfliteModel, error) {
	start := time.Now()
	model := tflite.NewModelFromFile(path)
	if model == nil {
		return nil, errors.New(fmt.Errorf("cannot load TensorFlow Lite model")).
			Component("inference").
			Category(errors.CategoryModelLoad).
			ModelContext(path, "").
			Timing("model-load", time.Since(start)).
			Build()
	}

	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	options := tflite.NewInterpreterOptions()
	options.SetNumThread(threads)
	options.SetErrorReporter(func(msg string, _ any) {
		GetLogger().Error("TFLite error",
			logger.String("model", path),
			logger.String("message", msg))
	}, nil)

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		options.Delete()
		model.Delete()
		return nil, errors.New(fmt.Errorf("cannot create interpreter")).
			Component("inference").
			Category(errors.CategoryModelInit).
			ModelContext(path, "").
			Build()
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		interpreter.Delete()
		options.Delete()
		model.Delete()
		return nil, errors.New(fmt.Errorf("tensor allocation failed: %v", status)).
			Component("inference").
			Category(errors.CategoryModelInit).
			ModelContext(path, "").
			Build()
	}

	GetLogger().Info("model loaded",
		logger.String("model", path),
		logger.Int("threads", threads),
		logger.Duration("load_time", time.Since(start)))

	return &tfliteModel{path: path, model: model, options: options, interpreter: interpreter}, nil
}

// inputSize returns height and width of an NHWC input tensor
func (m *tfliteModel) inputSize() (int, int, error) {
	in := m.interpreter.GetInputTensor(0)
	if in == nil || in.NumDims() != 4 {
		return 0, 0, fmt.Errorf("model %s: expected a 4-d input tensor", m.path)
	}
	return in.Dim(1), in.Dim(2), nil
}

func (m *tfliteModel) invoke() error {
	if status := m.interpreter.Invoke(); status != tflite.OK {
		return fmt.Errorf("tensor invoke failed: %v", status)
	}
	return nil
}

func (m *tfliteModel) delete() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.interpreter != nil {
		m.interpreter.Delete()
		m.options.Delete()
		m.model.Delete()
		m.interpreter = nil
	}
}

// TFLiteDetector runs an SSD-style face detector with post-processed outputs:
// boxes [1,N,4] as normalised ymin,xmin,ymax,xmax, classes, scores and count.
type TFLiteDetector struct {
	*tfliteModel
	MinScore float32
}

// NewTFLiteDetector loads the detector at path
func NewTFLiteDetector(path string, threads int, minScore float32) (*TFLiteDetector, error) {
	m, err := loadTFLite(path, threads)
	if err != nil {
		return nil, err
	}
	if m.interpreter.GetOutputTensorCount() < 4 {
		m.delete()
		return nil, errors.Newf("detector %s has %d outputs, want 4", path, m.interpreter.GetOutputTensorCount()).
			Component("inference").
			Category(errors.CategoryModelInit).
			Build()
	}
	if minScore <= 0 {
		minScore = DefaultMinScore
	}
	return &TFLiteDetector{tfliteModel: m, MinScore: minScore}, nil
}

// Detect implements Detector
func (d *TFLiteDetector) Detect(img gocv.Mat) ([]Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	h, w, err := d.inputSize()
	if err != nil {
		return nil, err
	}
	if h != w {
		return nil, fmt.Errorf("detector input %dx%d is not square", w, h)
	}

	in := d.interpreter.GetInputTensor(0)
	switch in.Type() {
	case tflite.UInt8:
		data, err := vision.BytesRGB(img, image.Rectangle{}, w)
		if err != nil {
			return nil, err
		}
		copy(in.UInt8s(), data)
	case tflite.Float32:
		data, err := vision.BlobRGB(img, image.Rectangle{}, w, 127.5, 1.0/127.5)
		if err != nil {
			return nil, err
		}
		copy(in.Float32s(), data)
	default:
		return nil, fmt.Errorf("unsupported detector input type %v", in.Type())
	}

	if err := d.invoke(); err != nil {
		return nil, err
	}

	boxes := d.interpreter.GetOutputTensor(0).Float32s()
	scores := d.interpreter.GetOutputTensor(2).Float32s()
	count := int(d.interpreter.GetOutputTensor(3).Float32s()[0])
	count = min(count, len(scores), len(boxes)/4)

	cols, rows := img.Cols(), img.Rows()
	var out []Detection
	for i := range count {
		if scores[i] < d.MinScore {
			continue
		}
		b := boxes[i*4 : i*4+4]
		rect := image.Rect(
			int(b[1]*float32(cols)), int(b[0]*float32(rows)),
			int(b[3]*float32(cols)), int(b[2]*float32(rows)),
		)
		rect = vision.Clamp(rect, cols, rows)
		if rect.Empty() {
			continue
		}
		out = append(out, Detection{Box: rect, Score: scores[i]})
	}
	return out, nil
}

// TFLiteEmbedder maps a 112x112 RGB face to an identity embedding
type TFLiteEmbedder struct {
	*tfliteModel
}

// NewTFLiteEmbedder loads the embedder at path
func NewTFLiteEmbedder(path string, threads int) (*TFLiteEmbedder, error) {
	m, err := loadTFLite(path, threads)
	if err != nil {
		return nil, err
	}
	return &TFLiteEmbedder{tfliteModel: m}, nil
}

// Dim returns the embedding length produced by the model
func (e *TFLiteEmbedder) Dim() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.interpreter.GetOutputTensor(0)
	return out.Dim(out.NumDims() - 1)
}

// Embed implements Embedder
func (e *TFLiteEmbedder) Embed(img gocv.Mat, box image.Rectangle) ([]float32, error) {
	blob, err := vision.BlobRGB(img, box, EmbedderInputSize, 127.5, 1.0/128)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	copy(e.interpreter.GetInputTensor(0).Float32s(), blob)
	if err := e.invoke(); err != nil {
		return nil, err
	}
	out := e.interpreter.GetOutputTensor(0)
	dim := out.Dim(out.NumDims() - 1)
	emb := make([]float32, dim)
	copy(emb, out.Float32s())
	return emb, nil
}

// TFLiteEmotion classifies a 48x48 grayscale face into EmotionLabels
type TFLiteEmotion struct {
	*tfliteModel
}

// NewTFLiteEmotion loads the emotion classifier at path
func NewTFLiteEmotion(path string, threads int) (*TFLiteEmotion, error) {
	m, err := loadTFLite(path, threads)
	if err != nil {
		return nil, err
	}
	return &TFLiteEmotion{tfliteModel: m}, nil
}

// Classify implements EmotionClassifier
func (c *TFLiteEmotion) Classify(img gocv.Mat, box image.Rectangle) (string, error) {
	input, err := vision.PrepareEmotion(img, box)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	copy(c.interpreter.GetInputTensor(0).Float32s(), input)
	if err := c.invoke(); err != nil {
		return "", err
	}
	return topEmotion(c.interpreter.GetOutputTensor(0).Float32s()), nil
}

// topEmotion returns the label of the highest scoring class
func topEmotion(scores []float32) string {
	best := -1
	for i := range min(len(scores), len(EmotionLabels)) {
		if best < 0 || scores[i] > scores[best] {
			best = i
		}
	}
	if best < 0 {
		return ""
	}
	return EmotionLabels[best]
}

// LoadModels loads the configured networks. The emotion model is optional.
func LoadModels(settings *conf.Settings) (*Models, func(), error) {
	threads := settings.Recognition.Threads

	det, closeDet, err := newDetector(conf.ResolvePath(settings.Models.Detector), threads, settings.Recognition.Detector.MinScore)
	if err != nil {
		return nil, nil, err
	}
	emb, err := NewTFLiteEmbedder(conf.ResolvePath(settings.Models.Embedder), threads)
	if err != nil {
		closeDet()
		return nil, nil, err
	}

	models := &Models{Detector: det, Embedder: emb}
	cleanup := []func(){closeDet, emb.delete}

	if settings.Models.Emotion != "" {
		emo, err := NewTFLiteEmotion(conf.ResolvePath(settings.Models.Emotion), threads)
		if err != nil {
			closeDet()
			emb.delete()
			return nil, nil, err
		}
		models.Emotion = emo
		cleanup = append(cleanup, emo.delete)
	} else {
		GetLogger().Info("emotion model not configured, emotions disabled")
	}

	return models, func() {
		for _, fn := range cleanup {
			fn()
		}
	}, nil
}

// newDetector picks the detector backend from the model file: ONNX files run
// on YuNet (with keypoints), anything else is treated as an SSD tflite model.
func newDetector(path string, threads int, minScore float32) (Detector, func(), error) {
	if strings.EqualFold(filepath.Ext(path), ".onnx") {
		det, err := NewYuNetDetector(path, minScore)
		if err != nil {
			return nil, nil, err
		}
		return det, det.Close, nil
	}

	GetLogger().Warn("tflite SSD detector reports no facial keypoints",
		logger.String("model", path))
	det, err := NewTFLiteDetector(path, threads, minScore)
	if err != nil {
		return nil, nil, err
	}
	return det, det.delete, nil
}
