package inference

import (
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/omniface/omniface-go/internal/errors"
	"github.com/omniface/omniface-go/internal/logger"
	"github.com/omniface/omniface-go/internal/vision"
)

const (
	// yunetRowLen is the width of one YuNet output row: box x, y, w, h, five
	// keypoints (right eye, left eye, nose tip, right and left mouth corner)
	// as x, y pairs, then the score
	yunetRowLen    = 15
	yunetKeypoints = 5

	yunetNMSThreshold = 0.3
	yunetTopK         = 50
)

// YuNetDetector runs the OpenCV YuNet face detector (ONNX) through gocv. It
// reports five facial keypoints per face.
type YuNetDetector struct {
	path     string
	minScore float32

	mu   sync.Mutex
	det  gocv.FaceDetectorYN
	size image.Point
}

// NewYuNetDetector loads the YuNet model at path
func NewYuNetDetector(path string, minScore float32) (*YuNetDetector, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.New(err).
			Component("inference").
			Category(errors.CategoryModelLoad).
			ModelContext(path, "").
			Build()
	}
	if minScore <= 0 {
		minScore = DefaultMinScore
	}

	size := image.Pt(320, 320)
	det := gocv.NewFaceDetectorYNWithParams(path, "", size, minScore, yunetNMSThreshold, yunetTopK, 0, 0)

	GetLogger().Info("model loaded",
		logger.String("model", path),
		logger.String("backend", "opencv-dnn"))

	return &YuNetDetector{path: path, minScore: minScore, det: det, size: size}, nil
}

// Detect implements Detector
func (d *YuNetDetector) Detect(img gocv.Mat) ([]Detection, error) {
	if img.Empty() {
		return nil, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if size := image.Pt(img.Cols(), img.Rows()); size != d.size {
		d.det.SetInputSize(size)
		d.size = size
	}

	faces := gocv.NewMat()
	defer faces.Close()

	d.det.Detect(img, &faces)
	if faces.Empty() || faces.Rows() == 0 {
		return nil, nil
	}
	if faces.Cols() != yunetRowLen {
		return nil, errors.Newf("detector %s returned rows of %d values, want %d", d.path, faces.Cols(), yunetRowLen).
			Component("inference").
			Category(errors.CategoryInference).
			Build()
	}

	values, err := faces.DataPtrFloat32()
	if err != nil {
		return nil, err
	}
	return parseYuNet(values, img.Cols(), img.Rows(), d.minScore), nil
}

// Close releases the OpenCV detector
func (d *YuNetDetector) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.det.Close()
}

// parseYuNet turns flat YuNet output rows into detections clamped to the
// frame. Rows below minScore or with an empty box are dropped.
func parseYuNet(values []float32, cols, rows int, minScore float32) []Detection {
	var out []Detection
	for off := 0; off+yunetRowLen <= len(values); off += yunetRowLen {
		row := values[off : off+yunetRowLen]
		score := row[yunetRowLen-1]
		if score < minScore {
			continue
		}

		x, y := int(row[0]), int(row[1])
		box := vision.Clamp(image.Rect(x, y, x+int(row[2]), y+int(row[3])), cols, rows)
		if box.Empty() {
			continue
		}

		marks := make([]image.Point, 0, yunetKeypoints)
		for k := range yunetKeypoints {
			p := image.Pt(int(row[4+2*k]), int(row[5+2*k]))
			if p.In(image.Rect(0, 0, cols, rows)) {
				marks = append(marks, p)
			}
		}
		out = append(out, Detection{Box: box, Score: score, Landmarks: marks})
	}
	return out
}
