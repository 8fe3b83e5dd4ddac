// Package vision holds the OpenCV image work of the recognition loop: face
// quality measurement, annotation, crops, encoding and model input tensors.
package vision

import (
	"image"

	"gocv.io/x/gocv"
)

// Rejection reasons reported by QualityGate
const (
	ReasonTooSmall = "too_small"
	ReasonBlurry   = "blurry"
	ReasonDark     = "dark"
	ReasonEmpty    = "empty"
)

// Default gate thresholds
const (
	DefaultMinSize       = 50
	DefaultMinSharpness  = 100.0
	DefaultMinBrightness = 50.0
)

// Verdict is the outcome of a quality check
type Verdict struct {
	OK         bool
	Reason     string // empty when OK
	Sharpness  float64
	Brightness float64
}

// Measurer computes pixel statistics of a face region
type Measurer interface {
	// Sharpness returns the variance of the Laplacian of the grayscale region
	Sharpness(region gocv.Mat) float64
	// Brightness returns the mean of the HSV value channel
	Brightness(region gocv.Mat) float64
}

// GocvMeasurer implements Measurer with OpenCV
type GocvMeasurer struct{}

// Sharpness implements Measurer
func (GocvMeasurer) Sharpness(region gocv.Mat) float64 {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(region, &gray, gocv.ColorBGRToGray)

	lap := gocv.NewMat()
	defer lap.Close()
	gocv.Laplacian(gray, &lap, gocv.MatTypeCV64F, 1, 1, 0, gocv.BorderDefault)

	mean := gocv.NewMat()
	defer mean.Close()
	stddev := gocv.NewMat()
	defer stddev.Close()
	gocv.MeanStdDev(lap, &mean, &stddev)

	sd := stddev.GetDoubleAt(0, 0)
	return sd * sd
}

// Brightness implements Measurer
func (GocvMeasurer) Brightness(region gocv.Mat) float64 {
	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(region, &hsv, gocv.ColorBGRToHSV)

	channels := gocv.Split(hsv)
	defer func() {
		for i := range channels {
			channels[i].Close()
		}
	}()
	if len(channels) < 3 {
		return 0
	}
	return channels[2].Mean().Val1
}

// QualityGate decides whether a face is good enough to be recorded
type QualityGate struct {
	MinSize       int
	MinSharpness  float64
	MinBrightness float64
	Measurer      Measurer // nil uses GocvMeasurer
}

// NewQualityGate builds a gate with the given thresholds
func NewQualityGate(minSize int, minSharpness, minBrightness float64) QualityGate {
	return QualityGate{
		MinSize:       minSize,
		MinSharpness:  minSharpness,
		MinBrightness: minBrightness,
		Measurer:      GocvMeasurer{},
	}
}

// Check evaluates the face at box. The size rule runs before any pixel work
// and the first failing rule decides the reason.
func (g QualityGate) Check(frame gocv.Mat, box image.Rectangle) Verdict {
	if box.Dx() < g.MinSize || box.Dy() < g.MinSize {
		return Verdict{Reason: ReasonTooSmall}
	}

	clipped := Clamp(box, frame.Cols(), frame.Rows())
	if clipped.Empty() {
		return Verdict{Reason: ReasonEmpty}
	}

	m := g.Measurer
	if m == nil {
		m = GocvMeasurer{}
	}

	region := frame.Region(clipped)
	defer region.Close()

	v := Verdict{Sharpness: m.Sharpness(region)}
	if v.Sharpness < g.MinSharpness {
		v.Reason = ReasonBlurry
		return v
	}
	v.Brightness = m.Brightness(region)
	if v.Brightness < g.MinBrightness {
		v.Reason = ReasonDark
		return v
	}
	v.OK = true
	return v
}

// Clamp intersects box with an image of the given size
func Clamp(box image.Rectangle, cols, rows int) image.Rectangle {
	return box.Canon().Intersect(image.Rect(0, 0, cols, rows))
}
