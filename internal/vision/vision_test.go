package vision

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

// checkerboard builds a BGR image of 1px squares alternating between lo and hi
func checkerboard(t *testing.T, size int, lo, hi byte) gocv.Mat {
	t.Helper()
	data := make([]byte, size*size*3)
	for y := range size {
		for x := range size {
			v := lo
			if (x+y)%2 == 0 {
				v = hi
			}
			i := (y*size + x) * 3
			data[i], data[i+1], data[i+2] = v, v, v
		}
	}
	m, err := gocv.NewMatFromBytes(size, size, gocv.MatTypeCV8UC3, data)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func uniform(t *testing.T, size int, v float64) gocv.Mat {
	t.Helper()
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(v, v, v, 0), size, size, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

type fakeMeasurer struct {
	sharpness, brightness float64
	calls                 int
}

func (f *fakeMeasurer) Sharpness(gocv.Mat) float64 {
	f.calls++
	return f.sharpness
}

func (f *fakeMeasurer) Brightness(gocv.Mat) float64 {
	f.calls++
	return f.brightness
}

func TestQualityGateRejectsSmallFaceWithoutPixelWork(t *testing.T) {
	t.Parallel()

	frame := checkerboard(t, 100, 0, 255)
	m := &fakeMeasurer{sharpness: 1000, brightness: 200}
	gate := QualityGate{MinSize: DefaultMinSize, MinSharpness: DefaultMinSharpness, MinBrightness: DefaultMinBrightness, Measurer: m}

	v := gate.Check(frame, image.Rect(10, 10, 40, 40))
	assert.False(t, v.OK)
	assert.Equal(t, ReasonTooSmall, v.Reason)
	assert.Zero(t, m.calls)
}

func TestQualityGateOrder(t *testing.T) {
	t.Parallel()

	frame := checkerboard(t, 300, 0, 255)
	box := image.Rect(50, 50, 250, 250)

	tests := []struct {
		name       string
		sharpness  float64
		brightness float64
		wantOK     bool
		wantReason string
	}{
		{"blurry", 20, 200, false, ReasonBlurry},
		{"blurry and dark reports blurry", 20, 10, false, ReasonBlurry},
		{"dark", 500, 10, false, ReasonDark},
		{"good", 500, 200, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := QualityGate{MinSize: 50, MinSharpness: 100, MinBrightness: 50,
				Measurer: &fakeMeasurer{sharpness: tt.sharpness, brightness: tt.brightness}}
			v := gate.Check(frame, box)
			assert.Equal(t, tt.wantOK, v.OK)
			assert.Equal(t, tt.wantReason, v.Reason)
		})
	}
}

func TestGocvMeasurer(t *testing.T) {
	t.Parallel()

	gate := NewQualityGate(DefaultMinSize, DefaultMinSharpness, DefaultMinBrightness)

	flat := uniform(t, 200, 128)
	v := gate.Check(flat, image.Rect(0, 0, 200, 200))
	assert.Equal(t, ReasonBlurry, v.Reason, "a flat image has no Laplacian variance")

	sharp := checkerboard(t, 200, 0, 255)
	v = gate.Check(sharp, image.Rect(0, 0, 200, 200))
	assert.True(t, v.OK, "verdict %+v", v)

	dark := checkerboard(t, 200, 0, 40)
	v = gate.Check(dark, image.Rect(0, 0, 200, 200))
	assert.Equal(t, ReasonDark, v.Reason)
	assert.Greater(t, v.Sharpness, DefaultMinSharpness)
}

func TestEncodeAndCrop(t *testing.T) {
	t.Parallel()

	img := checkerboard(t, 120, 0, 255)

	full, err := EncodeJPEG(img, DefaultJPEGQuality)
	require.NoError(t, err)
	require.Greater(t, len(full), 2)
	assert.Equal(t, []byte{0xFF, 0xD8}, full[:2], "JPEG SOI marker")

	crop, err := CropJPEG(img, image.Rect(100, 100, 200, 200), DefaultJPEGQuality)
	require.NoError(t, err, "box is clamped to the image")
	decoded, err := gocv.IMDecode(crop, gocv.IMReadColor)
	require.NoError(t, err)
	defer decoded.Close()
	assert.Equal(t, 20, decoded.Cols())
	assert.Equal(t, 20, decoded.Rows())

	_, err = CropJPEG(img, image.Rect(200, 200, 300, 300), DefaultJPEGQuality)
	assert.Error(t, err)
}

func TestModelInputs(t *testing.T) {
	t.Parallel()

	img := uniform(t, 64, 255)

	emo, err := PrepareEmotion(img, image.Rect(0, 0, 64, 64))
	require.NoError(t, err)
	assert.Len(t, emo, EmotionInputSize*EmotionInputSize)

	blob, err := BlobRGB(img, image.Rectangle{}, 16, 127.5, 1.0/128)
	require.NoError(t, err)
	require.Len(t, blob, 16*16*3)
	assert.InDelta(t, (255-127.5)/128, blob[0], 1e-5)

	raw, err := BytesRGB(img, image.Rect(0, 0, 32, 32), 8)
	require.NoError(t, err)
	assert.Len(t, raw, 8*8*3)
	assert.Equal(t, byte(255), raw[0])
}

func TestAnnotateDrawsOnFrame(t *testing.T) {
	t.Parallel()

	img := uniform(t, 200, 0)
	before := img.Clone()
	defer before.Close()

	Annotate(&img, Label{
		Box:        image.Rect(50, 60, 150, 160),
		Name:       "ana",
		Similarity: 0.87,
		Emotion:    "happy",
		Known:      true,
		Recorded:   true,
		QualityOK:  true,
		Landmarks:  []image.Point{image.Pt(80, 90)},
	})

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(img, before, &diff)
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(diff, &gray, gocv.ColorBGRToGray)
	assert.Positive(t, gocv.CountNonZero(gray))
}
