package vision

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/omniface/omniface-go/internal/errors"
)

// DefaultJPEGQuality is used for streamed frames and saved crops
const DefaultJPEGQuality = 80

// EmotionInputSize is the square side of the emotion model input
const EmotionInputSize = 48

func encodeError(err error, op string) error {
	return errors.New(err).
		Component("vision").
		Category(errors.CategoryImageEncode).
		Context("operation", op).
		Build()
}

func emptyRegion(op string, box image.Rectangle) error {
	return errors.Newf("empty image region").
		Component("vision").
		Category(errors.CategoryValidation).
		Context("operation", op).
		Context("box", box.String()).
		Build()
}

// EncodeJPEG encodes the whole image
func EncodeJPEG(img gocv.Mat, quality int) ([]byte, error) {
	if img.Empty() {
		return nil, emptyRegion("encode_jpeg", image.Rectangle{})
	}
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, encodeError(err, "encode_jpeg")
	}
	defer buf.Close()

	// the native buffer is freed on Close
	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

// CropJPEG encodes the region of img inside box
func CropJPEG(img gocv.Mat, box image.Rectangle, quality int) ([]byte, error) {
	clipped := Clamp(box, img.Cols(), img.Rows())
	if clipped.Empty() {
		return nil, emptyRegion("crop_jpeg", box)
	}
	region := img.Region(clipped)
	defer region.Close()
	return EncodeJPEG(region, quality)
}

// PrepareEmotion builds the 48x48 grayscale input of the emotion model:
// equalised histogram, scaled to [0,1].
func PrepareEmotion(img gocv.Mat, box image.Rectangle) ([]float32, error) {
	clipped := Clamp(box, img.Cols(), img.Rows())
	if clipped.Empty() {
		return nil, emptyRegion("prepare_emotion", box)
	}
	region := img.Region(clipped)
	defer region.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(region, &gray, gocv.ColorBGRToGray)

	eq := gocv.NewMat()
	defer eq.Close()
	gocv.EqualizeHist(gray, &eq)

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(eq, &resized, image.Pt(EmotionInputSize, EmotionInputSize), 0, 0, gocv.InterpolationArea)

	scaled := gocv.NewMat()
	defer scaled.Close()
	resized.ConvertToWithParams(&scaled, gocv.MatTypeCV32F, 1.0/255.0, 0)

	return copyFloats(scaled, "prepare_emotion")
}

// BlobRGB resizes the region at box to size x size, converts to RGB and
// normalises each channel as (x - mean) * scale, returning HWC order.
// An empty box uses the whole image.
func BlobRGB(img gocv.Mat, box image.Rectangle, size int, mean, scale float32) ([]float32, error) {
	resized, err := resizeRGB(img, box, size)
	if err != nil {
		return nil, err
	}
	defer resized.Close()

	scaled := gocv.NewMat()
	defer scaled.Close()
	resized.ConvertToWithParams(&scaled, gocv.MatTypeCV32FC3, scale, -mean*scale)

	return copyFloats(scaled, "blob_rgb")
}

// BytesRGB is BlobRGB for quantised models taking raw uint8 input
func BytesRGB(img gocv.Mat, box image.Rectangle, size int) ([]byte, error) {
	resized, err := resizeRGB(img, box, size)
	if err != nil {
		return nil, err
	}
	defer resized.Close()

	data, err := resized.DataPtrUint8()
	if err != nil {
		return nil, encodeError(err, "bytes_rgb")
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func resizeRGB(img gocv.Mat, box image.Rectangle, size int) (gocv.Mat, error) {
	if box.Empty() {
		box = image.Rect(0, 0, img.Cols(), img.Rows())
	}
	clipped := Clamp(box, img.Cols(), img.Rows())
	if clipped.Empty() {
		return gocv.Mat{}, emptyRegion("resize_rgb", box)
	}
	region := img.Region(clipped)
	defer region.Close()

	resized := gocv.NewMat()
	gocv.Resize(region, &resized, image.Pt(size, size), 0, 0, gocv.InterpolationLinear)

	rgb := gocv.NewMat()
	gocv.CvtColor(resized, &rgb, gocv.ColorBGRToRGB)
	resized.Close()
	return rgb, nil
}

func copyFloats(m gocv.Mat, op string) ([]float32, error) {
	data, err := m.DataPtrFloat32()
	if err != nil {
		return nil, encodeError(err, op)
	}
	out := make([]float32, len(data))
	copy(out, data)
	return out, nil
}
