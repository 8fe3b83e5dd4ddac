package camera

import (
	"fmt"
	"time"

	"gocv.io/x/gocv"
)

// Device is an opened capture device
type Device interface {
	// Read grabs the next frame into dst, reporting false on failure
	Read(dst *gocv.Mat) bool
	Close() error
}

// DeviceOpener opens devices by numeric id
type DeviceOpener interface {
	Open(id int) (Device, error)
}

// GocvOpener opens local video devices through OpenCV
type GocvOpener struct {
	Width  int
	Height int
	FPS    int
}

// Open implements DeviceOpener
func (o GocvOpener) Open(id int) (Device, error) {
	vc, err := gocv.OpenVideoCapture(id)
	if err != nil {
		return nil, err
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return nil, fmt.Errorf("video device %d could not be opened", id)
	}

	// keep the driver queue short so reads return the newest frame
	vc.Set(gocv.VideoCaptureBufferSize, 1)
	if o.Width > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(o.Width))
	}
	if o.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameHeight, float64(o.Height))
	}
	if o.FPS > 0 {
		vc.Set(gocv.VideoCaptureFPS, float64(o.FPS))
	}
	return vc, nil
}

// Frame is one captured image. The receiver owns it and must Close it.
type Frame struct {
	Mat        gocv.Mat
	CameraID   int
	Seq        uint64
	CapturedAt time.Time
}

// Close releases the native image memory
func (f *Frame) Close() {
	if f != nil {
		_ = f.Mat.Close()
	}
}
