package vision

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

var (
	colorKnown       = color.RGBA{R: 80, G: 255, B: 50, A: 0}
	colorKnownBar    = color.RGBA{R: 20, G: 180, B: 20, A: 0}
	colorUnknown     = color.RGBA{R: 255, G: 50, B: 80, A: 0}
	colorUnknownBar  = color.RGBA{R: 180, G: 20, B: 20, A: 0}
	colorWhite       = color.RGBA{R: 255, G: 255, B: 255, A: 0}
	colorRegistered  = color.RGBA{R: 0, G: 255, B: 0, A: 0}
	colorLandmark    = color.RGBA{R: 0, G: 220, B: 255, A: 0}
	colorQualityWarn = color.RGBA{R: 255, G: 200, B: 0, A: 0}
)

const (
	cornerLength    = 30
	cornerThickness = 2
	cornerRadius    = 8
	labelBarHeight  = 35
)

// Label is everything drawn for one face
type Label struct {
	Box        image.Rectangle
	Name       string
	Similarity float32
	Emotion    string
	Known      bool
	Recorded   bool
	QualityOK  bool
	Landmarks  []image.Point
}

// Annotate draws the corner-decorated box, landmarks and label bar of one face onto img
func Annotate(img *gocv.Mat, l Label) {
	main, bar := colorUnknown, colorUnknownBar
	if l.Known {
		main, bar = colorKnown, colorKnownBar
	}

	box := l.Box.Canon()
	drawCorners(img, box, main)

	for _, p := range l.Landmarks {
		gocv.Circle(img, p, 2, colorLandmark, -1)
	}

	barRect := image.Rect(box.Min.X, box.Min.Y-labelBarHeight, box.Max.X, box.Min.Y)
	gocv.Rectangle(img, barRect, bar, -1)
	gocv.Rectangle(img, barRect, main, 1)

	text := fmt.Sprintf("%s (%.2f)", l.Name, l.Similarity)
	if l.Emotion != "" {
		text += " " + l.Emotion
	}
	gocv.PutText(img, text, image.Pt(box.Min.X+5, box.Min.Y-12), gocv.FontHersheySimplex, 0.5, colorWhite, 1)

	if l.Known && l.Recorded {
		gocv.PutText(img, "Registered", image.Pt(box.Min.X+5, box.Min.Y-45), gocv.FontHersheySimplex, 0.55, colorRegistered, 2)
	}
	if !l.QualityOK {
		gocv.PutText(img, "low quality", image.Pt(box.Min.X+5, box.Max.Y+18), gocv.FontHersheySimplex, 0.45, colorQualityWarn, 1)
	}
}

func drawCorners(img *gocv.Mat, box image.Rectangle, c color.RGBA) {
	length := min(cornerLength, box.Dx()/2, box.Dy()/2)
	x1, y1, x2, y2 := box.Min.X, box.Min.Y, box.Max.X, box.Max.Y

	corners := [4][3]image.Point{
		{image.Pt(x1, y1), image.Pt(x1+length, y1), image.Pt(x1, y1+length)},
		{image.Pt(x2, y1), image.Pt(x2-length, y1), image.Pt(x2, y1+length)},
		{image.Pt(x1, y2), image.Pt(x1+length, y2), image.Pt(x1, y2-length)},
		{image.Pt(x2, y2), image.Pt(x2-length, y2), image.Pt(x2, y2-length)},
	}
	for _, k := range corners {
		center, horizontal, vertical := k[0], k[1], k[2]
		gocv.Line(img, center, horizontal, colorWhite, cornerThickness+2)
		gocv.Line(img, center, vertical, colorWhite, cornerThickness+2)
		gocv.Line(img, center, horizontal, c, cornerThickness)
		gocv.Line(img, center, vertical, c, cornerThickness)
		gocv.Circle(img, center, cornerRadius, c, -1)
		gocv.Circle(img, center, cornerRadius-2, colorWhite, 1)
	}
}
