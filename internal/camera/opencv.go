//go:build gocv

package camera

import (
	"context"
	"fmt"
	"image"
	"log"
	"sort"
	"time"

	"gocv.io/x/gocv"

	"eyescroll/internal/gaze"
)

// CameraSource captures a local webcam and finds the face and eyes with
// OpenCV Haar cascades.
type CameraSource struct {
	Device      int
	FaceCascade string
	EyeCascade  string
}

// Run captures frames until ctx is done or the camera stops delivering
func (s *CameraSource) Run(ctx context.Context, publish PublishFunc) error {
	webcam, err := gocv.OpenVideoCapture(s.Device)
	if err != nil {
		return fmt.Errorf("camera: open device %d: %w", s.Device, err)
	}
	defer webcam.Close()

	faces := gocv.NewCascadeClassifier()
	defer faces.Close()
	if !faces.Load(s.FaceCascade) {
		return fmt.Errorf("camera: load face cascade %s", s.FaceCascade)
	}

	eyes := gocv.NewCascadeClassifier()
	defer eyes.Close()
	if !eyes.Load(s.EyeCascade) {
		return fmt.Errorf("camera: load eye cascade %s", s.EyeCascade)
	}

	img := gocv.NewMat()
	defer img.Close()
	gray := gocv.NewMat()
	defer gray.Close()

	log.Printf("Camera: Capturing from device %d", s.Device)

	var seq uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if ok := webcam.Read(&img); !ok {
			return fmt.Errorf("camera: device %d closed", s.Device)
		}
		if img.Empty() {
			continue
		}

		gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)
		seq++
		publish(NewFrame(seq, time.Now(), detectSample(gray, &faces, &eyes), nil))
	}
}

// detectSample finds the largest face and the two largest eyes in its upper
// part. It returns nil unless both eyes are found.
func detectSample(gray gocv.Mat, faces, eyes *gocv.CascadeClassifier) *gaze.Sample {
	found := faces.DetectMultiScale(gray)
	if len(found) == 0 {
		return nil
	}
	face := largest(found)

	roi := gray.Region(face)
	defer roi.Close()

	var candidates []image.Rectangle
	for _, e := range eyes.DetectMultiScale(roi) {
		if center(e).Y < float64(face.Dy())*0.6 {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) < 2 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		return area(candidates[i]) > area(candidates[j])
	})

	a, b := center(candidates[0]), center(candidates[1])
	// The subject's left eye appears on the right of the image
	if a.X < b.X {
		a, b = b, a
	}
	offset := gaze.Point{X: float64(face.Min.X), Y: float64(face.Min.Y)}

	return &gaze.Sample{
		LeftEye:  gaze.Point{X: a.X + offset.X, Y: a.Y + offset.Y},
		RightEye: gaze.Point{X: b.X + offset.X, Y: b.Y + offset.Y},
		Face: gaze.Rect{
			Left:   float64(face.Min.X),
			Top:    float64(face.Min.Y),
			Right:  float64(face.Max.X),
			Bottom: float64(face.Max.Y),
		},
	}
}

func largest(rects []image.Rectangle) image.Rectangle {
	best := rects[0]
	for _, r := range rects[1:] {
		if area(r) > area(best) {
			best = r
		}
	}
	return best
}

func area(r image.Rectangle) int {
	return r.Dx() * r.Dy()
}

func center(r image.Rectangle) gaze.Point {
	return gaze.Point{
		X: float64(r.Min.X+r.Max.X) / 2,
		Y: float64(r.Min.Y+r.Max.Y) / 2,
	}
}
