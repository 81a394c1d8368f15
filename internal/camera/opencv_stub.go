//go:build !gocv

package camera

import "context"

// CameraSource captures a local webcam. This build has no OpenCV support;
// rebuild with -tags gocv to enable it.
type CameraSource struct {
	Device      int
	FaceCascade string
	EyeCascade  string
}

// Run always fails with ErrUnsupported
func (s *CameraSource) Run(ctx context.Context, publish PublishFunc) error {
	return ErrUnsupported
}
