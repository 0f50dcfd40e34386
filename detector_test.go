package gptag

import (
	"errors"
	"image"
	"math"
	"testing"

	"go.viam.com/rdk/logging"
)

// endToEndFrame builds a frame with the test tag fronto-parallel at 0.5 m:
// with f=900 and a 100 mm tag the marker spans 180 px around the image
// center.
func endToEndFrame(t *testing.T, rotation int) (*image.Gray, CameraIntrinsics) {
	t.Helper()
	intr := testIntrinsics()
	corners := projectedCorners(intr, 0.1, 0.5)

	marker, err := Render(testPayload(), DefaultConfig().Locator.TemplateCellPx)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	frame := image.NewGray(image.Rect(0, 0, 640, 480))
	for i := range frame.Pix {
		frame.Pix[i] = 255
	}
	warpInto(frame, rot90CW(marker.Image().(*image.Gray), rotation), corners)
	return frame, intr
}

func TestDetector_EndToEnd(t *testing.T) {
	frame, intr := endToEndFrame(t, 0)
	det := NewDetector(nil, logging.NewTestLogger(t))

	res, err := det.Detect(frame, intr)
	if err != nil {
		t.Fatalf("Detect returned input error: %v", err)
	}
	if !res.Detected() {
		t.Fatalf("detection failed: %v", res.Err)
	}

	if got := *res.Payload; got != testPayload() {
		t.Errorf("payload mismatch:\n got %+v\nwant %+v", got, testPayload())
	}

	pose := res.Pose
	if pose.Frame != FrameCamera {
		t.Errorf("pose frame = %v", pose.Frame)
	}
	if math.Abs(pose.Translation.Z-0.5) > 0.02 {
		t.Errorf("Z = %.4f m, want 0.5", pose.Translation.Z)
	}
	if math.Abs(pose.Translation.X) > 0.01 || math.Abs(pose.Translation.Y) > 0.01 {
		t.Errorf("lateral offset = (%.4f, %.4f) m, want near zero", pose.Translation.X, pose.Translation.Y)
	}

	for _, stage := range []string{"locate", "rectify", "read_bits", "decode", "pose"} {
		if _, ok := res.Timings[stage]; !ok {
			t.Errorf("missing timing for stage %q", stage)
		}
	}
	if res.DetectionTime <= 0 {
		t.Error("total detection time not recorded")
	}
	if len(res.Corners) != 4 {
		t.Fatalf("got %d corners", len(res.Corners))
	}
	want := projectedCorners(intr, 0.1, 0.5)
	for i := range want {
		d := math.Hypot(res.Corners[i].X-want[i].X, res.Corners[i].Y-want[i].Y)
		if d > 6 {
			t.Errorf("corner %d off by %.2f px", i, d)
		}
	}
}

// A marker printed or mounted sideways must still decode, with the pose
// reflecting the in-plane rotation rather than corrupting the payload.
func TestDetector_RotatedMarker(t *testing.T) {
	for rotation := 1; rotation < 4; rotation++ {
		frame, intr := endToEndFrame(t, rotation)
		det := NewDetector(nil, logging.NewTestLogger(t))

		res, err := det.Detect(frame, intr)
		if err != nil {
			t.Fatalf("rotation %d: Detect returned input error: %v", rotation, err)
		}
		if !res.Detected() {
			t.Fatalf("rotation %d: detection failed: %v", rotation, res.Err)
		}
		if got := *res.Payload; got != testPayload() {
			t.Errorf("rotation %d: payload mismatch", rotation)
		}
		if math.Abs(res.Pose.Translation.Z-0.5) > 0.02 {
			t.Errorf("rotation %d: Z = %.4f m", rotation, res.Pose.Translation.Z)
		}
	}
}

func TestDetector_InputErrors(t *testing.T) {
	det := NewDetector(nil, logging.NewTestLogger(t))
	intr := testIntrinsics()

	if _, err := det.Detect(nil, intr); !errors.Is(err, ErrNilFrame) {
		t.Errorf("nil frame: err = %v, want ErrNilFrame", err)
	}
	frame := image.NewGray(image.Rect(0, 0, 64, 64))
	if _, err := det.Detect(frame, CameraIntrinsics{Fx: -1}); !errors.Is(err, ErrBadIntrinsics) {
		t.Errorf("bad intrinsics: err = %v, want ErrBadIntrinsics", err)
	}
}

func TestDetector_NoTag(t *testing.T) {
	det := NewDetector(nil, logging.NewTestLogger(t))

	res, err := det.Detect(noiseFrame(640, 480, 7), testIntrinsics())
	if err != nil {
		t.Fatalf("Detect returned input error: %v", err)
	}
	if res.Detected() {
		t.Fatal("noise frame reported a detection")
	}
	if !errors.Is(res.Err, ErrLocatorNoMatch) {
		t.Errorf("res.Err = %v, want ErrLocatorNoMatch", res.Err)
	}
	if res.Payload != nil || res.Pose != nil {
		t.Error("failed detection carries payload or pose")
	}
	if _, ok := res.Timings["locate"]; !ok {
		t.Error("locate timing missing on failure")
	}
}

func TestDetectionResult_ObserverFix(t *testing.T) {
	frame, intr := endToEndFrame(t, 0)
	det := NewDetector(nil, logging.NewTestLogger(t))

	res, err := det.Detect(frame, intr)
	if err != nil || !res.Detected() {
		t.Fatalf("detection failed: %v / %v", err, res.Err)
	}

	fix, err := res.ObserverFix()
	if err != nil {
		t.Fatalf("ObserverFix failed: %v", err)
	}
	p := testPayload()
	// Identity tag orientation, camera straight above: the observer is 0.5 m
	// over the tag.
	if math.Abs(fix.Altitude-(p.Altitude+0.5)) > 0.05 {
		t.Errorf("altitude = %.3f, want %.3f", fix.Altitude, p.Altitude+0.5)
	}
	if math.Abs(fix.Latitude-p.Latitude) > 1e-5 || math.Abs(fix.Longitude-p.Longitude) > 1e-5 {
		t.Errorf("lat/lon drifted: %+v", fix)
	}
}

func TestDetectionResult_ObserverFix_NotDetected(t *testing.T) {
	res := &DetectionResult{Err: ErrLocatorNoMatch}
	if _, err := res.ObserverFix(); err == nil {
		t.Error("ObserverFix on a failed detection should error")
	}
}

func TestNewDetector_NilConfigDefaults(t *testing.T) {
	det := NewDetector(nil, nil)
	if det.cfg.Locator.TemplateCellPx != DefaultConfig().Locator.TemplateCellPx {
		t.Error("nil config did not fall back to defaults")
	}
	if det.tmpl == nil {
		t.Error("reference template not built")
	}
}
