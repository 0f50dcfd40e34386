package gptag

import (
	"image"
	"time"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"go.viam.com/rdk/logging"
)

// Detector runs the full detection pipeline: locate, rectify, bit reading,
// payload decode, pose estimation. The only state is the reference template,
// built once and immutable afterwards, so a single Detector serves concurrent
// Detect calls.
type Detector struct {
	cfg    Config
	logger logging.Logger
	tmpl   *referenceTemplate
}

// NewDetector creates a Detector with the given configuration. A nil config
// means defaults.
func NewDetector(cfg *Config, logger logging.Logger) *Detector {
	if cfg == nil {
		c := DefaultConfig()
		cfg = &c
	}
	if logger == nil {
		logger = logging.NewLogger("gptag")
	}
	return &Detector{
		cfg:    *cfg,
		logger: logger,
		tmpl:   newReferenceTemplate(cfg.Locator),
	}
}

// Detect runs the pipeline on a single frame. The returned error is non-nil
// only for malformed inputs; every run-time outcome, including "no tag seen",
// comes back as a DetectionResult with Err set to the failed stage's sentinel
// and all artifacts produced before the failure retained.
func (d *Detector) Detect(frame image.Image, intr CameraIntrinsics) (*DetectionResult, error) {
	if frame == nil {
		return nil, ErrNilFrame
	}
	if !intr.Valid() {
		return nil, ErrBadIntrinsics
	}

	res := &DetectionResult{Timings: make(map[string]time.Duration)}
	start := time.Now()
	defer func() { res.DetectionTime = time.Since(start) }()

	lum := frameToLuminance(frame)

	t0 := time.Now()
	cands := locate(lum, d.tmpl, d.cfg.Locator)
	res.Timings["locate"] = time.Since(t0)
	if len(cands) == 0 {
		d.logger.Debug("locator found no tag-like region")
		res.Err = ErrLocatorNoMatch
		return res, nil
	}
	best := cands[0]
	for _, c := range cands[1:] {
		if c.Score > best.Score {
			best = c
		}
	}
	res.Corners = append([]r2.Point(nil), best.Corners[:]...)

	t0 = time.Now()
	res.Rectified = rectifyLum(lum, best.Corners, d.cfg.Extractor.SampleSize)
	res.Timings["rectify"] = time.Since(t0)

	t0 = time.Now()
	bits, rotation, err := ReadBits(res.Rectified, d.cfg.Extractor)
	res.Timings["read_bits"] = time.Since(t0)
	if err != nil {
		d.logger.Debugw("bit extraction failed", "error", err)
		res.Err = err
		return res, nil
	}
	corners := canonicalCorners(best.Corners, rotation)
	res.Corners = append(res.Corners[:0], corners[:]...)

	t0 = time.Now()
	payload, err := DecodePayload(bits)
	res.Timings["decode"] = time.Since(t0)
	if err != nil {
		d.logger.Debugw("payload decode failed", "error", err)
		res.Err = err
		return res, nil
	}
	res.Payload = &payload

	t0 = time.Now()
	pose, err := d.estimateTagPose(&best, rotation, payload.SideLengthMm(), intr)
	res.Timings["pose"] = time.Since(t0)
	if err != nil {
		d.logger.Debugw("pose estimation failed", "error", err)
		res.Err = err
		return res, nil
	}
	res.Pose = pose

	d.logger.Debugf("tag %d detected, rotation %d, score %.2f, distance %.3f m",
		payload.TagID, rotation, best.Score, pose.Translation.Norm())
	return res, nil
}

// ObserverFix projects a completed detection into the observer's geodetic
// position using the decoded tag position and orientation.
func (r *DetectionResult) ObserverFix() (GeodeticPosition, error) {
	if !r.Detected() {
		return GeodeticPosition{}, ErrLocatorNoMatch
	}
	tag := GeodeticPosition{
		Latitude:  r.Payload.Latitude,
		Longitude: r.Payload.Longitude,
		Altitude:  r.Payload.Altitude,
	}
	return GlobalFix(tag, r.Payload.Orientation, *r.Pose)
}

// estimateTagPose builds 2D-3D correspondences for the four outer corners
// plus the three bullseye centers and solves the planar PnP problem. The
// candidate homography maps template pixels to the frame, so canonical
// points are first carried through the resolved grid rotation.
func (d *Detector) estimateTagPose(cand *DetectionCandidate, rotation int, sideMm float64, intr CameraIntrinsics) (*Pose, error) {
	cellPx := float64(d.cfg.Locator.TemplateCellPx)
	side := cellPx * GridCells

	canonicalPts := []r2.Point{
		{X: 0, Y: 0},
		{X: side, Y: 0},
		{X: side, Y: side},
		{X: 0, Y: side},
		{X: (float64(finderNear) + 2.5) * cellPx, Y: (float64(finderNear) + 2.5) * cellPx},
		{X: (float64(finderFar) + 2.5) * cellPx, Y: (float64(finderNear) + 2.5) * cellPx},
		{X: (float64(finderNear) + 2.5) * cellPx, Y: (float64(finderFar) + 2.5) * cellPx},
	}

	sideM := sideMm / 1000
	imagePts := make([]r2.Point, len(canonicalPts))
	objectPts := make([]r3.Vector, len(canonicalPts))
	for i, p := range canonicalPts {
		imagePts[i] = applyHomography(cand.Homography, rotTemplatePoint(p, side, rotation))
		objectPts[i] = r3.Vector{
			X: (p.X/side - 0.5) * sideM,
			Y: (p.Y/side - 0.5) * sideM,
		}
	}

	return EstimatePose(imagePts, objectPts, intr, d.cfg.Pose)
}

// rotTemplatePoint maps a canonical template pixel to its position after k
// clockwise quarter-turns of the template square.
func rotTemplatePoint(p r2.Point, side float64, k int) r2.Point {
	for i := 0; i < k%4; i++ {
		p = r2.Point{X: side - p.Y, Y: p.X}
	}
	return p
}
