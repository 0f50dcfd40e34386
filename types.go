package gptag

import (
	"math"
	"time"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/rdk/spatialmath"
)

// TagPayload is the metadata embedded in a single marker. Values are fixed at
// construction; Validate reports whether they fit the wire format.
type TagPayload struct {
	// TagID is the unique tag identifier, 0-4095.
	TagID uint16
	// VersionID selects the wire layout, 0-15. Only version 3 is defined.
	VersionID uint8
	// Accuracy is an opaque position-confidence class, 0-3.
	Accuracy uint8
	// Scale is the grid density in cells per millimeter. A 100 mm tag has
	// Scale = 36/100 = 0.36.
	Scale float64
	// Latitude and Longitude are the tag's geodetic position in degrees.
	Latitude  float64
	Longitude float64
	// Altitude is meters above the reference ellipsoid.
	Altitude float64
	// Orientation is the tag's attitude in the NED frame anchored at its
	// geodetic position, as a unit quaternion [x, y, z, w].
	Orientation [4]float64
}

// quaternionNormTolerance is the allowed deviation of |q| from 1.
const quaternionNormTolerance = 1e-6

// Validate checks every field against its declared range and bit width.
func (p TagPayload) Validate() error {
	if p.TagID > 4095 {
		return ErrInvalidPayload
	}
	if p.VersionID > 15 || p.Accuracy > 3 {
		return ErrInvalidPayload
	}
	if !(p.Scale > 0) || math.IsInf(p.Scale, 0) {
		return ErrInvalidPayload
	}
	if math.IsNaN(p.Latitude) || p.Latitude < -90 || p.Latitude > 90 {
		return ErrInvalidPayload
	}
	if math.IsNaN(p.Longitude) || p.Longitude < -180 || p.Longitude > 180 {
		return ErrInvalidPayload
	}
	if math.IsNaN(p.Altitude) || math.IsInf(p.Altitude, 0) {
		return ErrInvalidPayload
	}
	norm := 0.0
	for _, c := range p.Orientation {
		// NaN would also slip through the norm comparison below.
		if math.IsNaN(c) {
			return ErrInvalidPayload
		}
		norm += c * c
	}
	if math.Abs(math.Sqrt(norm)-1) > quaternionNormTolerance {
		return ErrInvalidPayload
	}
	return nil
}

// SideLengthMm is the physical edge length of the full grid in millimeters.
func (p TagPayload) SideLengthMm() float64 {
	return GridCells / p.Scale
}

// ScaleForTagSize converts a physical tag edge length in millimeters to the
// Scale field (cells per millimeter).
func ScaleForTagSize(sizeMm float64) float64 {
	return GridCells / sizeMm
}

// PoseFrame identifies the reference frame a Pose is expressed in.
type PoseFrame int

const (
	// FrameCamera is the camera optical frame: X right, Y down, Z forward
	// along the optical axis.
	FrameCamera PoseFrame = iota
	// FrameNED is the local North-East-Down frame anchored at the tag.
	FrameNED
)

func (f PoseFrame) String() string {
	switch f {
	case FrameCamera:
		return "camera"
	case FrameNED:
		return "ned"
	default:
		return "unknown"
	}
}

// Pose is a rigid transform: translation in meters plus a unit rotation
// quaternion, tagged with the frame it is expressed in.
type Pose struct {
	Translation r3.Vector
	Rotation    quat.Number
	Frame       PoseFrame
}

// Spatial converts the pose to a spatialmath.Pose (translation in mm, the
// convention used by the rest of the rdk ecosystem).
func (p Pose) Spatial() spatialmath.Pose {
	q := spatialmath.Quaternion(p.Rotation)
	return spatialmath.NewPose(p.Translation.Mul(1000), &q)
}

// QuaternionXYZW returns the rotation in wire order [x, y, z, w].
func (p Pose) QuaternionXYZW() [4]float64 {
	return [4]float64{p.Rotation.Imag, p.Rotation.Jmag, p.Rotation.Kmag, p.Rotation.Real}
}

// CameraIntrinsics is the pinhole model plus an optional Brown-Conrady
// distortion vector (k1, k2, p1, p2, k3).
type CameraIntrinsics struct {
	Fx, Fy float64
	Cx, Cy float64
	// Distortion may be nil or shorter than 5; missing coefficients are zero.
	Distortion []float64
}

// Valid reports whether the intrinsics describe a usable pinhole camera.
func (c CameraIntrinsics) Valid() bool {
	if c.Fx <= 0 || c.Fy <= 0 {
		return false
	}
	if len(c.Distortion) > 5 {
		return false
	}
	for _, k := range c.Distortion {
		if math.IsNaN(k) || math.IsInf(k, 0) {
			return false
		}
	}
	return true
}

// Matrix returns the 3x3 camera matrix K.
func (c CameraIntrinsics) Matrix() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		c.Fx, 0, c.Cx,
		0, c.Fy, c.Cy,
		0, 0, 1,
	})
}

// IntrinsicsFromMatrix builds CameraIntrinsics from a 3x3 camera matrix and a
// distortion vector.
func IntrinsicsFromMatrix(k mat.Matrix, dist []float64) (CameraIntrinsics, error) {
	r, cols := k.Dims()
	if r != 3 || cols != 3 {
		return CameraIntrinsics{}, ErrBadIntrinsics
	}
	intr := CameraIntrinsics{
		Fx:         k.At(0, 0),
		Fy:         k.At(1, 1),
		Cx:         k.At(0, 2),
		Cy:         k.At(1, 2),
		Distortion: dist,
	}
	if !intr.Valid() {
		return CameraIntrinsics{}, ErrBadIntrinsics
	}
	return intr, nil
}

// DetectionCandidate is one tag-like region proposed by the locator: an
// ordered corner quadrilateral (clockwise from top-left, in frame pixels),
// the template-to-frame homography that produced it, and a match score.
type DetectionCandidate struct {
	Corners    [4]r2.Point
	Homography *mat.Dense
	// Score is the RANSAC inlier fraction of the feature matches.
	Score float64
}

// RectifiedSample is a candidate region warped back to the canonical square,
// as a grayscale luminance matrix (rows x cols, 0-255).
type RectifiedSample struct {
	Lum  *mat.Dense
	Size int
}

// DetectionResult is the outcome of one Detect call. On failure Err holds one
// of the taxonomy sentinels and the fields the failed stage would have
// produced remain unset; everything produced by earlier stages is kept.
type DetectionResult struct {
	// Payload is the decoded tag metadata, nil until decode succeeds.
	Payload *TagPayload
	// Pose is the tag's camera-relative 6-DoF pose, nil until the PnP stage
	// succeeds.
	Pose *Pose
	// Corners is the located quadrilateral in frame pixels, clockwise from
	// the tag's physical top-left once orientation is resolved.
	Corners []r2.Point
	// Rectified is the canonical-square warp of the located region.
	Rectified *RectifiedSample
	// Timings maps stage name to elapsed time.
	Timings map[string]time.Duration
	// DetectionTime is the total elapsed time for the call.
	DetectionTime time.Duration
	// Err is nil on success, otherwise the sentinel of the stage that failed.
	Err error
}

// Detected reports whether the pipeline ran to completion.
func (r *DetectionResult) Detected() bool {
	return r != nil && r.Err == nil && r.Payload != nil && r.Pose != nil
}
