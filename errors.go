package gptag

import "errors"

var (
	// ErrInvalidPayload is returned when a payload field exceeds its bit width
	// or the orientation quaternion is not unit-norm.
	ErrInvalidPayload = errors.New("invalid tag payload")

	// ErrUnsupportedVersion is returned when a decoded version field names a
	// layout this build does not understand.
	ErrUnsupportedVersion = errors.New("unsupported tag version")

	// ErrChecksumMismatch is returned when the embedded checksum does not match
	// the decoded payload bits.
	ErrChecksumMismatch = errors.New("payload checksum mismatch")

	// ErrLocatorNoMatch is returned when too few feature correspondences
	// survive homography fitting to locate a tag.
	ErrLocatorNoMatch = errors.New("no tag-like region located")

	// ErrOrientationAmbiguous is returned when no grid rotation matches the
	// structural pattern with enough margin over the runner-up.
	ErrOrientationAmbiguous = errors.New("tag orientation ambiguous")

	// ErrPoseDegenerate is returned when the corner configuration is too close
	// to singular for a reliable pose, or reprojection error stays above the
	// configured gate.
	ErrPoseDegenerate = errors.New("degenerate pose configuration")

	// ErrPoleSingularity is returned when a geodetic fix is requested for a
	// tag latitude too close to a pole for the flat-Earth longitude scaling.
	ErrPoleSingularity = errors.New("tag latitude too close to pole")

	// ErrNilFrame is returned when a nil frame is passed to Detect.
	ErrNilFrame = errors.New("frame is nil")

	// ErrBadIntrinsics is returned when the camera intrinsics are malformed.
	ErrBadIntrinsics = errors.New("malformed camera intrinsics")
)
