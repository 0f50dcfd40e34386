package gptag

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// NED frame conventions, matching the marker definition: at identity
// orientation the tag lies flat, right side pointing North (+X), bottom
// pointing East (+Y), Z down through the face. Pitch is negated relative to
// the standard aerospace sequence on both conversion directions, so the two
// are inverses of each other.

// EarthRadiusM is the WGS84 equatorial radius used by the flat-Earth
// approximation. Valid for offsets well under 10 km.
const EarthRadiusM = 6378137.0

// poleLatitudeLimit is the latitude at or beyond which the cos(lat)
// longitude scaling is considered singular.
const poleLatitudeLimit = 89.9

// GeodeticPosition is a latitude/longitude in degrees plus altitude in
// meters.
type GeodeticPosition struct {
	Latitude  float64
	Longitude float64
	Altitude  float64
}

// EulerToQuaternionNED converts NED Euler angles in degrees to a quaternion
// in [x, y, z, w] order.
func EulerToQuaternionNED(rollDeg, pitchDeg, yawDeg float64) [4]float64 {
	roll := rollDeg * math.Pi / 180
	pitch := -pitchDeg * math.Pi / 180
	yaw := yawDeg * math.Pi / 180

	cy := math.Cos(yaw / 2)
	sy := math.Sin(yaw / 2)
	cp := math.Cos(pitch / 2)
	sp := math.Sin(pitch / 2)
	cr := math.Cos(roll / 2)
	sr := math.Sin(roll / 2)

	return [4]float64{
		sr*cp*cy - cr*sp*sy,
		cr*sp*cy + sr*cp*sy,
		cr*cp*sy - sr*sp*cy,
		cr*cp*cy + sr*sp*sy,
	}
}

// QuaternionToEulerNED converts a quaternion in [x, y, z, w] order to NED
// Euler angles (roll, pitch, yaw) in degrees. Pitch is clamped to exactly
// +/-90 degrees at gimbal lock rather than going to NaN.
func QuaternionToEulerNED(q [4]float64) (roll, pitch, yaw float64) {
	x, y, z, w := q[0], q[1], q[2], q[3]

	sinrCosp := 2 * (w*x + y*z)
	cosrCosp := 1 - 2*(x*x+y*y)
	roll = math.Atan2(sinrCosp, cosrCosp) * 180 / math.Pi

	sinp := 2 * (w*y - z*x)
	var p float64
	if math.Abs(sinp) >= 1 {
		p = math.Copysign(math.Pi/2, sinp)
	} else {
		p = math.Asin(sinp)
	}
	pitch = -p * 180 / math.Pi

	sinyCosp := 2 * (w*z + x*y)
	cosyCosp := 1 - 2*(y*y+z*z)
	yaw = math.Atan2(sinyCosp, cosyCosp) * 180 / math.Pi
	return roll, pitch, yaw
}

// OffsetFix displaces a geodetic position by a local NED offset in meters
// (positive D lowers altitude), using the flat-Earth approximation.
func OffsetFix(origin GeodeticPosition, ned r3.Vector) (GeodeticPosition, error) {
	if math.Abs(origin.Latitude) >= poleLatitudeLimit {
		return GeodeticPosition{}, ErrPoleSingularity
	}
	cosLat := math.Cos(origin.Latitude * math.Pi / 180)
	return GeodeticPosition{
		Latitude:  origin.Latitude + ned.X/EarthRadiusM*180/math.Pi,
		Longitude: origin.Longitude + ned.Y/(EarthRadiusM*cosLat)*180/math.Pi,
		Altitude:  origin.Altitude - ned.Z,
	}, nil
}

// NEDOffset expresses a camera-relative tag pose as the tag's offset from the
// observer in the NED frame anchored at the tag: the camera-frame translation
// is carried into the tag frame, then rotated by the tag's own NED attitude.
func NEDOffset(tagOrientation [4]float64, rel Pose) r3.Vector {
	camRot := rotFromQuat(rel.Rotation)
	// Vector from camera to tag, in tag coordinates: R^T * t.
	inTag := r3.Vector{
		X: camRot[0][0]*rel.Translation.X + camRot[1][0]*rel.Translation.Y + camRot[2][0]*rel.Translation.Z,
		Y: camRot[0][1]*rel.Translation.X + camRot[1][1]*rel.Translation.Y + camRot[2][1]*rel.Translation.Z,
		Z: camRot[0][2]*rel.Translation.X + camRot[1][2]*rel.Translation.Y + camRot[2][2]*rel.Translation.Z,
	}
	ned := rotFromQuat(quatFromXYZW(tagOrientation))
	return r3.Vector{
		X: ned[0][0]*inTag.X + ned[0][1]*inTag.Y + ned[0][2]*inTag.Z,
		Y: ned[1][0]*inTag.X + ned[1][1]*inTag.Y + ned[1][2]*inTag.Z,
		Z: ned[2][0]*inTag.X + ned[2][1]*inTag.Y + ned[2][2]*inTag.Z,
	}
}

// GlobalFix projects a decoded tag position plus the camera-relative pose
// into the observer's own geodetic position. The NED offset points from the
// observer to the tag, so the observer sits at the tag position minus the
// offset.
func GlobalFix(tag GeodeticPosition, tagOrientation [4]float64, rel Pose) (GeodeticPosition, error) {
	v := NEDOffset(tagOrientation, rel)
	return OffsetFix(tag, v.Mul(-1))
}

// quatFromXYZW builds a quaternion from wire order [x, y, z, w].
func quatFromXYZW(q [4]float64) quat.Number {
	return quat.Number{Real: q[3], Imag: q[0], Jmag: q[1], Kmag: q[2]}
}

// rotFromQuat converts a unit quaternion to a rotation matrix.
func rotFromQuat(q quat.Number) [3][3]float64 {
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return [3][3]float64{
		{1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y)},
		{2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x)},
		{2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y)},
	}
}

// quatFromRot converts a rotation matrix to a unit quaternion (Shepperd's
// method: branch on the largest diagonal combination for stability).
func quatFromRot(m [3][3]float64) quat.Number {
	tr := m[0][0] + m[1][1] + m[2][2]
	var w, x, y, z float64
	switch {
	case tr > 0:
		s := math.Sqrt(tr+1) * 2
		w = s / 4
		x = (m[2][1] - m[1][2]) / s
		y = (m[0][2] - m[2][0]) / s
		z = (m[1][0] - m[0][1]) / s
	case m[0][0] > m[1][1] && m[0][0] > m[2][2]:
		s := math.Sqrt(1+m[0][0]-m[1][1]-m[2][2]) * 2
		w = (m[2][1] - m[1][2]) / s
		x = s / 4
		y = (m[0][1] + m[1][0]) / s
		z = (m[0][2] + m[2][0]) / s
	case m[1][1] > m[2][2]:
		s := math.Sqrt(1+m[1][1]-m[0][0]-m[2][2]) * 2
		w = (m[0][2] - m[2][0]) / s
		x = (m[0][1] + m[1][0]) / s
		y = s / 4
		z = (m[1][2] + m[2][1]) / s
	default:
		s := math.Sqrt(1+m[2][2]-m[0][0]-m[1][1]) * 2
		w = (m[1][0] - m[0][1]) / s
		x = (m[0][2] + m[2][0]) / s
		y = (m[1][2] + m[2][1]) / s
		z = s / 4
	}
	return quat.Number{Real: w, Imag: x, Jmag: y, Kmag: z}
}
