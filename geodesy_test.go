package gptag

import (
	"errors"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

func TestEulerQuaternion_RoundTrip(t *testing.T) {
	for roll := -150.0; roll <= 150; roll += 50 {
		for pitch := -85.0; pitch <= 85; pitch += 28 {
			for yaw := -170.0; yaw <= 170; yaw += 55 {
				q := EulerToQuaternionNED(roll, pitch, yaw)
				norm := math.Sqrt(q[0]*q[0] + q[1]*q[1] + q[2]*q[2] + q[3]*q[3])
				if math.Abs(norm-1) > 1e-12 {
					t.Fatalf("(%v,%v,%v): quaternion norm %v", roll, pitch, yaw, norm)
				}
				r, p, y := QuaternionToEulerNED(q)
				if math.Abs(r-roll) > 1e-9 || math.Abs(p-pitch) > 1e-9 || math.Abs(y-yaw) > 1e-9 {
					t.Errorf("round trip (%v,%v,%v) -> (%v,%v,%v)", roll, pitch, yaw, r, p, y)
				}
			}
		}
	}
}

func TestQuaternionToEulerNED_GimbalLock(t *testing.T) {
	for _, pitch := range []float64{90, -90} {
		q := EulerToQuaternionNED(0, pitch, 0)
		r, p, y := QuaternionToEulerNED(q)
		if math.IsNaN(r) || math.IsNaN(p) || math.IsNaN(y) {
			t.Fatalf("pitch %v: NaN in (%v,%v,%v)", pitch, r, p, y)
		}
		if math.Abs(p-pitch) > 1e-6 {
			t.Errorf("pitch %v reported as %v", pitch, p)
		}
	}
}

func TestOffsetFix_CardinalDirections(t *testing.T) {
	origin := GeodeticPosition{Latitude: 63.8203894, Longitude: 20.3058847, Altitude: 45.16}

	// 100 m north raises latitude by 100/R radians and nothing else.
	north, err := OffsetFix(origin, r3.Vector{X: 100})
	if err != nil {
		t.Fatalf("OffsetFix failed: %v", err)
	}
	wantLat := origin.Latitude + 100/EarthRadiusM*180/math.Pi
	if math.Abs(north.Latitude-wantLat) > 1e-9 {
		t.Errorf("latitude = %.10f, want %.10f", north.Latitude, wantLat)
	}
	if north.Longitude != origin.Longitude || north.Altitude != origin.Altitude {
		t.Errorf("north offset changed longitude or altitude: %+v", north)
	}

	// 100 m east raises longitude, scaled by 1/cos(lat).
	east, err := OffsetFix(origin, r3.Vector{Y: 100})
	if err != nil {
		t.Fatalf("OffsetFix failed: %v", err)
	}
	cosLat := math.Cos(origin.Latitude * math.Pi / 180)
	wantLon := origin.Longitude + 100/(EarthRadiusM*cosLat)*180/math.Pi
	if math.Abs(east.Longitude-wantLon) > 1e-9 {
		t.Errorf("longitude = %.10f, want %.10f", east.Longitude, wantLon)
	}

	// Positive D is down.
	down, err := OffsetFix(origin, r3.Vector{Z: 10})
	if err != nil {
		t.Fatalf("OffsetFix failed: %v", err)
	}
	if math.Abs(down.Altitude-(origin.Altitude-10)) > 1e-12 {
		t.Errorf("altitude = %v, want %v", down.Altitude, origin.Altitude-10)
	}
}

func TestOffsetFix_NearPole(t *testing.T) {
	// The limit itself is singular, not just latitudes beyond it.
	for _, lat := range []float64{89.9, -89.9, 89.95, -89.99} {
		if _, err := OffsetFix(GeodeticPosition{Latitude: lat}, r3.Vector{Y: 1}); !errors.Is(err, ErrPoleSingularity) {
			t.Errorf("lat %v: err = %v, want ErrPoleSingularity", lat, err)
		}
	}
	if _, err := OffsetFix(GeodeticPosition{Latitude: 89.89}, r3.Vector{Y: 1}); err != nil {
		t.Errorf("lat 89.89 should be usable: %v", err)
	}
}

// A camera looking straight down at an identity-orientation tag from h meters
// up: the tag sits h meters along the camera Z axis, the NED offset from the
// observer to the tag is h straight down, so the observer's altitude is the
// tag's plus h.
func TestGlobalFix_StraightDown(t *testing.T) {
	tag := GeodeticPosition{Latitude: 63.8203894, Longitude: 20.3058847, Altitude: 45.16}
	ident := [4]float64{0, 0, 0, 1}
	rel := Pose{
		Translation: r3.Vector{Z: 2.5},
		Rotation:    quat.Number{Real: 1},
		Frame:       FrameCamera,
	}

	fix, err := GlobalFix(tag, ident, rel)
	if err != nil {
		t.Fatalf("GlobalFix failed: %v", err)
	}
	if math.Abs(fix.Altitude-(tag.Altitude+2.5)) > 1e-9 {
		t.Errorf("altitude = %v, want %v", fix.Altitude, tag.Altitude+2.5)
	}
	if math.Abs(fix.Latitude-tag.Latitude) > 1e-12 || math.Abs(fix.Longitude-tag.Longitude) > 1e-12 {
		t.Errorf("lat/lon moved: %+v", fix)
	}
}

// With a lateral offset, the tag's yaw decides which global direction the
// camera-frame X axis maps to.
func TestGlobalFix_YawedTag(t *testing.T) {
	tag := GeodeticPosition{Latitude: 10, Longitude: 20, Altitude: 100}
	// Tag rotated 90 degrees in yaw: tag X (north at identity) now points
	// east.
	orient := EulerToQuaternionNED(0, 0, 90)
	rel := Pose{
		Translation: r3.Vector{X: 5, Z: 2},
		Rotation:    quat.Number{Real: 1},
		Frame:       FrameCamera,
	}

	offset := NEDOffset(orient, rel)
	// Camera X maps to tag X maps to global east; the tag is 5 m east of the
	// observer (and 2 m below).
	if math.Abs(offset.X) > 1e-9 || math.Abs(offset.Y-5) > 1e-9 || math.Abs(offset.Z-2) > 1e-9 {
		t.Fatalf("NED offset = %v, want (0, 5, 2)", offset)
	}

	fix, err := GlobalFix(tag, orient, rel)
	if err != nil {
		t.Fatalf("GlobalFix failed: %v", err)
	}
	if fix.Longitude >= tag.Longitude {
		t.Errorf("observer should be west of the tag: %+v", fix)
	}
	if math.Abs(fix.Altitude-(tag.Altitude+2)) > 1e-9 {
		t.Errorf("altitude = %v, want %v", fix.Altitude, tag.Altitude+2)
	}
}

func TestQuatRotConversions(t *testing.T) {
	qs := []quat.Number{
		{Real: 1},
		{Real: math.Sqrt2 / 2, Imag: math.Sqrt2 / 2},
		{Real: 0.5, Imag: 0.5, Jmag: 0.5, Kmag: 0.5},
		{Real: 0, Kmag: 1},
	}
	for _, q := range qs {
		back := quatFromRot(rotFromQuat(q))
		// q and -q encode the same rotation.
		same := math.Abs(back.Real-q.Real) < 1e-9 && math.Abs(back.Imag-q.Imag) < 1e-9 &&
			math.Abs(back.Jmag-q.Jmag) < 1e-9 && math.Abs(back.Kmag-q.Kmag) < 1e-9
		negated := math.Abs(back.Real+q.Real) < 1e-9 && math.Abs(back.Imag+q.Imag) < 1e-9 &&
			math.Abs(back.Jmag+q.Jmag) < 1e-9 && math.Abs(back.Kmag+q.Kmag) < 1e-9
		if !same && !negated {
			t.Errorf("quaternion %v round-tripped to %v", q, back)
		}
	}
}
