// Command gptag generates GP-Tag markers and decodes them from still images.
// It is a thin caller of the core library: all I/O, printing, and file
// handling live here.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	gptag "github.com/S-SB/gp-tag"
	"github.com/S-SB/gp-tag/internal/camcfg"

	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/rimage"
)

func main() {
	mode := flag.String("mode", "", "generate or detect")

	// Generate flags. Defaults produce the reference tag used in the
	// documentation.
	lat := flag.Float64("lat", 63.8203894, "tag latitude in degrees")
	lon := flag.Float64("lon", 20.3058847, "tag longitude in degrees")
	alt := flag.Float64("alt", 45.16, "tag altitude in meters")
	roll := flag.Float64("roll", 0, "tag roll in degrees (NED)")
	pitch := flag.Float64("pitch", 0, "tag pitch in degrees (NED)")
	yaw := flag.Float64("yaw", 0, "tag yaw in degrees (NED)")
	sizeMm := flag.Float64("size-mm", 100, "physical tag edge length in millimeters")
	accuracy := flag.Int("accuracy", 2, "position confidence class 0-3")
	tagID := flag.Int("tag-id", 123, "tag identifier 0-4095")
	version := flag.Int("version", gptag.CurrentVersion, "wire format version")
	u := flag.Int("u", 40, "pixels per cell in the output raster")
	out := flag.String("out", "", "output PNG path (default gptag_<id>.png)")

	// Detect flags.
	imagePath := flag.String("image", "", "input image containing a tag")
	cameraPath := flag.String("camera", "", "camera calibration JSON file")
	configPath := flag.String("config", "", "optional detector config overrides (JSON)")

	flag.Parse()

	logger := logging.NewLogger("gptag-cli")

	switch *mode {
	case "generate":
		q := gptag.EulerToQuaternionNED(*roll, *pitch, *yaw)
		payload := gptag.TagPayload{
			TagID:       uint16(*tagID),
			VersionID:   uint8(*version),
			Accuracy:    uint8(*accuracy),
			Scale:       gptag.ScaleForTagSize(*sizeMm),
			Latitude:    *lat,
			Longitude:   *lon,
			Altitude:    *alt,
			Orientation: q,
		}
		marker, err := gptag.Render(payload, *u)
		if err != nil {
			logger.Fatalf("rendering tag: %v", err)
		}
		path := *out
		if path == "" {
			path = fmt.Sprintf("gptag_%d.png", payload.TagID)
		}
		if err := rimage.WriteImageToFile(path, marker.Image()); err != nil {
			logger.Fatalf("writing %s: %v", path, err)
		}
		logger.Infof("wrote %s (%dx%d px, %.3f cells/mm)",
			path, gptag.GridCells**u, gptag.GridCells**u, payload.Scale)

	case "detect":
		if *imagePath == "" || *cameraPath == "" {
			logger.Fatal("-image and -camera are required in detect mode")
		}
		frame, err := rimage.NewImageFromFile(*imagePath)
		if err != nil {
			logger.Fatalf("loading %s: %v", *imagePath, err)
		}
		cam, err := camcfg.Load(*cameraPath)
		if err != nil {
			logger.Fatal(err)
		}
		intr := gptag.CameraIntrinsics{
			Fx: cam.Fx, Fy: cam.Fy, Cx: cam.Cx, Cy: cam.Cy,
			Distortion: cam.Distortion,
		}

		cfg := gptag.DefaultConfig()
		if *configPath != "" {
			data, err := os.ReadFile(*configPath)
			if err != nil {
				logger.Fatalf("reading %s: %v", *configPath, err)
			}
			var attrs map[string]interface{}
			if err := json.Unmarshal(data, &attrs); err != nil {
				logger.Fatalf("parsing %s: %v", *configPath, err)
			}
			if cfg, err = gptag.ParseConfig(attrs); err != nil {
				logger.Fatal(err)
			}
		}

		detector := gptag.NewDetector(&cfg, logger)
		res, err := detector.Detect(frame, intr)
		if err != nil {
			logger.Fatalf("detect: %v", err)
		}
		printResult(res)

	default:
		logger.Fatal("-mode must be generate or detect")
	}
}

// printResult reports a detection the way the reference decoder does:
// tag data, orientations in both quaternion and NED Euler form, the
// camera-relative pose, the computed observer fix, and stage timings.
func printResult(res *gptag.DetectionResult) {
	fmt.Println("\nGP-Tag Detection Results:")
	fmt.Println("Using NED (North-East-Down) coordinate frame")
	fmt.Printf("Detection time: %.1fms\n", res.DetectionTime.Seconds()*1000)

	if res.Err != nil {
		fmt.Printf("No tag decoded: %v\n", res.Err)
		return
	}

	p := res.Payload
	fmt.Printf("\nTag Data:\n")
	fmt.Printf("  Tag ID:   %d\n", p.TagID)
	fmt.Printf("  Version:  %d\n", p.VersionID)
	fmt.Printf("  Accuracy: level %d\n", p.Accuracy)
	fmt.Printf("  Scale:    %.3f cells/mm\n", p.Scale)

	fmt.Printf("\nTag Global Position:\n")
	fmt.Printf("  Latitude:  %.7f°\n", p.Latitude)
	fmt.Printf("  Longitude: %.7f°\n", p.Longitude)
	fmt.Printf("  Altitude:  %.2f m\n", p.Altitude)

	r, pt, y := gptag.QuaternionToEulerNED(p.Orientation)
	fmt.Printf("\nTag Orientation (NED):\n")
	fmt.Printf("  Quaternion [x,y,z,w]: [%.3f, %.3f, %.3f, %.3f]\n",
		p.Orientation[0], p.Orientation[1], p.Orientation[2], p.Orientation[3])
	fmt.Printf("  Euler [roll, pitch, yaw]: [%.1f°, %.1f°, %.1f°]\n", r, pt, y)

	q := res.Pose.QuaternionXYZW()
	cr, cp, cy := gptag.QuaternionToEulerNED(q)
	fmt.Printf("\nCamera-Relative Pose (%s frame):\n", res.Pose.Frame)
	fmt.Printf("  Translation [x,y,z]: [%.3f, %.3f, %.3f] m\n",
		res.Pose.Translation.X, res.Pose.Translation.Y, res.Pose.Translation.Z)
	fmt.Printf("  Rotation quaternion [x,y,z,w]: [%.3f, %.3f, %.3f, %.3f]\n", q[0], q[1], q[2], q[3])
	fmt.Printf("  Rotation Euler [roll, pitch, yaw]: [%.1f°, %.1f°, %.1f°]\n", cr, cp, cy)

	if fix, err := res.ObserverFix(); err == nil {
		fmt.Printf("\nObserver Global Position:\n")
		fmt.Printf("  Latitude:  %.7f°\n", fix.Latitude)
		fmt.Printf("  Longitude: %.7f°\n", fix.Longitude)
		fmt.Printf("  Altitude:  %.2f m\n", fix.Altitude)
	}

	fmt.Printf("\nTiming Breakdown:\n")
	for _, stage := range []string{"locate", "rectify", "read_bits", "decode", "pose"} {
		if dt, ok := res.Timings[stage]; ok {
			fmt.Printf("  %-10s %.1fms\n", stage+":", dt.Seconds()*1000)
		}
	}
}
