// Package camcfg loads camera calibration files for the gptag tools.
package camcfg

import (
	"encoding/json"
	"fmt"
	"os"
)

// CameraConfig holds a pinhole calibration: focal lengths and principal
// point in pixels, plus optional Brown-Conrady distortion coefficients
// (k1, k2, p1, p2, k3).
type CameraConfig struct {
	Fx         float64   `json:"fx"`
	Fy         float64   `json:"fy"`
	Cx         float64   `json:"cx"`
	Cy         float64   `json:"cy"`
	Distortion []float64 `json:"distortion,omitempty"`
}

// Load reads and parses a camera calibration from a JSON file.
func Load(path string) (*CameraConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading camera file: %w", err)
	}
	var c CameraConfig
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing camera file: %w", err)
	}
	if c.Fx <= 0 || c.Fy <= 0 {
		return nil, fmt.Errorf("camera file %s: focal lengths must be positive", path)
	}
	return &c, nil
}
