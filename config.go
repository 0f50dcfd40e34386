package gptag

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// Config holds all configuration for the detection pipeline.
type Config struct {
	Locator   LocatorConfig
	Extractor ExtractorConfig
	Pose      PoseConfig
}

// LocatorConfig holds parameters for feature matching and homography fitting.
type LocatorConfig struct {
	TemplateCellPx    int     // Pixels per cell when rendering the reference template
	PyramidLevels     int     // Image pyramid octaves for feature detection
	MaxFeatures       int     // Max corner features kept per pyramid level
	QualityLevel      float64 // Min corner response as a fraction of the strongest
	MinFeatureDistPx  float64 // Min spacing between kept corners, in level pixels
	MatchRatio        float64 // Lowe ratio gate on descriptor distances
	RANSACIterations  int     // Homography RANSAC iterations
	InlierThresholdPx float64 // Max reprojection distance for an inlier match
	MinInliers        int     // Min inlier correspondences to accept a candidate
}

// ExtractorConfig holds parameters for rectification and bit sampling.
type ExtractorConfig struct {
	SampleSize         int     // Canonical square edge in pixels
	MinStructuralScore float64 // Min fraction of structural cells matching the pattern
	MinRotationMargin  float64 // Min score gap between best and runner-up rotation
}

// PoseConfig holds parameters for PnP solving and validation.
type PoseConfig struct {
	MaxReprojErrPx   float64 // Mean reprojection error gate
	RefineIterations int     // Gauss-Newton refinement iterations
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Locator: LocatorConfig{
			TemplateCellPx:    10,
			PyramidLevels:     3,
			MaxFeatures:       400,
			QualityLevel:      0.02,
			MinFeatureDistPx:  6,
			MatchRatio:        0.85,
			RANSACIterations:  1500,
			InlierThresholdPx: 4.0,
			MinInliers:        12,
		},
		Extractor: ExtractorConfig{
			SampleSize:         360,
			MinStructuralScore: 0.80,
			MinRotationMargin:  0.08,
		},
		Pose: PoseConfig{
			MaxReprojErrPx:   3.0,
			RefineIterations: 20,
		},
	}
}

// ParseConfig decodes an attribute map (e.g. a module configuration block)
// onto the defaults, so callers only specify the fields they override.
func ParseConfig(attrs map[string]interface{}) (Config, error) {
	cfg := DefaultConfig()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Config{}, fmt.Errorf("building config decoder: %w", err)
	}
	if err := dec.Decode(attrs); err != nil {
		return Config{}, fmt.Errorf("parsing config attributes: %w", err)
	}
	return cfg, nil
}
