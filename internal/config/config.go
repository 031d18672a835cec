package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Tracker   TrackerConfig
	Matcher   MatcherConfig
	Detector  DetectorConfig
	Embedding EmbeddingConfig
	Database  DatabaseConfig
	Blob      BlobConfig
}

// TrackerConfig controls frame-to-frame track association.
type TrackerConfig struct {
	// Maximum center-to-center distance (pixels) for a detection to join an
	// existing track.
	MaxProximityDistance float64 `yaml:"max_proximity_distance"`
	// Maximum number of frames a track may go unseen before it is closed.
	MaxFrameGap int `yaml:"max_frame_gap"`
	// Detections below this detector confidence are dropped before matching.
	MinConfidence float64 `yaml:"min_confidence"`
	// When true, association measures distance to the Kalman-predicted center
	// instead of the last observed center.
	UsePrediction bool `yaml:"use_prediction"`
}

// MatcherConfig controls cross-session identity resolution.
type MatcherConfig struct {
	// Minimum cosine similarity for a track to match an existing identity.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

type DetectorConfig struct {
	URL string // defaults to http://localhost:8100
}

type EmbeddingConfig struct {
	URL            string // defaults to http://localhost:8000
	Dim            int    `yaml:"dim"`
	SamplingPolicy string `yaml:"sampling_policy"` // "first" or "every:N"
}

type DatabaseConfig struct {
	URL      string // PostgreSQL connection URL, empty means in-memory catalogue
	MaxConns int    // Maximum pool connections (default 10)
}

type BlobConfig struct {
	Dir string // Directory for face crop storage (default ./faces)
}

// defaults mirrors the embedded defaults.yaml layout.
type defaults struct {
	Tracker   TrackerConfig   `yaml:"tracker"`
	Matcher   MatcherConfig   `yaml:"matcher"`
	Embedding EmbeddingConfig `yaml:"embedding"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a float.
// Returns the default value if the env var is unset, empty, or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	var def defaults
	if err := yaml.Unmarshal(defaultsYAML, &def); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}

	return &Config{
		Tracker: TrackerConfig{
			MaxProximityDistance: envFloat("REID_MAX_PROXIMITY_DISTANCE", def.Tracker.MaxProximityDistance),
			MaxFrameGap:          envInt("REID_MAX_FRAME_GAP", def.Tracker.MaxFrameGap),
			MinConfidence:        envFloat("REID_MIN_CONFIDENCE", def.Tracker.MinConfidence),
			UsePrediction:        envBool("REID_USE_PREDICTION", def.Tracker.UsePrediction),
		},
		Matcher: MatcherConfig{
			SimilarityThreshold: envFloat("REID_SIMILARITY_THRESHOLD", def.Matcher.SimilarityThreshold),
		},
		Detector: DetectorConfig{
			URL: os.Getenv("DETECTOR_URL"),
		},
		Embedding: EmbeddingConfig{
			URL:            os.Getenv("EMBEDDING_URL"),
			Dim:            envInt("EMBEDDING_DIM", def.Embedding.Dim),
			SamplingPolicy: envString("REID_SAMPLING_POLICY", def.Embedding.SamplingPolicy),
		},
		Database: DatabaseConfig{
			URL:      os.Getenv("DATABASE_URL"),
			MaxConns: envInt("DATABASE_MAX_CONNS", 10),
		},
		Blob: BlobConfig{
			Dir: envString("BLOB_DIR", "faces"),
		},
	}
}

// Error describes an invalid configuration value. Sessions fail fast on it,
// before any track is opened.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// Validate checks all tunable values. It is called at session start; a
// non-nil result aborts the run before any frame is processed.
func (c *Config) Validate() error {
	if c.Tracker.MaxProximityDistance <= 0 {
		return &Error{Field: "max_proximity_distance", Reason: "must be positive"}
	}
	if c.Tracker.MaxFrameGap < 0 {
		return &Error{Field: "max_frame_gap", Reason: "must not be negative"}
	}
	if c.Tracker.MinConfidence < 0 || c.Tracker.MinConfidence > 1 {
		return &Error{Field: "min_confidence", Reason: "must be within [0, 1]"}
	}
	if c.Matcher.SimilarityThreshold <= 0 || c.Matcher.SimilarityThreshold > 1 {
		return &Error{Field: "similarity_threshold", Reason: "must be within (0, 1]"}
	}
	if c.Embedding.Dim <= 0 {
		return &Error{Field: "embedding.dim", Reason: "must be positive"}
	}
	if _, err := ParseSamplingPolicy(c.Embedding.SamplingPolicy); err != nil {
		return &Error{Field: "sampling_policy", Reason: err.Error()}
	}
	return nil
}

// SamplingPolicy describes when a track frame is eligible for embedding
// extraction.
type SamplingPolicy struct {
	// Every is 0 for the "first successful extraction only" policy, or N>0 to
	// retry every Nth frame of the track.
	Every int
}

// ParseSamplingPolicy parses "first" or "every:N".
func ParseSamplingPolicy(s string) (SamplingPolicy, error) {
	if s == "" || s == "first" {
		return SamplingPolicy{}, nil
	}
	var n int
	if _, err := fmt.Sscanf(s, "every:%d", &n); err != nil || n <= 0 {
		return SamplingPolicy{}, fmt.Errorf("unknown sampling policy %q (want \"first\" or \"every:N\")", s)
	}
	return SamplingPolicy{Every: n}, nil
}
