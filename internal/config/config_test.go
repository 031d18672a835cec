package config

import (
	"errors"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Tracker.MaxProximityDistance != 50.0 {
		t.Errorf("expected default max proximity distance 50.0, got %f", cfg.Tracker.MaxProximityDistance)
	}
	if cfg.Tracker.MaxFrameGap != 30 {
		t.Errorf("expected default max frame gap 30, got %d", cfg.Tracker.MaxFrameGap)
	}
	if cfg.Tracker.MinConfidence != 0.5 {
		t.Errorf("expected default min confidence 0.5, got %f", cfg.Tracker.MinConfidence)
	}
	if cfg.Matcher.SimilarityThreshold != 0.8 {
		t.Errorf("expected default similarity threshold 0.8, got %f", cfg.Matcher.SimilarityThreshold)
	}
	if cfg.Embedding.Dim != 512 {
		t.Errorf("expected default embedding dim 512, got %d", cfg.Embedding.Dim)
	}
	if cfg.Embedding.SamplingPolicy != "first" {
		t.Errorf("expected default sampling policy 'first', got %q", cfg.Embedding.SamplingPolicy)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("REID_MAX_PROXIMITY_DISTANCE", "75.5")
	t.Setenv("REID_MAX_FRAME_GAP", "10")
	t.Setenv("REID_SIMILARITY_THRESHOLD", "0.65")
	t.Setenv("REID_SAMPLING_POLICY", "every:5")

	cfg := Load()

	if cfg.Tracker.MaxProximityDistance != 75.5 {
		t.Errorf("expected max proximity distance 75.5, got %f", cfg.Tracker.MaxProximityDistance)
	}
	if cfg.Tracker.MaxFrameGap != 10 {
		t.Errorf("expected max frame gap 10, got %d", cfg.Tracker.MaxFrameGap)
	}
	if cfg.Matcher.SimilarityThreshold != 0.65 {
		t.Errorf("expected similarity threshold 0.65, got %f", cfg.Matcher.SimilarityThreshold)
	}
	if cfg.Embedding.SamplingPolicy != "every:5" {
		t.Errorf("expected sampling policy 'every:5', got %q", cfg.Embedding.SamplingPolicy)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults valid", func(c *Config) {}, ""},
		{"zero distance", func(c *Config) { c.Tracker.MaxProximityDistance = 0 }, "max_proximity_distance"},
		{"negative distance", func(c *Config) { c.Tracker.MaxProximityDistance = -10 }, "max_proximity_distance"},
		{"negative gap", func(c *Config) { c.Tracker.MaxFrameGap = -1 }, "max_frame_gap"},
		{"confidence above one", func(c *Config) { c.Tracker.MinConfidence = 1.5 }, "min_confidence"},
		{"zero threshold", func(c *Config) { c.Matcher.SimilarityThreshold = 0 }, "similarity_threshold"},
		{"threshold above one", func(c *Config) { c.Matcher.SimilarityThreshold = 1.2 }, "similarity_threshold"},
		{"zero dim", func(c *Config) { c.Embedding.Dim = 0 }, "embedding.dim"},
		{"bad policy", func(c *Config) { c.Embedding.SamplingPolicy = "sometimes" }, "sampling_policy"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Load()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			var cfgErr *Error
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected *config.Error, got %T", err)
			}
			if cfgErr.Field != tc.wantErr {
				t.Errorf("expected field %q, got %q", tc.wantErr, cfgErr.Field)
			}
		})
	}
}

func TestParseSamplingPolicy(t *testing.T) {
	tests := []struct {
		input     string
		wantEvery int
		wantErr   bool
	}{
		{"", 0, false},
		{"first", 0, false},
		{"every:5", 5, false},
		{"every:1", 1, false},
		{"every:0", 0, true},
		{"every:-3", 0, true},
		{"every:", 0, true},
		{"periodic", 0, true},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			p, err := ParseSamplingPolicy(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tc.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.Every != tc.wantEvery {
				t.Errorf("expected Every=%d, got %d", tc.wantEvery, p.Every)
			}
		})
	}
}
