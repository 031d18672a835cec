// Package session runs the per-video processing pipeline and aggregates its
// outcome into a roster of persons seen in the session.
package session

import (
	"context"
	"fmt"
	"time"
)

// Status of a processing session.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Mode selects how much of the pipeline a session runs. Payment analysis is
// accepted for compatibility but behaves like plain identification.
type Mode string

const (
	ModeDetect                Mode = "detect"
	ModeDetectIdentify        Mode = "detect_identify"
	ModeDetectIdentifyPayment Mode = "detect_identify_payment"
)

// ParseMode validates a workflow mode string. An empty string selects the
// default detect_identify mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return ModeDetectIdentify, nil
	case ModeDetect, ModeDetectIdentify, ModeDetectIdentifyPayment:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown workflow mode %q", s)
}

// Session is one processing run over one video.
type Session struct {
	ID              string
	VideoHash       string
	Mode            Mode
	Status          Status
	StartedAt       time.Time
	CompletedAt     time.Time
	FramesProcessed int
	FailedAtFrame   int // -1 unless Status is failed
}

// EntryType distinguishes persons with a usable face from those tracked by
// position only.
type EntryType string

const (
	TypeDetected   EntryType = "detected"   // no usable face, this session only
	TypeIdentified EntryType = "identified" // matched or entered into the catalogue
)

// RosterEntry is one person on the session roster.
type RosterEntry struct {
	SessionID          string
	PersonID           string
	Type               EntryType
	SessionAppearances int // distinct sessions, 1 for detected-only persons
	NewThisSession     bool
	FirstSeenFrame     int
	LastSeenFrame      int
}

// Summary aggregates a finished session.
type Summary struct {
	SessionID          string
	TotalUniquePersons int
	DetectedCount      int
	IdentifiedCount    int
}

// TrackResolution is the staged outcome for one closed track, committed only
// when the whole session finishes.
type TrackResolution struct {
	TrackID        string
	IdentityID     string // equals TrackID for unidentified tracks
	Identified     bool
	NewIdentity    bool
	Similarity     float64
	FirstSeenFrame int
	LastSeenFrame  int
}

// Store persists sessions and rosters.
type Store interface {
	CreateSession(ctx context.Context, s *Session) error
	UpdateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	ListSessions(ctx context.Context) ([]*Session, error)
	SaveRoster(ctx context.Context, entries []RosterEntry) error
	Roster(ctx context.Context, sessionID string) ([]RosterEntry, error)
}

// BlobStore keeps face crops under {session_id}/{person_id}/{filename}.
type BlobStore interface {
	Save(ctx context.Context, sessionID, personID, filename string, data []byte) error
}
