package tracker

import (
	"fmt"

	kalman_filter "github.com/LdDl/kalman-filter"
	"github.com/google/uuid"
)

// Detection is a single detector output for one person in one frame.
// It is consumed immediately by the tracker and never persisted standalone.
type Detection struct {
	FrameIndex int
	Box        Rect
	Confidence float64
}

// State is the lifecycle state of a track. Transitions only ACTIVE -> CLOSED;
// a track never reopens.
type State int

const (
	Active State = iota
	Closed
)

func (s State) String() string {
	switch s {
	case Active:
		return "ACTIVE"
	case Closed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

/* Kalman filter props, same tuning for every track */
const (
	kalmanDt    = 1.0
	kalmanUx    = 1.0
	kalmanUy    = 1.0
	kalmanStdA  = 2.0
	kalmanStdMx = 0.1
	kalmanStdMy = 0.1
)

// Track is the trajectory of one person across consecutive frames within a
// single processing session. Immutable once closed.
type Track struct {
	ID         string
	State      State
	Detections []Detection
	FirstSeen  int
	LastSeen   int

	// seq orders tracks by creation for deterministic tie-breaks.
	seq uint64

	filter        *kalman_filter.Kalman2D
	predicted     Point
	hasPrediction bool
}

func newTrack(seq uint64, d Detection, usePrediction bool) *Track {
	t := &Track{
		ID:         newPersonID(),
		State:      Active,
		Detections: []Detection{d},
		FirstSeen:  d.FrameIndex,
		LastSeen:   d.FrameIndex,
		seq:        seq,
	}
	if usePrediction {
		c := d.Box.Center()
		t.filter = kalman_filter.NewKalman2D(
			kalmanDt, kalmanUx, kalmanUy, kalmanStdA, kalmanStdMx, kalmanStdMy,
			kalman_filter.WithState2D(c.X, c.Y),
		)
	}
	return t
}

// newPersonID generates a session-local person identifier.
func newPersonID() string {
	return fmt.Sprintf("person_%s", uuid.New().String()[:8])
}

// Last returns the most recent detection of the track.
func (t *Track) Last() Detection {
	return t.Detections[len(t.Detections)-1]
}

// matchCenter returns the position used for proximity matching: the
// Kalman-predicted center when prediction is enabled, the last observed
// center otherwise.
func (t *Track) matchCenter() Point {
	if t.hasPrediction {
		return t.predicted
	}
	return t.Last().Box.Center()
}

// predict advances the Kalman filter without re-evaluating the state vector
// based on Kalman gain.
func (t *Track) predict() {
	if t.filter == nil {
		return
	}
	t.filter.Predict()
	x, y := t.filter.GetState()
	t.predicted = Point{X: x, Y: y}
	t.hasPrediction = true
}

// update appends the matched detection and refreshes the filter state.
func (t *Track) update(d Detection) {
	t.Detections = append(t.Detections, d)
	t.LastSeen = d.FrameIndex
	if t.filter != nil {
		c := d.Box.Center()
		if err := t.filter.Update(c.X, c.Y); err != nil {
			// Singular measurement matrix. Fall back to raw centers for the
			// rest of the track.
			t.filter = nil
			t.hasPrediction = false
		}
	}
}

func (t *Track) close() {
	t.State = Closed
}
