package tracker

import (
	"container/heap"
	"math"

	"github.com/kozaktomas/reid/internal/config"
)

// EventType classifies what happened to a track during Advance.
type EventType int

const (
	TrackOpened EventType = iota
	TrackUpdated
	TrackClosed
)

// Event is emitted by Advance for downstream processing. Detection is set for
// opened and updated events; closed events carry the finished track only.
type Event struct {
	Type      EventType
	Track     *Track
	Detection *Detection
}

// Tracker maintains live person tracks within a single video using spatial
// proximity and a bounded temporal gap. Frames must be fed in index order;
// the gap and proximity logic is order-dependent.
type Tracker struct {
	cfg     config.TrackerConfig
	active  []*Track // creation order, earliest first
	nextSeq uint64
	dropped int
}

func New(cfg config.TrackerConfig) *Tracker {
	return &Tracker{cfg: cfg}
}

// Advance feeds one frame's detections to the tracker and returns the track
// events it produced. Call it for every frame, including frames with no
// detections, so gap expiry observes every frame index.
//
// Association is greedy by smallest center distance: each detection is paired
// with the nearest active track within MaxProximityDistance whose last
// detection is at most MaxFrameGap frames old. Ties break to the earliest
// created track, then to detection input order. Unmatched detections open new
// tracks. After matching, any track unseen for more than MaxFrameGap frames
// closes; closed is terminal.
func (tr *Tracker) Advance(frameIndex int, detections []Detection) []Event {
	var events []Event

	kept := make([]Detection, 0, len(detections))
	for _, d := range detections {
		if d.Confidence < tr.cfg.MinConfidence {
			tr.dropped++
			continue
		}
		d.FrameIndex = frameIndex
		kept = append(kept, d)
	}

	if tr.cfg.UsePrediction {
		for _, t := range tr.active {
			t.predict()
		}
	}

	claimed := make(map[*Track]struct{})

	pq := &candidateHeap{}
	heap.Init(pq)
	for i := range kept {
		heap.Push(pq, tr.bestCandidate(&kept[i], i, frameIndex, claimed))
	}

	for pq.Len() > 0 {
		c := heap.Pop(pq).(*candidate)
		if c.track != nil {
			if _, taken := claimed[c.track]; taken {
				// A closer detection claimed this track first. Look again
				// among the remaining unclaimed tracks.
				heap.Push(pq, tr.bestCandidate(c.det, c.order, frameIndex, claimed))
				continue
			}
			claimed[c.track] = struct{}{}
			c.track.update(*c.det)
			events = append(events, Event{Type: TrackUpdated, Track: c.track, Detection: c.det})
			continue
		}

		t := newTrack(tr.nextSeq, *c.det, tr.cfg.UsePrediction)
		tr.nextSeq++
		tr.active = append(tr.active, t)
		// A track opened this frame is not a candidate for the frame's
		// remaining detections.
		claimed[t] = struct{}{}
		events = append(events, Event{Type: TrackOpened, Track: t, Detection: c.det})
	}

	events = append(events, tr.expire(frameIndex)...)
	return events
}

// bestCandidate finds the nearest unclaimed active track for the detection.
// Active tracks are scanned in creation order, so on equal distance the
// earliest track wins.
func (tr *Tracker) bestCandidate(d *Detection, order, frameIndex int, claimed map[*Track]struct{}) *candidate {
	best := &candidate{det: d, order: order, distance: math.Inf(1)}
	center := d.Box.Center()
	for _, t := range tr.active {
		if _, taken := claimed[t]; taken {
			continue
		}
		if frameIndex-t.LastSeen > tr.cfg.MaxFrameGap {
			continue
		}
		dist := Distance(center, t.matchCenter())
		if dist > tr.cfg.MaxProximityDistance {
			continue
		}
		if dist < best.distance {
			best.distance = dist
			best.track = t
		}
	}
	return best
}

// expire closes tracks whose detection gap exceeded MaxFrameGap.
func (tr *Tracker) expire(frameIndex int) []Event {
	var events []Event
	remaining := tr.active[:0]
	for _, t := range tr.active {
		if frameIndex-t.LastSeen > tr.cfg.MaxFrameGap {
			t.close()
			events = append(events, Event{Type: TrackClosed, Track: t})
			continue
		}
		remaining = append(remaining, t)
	}
	tr.active = remaining
	return events
}

// Flush closes all remaining active tracks. Called at end of stream or when
// a session aborts.
func (tr *Tracker) Flush() []Event {
	events := make([]Event, 0, len(tr.active))
	for _, t := range tr.active {
		t.close()
		events = append(events, Event{Type: TrackClosed, Track: t})
	}
	tr.active = nil
	return events
}

// ActiveCount returns the number of currently open tracks.
func (tr *Tracker) ActiveCount() int {
	return len(tr.active)
}

// Dropped returns how many detections were discarded for falling below the
// configured confidence floor.
func (tr *Tracker) Dropped() int {
	return tr.dropped
}
