package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/reid/internal/config"
	"github.com/kozaktomas/reid/internal/detect"
	"github.com/kozaktomas/reid/internal/embed"
	"github.com/kozaktomas/reid/internal/identity"
	"github.com/kozaktomas/reid/internal/registry"
	"github.com/kozaktomas/reid/internal/tracker"
)

// firstDetectionFile is the face crop saved when a track opens.
const firstDetectionFile = "first_detection.jpg"

// Runner drives one session through the pipeline: frames in, roster out.
// Catalogue writes are staged until the whole video processed cleanly; a
// session that fails mid-stream leaves the catalogue untouched.
type Runner struct {
	cfg       config.Config
	detector  detect.Detector
	provider  embed.Provider
	matcher   *identity.Matcher
	catalogue identity.Catalogue
	store     Store
	blobs     BlobStore
	mode      Mode
	progress  func(frameIndex int)
	faceSaved func(sessionID, personID, filename string, frameIndex int)
}

// NewRunner wires the pipeline. blobs may be nil to skip crop persistence,
// progress may be nil.
func NewRunner(cfg config.Config, detector detect.Detector, provider embed.Provider, catalogue identity.Catalogue, store Store, blobs BlobStore) *Runner {
	return &Runner{
		cfg:       cfg,
		detector:  detector,
		provider:  provider,
		matcher:   identity.NewMatcher(catalogue, cfg.Matcher.SimilarityThreshold),
		catalogue: catalogue,
		store:     store,
		blobs:     blobs,
		mode:      ModeDetectIdentify,
	}
}

// SetMode switches the workflow mode. ModeDetect skips catalogue resolution
// entirely; every track stays detected-only.
func (r *Runner) SetMode(mode Mode) {
	r.mode = mode
}

// OnProgress registers a callback invoked after each processed frame.
func (r *Runner) OnProgress(fn func(frameIndex int)) {
	r.progress = fn
}

// OnFaceSaved registers a callback invoked after a face crop was persisted,
// used to record crop metadata alongside the blob.
func (r *Runner) OnFaceSaved(fn func(sessionID, personID, filename string, frameIndex int)) {
	r.faceSaved = fn
}

// Result is the outcome of a completed session.
type Result struct {
	Session *Session
	Roster  []RosterEntry
	Summary Summary
}

// Run processes every frame of the source, then commits the staged track
// resolutions and builds the roster. On any fatal error the session is marked
// failed with the frame index reached and no identity is created or updated.
func (r *Runner) Run(ctx context.Context, source detect.FrameSource, videoHash string) (*Result, error) {
	if err := r.cfg.Validate(); err != nil {
		return nil, err
	}

	sess := &Session{
		ID:            uuid.New().String(),
		VideoHash:     videoHash,
		Mode:          r.mode,
		Status:        StatusProcessing,
		StartedAt:     time.Now(),
		FailedAtFrame: -1,
	}
	if err := r.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	tr := tracker.New(r.cfg.Tracker)
	policy, err := config.ParseSamplingPolicy(r.cfg.Embedding.SamplingPolicy)
	if err != nil {
		return nil, r.fail(ctx, sess, 0, err)
	}
	reg := registry.New(r.provider, policy, r.cfg.Embedding.Dim)

	var closed []*tracker.Track
	lastFrame := -1

	for {
		frame, err := source.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, r.fail(ctx, sess, lastFrame+1, fmt.Errorf("reading frame: %w", err))
		}
		lastFrame = frame.Index

		detections, err := r.detector.Detect(ctx, frame)
		if err != nil {
			// detection failures are fatal, the gap would corrupt tracking
			return nil, r.fail(ctx, sess, frame.Index, fmt.Errorf("detection at frame %d: %w", frame.Index, err))
		}

		for _, ev := range tr.Advance(frame.Index, detections) {
			switch ev.Type {
			case tracker.TrackOpened, tracker.TrackUpdated:
				r.offerFace(ctx, reg, sess.ID, frame, ev)
			case tracker.TrackClosed:
				closed = append(closed, ev.Track)
			}
		}

		sess.FramesProcessed = frame.Index + 1
		if r.progress != nil {
			r.progress(frame.Index)
		}
	}

	for _, ev := range tr.Flush() {
		closed = append(closed, ev.Track)
	}

	resolutions, err := r.resolve(ctx, reg, sess.ID, closed)
	if err != nil {
		return nil, r.fail(ctx, sess, lastFrame, err)
	}

	roster, summary, err := BuildRoster(ctx, r.catalogue, sess.ID, resolutions)
	if err != nil {
		return nil, r.fail(ctx, sess, lastFrame, err)
	}
	if err := r.store.SaveRoster(ctx, roster); err != nil {
		return nil, r.fail(ctx, sess, lastFrame, fmt.Errorf("saving roster: %w", err))
	}

	sess.Status = StatusCompleted
	sess.CompletedAt = time.Now()
	if err := r.store.UpdateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("completing session: %w", err)
	}

	return &Result{Session: sess, Roster: roster, Summary: summary}, nil
}

// offerFace crops the head region and offers it to the registry. Everything
// here is recoverable: a track that never yields a face stays detected-only.
func (r *Runner) offerFace(ctx context.Context, reg *registry.Registry, sessionID string, frame detect.Frame, ev tracker.Event) {
	crop, err := detect.HeadCrop(frame.Image, ev.Detection.Box)
	if err != nil {
		fmt.Printf("  warning: track %s frame %d: %v\n", ev.Track.ID, frame.Index, err)
		return
	}

	if ev.Type == tracker.TrackOpened && r.blobs != nil {
		if err := r.blobs.Save(ctx, sessionID, ev.Track.ID, firstDetectionFile, crop); err != nil {
			fmt.Printf("  warning: saving crop for track %s: %v\n", ev.Track.ID, err)
		} else if r.faceSaved != nil {
			r.faceSaved(sessionID, ev.Track.ID, firstDetectionFile, frame.Index)
		}
	}

	// Detect-only sessions keep the crops but never embed, so every track
	// stays without a reference and resolves as detected-only.
	if r.mode == ModeDetect {
		return
	}

	sampled, err := reg.Register(ctx, ev.Track.ID, frame.Index, crop)
	if err != nil {
		fmt.Printf("  warning: track %s frame %d: %v\n", ev.Track.ID, frame.Index, err)
		return
	}
	if sampled && ev.Type != tracker.TrackOpened && r.blobs != nil {
		name := fmt.Sprintf("frame_%06d.jpg", frame.Index)
		if err := r.blobs.Save(ctx, sessionID, ev.Track.ID, name, crop); err != nil {
			fmt.Printf("  warning: saving crop for track %s: %v\n", ev.Track.ID, err)
		} else if r.faceSaved != nil {
			r.faceSaved(sessionID, ev.Track.ID, name, frame.Index)
		}
	}
}

// resolve turns closed tracks into resolutions. All tracks with a usable
// reference go to the catalogue as one atomic batch, so a session that fails
// or is cancelled here creates no identities at all. It runs only after the
// full video processed without a fatal error.
func (r *Runner) resolve(ctx context.Context, reg *registry.Registry, sessionID string, closed []*tracker.Track) ([]TrackResolution, error) {
	resolutions := make([]TrackResolution, 0, len(closed))
	var proposals []identity.Proposal
	var proposalIdx []int

	for _, t := range closed {
		res := TrackResolution{
			TrackID:        t.ID,
			IdentityID:     t.ID,
			FirstSeenFrame: t.FirstSeen,
			LastSeenFrame:  t.LastSeen,
		}

		ref, err := reg.Reference(t.ID)
		switch {
		case errors.Is(err, registry.ErrNotAvailable):
			// detected-only
		case err != nil:
			return nil, fmt.Errorf("reference for track %s: %w", t.ID, err)
		default:
			proposals = append(proposals, identity.Proposal{ProposedID: t.ID, Reference: ref})
			proposalIdx = append(proposalIdx, len(resolutions))
		}

		resolutions = append(resolutions, res)
	}

	if len(proposals) == 0 {
		return resolutions, nil
	}

	resolved, err := r.matcher.ResolveSession(ctx, sessionID, proposals)
	if err != nil {
		return nil, err
	}
	for i, matched := range resolved {
		res := &resolutions[proposalIdx[i]]
		res.IdentityID = matched.IdentityID
		res.Identified = true
		res.NewIdentity = !matched.Matched
		res.Similarity = matched.Similarity
	}
	return resolutions, nil
}

// fail marks the session failed at the given frame and returns the original
// error wrapped. The catalogue is never touched on this path.
func (r *Runner) fail(ctx context.Context, sess *Session, frameIndex int, cause error) error {
	sess.Status = StatusFailed
	sess.FailedAtFrame = frameIndex
	sess.CompletedAt = time.Now()
	if err := r.store.UpdateSession(ctx, sess); err != nil {
		return fmt.Errorf("marking session failed: %v (original: %w)", err, cause)
	}
	return fmt.Errorf("session %s failed at frame %d: %w", sess.ID, frameIndex, cause)
}
