package session

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"sync"
	"testing"

	"github.com/kozaktomas/reid/internal/config"
	"github.com/kozaktomas/reid/internal/detect"
	"github.com/kozaktomas/reid/internal/embed"
	"github.com/kozaktomas/reid/internal/identity"
	"github.com/kozaktomas/reid/internal/tracker"
)

func testConfig() config.Config {
	return config.Config{
		Tracker: config.TrackerConfig{
			MaxProximityDistance: 50.0,
			MaxFrameGap:          2,
			MinConfidence:        0.5,
		},
		Matcher:   config.MatcherConfig{SimilarityThreshold: 0.8},
		Embedding: config.EmbeddingConfig{Dim: 4, SamplingPolicy: "first"},
	}
}

var testFrameImage = func() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 640, 480))
	for y := 0; y < 480; y++ {
		for x := 0; x < 640; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 64, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		panic(err)
	}
	return buf.Bytes()
}()

// sliceSource serves a fixed number of frames of the shared test image.
type sliceSource struct {
	count int
	pos   int
}

func (s *sliceSource) Next(ctx context.Context) (detect.Frame, error) {
	if err := ctx.Err(); err != nil {
		return detect.Frame{}, err
	}
	if s.pos >= s.count {
		return detect.Frame{}, io.EOF
	}
	f := detect.Frame{Index: s.pos, Image: testFrameImage}
	s.pos++
	return f, nil
}

// scriptedDetector returns the scripted boxes for each frame index and can be
// told to fail at a specific frame.
type scriptedDetector struct {
	boxes  map[int][]tracker.Rect
	failAt int // -1 to never fail
}

func (d *scriptedDetector) Detect(_ context.Context, frame detect.Frame) ([]tracker.Detection, error) {
	if d.failAt >= 0 && frame.Index == d.failAt {
		return nil, fmt.Errorf("detector unavailable")
	}
	var out []tracker.Detection
	for _, box := range d.boxes[frame.Index] {
		out = append(out, tracker.Detection{FrameIndex: frame.Index, Box: box, Confidence: 0.9})
	}
	return out, nil
}

// queueProvider returns scripted embeddings in call order.
type queueProvider struct {
	vectors [][]float32
	errs    []error
	calls   int
}

func (p *queueProvider) Embed(_ context.Context, _ []byte) ([]float32, error) {
	if p.calls >= len(p.vectors) {
		return nil, fmt.Errorf("unexpected embed call %d", p.calls)
	}
	i := p.calls
	p.calls++
	if p.errs != nil && p.errs[i] != nil {
		return nil, p.errs[i]
	}
	return p.vectors[i], nil
}

// memStore is an in-memory session store.
type memStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	rosters  []RosterEntry
}

func newMemStore() *memStore {
	return &memStore{sessions: make(map[string]*Session)}
}

func (s *memStore) CreateSession(_ context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *memStore) UpdateSession(_ context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; !ok {
		return fmt.Errorf("session %s not found", sess.ID)
	}
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *memStore) GetSession(_ context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s not found", id)
	}
	cp := *sess
	return &cp, nil
}

func (s *memStore) ListSessions(_ context.Context) ([]*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		cp := *sess
		out = append(out, &cp)
	}
	return out, nil
}

func (s *memStore) SaveRoster(_ context.Context, entries []RosterEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rosters = append(s.rosters, entries...)
	return nil
}

func (s *memStore) Roster(_ context.Context, sessionID string) ([]RosterEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []RosterEntry
	for _, e := range s.rosters {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func box(x, y float64) tracker.Rect {
	return tracker.Rect{X: x, Y: y, Width: 60, Height: 160}
}

func runOnce(t *testing.T, catalogue identity.Catalogue, provider embed.Provider, det *scriptedDetector, frames int) *Result {
	t.Helper()
	store := newMemStore()
	r := NewRunner(testConfig(), det, provider, catalogue, store, nil)
	res, err := r.Run(context.Background(), &sliceSource{count: frames}, "hash")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return res
}

func TestReidentificationAcrossSessions(t *testing.T) {
	catalogue := identity.NewMemoryCatalogue()
	face := []float32{1, 0, 0, 0}

	// same person walks through two separate videos
	det := func() *scriptedDetector {
		return &scriptedDetector{
			boxes: map[int][]tracker.Rect{
				0: {box(100, 100)},
				1: {box(110, 100)},
				2: {box(120, 100)},
			},
			failAt: -1,
		}
	}

	first := runOnce(t, catalogue, &queueProvider{vectors: [][]float32{face}}, det(), 3)
	if len(first.Roster) != 1 {
		t.Fatalf("expected 1 roster entry, got %d", len(first.Roster))
	}
	if first.Roster[0].Type != TypeIdentified {
		t.Errorf("expected identified entry, got %s", first.Roster[0].Type)
	}
	if !first.Roster[0].NewThisSession {
		t.Error("first session should report a new identity")
	}
	if first.Roster[0].SessionAppearances != 1 {
		t.Errorf("expected 1 session appearance, got %d", first.Roster[0].SessionAppearances)
	}

	second := runOnce(t, catalogue, &queueProvider{vectors: [][]float32{face}}, det(), 3)
	if len(second.Roster) != 1 {
		t.Fatalf("expected 1 roster entry, got %d", len(second.Roster))
	}
	if second.Roster[0].PersonID != first.Roster[0].PersonID {
		t.Errorf("expected re-identification to keep ID %s, got %s",
			first.Roster[0].PersonID, second.Roster[0].PersonID)
	}
	if second.Roster[0].NewThisSession {
		t.Error("second session should not report a new identity")
	}
	if second.Roster[0].SessionAppearances != 2 {
		t.Errorf("expected 2 session appearances, got %d", second.Roster[0].SessionAppearances)
	}

	count, err := catalogue.Count(context.Background())
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 catalogued identity, got %d", count)
	}
}

func TestSameSessionTracksDeduplicate(t *testing.T) {
	catalogue := identity.NewMemoryCatalogue()
	face := []float32{0, 1, 0, 0}

	// person leaves at frame 1 and returns at frame 6, past the gap of 2,
	// so the tracker opens a second track for the same face
	det := &scriptedDetector{
		boxes: map[int][]tracker.Rect{
			0: {box(100, 100)},
			1: {box(110, 100)},
			6: {box(400, 100)},
			7: {box(410, 100)},
		},
		failAt: -1,
	}

	res := runOnce(t, catalogue, &queueProvider{vectors: [][]float32{face, face}}, det, 8)

	if len(res.Roster) != 1 {
		t.Fatalf("expected both tracks to merge into 1 roster entry, got %d", len(res.Roster))
	}
	entry := res.Roster[0]
	if entry.SessionAppearances != 1 {
		t.Errorf("same-session re-entry must count once, got %d", entry.SessionAppearances)
	}
	if entry.FirstSeenFrame != 0 || entry.LastSeenFrame != 7 {
		t.Errorf("expected merged seen range [0, 7], got [%d, %d]",
			entry.FirstSeenFrame, entry.LastSeenFrame)
	}
	if res.Summary.TotalUniquePersons != 1 || res.Summary.IdentifiedCount != 1 {
		t.Errorf("unexpected summary: %+v", res.Summary)
	}
}

func TestDetectedOnlyTrack(t *testing.T) {
	catalogue := identity.NewMemoryCatalogue()

	det := &scriptedDetector{
		boxes: map[int][]tracker.Rect{
			0: {box(100, 100)},
			1: {box(110, 100)},
		},
		failAt: -1,
	}
	provider := &queueProvider{
		vectors: [][]float32{nil, nil},
		errs:    []error{embed.ErrNoFace, embed.ErrNoFace},
	}

	res := runOnce(t, catalogue, provider, det, 2)

	if len(res.Roster) != 1 {
		t.Fatalf("expected 1 roster entry, got %d", len(res.Roster))
	}
	if res.Roster[0].Type != TypeDetected {
		t.Errorf("expected detected entry, got %s", res.Roster[0].Type)
	}
	if res.Roster[0].SessionAppearances != 1 {
		t.Errorf("detected-only person must count 1, got %d", res.Roster[0].SessionAppearances)
	}
	if res.Summary.DetectedCount != 1 || res.Summary.IdentifiedCount != 0 {
		t.Errorf("unexpected summary: %+v", res.Summary)
	}

	count, _ := catalogue.Count(context.Background())
	if count != 0 {
		t.Errorf("detected-only tracks must not enter the catalogue, got %d identities", count)
	}
}

func TestDetectionFailureLeavesCatalogueUntouched(t *testing.T) {
	catalogue := identity.NewMemoryCatalogue()
	store := newMemStore()

	det := &scriptedDetector{
		boxes: map[int][]tracker.Rect{
			0: {box(100, 100)},
			1: {box(110, 100)},
		},
		failAt: 2,
	}
	provider := &queueProvider{vectors: [][]float32{{1, 0, 0, 0}}}

	r := NewRunner(testConfig(), det, provider, catalogue, store, nil)
	_, err := r.Run(context.Background(), &sliceSource{count: 4}, "hash")
	if err == nil {
		t.Fatal("expected run to fail on detection error")
	}

	sessions, _ := store.ListSessions(context.Background())
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	if sessions[0].Status != StatusFailed {
		t.Errorf("expected failed session, got %s", sessions[0].Status)
	}
	if sessions[0].FailedAtFrame != 2 {
		t.Errorf("expected failure at frame 2, got %d", sessions[0].FailedAtFrame)
	}

	count, _ := catalogue.Count(context.Background())
	if count != 0 {
		t.Errorf("aborted session must not mutate the catalogue, got %d identities", count)
	}
	if len(store.rosters) != 0 {
		t.Errorf("aborted session must not persist a roster, got %d entries", len(store.rosters))
	}
}

// cancellingCatalogue cancels the run's context just as resolution starts,
// simulating a shutdown that lands between frame processing and the commit.
type cancellingCatalogue struct {
	identity.Catalogue
	cancel context.CancelFunc
}

func (c *cancellingCatalogue) ResolveSession(ctx context.Context, sessionID string, proposals []identity.Proposal, threshold float64) ([]identity.Resolution, error) {
	c.cancel()
	return c.Catalogue.ResolveSession(ctx, sessionID, proposals, threshold)
}

func TestCancelDuringResolveLeavesCatalogueUntouched(t *testing.T) {
	inner := identity.NewMemoryCatalogue()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	catalogue := &cancellingCatalogue{Catalogue: inner, cancel: cancel}
	store := newMemStore()

	// two separate persons, so a partial commit would be observable
	det := &scriptedDetector{
		boxes: map[int][]tracker.Rect{
			0: {box(100, 100), box(400, 100)},
			1: {box(110, 100), box(410, 100)},
		},
		failAt: -1,
	}
	provider := &queueProvider{vectors: [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}}

	r := NewRunner(testConfig(), det, provider, catalogue, store, nil)
	_, err := r.Run(ctx, &sliceSource{count: 2}, "hash")
	if err == nil {
		t.Fatal("expected run to fail when cancelled during resolution")
	}

	sessions, _ := store.ListSessions(context.Background())
	if len(sessions) != 1 || sessions[0].Status != StatusFailed {
		t.Fatalf("expected 1 failed session, got %+v", sessions)
	}

	count, _ := inner.Count(context.Background())
	if count != 0 {
		t.Errorf("cancelled resolution must leave no identities, got %d", count)
	}
	if len(store.rosters) != 0 {
		t.Errorf("cancelled resolution must not persist a roster, got %d entries", len(store.rosters))
	}
}

func TestInvalidConfigurationFailsFast(t *testing.T) {
	cfg := testConfig()
	cfg.Matcher.SimilarityThreshold = 1.5

	r := NewRunner(cfg, &scriptedDetector{failAt: -1}, &queueProvider{}, identity.NewMemoryCatalogue(), newMemStore(), nil)
	if _, err := r.Run(context.Background(), &sliceSource{count: 1}, "hash"); err == nil {
		t.Fatal("expected configuration error")
	}
}

func TestDetectModeSkipsIdentification(t *testing.T) {
	catalogue := identity.NewMemoryCatalogue()
	store := newMemStore()

	det := &scriptedDetector{
		boxes: map[int][]tracker.Rect{
			0: {box(100, 100)},
			1: {box(110, 100)},
		},
		failAt: -1,
	}

	// the provider would fail the test if the runner embedded anything
	r := NewRunner(testConfig(), det, &queueProvider{}, catalogue, store, nil)
	r.SetMode(ModeDetect)
	res, err := r.Run(context.Background(), &sliceSource{count: 2}, "hash")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if res.Session.Mode != ModeDetect {
		t.Errorf("expected detect mode on session, got %s", res.Session.Mode)
	}
	if len(res.Roster) != 1 || res.Roster[0].Type != TypeDetected {
		t.Fatalf("detect mode must leave tracks detected-only, got %+v", res.Roster)
	}
	count, _ := catalogue.Count(context.Background())
	if count != 0 {
		t.Errorf("detect mode must not touch the catalogue, got %d identities", count)
	}
}

func TestParseMode(t *testing.T) {
	cases := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{in: "", want: ModeDetectIdentify},
		{in: "detect", want: ModeDetect},
		{in: "detect_identify", want: ModeDetectIdentify},
		{in: "detect_identify_payment", want: ModeDetectIdentifyPayment},
		{in: "identify", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseMode(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseMode(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseMode(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseMode(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestTwoDistinctPersons(t *testing.T) {
	catalogue := identity.NewMemoryCatalogue()

	det := &scriptedDetector{
		boxes: map[int][]tracker.Rect{
			0: {box(100, 100), box(400, 100)},
			1: {box(110, 100), box(410, 100)},
		},
		failAt: -1,
	}
	provider := &queueProvider{vectors: [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}}

	res := runOnce(t, catalogue, provider, det, 2)

	if len(res.Roster) != 2 {
		t.Fatalf("expected 2 roster entries, got %d", len(res.Roster))
	}
	if res.Summary.TotalUniquePersons != 2 || res.Summary.IdentifiedCount != 2 {
		t.Errorf("unexpected summary: %+v", res.Summary)
	}

	count, _ := catalogue.Count(context.Background())
	if count != 2 {
		t.Errorf("expected 2 catalogued identities, got %d", count)
	}
}
