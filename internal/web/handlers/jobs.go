package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/kozaktomas/reid/internal/session"
)

// eventChannelBuffer is the per-listener event buffer; slow SSE clients drop
// events rather than block the pipeline.
const eventChannelBuffer = 64

// JobStatus represents the status of an async job.
type JobStatus string

// JobStatus constants define the lifecycle states of an async job.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// ProcessJob represents one async video processing run.
type ProcessJob struct {
	EventBroadcaster

	ID              string           `json:"id"`
	SessionID       string           `json:"session_id,omitempty"`
	FramesDir       string           `json:"frames_dir"`
	VideoHash       string           `json:"video_hash,omitempty"`
	Status          JobStatus        `json:"status"`
	ProcessedFrames int              `json:"processed_frames"`
	TotalFrames     int              `json:"total_frames"`
	Error           string           `json:"error,omitempty"`
	StartedAt       time.Time        `json:"started_at"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`
	Summary         *session.Summary `json:"summary,omitempty"`
}

// GetStatus returns the current job status (implements SSEJob).
func (j *ProcessJob) GetStatus() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// Cancel cancels the processing job.
func (j *ProcessJob) Cancel() {
	j.EventBroadcaster.Cancel()
	j.mu.Lock()
	j.Status = JobStatusCancelled
	j.mu.Unlock()
}

// setProgress updates the frame counter under the lock.
func (j *ProcessJob) setProgress(processed int) {
	j.mu.Lock()
	j.ProcessedFrames = processed
	j.mu.Unlock()
}

// finish moves the job to a terminal state.
func (j *ProcessJob) finish(status JobStatus, errMsg string, summary *session.Summary) {
	now := time.Now()
	j.mu.Lock()
	if j.Status != JobStatusCancelled {
		j.Status = status
	}
	j.Error = errMsg
	j.CompletedAt = &now
	j.Summary = summary
	j.mu.Unlock()
}

// snapshot returns a copy safe to serialize while the job keeps running.
func (j *ProcessJob) snapshot() ProcessJob {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return ProcessJob{
		ID:              j.ID,
		SessionID:       j.SessionID,
		FramesDir:       j.FramesDir,
		VideoHash:       j.VideoHash,
		Status:          j.Status,
		ProcessedFrames: j.ProcessedFrames,
		TotalFrames:     j.TotalFrames,
		Error:           j.Error,
		StartedAt:       j.StartedAt,
		CompletedAt:     j.CompletedAt,
		Summary:         j.Summary,
	}
}

// JobEvent represents an event from a job.
type JobEvent struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// EventBroadcaster provides listener management and event broadcasting for
// async jobs. Embed this in job structs to get AddListener, RemoveListener,
// and SendEvent methods.
type EventBroadcaster struct {
	cancel    context.CancelFunc
	listeners []chan JobEvent
	mu        sync.RWMutex
}

// AddListener adds an event listener.
func (b *EventBroadcaster) AddListener() chan JobEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan JobEvent, eventChannelBuffer)
	b.listeners = append(b.listeners, ch)
	return ch
}

// RemoveListener removes an event listener.
func (b *EventBroadcaster) RemoveListener(ch chan JobEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// SendEvent sends an event to all listeners.
func (b *EventBroadcaster) SendEvent(event JobEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, listener := range b.listeners {
		select {
		case listener <- event:
		default:
			// Listener buffer full, skip.
		}
	}
}

// Cancel cancels the job via context and sends a cancelled event.
func (b *EventBroadcaster) Cancel() {
	if b.cancel != nil {
		b.cancel()
	}
	b.SendEvent(JobEvent{Type: "cancelled", Message: "Job cancelled by user"})
}

// SSEJob is the interface required by streamSSEEvents to stream job events via SSE.
type SSEJob interface {
	AddListener() chan JobEvent
	RemoveListener(ch chan JobEvent)
	GetStatus() JobStatus
}

// JobManager manages async jobs.
type JobManager struct {
	jobs map[string]*ProcessJob
	mu   sync.RWMutex
}

// NewJobManager creates a new job manager.
func NewJobManager() *JobManager {
	return &JobManager{
		jobs: make(map[string]*ProcessJob),
	}
}

// CreateJob creates a new processing job.
func (m *JobManager) CreateJob(id, framesDir, videoHash string, totalFrames int) *ProcessJob {
	job := &ProcessJob{
		ID:          id,
		FramesDir:   framesDir,
		VideoHash:   videoHash,
		Status:      JobStatusPending,
		TotalFrames: totalFrames,
		StartedAt:   time.Now(),
	}

	m.mu.Lock()
	m.jobs[id] = job
	m.mu.Unlock()

	return job
}

// GetJob retrieves a job by ID.
func (m *JobManager) GetJob(id string) *ProcessJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// ListJobs returns all jobs.
func (m *JobManager) ListJobs() []*ProcessJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	jobs := make([]*ProcessJob, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	return jobs
}
