package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kozaktomas/reid/internal/detect"
	"github.com/kozaktomas/reid/internal/session"
	"github.com/kozaktomas/reid/internal/video"
)

// processRequest starts a processing job over a directory of extracted
// frames. video_path is optional; when given, its content hash is registered
// and an already-seen video is rejected unless allow_duplicate is set.
type processRequest struct {
	FramesDir      string `json:"frames_dir"`
	VideoPath      string `json:"video_path,omitempty"`
	Mode           string `json:"mode,omitempty"`
	AllowDuplicate bool   `json:"allow_duplicate,omitempty"`
}

// StartProcess handles POST /api/process.
func (h *Handlers) StartProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.FramesDir == "" {
		respondError(w, http.StatusBadRequest, "frames_dir is required")
		return
	}

	mode, err := session.ParseMode(req.Mode)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	source, err := detect.NewDirSource(req.FramesDir)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var hash string
	if req.VideoPath != "" {
		hash, err = video.ContentHashFile(req.VideoPath)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		if h.videos != nil {
			info, err := os.Stat(req.VideoPath)
			if err != nil {
				respondError(w, http.StatusBadRequest, err.Error())
				return
			}
			duplicate, err := h.videos.Register(r.Context(), &video.OriginalVideo{
				Hash:      hash,
				Filename:  info.Name(),
				SizeBytes: info.Size(),
			})
			if err != nil {
				respondError(w, http.StatusInternalServerError, err.Error())
				return
			}
			if duplicate && !req.AllowDuplicate {
				respondError(w, http.StatusConflict,
					fmt.Sprintf("video already processed (hash %s)", hash))
				return
			}
		}
	}

	job := h.jobs.CreateJob(uuid.New().String(), req.FramesDir, hash, source.Len())
	jobCtx, cancel := context.WithCancel(context.Background())
	job.cancel = cancel

	go func() {
		defer cancel()
		h.runJob(jobCtx, job, source, hash, mode)
	}()

	respondJSON(w, http.StatusAccepted, job.snapshot())
}

// runJob drives the pipeline for one job and broadcasts progress.
func (h *Handlers) runJob(ctx context.Context, job *ProcessJob, source detect.FrameSource, hash string, mode session.Mode) {
	job.mu.Lock()
	job.Status = JobStatusRunning
	job.mu.Unlock()

	runner := h.newRunner()
	runner.SetMode(mode)
	runner.OnProgress(func(frameIndex int) {
		job.setProgress(frameIndex + 1)
		job.SendEvent(JobEvent{Type: "progress", Data: map[string]int{
			"processed_frames": frameIndex + 1,
			"total_frames":     job.TotalFrames,
		}})
	})

	result, err := runner.Run(ctx, source, hash)
	if err != nil {
		job.finish(JobStatusFailed, err.Error(), nil)
		job.SendEvent(JobEvent{Type: "failed", Message: err.Error()})
		return
	}

	job.mu.Lock()
	job.SessionID = result.Session.ID
	job.mu.Unlock()

	job.finish(JobStatusCompleted, "", &result.Summary)
	job.SendEvent(JobEvent{Type: "completed", Data: result.Summary})
}

// GetJob handles GET /api/jobs/{jobId}.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	job := h.jobs.GetJob(chi.URLParam(r, "jobId"))
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	respondJSON(w, http.StatusOK, job.snapshot())
}

// ListJobs handles GET /api/jobs.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := h.jobs.ListJobs()
	out := make([]ProcessJob, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.snapshot())
	}
	respondJSON(w, http.StatusOK, map[string]any{"jobs": out, "count": len(out)})
}

// CancelJob handles POST /api/jobs/{jobId}/cancel.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	job := h.jobs.GetJob(chi.URLParam(r, "jobId"))
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	if isJobTerminal(job.GetStatus()) {
		respondError(w, http.StatusConflict, "job already finished")
		return
	}
	job.Cancel()
	respondJSON(w, http.StatusOK, job.snapshot())
}

// JobEvents handles GET /api/jobs/{jobId}/events as an SSE stream.
func (h *Handlers) JobEvents(w http.ResponseWriter, r *http.Request) {
	streamSSEEvents(w, r,
		func(id string) SSEJob {
			if job := h.jobs.GetJob(id); job != nil {
				return job
			}
			return nil
		},
		func(j SSEJob) any {
			return j.(*ProcessJob).snapshot()
		})
}
