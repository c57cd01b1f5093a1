package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// maxBodyBytes bounds POST request bodies.
const maxBodyBytes = 1 << 20

// BracketRequest starts a bracketing run. Bounds are device choice strings.
type BracketRequest struct {
	ShutterMin string `json:"shutter_min"`
	ShutterMax string `json:"shutter_max"`
	Aperture   string `json:"aperture,omitempty"`
}

// TimeLapseRequest starts a time-lapse run.
type TimeLapseRequest struct {
	Count        int    `json:"count"`
	IntervalMs   int    `json:"interval_ms"`
	Aperture     string `json:"aperture,omitempty"`
	ShutterSpeed string `json:"shutter_speed,omitempty"`
}

// Settings is the current exposure and the values the camera accepts.
type Settings struct {
	Aperture            string   `json:"aperture"`
	ShutterSpeed        string   `json:"shutter_speed"`
	ApertureChoices     []string `json:"aperture_choices"`
	ShutterSpeedChoices []string `json:"shutter_speed_choices"`
}

// Jobs are the camera operations the handlers can start. A nil field
// makes the matching endpoint answer 503.
type Jobs struct {
	Bracket   func(ctx context.Context, req BracketRequest) error
	TimeLapse func(ctx context.Context, req TimeLapseRequest) error
	Settings  func(ctx context.Context) (Settings, error)
}

// FormConfig holds default values for the capture forms (from config).
type FormConfig struct {
	Bracket   BracketRequest   `json:"bracket"`
	TimeLapse TimeLapseRequest `json:"timelapse"`
}

// ValidateBracket checks the request shape. Whether the bounds exist on
// the camera is only known once the run starts.
func ValidateBracket(req BracketRequest) error {
	if req.ShutterMin == "" {
		return errors.New("shutter_min is required")
	}
	if req.ShutterMax == "" {
		return errors.New("shutter_max is required")
	}
	return nil
}

// ValidateTimeLapse checks count and interval ranges.
func ValidateTimeLapse(req TimeLapseRequest) error {
	if req.Count < 1 || req.Count > 10000 {
		return fmt.Errorf("count must be between 1 and 10000, got %d", req.Count)
	}
	if req.IntervalMs < 0 || req.IntervalMs > 24*60*60*1000 {
		return fmt.Errorf("interval_ms must be between 0 and 86400000, got %d", req.IntervalMs)
	}
	return nil
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster  *StatusBroadcaster
	Jobs         Jobs
	FormDefaults FormConfig

	// BaseContext is the parent of every run context; cancelling it stops
	// a running sequence between two shots.
	BaseContext context.Context

	runningMu sync.Mutex
	running   bool
	wg        sync.WaitGroup
	staticFS  fs.FS
}

// NewHandlers creates handlers with the given dependencies.
func NewHandlers(broadcaster *StatusBroadcaster, jobs Jobs, formDefaults FormConfig, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster:  broadcaster,
		Jobs:         jobs,
		FormDefaults: formDefaults,
		BaseContext:  context.Background(),
		staticFS:     staticFS,
	}
}

// HandleConfig returns the form default values as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.FormDefaults)
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleBracket handles POST /bracket.
func (h *Handlers) HandleBracket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req BracketRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := ValidateBracket(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if h.Jobs.Bracket == nil {
		http.Error(w, "bracketing not configured", http.StatusServiceUnavailable)
		return
	}
	h.start(w, "bracket", func(ctx context.Context) error {
		return h.Jobs.Bracket(ctx, req)
	})
}

// HandleTimeLapse handles POST /timelapse.
func (h *Handlers) HandleTimeLapse(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req TimeLapseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := ValidateTimeLapse(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if h.Jobs.TimeLapse == nil {
		http.Error(w, "time-lapse not configured", http.StatusServiceUnavailable)
		return
	}
	h.start(w, "timelapse", func(ctx context.Context) error {
		return h.Jobs.TimeLapse(ctx, req)
	})
}

// HandleSettings handles GET /settings. The camera is busy during a run,
// so the request is refused with 409 meanwhile.
func (h *Handlers) HandleSettings(w http.ResponseWriter, r *http.Request) {
	if h.Jobs.Settings == nil {
		http.Error(w, "settings not configured", http.StatusServiceUnavailable)
		return
	}
	if !h.acquire() {
		http.Error(w, "capture in progress", http.StatusConflict)
		return
	}
	defer h.release()

	s, err := h.Jobs.Settings(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handlers) acquire() bool {
	h.runningMu.Lock()
	defer h.runningMu.Unlock()
	if h.running {
		return false
	}
	h.running = true
	return true
}

func (h *Handlers) release() {
	h.runningMu.Lock()
	h.running = false
	h.runningMu.Unlock()
}

// start runs job in a goroutine unless another one holds the camera.
func (h *Handlers) start(w http.ResponseWriter, kind string, job func(ctx context.Context) error) {
	if !h.acquire() {
		http.Error(w, "capture already in progress", http.StatusConflict)
		return
	}

	runID := uuid.NewString()
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer h.release()

		begin := time.Now()
		h.Broadcaster.BroadcastRun(runID, "info", kind+" started")
		if err := job(h.BaseContext); err != nil {
			h.Broadcaster.BroadcastRun(runID, "error", kind+" failed: "+err.Error())
			log.WithError(err).WithFields(log.Fields{"kind": kind, "run_id": runID}).Error("run failed")
			return
		}
		h.Broadcaster.BroadcastRun(runID, "info", fmt.Sprintf("%s complete in %s", kind, time.Since(begin).Round(time.Millisecond)))
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started", "run_id": runID})
}

// Wait blocks until the running job, if any, returns.
func (h *Handlers) Wait() {
	h.wg.Wait()
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
