package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mystorykid/internal/domain"
	"mystorykid/internal/infra"
	"mystorykid/internal/providers/dzine"
)

// Mode selects which kind of generation a request describes.
type Mode string

const (
	ModeImageToImage Mode = "img2img"
	ModeTextToImage  Mode = "txt2img"
)

// Request describes one generation for one subject. Exactly one mode applies:
// img2img carries a reference image, txt2img a prompt only.
type Request struct {
	Mode           Mode
	Prompt         string
	StyleCode      string
	ImageData      string // data URI, img2img only
	NegativePrompt string
}

// State is the lifecycle state of one generation job.
type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StatePolling    State = "polling"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

// Terminal reports whether no further automatic transitions occur.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Snapshot is a read-only copy of one job for display.
type Snapshot struct {
	SubjectID   string
	State       State
	TaskID      string
	ResultURL   string
	ErrorReason string
	Message     string
	Confirmed   bool
	UpdatedAt   time.Time
}

// BatchSnapshot aggregates a set of jobs for gating a multi-subject step.
type BatchSnapshot struct {
	AllTerminal bool
	Succeeded   int
	Failed      int
	Pending     int
}

// TaskAPI is the slice of the external task service the coordinator drives.
type TaskAPI interface {
	CreateImg2ImgTask(ctx context.Context, req dzine.Img2ImgRequest) (string, error)
	CreateTxt2ImgTask(ctx context.Context, req dzine.Txt2ImgRequest) (string, error)
	GetTaskProgress(ctx context.Context, taskID string) (dzine.TaskProgress, error)
}

// Clock abstracts time so poll loops are testable without wall-clock waits.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

type job struct {
	subjectID   string
	state       State
	taskID      string
	resultURL   string
	errorReason string
	message     string
	confirmed   bool
	cancelled   bool
	request     Request
	cancel      context.CancelFunc
	updatedAt   time.Time
}

// Options configures the coordinator.
type Options struct {
	API          TaskAPI
	Logger       *infra.Logger
	PollInterval time.Duration
	PollTimeout  time.Duration
	Clock        Clock
}

// Coordinator drives many concurrent generation jobs against the external
// task API: one submission and one polling loop per subject, each with its
// own cancellation handle. Per-job state lives in a single mutex-guarded map;
// readers always receive copies.
type Coordinator struct {
	api      TaskAPI
	logger   infra.Logger
	interval time.Duration
	timeout  time.Duration
	clock    Clock

	mu   sync.Mutex
	jobs map[string]*job
	wg   sync.WaitGroup
}

// NewCoordinator wires a coordinator with sane defaults.
func NewCoordinator(opts Options) (*Coordinator, error) {
	if opts.API == nil {
		return nil, errors.New("generation: task api is required")
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	timeout := opts.PollTimeout
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	clock := opts.Clock
	if clock == nil {
		clock = realClock{}
	}
	var logger infra.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	} else {
		logger = zerolog.New(io.Discard)
	}
	return &Coordinator{
		api:      opts.API,
		logger:   logger,
		interval: interval,
		timeout:  timeout,
		clock:    clock,
		jobs:     make(map[string]*job),
	}, nil
}

// Submit starts a new job for the subject. A job already in flight for the
// same subject is superseded: its loop is cancelled and a fresh job replaces
// it. Submission and polling happen asynchronously; failures surface through
// the job's snapshot, never through this call.
func (c *Coordinator) Submit(subjectID string, req Request) error {
	if strings.TrimSpace(subjectID) == "" {
		return fmt.Errorf("%w: subject id", domain.ErrInvalidArgument)
	}
	ctx, cancel := context.WithCancel(context.Background())
	j := &job{
		subjectID: subjectID,
		state:     StateSubmitting,
		request:   req,
		cancel:    cancel,
		updatedAt: c.clock.Now(),
	}

	c.mu.Lock()
	if old := c.jobs[subjectID]; old != nil && !old.state.Terminal() && !old.cancelled {
		old.cancelled = true
		if old.cancel != nil {
			old.cancel()
		}
	}
	c.jobs[subjectID] = j
	c.mu.Unlock()

	c.wg.Add(1)
	go c.run(ctx, j)
	return nil
}

// Cancel tears down the subject's poll loop. Cancelling an unknown, already
// cancelled, or terminal job is a no-op: cancellation never rewrites history.
func (c *Coordinator) Cancel(subjectID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	j := c.jobs[subjectID]
	if j == nil || j.state.Terminal() || j.cancelled {
		return
	}
	j.cancelled = true
	if j.cancel != nil {
		j.cancel()
	}
	c.logger.Debug().Str("subject_id", subjectID).Msg("generation: cancelled job")
}

// Status returns a copy of the subject's job, if one exists.
func (c *Coordinator) Status(subjectID string) (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	j := c.jobs[subjectID]
	if j == nil {
		return Snapshot{}, false
	}
	return snapshotOf(j), true
}

// BatchStatus aggregates the listed subjects under one lock so the view is
// never torn across concurrently updating jobs. Subjects without a job count
// as pending.
func (c *Coordinator) BatchStatus(subjectIDs []string) BatchSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	var agg BatchSnapshot
	for _, id := range subjectIDs {
		j := c.jobs[id]
		if j == nil {
			agg.Pending++
			continue
		}
		switch j.state {
		case StateSucceeded:
			agg.Succeeded++
		case StateFailed:
			agg.Failed++
		default:
			agg.Pending++
		}
	}
	agg.AllTerminal = len(subjectIDs) > 0 && agg.Pending == 0
	return agg
}

// Confirm commits a succeeded result so the caller can discard its reference
// inputs. Only a succeeded job can be confirmed.
func (c *Coordinator) Confirm(subjectID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	j := c.jobs[subjectID]
	if j == nil {
		return domain.ErrNotFound
	}
	if j.state != StateSucceeded {
		return fmt.Errorf("%w: job is %s", domain.ErrNotReady, j.state)
	}
	j.confirmed = true
	return nil
}

// Retry resubmits a terminal job with its original request. The retried job
// is a new job; the old outcome is replaced, not mutated.
func (c *Coordinator) Retry(subjectID string) error {
	c.mu.Lock()
	j := c.jobs[subjectID]
	if j == nil {
		c.mu.Unlock()
		return domain.ErrNotFound
	}
	if !j.state.Terminal() {
		c.mu.Unlock()
		return fmt.Errorf("%w: job is %s", domain.ErrNotReady, j.state)
	}
	req := j.request
	c.mu.Unlock()
	return c.Submit(subjectID, req)
}

// Close cancels every outstanding loop and waits for them to exit. Used when
// the owning flow is torn down.
func (c *Coordinator) Close() {
	c.mu.Lock()
	for _, j := range c.jobs {
		if !j.state.Terminal() && !j.cancelled {
			j.cancelled = true
			if j.cancel != nil {
				j.cancel()
			}
		}
	}
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *Coordinator) run(ctx context.Context, j *job) {
	defer c.wg.Done()
	defer j.cancel()

	taskID, err := c.submitTask(ctx, j.request)
	if err != nil {
		if ctx.Err() == nil {
			c.failJob(j, err.Error())
		}
		return
	}
	if !c.update(j, func(j *job) {
		j.taskID = taskID
		j.state = StatePolling
	}) {
		return
	}
	c.logger.Info().
		Str("subject_id", j.subjectID).
		Str("task_id", taskID).
		Msg("generation: task submitted, polling")

	deadline := c.clock.Now().Add(c.timeout)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.clock.After(c.interval):
		}
		if c.clock.Now().After(deadline) {
			c.failJob(j, "timed out")
			return
		}
		progress, err := c.api.GetTaskProgress(ctx, taskID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.failJob(j, err.Error())
			return
		}
		switch progress.Status {
		case dzine.TaskStatusSucceeded:
			if progress.ResultURL == "" {
				c.failJob(j, "no result produced")
				return
			}
			c.update(j, func(j *job) {
				j.state = StateSucceeded
				j.resultURL = progress.ResultURL
				j.message = ""
			})
			c.logger.Info().
				Str("subject_id", j.subjectID).
				Str("task_id", taskID).
				Msg("generation: job succeeded")
			return
		case dzine.TaskStatusFailed:
			reason := progress.ErrorReason
			if reason == "" {
				reason = "generation failed"
			}
			c.failJob(j, reason)
			return
		default:
			// queued or processing: heartbeat only, keep polling.
			c.update(j, func(j *job) {
				j.message = string(progress.Status)
			})
		}
	}
}

func (c *Coordinator) submitTask(ctx context.Context, req Request) (string, error) {
	switch req.Mode {
	case ModeImageToImage:
		return c.api.CreateImg2ImgTask(ctx, dzine.Img2ImgRequest{
			Prompt:         req.Prompt,
			StyleCode:      req.StyleCode,
			ImageData:      req.ImageData,
			FaceMatch:      true,
			NegativePrompt: req.NegativePrompt,
		})
	case ModeTextToImage:
		return c.api.CreateTxt2ImgTask(ctx, dzine.Txt2ImgRequest{
			Prompt:         req.Prompt,
			StyleCode:      req.StyleCode,
			NegativePrompt: req.NegativePrompt,
		})
	default:
		return "", fmt.Errorf("unsupported generation mode %q", req.Mode)
	}
}

// update applies fn under the lock unless the job was cancelled or already
// reached a terminal state. Transitions are therefore monotonic: a terminal
// or cancelled job is never written again.
func (c *Coordinator) update(j *job, fn func(*job)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if j.cancelled || j.state.Terminal() {
		return false
	}
	fn(j)
	j.updatedAt = c.clock.Now()
	return true
}

func (c *Coordinator) failJob(j *job, reason string) {
	if c.update(j, func(j *job) {
		j.state = StateFailed
		j.errorReason = reason
		j.message = ""
	}) {
		c.logger.Warn().
			Str("subject_id", j.subjectID).
			Str("reason", reason).
			Msg("generation: job failed")
	}
}

func snapshotOf(j *job) Snapshot {
	return Snapshot{
		SubjectID:   j.subjectID,
		State:       j.state,
		TaskID:      j.taskID,
		ResultURL:   j.resultURL,
		ErrorReason: j.errorReason,
		Message:     j.message,
		Confirmed:   j.confirmed,
		UpdatedAt:   j.updatedAt,
	}
}
