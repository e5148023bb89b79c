package service

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Progress recibe el avance de la corrida. Solo lo invoca el driver, desde una goroutine.
type Progress interface {
	Start(ctx context.Context, total int)
	Advance(ctx context.Context, results []RecordResult)
	Finish(ctx context.Context, summary Summary)
}

type NopProgress struct{}

func (NopProgress) Start(context.Context, int)              {}
func (NopProgress) Advance(context.Context, []RecordResult) {}
func (NopProgress) Finish(context.Context, Summary)         {}

// MultiProgress reenvia a varios sinks.
type MultiProgress []Progress

func (m MultiProgress) Start(ctx context.Context, total int) {
	for _, p := range m {
		p.Start(ctx, total)
	}
}

func (m MultiProgress) Advance(ctx context.Context, results []RecordResult) {
	for _, p := range m {
		p.Advance(ctx, results)
	}
}

func (m MultiProgress) Finish(ctx context.Context, summary Summary) {
	for _, p := range m {
		p.Finish(ctx, summary)
	}
}

// ProgressSnapshot es el estado expuesto por /progress.
type ProgressSnapshot struct {
	RunID      string     `json:"run_id"`
	Status     string     `json:"status"`
	Total      int        `json:"total"`
	Processed  int        `json:"processed"`
	Failed     int        `json:"failed"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Summary    *Summary   `json:"summary,omitempty"`
}

const (
	StatusPending  = "pending"
	StatusRunning  = "running"
	StatusFinished = "finished"
)

// ProgressTracker guarda el avance en memoria; Snapshot es seguro desde otras goroutines.
type ProgressTracker struct {
	mu    sync.RWMutex
	state ProgressSnapshot
}

func NewProgressTracker(runID string) *ProgressTracker {
	return &ProgressTracker{state: ProgressSnapshot{RunID: runID, Status: StatusPending}}
}

func (t *ProgressTracker) Start(_ context.Context, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Status = StatusRunning
	t.state.Total = total
	t.state.StartedAt = time.Now().UTC()
}

func (t *ProgressTracker) Advance(_ context.Context, results []RecordResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Processed += len(results)
	for _, r := range results {
		if r.Outcome == OutcomeFailed {
			t.state.Failed++
		}
	}
}

func (t *ProgressTracker) Finish(_ context.Context, summary Summary) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now().UTC()
	t.state.Status = StatusFinished
	t.state.FinishedAt = &now
	t.state.Summary = &summary
}

func (t *ProgressTracker) Snapshot() ProgressSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// barProgress dibuja una barra en terminal.
type barProgress struct {
	out io.Writer
	bar *progressbar.ProgressBar
}

func NewBarProgress(out io.Writer) Progress {
	return &barProgress{out: out}
}

func (b *barProgress) Start(_ context.Context, total int) {
	b.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(b.out),
		progressbar.OptionSetDescription("users"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
	)
}

func (b *barProgress) Advance(_ context.Context, results []RecordResult) {
	if b.bar != nil {
		_ = b.bar.Add(len(results))
	}
}

func (b *barProgress) Finish(context.Context, Summary) {
	if b.bar != nil {
		_ = b.bar.Finish()
	}
}
