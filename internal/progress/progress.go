// Package progress renders transfer progress bars on interactive terminals.
package progress

import (
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"

	"github.com/input-output-hk/catalyst-forge-release/internal/logging"
)

// Options configures a Tracker.
type Options struct {
	// Description is printed in front of the bar.
	Description string

	// Output receives the bar. Defaults to os.Stderr.
	Output io.Writer

	// Interactive forces the bar on or off. When nil, the bar is shown only
	// when Output is a terminal.
	Interactive *bool

	// Logger receives the completion line when the bar is not shown.
	Logger *slog.Logger
}

// Tracker reports byte progress for uploads and downloads. It implements
// the storage client's ProgressTracker and io.Writer.
type Tracker struct {
	mu      sync.Mutex
	opts    Options
	bar     *progressbar.ProgressBar
	written int64
	total   int64
	start   time.Time
	done    bool
}

// New creates a tracker. total may be zero or negative when unknown.
func New(total int64, opts Options) *Tracker {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	interactive := logging.IsTerminal(opts.Output)
	if opts.Interactive != nil {
		interactive = *opts.Interactive
	}

	t := &Tracker{opts: opts, total: total, start: time.Now()}
	if interactive {
		limit := total
		if limit <= 0 {
			limit = -1
		}
		t.bar = progressbar.NewOptions64(limit,
			progressbar.OptionSetWriter(opts.Output),
			progressbar.OptionSetDescription(opts.Description),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(30),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionClearOnFinish(),
		)
	}
	return t
}

// Update sets the cumulative transferred byte count.
func (t *Tracker) Update(transferred, total int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if total > 0 && total != t.total {
		t.total = total
		if t.bar != nil {
			t.bar.ChangeMax64(total)
		}
	}
	t.written = transferred
	if t.bar != nil {
		_ = t.bar.Set64(transferred)
	}
}

// Write counts p as transferred so a Tracker can sit in an io.MultiWriter.
func (t *Tracker) Write(p []byte) (int, error) {
	t.mu.Lock()
	t.written += int64(len(p))
	if t.bar != nil {
		_ = t.bar.Add(len(p))
	}
	t.mu.Unlock()
	return len(p), nil
}

// Complete finishes the bar and logs the transfer size and rate.
func (t *Tracker) Complete() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return
	}
	t.done = true
	if t.bar != nil {
		_ = t.bar.Finish()
	}

	elapsed := time.Since(t.start)
	attrs := []any{"size", humanize.IBytes(uint64(max(t.written, 0)))}
	if secs := elapsed.Seconds(); secs > 0 && t.written > 0 {
		attrs = append(attrs, "rate", humanize.IBytes(uint64(float64(t.written)/secs))+"/s")
	}
	t.opts.Logger.Debug(t.label()+" complete", attrs...)
}

// Error abandons the bar.
func (t *Tracker) Error(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return
	}
	t.done = true
	if t.bar != nil {
		_ = t.bar.Exit()
	}
	t.opts.Logger.Debug(t.label()+" aborted", "transferred", humanize.IBytes(uint64(max(t.written, 0))), "error", err)
}

// Transferred returns the bytes seen so far.
func (t *Tracker) Transferred() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.written
}

func (t *Tracker) label() string {
	if t.opts.Description != "" {
		return t.opts.Description
	}
	return "transfer"
}
