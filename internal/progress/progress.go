// Package progress renders and throttles progress updates for long-running
// transfers. Progress is cosmetic: failures to report are logged and never
// abort the operation being reported on.
package progress

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/dmitrijs2005/cloudkeeper/internal/logging"
	"golang.org/x/time/rate"
)

// DefaultWidth is the number of cells in a rendered bar.
const DefaultWidth = 20

// Frames is the spinner animation shown next to the bar.
var Frames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const (
	cellEmpty  = "▱"
	cellFilled = "▰"
)

// Bar renders percent as e.g. "[▰▰▱▱] 50.0%". percent is clamped to
// [0, 100].
func Bar(percent float64, width int) string {
	percent = max(0, min(100, percent))
	filled := int(float64(width) * percent / 100)
	return fmt.Sprintf("[%s%s] %.1f%%",
		strings.Repeat(cellFilled, filled),
		strings.Repeat(cellEmpty, width-filled),
		percent)
}

// Percent returns done as a percentage of total. An unknown total yields 0.
func Percent(done, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(done) * 100 / float64(total)
}

// Reporter receives progress checkpoints.
type Reporter interface {
	Update(ctx context.Context, done, total int64) error
}

// Nop discards updates.
type Nop struct{}

func (Nop) Update(context.Context, int64, int64) error { return nil }

// Notify sends one checkpoint to r and logs a failure instead of returning it.
func Notify(ctx context.Context, log logging.Logger, r Reporter, done, total int64) {
	if err := r.Update(ctx, done, total); err != nil {
		log.Warn(ctx, "progress update failed", "error", err)
	}
}

// EditFunc replaces the text of the status message.
type EditFunc func(ctx context.Context, text string) error

// MessageReporter turns checkpoints into edits of a single chat message.
// Intermediate updates above the limiter's rate are dropped; the final one
// (done >= total) is always sent. Identical consecutive texts are skipped.
type MessageReporter struct {
	edit    EditFunc
	label   string
	limiter *rate.Limiter

	mu    sync.Mutex
	frame int
	last  string
}

// NewMessageReporter builds a reporter that edits at most perSecond times per
// second. perSecond <= 0 disables throttling.
func NewMessageReporter(edit EditFunc, label string, perSecond float64) *MessageReporter {
	m := &MessageReporter{edit: edit, label: label}
	if perSecond > 0 {
		m.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
	return m
}

func (m *MessageReporter) Update(ctx context.Context, done, total int64) error {
	m.mu.Lock()
	complete := total > 0 && done >= total
	if !complete && m.limiter != nil && !m.limiter.Allow() {
		m.mu.Unlock()
		return nil
	}

	text := m.render(done, total)
	if text == m.last {
		m.mu.Unlock()
		return nil
	}
	m.last = text
	m.mu.Unlock()

	return m.edit(ctx, text)
}

func (m *MessageReporter) render(done, total int64) string {
	frame := Frames[m.frame%len(Frames)]
	m.frame++
	if total > 0 && done >= total {
		frame = "✅"
	}
	return fmt.Sprintf("%s\n%s %s", m.label, frame, Bar(Percent(done, total), DefaultWidth))
}

// Reader counts bytes read from an underlying reader and reports them.
type Reader struct {
	ctx   context.Context
	r     io.Reader
	total int64
	done  int64
	rep   Reporter
	log   logging.Logger
}

// NewReader wraps r. total is the expected size, 0 if unknown.
func NewReader(ctx context.Context, r io.Reader, total int64, rep Reporter, log logging.Logger) *Reader {
	return &Reader{ctx: ctx, r: r, total: total, rep: rep, log: log}
}

func (p *Reader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.done += int64(n)
		Notify(p.ctx, p.log, p.rep, p.done, p.total)
	}
	return n, err
}

// Done returns the number of bytes read so far.
func (p *Reader) Done() int64 {
	return p.done
}
