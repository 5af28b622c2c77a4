package progress

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/trebuchet-org/treb-proxy/internal/domain/config"
	"github.com/trebuchet-org/treb-proxy/internal/usecase"
)

// SpinnerProgress shows the running stage of a request behind a spinner and
// a line per finished stage
type SpinnerProgress struct {
	mu      sync.Mutex
	spinner *spinner.Spinner
	out     io.Writer

	stage      string
	message    string
	stageStart time.Time
	running    bool // a spinner stage has not been completed yet
}

// NewSpinnerProgress creates a spinner-based progress sink writing to stderr
func NewSpinnerProgress() *SpinnerProgress {
	return newSpinnerProgress(os.Stderr)
}

func newSpinnerProgress(out io.Writer) *SpinnerProgress {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(out))
	s.HideCursor = false
	return &SpinnerProgress{spinner: s, out: out}
}

// ProvideProgressSink picks the spinner for interactive terminals and the
// no-op sink for JSON or non-interactive output
func ProvideProgressSink(cfg *config.RuntimeConfig) usecase.ProgressSink {
	if cfg.JSON || cfg.NonInteractive {
		return NewNopSink()
	}
	return NewSpinnerProgress()
}

// OnProgress handles progress events
func (p *SpinnerProgress) OnProgress(ctx context.Context, event usecase.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if event.Stage != p.stage {
		p.completeStage()
		p.stage = event.Stage
		p.stageStart = time.Now()
	}
	p.message = event.Message

	if event.Spinner {
		p.running = true
		p.spinner.Suffix = " " + p.suffix(event)
		if !p.spinner.Active() {
			p.spinner.Start()
		}
		return
	}
	if p.spinner.Active() {
		p.spinner.Stop()
	}
	p.running = false
	if event.Total > 0 {
		fmt.Fprintf(p.out, "%s %s\n", color.New(color.FgCyan).Sprintf("[%d/%d]", event.Current, event.Total), event.Message)
	}
}

func (p *SpinnerProgress) suffix(event usecase.ProgressEvent) string {
	if event.Total > 0 {
		return fmt.Sprintf("[%d/%d] %s", event.Current, event.Total, event.Message)
	}
	return event.Message
}

// completeStage prints a check mark for the stage that just ended
func (p *SpinnerProgress) completeStage() {
	if !p.running {
		return
	}
	p.running = false
	if p.spinner.Active() {
		p.spinner.Stop()
	}
	duration := time.Since(p.stageStart).Round(time.Millisecond)
	fmt.Fprintf(p.out, "%s %s %s\n",
		color.GreenString("✓"),
		p.message,
		color.New(color.Faint).Sprintf("(%s)", duration))
}

// Info prints an info message
func (p *SpinnerProgress) Info(message string) {
	p.print(color.New(color.FgCyan), message)
}

// Error prints an error message
func (p *SpinnerProgress) Error(message string) {
	p.print(color.New(color.FgRed), message)
}

func (p *SpinnerProgress) print(c *color.Color, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	wasActive := p.spinner.Active()
	if wasActive {
		p.spinner.Stop()
	}
	_, _ = c.Fprintln(p.out, message)
	if wasActive {
		p.spinner.Start()
	}
}

// Stop halts the spinner, leaving the last message on screen
func (p *SpinnerProgress) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.spinner.Active() {
		p.spinner.Stop()
	}
}

var _ usecase.ProgressSink = (*SpinnerProgress)(nil)
