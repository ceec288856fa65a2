package output

import (
	"fmt"
	"sync"
	"time"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Spinner is a single-line progress indicator for long remote operations.
// It animates only in TTY text mode; otherwise Start is a no-op and only
// the final Success/Fail line is printed.
type Spinner struct {
	r         *Renderer
	msg       string
	stop      chan struct{}
	done      chan struct{}
	animating bool
	once      sync.Once
}

// NewSpinner creates a spinner bound to this renderer.
func (r *Renderer) NewSpinner(msg string) *Spinner {
	return &Spinner{
		r:    r,
		msg:  msg,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Start begins the animation. Calling Success or Fail stops it.
func (s *Spinner) Start() {
	if s.animating || !s.r.isTTY || s.r.EffectiveMode() != ModeText {
		return
	}
	s.animating = true
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(120 * time.Millisecond)
		defer ticker.Stop()
		i := 0
		for {
			select {
			case <-s.stop:
				// Clear the animation line before the final message.
				_, _ = fmt.Fprintf(s.r.errOut, "\r%*s\r", len(s.msg)+2, "")
				return
			case <-ticker.C:
				frame := spinnerFrames[i%len(spinnerFrames)]
				_, _ = fmt.Fprintf(s.r.errOut, "\r%s %s", s.r.styles.Info.Render(frame), s.msg)
				i++
			}
		}
	}()
}

// Success stops the spinner and prints a confirmation line.
func (s *Spinner) Success(msg string) {
	s.finish()
	s.r.Success(msg)
}

// Fail stops the spinner and prints an error line.
func (s *Spinner) Fail(msg string) {
	s.finish()
	s.r.Error(msg)
}

func (s *Spinner) finish() {
	s.once.Do(func() {
		if s.animating {
			close(s.stop)
			<-s.done
		}
	})
}
