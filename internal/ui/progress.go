package ui

import (
	"fmt"
	"os"
	"time"

	"porter/internal/progress"
	"porter/internal/session"

	"github.com/schollz/progressbar/v3"
)

// ProgressUI renders a session's update stream as a console progress
// bar. It is the default observer used by the CLI; a detached session
// simply stops feeding it.
type ProgressUI struct {
	bar       *progressbar.ProgressBar
	lastPhase progress.Phase
}

// NewProgressUI creates a new console progress UI
func NewProgressUI() *ProgressUI {
	return &ProgressUI{lastPhase: -1}
}

// Run consumes updates until the channel closes. It blocks, so callers
// run it on the goroutine that owns the terminal.
func (p *ProgressUI) Run(updates <-chan session.Update) {
	for update := range updates {
		p.render(update)
	}
	p.finish()
}

func (p *ProgressUI) render(u session.Update) {
	if p.bar == nil {
		p.bar = progressbar.NewOptions64(100,
			progressbar.OptionSetDescription(u.Phase.String()),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetWidth(50),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionSetRenderBlankState(true),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(false),
		)
	}

	if u.Phase != p.lastPhase {
		p.bar.Describe(u.Phase.String())
		p.lastPhase = u.Phase
	}
	_ = p.bar.Set(u.Percent)
}

func (p *ProgressUI) finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
}
