package main

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/term"
)

const (
	progressTick = 100 * time.Millisecond

	// Carriage return plus erase-to-end-of-line, so a shorter line fully
	// replaces a longer one.
	eraseLine = "\r\033[K"
)

// ProgressPrinter keeps a single status line on stdout alive while a long
// operation runs, rewriting it in place a few times per second. With a
// countdown it shows seconds remaining, otherwise seconds elapsed. When
// stdout is not a terminal nothing is drawn, but phase tracking and stop
// phases still work, so callbacks behave the same either way.
//
// A printer is single-use: Start at most once, then Stop. Extra Stops are
// no-ops. Skipping Stop leaks the update goroutine.
type ProgressPrinter struct {
	prefix      string
	countdown   time.Duration // zero means count elapsed time up
	stopPhases  map[string]struct{}
	interactive bool

	phase   atomic.Value // string
	started atomic.Bool
	begun   time.Time
	quit    chan struct{}
	done    chan struct{} // closed when the update goroutine exits
	halt    sync.Once
}

// NewProgressPrinter returns a printer that counts elapsed seconds up.
// Reporting any of stopPhases through Callback shuts it down.
func NewProgressPrinter(prefix, phase string, stopPhases ...string) *ProgressPrinter {
	return newPrinter(prefix, phase, 0, stopPhases)
}

// NewCountdownProgressPrinter returns a printer that counts down from d.
// Reaching zero only pins the display at 0s; stopping remains the caller's
// job, normally via a stop phase.
func NewCountdownProgressPrinter(prefix, phase string, d time.Duration, stopPhases ...string) *ProgressPrinter {
	return newPrinter(prefix, phase, d, stopPhases)
}

func newPrinter(prefix, phase string, d time.Duration, stopPhases []string) *ProgressPrinter {
	p := &ProgressPrinter{
		prefix:      prefix,
		countdown:   d,
		stopPhases:  make(map[string]struct{}, len(stopPhases)),
		interactive: term.IsTerminal(int(os.Stdout.Fd())),
	}
	p.phase.Store(phase)
	for _, s := range stopPhases {
		p.stopPhases[s] = struct{}{}
	}
	return p
}

// Start draws the first status line and begins updating it in a background
// goroutine. It panics if called a second time, including after Stop.
func (p *ProgressPrinter) Start() {
	if !p.started.CompareAndSwap(false, true) {
		panic("progress printer is single-use: Start called twice")
	}
	p.begun = time.Now()
	p.quit = make(chan struct{})
	p.done = make(chan struct{})
	go p.run()
}

// Stop tears the status line down and waits for the update goroutine to
// exit. Safe to call repeatedly and from multiple goroutines; a no-op
// before Start.
func (p *ProgressPrinter) Stop() {
	if !p.started.Load() {
		return
	}
	p.halt.Do(func() {
		close(p.quit)
		<-p.done
		if p.interactive {
			fmt.Print(eraseLine)
		}
	})
}

// Callback returns a function for reporting phase transitions. The reported
// phase replaces the one on the status line; a phase from the stop set also
// stops the printer. Safe for concurrent use.
func (p *ProgressPrinter) Callback() func(phase string) {
	return func(phase string) {
		p.phase.Store(phase)
		if _, last := p.stopPhases[phase]; last {
			p.Stop()
		}
	}
}

func (p *ProgressPrinter) run() {
	defer close(p.done)

	tick := time.NewTicker(progressTick)
	defer tick.Stop()

	p.render()
	for {
		select {
		case <-p.quit:
			return
		case <-tick.C:
			p.render()
		}
	}
}

func (p *ProgressPrinter) render() {
	if !p.interactive {
		return
	}
	phase, _ := p.phase.Load().(string)
	if p.countdown > 0 {
		// Round half up so 3.7s reads as 4s, clamped at zero once the
		// deadline passes.
		left := p.countdown - time.Since(p.begun) + 500*time.Millisecond
		if left < 0 {
			left = 0
		}
		fmt.Printf("%s%s (%s %ds)", eraseLine, p.prefix, phase, int(left/time.Second))
		return
	}
	fmt.Printf("%s%s (%s %ds)", eraseLine, p.prefix, phase, int(time.Since(p.begun)/time.Second))
}
