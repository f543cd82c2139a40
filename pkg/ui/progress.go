package ui

import (
	"io"
	"sync"

	"github.com/pterm/pterm"

	"github.com/Hierosoft/hierosoft/pkg/types"
)

// Progress draws install snapshots on a pterm progress bar. The callback
// may be called from any goroutine; one goroutine owns the bar and draws
// snapshots in arrival order.
type Progress struct {
	ch   chan event
	done chan struct{}
	once sync.Once

	w   io.Writer
	bar *pterm.ProgressbarPrinter

	// written only by the drawing goroutine, read after done
	last  types.ProgressSnapshot
	count int
}

// NewProgress starts the drawing goroutine. With draw unset, snapshots
// are consumed without output.
func NewProgress(w io.Writer, draw bool) *Progress {
	p := &Progress{
		ch:   make(chan event, 64),
		done: make(chan struct{}),
	}
	if draw {
		p.w = w
	}
	go p.loop()
	return p
}

// Callback is passed to install.Session.Install.
func (p *Progress) Callback() types.ProgressFunc {
	return func(s types.ProgressSnapshot) { p.ch <- event{snap: s} }
}

// Hold removes the bar once the snapshots sent so far are drawn, so the
// terminal can be used for a prompt. The next snapshot starts a new bar.
func (p *Progress) Hold() {
	ack := make(chan struct{})
	p.ch <- event{ack: ack}
	<-ack
}

// Wait stops accepting snapshots, lets the bar finish and returns the
// last snapshot drawn. The callback must not be used afterwards.
func (p *Progress) Wait() types.ProgressSnapshot {
	p.once.Do(func() { close(p.ch) })
	<-p.done
	return p.last
}

// Count returns how many snapshots were drawn. Valid after Wait.
func (p *Progress) Count() int { return p.count }

type event struct {
	snap types.ProgressSnapshot
	ack  chan struct{}
}

func (p *Progress) loop() {
	defer close(p.done)
	for ev := range p.ch {
		if ev.ack != nil {
			p.stop()
			close(ev.ack)
			continue
		}
		p.last = ev.snap
		p.count++
		p.draw(ev.snap)
	}
	p.stop()
}

func (p *Progress) draw(s types.ProgressSnapshot) {
	if p.w == nil {
		return
	}
	switch s.Status {
	case types.StatusSimulating:
		p.start("scanning")
		p.bar.UpdateTitle("scanning " + s.Rel)
	case types.StatusCommitting:
		p.start("installing")
		p.bar.UpdateTitle("installing " + s.Rel)
		p.advance(int(s.Percent))
	default:
		if s.Err == nil && p.bar != nil {
			p.bar.UpdateTitle("done")
			p.advance(100)
		}
		p.stop()
	}
}

func (p *Progress) start(title string) {
	if p.bar != nil {
		return
	}
	bar, err := pterm.DefaultProgressbar.
		WithTotal(100).
		WithTitle(title).
		WithShowCount(false).
		WithShowElapsedTime(false).
		WithWriter(p.w).
		Start()
	if err != nil {
		return
	}
	p.bar = bar
}

func (p *Progress) advance(percent int) {
	if p.bar == nil {
		return
	}
	if delta := percent - p.bar.Current; delta > 0 {
		p.bar.Add(delta)
	}
}

func (p *Progress) stop() {
	if p.bar == nil {
		return
	}
	_, _ = p.bar.Stop()
	p.bar = nil
}
