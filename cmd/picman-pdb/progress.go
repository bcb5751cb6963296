package main

import (
	"fmt"
	"io"
	"sync"
)

// textProgress prints progress reports as lines. Only whole percent steps
// are printed.
type textProgress struct {
	mu      sync.Mutex
	w       io.Writer
	active  bool
	text    string
	percent int
	cancel  chan struct{}
}

func newTextProgress(w io.Writer) *textProgress {
	return &textProgress{w: w, percent: -1, cancel: make(chan struct{})}
}

func (p *textProgress) Start(message string, _ bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active = true
	p.text = message
	p.percent = -1
	fmt.Fprintf(p.w, "%s...\n", message)
}

func (p *textProgress) SetText(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.text = message
	fmt.Fprintf(p.w, "%s...\n", message)
}

func (p *textProgress) SetValue(fraction float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pct := int(fraction * 100)
	if pct == p.percent {
		return
	}
	p.percent = pct
	fmt.Fprintf(p.w, "%s: %d%%\n", p.text, pct)
}

func (p *textProgress) Pulse() {}

func (p *textProgress) End() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active = false
}

func (p *textProgress) IsActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

func (p *textProgress) Cancelled() <-chan struct{} { return p.cancel }

type namedContext string

func (c namedContext) Name() string { return string(c) }
