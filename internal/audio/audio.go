// Package audio plays feedback tones. On a host without a speaker driver
// the Bell rings the terminal bell, one pulse per tone segment.
package audio

import (
	"errors"
	"io"
	"log"
	"strings"
	"sync"
)

// Pulse counts per tone.
const (
	beepPulses    = 1
	confirmPulses = 2
	errorPulses   = 3
)

// Bell writes BEL characters to Out.
type Bell struct {
	Out io.Writer

	mu    sync.Mutex
	ready bool
}

// NewBell returns a Bell writing to out.
func NewBell(out io.Writer) *Bell {
	return &Bell{Out: out}
}

// Init checks the output is present.
func (b *Bell) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Out == nil {
		return errors.New("audio: no output")
	}
	b.ready = true
	return nil
}

// Beep is a short acknowledgement.
func (b *Bell) Beep() { b.ring("beep", beepPulses) }

// Confirm signals a completed action.
func (b *Bell) Confirm() { b.ring("confirm", confirmPulses) }

// Error signals a failure.
func (b *Bell) Error() { b.ring("error", errorPulses) }

// Attention repeats the error tone.
func (b *Bell) Attention(repeats int) {
	if repeats < 1 {
		repeats = 1
	}
	b.ring("attention", errorPulses*repeats)
}

func (b *Bell) ring(name string, pulses int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.ready {
		return
	}
	if _, err := io.WriteString(b.Out, strings.Repeat("\a", pulses)); err != nil {
		log.Printf("audio: %s: %v", name, err)
		return
	}
	log.Printf("audio: %s", name)
}
