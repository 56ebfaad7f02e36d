package orchestrator

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Signals turns SIGINT and SIGTERM into interrupt events.
// The orchestrator decides what an event means; Signals only delivers it.
type Signals struct {
	events chan struct{}
	sigs   chan os.Signal
	done   chan struct{}
	once   sync.Once
}

// NewSignals starts listening immediately.
func NewSignals() *Signals {
	s := &Signals{
		events: make(chan struct{}, 4),
		sigs:   make(chan os.Signal, 4),
		done:   make(chan struct{}),
	}
	signal.Notify(s.sigs, os.Interrupt, syscall.SIGTERM)
	go s.loop()
	return s
}

func (s *Signals) loop() {
	for {
		select {
		case <-s.sigs:
			select {
			case s.events <- struct{}{}:
			default:
			}
		case <-s.done:
			return
		}
	}
}

// Events delivers one event per signal received.
func (s *Signals) Events() <-chan struct{} { return s.events }

// Stop restores default signal handling.
func (s *Signals) Stop() {
	s.once.Do(func() {
		signal.Stop(s.sigs)
		close(s.done)
	})
}

// interruptPolicy tells a status request from a shutdown request: a second
// event within grace of the previous one is a shutdown.
type interruptPolicy struct {
	grace time.Duration
	now   func() time.Time
	last  time.Time
}

// shutdown records an event and reports whether it forces shutdown.
func (p *interruptPolicy) shutdown() bool {
	now := p.now()
	if !p.last.IsZero() && now.Sub(p.last) <= p.grace {
		p.last = time.Time{}
		return true
	}
	p.last = now
	return false
}
