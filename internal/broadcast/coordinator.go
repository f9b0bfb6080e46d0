package broadcast

import (
	"errors"
	"strings"
	"sync"
	"time"
)

var (
	// ErrNoPending is returned by transitions that need a pending broadcast.
	ErrNoPending = errors.New("broadcast: nothing pending")
	ErrEmptyBody = errors.New("broadcast: empty body")
)

type State string

const (
	StateIdle             State = "idle"
	StateAwaitingDecision State = "awaiting_decision"
	StateAwaitingImage    State = "awaiting_image"
)

// Pending is the single broadcast waiting for the owner's decision.
type Pending struct {
	Body      string
	CreatedAt time.Time
	State     State
}

// Coordinator owns the one pending broadcast slot.
//
//	Idle --Begin--> AwaitingDecision --ConfirmImage--> AwaitingImage
//	AwaitingDecision|AwaitingImage --Take--> Idle
//
// Begin always replaces whatever was pending.
type Coordinator struct {
	mu      sync.Mutex
	pending *Pending
	now     func() time.Time
}

func NewCoordinator() *Coordinator { return &Coordinator{now: time.Now} }

// Begin stores body as the pending broadcast. It reports whether an older
// pending broadcast was replaced.
func (c *Coordinator) Begin(body string) (replaced bool, err error) {
	if strings.TrimSpace(body) == "" {
		return false, ErrEmptyBody
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	replaced = c.pending != nil
	c.pending = &Pending{Body: body, CreatedAt: c.now(), State: StateAwaitingDecision}
	return replaced, nil
}

// ConfirmImage moves the pending broadcast to AwaitingImage.
func (c *Coordinator) ConfirmImage() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return ErrNoPending
	}
	c.pending.State = StateAwaitingImage
	return nil
}

// Take consumes the pending broadcast.
func (c *Coordinator) Take() (Pending, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return Pending{}, ErrNoPending
	}
	p := *c.pending
	c.pending = nil
	return p, nil
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return StateIdle
	}
	return c.pending.State
}

// Peek returns a copy of the pending broadcast, if any.
func (c *Coordinator) Peek() (Pending, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return Pending{}, false
	}
	return *c.pending, true
}
