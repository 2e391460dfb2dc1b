package peer

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Editor keeps a shared code buffer in sync over the relay. Local edits
// are debounced so only the latest text within the window goes out;
// remote changes overwrite the buffer whole (last write wins).
type Editor struct {
	mu sync.Mutex

	signal   Signaler
	roomID   string
	debounce time.Duration
	logger   *zap.SugaredLogger

	text    string
	pending bool
	timer   *time.Timer
	closed  bool

	// OnRemoteChange, when set, fires after a remote edit replaces the
	// buffer. Called without the lock held.
	OnRemoteChange func(text string)
}

// NewEditor builds an editor bound to one room. debounce <= 0 falls back
// to the production window.
func NewEditor(signal Signaler, roomID string, debounce time.Duration, logger *zap.SugaredLogger) *Editor {
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}
	return &Editor{
		signal:   signal,
		roomID:   roomID,
		debounce: debounce,
		logger:   logger,
	}
}

// SetText records a local edit and arms the debounce timer. Repeated
// edits within the window collapse into one outbound message carrying
// the final text.
func (e *Editor) SetText(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.text = text
	e.pending = true
	if e.timer == nil {
		e.timer = time.AfterFunc(e.debounce, e.flush)
		return
	}
	e.timer.Reset(e.debounce)
}

// ApplyRemote replaces the buffer with a peer's text. A remote change
// does not re-broadcast, so two editors cannot ping-pong.
func (e *Editor) ApplyRemote(text string) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.text = text
	// A pending local edit has been superseded; sending it now would
	// resurrect stale text.
	e.pending = false
	if e.timer != nil {
		e.timer.Stop()
	}
	cb := e.OnRemoteChange
	e.mu.Unlock()

	if cb != nil {
		cb(text)
	}
}

// Text returns the current buffer contents.
func (e *Editor) Text() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.text
}

func (e *Editor) flush() {
	e.mu.Lock()
	if e.closed || !e.pending {
		e.mu.Unlock()
		return
	}
	e.pending = false
	text := e.text
	e.mu.Unlock()

	if err := e.signal.SendCodeChange(e.roomID, text); err != nil {
		e.logger.Warnw("code change send failed", "room_id", e.roomID, "error", err)
	}
}

// Close flushes any pending edit and stops the timer.
func (e *Editor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	timer := e.timer
	e.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	e.flush()

	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
}
