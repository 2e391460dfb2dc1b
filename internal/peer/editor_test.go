package peer

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// recordingSignaler captures code-change traffic with the timestamps
// needed to check debounce behavior.
type recordingSignaler struct {
	fakeSignaler

	mu      sync.Mutex
	changes []string
}

func (r *recordingSignaler) SendCodeChange(_ string, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, text)
	return nil
}

func (r *recordingSignaler) sent() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.changes...)
}

func newTestEditor(t *testing.T, debounce time.Duration) (*Editor, *recordingSignaler) {
	sig := &recordingSignaler{}
	return NewEditor(sig, "room-1", debounce, zaptest.NewLogger(t).Sugar()), sig
}

func TestEditor_RapidEditsCollapseToOne(t *testing.T) {
	e, sig := newTestEditor(t, 30*time.Millisecond)

	e.SetText("f")
	e.SetText("fu")
	e.SetText("fun")
	e.SetText("func main() {}")

	require.Eventually(t, func() bool {
		return len(sig.sent()) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"func main() {}"}, sig.sent())

	// No trailing duplicate after the window.
	time.Sleep(60 * time.Millisecond)
	assert.Len(t, sig.sent(), 1)
}

func TestEditor_SeparatedEditsEachSend(t *testing.T) {
	e, sig := newTestEditor(t, 10*time.Millisecond)

	e.SetText("one")
	require.Eventually(t, func() bool { return len(sig.sent()) == 1 }, time.Second, 2*time.Millisecond)

	e.SetText("two")
	require.Eventually(t, func() bool { return len(sig.sent()) == 2 }, time.Second, 2*time.Millisecond)

	assert.Equal(t, []string{"one", "two"}, sig.sent())
}

func TestEditor_RemoteChangeReplacesBuffer(t *testing.T) {
	e, _ := newTestEditor(t, 10*time.Millisecond)

	var got string
	e.OnRemoteChange = func(text string) { got = text }

	e.ApplyRemote("peer text")
	assert.Equal(t, "peer text", e.Text())
	assert.Equal(t, "peer text", got)
}

func TestEditor_RemoteChangeCancelsPendingLocalSend(t *testing.T) {
	e, sig := newTestEditor(t, 30*time.Millisecond)

	e.SetText("local draft")
	e.ApplyRemote("peer version")

	// The superseded local edit must not surface after the window.
	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, sig.sent())
	assert.Equal(t, "peer version", e.Text())
}

func TestEditor_CloseFlushesPendingEdit(t *testing.T) {
	e, sig := newTestEditor(t, time.Minute)

	e.SetText("unsent")
	e.Close()

	assert.Equal(t, []string{"unsent"}, sig.sent())

	// Edits after close are dropped.
	e.SetText("late")
	time.Sleep(10 * time.Millisecond)
	assert.Len(t, sig.sent(), 1)
}
