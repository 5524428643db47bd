package linkdb

import (
	"sync/atomic"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

type note struct {
	Text string `json:"text"`

	link    *Link
	created int
	loads   int
}

func newNote() *note { return &note{} }

func (n *note) OnCreate(l *Link) {
	n.link = l
	n.created++
}

func (n *note) OnLoad(l *Link) {
	n.link = l
	n.loads++
}

type counter struct {
	N int `json:"n"`
}

func newCounter() *counter { return &counter{} }

func (*counter) OnCreate(*Link) {}
func (*counter) OnLoad(*Link)   {}

// latch parks the first hold after it is armed until proceed is closed.
type latch struct {
	armed   atomic.Bool
	entered chan struct{}
	proceed chan struct{}
}

func newLatch() *latch {
	return &latch{entered: make(chan struct{}), proceed: make(chan struct{})}
}

func (l *latch) hold() {
	if l != nil && l.armed.CompareAndSwap(true, false) {
		close(l.entered)
		<-l.proceed
	}
}

// gated blocks in OnCreate or while being encoded when its latch is armed.
type gated struct {
	Text string `json:"text"`

	latch *latch
}

func (g *gated) OnCreate(*Link) { g.latch.hold() }
func (*gated) OnLoad(*Link)     {}

func (g *gated) MarshalJSON() ([]byte, error) {
	g.latch.hold()

	type plain gated
	return json.Marshal((*plain)(g))
}

func testRegistry(t *testing.T) *Registry {
	t.Helper()

	r := NewRegistry()
	require.NoError(t, Register(r, "note", newNote))
	require.NoError(t, Register(r, "counter", newCounter))
	return r
}

// newTestDB creates a database in a fresh directory and closes it when the
// test ends.
func newTestDB(t *testing.T, capacity, blockSize int, budget int64, opts ...Option) (*DB, string) {
	t.Helper()

	dir := t.TempDir()
	db, err := Create(dir, capacity, blockSize, budget, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, dir
}

func gids(links []*Link) []int64 {
	out := make([]int64, len(links))
	for i, l := range links {
		out[i] = l.GID()
	}
	return out
}
