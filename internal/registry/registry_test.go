package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id string
}

func (f *fakeConn) ID() string          { return f.id }
func (f *fakeConn) Send(_ []byte) error { return nil }
func (f *fakeConn) Close() error        { return nil }

func ids(conns []Conn) []string {
	out := make([]string, 0, len(conns))
	for _, c := range conns {
		out = append(out, c.ID())
	}
	return out
}

func TestRegisterIsIdempotent(t *testing.T) {
	r := New(4)
	c := &fakeConn{id: "c1"}

	assert.True(t, r.Register("alice", c))
	assert.False(t, r.Register("alice", c))
	assert.Len(t, r.ConnectionsFor("alice"), 1)
	assert.Equal(t, 1, r.Len())
}

func TestMultipleConnectionsPerUser(t *testing.T) {
	r := New(4)
	c1, c2 := &fakeConn{id: "c1"}, &fakeConn{id: "c2"}

	assert.True(t, r.Register("alice", c1))
	assert.False(t, r.Register("alice", c2))
	assert.ElementsMatch(t, []string{"c1", "c2"}, ids(r.ConnectionsFor("alice")))

	user, last := r.Unregister(c1)
	assert.Equal(t, "alice", user)
	assert.False(t, last)
	assert.True(t, r.Online("alice"))

	user, last = r.Unregister(c2)
	assert.Equal(t, "alice", user)
	assert.True(t, last)
	assert.False(t, r.Online("alice"))
	assert.Empty(t, r.ConnectionsFor("alice"))
}

func TestUnregisterUnknownIsNoop(t *testing.T) {
	r := New(4)
	r.Register("alice", &fakeConn{id: "c1"})

	user, last := r.Unregister(&fakeConn{id: "nope"})
	assert.Empty(t, user)
	assert.False(t, last)
	assert.Equal(t, 1, r.Len())
}

func TestRegisterMovesConnectionBetweenUsers(t *testing.T) {
	r := New(4)
	c := &fakeConn{id: "c1"}

	r.Register("alice", c)
	assert.True(t, r.Register("bob", c))

	assert.Empty(t, r.ConnectionsFor("alice"))
	assert.Equal(t, []string{"c1"}, ids(r.ConnectionsFor("bob")))
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, []string{"bob"}, r.Users())
}

func TestConcurrentRegisterUnregister(t *testing.T) {
	r := New(8)
	const users, perUser = 20, 10

	var wg sync.WaitGroup
	for u := 0; u < users; u++ {
		for i := 0; i < perUser; i++ {
			wg.Add(1)
			go func(u, i int) {
				defer wg.Done()
				c := &fakeConn{id: fmt.Sprintf("u%d-c%d", u, i)}
				user := fmt.Sprintf("user-%d", u)
				r.Register(user, c)
				_ = r.ConnectionsFor(user)
				if i%2 == 0 {
					r.Unregister(c)
				}
			}(u, i)
		}
	}
	wg.Wait()

	require.Equal(t, users*perUser/2, r.Len())
	for u := 0; u < users; u++ {
		assert.Len(t, r.ConnectionsFor(fmt.Sprintf("user-%d", u)), perUser/2)
	}
}
