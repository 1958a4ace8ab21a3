package registry

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"coursechat/pkg/types"
)

// fakeMember records delivered frames; failing members simulate a full
// send queue.
type fakeMember struct {
	id      string
	mu      sync.Mutex
	frames  [][]byte
	failing bool
	closed  bool
}

func (m *fakeMember) ID() string { return m.id }

func (m *fakeMember) Deliver(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return errors.New("send queue full")
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	m.frames = append(m.frames, buf)
	return nil
}

func (m *fakeMember) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *fakeMember) received() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.frames))
	for i, f := range m.frames {
		out[i] = string(f)
	}
	return out
}

func (m *fakeMember) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestJoinIsIdempotent(t *testing.T) {
	req := require.New(t)

	reg := NewRegistry(testLogger())
	key := types.RoomKey(1)
	m := &fakeMember{id: "a"}

	reg.Join(key, m)
	reg.Join(key, m)
	req.Equal(1, reg.MemberCount(key))
}

func TestLeaveIsSafe(t *testing.T) {
	req := require.New(t)

	reg := NewRegistry(testLogger())
	key := types.RoomKey(1)
	m := &fakeMember{id: "a"}

	// Leaving without ever joining is a no-op.
	reg.Leave(key, m)
	req.Equal(0, reg.MemberCount(key))

	reg.Join(key, m)
	reg.Leave(key, m)
	reg.Leave(key, m)
	req.Equal(0, reg.MemberCount(key))
}

func TestPublishReachesCurrentMembersOnly(t *testing.T) {
	req := require.New(t)

	reg := NewRegistry(testLogger())
	key := types.RoomKey(1)
	early := &fakeMember{id: "early"}
	late := &fakeMember{id: "late"}

	reg.Join(key, early)
	reg.Publish(key, map[string]string{"n": "1"})
	reg.Join(key, late)
	reg.Publish(key, map[string]string{"n": "2"})

	req.Len(early.received(), 2)
	req.Len(late.received(), 1, "joining after publish must not replay")
}

func TestPublishPreservesSenderOrder(t *testing.T) {
	req := require.New(t)

	reg := NewRegistry(testLogger())
	key := types.RoomKey(1)
	m := &fakeMember{id: "a"}
	reg.Join(key, m)

	for i := range 50 {
		reg.Publish(key, map[string]int{"seq": i})
	}

	frames := m.received()
	req.Len(frames, 50)
	for i, frame := range frames {
		var payload map[string]int
		req.NoError(json.Unmarshal([]byte(frame), &payload))
		req.Equal(i, payload["seq"])
	}
}

func TestPublishScopesGroups(t *testing.T) {
	req := require.New(t)

	reg := NewRegistry(testLogger())
	room := &fakeMember{id: "room"}
	personal := &fakeMember{id: "personal"}

	reg.Join(types.RoomKey(7), room)
	reg.Join(types.UserKey(7), personal)

	reg.Publish(types.RoomKey(7), "room frame")
	req.Len(room.received(), 1)
	req.Empty(personal.received())
}

func TestSlowConsumerIsDropped(t *testing.T) {
	req := require.New(t)

	reg := NewRegistry(testLogger())
	key := types.RoomKey(1)
	healthy := &fakeMember{id: "healthy"}
	stalled := &fakeMember{id: "stalled", failing: true}

	reg.Join(key, healthy)
	reg.Join(key, stalled)

	reg.Publish(key, "frame")

	// The stalled member is removed and closed; the healthy one got the
	// frame without waiting.
	req.Len(healthy.received(), 1)
	req.True(stalled.isClosed())
	req.Equal(1, reg.MemberCount(key))
}

func TestConcurrentJoinLeave(t *testing.T) {
	req := require.New(t)

	reg := NewRegistry(testLogger())
	key := types.RoomKey(1)

	var wg sync.WaitGroup
	members := make([]*fakeMember, 50)
	for i := range members {
		members[i] = &fakeMember{id: string(rune('A' + i))}
	}

	for _, m := range members {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reg.Join(key, m)
			reg.Publish(key, "x")
			reg.Leave(key, m)
		}()
	}
	wg.Wait()

	req.Equal(0, reg.MemberCount(key))
	req.Equal(map[string]int{"groups": 0, "members": 0}, reg.Stats())
}
