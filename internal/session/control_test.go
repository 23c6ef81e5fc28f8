package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teleprompter/backend/internal/model"
)

func TestControl_Handoff(t *testing.T) {
	t.Run("named session becomes driver and everyone hears it", func(t *testing.T) {
		registry, _ := newTestRegistry(t)

		a, sinkA := connect(t, registry, "user-1", "A")
		b, sinkB := connect(t, registry, "user-1", "B")
		sinkA.reset()
		sinkB.reset()

		result, err := registry.Control("user-1", []byte(`{"clientID":"B","main":"B"}`))
		require.NoError(t, err)

		assert.True(t, result.Handoff)
		assert.False(t, result.Broadcast)
		assert.True(t, b.IsDriver())
		assert.False(t, a.IsDriver())

		announcement := []RoleMessage{{Role: RoleDriver, ID: "B"}}
		assert.Equal(t, announcement, sinkA.roles(t))
		assert.Equal(t, announcement, sinkB.roles(t))
	})

	t.Run("driver can hand the role to a follower", func(t *testing.T) {
		registry, _ := newTestRegistry(t)

		a, _ := connect(t, registry, "user-1", "A")
		connect(t, registry, "user-1", "B")
		c, _ := connect(t, registry, "user-1", "C")

		_, err := registry.Control("user-1", []byte(`{"clientID":"A","main":"C"}`))
		require.NoError(t, err)

		assert.True(t, c.IsDriver())
		assert.False(t, a.IsDriver())
		assert.Equal(t, 1, driverCount(registry, "user-1"))
	})

	t.Run("unknown target is a no-op", func(t *testing.T) {
		registry, clock := newTestRegistry(t)

		a, sinkA := connect(t, registry, "user-1", "A")
		b, sinkB := connect(t, registry, "user-1", "B")
		sinkA.reset()
		sinkB.reset()

		clock.Advance(5 * time.Second)
		result, err := registry.Control("user-1", []byte(`{"clientID":"B","main":"ghost"}`))
		require.NoError(t, err)

		assert.False(t, result.Handoff)
		assert.True(t, a.IsDriver())
		assert.False(t, b.IsDriver())
		assert.Empty(t, sinkA.messages())
		assert.Empty(t, sinkB.messages())
		assert.Equal(t, clock.Now(), b.LastHeartbeat())
	})

	t.Run("empty main from the driver is not relayed", func(t *testing.T) {
		registry, _ := newTestRegistry(t)

		a, sinkA := connect(t, registry, "user-1", "A")
		_, sinkB := connect(t, registry, "user-1", "B")
		sinkA.reset()
		sinkB.reset()

		result, err := registry.Control("user-1", []byte(`{"clientID":"A","main":"","position":3}`))
		require.NoError(t, err)

		assert.False(t, result.Handoff)
		assert.False(t, result.Broadcast)
		assert.True(t, a.IsDriver())
		assert.Empty(t, sinkA.messages())
		assert.Empty(t, sinkB.messages())
	})
}

func TestControl_PositionBroadcastScoping(t *testing.T) {
	t.Run("driver position reaches every session verbatim", func(t *testing.T) {
		registry, _ := newTestRegistry(t)

		connect(t, registry, "user-1", "A")
		_, sinkB := connect(t, registry, "user-1", "B")
		_, sinkOther := connect(t, registry, "user-2", "X")
		sinkOther.reset()

		result, err := registry.Control("user-1", []byte(`{"clientID": "A", "position": 1337}`))
		require.NoError(t, err)
		assert.True(t, result.Broadcast)

		assert.Equal(t, `{"clientID":"A","position":1337}`, sinkB.messages()[1])
		assert.Empty(t, sinkOther.messages())
	})

	t.Run("follower position only refreshes its heartbeat", func(t *testing.T) {
		registry, clock := newTestRegistry(t)

		_, sinkA := connect(t, registry, "user-1", "A")
		b, sinkB := connect(t, registry, "user-1", "B")
		sinkA.reset()
		sinkB.reset()

		clock.Advance(20 * time.Second)
		result, err := registry.Control("user-1", []byte(`{"clientID":"B","position":99}`))
		require.NoError(t, err)

		assert.False(t, result.Broadcast)
		assert.Empty(t, sinkA.messages())
		assert.Empty(t, sinkB.messages())
		assert.Equal(t, clock.Now(), b.LastHeartbeat())
	})

	t.Run("driver heartbeat is not broadcast", func(t *testing.T) {
		registry, clock := newTestRegistry(t)

		a, sinkA := connect(t, registry, "user-1", "A")
		_, sinkB := connect(t, registry, "user-1", "B")
		sinkA.reset()
		sinkB.reset()

		clock.Advance(20 * time.Second)
		result, err := registry.Control("user-1", []byte(`{"clientID":"A"}`))
		require.NoError(t, err)

		assert.False(t, result.Broadcast)
		assert.Empty(t, sinkB.messages())
		assert.Equal(t, clock.Now(), a.LastHeartbeat())
	})
}

func TestControl_Errors(t *testing.T) {
	registry, _ := newTestRegistry(t)

	_, err := registry.Control("user-1", []byte(`{"clientID":"A"}`))
	assert.ErrorIs(t, err, model.ErrSessionNotFound, "identity with no sessions")

	connect(t, registry, "user-1", "A")

	_, err = registry.Control("user-1", []byte(`{"clientID":"B"}`))
	assert.ErrorIs(t, err, model.ErrSessionNotFound, "unknown client")

	_, err = registry.Control("user-1", []byte(`{"position":1}`))
	assert.ErrorIs(t, err, model.ErrClientIDRequired)

	_, err = registry.Control("user-1", []byte(`not json`))
	assert.ErrorIs(t, err, model.ErrInvalidControl)
}

func TestControl_SweepsAfterEveryMessage(t *testing.T) {
	registry, _ := newTestRegistry(t)

	connect(t, registry, "user-1", "A")
	connect(t, registry, "user-1", "B")
	d, sinkD := connect(t, registry, "user-1", "D")
	backdate(d, 90*time.Second)

	result, err := registry.Control("user-1", []byte(`{"clientID":"B"}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"D"}, result.Evicted)
	assert.False(t, d.Live())
	assert.True(t, sinkD.isClosed())
	assert.Equal(t, 2, registry.Count("user-1"))
}
