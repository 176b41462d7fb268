package room_test

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wilsonzlin/aero/proxy/webrtc-room-signal/internal/room"
)

type peer struct{ name string }

func TestRegistry_JoinCreatesRoomAndCounts(t *testing.T) {
	r := room.NewRegistry[*peer]()
	a, b := &peer{"a"}, &peer{"b"}

	assert.False(t, r.Exists("AB12"))
	assert.Equal(t, 0, r.PeerCount("AB12"))

	n, err := r.Join("AB12", a)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, r.Exists("AB12"))

	n, err = r.Join("AB12", b)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []*peer{a, b}, r.Members("AB12"))
}

func TestRegistry_JoinRejectsDuplicateAndEmptyCode(t *testing.T) {
	r := room.NewRegistry[*peer]()
	a := &peer{"a"}

	_, err := r.Join("", a)
	require.ErrorIs(t, err, room.ErrEmptyCode)

	_, err = r.Join("R1", a)
	require.NoError(t, err)

	n, err := r.Join("R1", a)
	require.ErrorIs(t, err, room.ErrAlreadyMember)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, r.PeerCount("R1"))
}

func TestRegistry_LeaveDeletesEmptyRoom(t *testing.T) {
	r := room.NewRegistry[*peer]()
	a, b := &peer{"a"}, &peer{"b"}
	_, _ = r.Join("AB12", a)
	_, _ = r.Join("AB12", b)

	remaining, removed := r.Leave("AB12", a)
	assert.True(t, removed)
	assert.Equal(t, 1, remaining)
	assert.True(t, r.Exists("AB12"))

	remaining, removed = r.Leave("AB12", b)
	assert.True(t, removed)
	assert.Equal(t, 0, remaining)
	assert.False(t, r.Exists("AB12"))
	assert.Equal(t, room.Status{RoomCode: "AB12", PeerCount: 0, Active: false}, r.Status("AB12"))

	rooms, peers := r.Stats()
	assert.Equal(t, 0, rooms)
	assert.Equal(t, 0, peers)
}

func TestRegistry_LeaveIsIdempotent(t *testing.T) {
	r := room.NewRegistry[*peer]()
	a, b := &peer{"a"}, &peer{"b"}

	remaining, removed := r.Leave("missing", a)
	assert.False(t, removed)
	assert.Equal(t, 0, remaining)

	_, _ = r.Join("R1", a)
	remaining, removed = r.Leave("R1", b)
	assert.False(t, removed)
	assert.Equal(t, 1, remaining)

	_, removed = r.Leave("R1", a)
	assert.True(t, removed)
	_, removed = r.Leave("R1", a)
	assert.False(t, removed)
}

func TestRegistry_MembersIsSnapshot(t *testing.T) {
	r := room.NewRegistry[*peer]()
	a, b, c := &peer{"a"}, &peer{"b"}, &peer{"c"}
	_, _ = r.Join("R1", a)
	_, _ = r.Join("R1", b)

	snap := r.Members("R1")
	_, _ = r.Join("R1", c)
	r.Leave("R1", a)

	assert.Equal(t, []*peer{a, b}, snap)
	assert.Equal(t, []*peer{b, c}, r.Members("R1"))
	assert.Nil(t, r.Members("missing"))
}

func TestRegistry_PreservesInsertionOrderAcrossLeave(t *testing.T) {
	r := room.NewRegistry[*peer]()
	ps := []*peer{{"a"}, {"b"}, {"c"}, {"d"}}
	for _, p := range ps {
		_, err := r.Join("R1", p)
		require.NoError(t, err)
	}
	r.Leave("R1", ps[1])
	assert.Equal(t, []*peer{ps[0], ps[2], ps[3]}, r.Members("R1"))
}

func TestRegistry_StatusAndStats(t *testing.T) {
	r := room.NewRegistry[*peer]()
	_, _ = r.Join("R1", &peer{"a"})
	_, _ = r.Join("R1", &peer{"b"})
	_, _ = r.Join("R2", &peer{"c"})

	assert.Equal(t, room.Status{RoomCode: "R1", PeerCount: 2, Active: true}, r.Status("R1"))

	rooms, peers := r.Stats()
	assert.Equal(t, 2, rooms)
	assert.Equal(t, 3, peers)
}

// The reported count must equal the number of joined, not-yet-left members for
// any interleaving of joins and leaves.
func TestRegistry_CountMatchesModelUnderRandomOps(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	r := room.NewRegistry[*peer]()
	pool := make([]*peer, 8)
	for i := range pool {
		pool[i] = &peer{fmt.Sprintf("p%d", i)}
	}
	joined := map[*peer]bool{}

	for i := 0; i < 2000; i++ {
		p := pool[rng.Intn(len(pool))]
		if rng.Intn(2) == 0 {
			_, err := r.Join("R", p)
			if joined[p] {
				require.ErrorIs(t, err, room.ErrAlreadyMember)
			} else {
				require.NoError(t, err)
			}
			joined[p] = true
		} else {
			r.Leave("R", p)
			delete(joined, p)
		}
		require.Equal(t, len(joined), r.PeerCount("R"))
		require.Equal(t, len(joined) > 0, r.Exists("R"))
	}
}

func TestRegistry_ConcurrentJoinLeave(t *testing.T) {
	r := room.NewRegistry[*peer]()
	const workers = 32

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := &peer{fmt.Sprintf("p%d", i)}
			for j := 0; j < 200; j++ {
				_, err := r.Join("R", p)
				assert.NoError(t, err)
				_ = r.Members("R")
				_, removed := r.Leave("R", p)
				assert.True(t, removed)
			}
		}(i)
	}
	wg.Wait()

	assert.False(t, r.Exists("R"))
	rooms, peers := r.Stats()
	assert.Equal(t, 0, rooms)
	assert.Equal(t, 0, peers)
}
