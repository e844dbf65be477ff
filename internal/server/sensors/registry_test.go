package sensors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func state(key, code string) State {
	return State{Key: key, Code: code, EntryName: key, Period: 30, TimeRemaining: 30}
}

func TestPublish_CreatesUpdatesRemoves(t *testing.T) {
	r := NewRegistry()

	d := r.Publish("u1", "v1", []State{state("github", "111111"), state("mail", "222222")})
	assert.Equal(t, Diff{Created: 2}, d)

	// same set, one code rotated, one sensor gone
	d = r.Publish("u1", "v1", []State{state("github", "333333")})
	assert.Equal(t, Diff{Updated: 1, Removed: 1}, d)

	list := r.List("u1")
	require.Len(t, list, 1)
	assert.Equal(t, "github", list[0].Key)
	assert.Equal(t, "333333", list[0].Code)
}

func TestPublish_UnchangedStateIsNotAnUpdate(t *testing.T) {
	r := NewRegistry()

	r.Publish("u1", "v1", []State{state("github", "111111")})
	d := r.Publish("u1", "v1", []State{state("github", "111111")})
	assert.Equal(t, Diff{}, d)
}

func TestList_SortedAndScopedToUser(t *testing.T) {
	r := NewRegistry()

	r.Publish("u1", "v1", []State{state("mail", "1"), state("github", "2")})
	r.Publish("u2", "v9", []State{state("bank", "3")})

	keys := func(ss []State) []string {
		var out []string
		for _, s := range ss {
			out = append(out, s.Key)
		}
		return out
	}

	assert.Equal(t, []string{"github", "mail"}, keys(r.List("u1")))
	assert.Equal(t, []string{"bank"}, keys(r.List("u2")))
	assert.Empty(t, r.List("nobody"))
}

func TestGetAndToken(t *testing.T) {
	r := NewRegistry()
	r.Publish("u1", "v1", []State{state("github", "042042")})

	s, ok := r.Get("u1", "github")
	require.True(t, ok)
	assert.Equal(t, "042042", s.Code)

	code, ok := r.Token("u1", "github")
	require.True(t, ok)
	assert.Equal(t, "042042", code)

	_, ok = r.Get("u2", "github")
	assert.False(t, ok, "sensors are scoped per user")

	_, ok = r.Token("u1", "missing")
	assert.False(t, ok)
}

func TestDrop_RemovesVaultSensors(t *testing.T) {
	r := NewRegistry()
	r.Publish("u1", "v1", []State{state("github", "1")})
	r.Publish("u1", "v2", []State{state("bank", "2")})

	r.Drop("u1", "v1")

	list := r.List("u1")
	require.Len(t, list, 1)
	assert.Equal(t, "bank", list[0].Key)
}

func TestSubscribe_ReceivesSnapshots(t *testing.T) {
	r := NewRegistry()

	ch, cancel := r.Subscribe("u1")
	defer cancel()

	r.Publish("u1", "v1", []State{state("github", "1")})

	snap := <-ch
	require.Len(t, snap, 1)
	assert.Equal(t, "github", snap[0].Key)

	// publishes for other users are not delivered
	r.Publish("u2", "v9", []State{state("bank", "2")})
	select {
	case got := <-ch:
		t.Fatalf("unexpected snapshot: %+v", got)
	default:
	}
}

func TestSubscribe_SlowListenerGetsLatest(t *testing.T) {
	r := NewRegistry()

	ch, cancel := r.Subscribe("u1")
	defer cancel()

	r.Publish("u1", "v1", []State{state("github", "old")})
	r.Publish("u1", "v1", []State{state("github", "new")})

	snap := <-ch
	require.Len(t, snap, 1)
	assert.Equal(t, "new", snap[0].Code)
}
