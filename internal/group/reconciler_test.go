package group

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"courseplan/internal/model"
)

func TestTransitions(t *testing.T) {
	r := New(3)
	assert.Equal(t, Unchecked, r.State())
	assert.False(t, r.Locked())
	assert.Equal(t, DisplayUnchecked, r.Display())

	assert.True(t, r.ChildChecked("a"))
	assert.Equal(t, Checked, r.State())
	assert.True(t, r.Locked())
	assert.Equal(t, DisplayIndeterminate, r.Display())

	assert.False(t, r.ChildChecked("a"), "second check is a no-op")
	assert.Equal(t, 1, r.Count())

	r.ChildChecked("b")
	r.ChildChecked("c")
	assert.Equal(t, DisplayChecked, r.Display())

	// Decrement by one, not reset to zero.
	assert.True(t, r.ChildUnchecked("b"))
	assert.Equal(t, 2, r.Count())
	assert.Equal(t, Checked, r.State())
	assert.True(t, r.Checked("a"))
	assert.False(t, r.Checked("b"))

	r.ChildUnchecked("a")
	r.ChildUnchecked("c")
	assert.Equal(t, Unchecked, r.State())
	assert.Equal(t, 0, r.Count())
}

func TestUncheckUnknownChild(t *testing.T) {
	r := New(2)
	assert.False(t, r.ChildUnchecked("ghost"))
	assert.Equal(t, 0, r.Count())
}

func TestReset(t *testing.T) {
	r := New(4)
	r.ChildChecked("b")
	r.ChildChecked("a")

	assert.Equal(t, []model.ID{"a", "b"}, r.Reset())
	assert.Equal(t, Unchecked, r.State())
	assert.Equal(t, 0, r.Count())

	// The forced path leaves nothing for a later decrement to act on.
	assert.False(t, r.ChildUnchecked("a"))
	assert.Equal(t, 0, r.Count())
	assert.Empty(t, r.Reset())
}

func TestRandomToggleInvariants(t *testing.T) {
	ids := []model.ID{"1", "2", "3", "4", "5"}
	rng := rand.New(rand.NewSource(7))
	r := New(len(ids))
	want := map[model.ID]bool{}

	for i := 0; i < 2000; i++ {
		id := ids[rng.Intn(len(ids))]
		switch rng.Intn(7) {
		case 0:
			r.Reset()
			clear(want)
		case 1, 2, 3:
			r.ChildChecked(id)
			want[id] = true
		default:
			r.ChildUnchecked(id)
			delete(want, id)
		}

		assert.GreaterOrEqual(t, r.Count(), 0)
		assert.Equal(t, len(want), r.Count())
		assert.Equal(t, r.Count() >= 1, r.State() == Checked)
		assert.Equal(t, r.State() == Checked, r.Locked())
	}
}
