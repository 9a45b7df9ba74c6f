package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func testGate(t *testing.T, codes ...string) *Gate {
	t.Helper()
	hashes := make([]string, len(codes))
	for i, c := range codes {
		h, err := hashCodeWithCost(c, bcrypt.MinCost)
		require.NoError(t, err)
		hashes[i] = h
	}
	g, err := NewGate(hashes)
	require.NoError(t, err)
	return g
}

func TestGate_SequentialUnlock(t *testing.T) {
	g := testGate(t, "111", "222", "333")
	a := g.Start()
	assert.Equal(t, Attempt{Step: 0, Total: 3}, a)

	a, err := g.Submit(a, "111")
	require.NoError(t, err)
	assert.Equal(t, 1, a.Step)
	assert.False(t, a.Unlocked)

	a, err = g.Submit(a, "222")
	require.NoError(t, err)
	assert.Equal(t, 2, a.Step)

	a, err = g.Submit(a, "333")
	require.NoError(t, err)
	assert.True(t, a.Unlocked)

	_, err = g.Submit(a, "333")
	assert.ErrorIs(t, err, ErrGateCompleted)
}

func TestGate_WrongCodeKeepsStep(t *testing.T) {
	g := testGate(t, "111", "222")
	a, err := g.Submit(g.Start(), "111")
	require.NoError(t, err)

	again, err := g.Submit(a, "111")
	assert.ErrorIs(t, err, ErrWrongCode)
	assert.Equal(t, a, again)
}

func TestGate_CodesAreOrdered(t *testing.T) {
	g := testGate(t, "111", "222")
	_, err := g.Submit(g.Start(), "222")
	assert.ErrorIs(t, err, ErrWrongCode)
}

func TestGate_Resume(t *testing.T) {
	g := testGate(t, "a", "b")

	a, err := g.Resume(1)
	require.NoError(t, err)
	a, err = g.Submit(a, "b")
	require.NoError(t, err)
	assert.True(t, a.Unlocked)

	_, err = g.Resume(2)
	assert.Error(t, err)
	_, err = g.Resume(-1)
	assert.Error(t, err)
}

func TestNewGate_Validation(t *testing.T) {
	_, err := NewGate(nil)
	assert.ErrorIs(t, err, ErrNoCodes)

	_, err = NewGate([]string{" ", ""})
	assert.ErrorIs(t, err, ErrNoCodes)

	_, err = NewGate([]string{"plain-text-code"})
	assert.Error(t, err)
}

func TestHashCode(t *testing.T) {
	_, err := HashCode("")
	assert.Error(t, err)

	h, err := hashCodeWithCost("020747", bcrypt.MinCost)
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(h), []byte("020747")))
}
