package sweep

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	tests := []struct {
		i, n int
		want Index
	}{
		{0, 2048, 0},
		{2047, 2048, 2047},
		{2048, 2048, 0},
		{4100, 2048, 4},
		{-1, 2048, 2047},
		{-5, 2048, 2043},
		{-2048, 2048, 0},
		{-4097, 2048, 2047},
		{7, 0, 0},
	}
	for _, tt := range tests {
		if got := Wrap(tt.i, tt.n); got != tt.want {
			t.Errorf("Wrap(%d, %d) = %d, want %d", tt.i, tt.n, got, tt.want)
		}
	}
}

func TestNewBuffer_RejectsNonPositive(t *testing.T) {
	for _, n := range []int{0, -1} {
		_, err := NewBuffer(n)
		assert.Error(t, err, "NewBuffer(%d)", n)
	}
}

func TestBuffer_StartsUnset(t *testing.T) {
	buf, err := NewBuffer(16)
	require.NoError(t, err)

	assert.Equal(t, 16, buf.Resolution())
	assert.False(t, buf.HasData())
	assert.Equal(t, Index(0), buf.MostRecent())
	assert.Equal(t, 0, buf.ValidCount())
	for i := 0; i < 16; i++ {
		d, ok := buf.Lookup(Index(i))
		assert.False(t, ok)
		assert.Equal(t, Distance(0), d)
		assert.Equal(t, Distance(0), buf.Read(Index(i)))
	}
}

func TestBuffer_WriteRead(t *testing.T) {
	buf, err := NewBuffer(DefaultResolution)
	require.NoError(t, err)

	buf.Write(10, 250)
	assert.Equal(t, Distance(250), buf.Read(10))
	assert.Equal(t, Index(10), buf.MostRecent())
	assert.True(t, buf.HasData())

	// zero is a genuine reading, distinct from unset
	buf.Write(11, 0)
	d, ok := buf.Lookup(11)
	assert.True(t, ok)
	assert.Equal(t, Distance(0), d)
	assert.Equal(t, 2, buf.ValidCount())

	// last write wins
	buf.Write(10, 90)
	assert.Equal(t, Distance(90), buf.Read(10))
	assert.Equal(t, Index(10), buf.MostRecent())
}

func TestBuffer_IndexWraps(t *testing.T) {
	buf, err := NewBuffer(8)
	require.NoError(t, err)

	buf.Write(9, 42)
	assert.Equal(t, Distance(42), buf.Read(1))
	assert.Equal(t, Index(1), buf.MostRecent())

	buf.Write(-1, 7)
	assert.Equal(t, Distance(7), buf.Read(7))
	assert.Equal(t, Distance(7), buf.Read(-9))
}

func TestBuffer_NegativeDistanceClamped(t *testing.T) {
	buf, err := NewBuffer(8)
	require.NoError(t, err)

	buf.Write(3, -20)
	d, ok := buf.Lookup(3)
	assert.True(t, ok)
	assert.Equal(t, Distance(0), d)
}

func TestBuffer_Snapshot(t *testing.T) {
	buf, err := NewBuffer(4)
	require.NoError(t, err)
	buf.Write(1, 5)
	buf.Write(3, 9)

	assert.Equal(t, []Distance{0, 5, 0, 9}, buf.Snapshot())
}

// TestBuffer_ConcurrentWriterReader runs one sequential writer against a
// polling reader. Each value written is derived from its index so a reader
// can detect a torn cell.
func TestBuffer_ConcurrentWriterReader(t *testing.T) {
	const n = DefaultResolution
	buf, err := NewBuffer(n)
	require.NoError(t, err)

	value := func(i int) Distance { return Distance(i)*1_000_003 + 17 }

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			buf.Write(Index(i), value(i))
		}
		close(done)
	}()

	var readerErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			for i := 0; i < n; i++ {
				d, ok := buf.Lookup(Index(i))
				if ok && d != value(i) {
					readerErr = assert.AnError
					return
				}
			}
			r := buf.MostRecent()
			if r < 0 || int(r) >= n {
				readerErr = assert.AnError
				return
			}
		}
	}()

	wg.Wait()
	require.NoError(t, readerErr, "reader observed a torn or out-of-range value")
	assert.Equal(t, Index(n-1), buf.MostRecent())
	assert.Equal(t, n, buf.ValidCount())
}
