package serialmux

import (
	"io"
	"testing"
	"time"

	"github.com/banshee-data/radar-sweep/internal/sweep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomDistance(t *testing.T) {
	tests := []struct {
		name string
		i, n int
		want int
	}{
		{"east wall", 0, 2048, 300},
		{"north wall", 512, 2048, 200},
		{"west wall", 1024, 2048, 300},
		{"south wall", 1536, 2048, 200},
		{"corner diagonal", 256, 2048, 283}, // 200/sin(45°)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RoomDistance(tt.i, tt.n, 300, 200))
		})
	}
}

func TestMockSweepPort_FeedsParser(t *testing.T) {
	port := NewMockSweepPort(MockSweepConfig{Resolution: 64, LinesPerSec: 3200, Tick: 5 * time.Millisecond})
	defer port.Close()

	buf, err := sweep.NewBuffer(64)
	require.NoError(t, err)
	p := sweep.NewLineParser(buf, sweep.ParserConfig{Policy: sweep.PolicyFailFast})

	src := NewPortSource(port)
	commits := 0
	deadline := time.Now().Add(3 * time.Second)
	for commits < 64 && time.Now().Before(deadline) {
		c, ok := src.ReadChar()
		if !ok {
			continue
		}
		res, err := p.Feed(c)
		require.NoError(t, err, "mock output must be well formed")
		if res.Committed {
			commits++
		}
	}
	require.Equal(t, 64, commits)

	assert.Equal(t, 64, buf.ValidCount())
	d, ok := buf.Lookup(0)
	require.True(t, ok)
	assert.Equal(t, sweep.Distance(RoomDistance(0, 64, 300, 200)), d)
}

func TestMockSweepPort_StartsMidLine(t *testing.T) {
	port := NewMockSweepPort(DefaultMockSweepConfig())
	defer port.Close()

	head := make([]byte, 2)
	_, err := io.ReadFull(port, head)
	require.NoError(t, err)
	assert.Equal(t, "7,", string(head))
}

func TestMockSweepPort_WriteAndClose(t *testing.T) {
	port := NewMockSweepPort(MockSweepConfig{})
	n, err := port.Write([]byte("START\n"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, []byte("START\n"), port.Written())

	require.NoError(t, port.Close())
	require.NoError(t, port.Close())

	_, err = port.Read(make([]byte, 16))
	assert.Error(t, err)
}
