package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNetworkIDDeterministic(t *testing.T) {
	a := [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	b := a
	b[15] = 17

	assert.Equal(t, NetworkID(a), NetworkID(a))
	assert.NotEqual(t, NetworkID(a), NetworkID(b))
}

func TestFormatBytes(t *testing.T) {
	testCases := []struct {
		in   float64
		want string
	}{
		{0, " 0.0   B"},
		{99, "99.0   B"},
		{1536, " 1.5 KiB"},
		{100 * 1024, " 0.1 MiB"},
	}

	for _, tc := range testCases {
		got := formatBytes(tc.in)
		assert.Equal(t, tc.want, got)
		assert.Len(t, got, 8)
	}
}

func TestStatsCounters(t *testing.T) {
	before := Stats.Snapshot()

	Stats.AddConn()
	Stats.AddSent(10)
	Stats.AddRecv(4)
	Stats.RemoveConn()

	after := Stats.Snapshot()
	assert.Equal(t, int64(1), after.TotalConns-before.TotalConns)
	assert.Equal(t, int64(1), after.ClosedConns-before.ClosedConns)
	assert.Equal(t, int64(1), after.PacketsSent-before.PacketsSent)
	assert.Equal(t, int64(10), after.BytesSent-before.BytesSent)
	assert.Equal(t, int64(4), after.BytesRecv-before.BytesRecv)
}

func TestFormatStats(t *testing.T) {
	assert.Equal(t, "In:  1.5 KiB/s | Out: 99.0   B/s | Peers:  2↑  1↓", formatStats(1536, 99, 2, 1))
}
