package event

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedEventDefaultSerialization(t *testing.T) {
	var e SchedEvent
	assert.Equal(t, "0\t0\t\t0\t0\t0", e.SerializeToString())
}

func TestTransportEventDefaultSerialization(t *testing.T) {
	var e TransportEvent
	assert.Equal(t, "1\t0\t\t0\t0", e.SerializeToString())
}

func TestSchedEventFieldSerialization(t *testing.T) {
	e := SchedEvent{EventID: NextRt, Stamp: "123", CrID: 7, ProcID: 2, Extra: 9}
	assert.Equal(t, "0\t4\t123\t7\t2\t9", e.SerializeToString())
}

func TestTransportEventFieldSerialization(t *testing.T) {
	e := TransportEvent{EventID: WriteNotify, Stamp: "456", ChannelID: 11, MsgSeq: 3}
	assert.Equal(t, "1\t3\t456\t11\t3", e.SerializeToString())
}

func TestPerfEventCacheWritesDataFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(schedPerfEnv, "1")
	t.Setenv(transPerfEnv, "2")

	c := newPerfEventCache()
	require.True(t, c.enableSched)
	require.True(t, c.enableTrans)

	for i := 1; i <= 10; i++ {
		if i&0x01 == 1 {
			eid := NotifyIn
			if i%3 == 0 {
				eid = SwapOut
			}
			c.AddSchedEvent(eid, uint64(i), 10+i, int64(100+i))
		} else {
			eid := TransFrom
			if i%3 == 0 {
				eid = WriteNotify
			}
			c.AddTransportEvent(eid, uint64(i), uint64(100+i))
		}
	}
	c.Shutdown()
	c.Shutdown() // idempotent

	files, err := filepath.Glob("cyber_perf_*.data")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	raw, err := os.ReadFile(files[0])
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	assert.Len(t, lines, 10)
	for _, line := range lines {
		fields := strings.Split(line, "\t")
		switch fields[0] {
		case "0":
			assert.Len(t, fields, 6)
		case "1":
			assert.Len(t, fields, 5)
		default:
			t.Fatalf("unexpected event type in %q", line)
		}
	}
}

func TestPerfEventCacheDisabledWithoutEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(schedPerfEnv, "")
	t.Setenv(transPerfEnv, "0")

	c := newPerfEventCache()
	require.False(t, c.enableSched)
	require.False(t, c.enableTrans)

	// Safe to record and shut down with the sink disabled.
	c.AddSchedEvent(RtCreate, 1, 0)
	c.Shutdown()

	files, err := filepath.Glob("cyber_perf_*.data")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestSchedPerfNames(t *testing.T) {
	assert.Equal(t, "NEXT_RT", NextRt.String())
	assert.Equal(t, "RT_CREATE", RtCreate.String())
	assert.Equal(t, "TRANS_FROM", TransFrom.String())
}
