// Package common carries process-wide bookkeeping: the name/id registry and
// the shutdown latch the rest of the runtime consults.
package common

import (
	"os"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/storypku/cyberrt-on-rpi/cyber/base"
)

// DefaultProcessGroup names the scheduler config used when none is set.
const DefaultProcessGroup = "cyber_default"

// GlobalData registers stable names (tasks, channels, nodes) and hands out
// their 64-bit ids. Ids are content hashes, so any process computing the id
// of a name agrees without coordination.
type GlobalData struct {
	processGroup string
	mu           sync.RWMutex

	taskIDName    *base.ConcurrentHashMap[uint64, string]
	channelIDName *base.ConcurrentHashMap[uint64, string]
}

var (
	globalDataOnce sync.Once
	globalData     *GlobalData
)

// Instance returns the process-wide GlobalData, constructing it on first
// use.
func Instance() *GlobalData {
	globalDataOnce.Do(func() {
		globalData = &GlobalData{
			processGroup:  DefaultProcessGroup,
			taskIDName:    base.NewConcurrentHashMap[uint64, string](),
			channelIDName: base.NewConcurrentHashMap[uint64, string](),
		}
		if pg := os.Getenv("CYBER_PROCESS_GROUP"); pg != "" {
			globalData.processGroup = pg
		}
	})
	return globalData
}

// GenerateHashID maps a stable name to its 64-bit id.
func GenerateHashID(name string) uint64 {
	return xxhash.Sum64String(name)
}

// ProcessGroup returns the configured process group name.
func (g *GlobalData) ProcessGroup() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.processGroup
}

// SetProcessGroup overrides the process group name, selecting which
// scheduler config file is loaded.
func (g *GlobalData) SetProcessGroup(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.processGroup = name
}

// RegisterTaskName records a task name and returns its id.
func (g *GlobalData) RegisterTaskName(name string) uint64 {
	id := GenerateHashID(name)
	g.taskIDName.Set(id, name)
	return id
}

// TaskName resolves a task id back to its registered name.
func (g *GlobalData) TaskName(id uint64) (string, bool) {
	return g.taskIDName.Get(id)
}

// RegisterChannel records a channel name and returns its id.
func (g *GlobalData) RegisterChannel(name string) uint64 {
	id := GenerateHashID(name)
	g.channelIDName.Set(id, name)
	return id
}

// ChannelName resolves a channel id back to its registered name.
func (g *GlobalData) ChannelName(id uint64) (string, bool) {
	return g.channelIDName.Get(id)
}
