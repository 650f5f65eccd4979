package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewHeaderDefaults(t *testing.T) {
	h := NewHeader()
	assert.Equal(t, uint32(1), h.MajorVersion)
	assert.Equal(t, uint32(0), h.MinorVersion)
	assert.Equal(t, CompressNone, h.Compress)
	assert.Equal(t, uint64(20*1000*1000*1000), h.ChunkInterval)
	assert.Equal(t, uint64(60*1000*1000*1000), h.SegmentInterval)
	assert.Equal(t, uint64(200*1024*1024), h.ChunkRawSize)
	assert.Equal(t, uint64(2048*1024*1024), h.SegmentRawSize)
}

func TestNewHeaderWithSegmentParams(t *testing.T) {
	h := NewHeaderWithSegmentParams(1, 2)
	assert.Equal(t, uint64(1), h.SegmentInterval)
	assert.Equal(t, uint64(2), h.SegmentRawSize)
	assert.Equal(t, uint64(20*1000*1000*1000), h.ChunkInterval, "chunk params keep defaults")
}

func TestNewHeaderWithChunkParams(t *testing.T) {
	h := NewHeaderWithChunkParams(3, 4)
	assert.Equal(t, uint64(3), h.ChunkInterval)
	assert.Equal(t, uint64(4), h.ChunkRawSize)
	assert.Equal(t, uint64(60*1000*1000*1000), h.SegmentInterval, "segment params keep defaults")
}
