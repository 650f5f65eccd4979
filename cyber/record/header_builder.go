// Package record holds the record-file header defaults used by the
// record/replay tooling built on top of the runtime.
package record

// CompressType selects the record chunk compression.
type CompressType int32

const (
	CompressNone CompressType = iota
	CompressBZ2
	CompressLZ4
)

// Header describes one record file: versioning, chunking and segmenting
// parameters, plus the totals filled in as the file is written.
type Header struct {
	MajorVersion    uint32
	MinorVersion    uint32
	Compress        CompressType
	ChunkInterval   uint64 // nanoseconds
	SegmentInterval uint64 // nanoseconds
	ChunkRawSize    uint64 // bytes
	SegmentRawSize  uint64 // bytes

	IsComplete    bool
	BeginTime     uint64
	EndTime       uint64
	MessageNumber uint64
}

const (
	majorVersion = 1
	minorVersion = 0

	chunkInterval   = 20 * 1000 * 1000 * 1000 // 20s
	segmentInterval = 60 * 1000 * 1000 * 1000 // 60s
	chunkRawSize    = 200 * 1024 * 1024       // 200MB
	segmentRawSize  = 2048 * 1024 * 1024      // 2GB
)

// NewHeader returns a header with the default chunk and segment parameters.
func NewHeader() Header {
	return Header{
		MajorVersion:    majorVersion,
		MinorVersion:    minorVersion,
		Compress:        CompressNone,
		ChunkInterval:   chunkInterval,
		SegmentInterval: segmentInterval,
		ChunkRawSize:    chunkRawSize,
		SegmentRawSize:  segmentRawSize,
	}
}

// NewHeaderWithSegmentParams overrides the segment split parameters.
func NewHeaderWithSegmentParams(segmentInterval, segmentRawSize uint64) Header {
	h := NewHeader()
	h.SegmentInterval = segmentInterval
	h.SegmentRawSize = segmentRawSize
	return h
}

// NewHeaderWithChunkParams overrides the chunk flush parameters.
func NewHeaderWithChunkParams(chunkInterval, chunkRawSize uint64) Header {
	h := NewHeader()
	h.ChunkInterval = chunkInterval
	h.ChunkRawSize = chunkRawSize
	return h
}
