package bridge

import (
	"fmt"
	"time"
)

// ChunkKind classifies a chunk delivered to the consumer.
type ChunkKind int

const (
	// KindOutput carries decoded shell output.
	KindOutput ChunkKind = iota
	// KindDiagnostic carries a non-fatal notice: decode fallback, truncation.
	KindDiagnostic
	// KindError carries a failure: read error, rejected write.
	KindError
	// KindExit is published once, after the child process is gone.
	KindExit
)

func (k ChunkKind) String() string {
	switch k {
	case KindOutput:
		return "output"
	case KindDiagnostic:
		return "diagnostic"
	case KindError:
		return "error"
	case KindExit:
		return "exit"
	default:
		return fmt.Sprintf("ChunkKind(%d)", int(k))
	}
}

// Chunk is one unit of the ordered stream delivered to OnChunk callbacks.
// Chunks are immutable once published.
type Chunk struct {
	Seq      uint64    // strictly increasing in publish order
	Kind     ChunkKind
	Text     string    // always valid UTF-8
	Raw      []byte    // bytes as read from the master (KindOutput only)
	Replaced bool      // Text contains U+FFFD substituted for invalid input
	Err      error     // set for KindError and most KindDiagnostic chunks
	Time     time.Time // publish time
}

// IsOutput reports whether c carries shell output.
func (c Chunk) IsOutput() bool {
	return c.Kind == KindOutput
}

func (c Chunk) String() string {
	if c.Err != nil {
		return fmt.Sprintf("#%d %s: %v", c.Seq, c.Kind, c.Err)
	}
	return fmt.Sprintf("#%d %s: %q", c.Seq, c.Kind, c.Text)
}
