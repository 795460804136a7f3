package shell

import (
	"bytes"
	"sync"

	"github.com/Cyclone1070/coda/internal/tool/fsutil"
)

// binaryPlaceholder replaces output that looks binary.
const binaryPlaceholder = "[Binary Content]"

// collector captures command output up to maxBytes. stdout and stderr share
// one collector, so writes are serialised.
type collector struct {
	mu        sync.Mutex
	buffer    bytes.Buffer
	maxBytes  int64
	truncated bool
	isBinary  bool
	checked   int
}

func newCollector(maxBytes int64) *collector {
	return &collector{maxBytes: maxBytes}
}

func (c *collector) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isBinary {
		return len(p), nil
	}

	if c.checked < fsutil.BinarySampleSize {
		sample := p[:min(len(p), fsutil.BinarySampleSize-c.checked)]
		if fsutil.IsBinary(sample) {
			c.isBinary = true
			c.truncated = true
			return len(p), nil
		}
		c.checked += len(sample)
	}

	remaining := c.maxBytes - int64(c.buffer.Len())
	if remaining <= 0 {
		c.truncated = true
		return len(p), nil
	}

	chunk := p
	if int64(len(chunk)) > remaining {
		chunk = chunk[:remaining]
		c.truncated = true
	}
	if _, err := c.buffer.Write(chunk); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *collector) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isBinary {
		return binaryPlaceholder
	}
	return c.buffer.String()
}

func (c *collector) Truncated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.truncated
}
