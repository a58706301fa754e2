package protocol

import "time"

const DefaultChunkSize = 1024

// Option configures a Stream.
type Option func(*streamConfig)

type streamConfig struct {
	timeout   time.Duration
	chunkSize int
	exact     bool
}

func defaultStreamConfig() streamConfig {
	return streamConfig{
		timeout:   30 * time.Second,
		chunkSize: DefaultChunkSize,
	}
}

// WithTimeout sets the deadline applied to every receive. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *streamConfig) {
		c.timeout = d
	}
}

func WithChunkSize(n int) Option {
	return func(c *streamConfig) {
		if n > 0 {
			c.chunkSize = n
		}
	}
}

// WithExactReads makes chunk receives read exactly the expected number of bytes
// instead of whatever a single read returns. Clients use this so that a reply
// coalesced with the last chunk is not swallowed.
func WithExactReads() Option {
	return func(c *streamConfig) {
		c.exact = true
	}
}
