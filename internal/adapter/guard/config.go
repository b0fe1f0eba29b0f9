package guard

import (
	"time"

	"github.com/paddockhq/paddock/internal/config"
)

const (
	DefaultWindowBytes      = 500
	DefaultStreamBufferSize = 64 * 1024

	// MaxChunkBytes caps a single NDJSON line from the upstream. Real
	// chunks are small deltas; anything near this size is a misbehaving
	// backend and fails the stream rather than growing without bound.
	MaxChunkBytes = 1024 * 1024

	streamLineBacklog = 8

	errKindClientDisconnect = "client_disconnect"
)

// Configuration carries the guard's runtime knobs. The scan flags and the
// window are hot-reloadable through ApplyScanConfig; buffer sizing and the
// idle timeout are fixed at construction.
type Configuration struct {
	WindowBytes         int
	StreamBufferSize    int
	UpstreamIdle        time.Duration
	InputEnabled        bool
	OutputEnabled       bool
	BlockOnScannerError bool
}

// ConfigurationFrom snapshots the guard knobs out of the app config.
func ConfigurationFrom(cfg *config.Config) Configuration {
	return Configuration{
		WindowBytes:         cfg.Scan.WindowBytes,
		StreamBufferSize:    cfg.Upstream.StreamBufferSize,
		UpstreamIdle:        cfg.Timeout.UpstreamIdle,
		InputEnabled:        cfg.Scan.InputEnabled,
		OutputEnabled:       cfg.Scan.OutputEnabled,
		BlockOnScannerError: cfg.Scan.BlockOnScannerError,
	}
}

func (c *Configuration) GetWindowBytes() int {
	if c.WindowBytes <= 0 {
		return DefaultWindowBytes
	}
	return c.WindowBytes
}

func (c *Configuration) GetStreamBufferSize() int {
	if c.StreamBufferSize <= 0 {
		return DefaultStreamBufferSize
	}
	return c.StreamBufferSize
}
