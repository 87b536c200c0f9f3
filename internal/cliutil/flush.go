package cliutil

import (
	"fmt"
	"time"

	"github.com/gw/kraken-feed/internal/flush"
)

// ResolveSegmentMode enforces the §6 "--hourly xor --daily" mutual
// exclusion and returns the corresponding flush.SegmentMode.
func ResolveSegmentMode(hourly, daily bool) (flush.SegmentMode, error) {
	switch {
	case hourly && daily:
		return "", fmt.Errorf("--hourly and --daily are mutually exclusive")
	case hourly:
		return flush.SegmentHourly, nil
	case daily:
		return flush.SegmentDaily, nil
	default:
		return flush.SegmentNone, nil
	}
}

// BuildFlushConfig assembles a flush.Config from the CLI's common flags.
// flushSecs/memBytes of 0 disable the corresponding trigger per §6.
func BuildFlushConfig(baseFilename string, flushSecs int, memBytes uint64, mode flush.SegmentMode, compressRotated bool) flush.Config {
	return flush.Config{
		FlushInterval:   time.Duration(flushSecs) * time.Second,
		MemoryThreshold: memBytes,
		SegmentMode:     mode,
		BaseFilename:    baseFilename,
		CompressRotated: compressRotated,
	}
}
