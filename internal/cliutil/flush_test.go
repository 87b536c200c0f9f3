package cliutil

import (
	"testing"
	"time"

	"github.com/gw/kraken-feed/internal/flush"
)

func TestResolveSegmentMode(t *testing.T) {
	cases := []struct {
		hourly, daily bool
		want          flush.SegmentMode
		wantErr       bool
	}{
		{false, false, flush.SegmentNone, false},
		{true, false, flush.SegmentHourly, false},
		{false, true, flush.SegmentDaily, false},
		{true, true, "", true},
	}
	for _, c := range cases {
		got, err := ResolveSegmentMode(c.hourly, c.daily)
		if c.wantErr {
			if err == nil {
				t.Errorf("hourly=%v daily=%v: expected an error", c.hourly, c.daily)
			}
			continue
		}
		if err != nil {
			t.Errorf("hourly=%v daily=%v: unexpected error %v", c.hourly, c.daily, err)
		}
		if got != c.want {
			t.Errorf("hourly=%v daily=%v: got %v, want %v", c.hourly, c.daily, got, c.want)
		}
	}
}

func TestBuildFlushConfig(t *testing.T) {
	cfg := BuildFlushConfig("ticker.csv", 30, 10*1024*1024, flush.SegmentHourly, true)
	if cfg.FlushInterval != 30*time.Second {
		t.Errorf("FlushInterval = %v, want 30s", cfg.FlushInterval)
	}
	if cfg.MemoryThreshold != 10*1024*1024 {
		t.Errorf("MemoryThreshold = %v", cfg.MemoryThreshold)
	}
	if cfg.SegmentMode != flush.SegmentHourly {
		t.Errorf("SegmentMode = %v", cfg.SegmentMode)
	}
	if cfg.BaseFilename != "ticker.csv" || !cfg.CompressRotated {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestBuildFlushConfigDisabledTriggers(t *testing.T) {
	cfg := BuildFlushConfig("t.csv", 0, 0, flush.SegmentNone, false)
	if cfg.FlushInterval != 0 || cfg.MemoryThreshold != 0 {
		t.Errorf("expected both triggers disabled, got %+v", cfg)
	}
}
