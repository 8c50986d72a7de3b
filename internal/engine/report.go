package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/ivlev/scene2video/internal/system"
)

// CaptureReport summarises a finished capture.
type CaptureReport struct {
	Frames       int
	Duration     float64 // video seconds
	WallTime     time.Duration
	EffectiveFPS float64
	AudioTrack   bool
	Bytes        int
	CPUPercent   float64
	MemUsedMB    float64
	ProcessRSSMB float64
}

func newReport(ctx context.Context, frames, fps int, wall time.Duration, audio bool, size int) CaptureReport {
	usage := system.Snapshot(ctx)
	r := CaptureReport{
		Frames:       frames,
		Duration:     float64(frames) / float64(fps),
		WallTime:     wall,
		AudioTrack:   audio,
		Bytes:        size,
		CPUPercent:   usage.CPUPercent,
		MemUsedMB:    usage.MemUsedMB,
		ProcessRSSMB: usage.ProcessRSSMB,
	}
	if wall > 0 {
		r.EffectiveFPS = float64(frames) / wall.Seconds()
	}
	return r
}

func (r CaptureReport) String() string {
	return fmt.Sprintf(
		"--- [PERFORMANCE REPORT] ---\n"+
			"Frames: %d (%.2fs of video)\n"+
			"Wall Time: %.2fs\n"+
			"Effective FPS: %.2f\n"+
			"Audio: %t\n"+
			"CPU: %.1f%% | Mem: %.0f MB | RSS: %.0f MB\n"+
			"----------------------------\n",
		r.Frames, r.Duration, r.WallTime.Seconds(), r.EffectiveFPS, r.AudioTrack,
		r.CPUPercent, r.MemUsedMB, r.ProcessRSSMB,
	)
}

// BenchmarkLine is the single-line form appended to the benchmark log.
func (r CaptureReport) BenchmarkLine() string {
	return fmt.Sprintf("Frames: %d | Video: %.2fs | Wall: %.2fs | FPS: %.2f | Audio: %t | Bytes: %d | CPU: %.1f%%",
		r.Frames, r.Duration, r.WallTime.Seconds(), r.EffectiveFPS, r.AudioTrack, r.Bytes, r.CPUPercent)
}
