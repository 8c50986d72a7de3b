package system

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindLatestAudio(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "old.mp3")
	fresh := filepath.Join(dir, "fresh.WAV")
	require.NoError(t, os.WriteFile(old, []byte("a"), 0644))
	require.NoError(t, os.WriteFile(fresh, []byte("b"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("c"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.mp3"), 0755))

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	got, err := FindLatestAudio(dir)
	require.NoError(t, err)
	assert.Equal(t, fresh, got)

	_, err = FindLatestAudio(t.TempDir())
	assert.Error(t, err)

	_, err = FindLatestAudio(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestDefaultQuality(t *testing.T) {
	assert.Equal(t, 75, DefaultQuality("h264_videotoolbox"))
	assert.Equal(t, 28, DefaultQuality("h264_nvenc"))
	assert.Equal(t, 23, DefaultQuality("libx264"))
}

func TestFramePool(t *testing.T) {
	p := NewFramePool()

	img := p.Get(8, 4)
	assert.Equal(t, image.Pt(8, 4), img.Bounds().Size())
	p.Put(img)

	other := p.Get(2, 2)
	assert.Equal(t, image.Pt(2, 2), other.Bounds().Size())

	// unknown sizes and sub-images are ignored
	p.Put(image.NewRGBA(image.Rect(0, 0, 5, 5)))
	p.Put(image.NewRGBA(image.Rect(1, 1, 9, 5)))
	p.Put(nil)
}

func TestAppendBenchmark(t *testing.T) {
	path := filepath.Join(t.TempDir(), "benchmark.log")
	require.NoError(t, AppendBenchmark(path, "first"))
	require.NoError(t, AppendBenchmark(path, "second"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], "] first"))
	assert.True(t, strings.HasSuffix(lines[1], "] second"))
}

func TestSnapshot(t *testing.T) {
	u := Snapshot(context.Background())
	assert.GreaterOrEqual(t, u.CPUPercent, 0.0)
	assert.GreaterOrEqual(t, u.MemUsedMB, 0.0)
}
