package system

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

func InitResourceLimits(logger zerolog.Logger) {
	var rLimit syscall.Rlimit
	err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit)
	if err != nil {
		logger.Warn().Err(err).Msg("cannot read open file limit")
		return
	}

	rLimit.Cur = 2048
	if rLimit.Cur > rLimit.Max {
		rLimit.Cur = rLimit.Max
	}

	err = syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit)
	if err != nil {
		logger.Warn().Err(err).Msg("cannot raise open file limit")
	} else {
		logger.Debug().Uint64("limit", uint64(rLimit.Cur)).Msg("open file limit raised")
	}
}

var audioExtensions = []string{".mp3", ".wav", ".m4a", ".ogg", ".aac", ".flac"}

// FindLatestAudio returns the newest audio file in dir, the well-known
// location of the background soundtrack.
func FindLatestAudio(dir string) (string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var latestFile string
	var latestTime time.Time

	for _, f := range files {
		if f.IsDir() || !hasExtension(f.Name(), audioExtensions) {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(latestTime) {
			latestTime = info.ModTime()
			latestFile = filepath.Join(dir, f.Name())
		}
	}

	if latestFile == "" {
		return "", fmt.Errorf("no audio files found in %s", dir)
	}

	return latestFile, nil
}

func hasExtension(name string, extensions []string) bool {
	lower := strings.ToLower(name)
	for _, ext := range extensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// GetBestH264Encoder returns the first hardware H.264 encoder ffmpeg offers,
// falling back to libx264.
func GetBestH264Encoder() string {
	// Приоритеты:
	// 1. MacOS (VideoToolbox)
	// 2. NVIDIA (NVENC)
	// 3. Software (libx264)
	out, err := exec.Command("ffmpeg", "-hide_banner", "-encoders").CombinedOutput()
	if err != nil {
		return "libx264"
	}

	for _, name := range []string{"h264_videotoolbox", "h264_nvenc"} {
		if strings.Contains(string(out), name) {
			return name
		}
	}

	return "libx264"
}

// DefaultQuality is the quality setting matching an encoder's scale.
func DefaultQuality(encoder string) int {
	switch encoder {
	case "h264_videotoolbox":
		return 75 // битрейт = Q*100 кбит/с
	case "h264_nvenc":
		return 28 // эквивалент CRF для NVENC
	default:
		return 23 // стандартный CRF для x264
	}
}
