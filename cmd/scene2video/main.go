package main

import (
	"context"
	"flag"
	"fmt"
	"image/png"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ivlev/scene2video/internal/animator"
	"github.com/ivlev/scene2video/internal/audio"
	"github.com/ivlev/scene2video/internal/config"
	"github.com/ivlev/scene2video/internal/director"
	"github.com/ivlev/scene2video/internal/engine"
	"github.com/ivlev/scene2video/internal/logging"
	"github.com/ivlev/scene2video/internal/renderer"
	"github.com/ivlev/scene2video/internal/scene"
	"github.com/ivlev/scene2video/internal/system"
	"github.com/ivlev/scene2video/internal/video"
)

func main() {
	configPtr := flag.String("config", "", "Папка с scene2video.yaml (по умолчанию: текущая)")
	scenePtr := flag.String("scene", "", "Путь к сцене YAML (по умолчанию: самый свежий файл в input/scenes/)")
	outputPtr := flag.String("output", "", "Путь к видео (если пусто, генерируется автоматически в output/)")
	widthPtr := flag.Int("width", 1280, "Ширина")
	heightPtr := flag.Int("height", 720, "Высота")
	presetPtr := flag.String("preset", "", "Пресет формата: 16:9, 9:16 (Shorts/TikTok), 4:5 (Instagram)")
	audioPtr := flag.String("audio", "", "Путь к аудио (по умолчанию: самый свежий файл в input/audio/)")
	noAudioPtr := flag.Bool("no-audio", false, "Записать видео без звука")
	containerPtr := flag.String("container", "mp4", "Контейнер: mp4 (ffmpeg) или avi (MJPEG, без ffmpeg)")
	seedPtr := flag.Int64("seed", 0, "Seed траектории камеры и аудио (0 - случайный)")
	qualityPtr := flag.Int("quality", 0, "Качество видео (0 - авто, x264: CRF 1-51, avi: JPEG 1-100)")
	dumpPtr := flag.String("dump-path", "", "Сохранить траекторию камеры в YAML (файл или папка)")
	previewPtr := flag.Float64("preview", 0, "Режим предпросмотра на N секунд, последний кадр сохраняется в PNG")
	statsPtr := flag.Bool("stats", false, "Показать отчет о производительности и записать benchmark.log")
	verbosePtr := flag.Bool("v", false, "Подробный лог")

	flag.Parse()

	cfg, err := config.Load(*configPtr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[-] Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Флаги командной строки имеют приоритет над файлом и окружением
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "scene":
			cfg.ScenePath = *scenePtr
		case "output":
			cfg.OutputVideo = *outputPtr
		case "width":
			cfg.Width = *widthPtr
		case "height":
			cfg.Height = *heightPtr
		case "preset":
			cfg.Preset = *presetPtr
		case "audio":
			cfg.Audio.Path = *audioPtr
		case "no-audio":
			cfg.Audio.Enabled = !*noAudioPtr
		case "container":
			cfg.Container = *containerPtr
		case "seed":
			cfg.Seed = *seedPtr
		case "quality":
			cfg.Quality = *qualityPtr
		case "stats":
			cfg.ShowStats = *statsPtr
		case "v":
			cfg.Verbose = *verbosePtr
		}
	})
	cfg.ApplyPreset()

	logger := logging.Init(cfg.Verbose)
	system.InitResourceLimits(logger)

	// Создаем нужные директории, если их нет
	for _, d := range []string{cfg.ScenesDir, cfg.Audio.Dir, cfg.OutputDir} {
		os.MkdirAll(d, 0755)
	}

	if err := run(cfg, logger, *dumpPtr, *previewPtr); err != nil {
		log.Fatal().Err(err).Msg("[-] Ошибка записи")
	}
}

func run(cfg *config.Config, logger zerolog.Logger, dumpPath string, preview float64) error {
	scenePath := cfg.ScenePath
	if scenePath == "" {
		latest, err := director.FindLatestScene(cfg.ScenesDir)
		if err != nil {
			return fmt.Errorf("%w. Положите сцену в %s/", err, cfg.ScenesDir)
		}
		scenePath = latest
		fmt.Printf("[*] Выбрана сцена: %s\n", scenePath)
	}

	sc, err := scene.Load(scenePath)
	if err != nil {
		return err
	}
	sceneName := sc.Name
	if sceneName == "" {
		sceneName = strings.TrimSuffix(filepath.Base(scenePath), filepath.Ext(scenePath))
	}

	var rng *rand.Rand
	if cfg.Seed != 0 {
		rng = rand.New(rand.NewSource(cfg.Seed))
	}

	dir := director.NewDirector(rng)
	dir.Logger = logging.WithComponent("director")

	surface := renderer.NewSoftware(cfg.Width, cfg.Height, logger)
	if sc.Camera != nil {
		surface.SetPose(sc.Camera.Position, sc.Camera.LookAt, sc.Camera.FOV)
	}
	surface.Mount(sc.Placements())

	driver := animator.New(surface, sc, dir,
		animator.WithLogger(logger),
		animator.WithFrameRate(animator.DefaultFrameRate),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if preview > 0 {
		return runPreview(ctx, cfg, logger, surface, driver, time.Duration(preview*float64(time.Second)))
	}

	muxers, codec := muxerFactory(cfg, logger)

	opts := engine.Options{
		FPS:                animator.DefaultFrameRate,
		Codec:              codec,
		Quality:            cfg.Quality,
		MountRetries:       cfg.Capture.MountRetries,
		MountInterval:      cfg.Capture.MountInterval,
		EncoderInitTimeout: cfg.Capture.EncoderInitTimeout,
		ShowStats:          cfg.ShowStats,
		BenchmarkLog:       cfg.Capture.BenchmarkLog,
	}

	audioEnabled := cfg.Audio.Enabled
	if audioEnabled {
		opts.AudioPath = cfg.Audio.Path
		if opts.AudioPath == "" {
			if latest, err := system.FindLatestAudio(cfg.Audio.Dir); err == nil {
				opts.AudioPath = latest
				fmt.Printf("[*] Выбрано аудио: %s\n", opts.AudioPath)
			} else {
				audioEnabled = false
			}
		}
	}

	audioOpts := []audio.Option{audio.WithLogger(logger), audio.WithGain(cfg.Audio.Gain)}
	if rng != nil {
		audioOpts = append(audioOpts, audio.WithRand(rand.New(rand.NewSource(cfg.Seed))))
	}

	sched, err := engine.NewScheduler(driver, muxers, opts,
		engine.WithLogger(logger),
		engine.WithAudio(audio.NewAdapter(audioOpts...)),
	)
	if err != nil {
		return err
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		select {
		case <-sigs:
			fmt.Println("\n[!] Прерывание, запись отменяется...")
			sched.Cancel(surface)
		case <-ctx.Done():
		}
	}()

	fmt.Println("--- [PROJECT: SCENE CAPTURE] ---")
	fmt.Printf("[*] Сцена: %s | Объектов: %d\n", scenePath, len(sc.Assets))
	fmt.Printf("[*] Разрешение: %dx%d @ %d FPS | Контейнер: %s\n", cfg.Width, cfg.Height, animator.DefaultFrameRate, cfg.Container)
	fmt.Println("-----------------------------")

	data, err := sched.Record(ctx, surface, audioEnabled)
	if err != nil {
		return err
	}

	output := cfg.OutputVideo
	if output == "" {
		cleanName := strings.ReplaceAll(sceneName, " ", "_")
		timestamp := time.Now().Format("2006-01-02_15-04-05")
		output = filepath.Join(cfg.OutputDir, fmt.Sprintf("%s_%s.%s", cleanName, timestamp, cfg.Container))
	}
	if err := os.WriteFile(output, data, 0644); err != nil {
		return err
	}

	if dumpPath != "" {
		if !strings.HasSuffix(dumpPath, ".yaml") && !strings.HasSuffix(dumpPath, ".yml") {
			os.MkdirAll(dumpPath, 0755)
			dumpPath = director.PathFilename(dumpPath)
		}
		if err := director.WritePath(driver.Path(), driver.TargetDuration(), sceneName, dumpPath); err != nil {
			return fmt.Errorf("ошибка сохранения траектории: %w", err)
		}
		fmt.Printf("[*] Траектория сохранена: %s\n", dumpPath)
	}

	fmt.Printf("[+++] Успех! Результат: %s (%.1fs)\n", output, driver.TargetDuration())
	return nil
}

// muxerFactory picks the container backend and the codec it will use.
func muxerFactory(cfg *config.Config, logger zerolog.Logger) (engine.MuxerFactory, string) {
	if cfg.Container == "avi" {
		return func() (video.Muxer, error) {
			return video.NewAVIMuxer(logger, cfg.Quality), nil
		}, "mjpeg"
	}

	encoder := system.GetBestH264Encoder()
	if encoder != "libx264" {
		fmt.Printf("[*] Обнаружено аппаратное ускорение: %s\n", encoder)
	}
	return func() (video.Muxer, error) {
		return video.NewFFmpegMuxer(logger)
	}, encoder
}

func runPreview(ctx context.Context, cfg *config.Config, logger zerolog.Logger, surface *renderer.Software, driver *animator.Driver, d time.Duration) error {
	if err := driver.StartPreview(time.Now()); err != nil {
		return err
	}
	defer driver.StopPreview()

	surface.OnTick(func(now time.Time) {
		if err := driver.PreviewTick(now); err != nil {
			logger.Debug().Err(err).Msg("preview tick skipped")
		}
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	fmt.Printf("[*] Предпросмотр: %.1fs\n", d.Seconds())
	if err := renderer.RunLoop(ctx, surface, d); err != nil && ctx.Err() == nil {
		return err
	}

	output := filepath.Join(cfg.OutputDir, fmt.Sprintf("preview_%s.png", time.Now().Format("2006-01-02_15-04-05")))
	f, err := os.Create(output)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := png.Encode(f, surface.Snapshot()); err != nil {
		return err
	}
	fmt.Printf("[+++] Кадр предпросмотра: %s\n", output)
	return nil
}
