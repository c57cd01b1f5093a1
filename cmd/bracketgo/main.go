package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	cli "github.com/jawher/mow.cli"
	log "github.com/sirupsen/logrus"

	"github.com/cjeanneret/BracketGo/internal/camera"
	"github.com/cjeanneret/BracketGo/internal/config"
	"github.com/cjeanneret/BracketGo/internal/debug"
	"github.com/cjeanneret/BracketGo/internal/hw/gphoto"
	"github.com/cjeanneret/BracketGo/internal/hw/gpio"
	"github.com/cjeanneret/BracketGo/internal/hw/indicator"
	"github.com/cjeanneret/BracketGo/internal/web"
)

const (
	appName = "bracketgo"
	appDesc = "exposure bracketing and time-lapse capture over gphoto2"
)

// globals are the options shared by every command.
type globals struct {
	cfgPath    *string
	debugLevel *int
	mock       *bool
}

func main() {
	app := cli.App(appName, appDesc)

	g := globals{
		cfgPath: app.String(cli.StringOpt{
			Name:   "c config",
			Desc:   "path to config file",
			EnvVar: "BRACKETGO_CONFIG",
			Value:  filepath.Join("configs", "default.yaml"),
		}),
		debugLevel: app.Int(cli.IntOpt{
			Name:   "d debug",
			Desc:   "override debug level (0-4); -1 keeps the config value",
			EnvVar: "BRACKETGO_DEBUG",
			Value:  -1,
		}),
		mock: app.Bool(cli.BoolOpt{
			Name:   "mock",
			Desc:   "use the simulated camera and GPIO",
			EnvVar: "BRACKETGO_MOCK",
		}),
	}

	app.Command("bracket", "shoot one photo per shutter speed between two bounds", func(cmd *cli.Cmd) {
		minSpeed := cmd.String(cli.StringOpt{Name: "min", Desc: "last (fastest) shutter speed, e.g. 1/60"})
		maxSpeed := cmd.String(cli.StringOpt{Name: "max", Desc: "first (slowest) shutter speed, e.g. 10.3"})
		aperture := cmd.String(cli.StringOpt{Name: "a aperture", Desc: "aperture to set before the run, e.g. f/8"})

		cmd.Action = func() {
			exitOnError(g.withCamera(func(ctx context.Context, cfg *config.Config, cam *camera.Camera) error {
				p := bracketParams(cfg, *minSpeed, *maxSpeed, *aperture)
				debug.PrintStruct("Bracket params", p)
				paths, err := cam.Bracket(ctx, p)
				printPaths(os.Stdout, paths)
				debug.Summary(runReport("Bracketing", paths, err))
				return err
			}))
		}
	})

	app.Command("timelapse", "shoot a fixed number of photos at a fixed interval", func(cmd *cli.Cmd) {
		count := cmd.Int(cli.IntOpt{Name: "n count", Desc: "number of photos; 0 keeps the config value"})
		interval := cmd.String(cli.StringOpt{Name: "i interval", Desc: "pause between photos, e.g. 500ms or 1m"})
		aperture := cmd.String(cli.StringOpt{Name: "a aperture", Desc: "aperture to set before the run"})
		shutter := cmd.String(cli.StringOpt{Name: "s shutter", Desc: "shutter speed to set before the run"})

		cmd.Action = func() {
			exitOnError(g.withCamera(func(ctx context.Context, cfg *config.Config, cam *camera.Camera) error {
				p, err := timeLapseParams(cfg, *count, *interval, *aperture, *shutter)
				if err != nil {
					return err
				}
				debug.PrintStruct("Time-lapse params", p)
				paths, err := cam.TimeLapse(ctx, p)
				printPaths(os.Stdout, paths)
				debug.Summary(runReport("Time-lapse", paths, err))
				return err
			}))
		}
	})

	app.Command("choices", "print current exposure and the values the camera accepts", func(cmd *cli.Cmd) {
		cmd.Action = func() {
			exitOnError(g.withCamera(func(ctx context.Context, cfg *config.Config, cam *camera.Camera) error {
				s, err := readSettings(cam)
				if err != nil {
					return err
				}
				printSettings(os.Stdout, s)
				return nil
			}))
		}
	})

	app.Command("serve", "start the web control page", func(cmd *cli.Cmd) {
		port := cmd.Int(cli.IntOpt{Name: "p port", Desc: "listen port; 0 keeps the config value", EnvVar: "BRACKETGO_PORT"})

		cmd.Action = func() {
			exitOnError(g.withCamera(func(ctx context.Context, cfg *config.Config, cam *camera.Camera) error {
				return serve(ctx, cfg, cam, *port)
			}))
		}
	})

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("failed to execute application")
	}
}

// setup loads the configuration and applies global overrides.
func (g globals) setup() (*config.Config, error) {
	cfg, err := config.Load(*g.cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if *g.debugLevel >= 0 {
		if *g.debugLevel > debug.LevelTrace {
			return nil, fmt.Errorf("debug level must be between 0 and 4, got %d", *g.debugLevel)
		}
		cfg.Defaults.DebugLevel = *g.debugLevel
	}
	if *g.mock {
		cfg.Camera.Type = "mock"
		cfg.Defaults.MockGPIO = true
	}

	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *g.cfgPath)
	debug.Value("Debug level", debug.Level())
	debug.Value("Camera type", cfg.Camera.Type)
	return cfg, nil
}

// withCamera opens the camera described by the configuration, runs fn and
// releases every resource on all exit paths.
func (g globals) withCamera(fn func(ctx context.Context, cfg *config.Config, cam *camera.Camera) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := g.setup()
	if err != nil {
		return err
	}

	debug.Step(1, "Initializing busy light")
	light, closeGPIO, err := newIndicator(cfg)
	if err != nil {
		return fmt.Errorf("init busy light: %w", err)
	}
	defer closeGPIO()

	debug.Step(2, "Opening camera session")
	session, err := gphoto.NewSession(gphoto.Options{
		Type:   cfg.Camera.Type,
		Binary: cfg.Camera.Binary,
		Port:   cfg.Camera.Port,
		Model:  cfg.Camera.Model,
	})
	if err != nil {
		return err
	}

	outDir, err := outputDir(cfg)
	if err != nil {
		return err
	}
	debug.Value("Output dir", outDir)

	opts := camera.Options{OutputDir: outDir}
	if light != nil {
		opts.Indicator = light
	}
	cam, err := camera.Open(ctx, session, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := cam.Exit(); err != nil {
			log.WithError(err).Warn("closing camera session failed")
		}
	}()

	return fn(ctx, cfg, cam)
}

// newIndicator returns nil and a no-op close when no busy light is wired.
func newIndicator(cfg *config.Config) (*indicator.BusyLight, func(), error) {
	if !cfg.IndicatorEnabled() {
		return nil, func() {}, nil
	}
	drv, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := drv.Close(); err != nil {
			log.WithError(err).Warn("closing GPIO driver failed")
		}
	}
	light, err := indicator.NewBusyLight(drv, cfg.Indicator.BusyPin, cfg.Indicator.ActiveLow)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	debug.Value("Busy light pin", cfg.Indicator.BusyPin)
	return light, closeFn, nil
}

// outputDir resolves the configured directory against the executable's location.
func outputDir(cfg *config.Config) (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate executable: %w", err)
	}
	return cfg.OutputPath(filepath.Dir(exe)), nil
}

// bracketParams merges command line values over the config defaults.
// Empty strings keep the config value.
func bracketParams(cfg *config.Config, minSpeed, maxSpeed, aperture string) camera.BracketParams {
	p := camera.BracketParams{
		ShutterMin: cfg.Bracketing.ShutterMin,
		ShutterMax: cfg.Bracketing.ShutterMax,
		Aperture:   cfg.Bracketing.Aperture,
	}
	if minSpeed != "" {
		p.ShutterMin = minSpeed
	}
	if maxSpeed != "" {
		p.ShutterMax = maxSpeed
	}
	if aperture != "" {
		p.Aperture = aperture
	}
	return p
}

// timeLapseParams merges command line values over the config defaults.
// Zero count and empty strings keep the config value.
func timeLapseParams(cfg *config.Config, count int, interval, aperture, shutter string) (camera.TimeLapseParams, error) {
	p := camera.TimeLapseParams{
		Count:        cfg.TimeLapse.Count,
		Interval:     cfg.Interval(),
		Aperture:     cfg.TimeLapse.Aperture,
		ShutterSpeed: cfg.TimeLapse.ShutterSpeed,
	}
	if count < 0 {
		return p, fmt.Errorf("count must be >= 0, got %d", count)
	}
	if count > 0 {
		p.Count = count
	}
	if interval != "" {
		d, err := time.ParseDuration(interval)
		if err != nil {
			return p, fmt.Errorf("invalid interval %q: %w", interval, err)
		}
		if d < 0 {
			return p, fmt.Errorf("interval must be >= 0, got %v", d)
		}
		p.Interval = d
	}
	if aperture != "" {
		p.Aperture = aperture
	}
	if shutter != "" {
		p.ShutterSpeed = shutter
	}
	return p, nil
}

func readSettings(cam *camera.Camera) (web.Settings, error) {
	var s web.Settings
	var err error
	if s.Aperture, err = cam.Aperture(); err != nil {
		return s, err
	}
	if s.ShutterSpeed, err = cam.ShutterSpeed(); err != nil {
		return s, err
	}
	if s.ApertureChoices, err = cam.ApertureChoices(); err != nil {
		return s, err
	}
	if s.ShutterSpeedChoices, err = cam.ShutterSpeedChoices(); err != nil {
		return s, err
	}
	return s, nil
}

func printSettings(w io.Writer, s web.Settings) {
	fmt.Fprintf(w, "aperture:      %s\n", s.Aperture)
	fmt.Fprintf(w, "shutter speed: %s\n", s.ShutterSpeed)
	fmt.Fprintf(w, "apertures:      %s\n", strings.Join(s.ApertureChoices, " "))
	fmt.Fprintf(w, "shutter speeds: %s\n", strings.Join(s.ShutterSpeedChoices, " "))
}

// runReport is the one-line outcome printed at the end of a sequence.
func runReport(kind string, paths []string, err error) string {
	if err != nil {
		return fmt.Sprintf("%s stopped after %d photos: %v", kind, len(paths), err)
	}
	return fmt.Sprintf("%s complete: %d photos", kind, len(paths))
}

func printPaths(w io.Writer, paths []string) {
	for _, p := range paths {
		fmt.Fprintln(w, p)
	}
}

// serve exposes the camera over HTTP until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config, cam *camera.Camera, port int) error {
	if port == 0 {
		port = cfg.Defaults.WebPort
	}
	if port < 0 || port > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", port)
	}

	broadcaster := web.NewStatusBroadcaster()
	debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))

	srv, err := web.NewServer(fmt.Sprintf(":%d", port), broadcaster, newJobs(cfg, cam), newFormConfig(cfg))
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

// newJobs binds the web endpoints to cam.
func newJobs(cfg *config.Config, cam *camera.Camera) web.Jobs {
	return web.Jobs{
		Bracket: func(ctx context.Context, req web.BracketRequest) error {
			_, err := cam.Bracket(ctx, bracketParams(cfg, req.ShutterMin, req.ShutterMax, req.Aperture))
			return err
		},
		TimeLapse: func(ctx context.Context, req web.TimeLapseRequest) error {
			_, err := cam.TimeLapse(ctx, camera.TimeLapseParams{
				Count:        req.Count,
				Interval:     time.Duration(req.IntervalMs) * time.Millisecond,
				Aperture:     req.Aperture,
				ShutterSpeed: req.ShutterSpeed,
			})
			return err
		},
		Settings: func(ctx context.Context) (web.Settings, error) {
			if err := cam.Refresh(ctx); err != nil {
				return web.Settings{}, err
			}
			return readSettings(cam)
		},
	}
}

func newFormConfig(cfg *config.Config) web.FormConfig {
	return web.FormConfig{
		Bracket: web.BracketRequest{
			ShutterMin: cfg.Bracketing.ShutterMin,
			ShutterMax: cfg.Bracketing.ShutterMax,
			Aperture:   cfg.Bracketing.Aperture,
		},
		TimeLapse: web.TimeLapseRequest{
			Count:        cfg.TimeLapse.Count,
			IntervalMs:   cfg.TimeLapse.IntervalMs,
			Aperture:     cfg.TimeLapse.Aperture,
			ShutterSpeed: cfg.TimeLapse.ShutterSpeed,
		},
	}
}

// exitOnError logs err and terminates with status 1.
func exitOnError(err error) {
	if err == nil {
		return
	}
	entry := log.WithError(err)
	var ce *camera.Error
	if errors.As(err, &ce) {
		entry = entry.WithField("op", ce.Op)
		if ce.Setting != "" {
			entry = entry.WithField("setting", ce.Setting)
		}
	}
	entry.Error("run failed")
	cli.Exit(1)
}
