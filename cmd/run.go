package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"simbridge/internal/bridge"
	"simbridge/internal/camera"
	"simbridge/internal/config"
	"simbridge/internal/relay"
	"simbridge/internal/render"
	"simbridge/internal/server"
	"simbridge/internal/telemetry"
	"simbridge/internal/uplink"
	"simbridge/internal/world"
)

func newRunCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "ブリッジを起動する（デフォルト）",
		RunE:  a.run,
	}
}

func (a *app) run(cmd *cobra.Command, _ []string) error {
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := Run(ctx, a.cfg, a.logger); err != nil {
		a.logger.Error("起動に失敗しました", "error", err)
		return err
	}
	return nil
}

// Run は設定に従って各コンポーネントを組み立て、ctx がキャンセルされるまでブリッジを動かす
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger = logger.With("robot_id", cfg.RobotID)

	client := uplink.NewClient(cfg.BaseURL(), cfg.RobotID, uplink.Timeouts{
		Command:   cfg.Remote.CommandTimeout,
		Upload:    cfg.Remote.UploadTimeout,
		Heartbeat: cfg.Remote.HeartbeatTimeout,
	})
	logger.Info("リモートAPI", "base_url", cfg.BaseURL())

	var (
		frames     bridge.FrameSource
		dispatcher bridge.Dispatcher
		objects    bridge.NameLister
		deps       server.Dependencies
	)

	switch cfg.Mode {
	case config.ModeSim:
		store := world.NewStore()

		parser := telemetry.NewParser(store,
			telemetry.WithRequireOrientation(cfg.Telemetry.RequireOrientation),
			telemetry.WithLogger(logger.With("component", "parser")),
		)
		source := telemetry.NewSource(cfg.TelemetryCommand(), parser, logger.With("component", "telemetry"))
		if err := source.Start(ctx); err != nil {
			return fmt.Errorf("テレメトリの起動に失敗: %w", err)
		}

		spawner := relay.NewExecSpawner(cfg.Control.Command, logger.With("component", "publisher"))
		r := relay.New(client, spawner, relay.TopicResolver{
			Finder:         store,
			Marker:         cfg.Control.VehicleMarker,
			DefaultTarget:  cfg.Control.DefaultTarget,
			TargetOverride: cfg.Control.TargetOverride,
			TopicOverride:  cfg.Control.TopicOverride,
			TopicTemplate:  cfg.Control.TopicTemplate,
		}, relay.Config{
			FetchTimeout:  cfg.Remote.CommandTimeout,
			FailSafeAfter: cfg.Control.FailSafeAfter,
		}, logger.With("component", "relay"))
		defer func() {
			if err := r.Close(); err != nil {
				logger.Debug("パブリッシャーの停止", "error", err)
			}
		}()

		opts := render.DefaultOptions()
		opts.Width = cfg.Render.Width
		opts.Height = cfg.Render.Height
		opts.Scale = cfg.Render.Scale
		opts.VehicleMarker = cfg.Control.VehicleMarker

		frames = bridge.NewRenderedFrames(store, render.New(opts), cfg.Render.JPEGQuality)
		dispatcher = r
		objects = store
		deps.World = store
		deps.Relay = r

	case config.ModeCamera:
		if err := camera.CheckDevice(cfg.Camera.Device); err != nil {
			return err
		}
		logger.Info("カメラを使用します",
			"device", cfg.Camera.Device,
			"name", camera.DeviceName(ctx, cfg.Camera.Device))

		capturer := camera.NewV4L2Capturer(cfg.Camera.Device,
			cfg.Camera.Width, cfg.Camera.Height, cfg.Camera.FPS, cfg.Camera.Quality,
			logger.With("component", "camera"))
		source := camera.NewSource(capturer, logger.With("component", "camera"))
		if err := source.Start(ctx); err != nil {
			return fmt.Errorf("カメラの起動に失敗: %w", err)
		}
		frames = source

	default:
		return fmt.Errorf("不明なモード: %s", cfg.Mode)
	}

	b := bridge.New(frames, dispatcher, client, objects, bridge.Config{
		Mode:              cfg.Mode,
		Interval:          cfg.LoopInterval(),
		HeartbeatInterval: cfg.Remote.HeartbeatInterval,
	}, logger.With("component", "bridge"))
	deps.Bridge = b

	if cfg.Server.Enabled {
		srv := server.New(cfg, deps, logger.With("component", "server"))
		go func() {
			if err := srv.Start(ctx); err != nil {
				logger.Error("監視サーバーが停止しました", "error", err)
			}
		}()
	}

	return b.Run(ctx)
}
