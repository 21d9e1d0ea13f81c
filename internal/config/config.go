package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix は環境変数のプレフィックス（例: SIMBRIDGE_REMOTE_HOST）
const EnvPrefix = "SIMBRIDGE"

// 動作モード
const (
	ModeSim    = "sim"    // シミュレーターのテレメトリを描画して送信
	ModeCamera = "camera" // 実機のカメラ映像を送信
)

// LocalBaseURL はローカル開発用のAPIサーバー
const LocalBaseURL = "http://127.0.0.1:8000"

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Mode      string          `mapstructure:"mode" yaml:"mode"`
	RobotID   int             `mapstructure:"robot_id" yaml:"robot_id"`
	Remote    RemoteConfig    `mapstructure:"remote" yaml:"remote"`
	Loop      LoopConfig      `mapstructure:"loop" yaml:"loop"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
	Control   ControlConfig   `mapstructure:"control" yaml:"control"`
	Render    RenderConfig    `mapstructure:"render" yaml:"render"`
	Camera    CameraConfig    `mapstructure:"camera" yaml:"camera"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

// RemoteConfig はリモートAPIの設定
type RemoteConfig struct {
	Host    string `mapstructure:"host" yaml:"host"`
	Port    int    `mapstructure:"port" yaml:"port"`
	Local   bool   `mapstructure:"local" yaml:"local"`       // true なら 127.0.0.1:8000 を使う
	BaseURL string `mapstructure:"base_url" yaml:"base_url"` // 指定時は host/port より優先

	// タイムアウト設定（0 はタイムアウトなし）
	CommandTimeout   time.Duration `mapstructure:"command_timeout" yaml:"command_timeout"`
	UploadTimeout    time.Duration `mapstructure:"upload_timeout" yaml:"upload_timeout"`
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat_timeout" yaml:"heartbeat_timeout"`

	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval"`
}

// LoopConfig はアップリンクループの設定
type LoopConfig struct {
	RateHz float64 `mapstructure:"rate_hz" yaml:"rate_hz"`
}

// TelemetryConfig はシミュレーターからの姿勢ストリームの設定
type TelemetryConfig struct {
	Topic              string   `mapstructure:"topic" yaml:"topic"`
	Command            []string `mapstructure:"command" yaml:"command"` // {topic} を置換
	RequireOrientation bool     `mapstructure:"require_orientation" yaml:"require_orientation"`
}

// ControlConfig は速度指令の送信先の設定
type ControlConfig struct {
	Command        []string `mapstructure:"command" yaml:"command"` // {topic} を置換
	TopicTemplate  string   `mapstructure:"topic_template" yaml:"topic_template"`
	VehicleMarker  string   `mapstructure:"vehicle_marker" yaml:"vehicle_marker"`
	DefaultTarget  string   `mapstructure:"default_target" yaml:"default_target"`
	TargetOverride string   `mapstructure:"target_override" yaml:"target_override"`
	TopicOverride  string   `mapstructure:"topic_override" yaml:"topic_override"`
	FailSafeAfter  int      `mapstructure:"fail_safe_after" yaml:"fail_safe_after"`
}

// RenderConfig は描画の設定
type RenderConfig struct {
	Width       int     `mapstructure:"width" yaml:"width"`
	Height      int     `mapstructure:"height" yaml:"height"`
	Scale       float64 `mapstructure:"scale" yaml:"scale"` // 1m あたりのピクセル数
	JPEGQuality int     `mapstructure:"jpeg_quality" yaml:"jpeg_quality"`
}

// CameraConfig はカメラ関連の設定
type CameraConfig struct {
	Device  string `mapstructure:"device" yaml:"device"` // デバイスパス (例: /dev/video0)
	Width   int    `mapstructure:"width" yaml:"width"`
	Height  int    `mapstructure:"height" yaml:"height"`
	FPS     int    `mapstructure:"fps" yaml:"fps"`
	Quality int    `mapstructure:"quality" yaml:"quality"` // ffmpeg -q:v
}

// ServerConfig は監視用HTTPサーバーの設定
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Host    string `mapstructure:"host" yaml:"host"` // リッスンするホスト
	Port    int    `mapstructure:"port" yaml:"port"` // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout    time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	StreamInterval time.Duration `mapstructure:"stream_interval" yaml:"stream_interval"` // WebSocketの送信間隔
}

// LoggingConfig はログの設定
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"` // text または json
	File       string `mapstructure:"file" yaml:"file"`     // 空なら標準エラー出力
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
}

// Default はデフォルト設定を返す
func Default() *Config {
	return &Config{
		Mode:    ModeSim,
		RobotID: 3,
		Remote: RemoteConfig{
			Host:              "127.0.0.1",
			Port:              8000,
			CommandTimeout:    time.Second,
			UploadTimeout:     5 * time.Second,
			HeartbeatTimeout:  3 * time.Second,
			HeartbeatInterval: 10 * time.Second,
		},
		Loop: LoopConfig{RateHz: 10},
		Telemetry: TelemetryConfig{
			Topic:              "/world/default/pose/info",
			Command:            []string{"gz", "topic", "-e", "-t", "{topic}"},
			RequireOrientation: true,
		},
		Control: ControlConfig{
			Command: []string{
				"sh", "-c",
				`while read -r line; do gz topic -t "$0" -m gz.msgs.Twist -p "$line"; done`,
				"{topic}",
			},
			TopicTemplate: "/model/{name}/cmd_vel",
			VehicleMarker: "vehicle",
			DefaultTarget: "vehicle_blue",
			FailSafeAfter: 10,
		},
		Render: RenderConfig{
			Width:       640,
			Height:      480,
			Scale:       20,
			JPEGQuality: 50,
		},
		Camera: CameraConfig{
			Device:  "/dev/video0",
			Width:   320,
			Height:  240,
			FPS:     15,
			Quality: 5,
		},
		Server: ServerConfig{
			Enabled:        true,
			Host:           "127.0.0.1",
			Port:           8080,
			ReadTimeout:    10 * time.Second,
			StreamInterval: 500 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// SetDefaults はデフォルト値を v に登録する
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("mode", d.Mode)
	v.SetDefault("robot_id", d.RobotID)

	v.SetDefault("remote.host", d.Remote.Host)
	v.SetDefault("remote.port", d.Remote.Port)
	v.SetDefault("remote.local", d.Remote.Local)
	v.SetDefault("remote.base_url", d.Remote.BaseURL)
	v.SetDefault("remote.command_timeout", d.Remote.CommandTimeout)
	v.SetDefault("remote.upload_timeout", d.Remote.UploadTimeout)
	v.SetDefault("remote.heartbeat_timeout", d.Remote.HeartbeatTimeout)
	v.SetDefault("remote.heartbeat_interval", d.Remote.HeartbeatInterval)

	v.SetDefault("loop.rate_hz", d.Loop.RateHz)

	v.SetDefault("telemetry.topic", d.Telemetry.Topic)
	v.SetDefault("telemetry.command", d.Telemetry.Command)
	v.SetDefault("telemetry.require_orientation", d.Telemetry.RequireOrientation)

	v.SetDefault("control.command", d.Control.Command)
	v.SetDefault("control.topic_template", d.Control.TopicTemplate)
	v.SetDefault("control.vehicle_marker", d.Control.VehicleMarker)
	v.SetDefault("control.default_target", d.Control.DefaultTarget)
	v.SetDefault("control.target_override", d.Control.TargetOverride)
	v.SetDefault("control.topic_override", d.Control.TopicOverride)
	v.SetDefault("control.fail_safe_after", d.Control.FailSafeAfter)

	v.SetDefault("render.width", d.Render.Width)
	v.SetDefault("render.height", d.Render.Height)
	v.SetDefault("render.scale", d.Render.Scale)
	v.SetDefault("render.jpeg_quality", d.Render.JPEGQuality)

	v.SetDefault("camera.device", d.Camera.Device)
	v.SetDefault("camera.width", d.Camera.Width)
	v.SetDefault("camera.height", d.Camera.Height)
	v.SetDefault("camera.fps", d.Camera.FPS)
	v.SetDefault("camera.quality", d.Camera.Quality)

	v.SetDefault("server.enabled", d.Server.Enabled)
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.stream_interval", d.Server.StreamInterval)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
}

// NewViper はデフォルト値と環境変数を設定した viper を返す
// configFile が空でなければYAMLファイルも読み込む
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
	}
	return v, nil
}

// Load は v から設定を読み込み検証する
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("設定の展開に失敗: %w", err)
	}

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return &cfg, nil
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	var errs []error

	if c.Mode != ModeSim && c.Mode != ModeCamera {
		errs = append(errs, fmt.Errorf("無効なモード: %q（sim または camera）", c.Mode))
	}
	if c.RobotID < 0 {
		errs = append(errs, fmt.Errorf("無効なロボットID: %d", c.RobotID))
	}
	if c.Remote.BaseURL == "" && !c.Remote.Local {
		if c.Remote.Host == "" {
			errs = append(errs, errors.New("リモートホストが設定されていません"))
		}
		if !validPort(c.Remote.Port) {
			errs = append(errs, fmt.Errorf("無効なリモートポート番号: %d", c.Remote.Port))
		}
	}
	if c.Remote.HeartbeatInterval <= 0 {
		errs = append(errs, fmt.Errorf("無効なハートビート間隔: %s", c.Remote.HeartbeatInterval))
	}
	if c.Loop.RateHz <= 0 {
		errs = append(errs, fmt.Errorf("無効なループ周波数: %g", c.Loop.RateHz))
	}

	switch c.Mode {
	case ModeSim:
		if len(c.Telemetry.Command) == 0 {
			errs = append(errs, errors.New("テレメトリのコマンドが設定されていません"))
		}
		if len(c.Control.Command) == 0 {
			errs = append(errs, errors.New("制御コマンドが設定されていません"))
		}
		if c.Control.TopicOverride == "" && !strings.Contains(c.Control.TopicTemplate, "{name}") {
			errs = append(errs, fmt.Errorf("トピックテンプレートに {name} がありません: %q", c.Control.TopicTemplate))
		}
		if c.Control.FailSafeAfter < 0 {
			errs = append(errs, fmt.Errorf("無効なフェイルセーフ回数: %d", c.Control.FailSafeAfter))
		}
		if c.Render.Width <= 0 || c.Render.Height <= 0 {
			errs = append(errs, fmt.Errorf("無効な描画サイズ: %dx%d", c.Render.Width, c.Render.Height))
		}
		if c.Render.Scale <= 0 {
			errs = append(errs, fmt.Errorf("無効な描画スケール: %g", c.Render.Scale))
		}
		if c.Render.JPEGQuality < 1 || c.Render.JPEGQuality > 100 {
			errs = append(errs, fmt.Errorf("無効なJPEG品質: %d", c.Render.JPEGQuality))
		}
	case ModeCamera:
		if c.Camera.Device == "" {
			errs = append(errs, errors.New("カメラデバイスパスが設定されていません"))
		}
		if c.Camera.Width <= 0 || c.Camera.Height <= 0 || c.Camera.FPS <= 0 {
			errs = append(errs, fmt.Errorf("無効なカメラ設定: %dx%d@%d", c.Camera.Width, c.Camera.Height, c.Camera.FPS))
		}
		if c.Camera.Quality < 2 || c.Camera.Quality > 31 {
			errs = append(errs, fmt.Errorf("無効なカメラ画質: %d（2〜31）", c.Camera.Quality))
		}
	}

	// サーバー設定の検証
	if c.Server.Enabled && !validPort(c.Server.Port) {
		errs = append(errs, fmt.Errorf("無効なポート番号: %d", c.Server.Port))
	}

	return errors.Join(errs...)
}

// BaseURL はリモートAPIのベースURLを返す
func (c *Config) BaseURL() string {
	if c.Remote.BaseURL != "" {
		return strings.TrimRight(c.Remote.BaseURL, "/")
	}
	if c.Remote.Local {
		return LocalBaseURL
	}
	return fmt.Sprintf("http://%s:%d", c.Remote.Host, c.Remote.Port)
}

// LoopInterval はアップリンクループの周期を返す
func (c *Config) LoopInterval() time.Duration {
	return time.Duration(float64(time.Second) / c.Loop.RateHz)
}

// TelemetryCommand は {topic} を置換したテレメトリコマンドを返す
func (c *Config) TelemetryCommand() []string {
	args := make([]string, len(c.Telemetry.Command))
	for i, arg := range c.Telemetry.Command {
		args[i] = strings.ReplaceAll(arg, "{topic}", c.Telemetry.Topic)
	}
	return args
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func validPort(port int) bool {
	return port >= 1 && port <= 65535
}
