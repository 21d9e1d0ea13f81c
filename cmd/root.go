// Package cmd はsimbridgeのコマンドラインを実装する
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"simbridge/internal/config"
	"simbridge/internal/logging"
)

// flagKeys はコマンドラインフラグと設定キーの対応
var flagKeys = map[string]string{
	"host":      "remote.host",
	"port":      "remote.port",
	"local":     "remote.local",
	"mode":      "mode",
	"robot-id":  "robot_id",
	"topic":     "telemetry.topic",
	"target":    "control.target_override",
	"cmd-topic": "control.topic_override",
	"log-level": "logging.level",
}

// app はコマンド間で共有する実行時の状態
type app struct {
	configFile string
	cfg        *config.Config
	logger     *slog.Logger
	logCloser  io.Closer
}

// Execute はルートコマンドを実行する
func Execute() error {
	root := NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "エラー: %v\n", err)
		return err
	}
	return nil
}

// NewRootCommand はルートコマンドを作成する
// サブコマンドを省略した場合は run と同じ動作をする
func NewRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "simbridge",
		Short: "シミュレーター/実機とリモートサービスをつなぐブリッジ",
		Long: `simbridge はシミュレーターの姿勢ストリームを描画してリモートサービスへ送り、
リモートから取得した速度コマンドを制御プロセスへ中継します。
camera モードでは実機のカメラ映像を送信します。`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.load,
		RunE:              a.run,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configFile, "config", "c", "", "設定ファイル (YAML)")
	flags.String("host", "", "リモートAPIのホスト")
	flags.Int("port", 0, "リモートAPIのポート")
	flags.Bool("local", false, "ローカルのAPIサーバー (127.0.0.1:8000) を使う")
	flags.String("mode", "", "動作モード (sim または camera)")
	flags.Int("robot-id", 0, "ロボットID")
	flags.String("topic", "", "姿勢ストリームのトピック")
	flags.String("target", "", "制御対象のモデル名")
	flags.String("cmd-topic", "", "速度コマンドの送信先トピック")
	flags.String("log-level", "", "ログレベル (debug, info, warn, error)")

	root.AddCommand(newRunCommand(a))
	root.AddCommand(newConfigCommand(a))

	return root
}

// load は設定を読み込みロガーを初期化する
func (a *app) load(cmd *cobra.Command, _ []string) error {
	v, err := config.NewViper(a.configFile)
	if err != nil {
		return err
	}
	if err := bindFlags(v, cmd.Flags()); err != nil {
		return err
	}

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	logger, closer, err := logging.New(logging.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	if err != nil {
		return fmt.Errorf("ロガーの初期化に失敗: %w", err)
	}
	slog.SetDefault(logger)

	a.cfg = cfg
	a.logger = logger
	a.logCloser = closer
	return nil
}

func (a *app) close() {
	if a.logCloser != nil {
		_ = a.logCloser.Close()
	}
}

// bindFlags は指定されたフラグだけを設定キーに結び付ける
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("フラグ %s の設定に失敗: %w", name, err)
		}
	}
	return nil
}
