package telemetry

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
)

// ErrBinaryNotFound はトピック購読コマンドが見つからない場合のエラー
var ErrBinaryNotFound = errors.New("テレメトリコマンドが見つかりません")

// Source はエンジンのトピック購読プロセスを起動し、その出力を Parser に流す
type Source struct {
	command []string
	parser  *Parser
	logger  *slog.Logger

	done chan struct{}
	err  error
}

// NewSource は新しい Source を作成する
// command は展開済みのコマンドライン（例: gz topic -e -t /world/default/pose/info）
func NewSource(command []string, parser *Parser, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		command: command,
		parser:  parser,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// CheckBinary はコマンドの実行ファイルが存在するか確認する
func (s *Source) CheckBinary() error {
	if len(s.command) == 0 {
		return fmt.Errorf("%w: コマンドが空です", ErrBinaryNotFound)
	}
	if _, err := exec.LookPath(s.command[0]); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBinaryNotFound, s.command[0], err)
	}
	return nil
}

// Start はプロセスを起動し、解析ゴルーチンを開始する
// ストリーム終了後の再起動は行わない
func (s *Source) Start(ctx context.Context) error {
	if err := s.CheckBinary(); err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, s.command[0], s.command[1:]...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdoutパイプの作成に失敗: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderrパイプの作成に失敗: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("テレメトリプロセスの起動に失敗: %w", err)
	}

	s.logger.Info("テレメトリプロセスを起動しました", "command", s.command, "pid", cmd.Process.Pid)

	// stderrを別goroutineで読み取り
	go drainLines(stderr, s.logger.With("stream", "stderr"))

	go func() {
		defer close(s.done)

		s.err = s.parser.Run(ctx, stdout)
		waitErr := cmd.Wait()

		switch {
		case ctx.Err() != nil:
			s.logger.Info("テレメトリを停止しました")
		case s.err != nil:
			s.logger.Error("テレメトリ解析が異常終了しました", "error", s.err)
		case waitErr != nil:
			s.logger.Error("テレメトリプロセスが終了しました", "error", waitErr)
		default:
			s.logger.Warn("テレメトリストリームが終了しました")
		}
	}()

	return nil
}

// Done は解析ゴルーチンが終了したときに閉じられるチャンネルを返す
func (s *Source) Done() <-chan struct{} {
	return s.done
}

// Err は解析ゴルーチンの終了理由を返す（Done の後にのみ有効）
func (s *Source) Err() error {
	<-s.done
	return s.err
}

// drainLines はパイプを読み切りながら各行をデバッグログに出す
func drainLines(r io.Reader, logger *slog.Logger) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)
	for scanner.Scan() {
		logger.Debug(scanner.Text())
	}
}
