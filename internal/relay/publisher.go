package relay

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Process は制御チャンネルプロセスのハンドル
type Process interface {
	// ID はハンドルの識別子
	ID() string
	// Topic は起動時の送信先トピック
	Topic() string
	// Alive はプロセスがまだ動作しているかを返す
	Alive() bool
	// Write は1行を書き込む（ブロックしない）
	Write(p []byte) (int, error)
	// Close は入力パイプを閉じてプロセスを終了させる
	Close() error
}

// Spawner はパブリッシャープロセスを起動する
type Spawner interface {
	Spawn(ctx context.Context, topic string) (Process, error)
}

// ExecSpawner はコマンドテンプレートからプロセスを起動する
// テンプレート中の {topic} は送信先トピックに置換される
type ExecSpawner struct {
	Template []string
	Logger   *slog.Logger
}

// NewExecSpawner は新しいExecSpawnerを作成する
func NewExecSpawner(template []string, logger *slog.Logger) *ExecSpawner {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecSpawner{
		Template: template,
		Logger:   logger,
	}
}

// Spawn はプロセスを起動し、出力排出ゴルーチンを開始する
func (s *ExecSpawner) Spawn(ctx context.Context, topic string) (Process, error) {
	if len(s.Template) == 0 {
		return nil, errors.New("パブリッシャーのコマンドが空です")
	}

	args := make([]string, len(s.Template))
	for i, arg := range s.Template {
		args[i] = strings.ReplaceAll(arg, "{topic}", topic)
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdinパイプの作成に失敗: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdoutパイプの作成に失敗: %w", err)
	}
	// stdoutとstderrを1本のパイプにまとめる
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("パブリッシャーの起動に失敗: %w", err)
	}

	p := &execProcess{
		id:    uuid.NewString(),
		topic: topic,
		cmd:   cmd,
		stdin: stdin,
		queue: make(chan []byte, writeQueueSize),
		stop:  make(chan struct{}),
	}
	p.alive.Store(true)

	logger := s.Logger.With("publisher", p.id, "topic", topic)
	logger.Info("パブリッシャーを起動しました", "pid", cmd.Process.Pid)

	// 出力バッファが詰まってプロセスが止まらないよう常に読み捨てる
	go p.drain(stdout, logger)
	go p.writeLoop(logger)

	return p, nil
}

// writeQueueSize は書き込み待ちにできる行数
// これを超えて溜まった場合、プロセスが入力を読んでいないとみなす
const writeQueueSize = 8

// ErrPublisherStalled はパブリッシャーが入力を読まず書き込みが詰まった場合のエラー
var ErrPublisherStalled = errors.New("パブリッシャーが入力を読み取っていません")

// execProcess は exec.Cmd によるProcess実装
// 書き込みは専用ゴルーチンが行い、Write は待たずに返る
type execProcess struct {
	id    string
	topic string
	cmd   *exec.Cmd
	stdin io.WriteCloser
	alive atomic.Bool

	queue    chan []byte
	stop     chan struct{}
	stopOnce sync.Once
	writeErr atomic.Pointer[error]
}

func (p *execProcess) ID() string    { return p.id }
func (p *execProcess) Topic() string { return p.topic }
func (p *execProcess) Alive() bool   { return p.alive.Load() }

// Write は行を書き込みキューに積む
// キューが一杯ならプロセスが詰まっているとして ErrPublisherStalled を返す
func (p *execProcess) Write(b []byte) (int, error) {
	if errp := p.writeErr.Load(); errp != nil {
		return 0, *errp
	}
	if !p.alive.Load() {
		return 0, io.ErrClosedPipe
	}

	line := make([]byte, len(b))
	copy(line, b)

	select {
	case p.queue <- line:
		return len(b), nil
	case <-p.stop:
		return 0, io.ErrClosedPipe
	default:
		return 0, ErrPublisherStalled
	}
}

// writeLoop はキューの行を入力パイプへ書き込む
func (p *execProcess) writeLoop(logger *slog.Logger) {
	for {
		select {
		case <-p.stop:
			return
		case line := <-p.queue:
			if _, err := p.stdin.Write(line); err != nil {
				p.writeErr.Store(&err)
				p.alive.Store(false)
				logger.Warn("パブリッシャーへの書き込みに失敗しました", "error", err)
				return
			}
		}
	}
}

// Close は入力パイプを閉じてプロセスを終了させる
func (p *execProcess) Close() error {
	p.alive.Store(false)
	p.stopOnce.Do(func() { close(p.stop) })
	closeErr := p.stdin.Close()
	if p.cmd.Process != nil {
		// 既に終了している場合のエラーは無視
		_ = p.cmd.Process.Kill()
	}
	return closeErr
}

// drain はプロセスの出力を読み切ってログに出し、終了を回収する
func (p *execProcess) drain(r io.Reader, logger *slog.Logger) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		logger.Debug(scanner.Text())
	}

	err := p.cmd.Wait()
	p.alive.Store(false)
	logger.Info("パブリッシャーが終了しました", "error", err)
}
