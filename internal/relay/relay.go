package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrNoPublisher はパブリッシャーを起動できなかった場合のエラー
var ErrNoPublisher = errors.New("パブリッシャーがありません")

// PublisherState はパブリッシャーの状態
type PublisherState string

const (
	StateAbsent  PublisherState = "absent"  // 未起動
	StateRunning PublisherState = "running" // 動作中
	StateBroken  PublisherState = "broken"  // パイプ破損（次の周期で再起動）
)

// Config は Relay の設定
type Config struct {
	FetchTimeout  time.Duration // コマンド取得のタイムアウト
	FailSafeAfter int           // 連続取得失敗がこの回数に達したら停止コマンドを送る（0で無効）
}

// Relay はコマンドの取得とパブリッシャーへの送信を行う
// PollAndDispatch は単一のゴルーチン（アップリンクループ）から呼ぶ
type Relay struct {
	fetcher  Fetcher
	spawner  Spawner
	resolver TopicResolver
	config   Config
	logger   *slog.Logger

	// mu は監視用に公開する状態を保護する
	mu         sync.Mutex
	handle     Process
	state      PublisherState
	last       CommandState
	failures   int
	dispatches int
	spawns     int
}

// New は新しい Relay を作成する
func New(fetcher Fetcher, spawner Spawner, resolver TopicResolver, config Config, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = time.Second
	}
	return &Relay{
		fetcher:  fetcher,
		spawner:  spawner,
		resolver: resolver,
		config:   config,
		logger:   logger,
		state:    StateAbsent,
	}
}

// PollAndDispatch は1周期分のコマンド取得と送信を行う
// ctx はパブリッシャープロセスの寿命にも使われるため、周期ごとのコンテキストではなくループ全体のものを渡す
func (r *Relay) PollAndDispatch(ctx context.Context) error {
	fetchCtx, cancel := context.WithTimeout(ctx, r.config.FetchTimeout)
	cmd, err := r.fetcher.FetchCommand(fetchCtx)
	cancel()

	if err != nil {
		fetchErr := fmt.Errorf("コマンドの取得に失敗: %w", err)

		r.mu.Lock()
		r.failures++
		failures := r.failures
		r.mu.Unlock()

		// 古いコマンドは再送しない。一定回数失敗が続いたら明示的に停止させる
		if r.config.FailSafeAfter > 0 && failures >= r.config.FailSafeAfter {
			if failures == r.config.FailSafeAfter {
				r.logger.Warn("コマンド取得の失敗が続いたため停止コマンドを送信します", "failures", failures)
			}
			return errors.Join(fetchErr, r.dispatch(ctx, Command{}))
		}
		return fetchErr
	}

	r.mu.Lock()
	if r.failures > 0 {
		r.logger.Info("コマンド取得が復旧しました", "failures", r.failures)
	}
	r.failures = 0
	r.mu.Unlock()

	return r.dispatch(ctx, cmd)
}

// dispatch はパブリッシャーを用意してコマンドを1行書き込む
// 書き込み中は mu を保持しない
func (r *Relay) dispatch(ctx context.Context, cmd Command) error {
	topic := r.resolver.Resolve()

	handle, err := r.prepare(ctx, topic)
	if err != nil {
		return err
	}

	_, writeErr := handle.Write([]byte(cmd.Encode()))

	r.mu.Lock()
	defer r.mu.Unlock()

	if writeErr != nil {
		r.logger.Warn("パブリッシャーへの書き込みに失敗しました", "publisher", handle.ID(), "error", writeErr)
		// 書き込み中に Close 等で置き換わっていれば何もしない
		if r.handle == handle {
			r.invalidateLocked()
		}
		r.last.Dispatched = false
		return fmt.Errorf("コマンドの書き込みに失敗: %w", writeErr)
	}

	r.dispatches++
	if !r.last.Dispatched || r.last.Command != cmd || r.last.Topic != topic {
		r.logger.Info("コマンドを送信", "linear", cmd.Linear, "angular", cmd.Angular, "topic", topic)
	}
	r.last.Command = cmd
	r.last.Topic = topic
	r.last.Dispatched = true

	return nil
}

// prepare は topic 向けの動作中のパブリッシャーを返す（必要なら起動・置き換えを行う）
func (r *Relay) prepare(ctx context.Context, topic string) (Process, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.last.AttemptAt = time.Now()

	// 死んだプロセスには書き込まない
	if r.handle != nil && !r.handle.Alive() {
		r.logger.Warn("パブリッシャーが終了しています", "publisher", r.handle.ID())
		r.invalidateLocked()
	}

	// 送信先が変わった場合は置き換える
	if r.handle != nil && r.handle.Topic() != topic {
		r.logger.Info("送信先トピックが変わったためパブリッシャーを置き換えます",
			"from", r.handle.Topic(), "to", topic)
		_ = r.handle.Close()
		r.handle = nil
		r.state = StateAbsent
	}

	if r.handle == nil {
		handle, err := r.spawner.Spawn(ctx, topic)
		if err != nil {
			r.state = StateAbsent
			r.last.Dispatched = false
			return nil, fmt.Errorf("%w: %v", ErrNoPublisher, err)
		}
		r.handle = handle
		r.state = StateRunning
		r.spawns++
	}

	return r.handle, nil
}

// invalidateLocked は現在のハンドルを破棄して BROKEN にする（ロック済み前提）
func (r *Relay) invalidateLocked() {
	if r.handle != nil {
		_ = r.handle.Close()
	}
	r.handle = nil
	r.state = StateBroken
}

// Close はパブリッシャーを停止する
func (r *Relay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.handle == nil {
		return nil
	}
	err := r.handle.Close()
	r.handle = nil
	r.state = StateAbsent
	return err
}

// Status は監視用の状態
type Status struct {
	State       PublisherState `json:"state"`
	PublisherID string         `json:"publisher_id,omitempty"`
	Last        CommandState   `json:"last"`
	Failures    int            `json:"consecutive_fetch_failures"`
	Dispatches  int            `json:"dispatches"`
	Spawns      int            `json:"spawns"`
}

// Status は現在の状態を返す
func (r *Relay) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := Status{
		State:      r.state,
		Last:       r.last,
		Failures:   r.failures,
		Dispatches: r.dispatches,
		Spawns:     r.spawns,
	}
	if r.handle != nil {
		status.PublisherID = r.handle.ID()
	}
	return status
}

// State はパブリッシャーの状態を返す
func (r *Relay) State() PublisherState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// LastCommand は最後に送信を試みたコマンドを返す
func (r *Relay) LastCommand() CommandState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}
