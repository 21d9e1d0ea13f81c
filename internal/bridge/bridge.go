package bridge

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// offlineTimeout は終了時の is_online=false 送信に使うタイムアウト
const offlineTimeout = 5 * time.Second

// Uplink はリモートサービスへの送信
type Uplink interface {
	UploadFrame(ctx context.Context, frame []byte) error
	SendHeartbeat(ctx context.Context, online bool) error
}

// Dispatcher は1周期分のコマンド取得と送信を行う
type Dispatcher interface {
	PollAndDispatch(ctx context.Context) error
}

// NameLister はハートビート時に表示するオブジェクト名を返す
type NameLister interface {
	Names() []string
}

// Config は Bridge の設定
type Config struct {
	Mode              string
	Interval          time.Duration // ループ周期
	HeartbeatInterval time.Duration
}

// Bridge はフレーム取得・コマンド中継・アップロード・死活通知を周期的に行う
type Bridge struct {
	frames  FrameSource
	relay   Dispatcher // cameraモードでは nil
	uplink  Uplink
	objects NameLister // cameraモードでは nil
	config  Config
	logger  *slog.Logger

	sessionID string

	// 監視用の状態
	mu              sync.RWMutex
	latestFrame     []byte
	latestAt        time.Time
	startedAt       time.Time
	lastHeartbeatAt time.Time
	ticks           uint64
	uploads         uint64
	uploadFailures  uint64
	running         bool
}

// New は新しい Bridge を作成する
// relay と objects は nil でもよい
func New(frames FrameSource, relay Dispatcher, uplink Uplink, objects NameLister, config Config, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Interval <= 0 {
		config.Interval = 100 * time.Millisecond
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = 10 * time.Second
	}

	sessionID := uuid.New().String()
	return &Bridge{
		frames:    frames,
		relay:     relay,
		uplink:    uplink,
		objects:   objects,
		config:    config,
		logger:    logger.With("session_id", sessionID),
		sessionID: sessionID,
	}
}

// Run はコンテキストがキャンセルされるまでループを実行する
// 終了時には必ず is_online=false を送る
func (b *Bridge) Run(ctx context.Context) error {
	b.mu.Lock()
	b.running = true
	b.startedAt = time.Now()
	b.mu.Unlock()

	b.logger.Info("ブリッジを開始しました", "mode", b.config.Mode, "interval", b.config.Interval)

	defer b.shutdown()

	b.heartbeat(ctx)

	ticker := time.NewTicker(b.config.Interval)
	defer ticker.Stop()

	for {
		b.Step(ctx)

		select {
		case <-ctx.Done():
			b.logger.Info("ブリッジを停止します")
			return nil
		case <-ticker.C:
		}
	}
}

// shutdown は is_online=false を新しいコンテキストで送る
func (b *Bridge) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), offlineTimeout)
	defer cancel()

	if err := b.uplink.SendHeartbeat(ctx, false); err != nil {
		b.logger.Warn("オフライン通知に失敗しました", "error", err)
	} else {
		b.logger.Info("オフライン通知を送信しました")
	}

	b.mu.Lock()
	b.running = false
	b.mu.Unlock()
}

// Step は1周期分の処理を行う
func (b *Bridge) Step(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	frame, err := b.frames.Frame(ctx)
	if err != nil {
		b.logger.Debug("フレームを取得できません", "error", err)
	}

	if b.relay != nil {
		if err := b.relay.PollAndDispatch(ctx); err != nil {
			b.logger.Warn("コマンドの中継に失敗しました", "error", err)
		}
	}

	if frame != nil {
		b.mu.Lock()
		b.latestFrame = frame
		b.latestAt = time.Now()
		b.mu.Unlock()

		if err := b.uplink.UploadFrame(ctx, frame); err != nil {
			b.logger.Warn("フレームのアップロードに失敗しました", "error", err)
			b.mu.Lock()
			b.uploadFailures++
			b.mu.Unlock()
		} else {
			b.mu.Lock()
			b.uploads++
			b.mu.Unlock()
		}
	}

	b.mu.Lock()
	b.ticks++
	due := time.Since(b.lastHeartbeatAt) >= b.config.HeartbeatInterval
	b.mu.Unlock()

	if due {
		b.heartbeat(ctx)
	}
}

// heartbeat は is_online=true を送り、見えているオブジェクトをログに出す
func (b *Bridge) heartbeat(ctx context.Context) {
	// 失敗しても次の間隔まで再送しない
	b.mu.Lock()
	b.lastHeartbeatAt = time.Now()
	b.mu.Unlock()

	if err := b.uplink.SendHeartbeat(ctx, true); err != nil {
		b.logger.Warn("ハートビートの送信に失敗しました", "error", err)
		return
	}

	if b.objects != nil {
		b.logger.Info("ハートビートを送信しました", "objects", b.objects.Names())
	} else {
		b.logger.Info("ハートビートを送信しました")
	}
}

// SessionID はこの実行のセッションIDを返す
func (b *Bridge) SessionID() string {
	return b.sessionID
}

// LatestFrame は最後に用意したフレームのコピーを返す
func (b *Bridge) LatestFrame() ([]byte, time.Time, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.latestFrame == nil {
		return nil, time.Time{}, false
	}
	frame := make([]byte, len(b.latestFrame))
	copy(frame, b.latestFrame)
	return frame, b.latestAt, true
}

// Status は監視用の状態
type Status struct {
	SessionID       string    `json:"session_id"`
	Mode            string    `json:"mode"`
	Running         bool      `json:"running"`
	StartedAt       time.Time `json:"started_at"`
	LastHeartbeatAt time.Time `json:"last_heartbeat_at"`
	LastFrameAt     time.Time `json:"last_frame_at"`
	Ticks           uint64    `json:"ticks"`
	Uploads         uint64    `json:"uploads"`
	UploadFailures  uint64    `json:"upload_failures"`
}

// Status は現在の状態を返す
func (b *Bridge) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return Status{
		SessionID:       b.sessionID,
		Mode:            b.config.Mode,
		Running:         b.running,
		StartedAt:       b.startedAt,
		LastHeartbeatAt: b.lastHeartbeatAt,
		LastFrameAt:     b.latestAt,
		Ticks:           b.ticks,
		Uploads:         b.uploads,
		UploadFailures:  b.uploadFailures,
	}
}
