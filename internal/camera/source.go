package camera

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrNoFrame はまだフレームを受信していない場合のエラー
var ErrNoFrame = errors.New("フレームがまだ取得されていません")

// Streamer はフレームストリームの供給元（V4L2Capturer またはテスト用の実装）
type Streamer interface {
	StartStream(ctx context.Context, frameChan chan<- []byte, errorChan chan<- error) error
}

// Source はカメラストリームの最新フレームを保持する
type Source struct {
	streamer Streamer
	logger   *slog.Logger

	// 最新フレーム保持用
	latestFrame []byte
	latestAt    time.Time
	frames      int
	mu          sync.RWMutex

	done chan struct{}
}

// NewSource は新しい Source を作成する
func NewSource(streamer Streamer, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		streamer: streamer,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start はストリームを開始し、フレーム転送ゴルーチンを起動する
func (s *Source) Start(ctx context.Context) error {
	frameChan := make(chan []byte, 4)
	errorChan := make(chan error, 1)

	if err := s.streamer.StartStream(ctx, frameChan, errorChan); err != nil {
		return err
	}

	go s.forwardFrames(frameChan, errorChan)
	return nil
}

// forwardFrames はキャプチャからフレームを受け取り最新フレームを更新する
func (s *Source) forwardFrames(frameChan <-chan []byte, errorChan <-chan error) {
	defer close(s.done)

	for {
		select {
		case frame, ok := <-frameChan:
			if !ok {
				// チャンネルがクローズされた
				select {
				case err := <-errorChan:
					s.logger.Error("カメラストリームエラー", "error", err)
				default:
				}
				return
			}

			s.mu.Lock()
			s.latestFrame = frame
			s.latestAt = time.Now()
			s.frames++
			s.mu.Unlock()

		case err := <-errorChan:
			s.logger.Error("カメラストリームエラー", "error", err)
		}
	}
}

// Frame は最新フレームのコピーを返す
func (s *Source) Frame(_ context.Context) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.latestFrame == nil {
		return nil, ErrNoFrame
	}

	frame := make([]byte, len(s.latestFrame))
	copy(frame, s.latestFrame)
	return frame, nil
}

// Frames は受信したフレーム数を返す
func (s *Source) Frames() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frames
}

// Done はストリームが終了したときに閉じられるチャンネルを返す
func (s *Source) Done() <-chan struct{} {
	return s.done
}
