package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"simbridge/internal/bridge"
	"simbridge/internal/config"
	"simbridge/internal/relay"
	"simbridge/internal/world"
)

// WorldReader は世界状態の読み取り
type WorldReader interface {
	Snapshot() map[string]world.Pose
}

// BridgeReader はアップリンクループの状態の読み取り
type BridgeReader interface {
	Status() bridge.Status
	LatestFrame() ([]byte, time.Time, bool)
}

// RelayReader はコマンド中継の状態の読み取り
type RelayReader interface {
	Status() relay.Status
}

// Dependencies はサーバーが参照する各コンポーネント
// World と Relay は cameraモードでは nil
type Dependencies struct {
	World  WorldReader
	Bridge BridgeReader
	Relay  RelayReader
}

// Server はHTTPサーバーを管理する構造体
type Server struct {
	config     *config.Config
	deps       Dependencies
	logger     *slog.Logger
	engine     *gin.Engine
	httpServer *http.Server

	// done はシャットダウン時に閉じ、ストリーミング中のハンドラを終了させる
	done     chan struct{}
	doneOnce sync.Once
}

// New は新しいServerインスタンスを作成する
func New(cfg *config.Config, deps Dependencies, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		config: cfg,
		deps:   deps,
		logger: logger,
		engine: engine,
		done:   make(chan struct{}),
	}
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:        cfg.ServerAddress(),
		Handler:     engine,
		ReadTimeout: cfg.Server.ReadTimeout,
		// WriteTimeout はストリーミング用に無効
	}
	return s
}

// setupRoutes はHTTPルートを設定する
func (s *Server) setupRoutes() {
	// ヘルスチェックエンドポイント
	s.engine.GET("/health", s.handleHealth)

	// APIエンドポイント
	api := s.engine.Group("/api")
	api.GET("/status", s.handleStatus)
	api.GET("/objects", s.handleObjects)
	api.GET("/frame.jpg", s.handleFrame)
	api.GET("/stream.mjpg", s.handleStream)

	s.engine.GET("/ws/world", s.handleWorldWebSocket)

	// ルートハンドラ（簡単な確認用）
	s.engine.GET("/", s.handleRoot)
}

// Handler はルーティング済みのハンドラを返す
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start はサーバーを起動し、コンテキストがキャンセルされるまで待つ
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("サーバーの起動に失敗: %w", err)
	}
	return s.Serve(ctx, listener)
}

// Serve は listener で待ち受け、コンテキストがキャンセルされるまで待つ
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	// シャットダウン用のチャンネル
	serveErr := make(chan error, 1)

	// サーバーを別ゴルーチンで起動
	go func() {
		s.logger.Info("監視サーバーを起動しています", "addr", listener.Addr().String())
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("サーバーの起動に失敗: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return err
	}

	// グレースフルシャットダウン
	return s.Shutdown()
}

// Shutdown はサーバーをグレースフルにシャットダウンする
func (s *Server) Shutdown() error {
	s.logger.Info("監視サーバーをシャットダウンしています")
	s.doneOnce.Do(func() { close(s.done) })

	// 5秒のタイムアウトを設定
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("サーバーのシャットダウンに失敗: %w", err)
	}

	s.logger.Info("監視サーバーが正常にシャットダウンされました")
	return nil
}
