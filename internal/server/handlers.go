package server

import (
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"simbridge/internal/bridge"
	"simbridge/internal/relay"
	"simbridge/internal/world"
)

// HealthResponse はヘルスチェックの応答
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusResponse はシステム状態の応答
type StatusResponse struct {
	Status    string        `json:"status"`
	Bridge    bridge.Status `json:"bridge"`
	Relay     *relay.Status `json:"relay,omitempty"`
	Objects   int           `json:"objects"`
	Timestamp time.Time     `json:"timestamp"`
}

// ObjectInfo は1オブジェクト分の状態
type ObjectInfo struct {
	Name        string            `json:"name"`
	Position    world.Vector3     `json:"position"`
	Orientation *world.Quaternion `json:"orientation,omitempty"`
	Yaw         *float64          `json:"yaw,omitempty"`
}

// WorldMessage は /ws/world で配信するメッセージ
type WorldMessage struct {
	Type      string       `json:"type"`
	Objects   []ObjectInfo `json:"objects"`
	Timestamp time.Time    `json:"timestamp"`
}

// ErrorResponse はエラー応答
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(_ *http.Request) bool { return true },
}

// handleHealth はヘルスチェックエンドポイント
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
	})
}

// handleStatus はステータス確認エンドポイント
func (s *Server) handleStatus(c *gin.Context) {
	response := StatusResponse{
		Status:    "running",
		Timestamp: time.Now(),
	}
	if s.deps.Bridge != nil {
		response.Bridge = s.deps.Bridge.Status()
		if !response.Bridge.Running {
			response.Status = "stopped"
		}
	}
	if s.deps.Relay != nil {
		status := s.deps.Relay.Status()
		response.Relay = &status
	}
	if s.deps.World != nil {
		response.Objects = len(s.deps.World.Snapshot())
	}

	c.JSON(http.StatusOK, response)
}

// handleObjects は世界状態のオブジェクト一覧を返す
func (s *Server) handleObjects(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"objects":   s.objects(),
		"timestamp": time.Now(),
	})
}

// handleFrame は最新フレームをJPEGで返す
func (s *Server) handleFrame(c *gin.Context) {
	frame, ok := s.latestFrame()
	if !ok {
		errorJSON(c, http.StatusNotFound, "frame_not_ready", "フレームがまだありません")
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, "image/jpeg", frame)
}

// handleStream は最新フレームをMJPEGストリームで配信する
func (s *Server) handleStream(c *gin.Context) {
	if s.deps.Bridge == nil {
		errorJSON(c, http.StatusServiceUnavailable, "bridge_not_ready", "ブリッジが起動していません")
		return
	}

	// レスポンスヘッダーを設定
	c.Header("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Access-Control-Allow-Origin", "*")

	// レスポンスライターを取得
	writer := c.Writer
	flusher, ok := writer.(http.Flusher)
	if !ok {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	ticker := time.NewTicker(s.streamInterval())
	defer ticker.Stop()

	// クライアント切断を検知するためのコンテキスト
	clientGone := c.Request.Context().Done()

	var lastSent time.Time
	for {
		select {
		case <-clientGone:
			return
		case <-s.done:
			return
		case <-ticker.C:
			frame, at, ok := s.deps.Bridge.LatestFrame()
			if !ok || !at.After(lastSent) {
				continue
			}
			lastSent = at

			// MJPEGフレームを書き込み
			if _, err := writer.Write([]byte("--frame\r\nContent-Type: image/jpeg\r\n\r\n")); err != nil {
				return
			}
			if _, err := writer.Write(frame); err != nil {
				return
			}
			if _, err := writer.Write([]byte("\r\n")); err != nil {
				return
			}

			// バッファをフラッシュ
			flusher.Flush()
		}
	}
}

// handleWorldWebSocket は世界状態を一定間隔でWebSocket配信する
func (s *Server) handleWorldWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("WebSocketのアップグレードに失敗しました", "error", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	// クライアントからの受信は切断検知のみに使う
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.streamInterval())
	defer ticker.Stop()

	for {
		msg := WorldMessage{
			Type:      "world",
			Objects:   s.objects(),
			Timestamp: time.Now(),
		}
		if err := conn.WriteJSON(msg); err != nil {
			return
		}

		select {
		case <-closed:
			return
		case <-s.done:
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"))
			return
		case <-ticker.C:
		}
	}
}

// handleRoot はルートパスのハンドラ
func (s *Server) handleRoot(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(`<!DOCTYPE html>
<html lang="ja">
<head>
    <meta charset="UTF-8">
    <title>simbridge - 監視</title>
</head>
<body>
    <h1>simbridge</h1>
    <p><img src="/api/stream.mjpg" alt="stream"></p>
    <p>ステータス: <a href="/api/status">/api/status</a></p>
    <p>オブジェクト: <a href="/api/objects">/api/objects</a></p>
    <p>ヘルスチェック: <a href="/health">/health</a></p>
</body>
</html>`))
}

// ヘルパー関数

// objects は名前順のオブジェクト一覧を返す
func (s *Server) objects() []ObjectInfo {
	if s.deps.World == nil {
		return []ObjectInfo{}
	}

	snapshot := s.deps.World.Snapshot()
	objects := make([]ObjectInfo, 0, len(snapshot))
	for name, pose := range snapshot {
		info := ObjectInfo{
			Name:        name,
			Position:    pose.Position,
			Orientation: pose.Orientation,
		}
		if pose.Orientation != nil {
			yaw := pose.Orientation.Yaw()
			info.Yaw = &yaw
		}
		objects = append(objects, info)
	}

	sort.Slice(objects, func(i, j int) bool {
		return objects[i].Name < objects[j].Name
	})
	return objects
}

func (s *Server) streamInterval() time.Duration {
	if s.config.Server.StreamInterval <= 0 {
		return 500 * time.Millisecond
	}
	return s.config.Server.StreamInterval
}

func (s *Server) latestFrame() ([]byte, bool) {
	if s.deps.Bridge == nil {
		return nil, false
	}
	frame, _, ok := s.deps.Bridge.LatestFrame()
	return frame, ok
}

func errorJSON(c *gin.Context, status int, code, message string) {
	c.JSON(status, ErrorResponse{
		Error:     code,
		Message:   message,
		Timestamp: time.Now(),
	})
}
