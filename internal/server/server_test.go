package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"simbridge/internal/bridge"
	"simbridge/internal/config"
	"simbridge/internal/logging"
	"simbridge/internal/relay"
	"simbridge/internal/world"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeBridge struct {
	status bridge.Status
	frame  []byte
	at     time.Time
}

func (f *fakeBridge) Status() bridge.Status { return f.status }

func (f *fakeBridge) LatestFrame() ([]byte, time.Time, bool) {
	if f.frame == nil {
		return nil, time.Time{}, false
	}
	return f.frame, f.at, true
}

type fakeRelay struct {
	status relay.Status
}

func (f *fakeRelay) Status() relay.Status { return f.status }

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.StreamInterval = 10 * time.Millisecond
	return cfg
}

func testStore() *world.Store {
	store := world.NewStore()
	store.Put(world.Pose{
		Name:        "vehicle_blue",
		Position:    world.Vector3{X: 1, Y: 2},
		Orientation: &world.Quaternion{W: 1},
	})
	store.Put(world.Pose{
		Name:     "box_1",
		Position: world.Vector3{X: 1.5, Y: -2},
	})
	return store
}

func newTestServer(frame []byte) *Server {
	deps := Dependencies{
		World: testStore(),
		Bridge: &fakeBridge{
			status: bridge.Status{SessionID: "s-1", Mode: "sim", Running: true, Ticks: 42},
			frame:  frame,
			at:     time.Now(),
		},
		Relay: &fakeRelay{status: relay.Status{State: relay.StateRunning, Dispatches: 41}},
	}
	return New(testConfig(), deps, logging.Discard())
}

// TestServerEndpoints はサーバーのエンドポイントをテストする
func TestServerEndpoints(t *testing.T) {
	srv := newTestServer([]byte{0xFF, 0xD8, 0xFF, 0xD9})

	testCases := []struct {
		name           string
		endpoint       string
		expectedStatus int
		contentType    string
	}{
		{"ルートエンドポイント", "/", http.StatusOK, "text/html"},
		{"ヘルスチェックエンドポイント", "/health", http.StatusOK, "application/json"},
		{"ステータスエンドポイント", "/api/status", http.StatusOK, "application/json"},
		{"オブジェクト一覧", "/api/objects", http.StatusOK, "application/json"},
		{"最新フレーム", "/api/frame.jpg", http.StatusOK, "image/jpeg"},
		{"存在しないパス", "/api/unknown", http.StatusNotFound, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.endpoint, nil)
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)

			if rec.Code != tc.expectedStatus {
				t.Errorf("予期しないステータスコード: got %d, want %d", rec.Code, tc.expectedStatus)
			}
			if tc.contentType != "" && !strings.HasPrefix(rec.Header().Get("Content-Type"), tc.contentType) {
				t.Errorf("予期しないContent-Type: %s", rec.Header().Get("Content-Type"))
			}
		})
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv := newTestServer(nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	var resp StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("JSONの解析に失敗しました: %v", err)
	}
	if resp.Status != "running" {
		t.Errorf("unexpected status: %s", resp.Status)
	}
	if resp.Bridge.SessionID != "s-1" || resp.Bridge.Ticks != 42 {
		t.Errorf("unexpected bridge status: %+v", resp.Bridge)
	}
	if resp.Relay == nil || resp.Relay.State != relay.StateRunning {
		t.Errorf("unexpected relay status: %+v", resp.Relay)
	}
	if resp.Objects != 2 {
		t.Errorf("Expected 2 objects, got %d", resp.Objects)
	}
}

func TestObjectsEndpoint(t *testing.T) {
	srv := newTestServer(nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/objects", nil))

	var resp struct {
		Objects []ObjectInfo `json:"objects"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("JSONの解析に失敗しました: %v", err)
	}
	if len(resp.Objects) != 2 {
		t.Fatalf("Expected 2 objects, got %d", len(resp.Objects))
	}
	// 名前順
	if resp.Objects[0].Name != "box_1" || resp.Objects[1].Name != "vehicle_blue" {
		t.Errorf("unexpected order: %s, %s", resp.Objects[0].Name, resp.Objects[1].Name)
	}
	if resp.Objects[0].Yaw != nil {
		t.Error("object without orientation should not have yaw")
	}
	if resp.Objects[1].Yaw == nil || *resp.Objects[1].Yaw != 0 {
		t.Errorf("unexpected yaw: %v", resp.Objects[1].Yaw)
	}
}

func TestFrameEndpoint_NotReady(t *testing.T) {
	srv := newTestServer(nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/frame.jpg", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 before first frame, got %d", rec.Code)
	}
}

func TestCameraModeWithoutWorld(t *testing.T) {
	srv := New(testConfig(), Dependencies{Bridge: &fakeBridge{}}, logging.Discard())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/objects", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"objects":[]`) {
		t.Errorf("Expected empty object list, got %s", rec.Body.String())
	}
}

func TestWorldWebSocket(t *testing.T) {
	srv := newTestServer(nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/world"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("WebSocket接続に失敗しました: %v", err)
	}
	defer conn.Close()

	// 2回分受信できることを確認
	for i := 0; i < 2; i++ {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg WorldMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("メッセージの受信に失敗しました: %v", err)
		}
		if msg.Type != "world" || len(msg.Objects) != 2 {
			t.Errorf("unexpected message: %+v", msg)
		}
	}
}

// TestServerStartAndShutdown はサーバーの起動とシャットダウンをテストする
func TestServerStartAndShutdown(t *testing.T) {
	srv := newTestServer([]byte{0xFF, 0xD8, 0xFF, 0xD9})

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("リスナーの作成に失敗しました: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ctx, listener)
	}()

	resp, err := http.Get("http://" + listener.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("HTTPリクエストでエラーが発生しました: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("予期しないステータスコード: %d", resp.StatusCode)
	}

	// コンテキストをキャンセルしてサーバーを停止
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("サーバーの起動/停止でエラーが発生しました: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("サーバーの停止がタイムアウトしました")
	}
}
