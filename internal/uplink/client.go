package uplink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"simbridge/internal/relay"
)

// ErrUnexpectedStatus は 2xx 以外の応答を表す
var ErrUnexpectedStatus = errors.New("予期しないHTTPステータス")

// Timeouts は各リクエストのタイムアウト
type Timeouts struct {
	Command   time.Duration // コマンド取得
	Upload    time.Duration // フレームアップロード
	Heartbeat time.Duration // 死活通知
}

// Client はリモートサービスのHTTPクライアント
type Client struct {
	baseURL    string
	robotID    int
	timeouts   Timeouts
	httpClient *http.Client
}

// NewClient は新しいClientを作成する
func NewClient(baseURL string, robotID int, timeouts Timeouts) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		robotID:    robotID,
		timeouts:   timeouts,
		httpClient: &http.Client{},
	}
}

// robotURL は /robots/{id}/{suffix} のURLを返す
func (c *Client) robotURL(suffix string) string {
	return fmt.Sprintf("%s/robots/%d/%s", c.baseURL, c.robotID, suffix)
}

// commandResponse はコマンド取得APIの応答
// フィールドが無い場合は 0.0 とする
type commandResponse struct {
	LinearX  *float64 `json:"linear_x"`
	AngularZ *float64 `json:"angular_z"`
}

// FetchCommand は現在の速度コマンドを取得する
func (c *Client) FetchCommand(ctx context.Context) (relay.Command, error) {
	ctx, cancel := withTimeout(ctx, c.timeouts.Command)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.robotURL("command"), nil)
	if err != nil {
		return relay.Command{}, fmt.Errorf("リクエストの作成に失敗: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return relay.Command{}, fmt.Errorf("コマンド取得リクエストに失敗: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return relay.Command{}, err
	}

	var body commandResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return relay.Command{}, fmt.Errorf("コマンド応答のデコードに失敗: %w", err)
	}

	var cmd relay.Command
	if body.LinearX != nil {
		cmd.Linear = *body.LinearX
	}
	if body.AngularZ != nil {
		cmd.Angular = *body.AngularZ
	}
	return cmd, nil
}

// SendHeartbeat は死活状態を通知する
func (c *Client) SendHeartbeat(ctx context.Context, online bool) error {
	ctx, cancel := withTimeout(ctx, c.timeouts.Heartbeat)
	defer cancel()

	u := c.robotURL("status") + "?" + url.Values{"is_online": {strconv.FormatBool(online)}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return fmt.Errorf("リクエストの作成に失敗: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ハートビートの送信に失敗: %w", err)
	}
	defer drainAndClose(resp.Body)

	return checkStatus(resp)
}

// UploadFrame はJPEGフレームを multipart でアップロードする
func (c *Client) UploadFrame(ctx context.Context, frame []byte) error {
	ctx, cancel := withTimeout(ctx, c.timeouts.Upload)
	defer cancel()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="frame.jpg"`)
	header.Set("Content-Type", "image/jpeg")

	part, err := writer.CreatePart(header)
	if err != nil {
		return fmt.Errorf("multipartの作成に失敗: %w", err)
	}
	if _, err := part.Write(frame); err != nil {
		return fmt.Errorf("multipartへの書き込みに失敗: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("multipartの終了に失敗: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.robotURL("camera"), &body)
	if err != nil {
		return fmt.Errorf("リクエストの作成に失敗: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("フレームのアップロードに失敗: %w", err)
	}
	defer drainAndClose(resp.Body)

	return checkStatus(resp)
}

// DefaultRequestTimeout はタイムアウト未設定（0 以下）のリクエストに使う上限
// 応答しないサーバーで周期処理が止まらないよう、どのリクエストにも上限を設ける
const DefaultRequestTimeout = 10 * time.Second

// withTimeout はリクエストのタイムアウトを設定する
// d が 0 以下の場合は DefaultRequestTimeout を使う
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = DefaultRequestTimeout
	}
	return context.WithTimeout(ctx, d)
}

// checkStatus は 2xx 以外をエラーにする
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("%w: %s %s: %d", ErrUnexpectedStatus, resp.Request.Method, resp.Request.URL.Path, resp.StatusCode)
}

// drainAndClose はコネクションを再利用できるよう応答を読み捨てる
func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64*1024))
	_ = body.Close()
}
