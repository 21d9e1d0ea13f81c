package relay

import (
	"context"
	"strconv"
	"time"
)

// Command は速度コマンド
type Command struct {
	Linear  float64 `json:"linear_x"`
	Angular float64 `json:"angular_z"`
}

// Encode は制御チャンネルへ書き込む1行を返す
func (c Command) Encode() string {
	return "linear: {x: " + formatFloat(c.Linear) + "}, angular: {z: " + formatFloat(c.Angular) + "}\n"
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Fetcher はリモートから現在のコマンドを取得する
type Fetcher interface {
	FetchCommand(ctx context.Context) (Command, error)
}

// CommandState は最後に送信したコマンドと送信試行時刻
// ログの重複を避けるためだけに使い、送信の抑制には使わない
type CommandState struct {
	Command    Command   `json:"command"`
	Topic      string    `json:"topic"`
	AttemptAt  time.Time `json:"attempt_at"`
	Dispatched bool      `json:"dispatched"`
}
