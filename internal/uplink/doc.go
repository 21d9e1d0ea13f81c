// Package uplink はリモートサービスとのHTTP通信を担う
//
// # 仕様
//   - GET  /robots/{id}/command              現在の速度コマンド取得
//   - POST /robots/{id}/status?is_online=... 死活通知（ハートビート）
//   - POST /robots/{id}/camera               JPEGフレームのアップロード（multipart の file フィールド）
//
// 失敗はすべて error として返し、呼び出し側はログに出して次の周期へ進む。
// 再試行やバックオフは行わない。
package uplink
