// Package world はシミュレーション内オブジェクトの最新姿勢を保持する
//
// # 責務
// - オブジェクト名をキーとした最新 Pose の保持
// - 書き込み中の値を読み手に見せないスナップショット読み取り
//
// # 仕様
// - 書き込みはテレメトリパーサーのみが行う
// - 読み取りはレンダラー・ハートビート・コマンドリレー・監視サーバーが行う
// - ストア全体を1つのロックで保護する（粗粒度ロック）
package world
