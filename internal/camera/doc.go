// Package camera は実機モードでV4L2カメラからフレームを取得する
//
// # 責務
// - V4L2デバイスの利用可否確認
// - ffmpeg経由でのMJPEGストリーム取得とJPEGフレームへの分割
// - 最新フレームの保持（アップリンクループが周期ごとに取り出す）
//
// # 前提要件
//   - ffmpeg: 画像キャプチャとストリーミングに使用
//     Ubuntu/Debian: sudo apt install ffmpeg
//   - v4l-utils: カメラ名の取得に使用（任意）
//   - videoグループへの参加: デバイスアクセス権限
//     sudo usermod -a -G video $USER
package camera
