// Package server は、ブリッジの状態を確認するためのローカル監視HTTPサーバーを提供します。
//
// 責務:
//   - ヘルスチェックと稼働状態の返却
//   - 世界状態（オブジェクト一覧）のJSON返却
//   - 最新フレームのJPEG配信とMJPEGストリーミング
//   - WebSocketによる世界状態の定期配信
//
// 仕様:
//   - ルーティングはgin、WebSocketはgorilla/websocketを使用
//   - グレースフルシャットダウンに対応
//   - 複数クライアントの同時接続をサポート
//
// エンドポイント:
//   - GET /health
//   - GET /api/status
//   - GET /api/objects
//   - GET /api/frame.jpg
//   - GET /api/stream.mjpg
//   - GET /ws/world
package server
