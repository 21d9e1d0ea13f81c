// Package relay はリモートAPIの速度コマンドをエンジンの制御チャンネルへ中継する
//
// # 責務
// - 制御周期ごとのコマンド取得と無条件の再送
// - 制御チャンネルプロセス（パブリッシャー）の起動・出力の排出・書き込み・置き換え
// - パイプ破損時の自動復旧（次の周期で再起動）
//
// # 仕様
// パブリッシャーの状態は ABSENT → RUNNING → BROKEN → (次の周期) RUNNING と遷移する。
// 破損したパブリッシャーは修理せず丸ごと置き換える。
// 値が変わらなくても毎周期送信する（送信が途切れるとエンジン側は停止とみなす）。
package relay
