// Package bridge はアップリンクループを実行する
//
// 1周期の処理（既定で10Hz）:
//  1. フレームを用意する（simモードは世界状態の描画、cameraモードは最新のカメラフレーム）
//  2. 速度コマンドを取得して制御プロセスに送る（simモードのみ）
//  3. フレームをアップロードする
//  4. ハートビート間隔（既定10秒）を過ぎていれば死活通知を送る
//
// 各処理の失敗はログに出して次の周期へ進む。
// 開始時に is_online=true、終了時には必ず is_online=false を送る。
package bridge
