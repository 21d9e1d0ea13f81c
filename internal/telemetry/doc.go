// Package telemetry は物理エンジンが出力する姿勢テキストを解析する
//
// # 責務
// - エンジンのトピック購読プロセスの起動と標準出力の読み取り
// - 行単位の状態機械による Pose レコードの組み立て
// - 完成した Pose のみを World State Store へ反映
//
// # 仕様
// 入力は次の形のブロックの繰り返しで、明示的なレコード区切りはない:
//
//	name: "box_1"
//	position {
//	  x: 1.5
//	  y: -2
//	  z: 0
//	}
//	orientation {
//	  x: 0
//	  y: 0
//	  z: 0
//	  w: 1
//	}
//
// 解析できない行や欠けたレコードは黙って破棄する。
// ストリームが終了したらパーサーは停止し、再起動はしない。
package telemetry
