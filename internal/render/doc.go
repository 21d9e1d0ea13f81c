// Package render はワールド状態のスナップショットを俯瞰図のラスタ画像に描画する
//
// 座標系: ワールドの (x, y) は画素 (cx + x*scale, cy - y*scale) に写す。
// ラスタの行は下向きに増えるため Y を反転し、画面上方向がワールドの +Y になる。
package render
