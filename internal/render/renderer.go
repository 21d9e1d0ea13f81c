package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"math"
	"sort"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"simbridge/internal/world"
)

// Category は描画時のオブジェクト分類
type Category string

const (
	CategorySkip     Category = "skip"     // 描画しない（地面など）
	CategoryVehicle  Category = "vehicle"  // 制御対象
	CategoryBox      Category = "box"      // 箱
	CategoryCylinder Category = "cylinder" // 円柱
	CategorySphere   Category = "sphere"   // 球
	CategoryOther    Category = "other"    // その他
)

var (
	colorBackground = color.RGBA{R: 30, G: 30, B: 30, A: 255}
	colorGrid       = color.RGBA{R: 60, G: 60, B: 60, A: 255}
	colorHeading    = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	colorLabel      = color.RGBA{R: 220, G: 220, B: 220, A: 255}

	categoryColors = map[Category]color.RGBA{
		CategoryVehicle:  {R: 255, G: 60, B: 60, A: 255},
		CategoryBox:      {R: 70, G: 130, B: 255, A: 255},
		CategoryCylinder: {R: 60, G: 200, B: 90, A: 255},
		CategorySphere:   {R: 240, G: 200, B: 40, A: 255},
		CategoryOther:    {R: 170, G: 170, B: 170, A: 255},
	}
)

// Options はレンダラーの設定
type Options struct {
	Width         int     // 画像幅
	Height        int     // 画像高さ
	Scale         float64 // 1メートルあたりの画素数
	VehicleMarker string  // 制御対象の名前に含まれる文字列
	MarkerRadius  int     // マーカー半径（画素）
	HeadingLength int     // 向き表示線の長さ（画素）
}

// DefaultOptions はデフォルト設定を返す
func DefaultOptions() Options {
	return Options{
		Width:         640,
		Height:        480,
		Scale:         20,
		VehicleMarker: "vehicle",
		MarkerRadius:  5,
		HeadingLength: 20,
	}
}

// Renderer は俯瞰図を描画する
type Renderer struct {
	opts Options
}

// New は新しい Renderer を作成する
func New(opts Options) *Renderer {
	return &Renderer{opts: opts}
}

// Center は原点の画素位置を返す
func (r *Renderer) Center() image.Point {
	return image.Pt(r.opts.Width/2, r.opts.Height/2)
}

// Project はワールド座標を画素座標に変換する
func (r *Renderer) Project(x, y float64) image.Point {
	c := r.Center()
	return image.Pt(
		c.X+int(math.Round(x*r.opts.Scale)),
		c.Y-int(math.Round(y*r.opts.Scale)),
	)
}

// Classify は名前から描画分類を決める（大文字小文字を区別、先に一致したものが優先）
func Classify(name, vehicleMarker string) Category {
	switch {
	case strings.Contains(name, "ground"):
		return CategorySkip
	case vehicleMarker != "" && strings.Contains(name, vehicleMarker):
		return CategoryVehicle
	case strings.Contains(name, "box"):
		return CategoryBox
	case strings.Contains(name, "cylinder"):
		return CategoryCylinder
	case strings.Contains(name, "sphere"):
		return CategorySphere
	default:
		return CategoryOther
	}
}

// ColorOf は分類の描画色を返す
func ColorOf(category Category) (color.RGBA, bool) {
	c, ok := categoryColors[category]
	return c, ok
}

// Render はスナップショットを描画する
func (r *Renderer) Render(snapshot map[string]world.Pose) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, r.opts.Width, r.opts.Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(colorBackground), image.Point{}, draw.Src)

	r.drawGrid(img)

	// 描画順を固定するため名前でソート
	names := make([]string, 0, len(snapshot))
	for name := range snapshot {
		names = append(names, name)
	}
	sort.Strings(names)

	drawn := 0
	for _, name := range names {
		pose := snapshot[name]
		if !pose.Has(world.FieldX | world.FieldY) {
			continue
		}

		category := Classify(name, r.opts.VehicleMarker)
		if category == CategorySkip {
			continue
		}
		c, _ := ColorOf(category)

		p := r.Project(pose.Position.X, pose.Position.Y)
		fillCircle(img, p, r.opts.MarkerRadius, c)

		if pose.HasOrientation() {
			yaw := pose.Orientation.Yaw()
			end := image.Pt(
				p.X+int(math.Round(float64(r.opts.HeadingLength)*math.Cos(yaw))),
				p.Y-int(math.Round(float64(r.opts.HeadingLength)*math.Sin(yaw))),
			)
			drawLine(img, p, end, colorHeading)
		}

		drawText(img, image.Pt(p.X+r.opts.MarkerRadius+3, p.Y-r.opts.MarkerRadius-3), name, colorLabel)
		drawn++
	}

	drawText(img, image.Pt(8, 16), fmt.Sprintf("objects: %d", drawn), colorLabel)
	return img
}

// drawGrid は原点を通る軸と1メートルごとの目盛りを描く
func (r *Renderer) drawGrid(img *image.RGBA) {
	c := r.Center()
	b := img.Bounds()
	drawLine(img, image.Pt(b.Min.X, c.Y), image.Pt(b.Max.X-1, c.Y), colorGrid)
	drawLine(img, image.Pt(c.X, b.Min.Y), image.Pt(c.X, b.Max.Y-1), colorGrid)

	if r.opts.Scale < 4 {
		return
	}
	for i := 1; ; i++ {
		offset := int(math.Round(float64(i) * r.opts.Scale))
		if c.X+offset >= b.Max.X && c.Y+offset >= b.Max.Y {
			break
		}
		for _, x := range []int{c.X - offset, c.X + offset} {
			drawLine(img, image.Pt(x, c.Y-2), image.Pt(x, c.Y+2), colorGrid)
		}
		for _, y := range []int{c.Y - offset, c.Y + offset} {
			drawLine(img, image.Pt(c.X-2, y), image.Pt(c.X+2, y), colorGrid)
		}
	}
}

// fillCircle は塗りつぶした円を描く（範囲外は無視）
func fillCircle(img *image.RGBA, center image.Point, radius int, c color.RGBA) {
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius {
				img.SetRGBA(center.X+dx, center.Y+dy, c)
			}
		}
	}
}

// drawLine は2点間に線を描く
func drawLine(img *image.RGBA, from, to image.Point, c color.RGBA) {
	dx := to.X - from.X
	dy := to.Y - from.Y
	steps := max(abs(dx), abs(dy))
	if steps == 0 {
		img.SetRGBA(from.X, from.Y, c)
		return
	}
	for i := 0; i <= steps; i++ {
		x := from.X + int(math.Round(float64(dx*i)/float64(steps)))
		y := from.Y + int(math.Round(float64(dy*i)/float64(steps)))
		img.SetRGBA(x, y, c)
	}
}

// drawText はベースライン位置 at に文字列を描く
func drawText(img *image.RGBA, at image.Point, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(at.X, at.Y),
	}
	d.DrawString(text)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// EncodeJPEG は画像をJPEGにエンコードする
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("JPEGエンコードに失敗: %w", err)
	}
	return buf.Bytes(), nil
}
