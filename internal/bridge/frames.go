package bridge

import (
	"context"
	"fmt"

	"simbridge/internal/render"
	"simbridge/internal/world"
)

// FrameSource は送信するJPEGフレームの供給元
type FrameSource interface {
	Frame(ctx context.Context) ([]byte, error)
}

// RenderedFrames は世界状態のスナップショットを描画してJPEGにする
type RenderedFrames struct {
	store    *world.Store
	renderer *render.Renderer
	quality  int
}

// NewRenderedFrames は新しい RenderedFrames を作成する
func NewRenderedFrames(store *world.Store, renderer *render.Renderer, quality int) *RenderedFrames {
	return &RenderedFrames{
		store:    store,
		renderer: renderer,
		quality:  quality,
	}
}

// Frame は現在の世界状態を描画したJPEGを返す
func (f *RenderedFrames) Frame(_ context.Context) ([]byte, error) {
	img := f.renderer.Render(f.store.Snapshot())
	data, err := render.EncodeJPEG(img, f.quality)
	if err != nil {
		return nil, fmt.Errorf("フレームの生成に失敗: %w", err)
	}
	return data, nil
}
