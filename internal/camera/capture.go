package camera

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
)

var (
	jpegStart = []byte{0xFF, 0xD8}
	jpegEnd   = []byte{0xFF, 0xD9}
)

// maxPendingBytes は区切りが見つからないまま溜めておく最大バイト数
const maxPendingBytes = 8 * 1024 * 1024

// V4L2Capturer はffmpegを使ってV4L2デバイスからJPEGフレームを取得する
type V4L2Capturer struct {
	devicePath string
	width      int
	height     int
	fps        int
	quality    int // ffmpeg の -q:v（2〜31、小さいほど高画質）
	logger     *slog.Logger
}

// NewV4L2Capturer は新しいV4L2Capturerを作成する
func NewV4L2Capturer(devicePath string, width, height, fps, quality int, logger *slog.Logger) *V4L2Capturer {
	if logger == nil {
		logger = slog.Default()
	}
	return &V4L2Capturer{
		devicePath: devicePath,
		width:      width,
		height:     height,
		fps:        fps,
		quality:    quality,
		logger:     logger,
	}
}

// Args はストリーミング用のffmpeg引数を返す
func (c *V4L2Capturer) Args() []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "v4l2",
		"-r", strconv.Itoa(c.fps),
		"-i", c.devicePath,
		"-vf", fmt.Sprintf("scale=%d:%d", c.width, c.height),
		"-f", "image2pipe",
		"-c:v", "mjpeg",
		"-q:v", strconv.Itoa(c.quality),
		"-",
	}
}

// StartStream はffmpegを起動し、分割したフレームを frameChan に送る
// ffmpegが終了するとエラーを errorChan に送り、frameChan を閉じる
func (c *V4L2Capturer) StartStream(ctx context.Context, frameChan chan<- []byte, errorChan chan<- error) error {
	cmd := exec.CommandContext(ctx, "ffmpeg", c.Args()...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdoutパイプの作成に失敗: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderrパイプの作成に失敗: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffmpegの起動に失敗: %w", err)
	}

	c.logger.Info("カメラストリームを開始しました", "device", c.devicePath, "pid", cmd.Process.Pid)

	// stderrを別goroutineで読み取り
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			c.logger.Debug(scanner.Text(), "stream", "ffmpeg")
		}
	}()

	// JPEGフレームを読み取り
	go func() {
		defer close(frameChan)

		readErr := ReadFrames(ctx, stdout, frameChan)
		waitErr := cmd.Wait() // コンテキストキャンセル時にもエラーになる

		if ctx.Err() != nil {
			return
		}
		err := readErr
		if err == nil {
			err = waitErr
		}
		if err == nil {
			err = io.EOF
		}
		select {
		case errorChan <- fmt.Errorf("カメラストリームが終了しました: %w", err):
		default:
		}
	}()

	return nil
}

// ReadFrames は r から連結されたJPEGを読み取り、1枚ずつ frameChan に送る
// EOF の場合は nil を返す
func ReadFrames(ctx context.Context, r io.Reader, frameChan chan<- []byte) error {
	buffer := make([]byte, 64*1024)
	var pending bytes.Buffer

	for {
		n, err := r.Read(buffer)
		if n > 0 {
			pending.Write(buffer[:n])
			for _, frame := range splitFrames(&pending) {
				select {
				case frameChan <- frame:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			if pending.Len() > maxPendingBytes {
				// 区切りが壊れたデータを溜め続けない
				pending.Reset()
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("フレーム読み取りエラー: %w", err)
		}
	}
}

// splitFrames は buf から完全なJPEGフレームを取り出し、残りを buf に残す
func splitFrames(buf *bytes.Buffer) [][]byte {
	var frames [][]byte
	data := buf.Bytes()

	for {
		// JPEGの開始マーカー（FF D8）を探す
		startIdx := bytes.Index(data, jpegStart)
		if startIdx == -1 {
			// 開始マーカーの前半だけが末尾にある可能性を残す
			if len(data) > 0 && data[len(data)-1] == 0xFF {
				data = data[len(data)-1:]
			} else {
				data = nil
			}
			break
		}

		// JPEGの終了マーカー（FF D9）を探す
		endIdx := bytes.Index(data[startIdx+2:], jpegEnd)
		if endIdx == -1 {
			// 完全なフレームがまだない
			data = data[startIdx:]
			break
		}

		// 完全なJPEGフレームを抽出（マーカーのサイズを含める）
		endIdx += startIdx + 2 + len(jpegEnd)
		frame := make([]byte, endIdx-startIdx)
		copy(frame, data[startIdx:endIdx])
		frames = append(frames, frame)

		data = data[endIdx:]
	}

	remaining := append([]byte(nil), data...)
	buf.Reset()
	buf.Write(remaining)
	return frames
}
