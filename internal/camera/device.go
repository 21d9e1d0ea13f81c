package camera

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

// ErrDeviceUnavailable はカメラデバイスが使えない場合のエラー
var ErrDeviceUnavailable = errors.New("カメラデバイスが利用できません")

var v4l2DevicePattern = regexp.MustCompile(`^/dev/video\d+$`)

// CheckDevice はデバイスとffmpegが利用可能か確認する
func CheckDevice(device string) error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return fmt.Errorf("ffmpegが見つかりません: %w", err)
	}
	if !IsDeviceAvailable(device) {
		return fmt.Errorf("%w: %s", ErrDeviceUnavailable, device)
	}
	return nil
}

// IsDeviceAvailable は指定されたデバイスが利用可能かチェックする
func IsDeviceAvailable(device string) bool {
	// /dev/videoXX パターンかチェック
	if !v4l2DevicePattern.MatchString(device) {
		return false
	}

	// デバイスファイルの存在確認
	if _, err := os.Stat(device); err != nil {
		return false
	}

	// デバイスファイルの読み取り権限チェック
	file, err := os.OpenFile(device, os.O_RDONLY, 0)
	if err != nil {
		return false
	}
	_ = file.Close()
	return true
}

// DeviceName はv4l2-ctlを使って実際のデバイス名を取得する
// 取得できない場合はデバイスパスを返す
func DeviceName(ctx context.Context, device string) string {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, "v4l2-ctl", "--device", device, "--info").Output()
	if err != nil {
		return device
	}
	if name := parseCardType(string(output)); name != "" {
		return name
	}
	return device
}

// parseCardType は v4l2-ctl --info の出力から "Card type" を取り出す
func parseCardType(output string) string {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "Card type") {
			continue
		}
		if _, value, ok := strings.Cut(line, ":"); ok {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
