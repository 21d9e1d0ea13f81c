package telemetry

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"simbridge/internal/world"
)

// State はパーサーの状態を表す
type State int

const (
	StateIdle          State = iota // ブロック外
	StateInPosition                 // position { ... } の中
	StateInOrientation              // orientation { ... } の中
)

// String は状態名を返す
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateInPosition:
		return "IN_POSITION"
	case StateInOrientation:
		return "IN_ORIENTATION"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Sink は完成した Pose の書き込み先
type Sink interface {
	Put(pose world.Pose)
}

// maxLineSize は1行の最大長
const maxLineSize = 1024 * 1024

// Parser は行単位で Pose レコードを組み立てる状態機械
// 1つのインスタンスは1つのゴルーチンからのみ使う
type Parser struct {
	sink               Sink
	requireOrientation bool
	logger             *slog.Logger

	state  State
	record world.Pose
	// done は record が確定済みであることを示す
	// 確定後に始まった新しいブロックは name: 行が来るまでどのレコードにも属さない
	done bool

	// 統計
	lines     int
	committed int
	ignored   int
}

// Option は Parser の設定
type Option func(*Parser)

// WithRequireOrientation は orientation ブロックを持たないプロトコルに対応するかを設定する
// false の場合、position ブロックを閉じる "}" で name と x が揃ったレコードを確定する
func WithRequireOrientation(require bool) Option {
	return func(p *Parser) {
		p.requireOrientation = require
	}
}

// WithLogger はロガーを設定する
func WithLogger(logger *slog.Logger) Option {
	return func(p *Parser) {
		p.logger = logger
	}
}

// NewParser は新しい Parser を作成する
func NewParser(sink Sink, opts ...Option) *Parser {
	p := &Parser{
		sink:               sink,
		requireOrientation: true,
		logger:             slog.Default(),
		state:              StateIdle,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State は現在の状態を返す
func (p *Parser) State() State {
	return p.state
}

// Committed は確定したレコード数を返す
func (p *Parser) Committed() int {
	return p.committed
}

// Run は r から EOF まで行を読み取り解析する
// ctx がキャンセルされた場合は次の行の読み取り前に終了する
func (p *Parser) Run(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.Feed(scanner.Text())
	}

	p.logger.Debug("テレメトリ解析を終了",
		"lines", p.lines, "committed", p.committed, "ignored", p.ignored)

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("テレメトリの読み取りに失敗: %w", err)
	}
	return nil
}

// Feed は1行を処理する
func (p *Parser) Feed(line string) {
	p.lines++
	trimmed := strings.TrimSpace(line)

	switch {
	case strings.HasPrefix(trimmed, "name:"):
		p.startRecord(parseName(trimmed[len("name:"):]))

	case strings.Contains(trimmed, "orientation {"):
		// 確定済みレコードの2つ目の orientation ブロック
		if p.done && p.state == StateInOrientation {
			p.discard()
		}
		p.state = StateInOrientation
		p.tryCommit()

	case strings.Contains(trimmed, "position {"):
		// 確定後の position ブロックは名前のない新しいブロックとして扱う
		if p.done {
			p.discard()
			p.state = StateIdle
		}
		if p.state == StateIdle {
			p.state = StateInPosition
		}

	case trimmed == "}":
		if p.state == StateInPosition && !p.requireOrientation {
			p.tryCommit()
			p.state = StateIdle
		}

	case p.state == StateInPosition:
		p.setPositionField(trimmed)

	case p.state == StateInOrientation:
		if p.setOrientationField(trimmed) == world.FieldQW {
			p.tryCommit()
		}

	default:
		p.ignored++
	}
}

// startRecord は未完成のレコードを破棄して新しいレコードを開始する
func (p *Parser) startRecord(name string) {
	p.record = world.Pose{Name: name}
	p.state = StateIdle
	p.done = false
}

// discard は確定済みレコードを手放し、名前のないレコードにする
func (p *Parser) discard() {
	p.record = world.Pose{}
	p.done = false
}

// setPositionField は x:/y:/z: 行を位置フィールドへ反映する
func (p *Parser) setPositionField(line string) {
	key, value, ok := parseField(line)
	if !ok {
		p.ignored++
		return
	}

	switch key {
	case "x":
		p.record.Position.X = value
		p.record.Observed |= world.FieldX
	case "y":
		p.record.Position.Y = value
		p.record.Observed |= world.FieldY
	case "z":
		p.record.Position.Z = value
		p.record.Observed |= world.FieldZ
	default:
		p.ignored++
	}
}

// setOrientationField は x:/y:/z:/w: 行を姿勢フィールドへ反映し、設定したフィールドを返す
func (p *Parser) setOrientationField(line string) world.Field {
	key, value, ok := parseField(line)
	if !ok {
		p.ignored++
		return 0
	}

	if p.record.Orientation == nil {
		p.record.Orientation = &world.Quaternion{}
	}

	var field world.Field
	switch key {
	case "x":
		p.record.Orientation.X = value
		field = world.FieldQX
	case "y":
		p.record.Orientation.Y = value
		field = world.FieldQY
	case "z":
		p.record.Orientation.Z = value
		field = world.FieldQZ
	case "w":
		p.record.Orientation.W = value
		field = world.FieldQW
	default:
		p.ignored++
		return 0
	}

	p.record.Observed |= field
	return field
}

// tryCommit はレコードが完成していればストアへ書き込む
func (p *Parser) tryCommit() {
	if !p.complete() {
		return
	}
	p.sink.Put(p.record.Clone())
	p.committed++
	p.done = true
}

// complete はレコードが確定可能かを返す
func (p *Parser) complete() bool {
	if p.record.Name == "" || !p.record.Has(world.FieldX) {
		return false
	}
	if p.requireOrientation {
		return p.record.HasOrientation()
	}
	return true
}

// parseName は name: に続く値から引用符を取り除く
func parseName(raw string) string {
	raw = strings.TrimSpace(raw)
	if unquoted, err := strconv.Unquote(raw); err == nil {
		return unquoted
	}
	return strings.Trim(raw, `"`)
}

// parseField は "x: 1.5" 形式の行を解析する
// 数値として解析できない場合は ok=false を返す
func parseField(line string) (string, float64, bool) {
	key, raw, found := strings.Cut(line, ":")
	if !found {
		return "", 0, false
	}

	key = strings.TrimSpace(key)
	if len(key) != 1 {
		return "", 0, false
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return "", 0, false
	}
	return key, value, true
}
