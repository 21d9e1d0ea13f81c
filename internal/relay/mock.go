package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// errMockBrokenPipe はモックが返す書き込みエラー
var errMockBrokenPipe = errors.New("mock: broken pipe")

// MockSpawner はテスト用のSpawner実装
type MockSpawner struct {
	mu        sync.Mutex
	processes []*MockProcess

	// テスト制御用
	shouldFailSpawn bool
}

// NewMockSpawner は新しいMockSpawnerを作成する
func NewMockSpawner() *MockSpawner {
	return &MockSpawner{}
}

// Spawn はモックプロセスを作成する
func (m *MockSpawner) Spawn(_ context.Context, topic string) (Process, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shouldFailSpawn {
		return nil, fmt.Errorf("モック: 起動に失敗")
	}

	p := &MockProcess{
		id:    fmt.Sprintf("mock-%d", len(m.processes)+1),
		topic: topic,
		alive: true,
	}
	m.processes = append(m.processes, p)
	return p, nil
}

// SetShouldFailSpawn はテスト用にSpawn失敗を設定する
func (m *MockSpawner) SetShouldFailSpawn(shouldFail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shouldFailSpawn = shouldFail
}

// Processes はこれまでに起動したプロセスを返す
func (m *MockSpawner) Processes() []*MockProcess {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MockProcess(nil), m.processes...)
}

// Latest は最後に起動したプロセスを返す
func (m *MockSpawner) Latest() *MockProcess {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.processes) == 0 {
		return nil
	}
	return m.processes[len(m.processes)-1]
}

// MockProcess はテスト用のProcess実装
type MockProcess struct {
	mu     sync.Mutex
	id     string
	topic  string
	alive  bool
	closed bool
	lines  []string

	shouldFailWrite bool
	writeErr        error
}

func (p *MockProcess) ID() string    { return p.id }
func (p *MockProcess) Topic() string { return p.topic }

// Alive はプロセスが動作中かを返す
func (p *MockProcess) Alive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alive
}

// Write は書き込まれた行を記録する
func (p *MockProcess) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.writeErr != nil && !p.closed {
		return 0, p.writeErr
	}
	if p.closed || p.shouldFailWrite {
		return 0, errMockBrokenPipe
	}
	p.lines = append(p.lines, string(b))
	return len(b), nil
}

// Close はプロセスを終了状態にする
func (p *MockProcess) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.alive = false
	return nil
}

// Lines は書き込まれた行を返す
func (p *MockProcess) Lines() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.lines...)
}

// Closed は Close 済みかを返す
func (p *MockProcess) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// SetShouldFailWrite はテスト用に書き込み失敗（パイプ破損）を設定する
func (p *MockProcess) SetShouldFailWrite(shouldFail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shouldFailWrite = shouldFail
}

// SetWriteError はテスト用に書き込み時に返すエラーを設定する
func (p *MockProcess) SetWriteError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeErr = err
}

// Exit はプロセスの異常終了を模擬する
func (p *MockProcess) Exit() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alive = false
}
