package world

import (
	"sort"
	"strings"
	"sync"
)

// Store は名前→最新 Pose の対応を保持する
type Store struct {
	poses map[string]Pose
	mu    sync.RWMutex
}

// NewStore は空の Store を作成する
func NewStore() *Store {
	return &Store{
		poses: make(map[string]Pose),
	}
}

// Put は pose.Name のエントリを置き換える
func (s *Store) Put(pose Pose) {
	// 呼び出し側のバッファと共有しないようロック外でコピーを作る
	stored := pose.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.poses[stored.Name] = stored
}

// Snapshot はある時点の全エントリのコピーを返す
// 戻り値はロックを保持せずに使ってよい
func (s *Store) Snapshot() map[string]Pose {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make(map[string]Pose, len(s.poses))
	for name, pose := range s.poses {
		snapshot[name] = pose.Clone()
	}
	return snapshot
}

// Get は指定名の Pose のコピーを取得する
func (s *Store) Get(name string) (Pose, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pose, exists := s.poses[name]
	if !exists {
		return Pose{}, false
	}
	return pose.Clone(), true
}

// Len は保持しているオブジェクト数を返す
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.poses)
}

// Names は名前一覧を辞書順で返す
func (s *Store) Names() []string {
	s.mu.RLock()
	names := make([]string, 0, len(s.poses))
	for name := range s.poses {
		names = append(names, name)
	}
	s.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Find は substr を含む最初の名前（辞書順）を返す
func (s *Store) Find(substr string) (string, bool) {
	if substr == "" {
		return "", false
	}
	for _, name := range s.Names() {
		if strings.Contains(name, substr) {
			return name, true
		}
	}
	return "", false
}
