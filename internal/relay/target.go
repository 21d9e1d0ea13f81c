package relay

import "strings"

// Finder はオブジェクト名の検索
type Finder interface {
	Find(substr string) (string, bool)
}

// TopicResolver は送信先トピックを決める
type TopicResolver struct {
	Finder         Finder
	Marker         string // 制御対象の名前に含まれる文字列（例: "vehicle"）
	DefaultTarget  string // 見つからない場合のモデル名
	TargetOverride string // モデル名の手動指定
	TopicOverride  string // トピックの手動指定（最優先）
	TopicTemplate  string // 例: /model/{name}/cmd_vel
}

// Resolve はトピック名を返す
func (r TopicResolver) Resolve() string {
	if r.TopicOverride != "" {
		return r.TopicOverride
	}
	return strings.ReplaceAll(r.TopicTemplate, "{name}", r.Target())
}

// Target は制御対象のモデル名を返す
func (r TopicResolver) Target() string {
	if r.TargetOverride != "" {
		return r.TargetOverride
	}
	if r.Finder != nil {
		if name, ok := r.Finder.Find(r.Marker); ok {
			return name
		}
	}
	return r.DefaultTarget
}
