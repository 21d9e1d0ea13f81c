package world

import "math"

// Field は Pose のうち観測済みのフィールドを表すビット
type Field uint8

const (
	FieldX Field = 1 << iota
	FieldY
	FieldZ
	FieldQX
	FieldQY
	FieldQZ
	FieldQW
)

// orientationFields はクォータニオン4成分すべて
const orientationFields = FieldQX | FieldQY | FieldQZ | FieldQW

// Vector3 は位置
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Quaternion は姿勢
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// Yaw はクォータニオンからZ軸回りの回転角（ラジアン）を求める
func (q Quaternion) Yaw() float64 {
	return math.Atan2(2*(q.W*q.Z+q.X*q.Y), 1-2*(q.Y*q.Y+q.Z*q.Z))
}

// Pose は名前付きオブジェクトのある時点での姿勢
type Pose struct {
	Name        string      `json:"name"`
	Position    Vector3     `json:"position"`
	Orientation *Quaternion `json:"orientation,omitempty"`

	// Observed は観測済みフィールドの集合
	Observed Field `json:"-"`
}

// Has は指定フィールドがすべて観測済みかを返す
func (p Pose) Has(f Field) bool {
	return p.Observed&f == f
}

// HasOrientation はクォータニオン4成分すべてが揃っているかを返す
func (p Pose) HasOrientation() bool {
	return p.Orientation != nil && p.Has(orientationFields)
}

// Clone は Orientation を含めた深いコピーを返す
func (p Pose) Clone() Pose {
	c := p
	if p.Orientation != nil {
		q := *p.Orientation
		c.Orientation = &q
	}
	return c
}
