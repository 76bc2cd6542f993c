package feature

import (
	"strings"

	"github.com/hatlonely/pgdump/geom"
)

// Feature 写出时读取的要素
// 字段名大小写不敏感；几何名为空表示默认几何
type Feature interface {
	// ID 要素 ID，ok 为 false 表示未设置
	ID() (id int64, ok bool)
	SetID(id int64)
	// IsFieldSet 字段是否被设置，显式 NULL 也算已设置
	IsFieldSet(name string) bool
	IsFieldNull(name string) bool
	Field(name string) any
	SetField(name string, value any)
	Geometry(name string) geom.Geometry
}

// MapFeature 基于 map 的 Feature 实现
type MapFeature struct {
	id         int64
	hasID      bool
	fields     map[string]any
	geometries map[string]geom.Geometry
}

func NewMapFeature() *MapFeature {
	return &MapFeature{
		fields:     map[string]any{},
		geometries: map[string]geom.Geometry{},
	}
}

func (f *MapFeature) ID() (int64, bool) {
	return f.id, f.hasID
}

func (f *MapFeature) SetID(id int64) {
	f.id, f.hasID = id, true
}

// UnsetID 清除要素 ID
func (f *MapFeature) UnsetID() {
	f.id, f.hasID = 0, false
}

func key(name string) string {
	return strings.ToLower(name)
}

func (f *MapFeature) IsFieldSet(name string) bool {
	_, ok := f.fields[key(name)]
	return ok
}

func (f *MapFeature) IsFieldNull(name string) bool {
	v, ok := f.fields[key(name)]
	return ok && v == nil
}

func (f *MapFeature) Field(name string) any {
	return f.fields[key(name)]
}

func (f *MapFeature) SetField(name string, value any) {
	f.fields[key(name)] = value
}

// SetFieldNull 将字段设置为显式 NULL
func (f *MapFeature) SetFieldNull(name string) {
	f.fields[key(name)] = nil
}

// UnsetField 清除字段
func (f *MapFeature) UnsetField(name string) {
	delete(f.fields, key(name))
}

func (f *MapFeature) Geometry(name string) geom.Geometry {
	return f.geometries[key(name)]
}

// SetGeometry 设置几何，name 为空表示默认几何，g 为 nil 时清除
func (f *MapFeature) SetGeometry(name string, g geom.Geometry) {
	if g == nil {
		delete(f.geometries, key(name))
		return
	}
	f.geometries[key(name)] = g
}
