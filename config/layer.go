package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
)

// LayerDefinition 一张输出表的定义
type LayerDefinition struct {
	Name string `json:"name" yaml:"name" toml:"name" ini:"name" validate:"required"`
	// GeometryType 隐式几何列的类型，NONE 表示没有几何列
	GeometryType string `json:"geometryType" yaml:"geometryType" toml:"geometryType" ini:"geometryType" def:"GEOMETRY"`
	SRID         int    `json:"srid" yaml:"srid" toml:"srid" ini:"srid" validate:"gte=0"`
	// GeometryNotNull 隐式几何列是否非空
	GeometryNotNull bool                      `json:"geometryNotNull" yaml:"geometryNotNull" toml:"geometryNotNull" ini:"geometryNotNull"`
	Fields          []FieldDefinition         `json:"fields" yaml:"fields" toml:"fields" ini:"-" validate:"dive"`
	GeometryFields  []GeometryFieldDefinition `json:"geometryFields" yaml:"geometryFields" toml:"geometryFields" ini:"-" validate:"dive"`
	// Options 表创建选项，例如 SCHEMA、FID、DIM
	Options map[string]string `json:"options" yaml:"options" toml:"options" ini:"-"`
}

// FieldDefinition 属性列定义
type FieldDefinition struct {
	Name      string `json:"name" yaml:"name" toml:"name" ini:"-" validate:"required"`
	Type      string `json:"type" yaml:"type" toml:"type" ini:"type" def:"string" validate:"oneof=string integer integer64 real date time datetime binary integerlist integer64list reallist stringlist"`
	SubType   string `json:"subType" yaml:"subType" toml:"subType" ini:"subType" validate:"omitempty,oneof=none boolean int16 float32 json uuid"`
	Width     int    `json:"width" yaml:"width" toml:"width" ini:"width" validate:"gte=0"`
	Precision int    `json:"precision" yaml:"precision" toml:"precision" ini:"precision" validate:"gte=0"`
	NotNull   bool   `json:"notNull" yaml:"notNull" toml:"notNull" ini:"notNull"`
	Unique    bool   `json:"unique" yaml:"unique" toml:"unique" ini:"unique"`
	Default   string `json:"default" yaml:"default" toml:"default" ini:"default"`
}

// GeometryFieldDefinition 额外几何列定义
type GeometryFieldDefinition struct {
	Name    string `json:"name" yaml:"name" toml:"name" ini:"-" validate:"required"`
	Type    string `json:"type" yaml:"type" toml:"type" ini:"type" def:"GEOMETRY"`
	SRID    int    `json:"srid" yaml:"srid" toml:"srid" ini:"srid" validate:"gte=0"`
	NotNull bool   `json:"notNull" yaml:"notNull" toml:"notNull" ini:"notNull"`
}

// LoadLayerDefinition 按扩展名加载 yaml/toml/json/ini 格式的表定义，设置默认值并校验
func LoadLayerDefinition(path string) (*LayerDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s failed", path)
	}

	def := &LayerDefinition{}
	if strings.EqualFold(filepath.Ext(path), ".ini") {
		def, err = decodeIniLayer(data)
		if err != nil {
			return nil, err
		}
	} else {
		decoder, err := DecoderForPath(path)
		if err != nil {
			return nil, err
		}
		if err := decoder.Decode(data, def); err != nil {
			return nil, errors.WithMessagef(err, "decode %s failed", path)
		}
	}

	if err := NormalizeLayerDefinition(def); err != nil {
		return nil, err
	}
	return def, nil
}

// NormalizeLayerDefinition 统一大小写、设置默认值并校验
func NormalizeLayerDefinition(def *LayerDefinition) error {
	if err := SetDefaults(def); err != nil {
		return errors.WithMessage(err, "SetDefaults failed")
	}
	for i := range def.Fields {
		def.Fields[i].Type = strings.ToLower(def.Fields[i].Type)
		def.Fields[i].SubType = strings.ToLower(def.Fields[i].SubType)
	}
	if len(def.Options) > 0 {
		options := make(map[string]string, len(def.Options))
		for k, v := range def.Options {
			options[strings.ToUpper(k)] = v
		}
		def.Options = options
	}
	if err := Validate(def); err != nil {
		return errors.WithMessage(err, "invalid layer definition")
	}
	return nil
}

// decodeIniLayer 解析 ini 格式：[layer] 基本信息，[field.<name>] 属性列，[geometry.<name>] 几何列，[options] 表选项
func decodeIniLayer(data []byte) (*LayerDefinition, error) {
	file, err := ini.LoadSources(ini.LoadOptions{
		SpaceBeforeInlineComment: true,
	}, data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode INI")
	}

	def := &LayerDefinition{}
	if err := file.Section("layer").MapTo(def); err != nil {
		return nil, errors.Wrap(err, "map [layer] failed")
	}

	for _, section := range file.Sections() {
		name := section.Name()
		switch {
		case strings.HasPrefix(name, "field."):
			field := FieldDefinition{}
			if err := section.MapTo(&field); err != nil {
				return nil, errors.Wrapf(err, "map [%s] failed", name)
			}
			field.Name = strings.TrimPrefix(name, "field.")
			def.Fields = append(def.Fields, field)
		case strings.HasPrefix(name, "geometry."):
			field := GeometryFieldDefinition{}
			if err := section.MapTo(&field); err != nil {
				return nil, errors.Wrapf(err, "map [%s] failed", name)
			}
			field.Name = strings.TrimPrefix(name, "geometry.")
			def.GeometryFields = append(def.GeometryFields, field)
		case name == "options":
			def.Options = section.KeysHash()
		}
	}
	return def, nil
}
