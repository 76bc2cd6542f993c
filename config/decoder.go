package config

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Decoder 将配置文件内容解码到结构体
type Decoder interface {
	Decode(data []byte, v any) error
}

type YamlDecoder struct{}

func (YamlDecoder) Decode(data []byte, v any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(err, "failed to decode YAML")
	}
	return nil
}

type TomlDecoder struct{}

func (TomlDecoder) Decode(data []byte, v any) error {
	md, err := toml.Decode(string(data), v)
	if err != nil {
		return errors.Wrap(err, "failed to decode TOML")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return errors.Errorf("unknown TOML keys: %v", undecoded)
	}
	return nil
}

type JsonDecoder struct{}

func (JsonDecoder) Decode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(err, "failed to decode JSON")
	}
	return nil
}

// DecoderForPath 根据扩展名选择解码器，ini 由 LoadLayerDefinition 单独处理
func DecoderForPath(path string) (Decoder, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YamlDecoder{}, nil
	case ".toml":
		return TomlDecoder{}, nil
	case ".json":
		return JsonDecoder{}, nil
	default:
		return nil, errors.Errorf("unsupported config format %q", filepath.Ext(path))
	}
}
