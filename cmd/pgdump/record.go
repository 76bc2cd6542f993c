package main

import (
	"encoding/json"

	"github.com/hatlonely/pgdump/errs"
	"github.com/hatlonely/pgdump/feature"
	"github.com/hatlonely/pgdump/geom"
)

// record NDJSON 中的一行要素
// 缺少的键表示未设置，null 表示显式的 NULL
type record struct {
	ID         *json.Number       `json:"id"`
	Fields     map[string]any     `json:"fields"`
	Geometry   *string            `json:"geometry"`
	Geometries map[string]*string `json:"geometries"`
}

func (r *record) feature() (*feature.MapFeature, error) {
	f := feature.NewMapFeature()
	if r.ID != nil {
		id, err := r.ID.Int64()
		if err != nil {
			return nil, errs.Encodingf("invalid feature id %q", r.ID.String())
		}
		f.SetID(id)
	}

	for name, value := range r.Fields {
		if value == nil {
			f.SetFieldNull(name)
			continue
		}
		f.SetField(name, value)
	}

	if r.Geometry != nil {
		g, err := parseGeometry(*r.Geometry)
		if err != nil {
			return nil, err
		}
		f.SetGeometry("", g)
	}
	for name, text := range r.Geometries {
		if text == nil {
			continue
		}
		g, err := parseGeometry(*text)
		if err != nil {
			return nil, err
		}
		f.SetGeometry(name, g)
	}
	return f, nil
}

// parseGeometry 解析 WKT/EWKT，EWKT 中的 SRID 不参与输出，以列的 SRID 为准
func parseGeometry(text string) (geom.Geometry, error) {
	g, _, err := geom.ParseWKT(text)
	if err != nil {
		return nil, err
	}
	return g, nil
}
