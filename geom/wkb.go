package geom

import (
	"encoding/binary"
	"encoding/hex"
	"math"
	"strings"

	"github.com/hatlonely/pgdump/errs"
)

// Variant 目标 PostGIS 版本对应的 EWKB 方言
type Variant int

const (
	// VariantPostGIS2 带 M 的几何使用 ISO 类型码（+1000 Z，+2000 M）
	VariantPostGIS2 Variant = iota
	// VariantPostGIS1 带 M 的几何使用 0x40000000 标志位
	VariantPostGIS1
)

const (
	wkbZFlag    uint32 = 0x80000000
	wkbMFlag    uint32 = 0x40000000
	wkbSRIDFlag uint32 = 0x20000000
)

// emptyOrdinate 空点的坐标分量，固定为 quiet NaN 0x7FF8000000000000
var emptyOrdinate = math.Float64frombits(0x7FF8000000000000)

// Form 几何在 INSERT 中的表示形式
type Form int

const (
	FormWKBHex Form = iota
	FormEWKT
)

// Encode 按指定维度、SRID、形式与方言编码几何；dim 为 DimAuto 时使用几何自身维度
func Encode(g Geometry, dim Dim, srid int, form Form, variant Variant) (string, error) {
	if form == FormEWKT {
		return EncodeEWKT(g, dim, srid)
	}
	return EncodeHex(g, dim, srid, variant)
}

// EncodeHex 编码为大写十六进制 EWKB
func EncodeHex(g Geometry, dim Dim, srid int, variant Variant) (string, error) {
	buf, err := EncodeWKB(g, dim, srid, variant)
	if err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(buf)), nil
}

// EncodeWKB 编码为小端 EWKB，srid 大于 0 时写入 SRID
func EncodeWKB(g Geometry, dim Dim, srid int, variant Variant) ([]byte, error) {
	if g == nil {
		return nil, errs.Encodingf("nil geometry")
	}
	if dim == DimAuto {
		dim = g.Layout()
	}
	e := &wkbEncoder{dim: dim, variant: variant}
	if err := e.write(g, srid); err != nil {
		return nil, err
	}
	return e.buf, nil
}

type wkbEncoder struct {
	buf     []byte
	dim     Dim
	variant Variant
}

func (e *wkbEncoder) typeCode(t Type, srid int) uint32 {
	code := uint32(t)
	switch {
	case e.dim.HasM() && e.variant == VariantPostGIS2:
		code += 2000
		if e.dim.HasZ() {
			code += 1000
		}
	case e.dim.HasM():
		code |= wkbMFlag
		if e.dim.HasZ() {
			code |= wkbZFlag
		}
	case e.dim.HasZ():
		code |= wkbZFlag
	}
	if srid > 0 {
		code |= wkbSRIDFlag
	}
	return code
}

func (e *wkbEncoder) header(t Type, srid int) {
	e.buf = append(e.buf, 0x01)
	e.buf = binary.LittleEndian.AppendUint32(e.buf, e.typeCode(t, srid))
	if srid > 0 {
		e.buf = binary.LittleEndian.AppendUint32(e.buf, uint32(srid))
	}
}

func (e *wkbEncoder) count(n int) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, uint32(n))
}

func (e *wkbEncoder) float(v float64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, math.Float64bits(v))
}

func (e *wkbEncoder) coord(c Coord) {
	e.float(c.X)
	e.float(c.Y)
	if e.dim.HasZ() {
		e.float(c.Z)
	}
	if e.dim.HasM() {
		e.float(c.M)
	}
}

func (e *wkbEncoder) coords(cs []Coord) {
	e.count(len(cs))
	for _, c := range cs {
		e.coord(c)
	}
}

func (e *wkbEncoder) write(g Geometry, srid int) error {
	switch v := g.(type) {
	case *Point:
		e.header(TypePoint, srid)
		if v.Empty {
			e.coord(Coord{X: emptyOrdinate, Y: emptyOrdinate, Z: emptyOrdinate, M: emptyOrdinate})
		} else {
			e.coord(v.Coord)
		}
	case *LineString:
		e.header(TypeLineString, srid)
		e.coords(v.Coords)
	case *Polygon:
		e.header(TypePolygon, srid)
		e.count(len(v.Rings))
		for _, ring := range v.Rings {
			e.coords(ring)
		}
	case *MultiPoint:
		e.header(TypeMultiPoint, srid)
		e.count(len(v.Points))
		for _, p := range v.Points {
			if p == nil {
				return errs.Encodingf("nil point in multipoint")
			}
			if err := e.write(p, 0); err != nil {
				return err
			}
		}
	case *MultiLineString:
		e.header(TypeMultiLineString, srid)
		e.count(len(v.LineStrings))
		for _, l := range v.LineStrings {
			if l == nil {
				return errs.Encodingf("nil linestring in multilinestring")
			}
			if err := e.write(l, 0); err != nil {
				return err
			}
		}
	case *MultiPolygon:
		e.header(TypeMultiPolygon, srid)
		e.count(len(v.Polygons))
		for _, p := range v.Polygons {
			if p == nil {
				return errs.Encodingf("nil polygon in multipolygon")
			}
			if err := e.write(p, 0); err != nil {
				return err
			}
		}
	case *GeometryCollection:
		e.header(TypeGeometryCollection, srid)
		e.count(len(v.Geometries))
		for _, sub := range v.Geometries {
			if sub == nil {
				return errs.Encodingf("nil geometry in collection")
			}
			if err := e.write(sub, 0); err != nil {
				return err
			}
		}
	default:
		return errs.Encodingf("unsupported geometry type %T", g)
	}
	return nil
}
