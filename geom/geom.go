package geom

import (
	"strings"

	"github.com/pkg/errors"
)

// Type 几何类型编码，取值与 WKB 基础类型码一致
type Type int

const (
	TypeGeometry           Type = 0
	TypePoint              Type = 1
	TypeLineString         Type = 2
	TypePolygon            Type = 3
	TypeMultiPoint         Type = 4
	TypeMultiLineString    Type = 5
	TypeMultiPolygon       Type = 6
	TypeGeometryCollection Type = 7
)

var typeNames = map[Type]string{
	TypeGeometry:           "GEOMETRY",
	TypePoint:              "POINT",
	TypeLineString:         "LINESTRING",
	TypePolygon:            "POLYGON",
	TypeMultiPoint:         "MULTIPOINT",
	TypeMultiLineString:    "MULTILINESTRING",
	TypeMultiPolygon:       "MULTIPOLYGON",
	TypeGeometryCollection: "GEOMETRYCOLLECTION",
}

// Name 返回 PostGIS 使用的大写类型名
func (t Type) Name() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "GEOMETRY"
}

func (t Type) String() string {
	return t.Name()
}

// Valid 判断是否为已知类型
func (t Type) Valid() bool {
	_, ok := typeNames[t]
	return ok
}

// Dim 坐标维度
type Dim int

const (
	// DimAuto 未指定，由几何自身决定
	DimAuto Dim = iota
	DimXY
	DimXYZ
	DimXYM
	DimXYZM
)

func (d Dim) HasZ() bool {
	return d == DimXYZ || d == DimXYZM
}

func (d Dim) HasM() bool {
	return d == DimXYM || d == DimXYZM
}

// Count 每个坐标的分量个数，AddGeometryColumn 的 dimension 参数
func (d Dim) Count() int {
	switch d {
	case DimXYZ, DimXYM:
		return 3
	case DimXYZM:
		return 4
	default:
		return 2
	}
}

func (d Dim) String() string {
	switch d {
	case DimXY:
		return "XY"
	case DimXYZ:
		return "XYZ"
	case DimXYM:
		return "XYM"
	case DimXYZM:
		return "XYZM"
	default:
		return "AUTO"
	}
}

// ParseDim 解析 DIM 选项，支持 2/3/4 与 XY/XYZ/XYM/XYZM
func ParseDim(s string) (Dim, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "AUTO":
		return DimAuto, nil
	case "2", "XY":
		return DimXY, nil
	case "3", "XYZ":
		return DimXYZ, nil
	case "XYM":
		return DimXYM, nil
	case "4", "XYZM":
		return DimXYZM, nil
	default:
		return DimAuto, errors.Errorf("invalid dimension %q", s)
	}
}

// UnmarshalText 实现 encoding.TextUnmarshaler，用于选项绑定
func (d *Dim) UnmarshalText(text []byte) error {
	v, err := ParseDim(string(text))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// DimOf 由是否含 Z/M 得到维度
func DimOf(hasZ, hasM bool) Dim {
	switch {
	case hasZ && hasM:
		return DimXYZM
	case hasZ:
		return DimXYZ
	case hasM:
		return DimXYM
	default:
		return DimXY
	}
}

// ParseTypeName 解析类型名，例如 POINT、POLYGONZ、POINT25D、MULTIPOLYGON ZM、GEOMETRYM
func ParseTypeName(s string) (Type, Dim, error) {
	name := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
	dim := DimAuto
	switch {
	case strings.HasSuffix(name, "25D"):
		name, dim = strings.TrimSuffix(name, "25D"), DimXYZ
	case strings.HasSuffix(name, "ZM"):
		name, dim = strings.TrimSuffix(name, "ZM"), DimXYZM
	case strings.HasSuffix(name, "Z"):
		name, dim = strings.TrimSuffix(name, "Z"), DimXYZ
	case strings.HasSuffix(name, "M") && name != "M":
		name, dim = strings.TrimSuffix(name, "M"), DimXYM
	}
	if name == "UNKNOWN" {
		return TypeGeometry, dim, nil
	}
	for t, n := range typeNames {
		if n == name {
			return t, dim, nil
		}
	}
	return TypeGeometry, DimAuto, errors.Errorf("unknown geometry type %q", s)
}

// Geometry 几何对象
type Geometry interface {
	Type() Type
	// Layout 几何自身携带的维度
	Layout() Dim
	IsEmpty() bool
}

// Coord 坐标，未使用的分量为 0
type Coord struct {
	X, Y, Z, M float64
}

type Point struct {
	Dim   Dim
	Coord Coord
	Empty bool
}

type LineString struct {
	Dim    Dim
	Coords []Coord
}

type Polygon struct {
	Dim   Dim
	Rings [][]Coord
}

type MultiPoint struct {
	Dim    Dim
	Points []*Point
}

type MultiLineString struct {
	Dim         Dim
	LineStrings []*LineString
}

type MultiPolygon struct {
	Dim      Dim
	Polygons []*Polygon
}

type GeometryCollection struct {
	Dim        Dim
	Geometries []Geometry
}

// NewPoint 创建二维点
func NewPoint(x, y float64) *Point {
	return &Point{Dim: DimXY, Coord: Coord{X: x, Y: y}}
}

// NewPointZ 创建三维点
func NewPointZ(x, y, z float64) *Point {
	return &Point{Dim: DimXYZ, Coord: Coord{X: x, Y: y, Z: z}}
}

// NewPointZM 创建四维点
func NewPointZM(x, y, z, m float64) *Point {
	return &Point{Dim: DimXYZM, Coord: Coord{X: x, Y: y, Z: z, M: m}}
}

func (p *Point) Type() Type { return TypePoint }
func (g *LineString) Type() Type { return TypeLineString }
func (g *Polygon) Type() Type { return TypePolygon }
func (g *MultiPoint) Type() Type { return TypeMultiPoint }
func (g *MultiLineString) Type() Type { return TypeMultiLineString }
func (g *MultiPolygon) Type() Type { return TypeMultiPolygon }
func (g *GeometryCollection) Type() Type { return TypeGeometryCollection }
func (p *Point) Layout() Dim { return layout(p.Dim) }
func (g *LineString) Layout() Dim { return layout(g.Dim) }
func (g *Polygon) Layout() Dim { return layout(g.Dim) }
func (g *MultiPoint) Layout() Dim { return layout(g.Dim) }
func (g *MultiLineString) Layout() Dim { return layout(g.Dim) }
func (g *MultiPolygon) Layout() Dim { return layout(g.Dim) }
func (g *GeometryCollection) Layout() Dim { return layout(g.Dim) }
func (p *Point) IsEmpty() bool { return p.Empty }
func (g *LineString) IsEmpty() bool { return len(g.Coords) == 0 }
func (g *Polygon) IsEmpty() bool { return len(g.Rings) == 0 }
func (g *MultiPoint) IsEmpty() bool { return len(g.Points) == 0 }
func (g *MultiLineString) IsEmpty() bool { return len(g.LineStrings) == 0 }
func (g *MultiPolygon) IsEmpty() bool { return len(g.Polygons) == 0 }
func (g *GeometryCollection) IsEmpty() bool { return len(g.Geometries) == 0 }

func layout(d Dim) Dim {
	if d == DimAuto {
		return DimXY
	}
	return d
}
