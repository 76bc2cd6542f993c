package geom

import (
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"github.com/pkg/errors"

	"github.com/hatlonely/pgdump/errs"
)

// EncodeEWKT 输出 SRID=<srid>;<WKT>，WKT 带显式 Z/M/ZM 标记
func EncodeEWKT(g Geometry, dim Dim, srid int) (string, error) {
	wkt, err := FormatWKT(g, dim)
	if err != nil {
		return "", err
	}
	return "SRID=" + strconv.Itoa(srid) + ";" + wkt, nil
}

// FormatWKT 输出 ISO WKT，dim 为 DimAuto 时使用几何自身维度
func FormatWKT(g Geometry, dim Dim) (string, error) {
	if g == nil {
		return "", errs.Encodingf("nil geometry")
	}
	if dim == DimAuto {
		dim = g.Layout()
	}
	w := &wktWriter{dim: dim}
	if err := w.write(g); err != nil {
		return "", err
	}
	return w.sb.String(), nil
}

type wktWriter struct {
	sb  strings.Builder
	dim Dim
}

func (w *wktWriter) tag(t Type) {
	w.sb.WriteString(t.Name())
	switch w.dim {
	case DimXYZ:
		w.sb.WriteString(" Z")
	case DimXYM:
		w.sb.WriteString(" M")
	case DimXYZM:
		w.sb.WriteString(" ZM")
	}
}

func (w *wktWriter) number(v float64) {
	w.sb.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
}

func (w *wktWriter) coord(c Coord) {
	w.number(c.X)
	w.sb.WriteByte(' ')
	w.number(c.Y)
	if w.dim.HasZ() {
		w.sb.WriteByte(' ')
		w.number(c.Z)
	}
	if w.dim.HasM() {
		w.sb.WriteByte(' ')
		w.number(c.M)
	}
}

func (w *wktWriter) coords(cs []Coord) {
	w.sb.WriteByte('(')
	for i, c := range cs {
		if i > 0 {
			w.sb.WriteByte(',')
		}
		w.coord(c)
	}
	w.sb.WriteByte(')')
}

func (w *wktWriter) rings(rings [][]Coord) {
	w.sb.WriteByte('(')
	for i, ring := range rings {
		if i > 0 {
			w.sb.WriteByte(',')
		}
		w.coords(ring)
	}
	w.sb.WriteByte(')')
}

func (w *wktWriter) write(g Geometry) error {
	w.tag(g.Type())
	if g.IsEmpty() {
		w.sb.WriteString(" EMPTY")
		return nil
	}
	w.sb.WriteByte(' ')
	switch v := g.(type) {
	case *Point:
		w.coords([]Coord{v.Coord})
	case *LineString:
		w.coords(v.Coords)
	case *Polygon:
		w.rings(v.Rings)
	case *MultiPoint:
		w.sb.WriteByte('(')
		for i, p := range v.Points {
			if i > 0 {
				w.sb.WriteByte(',')
			}
			if p == nil || p.Empty {
				w.sb.WriteString("EMPTY")
				continue
			}
			w.coords([]Coord{p.Coord})
		}
		w.sb.WriteByte(')')
	case *MultiLineString:
		w.sb.WriteByte('(')
		for i, l := range v.LineStrings {
			if i > 0 {
				w.sb.WriteByte(',')
			}
			if l == nil || l.IsEmpty() {
				w.sb.WriteString("EMPTY")
				continue
			}
			w.coords(l.Coords)
		}
		w.sb.WriteByte(')')
	case *MultiPolygon:
		w.sb.WriteByte('(')
		for i, p := range v.Polygons {
			if i > 0 {
				w.sb.WriteByte(',')
			}
			if p == nil || p.IsEmpty() {
				w.sb.WriteString("EMPTY")
				continue
			}
			w.rings(p.Rings)
		}
		w.sb.WriteByte(')')
	case *GeometryCollection:
		w.sb.WriteByte('(')
		for i, sub := range v.Geometries {
			if sub == nil {
				return errs.Encodingf("nil geometry in collection")
			}
			if i > 0 {
				w.sb.WriteByte(',')
			}
			if err := w.write(sub); err != nil {
				return err
			}
		}
		w.sb.WriteByte(')')
	default:
		return errs.Encodingf("unsupported geometry type %T", g)
	}
	return nil
}

// wktNode 通用的 WKT 语法树，类型相关的结构在 build 阶段校验
type wktNode struct {
	Kind  string   `@Kind`
	Tag   string   `@Tag?`
	Empty bool     `( @Empty`
	Body  *wktList `| @@ )`
}

type wktList struct {
	Items []*wktItem `"(" @@ ( "," @@ )* ")"`
}

type wktItem struct {
	Node  *wktNode  `  @@`
	Empty bool      `| @Empty`
	List  *wktList  `| @@`
	Coord []float64 `| @Number+`
}

var wktLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Kind", Pattern: `(?i)\b(GEOMETRYCOLLECTION|MULTIPOLYGON|MULTILINESTRING|MULTIPOINT|POLYGON|LINESTRING|POINT)\b`},
	{Name: "Empty", Pattern: `(?i)\bEMPTY\b`},
	{Name: "Tag", Pattern: `(?i)\b(ZM|Z|M)\b`},
	{Name: "Number", Pattern: `[-+]?(\d+\.?\d*|\.\d+)([eE][-+]?\d+)?`},
	{Name: "Punct", Pattern: `[(),]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var wktParser = participle.MustBuild[wktNode](
	participle.Lexer(wktLexer),
	participle.Elide("Whitespace"),
)

// ParseWKT 解析 WKT，支持 EMPTY、Z/M/ZM 标记与嵌套集合；接受 SRID=n; 前缀并返回该 SRID
func ParseWKT(text string) (Geometry, int, error) {
	srid := 0
	text = strings.TrimSpace(text)
	if len(text) > 5 && strings.EqualFold(text[:5], "SRID=") {
		idx := strings.IndexByte(text, ';')
		if idx < 0 {
			return nil, 0, errs.Encodingf("invalid EWKT %q", text)
		}
		v, err := strconv.Atoi(text[5:idx])
		if err != nil {
			return nil, 0, errs.Encodingf("invalid SRID in %q", text)
		}
		srid, text = v, text[idx+1:]
	}
	node, err := wktParser.ParseString("", text)
	if err != nil {
		return nil, 0, errors.Wrapf(errs.ErrEncoding, "parse WKT %q: %v", text, err)
	}
	g, err := node.build(DimAuto)
	if err != nil {
		return nil, 0, err
	}
	return g, srid, nil
}

func tagDim(tag string) Dim {
	switch strings.ToUpper(tag) {
	case "Z":
		return DimXYZ
	case "M":
		return DimXYM
	case "ZM":
		return DimXYZM
	default:
		return DimAuto
	}
}

// firstCoord 找到第一个坐标，用于推断未标记的维度
func (l *wktList) firstCoord() []float64 {
	for _, item := range l.Items {
		if len(item.Coord) > 0 {
			return item.Coord
		}
		if item.List != nil {
			if c := item.List.firstCoord(); c != nil {
				return c
			}
		}
	}
	return nil
}

func (n *wktNode) build(parent Dim) (Geometry, error) {
	kind := strings.ToUpper(n.Kind)
	dim := tagDim(n.Tag)
	if dim == DimAuto {
		dim = parent
	}
	if dim == DimAuto && n.Body != nil {
		switch len(n.Body.firstCoord()) {
		case 3:
			dim = DimXYZ
		case 4:
			dim = DimXYZM
		}
	}
	if dim == DimAuto {
		dim = DimXY
	}
	t, _, err := ParseTypeName(kind)
	if err != nil {
		return nil, errs.Encodingf("unknown geometry kind %q", n.Kind)
	}

	var items []*wktItem
	if n.Body != nil {
		items = n.Body.Items
	}
	switch t {
	case TypePoint:
		if n.Empty {
			return &Point{Dim: dim, Empty: true}, nil
		}
		if len(items) != 1 {
			return nil, errs.Encodingf("point must have exactly one coordinate")
		}
		c, err := toCoord(items[0], dim)
		if err != nil {
			return nil, err
		}
		return &Point{Dim: dim, Coord: c}, nil
	case TypeLineString:
		cs, err := toCoords(items, dim)
		if err != nil {
			return nil, err
		}
		return &LineString{Dim: dim, Coords: cs}, nil
	case TypePolygon:
		rings, err := toRings(items, dim)
		if err != nil {
			return nil, err
		}
		return &Polygon{Dim: dim, Rings: rings}, nil
	case TypeMultiPoint:
		mp := &MultiPoint{Dim: dim}
		for _, item := range items {
			switch {
			case item.Empty:
				mp.Points = append(mp.Points, &Point{Dim: dim, Empty: true})
			case item.List != nil && len(item.List.Items) == 1:
				c, err := toCoord(item.List.Items[0], dim)
				if err != nil {
					return nil, err
				}
				mp.Points = append(mp.Points, &Point{Dim: dim, Coord: c})
			default:
				c, err := toCoord(item, dim)
				if err != nil {
					return nil, err
				}
				mp.Points = append(mp.Points, &Point{Dim: dim, Coord: c})
			}
		}
		return mp, nil
	case TypeMultiLineString:
		ml := &MultiLineString{Dim: dim}
		for _, item := range items {
			if item.Empty {
				ml.LineStrings = append(ml.LineStrings, &LineString{Dim: dim})
				continue
			}
			if item.List == nil {
				return nil, errs.Encodingf("multilinestring member must be a coordinate list")
			}
			cs, err := toCoords(item.List.Items, dim)
			if err != nil {
				return nil, err
			}
			ml.LineStrings = append(ml.LineStrings, &LineString{Dim: dim, Coords: cs})
		}
		return ml, nil
	case TypeMultiPolygon:
		mp := &MultiPolygon{Dim: dim}
		for _, item := range items {
			if item.Empty {
				mp.Polygons = append(mp.Polygons, &Polygon{Dim: dim})
				continue
			}
			if item.List == nil {
				return nil, errs.Encodingf("multipolygon member must be a ring list")
			}
			rings, err := toRings(item.List.Items, dim)
			if err != nil {
				return nil, err
			}
			mp.Polygons = append(mp.Polygons, &Polygon{Dim: dim, Rings: rings})
		}
		return mp, nil
	case TypeGeometryCollection:
		gc := &GeometryCollection{Dim: dim}
		for _, item := range items {
			if item.Node == nil {
				return nil, errs.Encodingf("geometrycollection member must be a tagged geometry")
			}
			sub, err := item.Node.build(tagDim(n.Tag))
			if err != nil {
				return nil, err
			}
			gc.Geometries = append(gc.Geometries, sub)
		}
		if n.Tag == "" && parent == DimAuto && len(gc.Geometries) > 0 {
			gc.Dim = gc.Geometries[0].Layout()
		}
		return gc, nil
	}
	return nil, errs.Encodingf("unsupported geometry kind %q", n.Kind)
}

func toCoord(item *wktItem, dim Dim) (Coord, error) {
	vs := item.Coord
	if len(vs) != dim.Count() {
		return Coord{}, errs.Encodingf("expected %d ordinates, got %d", dim.Count(), len(vs))
	}
	c := Coord{X: vs[0], Y: vs[1]}
	switch dim {
	case DimXYZ:
		c.Z = vs[2]
	case DimXYM:
		c.M = vs[2]
	case DimXYZM:
		c.Z, c.M = vs[2], vs[3]
	}
	return c, nil
}

func toCoords(items []*wktItem, dim Dim) ([]Coord, error) {
	cs := make([]Coord, 0, len(items))
	for _, item := range items {
		c, err := toCoord(item, dim)
		if err != nil {
			return nil, err
		}
		cs = append(cs, c)
	}
	return cs, nil
}

func toRings(items []*wktItem, dim Dim) ([][]Coord, error) {
	rings := make([][]Coord, 0, len(items))
	for _, item := range items {
		if item.List == nil {
			return nil, errs.Encodingf("ring must be a coordinate list")
		}
		cs, err := toCoords(item.List.Items, dim)
		if err != nil {
			return nil, err
		}
		rings = append(rings, cs)
	}
	return rings, nil
}
