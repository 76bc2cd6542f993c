package schema

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hatlonely/pgdump/geom"
	"github.com/hatlonely/pgdump/literal"
	"github.com/hatlonely/pgdump/quote"
)

// Column 属性列
type Column struct {
	// Name 输出到 SQL 中的列名
	Name string
	// Source 要素上的字段名，为空时与 Name 相同
	Source    string
	Type      literal.FieldType
	SubType   literal.SubType
	Width     int
	Precision int
	NotNull   bool
	Unique    bool
	// Default 原始 SQL 默认值表达式
	Default string
}

// SourceName 要素上的字段名
func (c *Column) SourceName() string {
	if c.Source != "" {
		return c.Source
	}
	return c.Name
}

// Spec 格式化值所需的列信息
func (c *Column) Spec() literal.ColumnSpec {
	return literal.ColumnSpec{
		Name:      c.Name,
		Type:      c.Type,
		SubType:   c.SubType,
		Width:     c.Width,
		Precision: c.Precision,
	}
}

// SQLType 列的 PostgreSQL 类型
func (c *Column) SQLType() string {
	switch c.Type {
	case literal.FieldString:
		switch c.SubType {
		case literal.SubJSON:
			return "JSON"
		case literal.SubUUID:
			return "UUID"
		}
		if c.Width > 0 {
			return fmt.Sprintf("VARCHAR(%d)", c.Width)
		}
		return "VARCHAR"
	case literal.FieldInteger:
		switch c.SubType {
		case literal.SubBoolean:
			return "BOOLEAN"
		case literal.SubInt16:
			return "SMALLINT"
		}
		return "INTEGER"
	case literal.FieldInteger64:
		if c.SubType == literal.SubBoolean {
			return "BOOLEAN"
		}
		return "INT8"
	case literal.FieldReal:
		if c.Width > 0 {
			return fmt.Sprintf("NUMERIC(%d,%d)", c.Width, c.Precision)
		}
		if c.SubType == literal.SubFloat32 {
			return "REAL"
		}
		return "FLOAT8"
	case literal.FieldDate:
		return "date"
	case literal.FieldTime:
		return "time"
	case literal.FieldDateTime:
		return "timestamp with time zone"
	case literal.FieldBinary:
		return "bytea"
	case literal.FieldIntegerList:
		if c.SubType == literal.SubBoolean {
			return "BOOLEAN[]"
		}
		return "INTEGER[]"
	case literal.FieldInteger64List:
		return "INT8[]"
	case literal.FieldRealList:
		return "FLOAT8[]"
	case literal.FieldStringList:
		return "varchar[]"
	default:
		return "VARCHAR"
	}
}

// Definition 列定义 "name" TYPE[ NOT NULL][ UNIQUE][ DEFAULT expr]
func (c *Column) Definition() string {
	parts := []string{quote.Ident(c.Name), c.SQLType()}
	if c.NotNull {
		parts = append(parts, "NOT NULL")
	}
	if c.Unique {
		parts = append(parts, "UNIQUE")
	}
	if c.Default != "" {
		parts = append(parts, "DEFAULT "+c.Default)
	}
	return strings.Join(parts, " ")
}

// Storage 几何列的存储类型
type Storage string

const (
	StorageGeometry  Storage = "geometry"
	StorageGeography Storage = "geography"
)

// GeometryColumn 几何列
type GeometryColumn struct {
	Name string
	// Source 要素上的几何名，为空表示默认几何
	Source  string
	Type    geom.Type
	Dim     geom.Dim
	SRID    int
	NotNull bool
	Storage Storage
	// EWKT 为 true 时 INSERT 使用 EWKT 文本而不是十六进制 EWKB
	EWKT bool
}

// EffectiveDim 列的维度，未指定时为 XY
func (g *GeometryColumn) EffectiveDim() geom.Dim {
	if g.Dim == geom.DimAuto {
		return geom.DimXY
	}
	return g.Dim
}

// RegisteredType AddGeometryColumn 的类型参数，XYM 追加 M 后缀
func (g *GeometryColumn) RegisteredType() string {
	name := g.Type.Name()
	if g.EffectiveDim() == geom.DimXYM {
		name += "M"
	}
	return name
}

// GeographyType geography(TYPE[Z|M|ZM][,srid])
func (g *GeometryColumn) GeographyType() string {
	name := g.Type.Name()
	switch g.EffectiveDim() {
	case geom.DimXYZ:
		name += "Z"
	case geom.DimXYM:
		name += "M"
	case geom.DimXYZM:
		name += "ZM"
	}
	if g.SRID > 0 {
		name += "," + strconv.Itoa(g.SRID)
	}
	return "geography(" + name + ")"
}

// Definition geography 列的内联定义
func (g *GeometryColumn) Definition() string {
	def := quote.Ident(g.Name) + " " + g.GeographyType()
	if g.NotNull {
		def += " NOT NULL"
	}
	return def
}
