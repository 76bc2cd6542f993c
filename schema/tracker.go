package schema

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/hatlonely/pgdump/errs"
	"github.com/hatlonely/pgdump/literal"
	"github.com/hatlonely/pgdump/log"
	"github.com/hatlonely/pgdump/log/logger"
	"github.com/hatlonely/pgdump/quote"
)

// PKKind 主键的生成方式
type PKKind string

const (
	// PKSerial SERIAL/BIGSERIAL，缺省时由序列生成，也接受显式值
	PKSerial PKKind = "serial"
	// PKIdentity GENERATED ALWAYS AS IDENTITY，只能由数据库生成
	PKIdentity PKKind = "identity"
	// PKInteger 普通整数，必须显式提供
	PKInteger PKKind = "integer"
)

// IndexMethod 空间索引方法
type IndexMethod string

const (
	IndexGIST   IndexMethod = "GIST"
	IndexSPGIST IndexMethod = "SPGIST"
	IndexBRIN   IndexMethod = "BRIN"
	IndexNone   IndexMethod = "NONE"
)

// Phase 表结构的阶段
type Phase int

const (
	// PhaseOpen 尚未写出 DDL，新增列合并到 CREATE TABLE
	PhaseOpen Phase = iota
	// PhaseFinalized DDL 已写出，新增列通过 ALTER TABLE 追加
	PhaseFinalized
)

func (p Phase) String() string {
	if p == PhaseFinalized {
		return "finalized"
	}
	return "open"
}

// LineWriter 按行写出 SQL
type LineWriter interface {
	WriteLine(line string) error
}

// TableDef 表的初始定义
type TableDef struct {
	Schema string
	Name   string
	PK     string
	PKKind PKKind
	// PK64 主键使用 64 位整数
	PK64 bool
	// PostGIS1 兼容 PostGIS 1.x：未指定 SRID 时为 -1
	PostGIS1 bool
	// Compact 创建时带隐式几何列的表使用单空格分隔的 CREATE TABLE
	Compact      bool
	SpatialIndex IndexMethod
	// Description 创建时给定的描述不可再修改
	Description string
	// SkipCreate 为 true 时不输出 CREATE TABLE 与几何列注册
	SkipCreate bool
	Unlogged   bool
}

// Table 表结构
type Table struct {
	TableDef
	Columns         []*Column
	GeometryColumns []*GeometryColumn
	// FIDField 与主键同名的整数属性列，其值即为要素 ID
	FIDField *Column
	// Version 每次结构变化加一，用于判断 COPY 块是否仍然有效
	Version int
}

// QualifiedName "schema"."table"
func (t *Table) QualifiedName() string {
	return quote.Table(t.Schema, t.Name)
}

// Column 按输出列名查找属性列，大小写不敏感
func (t *Table) Column(name string) *Column {
	for _, col := range t.Columns {
		if strings.EqualFold(col.Name, name) {
			return col
		}
	}
	return nil
}

// GeometryColumn 按输出列名查找几何列，大小写不敏感
func (t *Table) GeometryColumn(name string) *GeometryColumn {
	for _, col := range t.GeometryColumns {
		if strings.EqualFold(col.Name, name) {
			return col
		}
	}
	return nil
}

// IsFIDName 判断列名是否与主键同名
func (t *Table) IsFIDName(name string) bool {
	return strings.EqualFold(name, t.PK)
}

// Tracker 跟踪一张表的结构变化并输出 DDL
type Tracker struct {
	table             *Table
	out               LineWriter
	phase             Phase
	log               logger.Logger
	description       string
	descriptionFrozen bool
}

// NewTracker 声明一张表，DDL 在 Finalize 时输出
func NewTracker(def TableDef, out LineWriter, log logger.Logger) *Tracker {
	if def.PK == "" {
		def.PK = "ogc_fid"
	}
	if def.PKKind == "" {
		def.PKKind = PKSerial
	}
	if def.SpatialIndex == "" {
		def.SpatialIndex = IndexGIST
	}
	return &Tracker{
		table:             &Table{TableDef: def},
		out:               out,
		log:               log,
		description:       def.Description,
		descriptionFrozen: def.Description != "",
	}
}

func (t *Tracker) logger() logger.Logger {
	if t.log == nil {
		return log.Default()
	}
	return t.log
}

func (t *Tracker) Phase() Phase {
	return t.phase
}

func (t *Tracker) Table() *Table {
	return t.table
}

// AddColumn 新增属性列
// 与主键同名的整数列作为 FIDField 记录，不单独建列；非整数类型返回 ErrSchema
func (t *Tracker) AddColumn(col *Column) error {
	if col == nil || col.Name == "" {
		return errs.Schemaf("column name is empty")
	}
	tbl := t.table

	if tbl.IsFIDName(col.Name) {
		if !col.Type.IsInteger() {
			return errs.Schemaf("column %q has the name of the primary key but type %s", col.Name, col.Type)
		}
		if tbl.FIDField != nil {
			return errs.Schemaf("primary key field %q already exists", col.Name)
		}
		tbl.FIDField = col
		return nil
	}
	if tbl.Column(col.Name) != nil || tbl.GeometryColumn(col.Name) != nil {
		return errs.Schemaf("column %q already exists", col.Name)
	}

	col.Default = literal.NormalizeDefault(col.Default, col.Type)

	if t.phase == PhaseFinalized {
		line := "ALTER TABLE " + tbl.QualifiedName() + " ADD COLUMN " + col.Definition() + ";"
		if err := t.out.WriteLine(line); err != nil {
			return err
		}
	}
	tbl.Columns = append(tbl.Columns, col)
	tbl.Version++
	return nil
}

// AddGeometryColumn 新增几何列，Finalize 之后立即输出注册语句、NOT NULL 与空间索引
func (t *Tracker) AddGeometryColumn(col *GeometryColumn) error {
	if col == nil || col.Name == "" {
		return errs.Schemaf("geometry column name is empty")
	}
	tbl := t.table
	if tbl.IsFIDName(col.Name) || tbl.Column(col.Name) != nil || tbl.GeometryColumn(col.Name) != nil {
		return errs.Schemaf("column %q already exists", col.Name)
	}
	if !col.Type.Valid() {
		return errs.Schemaf("geometry column %q has an invalid type", col.Name)
	}
	if col.Storage == "" {
		col.Storage = StorageGeometry
	}

	if t.phase == PhaseFinalized {
		var lines []string
		if col.Storage == StorageGeography {
			lines = append(lines, "ALTER TABLE "+tbl.QualifiedName()+" ADD COLUMN "+col.Definition()+";")
			lines = append(lines, t.indexLines(col)...)
		} else {
			lines = t.registrationLines(col)
		}
		if err := t.writeLines(lines); err != nil {
			return err
		}
	}
	tbl.GeometryColumns = append(tbl.GeometryColumns, col)
	tbl.Version++
	return nil
}

// SetDescription 设置表描述
// 创建时已给定描述则忽略；Finalize 之前只记录最后一次的值；之后每次调用立即输出 COMMENT
func (t *Tracker) SetDescription(text string) error {
	if t.descriptionFrozen {
		t.logger().Warn("description set at creation cannot be changed", "table", t.table.Name)
		return nil
	}
	t.description = text
	if t.phase == PhaseFinalized {
		return t.out.WriteLine(t.commentLine())
	}
	return nil
}

// Description 当前的表描述
func (t *Tracker) Description() string {
	return t.description
}

// Finalize 输出 CREATE TABLE、几何列注册与表注释，之后结构变化通过 ALTER TABLE 追加
func (t *Tracker) Finalize() error {
	if t.phase == PhaseFinalized {
		return nil
	}
	tbl := t.table

	var lines []string
	if !tbl.SkipCreate {
		lines = append(lines, t.createTableLine())
		for _, col := range tbl.GeometryColumns {
			if col.Storage == StorageGeography {
				lines = append(lines, t.indexLines(col)...)
			} else {
				lines = append(lines, t.registrationLines(col)...)
			}
		}
	}
	if t.description != "" {
		lines = append(lines, t.commentLine())
	}
	if err := t.writeLines(lines); err != nil {
		return errors.WithMessagef(err, "finalize table %s", tbl.Name)
	}
	t.phase = PhaseFinalized
	return nil
}

func (t *Tracker) writeLines(lines []string) error {
	for _, line := range lines {
		if err := t.out.WriteLine(line); err != nil {
			return err
		}
	}
	return nil
}

// pkDefinition 主键列定义
func (t *Tracker) pkDefinition() string {
	tbl := t.table
	var typ string
	switch tbl.PKKind {
	case PKIdentity:
		typ = "INTEGER GENERATED ALWAYS AS IDENTITY"
		if tbl.PK64 {
			typ = "INT8 GENERATED ALWAYS AS IDENTITY"
		}
	case PKInteger:
		typ = "INTEGER"
		if tbl.PK64 || (tbl.FIDField != nil && tbl.FIDField.Type == literal.FieldInteger64) {
			typ = "INT8"
		}
	default:
		typ = "SERIAL"
		if tbl.PK64 || (tbl.FIDField != nil && tbl.FIDField.Type == literal.FieldInteger64) {
			typ = "BIGSERIAL"
		}
	}
	return quote.Ident(tbl.PK) + " " + typ
}

func (t *Tracker) createTableLine() string {
	tbl := t.table

	defs := []string{t.pkDefinition()}
	for _, col := range tbl.GeometryColumns {
		if col.Storage == StorageGeography {
			defs = append(defs, col.Definition())
		}
	}
	for _, col := range tbl.Columns {
		defs = append(defs, col.Definition())
	}
	pkName, _ := quote.Truncate(tbl.Name + "_pk")
	constraint := "CONSTRAINT " + quote.Ident(pkName) + " PRIMARY KEY (" + quote.Ident(tbl.PK) + ")"

	var sb strings.Builder
	sb.WriteString("CREATE ")
	if tbl.Unlogged {
		sb.WriteString("UNLOGGED ")
	}
	sb.WriteString("TABLE ")
	sb.WriteString(tbl.QualifiedName())
	if tbl.Compact {
		sb.WriteString(" ( ")
		for _, def := range defs {
			sb.WriteString(def)
			sb.WriteString(", ")
		}
		sb.WriteString(constraint)
	} else {
		sb.WriteString(" (")
		for _, def := range defs {
			sb.WriteString("    ")
			sb.WriteString(def)
			sb.WriteString(",")
		}
		sb.WriteString("    ")
		sb.WriteString(constraint)
	}
	sb.WriteString(" );")
	return sb.String()
}

// registrationLines AddGeometryColumn、SET NOT NULL 与空间索引
func (t *Tracker) registrationLines(col *GeometryColumn) []string {
	tbl := t.table
	srid := col.SRID
	if srid <= 0 {
		srid = 0
		if tbl.PostGIS1 {
			srid = -1
		}
	}
	lines := []string{fmt.Sprintf("SELECT AddGeometryColumn(%s,%s,%s,%s,%s,%d);",
		quote.Literal(tbl.Schema), quote.Literal(tbl.Name), quote.Literal(col.Name),
		strconv.Itoa(srid), quote.Literal(col.RegisteredType()), col.EffectiveDim().Count())}

	if col.NotNull {
		target := quote.Ident(tbl.Name)
		if tbl.Schema != "public" {
			target = tbl.QualifiedName()
		}
		lines = append(lines, "ALTER TABLE "+target+" ALTER COLUMN "+quote.Ident(col.Name)+" SET NOT NULL;")
	}
	return append(lines, t.indexLines(col)...)
}

func (t *Tracker) indexLines(col *GeometryColumn) []string {
	tbl := t.table
	if tbl.SpatialIndex == IndexNone {
		return nil
	}
	name, truncated := quote.Truncate(tbl.Name + "_" + col.Name + "_geom_idx")
	if truncated {
		t.logger().Warn("index name truncated", "table", tbl.Name, "index", name)
	}
	return []string{"CREATE INDEX " + quote.Ident(name) + " ON " + tbl.QualifiedName() +
		" USING " + string(tbl.SpatialIndex) + " (" + quote.Ident(col.Name) + ");"}
}

func (t *Tracker) commentLine() string {
	return "COMMENT ON TABLE " + t.table.QualifiedName() + " IS " + quote.Literal(t.description) + ";"
}
