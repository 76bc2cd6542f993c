package script

import (
	"github.com/hatlonely/pgdump/emit"
	"github.com/hatlonely/pgdump/errs"
	"github.com/hatlonely/pgdump/feature"
	"github.com/hatlonely/pgdump/geom"
	"github.com/hatlonely/pgdump/literal"
	"github.com/hatlonely/pgdump/log/logger"
	"github.com/hatlonely/pgdump/quote"
	"github.com/hatlonely/pgdump/schema"
	"github.com/hatlonely/pgdump/seq"
)

// Table 脚本中的一张输出表
type Table struct {
	w         *Writer
	options   *TableOptions
	launder   bool
	variant   geom.Variant
	tracker   *schema.Tracker
	emitter   *emit.Emitter
	serial    *seq.Serial
	formatter *literal.Formatter
	log       logger.Logger
	// pendingGeometryName GEOMETRY_NAME 选项，用于没有隐式几何列时新增的第一个几何列
	pendingGeometryName string
	// unique UNIQUE 列已写出的非空值，按列名分组
	unique map[string]map[string]struct{}
}

// uniqueValue 待提交的 UNIQUE 列值
type uniqueValue struct {
	column string
	value  string
}

// pendingRow 已通过校验、尚未写出的行
type pendingRow struct {
	row       emit.Row
	id        int64
	generated bool
	unique    []uniqueValue
}

func (t *Table) Name() string {
	return t.tracker.Table().Name
}

func (t *Table) Schema() string {
	return t.tracker.Table().Schema
}

// Definition 当前的表结构
func (t *Table) Definition() *schema.Table {
	return t.tracker.Table()
}

func (t *Table) Phase() schema.Phase {
	return t.tracker.Phase()
}

func (t *Table) launderName(name, kind string) string {
	if !t.launder {
		return name
	}
	laundered, truncated := quote.Launder(name)
	if truncated {
		t.log.Warn(kind+" name truncated", "name", name, "truncated", laundered)
	}
	return laundered
}

// AddField 新增属性列，col.Name 为要素上的字段名，输出列名按 LAUNDER 规范化
func (t *Table) AddField(col *schema.Column) error {
	if err := t.w.check(); err != nil {
		return err
	}
	if col == nil {
		return errs.Schemaf("column is nil")
	}
	c := *col
	if c.Source == "" {
		c.Source = c.Name
	}
	c.Name = t.launderName(c.Name, "column")
	if c.Type == "" {
		c.Type = literal.FieldString
	}
	if err := t.beforeDDL(); err != nil {
		return err
	}
	if err := t.tracker.AddColumn(&c); err != nil {
		return err
	}
	// 与主键同名的 64 位整数列把主键提升为 BIGSERIAL/INT8
	if t.tracker.Table().FIDField == &c && c.Type == literal.FieldInteger64 {
		t.serial.SetBits(64)
	}
	return nil
}

// AddGeometryField 新增几何列
// 维度优先取 DIM 选项，其次取列类型自带的维度；存储类型与 EWKT 模式来自表选项
func (t *Table) AddGeometryField(col *schema.GeometryColumn) error {
	if err := t.w.check(); err != nil {
		return err
	}
	if col == nil {
		return errs.Schemaf("geometry column is nil")
	}
	c := *col
	col = &c
	source := col.Source
	if source == "" {
		source = col.Name
	}
	if t.pendingGeometryName != "" && len(t.tracker.Table().GeometryColumns) == 0 {
		col.Name = t.pendingGeometryName
	}
	if col.Name == "" {
		col.Name = t.options.defaultGeometryName()
	}
	if err := t.beforeDDL(); err != nil {
		return err
	}
	if err := t.addGeometryColumn(col, source); err != nil {
		return err
	}
	t.pendingGeometryName = ""
	return nil
}

func (t *Table) addGeometryColumn(col *schema.GeometryColumn, source string) error {
	col.Source = source
	col.Name = t.launderName(col.Name, "geometry column")
	if t.options.Dim != geom.DimAuto {
		col.Dim = t.options.Dim
	}
	if col.Dim == geom.DimAuto {
		col.Dim = geom.DimXY
	}
	if col.Storage == "" {
		col.Storage = t.options.storage()
	}
	col.EWKT = col.EWKT || t.options.WriteEWKT
	return t.tracker.AddGeometryColumn(col)
}

// SetDescription 设置表注释
func (t *Table) SetDescription(text string) error {
	if err := t.w.check(); err != nil {
		return err
	}
	if err := t.beforeDDL(); err != nil {
		return err
	}
	return t.tracker.SetDescription(text)
}

// beforeDDL 表结构已输出时，追加 DDL 之前结束本表的 COPY 块
func (t *Table) beforeDDL() error {
	if t.tracker.Phase() == schema.PhaseOpen {
		return nil
	}
	return t.emitter.EndCopy()
}

// Flush 输出尚未写出的表结构并结束打开的 COPY 块
func (t *Table) Flush() error {
	if err := t.w.check(); err != nil {
		return err
	}
	if err := t.tracker.Finalize(); err != nil {
		return err
	}
	return t.emitter.EndCopy()
}

// CreateFeature 写出一个要素并返回其 ID
// 未提供 ID 时按模拟的序列分配，写出成功后回填到要素（以及与主键同名的字段）
// 任何校验失败都不会输出该要素的 SQL
func (t *Table) CreateFeature(f feature.Feature, opts ...CreateOption) (int64, error) {
	if err := t.w.check(); err != nil {
		return 0, err
	}
	if f == nil {
		return 0, errs.Constraintf("feature is nil")
	}
	o := &createOptions{}
	for _, opt := range opts {
		opt(o)
	}
	mode := t.w.loadMode
	if o.hasMode {
		mode = o.mode
	}

	p, err := t.buildRow(f)
	if err != nil {
		return 0, err
	}
	if err := t.emitter.Accepts(p.row, mode); err != nil {
		return 0, err
	}
	if err := t.tracker.Finalize(); err != nil {
		return 0, err
	}
	if err := t.emitter.Emit(p.row, mode); err != nil {
		return 0, err
	}

	id := p.id
	t.serial.Commit(id, p.generated)
	t.commitUnique(p.unique)
	f.SetID(id)
	if fid := t.tracker.Table().FIDField; fid != nil {
		f.SetField(fid.SourceName(), id)
	}
	return id, nil
}

// UpdateFeature 脚本只能追加，不支持更新已写出的要素
func (t *Table) UpdateFeature(f feature.Feature) error {
	if err := t.w.check(); err != nil {
		return err
	}
	id, _ := f.ID()
	return errs.Constraintf("cannot update feature %d: features can only be created", id)
}

// resolveID 确定要素 ID，generated 表示由序列分配
func (t *Table) resolveID(f feature.Feature) (id int64, explicit bool, generated bool, err error) {
	def := t.tracker.Table()
	id, explicit = f.ID()

	if fid := def.FIDField; fid != nil {
		src := fid.SourceName()
		if f.IsFieldSet(src) && !f.IsFieldNull(src) {
			v, err := literal.ToInt64(f.Field(src))
			if err != nil {
				return 0, false, false, errs.Encodingf("field %q: %v", src, err)
			}
			if explicit && v != id {
				return 0, false, false, errs.Constraintf("feature id %d differs from field %q value %d", id, src, v)
			}
			id, explicit = v, true
		}
	}

	switch def.PKKind {
	case schema.PKIdentity:
		if explicit {
			return 0, false, false, errs.Constraintf("explicit id %d on a generated identity column %q", id, def.PK)
		}
	case schema.PKInteger:
		if !explicit {
			return 0, false, false, errs.Constraintf("missing id for integer primary key %q", def.PK)
		}
	}

	if explicit {
		if err := t.serial.Check(id); err != nil {
			return 0, false, false, err
		}
		return id, true, false, nil
	}
	id, err = t.serial.Peek()
	if err != nil {
		return 0, false, false, err
	}
	return id, false, true, nil
}

// buildRow 校验并格式化要素的全部值
func (t *Table) buildRow(f feature.Feature) (*pendingRow, error) {
	def := t.tracker.Table()

	id, explicit, generated, err := t.resolveID(f)
	if err != nil {
		return nil, err
	}
	p := &pendingRow{id: id, generated: generated}
	row := emit.Row{ID: id, HasID: explicit}

	if len(def.GeometryColumns) == 0 && f.Geometry("") != nil {
		t.log.Debug("geometry ignored on a table without geometry column")
	}
	for i, col := range def.GeometryColumns {
		g := f.Geometry(col.Source)
		if g == nil && i == 0 && col.Source != "" {
			g = f.Geometry("")
		}
		cell, err := t.geometryCell(col, g)
		if err != nil {
			return nil, err
		}
		row.Geometries = append(row.Geometries, cell)
	}

	for _, col := range def.Columns {
		cell := emit.Cell{Name: col.Name, HasDefault: col.Default != ""}
		src := col.SourceName()
		if !f.IsFieldSet(src) {
			if col.NotNull && col.Default == "" {
				return nil, errs.Constraintf("column %q is not nullable and has no value", col.Name)
			}
			row.Fields = append(row.Fields, cell)
			continue
		}
		value := f.Field(src)
		if f.IsFieldNull(src) {
			value = nil
		}
		if value == nil && col.NotNull {
			return nil, errs.Constraintf("column %q is not nullable", col.Name)
		}
		cell.Insert, cell.Copy, err = t.formatter.FormatBoth(value, col.Spec())
		if err != nil {
			return nil, err
		}
		if col.Unique && value != nil {
			if t.isDuplicate(col.Name, cell.Copy) {
				return nil, errs.Constraintf("duplicate value %s for unique column %q", cell.Insert, col.Name)
			}
			p.unique = append(p.unique, uniqueValue{column: col.Name, value: cell.Copy})
		}
		cell.Set = true
		row.Fields = append(row.Fields, cell)
	}

	p.row = row
	return p, nil
}

func (t *Table) isDuplicate(column, value string) bool {
	_, ok := t.unique[column][value]
	return ok
}

// commitUnique 记录已写出的 UNIQUE 列值，NULL 不参与比较
func (t *Table) commitUnique(values []uniqueValue) {
	for _, v := range values {
		if t.unique == nil {
			t.unique = map[string]map[string]struct{}{}
		}
		seen, ok := t.unique[v.column]
		if !ok {
			seen = map[string]struct{}{}
			t.unique[v.column] = seen
		}
		seen[v.value] = struct{}{}
	}
}

func (t *Table) geometryCell(col *schema.GeometryColumn, g geom.Geometry) (emit.Cell, error) {
	cell := emit.Cell{Name: col.Name}
	if g == nil {
		if col.NotNull {
			return cell, errs.Constraintf("geometry column %q is not nullable", col.Name)
		}
		return cell, nil
	}

	dim := col.EffectiveDim()
	hex, err := geom.EncodeHex(g, dim, col.SRID, t.variant)
	if err != nil {
		return cell, err
	}
	cell.Set, cell.Copy = true, hex

	if !col.EWKT {
		cell.Insert = "'" + hex + "'"
		return cell, nil
	}
	ewkt, err := geom.EncodeEWKT(g, dim, col.SRID)
	if err != nil {
		return cell, err
	}
	if col.Storage == schema.StorageGeography {
		cell.Insert = quote.Literal(ewkt) + "::geography "
	} else {
		cell.Insert = "GeomFromEWKT(" + quote.Literal(ewkt) + "::TEXT) "
	}
	return cell, nil
}
