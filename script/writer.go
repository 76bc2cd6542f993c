package script

import (
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/hatlonely/pgdump/config"
	"github.com/hatlonely/pgdump/emit"
	"github.com/hatlonely/pgdump/errs"
	"github.com/hatlonely/pgdump/geom"
	"github.com/hatlonely/pgdump/literal"
	"github.com/hatlonely/pgdump/log"
	"github.com/hatlonely/pgdump/log/logger"
	"github.com/hatlonely/pgdump/quote"
	"github.com/hatlonely/pgdump/schema"
	"github.com/hatlonely/pgdump/seq"
)

// Writer 将多张表的结构与要素写成一个 SQL 脚本
// 不是并发安全的，调用方需要串行调用
type Writer struct {
	out      io.Writer
	eol      string
	log      logger.Logger
	loadMode emit.LoadMode

	tables  []*Table
	schemas map[string]bool
	begun   bool
	closed  bool
	// active 最近一次写出的表，其 COPY 块可能仍然打开
	active *Table
	// err 写出失败后保持不变，之后的调用都返回该错误
	err error
}

// NewWriterWithOptions 创建脚本写出器，out 由调用方关闭
func NewWriterWithOptions(out io.Writer, options *Options) (*Writer, error) {
	if out == nil {
		return nil, errors.New("out cannot be nil")
	}
	if options == nil {
		options = &Options{}
	}
	options.LineFormat = strings.ToUpper(options.LineFormat)
	if err := config.SetDefaults(options); err != nil {
		return nil, errors.WithMessage(err, "SetDefaults failed")
	}
	if err := config.Validate(options); err != nil {
		return nil, errors.WithMessage(err, "invalid options")
	}

	l := options.Logger
	if l == nil {
		l = log.Default()
	}
	eol := "\n"
	if options.LineFormat == "CRLF" {
		eol = "\r\n"
	}
	mode := emit.LoadInsert
	if options.UseCopy {
		mode = emit.LoadCopyPreferred
	}

	return &Writer{
		out:      out,
		eol:      eol,
		log:      l,
		loadMode: mode,
		schemas:  map[string]bool{},
	}, nil
}

// SetLoadMode 修改默认的加载方式，单次写入仍可通过 WithLoadMode 覆盖
func (w *Writer) SetLoadMode(mode emit.LoadMode) {
	w.loadMode = mode
}

func (w *Writer) LoadMode() emit.LoadMode {
	return w.loadMode
}

// Err 写出失败时返回的 IO 错误
func (w *Writer) Err() error {
	return w.err
}

func (w *Writer) Tables() []*Table {
	return w.tables
}

func (w *Writer) check() error {
	if w.err != nil {
		return w.err
	}
	if w.closed {
		return errors.New("writer is closed")
	}
	return nil
}

func (w *Writer) writeLine(line string) error {
	if w.err != nil {
		return w.err
	}
	if _, err := io.WriteString(w.out, line+w.eol); err != nil {
		w.err = errs.IO(err, "write script failed")
		return w.err
	}
	return nil
}

// switchTo 切换输出的表，先结束上一张表打开的 COPY 块
func (w *Writer) switchTo(t *Table) error {
	if w.active != nil && w.active != t {
		prev := w.active
		w.active = nil
		if err := prev.emitter.EndCopy(); err != nil {
			return err
		}
	}
	w.active = t
	return nil
}

// tableLines 表级输出，写出前结束其他表的 COPY 块
type tableLines struct {
	w *Writer
	t *Table
}

func (l *tableLines) WriteLine(line string) error {
	if err := l.w.switchTo(l.t); err != nil {
		return err
	}
	return l.w.writeLine(line)
}

// CreateTable 声明一张表并输出 DROP TABLE 等前置语句，CREATE TABLE 延迟到第一次写入要素时输出
func (w *Writer) CreateTable(name string, options *TableOptions) (*Table, error) {
	if err := w.check(); err != nil {
		return nil, err
	}
	if options == nil {
		options = &TableOptions{}
	}
	if err := options.normalize(); err != nil {
		return nil, err
	}

	launder := *options.Launder
	if launder {
		laundered, truncated := quote.Launder(name)
		if truncated {
			w.log.Warn("table name truncated", "name", name, "truncated", laundered)
		}
		name = laundered
	}
	if name == "" {
		return nil, errs.Schemaf("table name is empty")
	}
	for _, t := range w.tables {
		if t.Schema() == options.Schema && t.Name() == name {
			return nil, errs.Schemaf("table %s already exists", quote.Table(options.Schema, name))
		}
	}

	geometryType, typeDim := geom.TypeGeometry, geom.DimAuto
	implicit := !strings.EqualFold(options.GeometryType, "NONE")
	if implicit {
		var err error
		if geometryType, typeDim, err = geom.ParseTypeName(options.GeometryType); err != nil {
			return nil, errs.Schemaf("table %s: %v", name, err)
		}
	}

	t := &Table{
		w:         w,
		options:   options,
		launder:   launder,
		variant:   options.variant(),
		formatter: literal.NewFormatter(w.log),
		log:       w.log.With("table", name),
	}
	lines := &tableLines{w: w, t: t}

	bits := 32
	if options.FID64 {
		bits = 64
	}
	t.serial = seq.NewSerialWithOptions(&seq.SerialOptions{Start: 1, Bits: bits})
	t.tracker = schema.NewTracker(schema.TableDef{
		Schema:       options.Schema,
		Name:         name,
		PK:           options.FID,
		PKKind:       schema.PKKind(options.FIDKind),
		PK64:         options.FID64,
		PostGIS1:     options.postGIS1(),
		Compact:      implicit,
		SpatialIndex: schema.IndexMethod(options.SpatialIndex),
		Description:  options.Description,
		SkipCreate:   !*options.CreateTable,
		Unlogged:     options.Unlogged,
	}, lines, t.log)
	t.emitter = emit.NewEmitter(t.tracker.Table(), lines, t.log)

	if implicit {
		col := &schema.GeometryColumn{
			Name:    options.GeometryName,
			Type:    geometryType,
			Dim:     typeDim,
			SRID:    options.SRID,
			NotNull: options.GeometryNotNull,
		}
		if col.Name == "" {
			col.Name = options.defaultGeometryName()
		}
		if err := t.addGeometryColumn(col, ""); err != nil {
			return nil, err
		}
	} else {
		t.pendingGeometryName = options.GeometryName
	}

	if err := w.preamble(t, implicit); err != nil {
		return nil, err
	}
	w.tables = append(w.tables, t)
	return t, nil
}

// preamble CREATE SCHEMA、DROP TABLE、清理 geometry_columns 与 BEGIN
func (w *Writer) preamble(t *Table, implicit bool) error {
	options := t.options
	def := t.tracker.Table()
	var lines []string
	if *options.CreateTable {
		if def.Schema != "public" && *options.CreateSchema && !w.schemas[def.Schema] {
			lines = append(lines, "CREATE SCHEMA IF NOT EXISTS "+quote.Ident(def.Schema)+";")
			w.schemas[def.Schema] = true
		}
		if *options.DropTable {
			lines = append(lines, "DROP TABLE IF EXISTS "+def.QualifiedName()+" CASCADE;")
		}
		if def.PostGIS1 && implicit && options.storage() == schema.StorageGeometry {
			lines = append(lines, "DELETE FROM geometry_columns WHERE f_table_name = "+quote.Literal(def.Name)+
				" AND f_table_schema = "+quote.Literal(def.Schema)+";")
		}
	}
	if !w.begun {
		lines = append(lines, "BEGIN;")
		w.begun = true
	}

	out := &tableLines{w: w, t: t}
	for _, line := range lines {
		if err := out.WriteLine(line); err != nil {
			return err
		}
	}
	return nil
}

// Close 结束打开的 COPY 块，输出尚未写出的表结构、序列同步与 COMMIT
// 不关闭底层的 io.Writer
func (w *Writer) Close() error {
	if w.closed {
		return w.err
	}
	if w.err != nil {
		w.closed = true
		return w.err
	}

	for _, t := range w.tables {
		if err := t.Flush(); err != nil {
			w.closed = true
			return err
		}
	}
	if err := w.switchTo(nil); err != nil {
		w.closed = true
		return err
	}
	w.closed = true

	for _, t := range w.tables {
		def := t.tracker.Table()
		t.log.Debug("table closed", "features", t.serial.Len(), "maxID", t.serial.Max())
		if def.PKKind != schema.PKSerial {
			continue
		}
		qt := def.QualifiedName()
		line := "SELECT setval(pg_get_serial_sequence(" + quote.Literal(qt) + ", " + quote.Literal(def.PK) +
			"), MAX(" + quote.Ident(def.PK) + ")) FROM " + qt + ";"
		if err := w.writeLine(line); err != nil {
			return err
		}
	}
	if w.begun {
		if err := w.writeLine("COMMIT;"); err != nil {
			return err
		}
	}
	return nil
}
