package emit

import (
	"slices"
	"strconv"
	"strings"

	"github.com/hatlonely/pgdump/errs"
	"github.com/hatlonely/pgdump/literal"
	"github.com/hatlonely/pgdump/log"
	"github.com/hatlonely/pgdump/log/logger"
	"github.com/hatlonely/pgdump/quote"
	"github.com/hatlonely/pgdump/schema"
)

// LoadMode 数据加载方式
type LoadMode int

const (
	// LoadInsert 逐行 INSERT
	LoadInsert LoadMode = iota
	// LoadCopy 只使用 COPY，无法用 COPY 表示的行返回错误
	LoadCopy
	// LoadCopyPreferred 优先 COPY，无法用 COPY 表示的行回退为 INSERT
	LoadCopyPreferred
)

func (m LoadMode) String() string {
	switch m {
	case LoadCopy:
		return "copy"
	case LoadCopyPreferred:
		return "copy-preferred"
	default:
		return "insert"
	}
}

// State 输出状态
type State int

const (
	StateIdle State = iota
	StateInsert
	StateCopy
)

func (s State) String() string {
	switch s {
	case StateInsert:
		return "insert"
	case StateCopy:
		return "copy"
	default:
		return "idle"
	}
}

// Cell 一列已格式化的值
type Cell struct {
	Name string
	// Set 要素为该列提供了值（包括显式 NULL）
	Set    bool
	Insert string
	Copy   string
	// HasDefault 列定义了默认值，未设置时 COPY 无法保留默认值
	HasDefault bool
}

// Row 一个待写出的要素，写出前已完成全部格式化与校验
type Row struct {
	ID    int64
	HasID bool
	// Geometries 表中全部几何列，按列顺序
	Geometries []Cell
	// Fields 表中全部属性列（不含主键），按列顺序
	Fields []Cell
}

// copyBlock 当前打开的 COPY 块
type copyBlock struct {
	columns []string
	hasPK   bool
	// version 打开时的表结构版本
	version int
}

// Emitter 单表的 INSERT/COPY 状态机
type Emitter struct {
	table *schema.Table
	out   schema.LineWriter
	log   logger.Logger
	state State
	block *copyBlock
}

func NewEmitter(table *schema.Table, out schema.LineWriter, log logger.Logger) *Emitter {
	return &Emitter{table: table, out: out, log: log}
}

func (e *Emitter) logger() logger.Logger {
	if e.log == nil {
		return log.Default()
	}
	return e.log
}

func (e *Emitter) State() State {
	return e.state
}

// Accepts 在写出之前检查该行能否以 mode 写出
func (e *Emitter) Accepts(row Row, mode LoadMode) error {
	if mode != LoadCopy {
		return nil
	}
	for _, cell := range row.Fields {
		if !cell.Set && cell.HasDefault {
			return errs.Constraintf("column %q has a default value and is unset, which COPY cannot express", cell.Name)
		}
	}
	return nil
}

// Emit 以 mode 写出一行
func (e *Emitter) Emit(row Row, mode LoadMode) error {
	if err := e.Accepts(row, mode); err != nil {
		return err
	}

	switch mode {
	case LoadInsert:
		return e.insert(row)
	case LoadCopyPreferred:
		if reason := e.insertFallback(row); reason != "" {
			e.logger().Debug("fall back to INSERT", "table", e.table.Name, "reason", reason)
			return e.insert(row)
		}
	}

	columns := e.copyColumns(row)
	if len(columns) == 0 {
		return e.insert(row)
	}
	return e.copy(row, columns)
}

// insertFallback 返回优先 COPY 模式下改用 INSERT 的原因
func (e *Emitter) insertFallback(row Row) string {
	for _, cell := range row.Fields {
		if !cell.Set && cell.HasDefault {
			return "unset column with default"
		}
	}
	if e.block != nil && e.block.hasPK != row.HasID {
		return "primary key presence differs from the open COPY block"
	}
	return ""
}

// EndCopy 结束当前 COPY 块，没有打开的块时不输出
func (e *Emitter) EndCopy() error {
	if e.block == nil {
		return nil
	}
	if err := e.out.WriteLine(literal.CopyEnd); err != nil {
		return err
	}
	e.block = nil
	e.state = StateIdle
	return nil
}

func (e *Emitter) insert(row Row) error {
	if err := e.EndCopy(); err != nil {
		return err
	}

	var columns, values []string
	if row.HasID {
		columns = append(columns, quote.Ident(e.table.PK)+" ")
		values = append(values, strconv.FormatInt(row.ID, 10))
	}
	for _, cell := range row.Geometries {
		if cell.Set {
			columns = append(columns, quote.Ident(cell.Name)+" ")
			values = append(values, cell.Insert)
		}
	}
	for _, cell := range row.Fields {
		if cell.Set {
			columns = append(columns, quote.Ident(cell.Name))
			values = append(values, cell.Insert)
		}
	}

	var line string
	if len(columns) == 0 {
		line = "INSERT INTO " + e.table.QualifiedName() + " DEFAULT VALUES;"
	} else {
		line = "INSERT INTO " + e.table.QualifiedName() + " (" + strings.Join(columns, ", ") +
			") VALUES (" + strings.Join(values, ", ") + ");"
	}
	if err := e.out.WriteLine(line); err != nil {
		return err
	}
	e.state = StateInsert
	return nil
}

// copyColumns COPY 列：[主键] + 全部几何列 + 全部属性列
func (e *Emitter) copyColumns(row Row) []string {
	columns := make([]string, 0, 1+len(row.Geometries)+len(row.Fields))
	if row.HasID {
		columns = append(columns, e.table.PK)
	}
	for _, cell := range row.Geometries {
		columns = append(columns, cell.Name)
	}
	for _, cell := range row.Fields {
		columns = append(columns, cell.Name)
	}
	return columns
}

func (e *Emitter) copy(row Row, columns []string) error {
	if e.block != nil && (e.block.version != e.table.Version || !slices.Equal(e.block.columns, columns)) {
		if err := e.EndCopy(); err != nil {
			return err
		}
	}

	if e.block == nil {
		quoted := make([]string, len(columns))
		for i, c := range columns {
			quoted[i] = quote.Ident(c)
		}
		header := "COPY " + e.table.QualifiedName() + " (" + strings.Join(quoted, ", ") + ") FROM STDIN;"
		if err := e.out.WriteLine(header); err != nil {
			return err
		}
		e.block = &copyBlock{columns: columns, hasPK: row.HasID, version: e.table.Version}
		e.state = StateCopy
	}

	values := make([]string, 0, len(columns))
	if row.HasID {
		values = append(values, strconv.FormatInt(row.ID, 10))
	}
	for _, cell := range row.Geometries {
		values = append(values, copyValue(cell))
	}
	for _, cell := range row.Fields {
		values = append(values, copyValue(cell))
	}
	return e.out.WriteLine(strings.Join(values, "\t"))
}

func copyValue(cell Cell) string {
	if !cell.Set {
		return literal.CopyNull
	}
	return cell.Copy
}
