package main

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"maps"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hatlonely/pgdump/config"
	"github.com/hatlonely/pgdump/errs"
	"github.com/hatlonely/pgdump/geom"
	"github.com/hatlonely/pgdump/literal"
	"github.com/hatlonely/pgdump/log"
	"github.com/hatlonely/pgdump/log/logger"
	"github.com/hatlonely/pgdump/schema"
	"github.com/hatlonely/pgdump/script"
)

// ExportOptions 一次导出的参数
type ExportOptions struct {
	Layer *config.LayerDefinition
	// DatasetOptions 脚本级选项，例如 LINEFORMAT
	DatasetOptions map[string]string
	// LayerOptions 表选项，覆盖表定义中的同名选项
	LayerOptions map[string]string
	UseCopy      bool
	Logger       logger.Logger
	// Registerer 要素计数指标的注册器，为空时不记录
	Registerer prometheus.Registerer
}

// Summary 导出结果
type Summary struct {
	Written int64
	Failed  int64
	// FailedByKind 按错误分类统计的失败数
	FailedByKind map[string]int64
}

type exporter struct {
	options  *ExportOptions
	log      logger.Logger
	features *prometheus.CounterVec
	summary  *Summary
}

// Export 从 in 读取 NDJSON 要素，写出一张表的 SQL 脚本到 out
// 单个要素失败时记录日志并继续，IO 错误或输入无法解析时终止
func Export(ctx context.Context, in io.Reader, out io.Writer, options *ExportOptions) (*Summary, error) {
	if options == nil || options.Layer == nil {
		return nil, errors.New("layer definition is required")
	}
	e := &exporter{
		options: options,
		log:     options.Logger,
		summary: &Summary{FailedByKind: map[string]int64{}},
	}
	if e.log == nil {
		e.log = log.Default()
	}
	if options.Registerer != nil {
		e.features = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pgdump_features_total",
			Help: "Total number of features processed by status",
		}, []string{"status"})
		if err := options.Registerer.Register(e.features); err != nil {
			return nil, errors.Wrap(err, "register metrics failed")
		}
	}

	w, err := e.newWriter(out)
	if err != nil {
		return nil, err
	}
	tbl, err := e.createTable(w)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bufio.NewReader(in))
	dec.UseNumber()
	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return e.summary, err
		}
		var rec record
		if err := dec.Decode(&rec); err != nil {
			if err == io.EOF {
				break
			}
			return e.summary, errors.Wrapf(err, "decode record %d failed", n)
		}

		f, err := rec.feature()
		if err == nil {
			_, err = tbl.CreateFeature(f)
		}
		if err != nil {
			if errors.Is(err, errs.ErrIO) {
				return e.summary, err
			}
			e.fail(n, err)
			continue
		}
		e.summary.Written++
		e.count("written")
	}

	if err := w.Close(); err != nil {
		return e.summary, err
	}
	return e.summary, nil
}

func (e *exporter) fail(n int, err error) {
	kind := errs.Kind(err)
	if kind == "" {
		kind = "unknown"
	}
	e.summary.Failed++
	e.summary.FailedByKind[kind]++
	e.count(kind)
	e.log.Warn("feature skipped", "record", n, "kind", kind, "error", err.Error())
}

func (e *exporter) count(status string) {
	if e.features != nil {
		e.features.WithLabelValues(status).Inc()
	}
}

func (e *exporter) newWriter(out io.Writer) (*script.Writer, error) {
	options := &script.Options{UseCopy: config.UseCopyFromEnv(), Logger: e.log}
	if err := config.Bind(e.options.DatasetOptions, options); err != nil {
		return nil, errors.WithMessage(err, "invalid dataset options")
	}
	if e.options.UseCopy {
		options.UseCopy = true
	}
	w, err := script.NewWriterWithOptions(out, options)
	if err != nil {
		return nil, errors.WithMessage(err, "NewWriterWithOptions failed")
	}
	return w, nil
}

// createTable 按表定义创建表与全部字段
func (e *exporter) createTable(w *script.Writer) (*script.Table, error) {
	def := e.options.Layer

	kv := map[string]string{}
	maps.Copy(kv, def.Options)
	maps.Copy(kv, e.options.LayerOptions)
	options, err := script.NewTableOptions(kv)
	if err != nil {
		return nil, errors.WithMessagef(err, "layer %s", def.Name)
	}
	options.GeometryType = def.GeometryType
	options.GeometryNotNull = def.GeometryNotNull
	if _, ok := kv["SRID"]; !ok && def.SRID > 0 {
		options.SRID = def.SRID
	}

	tbl, err := w.CreateTable(def.Name, options)
	if err != nil {
		return nil, errors.WithMessagef(err, "create table %s failed", def.Name)
	}

	for _, fd := range def.Fields {
		typ, err := literal.ParseFieldType(fd.Type)
		if err != nil {
			return nil, errs.Schemaf("field %q: %v", fd.Name, err)
		}
		sub, err := literal.ParseSubType(fd.SubType)
		if err != nil {
			return nil, errs.Schemaf("field %q: %v", fd.Name, err)
		}
		if err := tbl.AddField(&schema.Column{
			Name:      fd.Name,
			Type:      typ,
			SubType:   sub,
			Width:     fd.Width,
			Precision: fd.Precision,
			NotNull:   fd.NotNull,
			Unique:    fd.Unique,
			Default:   fd.Default,
		}); err != nil {
			return nil, errors.WithMessagef(err, "add field %s failed", fd.Name)
		}
	}

	for _, gd := range def.GeometryFields {
		typ, dim, err := geom.ParseTypeName(gd.Type)
		if err != nil {
			return nil, errs.Schemaf("geometry field %q: %v", gd.Name, err)
		}
		if err := tbl.AddGeometryField(&schema.GeometryColumn{
			Name:    gd.Name,
			Type:    typ,
			Dim:     dim,
			SRID:    gd.SRID,
			NotNull: gd.NotNull,
		}); err != nil {
			return nil, errors.WithMessagef(err, "add geometry field %s failed", gd.Name)
		}
	}
	return tbl, nil
}
