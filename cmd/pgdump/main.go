// Command pgdump 将 NDJSON 要素导出为 PostgreSQL/PostGIS SQL 脚本
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hatlonely/pgdump/config"
	"github.com/hatlonely/pgdump/log/logger"
	"github.com/hatlonely/pgdump/sink"
)

const version = "0.1.0"

// ExportCmd 命令行参数
type ExportCmd struct {
	Layer       string           `name:"layer" short:"l" required:"" help:"Layer definition file (yaml, toml, json or ini)" type:"existingfile"`
	Input       string           `name:"input" short:"i" default:"-" help:"NDJSON feature file, - for stdin, .gz/.zst are decompressed"`
	Output      string           `name:"output" short:"o" default:"-" help:"SQL script path, - for stdout, .gz/.zst are compressed"`
	Compression string           `name:"compression" default:"auto" enum:"auto,none,gzip,zstd" help:"Output compression"`
	Append      bool             `name:"append" help:"Append to the output file"`
	Dsco        []string         `name:"dsco" help:"Dataset option KEY=VALUE, e.g. LINEFORMAT=CRLF"`
	Lco         []string         `name:"lco" help:"Layer option KEY=VALUE, overrides the layer definition"`
	Copy        bool             `name:"copy" help:"Prefer COPY over INSERT, overrides PG_USE_COPY"`
	LogLevel    string           `name:"log-level" default:"info" enum:"debug,info,warn,error" help:"Log level"`
	LogFormat   string           `name:"log-format" default:"text" enum:"text,json" help:"Log format"`
	Metrics     string           `name:"metrics" help:"Write prometheus metrics in text format to this file" type:"path"`
	Version     kong.VersionFlag `name:"version" help:"Print version information"`
}

func (c *ExportCmd) Run() error {
	l, err := logger.NewSLogWithOptions(&logger.SLogOptions{Level: c.LogLevel, Format: c.LogFormat})
	if err != nil {
		return errors.WithMessage(err, "NewSLogWithOptions failed")
	}
	defer l.Close()

	layer, err := config.LoadLayerDefinition(c.Layer)
	if err != nil {
		return err
	}
	dsco, err := config.ParseOptionStrings(c.Dsco)
	if err != nil {
		return errors.WithMessage(err, "--dsco")
	}
	lco, err := config.ParseOptionStrings(c.Lco)
	if err != nil {
		return errors.WithMessage(err, "--lco")
	}

	in, err := openInput(c.Input)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := sink.NewSinkWithOptions(&sink.Options{Path: c.Output, Compression: c.Compression, Append: c.Append})
	if err != nil {
		return err
	}
	registry := prometheus.NewRegistry()
	observed, err := sink.NewObservableSinkWithOptions(out, &sink.ObservableSinkOptions{Registerer: registry})
	if err != nil {
		_ = out.Close()
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	summary, err := Export(ctx, in, observed, &ExportOptions{
		Layer:          layer,
		DatasetOptions: dsco,
		LayerOptions:   lco,
		UseCopy:        c.Copy,
		Logger:         l,
		Registerer:     registry,
	})
	if cerr := observed.Close(); err == nil && cerr != nil {
		err = errors.Wrap(cerr, "close output failed")
	}
	if c.Metrics != "" {
		if merr := prometheus.WriteToTextfile(c.Metrics, registry); merr != nil {
			l.Warn("write metrics failed", "path", c.Metrics, "error", merr.Error())
		}
	}
	if err != nil {
		return err
	}

	l.Info("export finished",
		"layer", layer.Name,
		"written", humanize.Comma(summary.Written),
		"failed", humanize.Comma(summary.Failed),
		"size", humanize.Bytes(observed.BytesWritten()),
	)
	if summary.Failed > 0 {
		return errors.Errorf("%s features failed", humanize.Comma(summary.Failed))
	}
	return nil
}

// openInput 打开输入，按扩展名解压 .gz/.zst
func openInput(path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s failed", path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		r, err := gzip.NewReader(file)
		if err != nil {
			_ = file.Close()
			return nil, errors.Wrapf(err, "gzip.NewReader %s failed", path)
		}
		return &decompressed{Reader: r, closers: []io.Closer{r, file}}, nil
	case ".zst":
		r, err := zstd.NewReader(file)
		if err != nil {
			_ = file.Close()
			return nil, errors.Wrapf(err, "zstd.NewReader %s failed", path)
		}
		return &decompressed{Reader: r, closers: []io.Closer{r.IOReadCloser(), file}}, nil
	}
	return file, nil
}

type decompressed struct {
	io.Reader
	closers []io.Closer
}

func (d *decompressed) Close() error {
	var first error
	for _, c := range d.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func main() {
	var cmd ExportCmd
	ctx := kong.Parse(&cmd,
		kong.Name("pgdump"),
		kong.Description("Export NDJSON vector features to a PostgreSQL/PostGIS SQL script"),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)
	ctx.FatalIfErrorf(ctx.Run())
}
