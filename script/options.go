package script

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/hatlonely/pgdump/config"
	"github.com/hatlonely/pgdump/emit"
	"github.com/hatlonely/pgdump/geom"
	"github.com/hatlonely/pgdump/log/logger"
	"github.com/hatlonely/pgdump/schema"
)

// Options 脚本级选项
type Options struct {
	// LineFormat 行结束符：LF 或 CRLF
	LineFormat string `opt:"LINEFORMAT" def:"LF" validate:"oneof=LF CRLF"`
	// UseCopy 默认的加载方式，true 为优先 COPY，通常来自 PG_USE_COPY 环境变量
	UseCopy bool `opt:"PG_USE_COPY"`
	Logger  logger.Logger
}

// TableOptions 表创建选项，opt tag 对应 KEY=VALUE 形式的选项名
type TableOptions struct {
	Schema string `opt:"SCHEMA" def:"public" validate:"required"`
	// GeometryType 隐式几何列的类型，NONE 表示不创建
	GeometryType string `def:"GEOMETRY"`
	// GeometryNotNull 隐式几何列非空
	GeometryNotNull bool
	GeometryName    string   `opt:"GEOMETRY_NAME"`
	GeomType        string   `opt:"GEOM_TYPE" def:"geometry" validate:"oneof=geometry geography"`
	Dim             geom.Dim `opt:"DIM"`
	SRID            int      `opt:"SRID" validate:"gte=0"`
	WriteEWKT       bool     `opt:"WRITE_EWKT_GEOM"`
	FID             string   `opt:"FID" def:"ogc_fid" validate:"required"`
	FID64           bool     `opt:"FID64"`
	FIDKind         string   `opt:"FID_KIND" def:"serial" validate:"oneof=serial identity integer"`
	Description     string   `opt:"DESCRIPTION"`
	Launder         *bool    `opt:"LAUNDER" def:"true"`
	SpatialIndex    string   `opt:"SPATIAL_INDEX" def:"GIST" validate:"oneof=GIST SPGIST BRIN NONE"`
	CreateSchema    *bool    `opt:"CREATE_SCHEMA" def:"true"`
	DropTable       *bool    `opt:"DROP_TABLE" def:"true"`
	CreateTable     *bool    `opt:"CREATE_TABLE" def:"true"`
	Unlogged        bool     `opt:"UNLOGGED"`
	PostGISVersion  string   `opt:"POSTGIS_VERSION" def:"2.2"`
}

// NewTableOptions 由 KEY=VALUE 选项构造表选项并设置默认值
func NewTableOptions(options map[string]string) (*TableOptions, error) {
	to := &TableOptions{}
	if err := config.Bind(options, to); err != nil {
		return nil, errors.WithMessage(err, "bind table options failed")
	}
	if err := to.normalize(); err != nil {
		return nil, err
	}
	return to, nil
}

func (o *TableOptions) normalize() error {
	o.GeomType = strings.ToLower(o.GeomType)
	o.SpatialIndex = strings.ToUpper(o.SpatialIndex)
	o.FIDKind = strings.ToLower(o.FIDKind)
	if err := config.SetDefaults(o); err != nil {
		return errors.WithMessage(err, "SetDefaults failed")
	}
	if err := config.Validate(o); err != nil {
		return errors.WithMessage(err, "invalid table options")
	}
	if _, err := o.postGISMajor(); err != nil {
		return err
	}
	return nil
}

func (o *TableOptions) postGISMajor() (int, error) {
	major, _, _ := strings.Cut(strings.TrimSpace(o.PostGISVersion), ".")
	n, err := strconv.Atoi(major)
	if err != nil || n < 1 {
		return 0, errors.Errorf("invalid POSTGIS_VERSION %q", o.PostGISVersion)
	}
	return n, nil
}

func (o *TableOptions) postGIS1() bool {
	n, _ := o.postGISMajor()
	return n == 1
}

func (o *TableOptions) variant() geom.Variant {
	if o.postGIS1() {
		return geom.VariantPostGIS1
	}
	return geom.VariantPostGIS2
}

func (o *TableOptions) storage() schema.Storage {
	if o.GeomType == string(schema.StorageGeography) {
		return schema.StorageGeography
	}
	return schema.StorageGeometry
}

// defaultGeometryName geometry 列默认为 wkb_geometry，geography 列默认为 the_geog
func (o *TableOptions) defaultGeometryName() string {
	if o.storage() == schema.StorageGeography {
		return "the_geog"
	}
	return "wkb_geometry"
}

// createOptions 单次写入要素的选项
type createOptions struct {
	mode    emit.LoadMode
	hasMode bool
}

type CreateOption func(*createOptions)

// WithLoadMode 指定本次写入的加载方式，优先于脚本级设置
func WithLoadMode(mode emit.LoadMode) CreateOption {
	return func(o *createOptions) {
		o.mode, o.hasMode = mode, true
	}
}
