package script

import (
	"bytes"
	"strings"
	"testing"

	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/hatlonely/pgdump/emit"
	"github.com/hatlonely/pgdump/errs"
	"github.com/hatlonely/pgdump/feature"
	"github.com/hatlonely/pgdump/geom"
	"github.com/hatlonely/pgdump/literal"
	"github.com/hatlonely/pgdump/log"
	"github.com/hatlonely/pgdump/schema"
)

const (
	hexPoint12   = "0101000000000000000000F03F0000000000000040"
	hexPoint00   = "010100000000000000000000000000000000000000"
	hexPointZ123 = "0101000080000000000000F03F00000000000000400000000000000840"
)

func newTestWriter(options *Options) (*Writer, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	if options == nil {
		options = &Options{}
	}
	options.Logger = log.Discard()
	w, err := NewWriterWithOptions(buf, options)
	So(err, ShouldBeNil)
	return w, buf
}

func newTableOptions(kv map[string]string) *TableOptions {
	options, err := NewTableOptions(kv)
	So(err, ShouldBeNil)
	return options
}

func noGeometry(kv map[string]string) *TableOptions {
	options := newTableOptions(kv)
	options.GeometryType = "NONE"
	return options
}

func scriptLines(buf *bytes.Buffer) []string {
	text := strings.TrimSuffix(buf.String(), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func countPrefix(lines []string, prefix string) int {
	n := 0
	for _, line := range lines {
		if strings.HasPrefix(line, prefix) {
			n++
		}
	}
	return n
}

type failingWriter struct {
	err error
}

func (w *failingWriter) Write(p []byte) (int, error) {
	return 0, w.err
}

func TestWriterPostGIS1(t *testing.T) {
	Convey("测试 PostGIS 1.x 带隐式几何列的表", t, func() {
		w, buf := newTestWriter(nil)
		tbl, err := w.CreateTable("tpoly", newTableOptions(map[string]string{"DIM": "3", "POSTGIS_VERSION": "1.5"}))
		So(err, ShouldBeNil)

		So(tbl.AddField(&schema.Column{Name: "AREA", Type: literal.FieldReal}), ShouldBeNil)
		So(tbl.AddField(&schema.Column{Name: "EAS_ID", Type: literal.FieldInteger}), ShouldBeNil)
		So(tbl.AddField(&schema.Column{Name: "PRFEDEA"}), ShouldBeNil)
		So(tbl.AddField(&schema.Column{Name: "SHORTNAME", Width: 8}), ShouldBeNil)

		f := feature.NewMapFeature()
		f.SetField("AREA", 5268.813)
		f.SetField("EAS_ID", 170)
		f.SetField("PRFEDEA", "35043413")
		f.SetGeometry("", geom.NewPointZ(1, 2, 3))
		id, err := tbl.CreateFeature(f)
		So(err, ShouldBeNil)
		So(id, ShouldEqual, 1)
		fid, ok := f.ID()
		So(ok, ShouldBeTrue)
		So(fid, ShouldEqual, 1)

		So(w.Close(), ShouldBeNil)
		So(scriptLines(buf), ShouldResemble, []string{
			`DROP TABLE IF EXISTS "public"."tpoly" CASCADE;`,
			`DELETE FROM geometry_columns WHERE f_table_name = 'tpoly' AND f_table_schema = 'public';`,
			`BEGIN;`,
			`CREATE TABLE "public"."tpoly" ( "ogc_fid" SERIAL, "area" FLOAT8, "eas_id" INTEGER, "prfedea" VARCHAR, "shortname" VARCHAR(8), CONSTRAINT "tpoly_pk" PRIMARY KEY ("ogc_fid") );`,
			`SELECT AddGeometryColumn('public','tpoly','wkb_geometry',-1,'GEOMETRY',3);`,
			`CREATE INDEX "tpoly_wkb_geometry_geom_idx" ON "public"."tpoly" USING GIST ("wkb_geometry");`,
			`INSERT INTO "public"."tpoly" ("wkb_geometry" , "area", "eas_id", "prfedea") VALUES ('` + hexPointZ123 + `', 5268.813, 170, '35043413');`,
			`SELECT setval(pg_get_serial_sequence('"public"."tpoly"', 'ogc_fid'), MAX("ogc_fid")) FROM "public"."tpoly";`,
			`COMMIT;`,
		})
	})
}

func TestWriterCopy(t *testing.T) {
	Convey("测试 COPY 输出到其他 schema", t, func() {
		w, buf := newTestWriter(&Options{UseCopy: true})
		So(w.LoadMode(), ShouldEqual, emit.LoadCopyPreferred)

		options := newTableOptions(map[string]string{"SCHEMA": "another_schema", "GEOMETRY_NAME": "the_geom", "SRID": "4326"})
		options.GeometryType = "POINT"
		tbl, err := w.CreateTable("tpoly", options)
		So(err, ShouldBeNil)
		So(tbl.AddField(&schema.Column{Name: "name"}), ShouldBeNil)

		f1 := feature.NewMapFeature()
		f1.SetField("name", "first")
		f1.SetGeometry("", geom.NewPoint(1, 2))
		_, err = tbl.CreateFeature(f1)
		So(err, ShouldBeNil)

		f2 := feature.NewMapFeature()
		f2.SetField("name", "")
		_, err = tbl.CreateFeature(f2)
		So(err, ShouldBeNil)

		f3 := feature.NewMapFeature()
		f3.SetGeometry("", geom.NewPoint(1, 2))
		f3.SetFieldNull("name")
		_, err = tbl.CreateFeature(f3)
		So(err, ShouldBeNil)

		So(w.Close(), ShouldBeNil)
		So(scriptLines(buf), ShouldResemble, []string{
			`CREATE SCHEMA IF NOT EXISTS "another_schema";`,
			`DROP TABLE IF EXISTS "another_schema"."tpoly" CASCADE;`,
			`BEGIN;`,
			`CREATE TABLE "another_schema"."tpoly" ( "ogc_fid" SERIAL, "name" VARCHAR, CONSTRAINT "tpoly_pk" PRIMARY KEY ("ogc_fid") );`,
			`SELECT AddGeometryColumn('another_schema','tpoly','the_geom',4326,'POINT',2);`,
			`CREATE INDEX "tpoly_the_geom_geom_idx" ON "another_schema"."tpoly" USING GIST ("the_geom");`,
			`COPY "another_schema"."tpoly" ("the_geom", "name") FROM STDIN;`,
			"0101000020E6100000000000000000F03F0000000000000040\tfirst",
			"\\N\t",
			"0101000020E6100000000000000000F03F0000000000000040\t\\N",
			`\.`,
			`SELECT setval(pg_get_serial_sequence('"another_schema"."tpoly"', 'ogc_fid'), MAX("ogc_fid")) FROM "another_schema"."tpoly";`,
			`COMMIT;`,
		})
	})

	Convey("测试两张表交替写出时结束对方的 COPY 块", t, func() {
		w, buf := newTestWriter(nil)
		w.SetLoadMode(emit.LoadCopy)

		a, err := w.CreateTable("a", noGeometry(nil))
		So(err, ShouldBeNil)
		So(a.AddField(&schema.Column{Name: "v", Type: literal.FieldInteger}), ShouldBeNil)
		f := feature.NewMapFeature()
		f.SetField("v", 1)
		_, err = a.CreateFeature(f)
		So(err, ShouldBeNil)

		b, err := w.CreateTable("b", noGeometry(nil))
		So(err, ShouldBeNil)
		So(b.AddField(&schema.Column{Name: "v", Type: literal.FieldInteger}), ShouldBeNil)
		f = feature.NewMapFeature()
		f.SetField("v", 2)
		_, err = b.CreateFeature(f)
		So(err, ShouldBeNil)

		f = feature.NewMapFeature()
		f.SetField("v", 3)
		_, err = a.CreateFeature(f)
		So(err, ShouldBeNil)

		So(w.Close(), ShouldBeNil)
		So(scriptLines(buf), ShouldResemble, []string{
			`DROP TABLE IF EXISTS "public"."a" CASCADE;`,
			`BEGIN;`,
			`CREATE TABLE "public"."a" (    "ogc_fid" SERIAL,    "v" INTEGER,    CONSTRAINT "a_pk" PRIMARY KEY ("ogc_fid") );`,
			`COPY "public"."a" ("v") FROM STDIN;`,
			`1`,
			`\.`,
			`DROP TABLE IF EXISTS "public"."b" CASCADE;`,
			`CREATE TABLE "public"."b" (    "ogc_fid" SERIAL,    "v" INTEGER,    CONSTRAINT "b_pk" PRIMARY KEY ("ogc_fid") );`,
			`COPY "public"."b" ("v") FROM STDIN;`,
			`2`,
			`\.`,
			`COPY "public"."a" ("v") FROM STDIN;`,
			`3`,
			`\.`,
			`SELECT setval(pg_get_serial_sequence('"public"."a"', 'ogc_fid'), MAX("ogc_fid")) FROM "public"."a";`,
			`SELECT setval(pg_get_serial_sequence('"public"."b"', 'ogc_fid'), MAX("ogc_fid")) FROM "public"."b";`,
			`COMMIT;`,
		})
	})
}

func writeFIDFeatures(tbl *Table, opts ...CreateOption) {
	So(tbl.AddField(&schema.Column{Name: "str"}), ShouldBeNil)
	err := tbl.AddField(&schema.Column{Name: "myfid"})
	So(errors.Is(err, errs.ErrSchema), ShouldBeTrue)
	So(tbl.AddField(&schema.Column{Name: "myfid", Type: literal.FieldInteger}), ShouldBeNil)
	So(tbl.AddField(&schema.Column{Name: "str2"}), ShouldBeNil)

	f := feature.NewMapFeature()
	f.SetField("str", "first string")
	f.SetField("myfid", 10)
	f.SetField("str2", "second string")
	id, err := tbl.CreateFeature(f, opts...)
	So(err, ShouldBeNil)
	So(id, ShouldEqual, 10)

	f = feature.NewMapFeature()
	f.SetField("str2", "second string")
	id, err = tbl.CreateFeature(f, opts...)
	So(err, ShouldBeNil)
	So(id, ShouldEqual, 1)
	So(f.Field("myfid"), ShouldEqual, int64(1))

	f = feature.NewMapFeature()
	f.SetID(1)
	f.SetField("myfid", 10)
	_, err = tbl.CreateFeature(f, opts...)
	So(errors.Is(err, errs.ErrConstraint), ShouldBeTrue)

	f = feature.NewMapFeature()
	f.SetField("myfid", 10)
	_, err = tbl.CreateFeature(f, opts...)
	So(errors.Is(err, errs.ErrConstraint), ShouldBeTrue)

	f = feature.NewMapFeature()
	f.SetField("str", "first string")
	f.SetField("myfid", 12)
	f.SetField("str2", "second string")
	id, err = tbl.CreateFeature(f, opts...)
	So(err, ShouldBeNil)
	So(id, ShouldEqual, 12)
}

func TestWriterFIDField(t *testing.T) {
	Convey("测试与主键同名的字段", t, func() {
		head := []string{
			`DROP TABLE IF EXISTS "public"."test" CASCADE;`,
			`BEGIN;`,
			`CREATE TABLE "public"."test" (    "myfid" SERIAL,    "str" VARCHAR,    "str2" VARCHAR,    CONSTRAINT "test_pk" PRIMARY KEY ("myfid") );`,
		}
		tail := []string{
			`SELECT setval(pg_get_serial_sequence('"public"."test"', 'myfid'), MAX("myfid")) FROM "public"."test";`,
			`COMMIT;`,
		}

		Convey("INSERT", func() {
			w, buf := newTestWriter(nil)
			tbl, err := w.CreateTable("test", noGeometry(map[string]string{"FID": "myfid"}))
			So(err, ShouldBeNil)
			writeFIDFeatures(tbl)
			So(w.Close(), ShouldBeNil)

			expected := append(append([]string{}, head...),
				`INSERT INTO "public"."test" ("myfid" , "str", "str2") VALUES (10, 'first string', 'second string');`,
				`INSERT INTO "public"."test" ("str2") VALUES ('second string');`,
				`INSERT INTO "public"."test" ("myfid" , "str", "str2") VALUES (12, 'first string', 'second string');`,
			)
			So(scriptLines(buf), ShouldResemble, append(expected, tail...))
		})

		Convey("优先 COPY", func() {
			w, buf := newTestWriter(nil)
			tbl, err := w.CreateTable("test", noGeometry(map[string]string{"FID": "myfid"}))
			So(err, ShouldBeNil)
			writeFIDFeatures(tbl, WithLoadMode(emit.LoadCopyPreferred))
			So(w.Close(), ShouldBeNil)

			expected := append(append([]string{}, head...),
				`COPY "public"."test" ("myfid", "str", "str2") FROM STDIN;`,
				"10\tfirst string\tsecond string",
				`\.`,
				`INSERT INTO "public"."test" ("str2") VALUES ('second string');`,
				`COPY "public"."test" ("myfid", "str", "str2") FROM STDIN;`,
				"12\tfirst string\tsecond string",
				`\.`,
			)
			So(scriptLines(buf), ShouldResemble, append(expected, tail...))
		})
	})
}

func TestWriterNotNull(t *testing.T) {
	Convey("测试非空约束", t, func() {
		w, buf := newTestWriter(nil)
		tbl, err := w.CreateTable("test", noGeometry(nil))
		So(err, ShouldBeNil)
		So(tbl.AddField(&schema.Column{Name: "field_not_nullable", NotNull: true}), ShouldBeNil)
		So(tbl.AddField(&schema.Column{Name: "field_nullable", Unique: true}), ShouldBeNil)
		So(tbl.AddGeometryField(&schema.GeometryColumn{Name: "geomfield_not_nullable", Type: geom.TypePoint, NotNull: true}), ShouldBeNil)
		So(tbl.AddGeometryField(&schema.GeometryColumn{Name: "geomfield_nullable", Type: geom.TypePoint}), ShouldBeNil)

		f := feature.NewMapFeature()
		f.SetField("field_not_nullable", "not_null")
		f.SetGeometry("geomfield_not_nullable", geom.NewPoint(0, 0))
		_, err = tbl.CreateFeature(f)
		So(err, ShouldBeNil)

		verify := func() {
			So(w.Close(), ShouldBeNil)
			lines := scriptLines(buf)
			So(countPrefix(lines, "INSERT"), ShouldEqual, 1)
			So(lines[2:8], ShouldResemble, []string{
				`CREATE TABLE "public"."test" (    "ogc_fid" SERIAL,    "field_not_nullable" VARCHAR NOT NULL,    "field_nullable" VARCHAR UNIQUE,    CONSTRAINT "test_pk" PRIMARY KEY ("ogc_fid") );`,
				`SELECT AddGeometryColumn('public','test','geomfield_not_nullable',0,'POINT',2);`,
				`ALTER TABLE "test" ALTER COLUMN "geomfield_not_nullable" SET NOT NULL;`,
				`CREATE INDEX "test_geomfield_not_nullable_geom_idx" ON "public"."test" USING GIST ("geomfield_not_nullable");`,
				`SELECT AddGeometryColumn('public','test','geomfield_nullable',0,'POINT',2);`,
				`CREATE INDEX "test_geomfield_nullable_geom_idx" ON "public"."test" USING GIST ("geomfield_nullable");`,
			})
			So(lines[8], ShouldEqual, `INSERT INTO "public"."test" ("geomfield_not_nullable" , "field_not_nullable") VALUES ('`+hexPoint00+`', 'not_null');`)
		}

		Convey("缺少非空属性", func() {
			f := feature.NewMapFeature()
			f.SetGeometry("geomfield_not_nullable", geom.NewPoint(0, 0))
			_, err := tbl.CreateFeature(f)
			So(errors.Is(err, errs.ErrConstraint), ShouldBeTrue)
			verify()
		})

		Convey("属性为 NULL", func() {
			f := feature.NewMapFeature()
			f.SetFieldNull("field_not_nullable")
			f.SetGeometry("geomfield_not_nullable", geom.NewPoint(0, 0))
			_, err := tbl.CreateFeature(f)
			So(errors.Is(err, errs.ErrConstraint), ShouldBeTrue)
			verify()
		})

		Convey("缺少非空几何", func() {
			f := feature.NewMapFeature()
			f.SetField("field_not_nullable", "not_null")
			_, err := tbl.CreateFeature(f)
			So(errors.Is(err, errs.ErrConstraint), ShouldBeTrue)
			verify()
		})
	})
}

func TestWriterDefaults(t *testing.T) {
	Convey("测试带默认值的列", t, func() {
		w, buf := newTestWriter(nil)
		tbl, err := w.CreateTable("test", noGeometry(nil))
		So(err, ShouldBeNil)
		So(tbl.Flush(), ShouldBeNil)
		So(tbl.Phase(), ShouldEqual, schema.PhaseFinalized)

		So(tbl.AddField(&schema.Column{Name: "field_string", Default: "'a''b'"}), ShouldBeNil)
		So(tbl.AddField(&schema.Column{Name: "field_int", Type: literal.FieldInteger, Default: "123"}), ShouldBeNil)
		So(tbl.AddField(&schema.Column{Name: "field_datetime", Type: literal.FieldDateTime, Default: "CURRENT_TIMESTAMP"}), ShouldBeNil)
		So(tbl.AddField(&schema.Column{Name: "field_datetime2", Type: literal.FieldDateTime, Default: "'2015/06/30 12:34:56'"}), ShouldBeNil)

		full := func(s string) feature.Feature {
			f := feature.NewMapFeature()
			f.SetField("field_string", s)
			f.SetField("field_int", 456)
			f.SetField("field_datetime", "2015/06/30 12:34:56")
			f.SetField("field_datetime2", "2015/06/30 12:34:56")
			return f
		}

		ddl := []string{
			`DROP TABLE IF EXISTS "public"."test" CASCADE;`,
			`BEGIN;`,
			`CREATE TABLE "public"."test" (    "ogc_fid" SERIAL,    CONSTRAINT "test_pk" PRIMARY KEY ("ogc_fid") );`,
			`ALTER TABLE "public"."test" ADD COLUMN "field_string" VARCHAR DEFAULT 'a''b';`,
			`ALTER TABLE "public"."test" ADD COLUMN "field_int" INTEGER DEFAULT 123;`,
			`ALTER TABLE "public"."test" ADD COLUMN "field_datetime" timestamp with time zone DEFAULT CURRENT_TIMESTAMP;`,
			`ALTER TABLE "public"."test" ADD COLUMN "field_datetime2" timestamp with time zone DEFAULT '2015/06/30 12:34:56+00'::timestamp with time zone;`,
		}
		header := `COPY "public"."test" ("field_string", "field_int", "field_datetime", "field_datetime2") FROM STDIN;`

		Convey("优先 COPY 时未设置的默认值列改用 INSERT", func() {
			w.SetLoadMode(emit.LoadCopyPreferred)
			_, err := tbl.CreateFeature(full("a"))
			So(err, ShouldBeNil)
			_, err = tbl.CreateFeature(feature.NewMapFeature())
			So(err, ShouldBeNil)
			_, err = tbl.CreateFeature(full("b"))
			So(err, ShouldBeNil)
			So(w.Close(), ShouldBeNil)

			expected := append(append([]string{}, ddl...),
				header,
				"a\t456\t2015/06/30 12:34:56\t2015/06/30 12:34:56",
				`\.`,
				`INSERT INTO "public"."test" DEFAULT VALUES;`,
				header,
				"b\t456\t2015/06/30 12:34:56\t2015/06/30 12:34:56",
				`\.`,
				`SELECT setval(pg_get_serial_sequence('"public"."test"', 'ogc_fid'), MAX("ogc_fid")) FROM "public"."test";`,
				`COMMIT;`,
			)
			So(scriptLines(buf), ShouldResemble, expected)
		})

		Convey("只用 COPY 时未设置的默认值列返回错误", func() {
			w.SetLoadMode(emit.LoadCopy)
			_, err := tbl.CreateFeature(feature.NewMapFeature())
			So(errors.Is(err, errs.ErrConstraint), ShouldBeTrue)
			So(w.Close(), ShouldBeNil)
			So(countPrefix(scriptLines(buf), "INSERT"), ShouldEqual, 0)
			So(countPrefix(scriptLines(buf), "COPY"), ShouldEqual, 0)
		})

		Convey("表结构变化时结束 COPY 块", func() {
			w.SetLoadMode(emit.LoadCopyPreferred)
			_, err := tbl.CreateFeature(full("a"))
			So(err, ShouldBeNil)
			So(tbl.AddField(&schema.Column{Name: "extra"}), ShouldBeNil)
			So(w.Close(), ShouldBeNil)

			lines := scriptLines(buf)
			So(lines[len(ddl):len(ddl)+4], ShouldResemble, []string{
				header,
				"a\t456\t2015/06/30 12:34:56\t2015/06/30 12:34:56",
				`\.`,
				`ALTER TABLE "public"."test" ADD COLUMN "extra" VARCHAR;`,
			})
		})
	})
}

func TestWriterEWKT(t *testing.T) {
	Convey("测试 EWKT 输出", t, func() {
		w, buf := newTestWriter(nil)
		tbl, err := w.CreateTable("test", noGeometry(map[string]string{"WRITE_EWKT_GEOM": "YES"}))
		So(err, ShouldBeNil)
		So(tbl.AddGeometryField(&schema.GeometryColumn{Name: "point_nosrs", Type: geom.TypePoint}), ShouldBeNil)
		So(tbl.AddGeometryField(&schema.GeometryColumn{Name: "poly", Type: geom.TypePolygon, Dim: geom.DimXYZ, SRID: 4326}), ShouldBeNil)

		_, err = tbl.CreateFeature(feature.NewMapFeature())
		So(err, ShouldBeNil)

		f := feature.NewMapFeature()
		f.SetGeometry("point_nosrs", geom.NewPoint(1, 2))
		f.SetGeometry("poly", &geom.Polygon{Dim: geom.DimXYZ, Rings: [][]geom.Coord{{
			{X: 0, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 0}, {X: 0, Y: 0},
		}}})
		_, err = tbl.CreateFeature(f)
		So(err, ShouldBeNil)
		So(w.Close(), ShouldBeNil)

		lines := scriptLines(buf)
		So(lines, ShouldContain, `SELECT AddGeometryColumn('public','test','poly',4326,'POLYGON',3);`)
		So(lines, ShouldContain, `INSERT INTO "public"."test" DEFAULT VALUES;`)
		So(lines, ShouldContain, `INSERT INTO "public"."test" ("point_nosrs" , "poly" ) VALUES (`+
			`GeomFromEWKT('SRID=0;POINT (1 2)'::TEXT) , `+
			`GeomFromEWKT('SRID=4326;POLYGON Z ((0 0 0,0 1 0,1 1 0,1 0 0,0 0 0))'::TEXT) );`)
	})
}

func TestWriterGeometry(t *testing.T) {
	Convey("测试几何列", t, func() {
		w, buf := newTestWriter(nil)

		Convey("geography 四维点", func() {
			options := newTableOptions(map[string]string{"GEOM_TYPE": "geography", "DIM": "XYZM"})
			options.GeometryType = "POINT"
			tbl, err := w.CreateTable("test", options)
			So(err, ShouldBeNil)

			f := feature.NewMapFeature()
			f.SetGeometry("", geom.NewPointZM(1, 2, 3, 4))
			_, err = tbl.CreateFeature(f)
			So(err, ShouldBeNil)
			So(w.Close(), ShouldBeNil)

			lines := scriptLines(buf)
			So(lines, ShouldContain, `CREATE TABLE "public"."test" ( "ogc_fid" SERIAL, "the_geog" geography(POINTZM), CONSTRAINT "test_pk" PRIMARY KEY ("ogc_fid") );`)
			So(lines, ShouldContain, `CREATE INDEX "test_the_geog_geom_idx" ON "public"."test" USING GIST ("the_geog");`)
			So(lines, ShouldContain, `INSERT INTO "public"."test" ("the_geog" ) VALUES ('01B90B0000000000000000F03F000000000000004000000000000008400000000000001040');`)
			So(countPrefix(lines, "SELECT AddGeometryColumn"), ShouldEqual, 0)
		})

		Convey("geometry 四维列注册为 4 维", func() {
			options := newTableOptions(map[string]string{"DIM": "4"})
			options.GeometryType = "POINT"
			_, err := w.CreateTable("test", options)
			So(err, ShouldBeNil)
			So(w.Close(), ShouldBeNil)
			So(scriptLines(buf), ShouldContain, `SELECT AddGeometryColumn('public','test','wkb_geometry',0,'POINT',4);`)
		})

		Convey("未指定维度时按二维写出", func() {
			tbl, err := w.CreateTable("test", newTableOptions(nil))
			So(err, ShouldBeNil)
			f := feature.NewMapFeature()
			f.SetGeometry("", geom.NewPointZM(1, 2, 3, 4))
			_, err = tbl.CreateFeature(f)
			So(err, ShouldBeNil)
			So(w.Close(), ShouldBeNil)

			lines := scriptLines(buf)
			So(lines, ShouldContain, `SELECT AddGeometryColumn('public','test','wkb_geometry',0,'GEOMETRY',2);`)
			So(lines, ShouldContain, `INSERT INTO "public"."test" ("wkb_geometry" ) VALUES ('`+hexPoint12+`');`)
		})

		Convey("空点", func() {
			options := newTableOptions(nil)
			options.GeometryType = "POINT"
			tbl, err := w.CreateTable("test", options)
			So(err, ShouldBeNil)
			f := feature.NewMapFeature()
			f.SetGeometry("", &geom.Point{Dim: geom.DimXY, Empty: true})
			_, err = tbl.CreateFeature(f)
			So(err, ShouldBeNil)
			So(w.Close(), ShouldBeNil)
			So(scriptLines(buf), ShouldContain, `INSERT INTO "public"."test" ("wkb_geometry" ) VALUES ('0101000000000000000000F87F000000000000F87F');`)
		})

		Convey("GEOMETRY_NAME 用于新增的第一个几何列", func() {
			tbl, err := w.CreateTable("test", noGeometry(map[string]string{"GEOMETRY_NAME": "another_name"}))
			So(err, ShouldBeNil)
			So(tbl.AddGeometryField(&schema.GeometryColumn{Name: "my_geom", Type: geom.TypePoint}), ShouldBeNil)
			So(tbl.AddGeometryField(&schema.GeometryColumn{Name: "second", Type: geom.TypePoint}), ShouldBeNil)

			f := feature.NewMapFeature()
			f.SetGeometry("my_geom", geom.NewPoint(1, 2))
			_, err = tbl.CreateFeature(f)
			So(err, ShouldBeNil)
			So(w.Close(), ShouldBeNil)

			lines := scriptLines(buf)
			So(lines, ShouldContain, `SELECT AddGeometryColumn('public','test','another_name',0,'POINT',2);`)
			So(lines, ShouldContain, `SELECT AddGeometryColumn('public','test','second',0,'POINT',2);`)
			So(lines, ShouldContain, `INSERT INTO "public"."test" ("another_name" ) VALUES ('`+hexPoint12+`');`)
		})

		Convey("没有几何列的表忽略要素几何", func() {
			tbl, err := w.CreateTable("test", noGeometry(nil))
			So(err, ShouldBeNil)
			f := feature.NewMapFeature()
			f.SetGeometry("", geom.NewPoint(1, 2))
			_, err = tbl.CreateFeature(f)
			So(err, ShouldBeNil)
			So(w.Close(), ShouldBeNil)
			So(scriptLines(buf), ShouldContain, `INSERT INTO "public"."test" DEFAULT VALUES;`)
		})

		Convey("Finalize 之后新增几何列", func() {
			tbl, err := w.CreateTable("test", noGeometry(map[string]string{"SPATIAL_INDEX": "NONE"}))
			So(err, ShouldBeNil)
			So(tbl.Flush(), ShouldBeNil)
			So(tbl.AddGeometryField(&schema.GeometryColumn{Name: "g", Type: geom.TypeLineString, Dim: geom.DimXYM}), ShouldBeNil)
			So(w.Close(), ShouldBeNil)

			lines := scriptLines(buf)
			So(lines, ShouldContain, `SELECT AddGeometryColumn('public','test','g',0,'LINESTRINGM',3);`)
			So(countPrefix(lines, "CREATE INDEX"), ShouldEqual, 0)
		})
	})
}

func TestWriterTableOptions(t *testing.T) {
	Convey("测试表选项", t, func() {
		w, buf := newTestWriter(nil)

		Convey("表描述", func() {
			tbl, err := w.CreateTable("test", noGeometry(map[string]string{"DESCRIPTION": "it's a table"}))
			So(err, ShouldBeNil)
			So(tbl.SetDescription("ignored"), ShouldBeNil)
			So(tbl.Flush(), ShouldBeNil)
			So(w.Close(), ShouldBeNil)

			lines := scriptLines(buf)
			So(lines, ShouldContain, `COMMENT ON TABLE "public"."test" IS 'it''s a table';`)
			So(countPrefix(lines, "COMMENT"), ShouldEqual, 1)
		})

		Convey("Finalize 之后设置描述立即输出", func() {
			tbl, err := w.CreateTable("test", noGeometry(nil))
			So(err, ShouldBeNil)
			So(tbl.SetDescription("first"), ShouldBeNil)
			So(tbl.SetDescription("second"), ShouldBeNil)
			So(tbl.Flush(), ShouldBeNil)
			So(tbl.SetDescription("third"), ShouldBeNil)
			So(w.Close(), ShouldBeNil)

			lines := scriptLines(buf)
			So(lines, ShouldContain, `COMMENT ON TABLE "public"."test" IS 'second';`)
			So(lines, ShouldContain, `COMMENT ON TABLE "public"."test" IS 'third';`)
			So(lines, ShouldNotContain, `COMMENT ON TABLE "public"."test" IS 'first';`)
		})

		Convey("名称规范化", func() {
			tbl, err := w.CreateTable("My-Table#1", noGeometry(nil))
			So(err, ShouldBeNil)
			So(tbl.Name(), ShouldEqual, "my_table_1")
			So(tbl.AddField(&schema.Column{Name: "Field-Name"}), ShouldBeNil)

			f := feature.NewMapFeature()
			f.SetField("Field-Name", "v")
			_, err = tbl.CreateFeature(f)
			So(err, ShouldBeNil)
			So(w.Close(), ShouldBeNil)
			So(scriptLines(buf), ShouldContain, `INSERT INTO "public"."my_table_1" ("field_name") VALUES ('v');`)
		})

		Convey("LAUNDER=NO 保留原始名称", func() {
			tbl, err := w.CreateTable("My Table", noGeometry(map[string]string{"LAUNDER": "NO"}))
			So(err, ShouldBeNil)
			So(tbl.Name(), ShouldEqual, "My Table")
			So(w.Close(), ShouldBeNil)
			So(scriptLines(buf), ShouldContain, `DROP TABLE IF EXISTS "public"."My Table" CASCADE;`)
		})

		Convey("重复的表", func() {
			_, err := w.CreateTable("test", noGeometry(nil))
			So(err, ShouldBeNil)
			_, err = w.CreateTable("TEST", noGeometry(nil))
			So(errors.Is(err, errs.ErrSchema), ShouldBeTrue)
		})

		Convey("CREATE_TABLE=NO 只输出数据", func() {
			tbl, err := w.CreateTable("test", noGeometry(map[string]string{"CREATE_TABLE": "NO"}))
			So(err, ShouldBeNil)
			So(tbl.AddField(&schema.Column{Name: "v"}), ShouldBeNil)
			f := feature.NewMapFeature()
			f.SetField("v", "x")
			_, err = tbl.CreateFeature(f)
			So(err, ShouldBeNil)
			So(w.Close(), ShouldBeNil)
			So(scriptLines(buf), ShouldResemble, []string{
				`BEGIN;`,
				`INSERT INTO "public"."test" ("v") VALUES ('x');`,
				`SELECT setval(pg_get_serial_sequence('"public"."test"', 'ogc_fid'), MAX("ogc_fid")) FROM "public"."test";`,
				`COMMIT;`,
			})
		})

		Convey("DROP_TABLE=NO 与 UNLOGGED", func() {
			_, err := w.CreateTable("test", noGeometry(map[string]string{"DROP_TABLE": "NO", "UNLOGGED": "YES"}))
			So(err, ShouldBeNil)
			So(w.Close(), ShouldBeNil)
			lines := scriptLines(buf)
			So(countPrefix(lines, "DROP"), ShouldEqual, 0)
			So(lines, ShouldContain, `CREATE UNLOGGED TABLE "public"."test" (    "ogc_fid" SERIAL,    CONSTRAINT "test_pk" PRIMARY KEY ("ogc_fid") );`)
		})

		Convey("同一 schema 只创建一次", func() {
			_, err := w.CreateTable("a", noGeometry(map[string]string{"SCHEMA": "s"}))
			So(err, ShouldBeNil)
			_, err = w.CreateTable("b", noGeometry(map[string]string{"SCHEMA": "s"}))
			So(err, ShouldBeNil)
			So(w.Close(), ShouldBeNil)
			So(countPrefix(scriptLines(buf), "CREATE SCHEMA"), ShouldEqual, 1)
		})

		Convey("非法选项", func() {
			_, err := NewTableOptions(map[string]string{"FID_KIND": "uuid"})
			So(err, ShouldNotBeNil)
			_, err = NewTableOptions(map[string]string{"POSTGIS_VERSION": "x"})
			So(err, ShouldNotBeNil)
			_, err = NewTableOptions(map[string]string{"DIM": "5"})
			So(err, ShouldNotBeNil)
		})
	})
}

func TestWriterPrimaryKey(t *testing.T) {
	Convey("测试主键类型", t, func() {
		w, buf := newTestWriter(nil)

		Convey("identity 主键不接受显式 ID", func() {
			tbl, err := w.CreateTable("test", noGeometry(map[string]string{"FID_KIND": "identity"}))
			So(err, ShouldBeNil)
			f := feature.NewMapFeature()
			f.SetID(5)
			_, err = tbl.CreateFeature(f)
			So(errors.Is(err, errs.ErrConstraint), ShouldBeTrue)

			id, err := tbl.CreateFeature(feature.NewMapFeature())
			So(err, ShouldBeNil)
			So(id, ShouldEqual, 1)
			So(w.Close(), ShouldBeNil)

			lines := scriptLines(buf)
			So(lines, ShouldContain, `CREATE TABLE "public"."test" (    "ogc_fid" INTEGER GENERATED ALWAYS AS IDENTITY,    CONSTRAINT "test_pk" PRIMARY KEY ("ogc_fid") );`)
			So(countPrefix(lines, "SELECT setval"), ShouldEqual, 0)
		})

		Convey("integer 主键必须提供 ID", func() {
			tbl, err := w.CreateTable("test", noGeometry(map[string]string{"FID_KIND": "integer", "FID64": "YES"}))
			So(err, ShouldBeNil)
			_, err = tbl.CreateFeature(feature.NewMapFeature())
			So(errors.Is(err, errs.ErrConstraint), ShouldBeTrue)

			f := feature.NewMapFeature()
			f.SetID(7)
			id, err := tbl.CreateFeature(f)
			So(err, ShouldBeNil)
			So(id, ShouldEqual, 7)
			So(w.Close(), ShouldBeNil)

			lines := scriptLines(buf)
			So(lines, ShouldContain, `CREATE TABLE "public"."test" (    "ogc_fid" INT8,    CONSTRAINT "test_pk" PRIMARY KEY ("ogc_fid") );`)
			So(lines, ShouldContain, `INSERT INTO "public"."test" ("ogc_fid" ) VALUES (7);`)
			So(countPrefix(lines, "SELECT setval"), ShouldEqual, 0)
		})

		Convey("显式 ID 重复", func() {
			tbl, err := w.CreateTable("test", noGeometry(nil))
			So(err, ShouldBeNil)
			_, err = tbl.CreateFeature(feature.NewMapFeature())
			So(err, ShouldBeNil)
			f := feature.NewMapFeature()
			f.SetID(1)
			_, err = tbl.CreateFeature(f)
			So(errors.Is(err, errs.ErrConstraint), ShouldBeTrue)
		})

		Convey("INT8 主键字段接受超过 32 位的 ID", func() {
			tbl, err := w.CreateTable("test", noGeometry(map[string]string{"FID": "myfid"}))
			So(err, ShouldBeNil)
			So(tbl.AddField(&schema.Column{Name: "myfid", Type: literal.FieldInteger64}), ShouldBeNil)

			f := feature.NewMapFeature()
			f.SetField("myfid", int64(5000000000))
			id, err := tbl.CreateFeature(f)
			So(err, ShouldBeNil)
			So(id, ShouldEqual, 5000000000)
			So(w.Close(), ShouldBeNil)

			lines := scriptLines(buf)
			So(lines, ShouldContain, `CREATE TABLE "public"."test" (    "myfid" BIGSERIAL,    CONSTRAINT "test_pk" PRIMARY KEY ("myfid") );`)
			So(lines, ShouldContain, `INSERT INTO "public"."test" ("myfid" ) VALUES (5000000000);`)
		})

		Convey("INTEGER 主键字段仍限制在 32 位", func() {
			tbl, err := w.CreateTable("test", noGeometry(map[string]string{"FID": "myfid"}))
			So(err, ShouldBeNil)
			So(tbl.AddField(&schema.Column{Name: "myfid", Type: literal.FieldInteger}), ShouldBeNil)

			f := feature.NewMapFeature()
			f.SetField("myfid", int64(5000000000))
			_, err = tbl.CreateFeature(f)
			So(errors.Is(err, errs.ErrConstraint), ShouldBeTrue)
		})

		Convey("不支持更新", func() {
			tbl, err := w.CreateTable("test", noGeometry(nil))
			So(err, ShouldBeNil)
			f := feature.NewMapFeature()
			f.SetID(1)
			err = tbl.UpdateFeature(f)
			So(errors.Is(err, errs.ErrConstraint), ShouldBeTrue)
		})
	})
}

func TestWriterOutput(t *testing.T) {
	Convey("测试输出", t, func() {
		Convey("没有表时不输出", func() {
			w, buf := newTestWriter(nil)
			So(w.Close(), ShouldBeNil)
			So(buf.Len(), ShouldEqual, 0)
		})

		Convey("CRLF 行结束符", func() {
			w, buf := newTestWriter(&Options{LineFormat: "crlf"})
			_, err := w.CreateTable("test", noGeometry(nil))
			So(err, ShouldBeNil)
			So(w.Close(), ShouldBeNil)
			So(strings.HasPrefix(buf.String(), `DROP TABLE IF EXISTS "public"."test" CASCADE;`+"\r\nBEGIN;\r\n"), ShouldBeTrue)
			So(strings.HasSuffix(buf.String(), "COMMIT;\r\n"), ShouldBeTrue)
		})

		Convey("写出失败后保持错误", func() {
			out := &failingWriter{err: errors.New("disk full")}
			w, err := NewWriterWithOptions(out, &Options{Logger: log.Discard()})
			So(err, ShouldBeNil)

			_, err = w.CreateTable("test", noGeometry(nil))
			So(errors.Is(err, errs.ErrIO), ShouldBeTrue)
			So(errors.Is(w.Err(), errs.ErrIO), ShouldBeTrue)

			_, err = w.CreateTable("other", noGeometry(nil))
			So(err, ShouldEqual, w.Err())
			So(w.Close(), ShouldEqual, w.Err())
		})

		Convey("关闭后不能继续写入", func() {
			w, _ := newTestWriter(nil)
			tbl, err := w.CreateTable("test", noGeometry(nil))
			So(err, ShouldBeNil)
			So(w.Close(), ShouldBeNil)
			_, err = tbl.CreateFeature(feature.NewMapFeature())
			So(err, ShouldNotBeNil)
			_, err = w.CreateTable("other", noGeometry(nil))
			So(err, ShouldNotBeNil)
		})

		Convey("非法的行结束符", func() {
			_, err := NewWriterWithOptions(&bytes.Buffer{}, &Options{LineFormat: "CR"})
			So(err, ShouldNotBeNil)
		})
	})
}

func TestWriterUnique(t *testing.T) {
	Convey("测试 UNIQUE 列", t, func() {
		w, buf := newTestWriter(nil)
		tbl, err := w.CreateTable("test", noGeometry(nil))
		So(err, ShouldBeNil)
		So(tbl.AddField(&schema.Column{Name: "u", Type: literal.FieldString, Unique: true}), ShouldBeNil)
		So(tbl.AddField(&schema.Column{Name: "n", Type: literal.FieldInteger}), ShouldBeNil)

		withU := func(u any) *feature.MapFeature {
			f := feature.NewMapFeature()
			if u == nil {
				f.SetFieldNull("u")
			} else {
				f.SetField("u", u)
			}
			return f
		}

		for _, mode := range []emit.LoadMode{emit.LoadInsert, emit.LoadCopy} {
			Convey("重复值返回约束错误且不输出 "+mode.String(), func() {
				_, err := tbl.CreateFeature(withU("dup"), WithLoadMode(mode))
				So(err, ShouldBeNil)
				_, err = tbl.CreateFeature(withU("dup"), WithLoadMode(mode))
				So(errors.Is(err, errs.ErrConstraint), ShouldBeTrue)
				_, err = tbl.CreateFeature(withU("other"), WithLoadMode(mode))
				So(err, ShouldBeNil)
				So(w.Close(), ShouldBeNil)

				lines := scriptLines(buf)
				So(lines, ShouldContain, `CREATE TABLE "public"."test" (    "ogc_fid" SERIAL,    "u" VARCHAR UNIQUE,    "n" INTEGER,    CONSTRAINT "test_pk" PRIMARY KEY ("ogc_fid") );`)
				if mode == emit.LoadInsert {
					So(countPrefix(lines, `INSERT INTO "public"."test" ("u") VALUES ('dup');`), ShouldEqual, 1)
				} else {
					So(countPrefix(lines, `COPY "public"."test" ("u", "n") FROM STDIN;`), ShouldEqual, 1)
					So(countPrefix(lines, "dup\t"), ShouldEqual, 1)
				}
			})
		}

		Convey("NULL 不参与比较", func() {
			_, err := tbl.CreateFeature(withU(nil))
			So(err, ShouldBeNil)
			_, err = tbl.CreateFeature(withU(nil))
			So(err, ShouldBeNil)
		})

		Convey("写出失败的值不被记录", func() {
			f := withU("x")
			f.SetField("n", "not a number")
			_, err := tbl.CreateFeature(f)
			So(err, ShouldNotBeNil)
			_, err = tbl.CreateFeature(withU("x"))
			So(err, ShouldBeNil)
		})
	})
}

func TestWriterFieldCopy(t *testing.T) {
	Convey("测试新增列不修改调用方的定义", t, func() {
		w, _ := newTestWriter(nil)
		tbl, err := w.CreateTable("test", noGeometry(nil))
		So(err, ShouldBeNil)

		col := &schema.Column{Name: "My-Col", Default: "'2015/06/30 12:34:56'", Type: literal.FieldDateTime}
		So(tbl.AddField(col), ShouldBeNil)
		So(col.Name, ShouldEqual, "My-Col")
		So(col.Source, ShouldEqual, "")
		So(col.Default, ShouldEqual, "'2015/06/30 12:34:56'")
		So(tbl.Definition().Column("my_col"), ShouldNotBeNil)

		dup := &schema.Column{Name: "MY-COL"}
		err = tbl.AddField(dup)
		So(errors.Is(err, errs.ErrSchema), ShouldBeTrue)
		So(dup.Name, ShouldEqual, "MY-COL")
		So(dup.Type, ShouldEqual, literal.FieldType(""))

		g := &schema.GeometryColumn{Name: "Geo-Col", Type: geom.TypePoint}
		So(tbl.AddGeometryField(g), ShouldBeNil)
		So(g.Name, ShouldEqual, "Geo-Col")
		So(g.Dim, ShouldEqual, geom.DimAuto)
		So(tbl.Definition().GeometryColumn("geo_col"), ShouldNotBeNil)
	})
}
