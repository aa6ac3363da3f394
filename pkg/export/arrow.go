// Package export writes pipeline result rows as Arrow IPC streams.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/rs/zerolog"

	"github.com/TFMV/cypherplan/pkg/errors"
	"github.com/TFMV/cypherplan/pkg/infrastructure/pool"
	"github.com/TFMV/cypherplan/pkg/models"
)

const defaultBatchSize = 1024

// Exporter converts rows to Arrow record batches.
type Exporter struct {
	allocator memory.Allocator
	builders  *pool.RecordBuilderPool
	batchSize int
	logger    zerolog.Logger
}

// NewExporter creates an exporter. A nil allocator uses the Go allocator.
func NewExporter(allocator memory.Allocator, logger zerolog.Logger) *Exporter {
	if allocator == nil {
		allocator = memory.NewGoAllocator()
	}
	return &Exporter{
		allocator: allocator,
		builders:  pool.NewRecordBuilderPool(allocator, 0),
		batchSize: defaultBatchSize,
		logger:    logger.With().Str("component", "export").Logger(),
	}
}

// SetBatchSize sets the number of rows per record batch.
func (e *Exporter) SetBatchSize(size int) {
	if size > 0 {
		e.batchSize = size
	}
}

// InferSchema builds a schema from the union of the rows' columns.
// Columns appear in first-seen order, with each row's new keys sorted.
// Every field is nullable. Columns whose values do not share one scalar
// kind become strings.
func InferSchema(rows []models.Row) *arrow.Schema {
	var (
		names []string
		kinds = map[string]columnKind{}
	)
	for _, row := range rows {
		keys := make([]string, 0, len(row))
		for k := range row {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			prev, seen := kinds[k]
			if !seen {
				names = append(names, k)
				prev = kindUnknown
			}
			kinds[k] = merge(prev, kindOf(row[k]))
		}
	}

	fields := make([]arrow.Field, len(names))
	for i, name := range names {
		fields[i] = arrow.Field{Name: name, Type: kinds[name].dataType(), Nullable: true}
	}
	return arrow.NewSchema(fields, nil)
}

// BuildRecord converts rows to a single record using schema. The caller
// releases the record.
func (e *Exporter) BuildRecord(schema *arrow.Schema, rows []models.Row) (arrow.Record, error) {
	b := e.builders.Get(schema)

	for _, row := range rows {
		for i, field := range schema.Fields() {
			v, ok := row[field.Name]
			if !ok {
				v = nil
			}
			if err := appendValue(b.Field(i), v); err != nil {
				e.builders.Discard(b)
				return nil, errors.Wrapf(err, errors.CodeExportFailed, "column %s", field.Name)
			}
		}
	}
	rec := b.NewRecord()
	e.builders.Put(b)
	return rec, nil
}

// Close releases pooled builders.
func (e *Exporter) Close() {
	e.builders.Close()
}

// Write streams rows to w in Arrow IPC stream format and returns the number
// of rows written.
func (e *Exporter) Write(w io.Writer, rows []models.Row) (int, error) {
	schema := InferSchema(rows)
	writer := ipc.NewWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(e.allocator))

	written := 0
	for start := 0; start < len(rows); start += e.batchSize {
		end := start + e.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		rec, err := e.BuildRecord(schema, rows[start:end])
		if err != nil {
			writer.Close()
			return written, err
		}
		err = writer.Write(rec)
		rec.Release()
		if err != nil {
			writer.Close()
			return written, errors.Wrap(err, errors.CodeExportFailed, "failed to write record batch")
		}
		written += end - start
	}

	if err := writer.Close(); err != nil {
		return written, errors.Wrap(err, errors.CodeExportFailed, "failed to close arrow writer")
	}

	e.logger.Debug().
		Int("rows", written).
		Int("columns", schema.NumFields()).
		Msg("Rows exported")
	return written, nil
}

// WriteFile writes rows to path as an Arrow IPC stream.
func (e *Exporter) WriteFile(path string, rows []models.Row) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, errors.Wrapf(err, errors.CodeExportFailed, "failed to create %s", path)
	}
	n, err := e.Write(f, rows)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = errors.Wrapf(cerr, errors.CodeExportFailed, "failed to close %s", path)
	}
	return n, err
}

type columnKind int

const (
	kindUnknown columnKind = iota
	kindBool
	kindInt
	kindFloat
	kindTime
	kindString
)

func kindOf(v interface{}) columnKind {
	switch v.(type) {
	case nil:
		return kindUnknown
	case bool:
		return kindBool
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return kindInt
	case float32, float64:
		return kindFloat
	case time.Time:
		return kindTime
	default:
		return kindString
	}
}

func merge(a, b columnKind) columnKind {
	switch {
	case a == b:
		return a
	case a == kindUnknown:
		return b
	case b == kindUnknown:
		return a
	case (a == kindInt && b == kindFloat) || (a == kindFloat && b == kindInt):
		return kindFloat
	default:
		return kindString
	}
}

func (k columnKind) dataType() arrow.DataType {
	switch k {
	case kindBool:
		return arrow.FixedWidthTypes.Boolean
	case kindInt:
		return arrow.PrimitiveTypes.Int64
	case kindFloat:
		return arrow.PrimitiveTypes.Float64
	case kindTime:
		return arrow.FixedWidthTypes.Timestamp_us
	default:
		return arrow.BinaryTypes.String
	}
}

func appendValue(fb array.Builder, v interface{}) error {
	if v == nil {
		fb.AppendNull()
		return nil
	}

	switch b := fb.(type) {
	case *array.BooleanBuilder:
		b.Append(v.(bool))
	case *array.Int64Builder:
		n, ok := toInt64(v)
		if !ok {
			return fmt.Errorf("cannot store %T as int64", v)
		}
		b.Append(n)
	case *array.Float64Builder:
		f, ok := toFloat64(v)
		if !ok {
			return fmt.Errorf("cannot store %T as float64", v)
		}
		b.Append(f)
	case *array.TimestampBuilder:
		b.Append(arrow.Timestamp(v.(time.Time).UnixMicro()))
	case *array.StringBuilder:
		b.Append(toString(v))
	default:
		return fmt.Errorf("unsupported builder %T", fb)
	}
	return nil
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	}
	return 0, false
}

func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	if i, ok := toInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}

// toString renders scalars directly and everything else as JSON.
func toString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case time.Time:
		return val.Format(time.RFC3339Nano)
	}
	if n, ok := toInt64(v); ok {
		return strconv.FormatInt(n, 10)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
