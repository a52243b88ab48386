// Package writer persists analysis output as parquet files, locally
// and optionally to S3. Depth summaries become one row per instrument;
// a single book becomes one row per price level.
package writer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	pqwriter "github.com/xitongsys/parquet-go/writer"

	appconfig "optionflow/config"
	"optionflow/logger"
	"optionflow/models"
)

// summaryRecord is the parquet schema for one depth summary row.
type summaryRecord struct {
	ProductName    string  `parquet:"name=product_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	BidsThousands  float64 `parquet:"name=bids_thousands, type=DOUBLE"`
	AsksThousands  float64 `parquet:"name=asks_thousands, type=DOUBLE"`
	CapturedAtUnix int64   `parquet:"name=captured_at, type=INT64"`
}

// levelRecord is the parquet schema for one normalized price level.
type levelRecord struct {
	InstrumentName string  `parquet:"name=instrument_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	Side           string  `parquet:"name=side, type=BYTE_ARRAY, convertedtype=UTF8"`
	Level          int32   `parquet:"name=level, type=INT32"`
	CoinPrice      float64 `parquet:"name=coin_price, type=DOUBLE"`
	Quantity       float64 `parquet:"name=quantity, type=DOUBLE"`
	USDPrice       float64 `parquet:"name=usd_price, type=DOUBLE"`
	TotalUSD       float64 `parquet:"name=total_usd, type=DOUBLE"`
	CumulativeUSD  float64 `parquet:"name=cumulative_usd, type=DOUBLE"`
}

// memoryFile implements source.ParquetFile over a byte buffer so a
// whole file can be built before it is persisted or uploaded.
type memoryFile struct {
	buffer *bytes.Buffer
}

func newMemoryFile() *memoryFile {
	return &memoryFile{buffer: &bytes.Buffer{}}
}

func (m *memoryFile) Create(name string) (source.ParquetFile, error) { return m, nil }
func (m *memoryFile) Open(name string) (source.ParquetFile, error)   { return m, nil }

func (m *memoryFile) Seek(offset int64, whence int) (int64, error) {
	// Write-only usage; the writer never seeks backwards.
	return int64(m.buffer.Len()), nil
}

func (m *memoryFile) Read(b []byte) (int, error)  { return m.buffer.Read(b) }
func (m *memoryFile) Write(b []byte) (int, error) { return m.buffer.Write(b) }
func (m *memoryFile) Close() error                { return nil }
func (m *memoryFile) Bytes() []byte               { return m.buffer.Bytes() }

// Writer persists depth summaries and single books.
type Writer struct {
	config   *appconfig.Config
	uploader *s3Uploader
	log      *logger.Log
}

// NewWriter creates a Writer. When S3 storage is enabled the uploader
// is initialised eagerly so credential problems surface at startup,
// not after a long fetch.
func NewWriter(cfg *appconfig.Config) (*Writer, error) {
	w := &Writer{config: cfg, log: logger.GetLogger()}
	if cfg.Storage.S3.Enabled {
		uploader, err := newS3Uploader(cfg)
		if err != nil {
			return nil, err
		}
		w.uploader = uploader
	}
	return w, nil
}

// WriteSummaries persists one parquet file containing the given rows
// and returns the local path it was written to.
func (w *Writer) WriteSummaries(ctx context.Context, asset string, summaries []models.DepthSummary) (string, error) {
	now := time.Now().UTC()
	records := make([]interface{}, len(summaries))
	for i, s := range summaries {
		records[i] = summaryRecord{
			ProductName:    s.InstrumentName,
			BidsThousands:  s.BidNotionalThousands,
			AsksThousands:  s.AskNotionalThousands,
			CapturedAtUnix: now.Unix(),
		}
	}
	name := objectName("depth_summary", asset, now)
	return w.persist(ctx, name, new(summaryRecord), records, len(summaries))
}

// WriteBook persists the per-level depth of one normalized book.
func (w *Writer) WriteBook(ctx context.Context, book models.NormalizedBook) (string, error) {
	records := make([]interface{}, 0, len(book.Bids)+len(book.Asks))
	for i, lvl := range book.Bids {
		records = append(records, toLevelRecord(book.InstrumentName, "bid", i, lvl))
	}
	for i, lvl := range book.Asks {
		records = append(records, toLevelRecord(book.InstrumentName, "ask", i, lvl))
	}
	name := objectName("book", book.InstrumentName, time.Now().UTC())
	return w.persist(ctx, name, new(levelRecord), records, len(records))
}

func toLevelRecord(instrument, side string, index int, lvl models.PriceLevel) levelRecord {
	return levelRecord{
		InstrumentName: instrument,
		Side:           side,
		Level:          int32(index + 1),
		CoinPrice:      lvl.Price,
		Quantity:       lvl.Quantity,
		USDPrice:       lvl.USDPrice,
		TotalUSD:       lvl.NotionalUSD,
		CumulativeUSD:  lvl.CumulativeNotionalUSD,
	}
}

func (w *Writer) persist(ctx context.Context, name string, schema interface{}, records []interface{}, rows int) (string, error) {
	buf, err := w.encode(schema, records)
	if err != nil {
		return "", err
	}

	path := filepath.Join(w.config.Output.Directory, name)
	if err := os.WriteFile(path, buf, 0644); err != nil {
		return "", fmt.Errorf("write parquet file: %w", err)
	}

	log := w.log.WithComponent("writer").WithFields(logger.Fields{
		"path":  path,
		"rows":  rows,
		"bytes": len(buf),
	})
	log.Info("wrote parquet file")

	if w.uploader != nil {
		key := name
		if prefix := strings.TrimSuffix(w.config.Storage.S3.Prefix, "/"); prefix != "" {
			key = prefix + "/" + name
		}
		if err := w.uploader.upload(ctx, key, buf); err != nil {
			return path, fmt.Errorf("upload %s: %w", key, err)
		}
		log.WithFields(logger.Fields{"s3_key": key}).Info("uploaded parquet file")
	}

	return path, nil
}

func (w *Writer) encode(schema interface{}, records []interface{}) ([]byte, error) {
	mf := newMemoryFile()
	pw, err := pqwriter.NewParquetWriter(mf, schema, 1)
	if err != nil {
		return nil, fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = compressionCodec(w.config.Output.Parquet.Compression)

	for _, record := range records {
		if err := pw.Write(record); err != nil {
			return nil, fmt.Errorf("write parquet record: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("finalize parquet file: %w", err)
	}
	return mf.Bytes(), nil
}

func compressionCodec(name string) parquet.CompressionCodec {
	switch strings.ToLower(name) {
	case "gzip":
		return parquet.CompressionCodec_GZIP
	case "none", "uncompressed":
		return parquet.CompressionCodec_UNCOMPRESSED
	default:
		return parquet.CompressionCodec_SNAPPY
	}
}

func objectName(kind, label string, ts time.Time) string {
	id := strings.Split(uuid.New().String(), "-")[0]
	return fmt.Sprintf("%s_%s_%s_%s.parquet", kind, label, ts.Format("20060102T150405Z"), id)
}
