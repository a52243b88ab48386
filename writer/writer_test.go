package writer

import (
	"context"
	"os"
	"strings"
	"testing"

	appconfig "optionflow/config"
	"optionflow/models"
)

func testConfig(t *testing.T) *appconfig.Config {
	t.Helper()
	return &appconfig.Config{
		Output: appconfig.OutputConfig{
			Directory: t.TempDir(),
			Parquet:   appconfig.ParquetConfig{Enabled: true, Compression: "snappy"},
		},
	}
}

func TestWriteSummaries(t *testing.T) {
	w, err := NewWriter(testConfig(t))
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	path, err := w.WriteSummaries(context.Background(), "BTC", []models.DepthSummary{
		{InstrumentName: "BTC-26SEP26-60000-C", BidNotionalThousands: 32, AskNotionalThousands: 31},
		{InstrumentName: "BTC-26SEP26-60000-P", BidNotionalThousands: 5.5, AskNotionalThousands: 7.25},
	})
	if err != nil {
		t.Fatalf("WriteSummaries: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat output: %v", err)
	}
	if info.Size() == 0 {
		t.Error("parquet file is empty")
	}
	if !strings.Contains(path, "depth_summary_BTC_") || !strings.HasSuffix(path, ".parquet") {
		t.Errorf("unexpected file name: %s", path)
	}
}

func TestWriteBook(t *testing.T) {
	w, err := NewWriter(testConfig(t))
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	book := models.NormalizedBook{
		InstrumentName: "ETH-26SEP26-3000-P",
		Bids: []models.PriceLevel{
			{Price: 0.1, Quantity: 2, USDPrice: 250, NotionalUSD: 500, CumulativeNotionalUSD: 500},
		},
		Asks: []models.PriceLevel{
			{Price: 0.12, Quantity: 1, USDPrice: 300, NotionalUSD: 300, CumulativeNotionalUSD: 300},
			{Price: 0.15, Quantity: 4, USDPrice: 375, NotionalUSD: 1500, CumulativeNotionalUSD: 1800},
		},
	}
	path, err := w.WriteBook(context.Background(), book)
	if err != nil {
		t.Fatalf("WriteBook: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat output: %v", err)
	}
	if info.Size() == 0 {
		t.Error("parquet file is empty")
	}
}

func TestCompressionCodec(t *testing.T) {
	if compressionCodec("gzip") == compressionCodec("snappy") {
		t.Error("gzip and snappy must differ")
	}
	// unknown names fall back to snappy
	if compressionCodec("zstd") != compressionCodec("snappy") {
		t.Error("unknown codec should fall back to snappy")
	}
}
