package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/joho/godotenv"

	"optionflow/analyzer"
	"optionflow/catalog"
	"optionflow/config"
	"optionflow/fetcher"
	"optionflow/logger"
	"optionflow/models"
	"optionflow/writer"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	instrument := flag.String("instrument", "", "Analyze a single instrument instead of the full cross-section")
	topLevels := flag.Int("levels", -1, "Sum only the best N levels per side (overrides output.top_levels; 0 = whole book)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	if cfg.Metrics.Cloudwatch.Enabled {
		logger.InitCloudWatch(cfg.Metrics.Cloudwatch.Region, cfg.Metrics.Cloudwatch.Namespace)
	}

	env := config.AppEnvironment()
	if config.IsProductionLike(env) && !cfg.Storage.S3.Enabled {
		log.WithFields(logger.Fields{"environment": env}).Warn("S3 storage disabled in a production-like environment; output stays local")
	}

	log.WithFields(logger.Fields{
		"service": cfg.Optionflow.Name,
		"version": cfg.Optionflow.Version,
		"asset":   cfg.Source.Deribit.Asset,
	}).Info("starting optionflow")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var fetchClient analyzer.Fetcher
	switch cfg.Fetcher.Transport {
	case "websocket":
		fetchClient = fetcher.NewWSClient(cfg)
	default:
		fetchClient = fetcher.NewClient(cfg)
	}

	a := analyzer.New(catalog.NewDeribit(cfg), fetchClient)

	w, err := writer.NewWriter(cfg)
	if err != nil {
		log.WithError(err).Error("Failed to create writer")
		os.Exit(1)
	}

	if *instrument != "" {
		if err := runSingleBook(ctx, cfg, a, w, *instrument); err != nil {
			log.WithError(err).Error("single book analysis failed")
			os.Exit(1)
		}
		return
	}

	if err := runDepthTable(ctx, cfg, a, w, *topLevels); err != nil {
		log.WithError(err).Error("depth analysis failed")
		os.Exit(1)
	}
}

// runDepthTable produces the cross-sectional depth table: one row per
// liquid instrument, printed to stdout and optionally exported as
// parquet.
func runDepthTable(ctx context.Context, cfg *config.Config, a *analyzer.Analyzer, w *writer.Writer, levelsFlag int) error {
	log := logger.GetLogger().WithComponent("main")

	levels := cfg.Output.TopLevels
	if levelsFlag >= 0 {
		levels = levelsFlag
	}

	summaries, err := a.DepthSummaries(ctx, levels)
	if err != nil {
		return err
	}

	log.WithFields(logger.Fields{
		"instruments": len(summaries),
		"top_levels":  levels,
	}).Info("aggregated depth summaries")

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PRODUCT\tBIDS (K USD)\tASKS (K USD)")
	for _, row := range summaries {
		fmt.Fprintf(tw, "%s\t%.2f\t%.2f\n", row.InstrumentName, row.BidNotionalThousands, row.AskNotionalThousands)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if cfg.Output.Parquet.Enabled {
		path, err := w.WriteSummaries(ctx, cfg.Source.Deribit.Asset, summaries)
		if err != nil {
			return err
		}
		log.WithFields(logger.Fields{"path": path}).Info("exported depth summaries")
	}

	return nil
}

// runSingleBook inspects one instrument: its mark price and full
// normalized depth, exported per level.
func runSingleBook(ctx context.Context, cfg *config.Config, a *analyzer.Analyzer, w *writer.Writer, name string) error {
	log := logger.GetLogger().WithComponent("main")

	book, err := a.Book(ctx, name)
	if err != nil {
		return err
	}
	if !book.Liquid() {
		log.WithFields(logger.Fields{"instrument": name}).Warn("bid or ask side empty; book is illiquid")
	}

	mark, err := a.MarkPrice(ctx, name)
	if err != nil {
		return err
	}

	log.WithFields(logger.Fields{
		"instrument": name,
		"mark_price": mark,
		"bid_levels": len(book.Bids),
		"ask_levels": len(book.Asks),
	}).Info("fetched single book")

	printSide(os.Stdout, "BIDS", book.Bids)
	printSide(os.Stdout, "ASKS", book.Asks)

	if cfg.Output.Parquet.Enabled {
		path, err := w.WriteBook(ctx, book)
		if err != nil {
			return err
		}
		log.WithFields(logger.Fields{"path": path}).Info("exported book depth")
	}

	return nil
}

func printSide(out *os.File, label string, levels []models.PriceLevel) {
	fmt.Fprintf(out, "%s\n", label)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LEVEL\tCOIN PRICE\tQUANTITY\tUSD PRICE\tTOTAL USD\tCUMULATIVE USD")
	for i, lvl := range levels {
		fmt.Fprintf(tw, "%d\t%.5f\t%.2f\t%.2f\t%.2f\t%.2f\n",
			i+1, lvl.Price, lvl.Quantity, lvl.USDPrice, lvl.NotionalUSD, lvl.CumulativeNotionalUSD)
	}
	tw.Flush()
}
