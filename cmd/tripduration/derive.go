package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/signalsfoundry/tripduration/internal/batch"
	"github.com/signalsfoundry/tripduration/internal/logging"
)

type deriveOptions struct {
	in         string
	out        string
	format     string
	chunkSize  int
	noProgress bool
}

func newDeriveCmd(root *rootOptions) *cobra.Command {
	opts := &deriveOptions{}
	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Add distance, bearing and log-duration columns to a trip CSV",
		Long: `derive reads a raw trip export, computes the geodesic distance and initial
bearing for every trip and, where trip_duration is present, its log1p training
target. Output is CSV or Parquet. Missing coordinate columns, an invalid
coordinate or a negative duration abort the run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDerive(cmd, opts, root.logger(cmd))
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.in, "in", "-", "input trip CSV, - for stdin")
	f.StringVar(&opts.out, "out", "-", "output file, - for stdout")
	f.StringVar(&opts.format, "format", "", "csv or parquet (default: from --out extension)")
	f.IntVar(&opts.chunkSize, "chunk-size", batch.DefaultChunkSize, "trips per derivation batch")
	f.BoolVar(&opts.noProgress, "no-progress", false, "disable the progress bar")
	return cmd
}

func runDerive(cmd *cobra.Command, opts *deriveOptions, log logging.Logger) error {
	ctx := cmd.Context()
	start := time.Now()

	format, err := outputFormat(opts.format, opts.out)
	if err != nil {
		return err
	}

	trips, err := readTrips(cmd.InOrStdin(), opts.in)
	if err != nil {
		return err
	}

	progress := func(int) {}
	var bar *progressbar.ProgressBar
	if !opts.noProgress && len(trips) > 0 {
		bar = progressbar.NewOptions64(int64(len(trips)),
			progressbar.OptionSetWriter(cmd.ErrOrStderr()),
			progressbar.OptionSetDescription("deriving features"),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
		progress = func(done int) { _ = bar.Set(done) }
	}

	recs, err := batch.Derive(trips, batch.DeriveOptions{ChunkSize: opts.chunkSize, Progress: progress})
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		return err
	}

	if err := writeRecords(cmd.OutOrStdout(), opts.out, format, recs); err != nil {
		return err
	}
	log.Info(ctx, "features derived",
		logging.Int("trips", len(recs)),
		logging.String("format", format),
		logging.String("out", opts.out),
		logging.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func outputFormat(explicit, out string) (string, error) {
	format := strings.ToLower(explicit)
	if format == "" {
		format = "csv"
		if strings.EqualFold(filepath.Ext(out), ".parquet") {
			format = "parquet"
		}
	}
	switch format {
	case "csv":
	case "parquet":
		if out == "-" {
			return "", errors.New("parquet output needs a file path")
		}
	default:
		return "", fmt.Errorf("unknown output format %q", explicit)
	}
	return format, nil
}

func readTrips(stdin io.Reader, path string) ([]batch.TripRecord, error) {
	if path == "-" {
		return batch.ReadTrips(stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return batch.ReadTrips(f)
}

func writeRecords(stdout io.Writer, path, format string, recs []batch.DerivedRecord) error {
	if format == "parquet" {
		return batch.WriteParquet(path, recs)
	}
	if path == "-" {
		return batch.WriteCSV(stdout, recs)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := batch.WriteCSV(f, recs); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
