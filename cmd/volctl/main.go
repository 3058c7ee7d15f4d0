// Command volctl estimates volatility for bar files offline, without Kafka or
// any database.
//
//	volctl estimate -csv AAPL.csv [-benchmark GSPC.csv] [-model model.json]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"VolGuard/internal/domain/models"
	domsvc "VolGuard/internal/domain/service"
	"VolGuard/internal/services/analytics"
	"VolGuard/internal/services/bars"
	"VolGuard/internal/usecase"
	applogger "VolGuard/pkg/logger"
	"VolGuard/pkg/metrics"
)

const usage = "usage: volctl estimate -csv FILE [-benchmark FILE] [-model FILE] [-instrument TICKER]"

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 || args[0] != "estimate" {
		return errors.New(usage)
	}

	fs := flag.NewFlagSet("estimate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	csvPath := fs.String("csv", "", "instrument bars")
	benchPath := fs.String("benchmark", "", "benchmark bars, used for beta")
	modelPath := fs.String("model", "", "linear model json; historical estimator when empty")
	instrument := fs.String("instrument", "", "ticker when the file has no ticker column")
	if err := fs.Parse(args[1:]); err != nil {
		return fmt.Errorf("%v\n%s", err, usage)
	}
	if *csvPath == "" {
		return errors.New(usage)
	}

	fallback := *instrument
	if fallback == "" {
		fallback = strings.TrimSuffix(filepath.Base(*csvPath), filepath.Ext(*csvPath))
	}
	series, err := readBars(*csvPath, fallback)
	if err != nil {
		return err
	}
	var benchmark []models.PriceBar
	if *benchPath != "" {
		benchmark, err = readBars(*benchPath, strings.TrimSuffix(filepath.Base(*benchPath), filepath.Ext(*benchPath)))
		if err != nil {
			return fmt.Errorf("benchmark: %w", err)
		}
	}

	l := applogger.NewNop()
	var est domsvc.VolatilityEstimator = analytics.NewHistoricalEstimator()
	if *modelPath != "" {
		est = analytics.NewPredictiveEstimator(analytics.NewModelHolder(analytics.NewFileModelSource(*modelPath), l), l)
	}
	uc := usecase.NewVolatilityUseCase(nil, nil, nil, est, metrics.New(prometheus.NewRegistry()), l, 0, "")

	rec, err := uc.Estimate(ctx, series, benchmark, "file://"+*csvPath)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}

func readBars(path, fallback string) ([]models.PriceBar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	parsed, err := bars.ParseCSV(f, fallback)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return bars.SortByDate(parsed)
}
