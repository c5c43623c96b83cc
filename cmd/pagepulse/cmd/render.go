package cmd

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"emperror.dev/errors"
	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/voluzi/pagepulse/pkg/agent"
	"github.com/voluzi/pagepulse/pkg/chart"
)

var renderOut string
var renderSeries []string

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Writes the charts of a running agent as PNG files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		series := chart.AllSeries
		if len(renderSeries) > 0 {
			series = nil
			for _, name := range renderSeries {
				s, err := chart.ParseSeries(name)
				if err != nil {
					return err
				}
				series = append(series, s)
			}
		}
		return render(cmd.Context(), agent.NewClientFromURL(agentURL), renderOut, series)
	},
}

func init() {
	renderCmd.Flags().StringVarP(&renderOut, "out", "o", ".", "Directory receiving the PNG files")
	renderCmd.Flags().StringSliceVar(&renderSeries, "series", nil, "Series to render (default all)")
}

type chartFetcher interface {
	Chart(ctx context.Context, series chart.Series) ([]byte, error)
}

func render(ctx context.Context, client chartFetcher, dir string, series []chart.Series) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.WrapIff(err, "creating %s", dir)
	}

	var errs []error
	for _, s := range series {
		png, err := client.Chart(ctx, s)
		if err != nil {
			errs = append(errs, errors.WithDetails(err, "series", s))
			continue
		}
		path := filepath.Join(dir, string(s)+".png")
		if err := os.WriteFile(path, png, 0o644); err != nil {
			errs = append(errs, errors.WrapIff(err, "writing %s", path))
			continue
		}
		log.WithFields(log.Fields{
			"series": s,
			"path":   path,
			"size":   humanize.Bytes(uint64(len(png))),
		}).Info("chart written")
	}
	return errors.Combine(errs...)
}
