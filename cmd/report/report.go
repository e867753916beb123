// Package report prints aggregates of the stored cycles without starting the server
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/giygas/cycletracker/aggregation"
	"github.com/giygas/cycletracker/app"
	"github.com/giygas/cycletracker/config"
	"github.com/giygas/cycletracker/cycles"
	"github.com/giygas/cycletracker/entities"
	"github.com/giygas/cycletracker/storage"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// Options are the report command flags
type Options struct {
	Substance string
	Range     string
	StepHours float64
	At        string
}

// HistoryReport is printed when a substance is requested
type HistoryReport struct {
	Substance            string                  `json:"substance"`
	Points               []aggregation.DosePoint `json:"points"`
	AverageCycleDuration *float64                `json:"averageCycleDurationDays,omitempty"`
}

// Command creates the report command
func Command(cfg *config.Config) *cobra.Command {
	opts := &Options{}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the dashboard of the open cycle, or the history of one substance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(cmd.Context(), cfg, opts, cmd.OutOrStdout(), time.Now)
		},
	}

	cmd.Flags().StringVarP(&opts.Substance, "substance", "s", "", "Print the dose history of this substance (name or id)")
	cmd.Flags().StringVarP(&opts.Range, "range", "r", "week", "Dashboard window: day, week, month or all")
	cmd.Flags().Float64Var(&opts.StepHours, "step", 0, "Series step in hours (default SERIES_STEP_HOURS)")
	cmd.Flags().StringVar(&opts.At, "at", "", "Evaluate at this RFC 3339 time instead of now")

	return cmd
}

// Run loads the stored cycles and writes the requested report to out as indented JSON
func Run(ctx context.Context, cfg *config.Config, opts *Options, out io.Writer, clock func() time.Time) error {
	if opts.At != "" {
		at, err := time.Parse(time.RFC3339, opts.At)
		if err != nil {
			return fmt.Errorf("invalid --at %q: %w", opts.At, entities.ErrInvalidParameter)
		}
		clock = func() time.Time { return at }
	}

	cat, err := app.OpenCatalog(cfg)
	if err != nil {
		return err
	}

	store, err := storage.Open(cfg)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	loaded, err := app.LoadCycles(ctx, store)
	if err != nil {
		return err
	}
	manager := cycles.NewManager(loaded, cycles.WithClock(clock))

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")

	if opts.Substance != "" {
		report, err := history(manager, cat, opts.Substance)
		if err != nil {
			return err
		}
		return enc.Encode(report)
	}

	timeRange, err := aggregation.ParseTimeRange(opts.Range)
	if err != nil {
		return err
	}
	step := opts.StepHours
	if step <= 0 {
		step = cfg.SeriesStepHours
	}

	active, ok := manager.ActiveCycle()
	if !ok {
		return fmt.Errorf("report: %w", entities.ErrNoActiveCycle)
	}
	d, err := aggregation.New(active, cat, aggregation.WithClock(clock)).Dashboard(timeRange, step)
	if err != nil {
		return err
	}
	return enc.Encode(d)
}

func history(manager *cycles.Manager, cat *app.FileBackedCatalog, query string) (HistoryReport, error) {
	substance, ok := cat.FindByName(query)
	if !ok {
		if id, err := uuid.Parse(query); err == nil {
			substance, ok = cat.Substance(id)
		}
	}
	if !ok {
		return HistoryReport{}, fmt.Errorf("substance %q: %w", query, entities.ErrNotFound)
	}

	all := manager.Cycles()
	report := HistoryReport{
		Substance: substance.Name,
		Points:    aggregation.CycleHistory(all, substance.ID),
	}
	if avg, ok := aggregation.AverageCycleDuration(all); ok {
		days := avg.Hours() / 24
		report.AverageCycleDuration = &days
	}
	return report, nil
}
