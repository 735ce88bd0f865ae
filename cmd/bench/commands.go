package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/Brownie44l1/classbench/internal/app"
	"github.com/Brownie44l1/classbench/internal/bench"
	"github.com/Brownie44l1/classbench/internal/config"
	"github.com/Brownie44l1/classbench/internal/imaging"
	applog "github.com/Brownie44l1/classbench/internal/log"
	"github.com/gonuts/commander"
	"github.com/gonuts/flag"
)

var (
	envFile   string
	modelID   string
	limit     int
	showItems bool
)

func addCommonFlags(cmd *commander.Command) {
	cmd.Flag.StringVar(&envFile, "env", ".env", "environment file to load")
	cmd.Flag.StringVar(&modelID, "model", "", "model identifier (default DEFAULT_MODEL)")
}

func setup() (*app.App, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	applog.Init(cfg.LogLevel)
	if modelID == "" {
		modelID = cfg.DefaultModel
	}
	return app.New(cfg)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func runCmd() *commander.Command {
	cmd := &commander.Command{
		Run:       runBenchmark,
		UsageLine: "run [options]",
		Short:     "benchmark a model against the sample dataset",
		Long: `
runs every sample of the dataset manifest through the model and reports
accuracy, latency and confidence.

	$ bench run -model resnet18 -limit 50
`,
		Flag: *flag.NewFlagSet("run", flag.ExitOnError),
	}
	addCommonFlags(cmd)
	cmd.Flag.IntVar(&limit, "limit", 0, "only use the first n samples; 0 = all")
	cmd.Flag.BoolVar(&showItems, "v", false, "print a line per item")
	return cmd
}

func runBenchmark(cmd *commander.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	d, err := a.Catalog.Lookup(modelID)
	if err != nil {
		return err
	}
	samples := a.Samples
	if limit > 0 && limit < len(samples) {
		samples = samples[:limit]
	}
	labels := a.LabelsFor(d)
	if err := bench.CheckLabels(samples, labels); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	progress := newProgressBar(len(samples), labels, showItems)
	report, err := a.Runner.Run(ctx, d, samples, progress)
	progress.Finish()
	if report != nil {
		printReport(report)
	}
	return err
}

func classifyCmd() *commander.Command {
	cmd := &commander.Command{
		Run:       runClassify,
		UsageLine: "classify [options] <image>...",
		Short:     "print the top-1 class of each image",
		Flag:      *flag.NewFlagSet("classify", flag.ExitOnError),
	}
	addCommonFlags(cmd)
	return cmd
}

func runClassify(cmd *commander.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("classify: no images given")
	}
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	d, err := a.Catalog.Lookup(modelID)
	if err != nil {
		return err
	}
	labels := a.LabelsFor(d)
	ctx, cancel := signalContext()
	defer cancel()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "IMAGE\tCLASS\tCONFIDENCE\tTIME")
	for _, path := range args {
		grid, err := a.Normalizer.NormalizeSource(ctx, imaging.FileSource{Filename: path}, d.Side)
		if err != nil {
			fmt.Fprintf(w, "%s\terror: %v\t\t\n", path, err)
			continue
		}
		p, err := a.Coordinator.Classify(ctx, d, grid)
		if err != nil {
			w.Flush()
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%.1f%%\t%.1fms\n", path, labels.Name(p.Index), 100*p.Confidence, p.ElapsedMS)
	}
	return w.Flush()
}

func modelsCmd() *commander.Command {
	cmd := &commander.Command{
		Run:       runModels,
		UsageLine: "models",
		Short:     "list available models",
		Flag:      *flag.NewFlagSet("models", flag.ExitOnError),
	}
	cmd.Flag.StringVar(&envFile, "env", ".env", "environment file to load")
	return cmd
}

func runModels(cmd *commander.Command, args []string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	catalog, err := app.Catalog(cfg)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tFAMILY\tINPUT\tCLASSES\tPATH")
	for _, d := range catalog.All() {
		marker := ""
		if d.ID == cfg.DefaultModel {
			marker = " *"
		}
		fmt.Fprintf(w, "%s%s\t%s\t%s\t%dx%d\t%d\t%s\n", d.ID, marker, d.Name, d.Family, d.Side, d.Side, d.Classes, d.Path)
	}
	return w.Flush()
}

func printReport(r *bench.Report) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "run\t%s\n", r.RunID)
	fmt.Fprintf(w, "model\t%s\n", r.Model)
	fmt.Fprintf(w, "processed\t%d/%d\n", r.Processed, r.Total)
	fmt.Fprintf(w, "scored\t%d\n", r.Scored)
	fmt.Fprintf(w, "skipped\t%d\n", r.Skipped)
	if r.HasAccuracy {
		fmt.Fprintf(w, "accuracy\t%.1f%% (%d/%d)\n", r.Accuracy, r.Correct, r.Labeled)
	} else {
		fmt.Fprintf(w, "accuracy\t--\n")
	}
	fmt.Fprintf(w, "latency\t%.1fms mean, %.1fms p50, %.1fms p95, %.1fms sd\n",
		r.MeanLatencyMS, r.P50LatencyMS, r.P95LatencyMS, r.LatencyStdDevMS)
	fmt.Fprintf(w, "confidence\t%.1f%% mean, %.1f%% when correct\n", r.MeanConfidence, r.MeanConfidenceCorrect)
	w.Flush()
}
