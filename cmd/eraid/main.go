// Command eraid identifies reduced state-space models of multi-channel
// room impulse responses with the randomized eigensystem realization
// algorithm.
//
// Usage:
//
//	eraid [flags] [scenario ...]
//
// Without arguments it identifies the scenario S1. A scenario name with the
// suffix _RED uses every second source of the scenario's grid.
//
// Examples:
//
//	eraid S1
//	eraid -dte LC -t -3,-6,-12 S2_RED
//	eraid -md out -db runs.db S1 S2
//	eraid -list
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/cwbudde/algo-era/dataset"
	"github.com/cwbudde/algo-era/deadtime"
	"github.com/cwbudde/algo-era/era"
	"github.com/cwbudde/algo-era/export"
	"github.com/cwbudde/algo-era/linop/rangefinder"
	"github.com/cwbudde/algo-era/measure/ir"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

func main() {
	dte := flag.String("dte", "DTS", "dead-time extraction: NONE, LC or DTS")
	tols := flag.String("t", formatDB(era.DefaultScheduleDB), "comma-separated tolerances in dB")
	modelDir := flag.String("md", "models", "directory for models, metrics and charts (empty disables)")
	dbPath := flag.String("db", "", "SQLite database for runs, models and metrics")
	charts := flag.Bool("charts", true, "render error charts into the model directory")
	list := flag.Bool("list", false, "list available scenarios")
	seed := flag.Uint64("seed", 0, "override the scenario seed (0 keeps it)")
	blockSize := flag.Int("bs", 5, "initial range finder block size")
	power := flag.Int("q", 2, "power iterations")
	qr := flag.String("qr", rangefinder.ShiftedCholQR.String(), "orthogonalization: gram_schmidt or shifted_chol_qr")
	stable := flag.Bool("stable", false, "force stability of the realization")
	transpose := flag.Bool("transpose", true, "allow the transposed formulation when outputs < inputs")
	onsets := flag.Bool("onsets", false, "estimate delays from signal onsets instead of geometry")
	subsample := flag.Bool("subsample", deadtime.DefaultConfig().Subsample, "keep fractional delays in the dead-time split")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: eraid [flags] [scenario ...]\n\n")
		fmt.Fprintf(os.Stderr, "Identifies reduced models of multi-channel impulse responses.\n")
		fmt.Fprintf(os.Stderr, "Without arguments the scenario S1 is used.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  eraid S1\n")
		fmt.Fprintf(os.Stderr, "  eraid -dte LC -t -3,-6,-12 S2_RED\n")
		fmt.Fprintf(os.Stderr, "  eraid -md out -db runs.db S1 S2\n")
	}
	flag.Parse()

	logger := log.New(os.Stderr, "eraid: ", log.LstdFlags)
	scenarios := dataset.DefaultScenarios()
	if *list {
		printList(scenarios)
		return
	}

	method, err := deadtime.ParseMethod(*dte)
	if err != nil {
		logger.Fatal(err)
	}
	qrMethod, err := rangefinder.ParseQRMethod(*qr)
	if err != nil {
		logger.Fatal(err)
	}
	db, err := parseDB(*tols)
	if err != nil {
		logger.Fatal(err)
	}
	sched := era.ScheduleFromDB(db...)
	if err := sched.Validate(); err != nil {
		logger.Fatal(err)
	}
	if *seed != 0 {
		for name, s := range scenarios {
			s.Seed = *seed
			scenarios[name] = s
		}
	}

	var sinks export.Tee
	if *modelDir != "" {
		sinks = append(sinks, &export.Dir{Root: *modelDir, Charts: *charts})
	}
	var store *export.SQLite
	if *dbPath != "" {
		if store, err = export.OpenSQLite(*dbPath); err != nil {
			logger.Fatal(err)
		}
		sinks = append(sinks, store)
	}

	id := era.NewIdentifier(method,
		era.WithForceStability(*stable),
		era.WithTranspose(*transpose),
		era.WithRangeFinder(
			rangefinder.WithBlockSize(*blockSize),
			rangefinder.WithPowerIterations(*power),
			rangefinder.WithQRMethod(qrMethod),
		),
	)
	id.DeadTime = append(id.DeadTime, deadtime.WithSubsample(*subsample))
	if *onsets {
		id.DeadTime = append(id.DeadTime, deadtime.WithOnsets())
	}
	id.Logger = logger
	if len(sinks) > 0 {
		id.Models = sinks
		id.Metrics = sinks
	}

	names := flag.Args()
	if len(names) == 0 {
		names = []string{"S1"}
	}
	failed := false
	for _, name := range names {
		if err := identify(id, scenarios, name, sched); err != nil {
			logger.Printf("%s: %v", name, err)
			failed = true
		}
	}
	if store != nil {
		if err := store.Close(); err != nil {
			logger.Printf("closing %s: %v", *dbPath, err)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func identify(id *era.Identifier, src dataset.Source, name string, sched era.Schedule) error {
	d, err := src.Fetch(name)
	if err != nil {
		return err
	}
	printChannels(d)
	res, err := id.Run(d, sched)
	if res != nil && len(res.Steps) > 0 {
		printSteps(res)
	}
	return err
}

func printList(sc dataset.Scenarios) {
	names := make([]string, 0, len(sc))
	for name := range sc {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, n := range names {
		s := sc[n]
		fmt.Printf("%s\t%d receivers, %d sources, %d samples at %g Hz\n",
			n, len(s.Receivers), len(s.Sources), s.Length, s.SampleRate)
	}
}

// printChannels summarizes onsets and reverberation times of the raw data.
func printChannels(d *dataset.Data) {
	per, err := ir.NewAnalyzer(d.SampleRate).AnalyzeTensor(d.IR)
	if err != nil {
		return
	}
	var onsets, rts []float64
	for _, row := range per {
		for _, m := range row {
			onsets = append(onsets, float64(m.Onset))
			if m.RT60 > 0 {
				rts = append(rts, m.RT60)
			}
		}
	}
	if len(onsets) == 0 {
		return
	}
	fmt.Printf("%s  onsets %.0f…%.0f samples", d.Name, floats.Min(onsets), floats.Max(onsets))
	if len(rts) > 0 {
		fmt.Printf("  mean RT60 %.2fs", stat.Mean(rts, nil))
	}
	fmt.Println()
}

func printSteps(res *era.Result) {
	fmt.Printf("\n%s  dead time %s  %d×%d channels  %d samples  %.0f samples removed\n",
		res.Run.Name, res.Run.Method, res.Run.P, res.Run.M, res.Run.T, res.Run.Removed)
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "tol dB\torder\tsamples\trel err\test err\tKung\tdof\ttime\t\n")
	for _, st := range res.Steps {
		m := st.Metrics
		mark := ""
		if m.Stagnated {
			mark = "*"
		}
		fmt.Fprintf(tw, "%.1f\t%d\t%d%s\t%.3e\t%.3e\t%.3e\t%.0f\t%.2fs\t\n",
			era.Schedule{m.Tolerance}.DB()[0], m.Order, m.Samples, mark,
			m.RelativeError, m.EstimatedError, m.KungBound, m.DegreesOfFreedom, m.Elapsed.Seconds())
	}
	tw.Flush()
}

func parseDB(s string) ([]float64, error) {
	fields := strings.Split(s, ",")
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("tolerance %q: %w", f, err)
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no tolerances in %q", s)
	}
	return out, nil
}

func formatDB(db []float64) string {
	parts := make([]string, len(db))
	for i, v := range db {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}
