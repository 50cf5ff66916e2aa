package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cwbudde/algo-era/era"
	"github.com/cwbudde/algo-era/internal/level"
)

// MetricsHeader is the header row of metrics.csv.
var MetricsHeader = []string{
	"tolerance", "tolerance_db", "order", "samples", "block_size",
	"true_error", "relative_error", "estimated_error", "kung_bound",
	"dof", "stagnated", "elapsed_s",
}

// Dir writes each run into Root/<name>-<method>/: rom_<order>.json and
// hsv_<order>.csv per model, metrics.csv and the error charts errors.png
// and errors.html after every step.
type Dir struct {
	Root string
	// Charts disables chart rendering when false.
	Charts bool
}

// NewDir returns a directory sink rooted at root with charts enabled.
func NewDir(root string) *Dir {
	return &Dir{Root: root, Charts: true}
}

// RunDir returns the directory of a run.
func (d *Dir) RunDir(run era.Run) string {
	return filepath.Join(d.Root, fmt.Sprintf("%s-%s", run.Name, run.Method))
}

func (d *Dir) mkdir(run era.Run) (string, error) {
	dir := d.RunDir(run)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("export: %w", err)
	}
	return dir, nil
}

// SaveModel writes the realization and its singular values.
func (d *Dir) SaveModel(run era.Run, rom *era.Realization, m era.Metrics) error {
	dir, err := d.mkdir(run)
	if err != nil {
		return err
	}
	order := rom.Order()

	if err := writeFile(filepath.Join(dir, fmt.Sprintf("rom_%d.json", order)), func(f *os.File) error {
		return WriteModel(f, NewModel(run, rom, m))
	}); err != nil {
		return err
	}
	return writeFile(filepath.Join(dir, fmt.Sprintf("hsv_%d.csv", order)), func(f *os.File) error {
		w := csv.NewWriter(f)
		for _, s := range rom.SingularValues {
			if err := w.Write([]string{formatFloat(s)}); err != nil {
				return err
			}
		}
		w.Flush()
		return w.Error()
	})
}

// SaveMetrics rewrites metrics.csv and the charts.
func (d *Dir) SaveMetrics(run era.Run, history []era.Metrics) error {
	dir, err := d.mkdir(run)
	if err != nil {
		return err
	}
	if err := writeFile(filepath.Join(dir, "metrics.csv"), func(f *os.File) error {
		return WriteMetrics(f, history)
	}); err != nil {
		return err
	}
	if !d.Charts || len(history) == 0 {
		return nil
	}
	title := fmt.Sprintf("%s (%s)", run.Name, run.Method)
	if err := SaveErrorPlot(filepath.Join(dir, "errors.png"), title, history); err != nil {
		return err
	}
	return writeFile(filepath.Join(dir, "errors.html"), func(f *os.File) error {
		return RenderErrorChart(f, title, history)
	})
}

// WriteMetrics writes history as CSV with MetricsHeader.
func WriteMetrics(out io.Writer, history []era.Metrics) error {
	w := csv.NewWriter(out)
	if err := w.Write(MetricsHeader); err != nil {
		return err
	}
	for _, m := range history {
		rec := []string{
			formatFloat(m.Tolerance),
			formatFloat(level.ToDB(m.Tolerance)),
			strconv.Itoa(m.Order),
			strconv.Itoa(m.Samples),
			strconv.Itoa(m.BlockSize),
			formatFloat(m.TrueError),
			formatFloat(m.RelativeError),
			formatFloat(m.EstimatedError),
			formatFloat(m.KungBound),
			formatFloat(m.DegreesOfFreedom),
			strconv.FormatBool(m.Stagnated),
			formatFloat(m.Elapsed.Seconds()),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func writeFile(path string, fill func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if err := fill(f); err != nil {
		f.Close()
		return fmt.Errorf("export: writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
