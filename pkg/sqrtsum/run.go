package sqrtsum

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"gonum.org/v1/gonum/mat"
)

// Tolerance is the largest relative error at which two sums agree.
const Tolerance = 1e-6

// ErrMismatch is returned when a path disagrees with the reference sum.
var ErrMismatch = errors.New("sqrtsum: results disagree")

// Path names, in run order. The first is the reference.
const (
	PathDense          = "gonum mat (dense)"
	PathParallel       = "parallel errgroup"
	PathLoop           = "loop"
	PathFloats         = "gonum floats"
	PathDenseFromSlice = "gonum mat from slice"
)

// Result is the outcome of one path.
type Result struct {
	Name    string
	Sum     float64
	Elapsed time.Duration
	RelErr  float64
}

// Report is the outcome of Run.
type Report struct {
	N       int
	Results []Result
}

// Random returns n uniform samples in [0, 1) from a seeded PCG generator.
func Random(n int, seed uint64) []float64 {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = r.Float64()
	}
	return xs
}

// Run times every path over xs and checks them against the dense result.
// The report is complete even when it returns ErrMismatch.
func Run(ctx context.Context, xs []float64, logger *slog.Logger) (Report, error) {
	if logger == nil {
		logger = slog.Default()
	}
	report := Report{N: len(xs)}

	var m *mat.Dense
	if len(xs) > 0 {
		data := make([]float64, len(xs))
		copy(data, xs)
		m = mat.NewDense(1, len(data), data)
	}

	paths := []struct {
		name string
		fn   func() (float64, error)
	}{
		{PathDense, func() (float64, error) {
			if m == nil {
				return 0, nil
			}
			return Dense(m), nil
		}},
		{PathParallel, func() (float64, error) { return Parallel(ctx, xs, 0) }},
		{PathLoop, func() (float64, error) { return Loop(xs), nil }},
		{PathFloats, func() (float64, error) { return Floats(xs), nil }},
		{PathDenseFromSlice, func() (float64, error) { return DenseFromSlice(xs), nil }},
	}

	var mismatched []string
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		start := time.Now()
		sum, err := p.fn()
		if err != nil {
			return report, fmt.Errorf("%s: %w", p.name, err)
		}
		res := Result{Name: p.name, Sum: sum, Elapsed: time.Since(start)}
		if len(report.Results) > 0 {
			res.RelErr = RelErr(report.Results[0].Sum, sum)
			if res.RelErr >= Tolerance {
				mismatched = append(mismatched, p.name)
			}
		}
		report.Results = append(report.Results, res)
		logger.Debug("sqrt-sum path done", "path", p.name, "sum", sum, "elapsed", res.Elapsed)
	}

	if len(mismatched) > 0 {
		return report, fmt.Errorf("%w: %s", ErrMismatch, strings.Join(mismatched, ", "))
	}
	return report, nil
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	nameStyle   = lipgloss.NewStyle().Width(24)
	numStyle    = lipgloss.NewStyle().Width(20).Align(lipgloss.Right)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	badStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// String renders the report as a table.
func (r Report) String() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("sqrt & sum of %d elements", r.N)))
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		nameStyle.Render("path"),
		numStyle.Render("sum"),
		numStyle.Render("time"),
		numStyle.Render("rel. error"),
	))
	b.WriteString("\n")

	for _, res := range r.Results {
		errCell := okStyle.Render(fmt.Sprintf("%.2e", res.RelErr))
		if res.RelErr >= Tolerance {
			errCell = badStyle.Render(fmt.Sprintf("%.2e", res.RelErr))
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
			nameStyle.Render(res.Name),
			numStyle.Render(fmt.Sprintf("%.6f", res.Sum)),
			numStyle.Render(res.Elapsed.Round(time.Microsecond).String()),
			numStyle.Render(errCell),
		))
		b.WriteString("\n")
	}
	return b.String()
}
