package cmd

import (
	"math/rand/v2"

	"github.com/spf13/cobra"

	"github.com/RAIL-group/RAIL-software-infrastructure-demos/pkg/plotting"
)

// NewPlottingDemo returns the plotting-demo command: a 10x10 grid of
// random values drawn as an image.
func NewPlottingDemo() *cobra.Command {
	var (
		out  outputFlags
		seed uint64
	)

	c, e := newCommand(&cobra.Command{
		Use:   "plotting-demo",
		Short: "Plot random data and show it or write it to a file",
		Args:  cobra.NoArgs,
	}, nil)
	out.register(c, 300)
	c.Flags().Uint64Var(&seed, "seed", 0, "random seed (default: random)")

	c.RunE = func(c *cobra.Command, _ []string) error {
		if err := out.parse(); err != nil {
			return err
		}
		if !out.hasTarget() {
			return ErrNoOutput
		}

		var r *rand.Rand
		if c.Flags().Changed("seed") {
			r = rand.New(rand.NewPCG(seed, 0))
		} else {
			r = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		}

		data := make([][]float64, 10)
		for i := range data {
			data[i] = make([]float64, 10)
			for j := range data[i] {
				data[i][j] = r.Float64()
			}
		}

		fig := plotting.NewFigure(5, 5, out.dpi)
		if err := fig.ImShowAuto(data); err != nil {
			return err
		}
		return out.emit(c.Context(), fig, e.logger)
	}
	return c
}
