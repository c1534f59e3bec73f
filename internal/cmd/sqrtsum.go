package cmd

import (
	"fmt"
	"math/rand/v2"

	"github.com/spf13/cobra"

	"github.com/RAIL-group/RAIL-software-infrastructure-demos/pkg/sqrtsum"
)

// NewSqrtSumDemo returns the sqrtsum-demo command.
func NewSqrtSumDemo() *cobra.Command {
	var (
		n    int
		seed uint64
	)

	c, e := newCommand(&cobra.Command{
		Use:   "sqrtsum-demo",
		Short: "Time several ways of taking the sqrt and sum of random data",
		Args:  cobra.NoArgs,
	}, nil)
	c.Flags().IntVarP(&n, "n", "n", sqrtsum.DefaultN, "number of elements")
	c.Flags().Uint64Var(&seed, "seed", 0, "random seed (default: random)")

	c.RunE = func(c *cobra.Command, _ []string) error {
		if n <= 0 {
			return fmt.Errorf("--n must be positive, got %d", n)
		}
		if !c.Flags().Changed("seed") {
			seed = rand.Uint64()
		}

		e.logger.Info("sqrt-sum demo", "n", n, "seed", seed)
		report, err := sqrtsum.Run(c.Context(), sqrtsum.Random(n, seed), e.logger)
		printf(c, "%s", report)
		return err
	}
	return c
}
