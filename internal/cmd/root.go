// Package cmd holds the cobra commands behind each demo binary.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/RAIL-group/RAIL-software-infrastructure-demos/internal/config"
	"github.com/RAIL-group/RAIL-software-infrastructure-demos/internal/log"
	"github.com/RAIL-group/RAIL-software-infrastructure-demos/pkg/plotting"
	"github.com/RAIL-group/RAIL-software-infrastructure-demos/pkg/viewer"
)

// ErrNoOutput is returned when a plotting command has nowhere to put
// its figure.
var ErrNoOutput = errors.New("need either --output_image to be set or --xpassthrough=true")

// Main executes c and returns the process exit code.
func Main(c *cobra.Command) int {
	if err := c.Execute(); err != nil {
		log.L().Error("command failed", "command", c.Name(), "error", err)
		return 1
	}
	return 0
}

// env is the state every demo command shares: its viper instance and
// the settings and logger resolved before RunE.
type env struct {
	v          *viper.Viper
	configFile string
	bindings   map[string]string

	cfg    config.Config
	logger *slog.Logger
}

// newCommand wires the shared --config and --log-level flags and the
// config/logging setup into c.
func newCommand(c *cobra.Command, bindings map[string]string) (*cobra.Command, *env) {
	e := &env{
		v:        config.New(),
		bindings: map[string]string{"log_level": "log-level"},
	}
	for key, flag := range bindings {
		e.bindings[key] = flag
	}

	c.SilenceUsage = true
	c.SilenceErrors = true
	c.Flags().StringVarP(&e.configFile, "config", "c", "", "config file (yaml)")
	c.Flags().String("log-level", "info", "log level: debug, info, warn, error")

	c.PreRunE = func(c *cobra.Command, _ []string) error {
		if err := config.BindFlags(e.v, c.Flags(), e.bindings); err != nil {
			return err
		}
		cfg, err := config.Load(e.v, e.configFile)
		if err != nil {
			return err
		}
		e.cfg = cfg
		e.logger = log.InitWriter(cfg.LogLevel, c.ErrOrStderr()).With("command", c.Name())
		return nil
	}
	return c, e
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// outputFlags are the figure destinations shared by the plotting demos.
type outputFlags struct {
	outputImage  string
	xpassthrough string
	viewerAddr   string
	dpi          int

	show bool // parsed xpassthrough
}

func (o *outputFlags) register(c *cobra.Command, defaultDPI int) {
	c.Flags().StringVar(&o.outputImage, "output_image", "", "write the figure to this PNG file")
	c.Flags().StringVar(&o.xpassthrough, "xpassthrough", "false", "true to show the figure in a browser viewer until interrupted")
	c.Flags().StringVar(&o.viewerAddr, "viewer-addr", viewer.DefaultConfig().Addr, "viewer listen address")
	c.Flags().IntVar(&o.dpi, "dpi", defaultDPI, "figure resolution")
}

// parse validates the flag values. --xpassthrough takes a value, so the
// "--xpassthrough true" and "--xpassthrough=true" forms are equivalent.
func (o *outputFlags) parse() error {
	show, err := strconv.ParseBool(o.xpassthrough)
	if err != nil {
		return fmt.Errorf("--xpassthrough: want true or false, got %q", o.xpassthrough)
	}
	o.show = show
	return nil
}

func (o *outputFlags) hasTarget() bool {
	return o.show || o.outputImage != ""
}

// emit shows or saves fig. Showing takes precedence, like the scripts
// this mirrors.
func (o *outputFlags) emit(ctx context.Context, fig *plotting.Figure, logger *slog.Logger) error {
	switch {
	case o.show:
		png, err := fig.PNG()
		if err != nil {
			return err
		}
		vcfg := viewer.DefaultConfig()
		vcfg.Addr = o.viewerAddr
		v := viewer.New(vcfg, viewer.WithLogger(logger))
		logger.Info("showing figure, press Ctrl+C to exit", "url", v.URL())

		ctx, stop := signalContext(ctx)
		defer stop()
		return v.Show(ctx, png)

	case o.outputImage != "":
		if err := fig.Save(o.outputImage); err != nil {
			return err
		}
		logger.Info("figure saved", "path", o.outputImage)
		return nil

	default:
		return ErrNoOutput
	}
}

// printf writes to the command's output stream.
func printf(c *cobra.Command, format string, args ...any) {
	fmt.Fprintf(c.OutOrStdout(), format, args...)
}
