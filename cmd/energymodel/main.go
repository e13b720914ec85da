//go:build linux

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ja7ad/energymodel/pkg/energy"
	"github.com/ja7ad/energymodel/pkg/platform"
	"github.com/ja7ad/energymodel/pkg/system/sysfs"
)

var errDisabled = errors.New("energy model disabled: cpu capacities are symmetric")

type opts struct {
	// source
	platformPath string
	sysRoot      string
	debugfsRoot  string
	timeout      time.Duration

	// logging
	logLevel  string
	logFormat string
}

func main() {
	root := newRootCmd()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	o := &opts{}

	root := &cobra.Command{
		Use:   "energymodel",
		Short: "CPU energy model builder and inspector",
		Long: `The energymodel tool builds the per-frequency-domain energy model used for
energy-aware scheduling: for every CPU rail it turns the operating points
(frequency, power) into capacity states (capacity, power) and publishes one
shared table per rail.

The platform is read from sysfs/debugfs (cpu_capacity, cpufreq/related_cpus,
energy_model/<pd>/ps:*) or from a YAML description file.

* GitHub: https://github.com/ja7ad/energymodel

Examples:
  energymodel show
  energymodel --platform board.yaml lookup --cpu 4 --util 300
  energymodel serve --listen :9464`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(cmd.ErrOrStderr(), o.logLevel, o.logFormat)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&o.platformPath, "platform", "p", "", "read the platform from a YAML description instead of sysfs")
	pf.StringVar(&o.sysRoot, "sysfs", "/sys", "sysfs mount point")
	pf.StringVar(&o.debugfsRoot, "debugfs", "", "debugfs mount point (discovered when empty)")
	pf.DurationVar(&o.timeout, "timeout", 10*time.Second, "upper bound on model construction")
	pf.StringVar(&o.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.StringVar(&o.logFormat, "log-format", "text", "log format (text, json)")

	root.AddCommand(newShowCmd(o), newDomainsCmd(o), newLookupCmd(o), newServeCmd(o))
	return root
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log-level: %w", err)
	}
	hopts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "text":
		return slog.New(slog.NewTextHandler(w, hopts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, hopts)), nil
	default:
		return nil, fmt.Errorf("log-format must be text or json, got %q", format)
	}
}

// source is what the model is built from.
type source interface {
	energy.Topology
	energy.Platform
}

func openSource(o *opts) (source, error) {
	if o.platformPath != "" {
		d, err := platform.Load(o.platformPath)
		if err != nil {
			return nil, err
		}
		slog.Debug("platform description loaded", "path", o.platformPath, "cpus", d.CPUs().String())
		return d, nil
	}
	p, err := sysfs.Open(sysfs.Options{SysRoot: o.sysRoot, DebugfsRoot: o.debugfsRoot})
	if err != nil {
		return nil, fmt.Errorf("sysfs: %w", err)
	}
	return p, nil
}

// loadModel builds and publishes the energy model of the configured source.
// A symmetric platform yields a model that is not enabled and no error. A
// failed build still returns the disabled model along with the error.
func loadModel(ctx context.Context, o *opts, obs energy.Observer) (*energy.Model, error) {
	src, err := openSource(o)
	if err != nil {
		return nil, err
	}

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	m := energy.New(&energy.Config{Logger: slog.Default(), Observer: obs})
	return m, m.Init(ctx, src, src)
}

func newShowCmd(o *opts) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print every capacity state of every frequency domain",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := loadModel(cmd.Context(), o, nil)
			if err != nil {
				return err
			}
			if !m.Enabled() {
				return errDisabled
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), m)
			}
			return writeStates(cmd.OutOrStdout(), m)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the model as JSON")
	return cmd
}

func newDomainsCmd(o *opts) *cobra.Command {
	return &cobra.Command{
		Use:   "domains",
		Short: "List frequency domains with their CPUs and top capacity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := loadModel(cmd.Context(), o, nil)
			if err != nil {
				return err
			}
			if !m.Enabled() {
				return errDisabled
			}
			return writeDomains(cmd.OutOrStdout(), m)
		},
	}
}

func newLookupCmd(o *opts) *cobra.Command {
	var (
		cpu  int
		util uint64
	)
	cmd := &cobra.Command{
		Use:   "lookup",
		Short: "Select the capacity state serving a utilization on a CPU",
		Long: `Select the lowest capacity state whose capacity covers the utilization
plus 25% headroom, or the highest state when none does.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := loadModel(cmd.Context(), o, nil)
			if err != nil {
				return err
			}
			if !m.Enabled() {
				return errDisabled
			}
			if m.ModelOf(cpu) == nil {
				return fmt.Errorf("cpu%d is not covered by the energy model", cpu)
			}
			cs := m.FindCapState(cpu, util)
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "cpu%d util %d -> cap %d power %d\n", cpu, util, cs.Cap, cs.Power)
			return err
		},
	}
	cmd.Flags().IntVarP(&cpu, "cpu", "c", 0, "CPU id")
	cmd.Flags().Uint64VarP(&util, "util", "u", 0, "utilization on the 0-1024 capacity scale")
	return cmd
}
