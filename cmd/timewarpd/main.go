// Command timewarpd is the host binary around the timewarp kernel: it
// owns flag/env parsing (section 6's CLI surface is explicitly outside
// the core package) and wires a core.Configuration before handing off
// to core.NewSimulation.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/lattice-sim/timewarp/pkg/timewarp/core"
	"github.com/lattice-sim/timewarp/pkg/timewarp/definition"
	"github.com/lattice-sim/timewarp/pkg/timewarp/types"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "timewarpd",
		Short: "Run a Time Warp optimistic PDES kernel node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(v)
		},
	}

	flags := cmd.Flags()
	flags.Uint32("max-sim-time", core.DefaultConfiguration().MaxSimTime, "virtual time at which the simulation stops admitting new work")
	flags.Int("workers", 4, "number of worker threads")
	flags.Int("gvt-period-ms", 50, "milliseconds between distributed GVT rounds")
	flags.Int("state-period", 1, "checkpoint interval in processed events")
	flags.String("partitioner", "all-local", "LP-to-node assignment strategy (all-local is the only built-in)")
	flags.String("statistics-file", "", "unused: statistics collection is out of scope; kept for CLI-shape compatibility")
	flags.Uint32("node-id", 0, "this node's id in the Mattern/termination rings")
	flags.Uint32("next-node-id", 0, "ring successor node id")
	flags.Bool("initiator", true, "whether this node is the Mattern/termination initiator")

	if err := v.BindPFlags(flags); err != nil {
		panic(err)
	}
	v.SetEnvPrefix("TIMEWARP")
	v.AutomaticEnv()

	return cmd
}

func run(v *viper.Viper) error {
	cfg := core.DefaultConfiguration()
	cfg.MaxSimTime = v.GetUint32("max-sim-time")
	cfg.Workers = v.GetInt("workers")
	cfg.StatePeriod = v.GetInt("state-period")
	cfg.GVTPeriod = time.Duration(v.GetInt("gvt-period-ms")) * time.Millisecond
	cfg.Self = types.NodeID(v.GetUint32("node-id"))
	cfg.Next = types.NodeID(v.GetUint32("next-node-id"))
	cfg.Initiator = v.GetBool("initiator")
	cfg.Logger = definition.NewDefaultLogger()

	if v.GetString("statistics-file") != "" {
		cfg.Logger.Warnf("--statistics-file is accepted for compatibility but ignored: the kernel keeps its statistics as in-process Prometheus metrics, which this binary does not export")
	}

	fabric := core.NewLoopbackBridge()
	transport := fabric.Register(cfg.Self)
	sim := core.NewSimulation(cfg, transport)

	cfg.Logger.Infof("starting timewarpd: workers=%d max_sim_time=%d gvt_period=%s", cfg.Workers, cfg.MaxSimTime, cfg.GVTPeriod)
	return sim.Run()
}
