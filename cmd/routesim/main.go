package main

// routesim runs one topology description against one routing protocol
// and reports per-packet delivery outcomes and the final forwarding
// tables.

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"

	"github.com/encodeous/tint"
	slogmulti "github.com/samber/slog-multi"
	"github.com/spf13/cobra"

	"github.com/nsglab/routesim"
)

var (
	topoFile  string
	protocol  string
	stopTime  float64
	heartbeat float64
	horizon   float64
	maxAge    float64
	hopLimit  int
	tracePath string
	logPath   string
	verbose   bool
	check     bool
)

var rootCmd = &cobra.Command{
	Use:   "routesim",
	Short: "Discrete-event simulation of DV and LS routing",
	Long: `routesim runs a set of simulated routers over a weighted topology,
exchanging distance vector advertisements or flooded link state
advertisements, and reports how data packets fared against the
forwarding tables the protocol converged to.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := buildLogger()

		if topoFile == "" {
			return errors.New("a topology file is required (-t)")
		}
		topo, err := routesim.ReadTopoCfgFile(topoFile)
		if err != nil {
			return fmt.Errorf("reading topology: %w", err)
		}
		log.Info("topology loaded", "name", topo.Name,
			"routers", len(topo.Routers), "links", len(topo.Links))

		cfg := routesim.SimConfig{
			Protocol:  protocol,
			Heartbeat: heartbeat,
			StopTime:  stopTime,
			HopLimit:  hopLimit,
			Horizon:   horizon,
			MaxAge:    maxAge,
			Trace:     tracePath != "",
		}
		sim, err := routesim.BuildSimulation(topo, cfg)
		if err != nil {
			return err
		}

		log.Info("running", "protocol", protocol, "stop", stopTime)
		rpt := sim.Run()

		if check {
			mismatches := sim.CheckConformance()
			if len(mismatches) == 0 {
				log.Info("forwarding tables match reference shortest paths")
			} else {
				for _, m := range mismatches {
					log.Warn("conformance mismatch", "detail", m)
				}
			}
		}

		fmt.Print(rpt.Summary())

		if tracePath != "" {
			sim.TraceMgr.WriteToFile(tracePath)
			log.Info("trace written", "file", tracePath)
		}
		return nil
	},
}

// buildLogger assembles the slog handler stack: a tinted console
// handler, fanned out to a plain text file handler when -log names one.
func buildLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	handlers := make([]slog.Handler, 0)
	handlers = append(handlers, tint.NewHandler(os.Stderr, &tint.Options{
		Level:     level,
		AddSource: false,
	}))

	if logPath != "" {
		if err := os.MkdirAll(path.Dir(logPath), 0700); err == nil {
			f, err := os.OpenFile(logPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0600)
			if err == nil {
				handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
			}
		}
	}

	logger := slog.New(slogmulti.Fanout(handlers...))
	slog.SetDefault(logger)
	return logger
}

func init() {
	rootCmd.Flags().StringVarP(&topoFile, "topo", "t", "", "topology description file (.yaml or .json)")
	rootCmd.Flags().StringVarP(&protocol, "protocol", "p", routesim.ProtocolDV, "routing protocol, dv or ls")
	rootCmd.Flags().Float64Var(&stopTime, "stop", routesim.DefaultStopTime, "simulation stop time in seconds")
	rootCmd.Flags().Float64Var(&heartbeat, "heartbeat", routesim.DefaultHeartbeat, "router timer period in seconds")
	rootCmd.Flags().Float64Var(&horizon, "horizon", routesim.DefaultCostHorizon, "DV cost horizon (the INFINITY sentinel)")
	rootCmd.Flags().Float64Var(&maxAge, "max-age", 0.0, "LS database staleness threshold, 0 disables expiry")
	rootCmd.Flags().IntVar(&hopLimit, "hop-limit", routesim.DefaultHopLimit, "data packet hop budget")
	rootCmd.Flags().StringVar(&tracePath, "trace", "", "write a trace of the run to this file (.yaml or .json)")
	rootCmd.Flags().StringVar(&logPath, "log", "", "mirror the log to this file")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.Flags().BoolVar(&check, "check", false, "compare final tables against reference shortest paths")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
