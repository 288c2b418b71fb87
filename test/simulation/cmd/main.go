package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // pprof is intentional for simulation
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/arloliu/strand/contrib/logging/kit"
	"github.com/arloliu/strand/test/simulation"
	"github.com/arloliu/strand/test/simulation/config"
	"github.com/arloliu/strand/test/simulation/scenarios"
)

var rootCmd = &cobra.Command{
	Use:   "strand-sim",
	Short: "Run strand fault scenarios against an in-memory cluster",
	Long: `Run strand fault scenarios against an in-memory cluster.

Flags can also be set through environment variables prefixed with
STRAND_SIM (e.g. STRAND_SIM_RATE=500).`,
	SilenceUsage: true,
	PreRunE: func(cmd *cobra.Command, _ []string) error {
		return viper.BindPFlags(cmd.Flags())
	},
	RunE: run,
}

func init() {
	cobra.OnInitialize(func() {
		viper.SetEnvPrefix("strand_sim")
		viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
		viper.AutomaticEnv()
	})

	rootCmd.Flags().String("config", "", "path to a YAML configuration file")
	rootCmd.Flags().String("profile", "", "simulation profile (quick, comprehensive, soak)")
	rootCmd.Flags().Int("rate", 0, "requests per second, overrides the configuration")
	rootCmd.Flags().Int("hosts", 0, "number of simulated hosts, overrides the configuration")
	rootCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.Flags().String("pprof", "", "address of a pprof server, disabled when empty")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(_ *cobra.Command, _ []string) error {
	logger := kit.New(log.NewLogfmtLogger(log.NewSyncWriter(os.Stdout)), kit.WithLevel(levelOption(viper.GetString("log-level"))))

	settings := config.Default()
	if path := viper.GetString("config"); path != "" {
		var err error
		settings, err = config.Load(path)
		if err != nil {
			return err
		}
	}
	if p := viper.GetString("profile"); p != "" {
		settings.Simulation.Profile = p
	}
	if r := viper.GetInt("rate"); r > 0 {
		settings.Simulation.Rate = r
	}
	if h := viper.GetInt("hosts"); h > 0 {
		if h < 3 {
			return fmt.Errorf("hosts must be at least 3, got %d", h)
		}
		settings.Cluster.Hosts = h
	}

	if addr := viper.GetString("pprof"); addr != "" {
		go func() {
			logger.Info("starting pprof server", "addr", addr)
			server := &http.Server{
				Addr:              addr,
				ReadHeaderTimeout: 3 * time.Second,
			}
			if err := server.ListenAndServe(); err != nil {
				logger.Error("pprof server failed", "error", err)
			}
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting strand simulation",
		"profile", settings.Simulation.Profile,
		"rate", settings.Simulation.Rate,
		"hosts", settings.Cluster.Hosts,
	)

	sim := simulation.New(settings, logger)
	registerScenarios(sim, settings.Simulation.Profile)

	if err := sim.Run(ctx); err != nil {
		logger.Error("simulation failed", "error", err)
		return err
	}

	sim.Metrics().WritePrometheus(os.Stdout)
	logger.Info("simulation completed successfully")

	return nil
}

func registerScenarios(sim *simulation.Simulation, profile string) {
	sim.RegisterScenario(&scenarios.SlowHost{Latency: 300 * time.Millisecond})
	sim.RegisterScenario(&scenarios.HostOutage{})

	if profile == "comprehensive" || profile == "soak" {
		sim.RegisterScenario(&scenarios.Overloaded{})
		sim.RegisterScenario(&scenarios.Drain{})
		sim.RegisterScenario(&scenarios.FullOutage{Duration: 5 * time.Second})
	}
}

func levelOption(name string) level.Option {
	switch strings.ToLower(name) {
	case "debug":
		return level.AllowDebug()
	case "warn":
		return level.AllowWarn()
	case "error":
		return level.AllowError()
	default:
		return level.AllowInfo()
	}
}
