package main

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-metrics"
	"github.com/spf13/cobra"

	"relay/config"
	"relay/discovery"
	"relay/discovery/mdns"
	"relay/log"
	"relay/server"
	"relay/telemetry"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		log.Fatal("invalid configuration", telemetry.LabelError.L(err))
	}

	rootCmd := &cobra.Command{
		Use:   "relay",
		Short: "Broadcast every byte a peer sends to all other connected peers",
		Long: `relay listens on 127.0.0.1:<port> and forwards the raw bytes received from
one TCP peer to every other connected peer, excluding the sender.

Settings are read from the environment (RELAY_*), an optional .env file,
and the flags below, in increasing order of precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfg)
		},
	}

	flags := rootCmd.Flags()
	flags.Int32VarP(&cfg.Port, "port", "p", cfg.Port, "listen port on "+config.BindHost)
	flags.IntVar(&cfg.ReadBufferSize, "read-buffer", cfg.ReadBufferSize, "largest chunk relayed per read, in bytes")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	flags.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "text or json")
	flags.BoolVar(&cfg.Announce, "announce", cfg.Announce, "advertise the relay over mDNS; the address is "+config.BindHost+", so only clients on this host can dial it")
	flags.StringVar(&cfg.AnnounceName, "name", cfg.AnnounceName, "name advertised over mDNS")
	flags.DurationVar(&cfg.MetricsInterval, "metrics-interval", cfg.MetricsInterval, "in-memory metrics aggregation interval")

	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Fatal("relay stopped", telemetry.LabelError.L(err))
	}
}

func run(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := log.Setup(cfg.LogLevel, cfg.LogFormat); err != nil {
		return err
	}

	// SIGUSR1 dumps the current metrics to stderr.
	sink := metrics.NewInmemSink(cfg.MetricsInterval, time.Minute)
	metrics.DefaultInmemSignal(sink)

	srv, err := server.Listen(
		cfg.Addr(),
		server.WithReadBufferSize(cfg.ReadBufferSize),
		server.WithMetricSink(sink),
	)
	if err != nil {
		log.Err("failed to bind server TCP listener", telemetry.LabelError.L(err))
		os.Exit(1)
	}

	if cfg.Announce {
		name := cfg.AnnounceName
		if name == "" {
			name = srv.Addr().String()
		}
		reg := mdns.NewRegistry()
		if err := reg.Register(discovery.NewRelay(uuid.NewString(), name, srv.Addr().String())); err != nil {
			log.Err("error register relay", telemetry.LabelError.L(err))
		} else {
			defer func() {
				_ = reg.Unregister()
			}()
			log.Info("relay announced", "name", name)
		}
	}

	return srv.Serve()
}

func versionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			if short {
				fmt.Println(version)
				return
			}
			fmt.Printf("relay %s (%s) %s %s/%s\n", version, commit, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
	cmd.Flags().BoolVarP(&short, "short", "s", false, "Print only version number")
	return cmd
}
