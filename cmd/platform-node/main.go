// Command platform-node brings up one node of the platform: it parses
// the node's command line, builds a Platform, runs it until SIGINT or
// SIGTERM, then tears it down with a bounded shutdown timeout.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	platform "github.com/forkcore/platform"
	"github.com/forkcore/platform/internal/bootstrap"
	"github.com/forkcore/platform/internal/logging"
)

const shutdownTimeout = 5 * time.Second

func main() {
	app := &cli.App{
		Name:  "platform-node",
		Usage: "run one node of the platform",
		Flags: []cli.Flag{
			&cli.UintFlag{
				Name:     "node-id",
				Usage:    "this node's identifier (0-3)",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "net-if",
				Usage: "network interface for inter-node messaging",
				Value: "eth0",
			},
			&cli.BoolFlag{
				Name:  "enable-wire",
				Usage: "enable the Ethernet-based inter-node transport",
			},
			&cli.StringFlag{
				Name:  "default-pool-config",
				Usage: "pool config grammar: <N>,<size>:<count>:<cache>{,...}",
			},
			&cli.StringFlag{
				Name:  "messaging-pool-config",
				Usage: "pool config grammar for the messaging pool",
			},
			&cli.IntFlag{
				Name:  "cores",
				Usage: "number of physical cores to dispatch on (0 = all)",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "enable debug logging (equivalent to LOG_VERBOSE=1)",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	logConfig := logging.DefaultConfig()
	if c.Bool("verbose") || os.Getenv(logging.VerboseEnv) == "1" {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	cfg, err := buildConfig(c)
	if err != nil {
		return err
	}

	p, err := platform.NewPlatform(cfg)
	if err != nil {
		return fatal("failed to build platform", err)
	}

	if err := p.Start(); err != nil {
		return fatal("failed to start platform", err)
	}

	logger.Info("platform-node running", "node", cfg.NodeID, "netIf", cfg.NetIf)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")

	done := make(chan struct{})
	go func() {
		if err := p.Stop(); err != nil {
			logger.Error("error stopping platform", "error", err)
		}
		close(done)
	}()

	select {
	case <-done:
		logger.Info("platform stopped cleanly")
	case <-time.After(shutdownTimeout):
		logger.Warn("shutdown timeout exceeded, forcing exit")
	}

	return nil
}

func buildConfig(c *cli.Context) (platform.Config, error) {
	nodeID := c.Uint("node-id")
	if nodeID > platform.MaxNodeID {
		return platform.Config{}, fmt.Errorf("--node-id %d exceeds maximum %d", nodeID, platform.MaxNodeID)
	}

	defaultPool := bootstrap.DefaultPoolConfig()
	if s := c.String("default-pool-config"); s != "" {
		parsed, err := bootstrap.ParsePoolConfig(s)
		if err != nil {
			return platform.Config{}, fmt.Errorf("--default-pool-config: %w", err)
		}
		defaultPool = parsed
	}

	messagingPool := bootstrap.DefaultMessagingPoolConfig()
	if s := c.String("messaging-pool-config"); s != "" {
		parsed, err := bootstrap.ParsePoolConfig(s)
		if err != nil {
			return platform.Config{}, fmt.Errorf("--messaging-pool-config: %w", err)
		}
		messagingPool = parsed
	}

	return platform.Config{
		NodeID:              uint16(nodeID),
		NetIf:               c.String("net-if"),
		EnableWire:          c.Bool("enable-wire"),
		Cores:               c.Int("cores"),
		DefaultPoolConfig:   defaultPool,
		MessagingPoolConfig: messagingPool,
		AppLibList:          os.Getenv(bootstrap.AppLibListEnv),
	}, nil
}

func fatal(msg string, err error) error {
	if recErr := bootstrap.AppendRecoveryAction(fmt.Sprintf("# %s: %v", msg, err)); recErr != nil {
		logging.Warn("failed to append recovery action", "error", recErr)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
