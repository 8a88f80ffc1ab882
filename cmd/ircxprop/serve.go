package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ircxprop/pkg/config"
	"ircxprop/pkg/metrics"
	"ircxprop/pkg/server"
)

func serveCmd() *cobra.Command {
	var (
		serverName    string
		sid           string
		clientAddress string
		linkAddress   string
		metricsAddr   string
		databasePath  string
		peers         []string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the server",
		Long:  `Accept IRC clients and server links, serving PROP and replicating TPROP.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger(verbose)
			defer logger.Sync()

			var cfg *config.Config
			if configFile != "" {
				var err error
				cfg, err = config.LoadConfig(configFile)
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
			} else {
				cfg = config.LoadFromEnv()
			}

			flags := cmd.Flags()
			if flags.Changed("name") {
				cfg.ServerName = serverName
			}
			if flags.Changed("sid") {
				cfg.SID = sid
			}
			if flags.Changed("listen") {
				cfg.ClientAddress = clientAddress
			}
			if flags.Changed("link-listen") {
				cfg.LinkAddress = linkAddress
			}
			if flags.Changed("metrics") {
				cfg.MetricsAddress = metricsAddr
			}
			if flags.Changed("database") {
				cfg.DatabasePath = databasePath
			}
			for _, peer := range peers {
				// Format: name=address
				name, addr, ok := cutPeer(peer)
				if !ok {
					return fmt.Errorf("invalid peer format: %s (expected name=address)", peer)
				}
				cfg.Peers = append(cfg.Peers, config.PeerConfig{Name: name, Address: addr})
			}

			srv, err := server.New(cfg, prometheus.DefaultRegisterer, logger)
			if err != nil {
				return err
			}
			if err := srv.Start(); err != nil {
				return err
			}

			if cfg.MetricsAddress != "" {
				metricsServer := metrics.StartServer(cfg.MetricsAddress, prometheus.DefaultGatherer, logger)
				defer func() {
					ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					metricsServer.Shutdown(ctx)
				}()
			}

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			sig := <-sigChan

			logger.Info("Shutting down", zap.String("signal", sig.String()))
			srv.Stop()
			return nil
		},
	}

	cmd.Flags().StringVar(&serverName, "name", "", "server name")
	cmd.Flags().StringVar(&sid, "sid", "", "server ID (digit followed by two digits or letters)")
	cmd.Flags().StringVarP(&clientAddress, "listen", "l", config.DefaultClientAddress, "client listen address")
	cmd.Flags().StringVar(&linkAddress, "link-listen", config.DefaultLinkAddress, "server link listen address")
	cmd.Flags().StringVar(&metricsAddr, "metrics", "", "metrics listen address")
	cmd.Flags().StringVar(&databasePath, "database", "", "SQLite database for accounts")
	cmd.Flags().StringSliceVarP(&peers, "peer", "p", nil, "peer to link with (name=address)")

	return cmd
}

func cutPeer(s string) (string, string, bool) {
	name, addr, ok := strings.Cut(s, "=")
	if !ok || name == "" || addr == "" {
		return "", "", false
	}
	return name, addr, true
}
