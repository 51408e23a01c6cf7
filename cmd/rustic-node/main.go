// Command rustic-node runs a single node of a rusticdb cluster: it binds
// the client and internode listeners, joins gossip, and serves CQL-style
// queries against its own slice of the ring.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rusticdb/rusticdb/internal/config"
	"github.com/rusticdb/rusticdb/internal/coordinator"
	"github.com/rusticdb/rusticdb/internal/gossip"
	"github.com/rusticdb/rusticdb/internal/internode"
	"github.com/rusticdb/rusticdb/internal/logging"
	"github.com/rusticdb/rusticdb/internal/ring"
	"github.com/rusticdb/rusticdb/internal/schema"
	"github.com/rusticdb/rusticdb/internal/server"
	"github.com/rusticdb/rusticdb/internal/storage"
)

// Exit codes.
const (
	exitOK                   = 0
	exitBindFailure          = 1
	exitStorageDirUnwritable = 2
	exitConfigError          = 3
)

// exitError pins the process exit code a failure should produce, so main
// can map cobra's single error return back onto this four-way split
// instead of always exiting 1.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	cmd := &cobra.Command{
		Use:          "rustic-node",
		Short:        "Run a single node of a rusticdb cluster",
		SilenceUsage: true,
	}
	config.BindFlags(cmd.Flags())
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return run(cmd)
	}

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "rustic-node:", err)
		code := exitConfigError
		if ee, ok := err.(*exitError); ok {
			code = ee.code
		}
		os.Exit(code)
	}
}

func run(cmd *cobra.Command) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return &exitError{exitConfigError, err}
	}

	log := logging.New("rustic-node", logging.ParseLevel(cfg.LogLevel), nil)

	if err := cfg.EnsureDataDir(); err != nil {
		return &exitError{exitStorageDirUnwritable, err}
	}

	internodePort, err := portOf(cfg.InternodeAddr)
	if err != nil {
		return &exitError{exitConfigError, err}
	}

	catalog := schema.NewCatalog()
	engine := storage.New(cfg.DataDir, cfg.IP)
	partitioner := ring.New()
	pool := internode.NewPool(cfg.IP, log).WithPort(internodePort)
	openQueries := coordinator.NewOpenQueryHandler()

	ex := &coordinator.Executor{
		Self:        cfg.IP,
		Partitioner: partitioner,
		Catalog:     catalog,
		Storage:     engine,
		Pool:        pool,
		OpenQueries: openQueries,
		Log:         log,
	}

	bootEpoch := uint64(time.Now().Unix())
	membership := gossip.New(cfg.IP, bootEpoch, pool, partitioner, ex, log)
	ex.Membership = membership

	internodeSrv := internode.NewServer(cfg.InternodeAddr, ex.InternodeHandler(membership), log)
	if err := internodeSrv.Start(context.Background()); err != nil {
		return &exitError{exitBindFailure, err}
	}
	defer internodeSrv.Close()

	clientSrv := server.New(cfg.ClientAddr, ex, log)
	if err := clientSrv.Start(); err != nil {
		return &exitError{exitBindFailure, err}
	}
	defer clientSrv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if !cfg.IsSeed() && len(cfg.Seeds) > 0 {
		if err := membership.Bootstrap(ctx, cfg.Seeds[0]); err != nil {
			log.Warn().Err(err).Str("seed", cfg.Seeds[0].String()).Msg("rustic-node: initial gossip contact failed, will retry on the next tick")
		}
	}
	if err := membership.SetLocalStatus(ctx, gossip.Normal, gossipSchemas(catalog)); err != nil {
		log.Warn().Err(err).Msg("rustic-node: could not join the ring as Normal")
	}

	go membership.Run(ctx)
	go expireLoop(ctx, openQueries)

	log.Info().
		Str("ip", cfg.IP.String()).
		Str("client_addr", cfg.ClientAddr).
		Str("internode_addr", cfg.InternodeAddr).
		Bool("seed", cfg.IsSeed()).
		Msg("rustic-node: ready")

	waitForShutdown()
	log.Info().Msg("rustic-node: shutting down")
	return nil
}

// expireLoop drains the open-query deadline queue once a second, as its own
// dedicated background task.
func expireLoop(ctx context.Context, openQueries *coordinator.OpenQueryHandler) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			openQueries.Expire(time.Now())
		}
	}
}

func waitForShutdown() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
}

func gossipSchemas(catalog *schema.Catalog) []gossip.Schema {
	keyspaces := catalog.Keyspaces()
	out := make([]gossip.Schema, 0, len(keyspaces))
	for _, ks := range keyspaces {
		tables := ks.Tables()
		names := make([]string, 0, len(tables))
		for _, t := range tables {
			names = append(names, t.Name)
		}
		out = append(out, gossip.Schema{Keyspace: ks.Name, Tables: names})
	}
	return out
}

func portOf(addr string) (string, error) {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("rustic-node: %q is not a valid host:port address: %w", addr, err)
	}
	if _, err := strconv.Atoi(port); err != nil {
		return "", fmt.Errorf("rustic-node: %q has a non-numeric port: %w", addr, err)
	}
	return port, nil
}

