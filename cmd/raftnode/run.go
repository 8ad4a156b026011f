package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mcprohosting/raft/config"
	"github.com/mcprohosting/raft/logutil"
	"github.com/mcprohosting/raft/raft"
	"github.com/mcprohosting/raft/transport/tcp"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start this node and block until terminated",
	RunE:  runNode,
}

func runNode(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logutil.Init(logutil.Config{Level: cfg.LogLevel, File: cfg.LogFile})
	log := logutil.L()

	opts, err := cfg.Options()
	if err != nil {
		return err
	}
	node := raft.New(opts)

	node.OnStateChange(func(e raft.StateChange) {
		log.Info("state change", zap.String("node", node.Name()), zap.String("from", e.Old.String()), zap.String("to", e.New.String()))
	})
	node.OnLeaderChange(func(e raft.LeaderChange) {
		log.Info("leader change", zap.String("node", node.Name()), zap.Stringp("leader", e.New))
	})
	node.OnTermChange(func(e raft.TermChange) {
		log.Info("term change", zap.String("node", node.Name()), zap.Uint64("from", e.Old), zap.Uint64("to", e.New))
	})

	peers := make(map[string]string, len(cfg.Peers))
	for name, addr := range cfg.Peers {
		if name == node.Name() {
			continue
		}
		peers[name] = addr
	}
	tr := tcp.New(peers, node)
	if cfg.Listen != "" {
		if err := tr.Listen(cfg.Listen); err != nil {
			return err
		}
	}
	node.Attach(tr)

	log.Info("node started", zap.String("node", node.Name()), zap.String("listen", cfg.Listen))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	node.End()
	_ = tr.Close()
	log.Info("node stopped", zap.String("node", node.Name()))
	return nil
}
