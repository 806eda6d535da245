package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/gops/agent"
	"github.com/scott-cotton/cli"
	"github.com/signadot/docsync/system/syncd/server"
)

type ServeConfig struct {
	*MainConfig
	Serve      *cli.Command
	ConfigFile string `cli:"name=config desc='configuration file (yaml)'"`
	Addr       string `cli:"name=addr desc='TCP listen address, overrides the config file'"`
	WS         string `cli:"name=ws desc='WebSocket listen address, overrides the config file'"`
	Data       string `cli:"name=data desc='bolt database file for documents and sessions'"`
}

func ServeCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &ServeConfig{MainConfig: mainCfg}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	return cli.NewCommandAt(&cfg.Serve, "serve").
		WithSynopsis("serve [-config <file>] [-addr <addr>] [-ws <addr>] [-data <file>]").
		WithDescription("run the sync server").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			return serve(cfg, cc, args)
		})
}

func serve(cfg *ServeConfig, cc *cli.Context, args []string) error {
	_, err := cfg.Serve.Parse(cc, args)
	if err != nil {
		return err
	}

	if err := agent.Listen(agent.Options{}); err != nil {
		fmt.Fprintf(cc.Out, "gops agent failed: %v\n", err)
	}
	defer agent.Close()

	serverConfig := server.DefaultConfig()
	if cfg.ConfigFile != "" {
		serverConfig, err = server.LoadConfig(cfg.ConfigFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}
	if cfg.Addr != "" {
		serverConfig.TCP = cfg.Addr
	}
	if cfg.WS != "" {
		serverConfig.WebSocket = cfg.WS
	}
	if cfg.Data != "" {
		serverConfig.Store = &server.StoreConfig{Kind: server.StoreBolt, Path: cfg.Data}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintf(cc.Out, "\nShutting down...\n")
		cancel()
	}()

	srv, err := server.New(&server.Spec{Config: serverConfig})
	if err != nil {
		return err
	}
	defer srv.Close()

	if err := srv.StartTCP(serverConfig.TCP); err != nil {
		return fmt.Errorf("failed to start TCP listener: %w", err)
	}
	fmt.Fprintf(cc.Out, "syncd listening on %s\n", srv.TCPAddr())
	if serverConfig.WebSocket != "" {
		if err := srv.StartWebSocket(serverConfig.WebSocket); err != nil {
			return fmt.Errorf("failed to start WebSocket listener: %w", err)
		}
		fmt.Fprintf(cc.Out, "syncd websocket on ws://%s/\n", srv.WebSocketAddr())
	}

	<-ctx.Done()
	return nil
}
