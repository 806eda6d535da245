package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/scott-cotton/cli"
	"github.com/signadot/docsync/system/syncd/api"
	"github.com/signadot/docsync/system/syncd/client"
)

type PatchConfig struct {
	*MainConfig
	Patch   *cli.Command
	Addr    string `cli:"name=addr desc='server address, host:port or a ws:// URL' default=localhost:9125"`
	Name    string `cli:"name=name desc='document name'"`
	SID     string `cli:"name=sid desc='session id to resume'"`
	Auth    string `cli:"name=auth desc='auth payload as JSON'"`
	Timeout int    `cli:"name=timeout desc='seconds to wait for the server' default=10"`
}

func PatchCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &PatchConfig{MainConfig: mainCfg, Addr: "localhost:9125", Timeout: 10}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	return cli.NewCommandAt(&cfg.Patch, "patch").
		WithSynopsis("patch -name <doc> [-addr <addr>] '<json patch>'").
		WithDescription("apply one JSON patch to a document and print the resulting version").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			return patch(cfg, cc, args)
		})
}

func patch(cfg *PatchConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Patch.Parse(cc, args)
	if err != nil {
		return err
	}
	if cfg.Name == "" {
		return fmt.Errorf("%w: -name is required", cli.ErrUsage)
	}
	if len(args) != 1 {
		return fmt.Errorf("%w: patch requires one argument, a JSON patch", cli.ErrUsage)
	}
	var want bytes.Buffer
	if err := json.Compact(&want, []byte(args[0])); err != nil {
		return fmt.Errorf("%w: invalid patch: %w", cli.ErrUsage, err)
	}
	hs := &api.Handshake{Name: cfg.Name, SID: cfg.SID}
	if cfg.Auth != "" {
		if !json.Valid([]byte(cfg.Auth)) {
			return fmt.Errorf("%w: -auth must be JSON", cli.ErrUsage)
		}
		hs.Auth = json.RawMessage(cfg.Auth)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Timeout)*time.Second)
	defer cancel()
	c, err := client.Dial(ctx, &client.Config{Addr: cfg.Addr}, hs)
	if err != nil {
		return err
	}
	defer c.Close()
	go func() {
		<-ctx.Done()
		c.Close()
	}()

	sent := false
	for {
		msg, err := c.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("no reply from server: %w", ctx.Err())
			}
			return err
		}
		switch {
		case msg.Error != nil:
			return serverError(msg.Error)
		case msg.PatchFailure != nil:
			return fmt.Errorf("%s: %s", msg.PatchFailure.Error, msg.PatchFailure.Patch)
		case msg.Update == nil:
			continue
		case !sent:
			// the first update is the catch-up
			if err := c.Send(want.Bytes()); err != nil {
				return err
			}
			sent = true
		case bytes.Equal(compact(msg.Update.Patch), want.Bytes()):
			fmt.Fprintf(cc.Out, "%d\n", msg.Update.Version)
			return nil
		}
	}
}

func compact(data []byte) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return data
	}
	return buf.Bytes()
}
