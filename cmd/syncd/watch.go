package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	jsonpatch "github.com/evanphx/json-patch"
	"github.com/scott-cotton/cli"
	"github.com/signadot/docsync/system/syncd/api"
	"github.com/signadot/docsync/system/syncd/client"
)

type WatchConfig struct {
	*MainConfig
	Watch    *cli.Command
	Addr     string `cli:"name=addr desc='server address, host:port or a ws:// URL' default=localhost:9125"`
	Name     string `cli:"name=name desc='document name'"`
	Start    int    `cli:"name=start desc='version to catch up from'"`
	SID      string `cli:"name=sid desc='session id to resume'"`
	Auth     string `cli:"name=auth desc='auth payload as JSON'"`
	Consumer string `cli:"name=consumer desc='consumer id'"`
	Raw      bool   `cli:"name=raw desc='print wire values instead of document diffs'"`
}

func WatchCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &WatchConfig{MainConfig: mainCfg, Addr: "localhost:9125"}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	return cli.NewCommandAt(&cfg.Watch, "watch").
		WithSynopsis("watch -name <doc> [-addr <addr>] [-start n] [-sid s] [-auth json] [-consumer id] [-raw]").
		WithDescription("follow a document, printing each change").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			return watch(cfg, cc, args)
		})
}

func (cfg *WatchConfig) handshake() (*api.Handshake, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("%w: -name is required", cli.ErrUsage)
	}
	hs := &api.Handshake{
		Name:       cfg.Name,
		Start:      int64(cfg.Start),
		SID:        cfg.SID,
		ConsumerID: cfg.Consumer,
	}
	if cfg.Auth != "" {
		if !json.Valid([]byte(cfg.Auth)) {
			return nil, fmt.Errorf("%w: -auth must be JSON", cli.ErrUsage)
		}
		hs.Auth = json.RawMessage(cfg.Auth)
	}
	return hs, nil
}

func watch(cfg *WatchConfig, cc *cli.Context, args []string) error {
	_, err := cfg.Watch.Parse(cc, args)
	if err != nil {
		return err
	}
	hs, err := cfg.handshake()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	c, err := client.Dial(ctx, &client.Config{Addr: cfg.Addr}, hs)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		c.Close()
	}()

	r := newDocRenderer(cc.Out, cfg.Color)
	doc := json.RawMessage("{}")
	for {
		msg, err := c.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if cfg.Raw {
			data, _ := json.Marshal(msg)
			fmt.Fprintf(cc.Out, "%s\n", data)
			if msg.Error != nil {
				return serverError(msg.Error)
			}
			continue
		}
		switch {
		case msg.Session != nil:
			r.Header("# session %s", msg.Session.SID)
		case msg.Error != nil:
			return serverError(msg.Error)
		case msg.PatchFailure != nil:
			r.Header("# patch failed: %s", msg.PatchFailure.Patch)
		case msg.Update != nil:
			next, err := applyUpdate(doc, msg.Update)
			if err != nil {
				r.Header("# version %d: %v", msg.Update.Version, err)
				continue
			}
			r.Header("# version %d", msg.Update.Version)
			if err := r.Diff(doc, next); err != nil {
				return err
			}
			doc = next
		}
	}
}

func applyUpdate(doc json.RawMessage, u *api.Update) (json.RawMessage, error) {
	p, err := jsonpatch.DecodePatch(u.Patch)
	if err != nil {
		return nil, fmt.Errorf("invalid patch: %w", err)
	}
	next, err := p.Apply(doc)
	if err != nil {
		return nil, fmt.Errorf("local copy out of sync: %w", err)
	}
	return next, nil
}

func serverError(e *api.ErrorValue) error {
	if e.Cause != "" {
		return fmt.Errorf("%s: %s", e.Error, e.Cause)
	}
	return fmt.Errorf("%s", e.Error)
}
