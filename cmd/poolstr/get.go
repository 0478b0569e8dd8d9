package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/candleworks/poolstr/pkg/event"
)

func Get(cCtx *cli.Context) (err error) {
	cfg := cCtx.App.Metadata["config"].(*C)
	id := cCtx.Args().First()
	if id == "" {
		return fmt.Errorf("usage: %s get [note or hex id]", appName)
	}
	p, err := cfg.openPool(cCtx.Context)
	if err != nil {
		return
	}
	defer p.Close()
	var ev *event.T
	var found bool
	if ev, found, err = p.FetchOne(cCtx.Context, id); err != nil {
		return
	}
	if !found {
		return fmt.Errorf("event not found on any relay")
	}
	printEvents([]*event.T{ev}, cCtx.Bool("json"))
	return nil
}
