package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/candleworks/poolstr/pkg/normalize"
	"github.com/candleworks/poolstr/pkg/relay"
)

func RelayAdd(cCtx *cli.Context) (err error) {
	cfg := cCtx.App.Metadata["config"].(*C)
	url := normalize.URL(cCtx.Args().First())
	if url == "" {
		return fmt.Errorf("usage: %s relay add [url]", appName)
	}
	rc := relay.Config{
		URL:   url,
		Read:  !cCtx.Bool("write-only"),
		Write: !cCtx.Bool("read-only"),
	}
	for i := range cfg.Relays {
		if cfg.Relays[i].URL == url {
			cfg.Relays[i] = rc
			return cfg.saveRelays()
		}
	}
	cfg.Relays = append(cfg.Relays, rc)
	return cfg.saveRelays()
}

func RelayRemove(cCtx *cli.Context) (err error) {
	cfg := cCtx.App.Metadata["config"].(*C)
	url := normalize.URL(cCtx.Args().First())
	if url == "" {
		return fmt.Errorf("usage: %s relay remove [url]", appName)
	}
	for i := range cfg.Relays {
		if cfg.Relays[i].URL == url {
			cfg.Relays = append(cfg.Relays[:i], cfg.Relays[i+1:]...)
			return cfg.saveRelays()
		}
	}
	return fmt.Errorf("relay '%s' is not in the list", url)
}

func RelayList(cCtx *cli.Context) (err error) {
	cfg := cCtx.App.Metadata["config"].(*C)
	for _, rc := range cfg.Relays {
		mode := ""
		if rc.Read {
			mode += "r"
		}
		if rc.Write {
			mode += "w"
		}
		fmt.Printf("%s [%s]\n", rc.URL, mode)
	}
	return nil
}
