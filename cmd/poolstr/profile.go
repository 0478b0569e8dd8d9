package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/gookit/color"
	"github.com/urfave/cli/v2"

	"github.com/candleworks/poolstr/pkg/profile"
)

func Profile(cCtx *cli.Context) (err error) {
	cfg := cCtx.App.Metadata["config"].(*C)
	var pub string
	if u := cCtx.String("u"); u != "" {
		if pub, err = resolvePubKey(u); chk.E(err) {
			return
		}
	} else {
		if err = cfg.requireKey(); err != nil {
			return
		}
		pub = cfg.Identity.Pub
	}
	p, err := cfg.openPool(cCtx.Context)
	if err != nil {
		return
	}
	defer p.Close()
	var pr *profile.T
	var found bool
	if pr, found, err = p.FetchProfile(cCtx.Context, pub); err != nil {
		return
	}
	if !found {
		return fmt.Errorf("no profile found for %s", pub)
	}
	if cCtx.Bool("json") {
		return json.NewEncoder(os.Stdout).Encode(pr)
	}
	name := pr.DisplayName
	if name == "" {
		name = pr.Name
	}
	fmt.Println(color.New(color.FgRed).Sprint(name))
	fmt.Println(pr.Npub)
	if pr.About != "" {
		fmt.Println(pr.About)
	}
	if pr.Website != "" {
		fmt.Println("Website:", pr.Website)
	}
	if pr.NIP05 != "" {
		fmt.Println("NIP-05:", pr.NIP05)
	}
	if pr.Lud16 != "" {
		fmt.Println("Lightning:", pr.Lud16)
	}
	return nil
}
