package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/gookit/color"
	"github.com/urfave/cli/v2"

	"github.com/candleworks/poolstr/pkg/event"
	"github.com/candleworks/poolstr/pkg/filter"
	"github.com/candleworks/poolstr/pkg/kind"
)

func printEvents(evs []*event.T, asJSON bool) {
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		for _, ev := range evs {
			chk.D(enc.Encode(ev))
		}
		return
	}
	fgRed := color.New(color.FgRed)
	fgBlue := color.New(color.Blue)
	buffer := new(bytes.Buffer)
	for _, ev := range evs {
		note, err := ev.Note()
		if err != nil {
			note = ev.ID
		}
		fmt.Fprintln(buffer, fgRed.Sprint("pubkey "), ev.PubKey)
		fmt.Fprintln(buffer, fgBlue.Sprint(note), " ",
			fgBlue.Sprint(ev.CreatedAt.Time()))
		fmt.Fprintln(buffer, ev.Content)
		fmt.Fprintln(buffer)
	}
	fmt.Print(buffer.String())
}

func Timeline(cCtx *cli.Context) (err error) {
	cfg := cCtx.App.Metadata["config"].(*C)
	n := cCtx.Int("n")
	f := &filter.T{
		Kinds: kind.List{kind.TextNote},
		Limit: n,
	}
	for _, u := range cCtx.StringSlice("u") {
		var pub string
		if pub, err = resolvePubKey(u); chk.E(err) {
			return
		}
		f.Authors = append(f.Authors, pub)
	}
	p, err := cfg.openPool(cCtx.Context)
	if err != nil {
		return
	}
	defer p.Close()
	evs, complete, err := p.Fetch(cCtx.Context, f)
	if err != nil {
		return
	}
	if !complete {
		log.D.Ln("timeline is partial, some relays did not finish")
	}
	printEvents(evs, cCtx.Bool("json"))
	return nil
}
