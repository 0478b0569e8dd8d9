package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/candleworks/poolstr/pkg/event"
	"github.com/candleworks/poolstr/pkg/kind"
	"github.com/candleworks/poolstr/pkg/pool"
)

func Post(cCtx *cli.Context) (err error) {
	cfg := cCtx.App.Metadata["config"].(*C)
	if err = cfg.requireKey(); err != nil {
		return
	}
	var content string
	if cCtx.Bool("stdin") {
		var b []byte
		if b, err = io.ReadAll(os.Stdin); chk.E(err) {
			return
		}
		content = string(b)
	} else {
		content = strings.Join(cCtx.Args().Slice(), " ")
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return fmt.Errorf("nothing to post")
	}
	var ev *event.T
	if ev, err = event.New(content, kind.TextNote, nil,
		cfg.Identity); chk.E(err) {
		return
	}
	p, err := cfg.openPool(cCtx.Context)
	if err != nil {
		return
	}
	defer p.Close()
	var res *pool.PublishResult
	if res, err = p.Publish(cCtx.Context, ev); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	for _, v := range res.Relays {
		line := fmt.Sprintf("%s: %s", v.URL, v.Status)
		if v.Reason != "" {
			line += " (" + v.Reason + ")"
		}
		fmt.Println(line)
	}
	if !res.Published {
		return fmt.Errorf("no relay accepted the note")
	}
	var note string
	if note, err = ev.Note(); chk.E(err) {
		return
	}
	fmt.Println(note)
	return nil
}
