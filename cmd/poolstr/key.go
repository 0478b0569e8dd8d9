package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/mdp/qrterminal/v3"
	"github.com/urfave/cli/v2"

	"github.com/candleworks/poolstr/pkg/bech32encoding"
	"github.com/candleworks/poolstr/pkg/keys"
)

func printQR(s string) {
	qrterminal.GenerateWithConfig(s, qrterminal.Config{
		HalfBlocks: false,
		Level:      qrterminal.L,
		Writer:     os.Stdout,
		WhiteChar:  qrterminal.WHITE,
		BlackChar:  qrterminal.BLACK,
		QuietZone:  2,
	})
}

func printIdentity(id keys.Identity, withSec, withQR bool) (err error) {
	var npub string
	if npub, err = id.Npub(); chk.E(err) {
		return
	}
	fmt.Println("npub:", npub)
	fmt.Println("pub: ", id.Pub)
	if withSec {
		var nsec string
		if nsec, err = id.Nsec(); chk.E(err) {
			return
		}
		fmt.Println("nsec:", nsec)
		fmt.Println("sec: ", id.Sec)
	}
	if withQR {
		printQR(strings.ToUpper(npub))
	}
	return
}

func KeyGen(cCtx *cli.Context) (err error) {
	cfg := cCtx.App.Metadata["config"].(*C)
	var id keys.Identity
	if id, err = keys.Generate(); chk.E(err) {
		return
	}
	if !cCtx.Bool("no-save") {
		if cfg.HasKey {
			return fmt.Errorf(
				"a key is already stored, delete it first with '%s key delete'",
				appName)
		}
		if err = cfg.Store.SaveIdentity(id); chk.E(err) {
			return
		}
	}
	return printIdentity(id, true, cCtx.Bool("qr"))
}

func KeyShow(cCtx *cli.Context) (err error) {
	cfg := cCtx.App.Metadata["config"].(*C)
	if err = cfg.requireKey(); err != nil {
		return
	}
	return printIdentity(cfg.Identity, cCtx.Bool("sec"), cCtx.Bool("qr"))
}

func KeyImport(cCtx *cli.Context) (err error) {
	cfg := cCtx.App.Metadata["config"].(*C)
	sk := strings.TrimSpace(cCtx.Args().First())
	if sk == "" {
		return fmt.Errorf("usage: %s key import [hex or nsec secret key]",
			appName)
	}
	if strings.HasPrefix(sk, bech32encoding.SecHRP) {
		if sk, err = bech32encoding.NsecToSecKey(sk); chk.E(err) {
			return
		}
	}
	var id keys.Identity
	if id, err = keys.FromSecretKey(sk); chk.E(err) {
		return
	}
	if cfg.HasKey {
		return fmt.Errorf(
			"a key is already stored, delete it first with '%s key delete'",
			appName)
	}
	if err = cfg.Store.SaveIdentity(id); chk.E(err) {
		return
	}
	return printIdentity(id, false, false)
}

func KeyDelete(cCtx *cli.Context) (err error) {
	cfg := cCtx.App.Metadata["config"].(*C)
	if !cfg.HasKey {
		log.I.Ln("no key stored")
		return nil
	}
	if err = cfg.Store.DeleteIdentity(); chk.E(err) {
		return
	}
	log.I.Ln("key deleted")
	return
}
