package main

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/candleworks/poolstr/pkg/keystore"
	"github.com/candleworks/poolstr/pkg/relay"
	"github.com/candleworks/poolstr/pkg/slog"
)

var log, chk = slog.GetStd()

const appName = "poolstr"

const version = "0.1.0"

func dataDir() (dir string, err error) {
	switch runtime.GOOS {
	case "darwin":
		if dir, err = os.UserHomeDir(); chk.E(err) {
			return
		}
		return filepath.Join(dir, ".config", appName), nil
	default:
		if dir, err = os.UserConfigDir(); chk.E(err) {
			return
		}
		return filepath.Join(dir, appName), nil
	}
}

func main() {
	app := &cli.App{
		Name:  appName,
		Usage: "a cli client for nostr relays",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "datadir",
				Usage: "directory holding keys and the relay list"},
			&cli.StringFlag{Name: "relays",
				Usage: "comma separated relay urls, overriding the saved list"},
			&cli.BoolFlag{Name: "V", Usage: "verbose"},
		},
		Commands: []*cli.Command{
			{
				Name:  "key",
				Usage: "manage the signing key",
				Subcommands: []*cli.Command{
					{
						Name:  "gen",
						Usage: "generate and store a new key pair",
						Flags: []cli.Flag{
							&cli.BoolFlag{Name: "qr",
								Usage: "print the npub as a QR code"},
							&cli.BoolFlag{Name: "no-save",
								Usage: "print only, do not store"},
						},
						Action: KeyGen,
					},
					{
						Name:  "show",
						Usage: "show the stored key pair",
						Flags: []cli.Flag{
							&cli.BoolFlag{Name: "qr",
								Usage: "print the npub as a QR code"},
							&cli.BoolFlag{Name: "sec",
								Usage: "also print the secret key"},
						},
						Action: KeyShow,
					},
					{
						Name:      "import",
						Usage:     "store an existing secret key (hex or nsec)",
						ArgsUsage: "[secret key]",
						Action:    KeyImport,
					},
					{
						Name:   "delete",
						Usage:  "remove the stored key pair",
						Action: KeyDelete,
					},
				},
			},
			{
				Name:      "post",
				Aliases:   []string{"n"},
				Usage:     "sign and publish a text note",
				UsageText: appName + " post [note text]",
				ArgsUsage: "[note text]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "stdin",
						Usage: "read the note text from stdin"},
				},
				Action: Post,
			},
			{
				Name:    "timeline",
				Aliases: []string{"tl"},
				Usage:   "show recent notes from the read relays",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "n", Value: 30,
						Usage: "number of items"},
					&cli.StringSliceFlag{Name: "u",
						Usage: "authors (npub or hex), default anyone"},
					&cli.BoolFlag{Name: "json", Usage: "output JSON"},
				},
				Action: Timeline,
			},
			{
				Name:      "get",
				Usage:     "fetch one event by id",
				UsageText: appName + " get [note or hex id]",
				ArgsUsage: "[note or hex id]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "output JSON"},
				},
				Action: Get,
			},
			{
				Name:  "profile",
				Usage: "show a user's profile",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "u",
						Usage: "user (npub or hex), default self"},
					&cli.BoolFlag{Name: "json", Usage: "output JSON"},
				},
				Action: Profile,
			},
			{
				Name:  "relay",
				Usage: "manage the relay list",
				Subcommands: []*cli.Command{
					{
						Name:      "add",
						Usage:     "add a relay",
						ArgsUsage: "[url]",
						Flags: []cli.Flag{
							&cli.BoolFlag{Name: "read-only"},
							&cli.BoolFlag{Name: "write-only"},
						},
						Action: RelayAdd,
					},
					{
						Name:      "remove",
						Usage:     "remove a relay",
						ArgsUsage: "[url]",
						Action:    RelayRemove,
					},
					{
						Name:   "list",
						Usage:  "list the configured relays",
						Action: RelayList,
					},
				},
			},
			{
				Name:  "version",
				Usage: "show version",
				Action: func(*cli.Context) error {
					log.I.Ln(appName, version)
					return nil
				},
			},
		},
		Before: func(cCtx *cli.Context) (err error) {
			if cCtx.Bool("V") {
				slog.SetLogLevel(slog.Debug)
			}
			cfg := &C{}
			dir := cCtx.String("datadir")
			if dir == "" {
				if dir, err = dataDir(); chk.E(err) {
					return
				}
			}
			if err = os.MkdirAll(dir, 0700); chk.E(err) {
				return
			}
			if cfg.Store, err = keystore.Open(filepath.Join(dir,
				"store")); chk.E(err) {
				return
			}
			if err = cfg.load(); chk.E(err) {
				return
			}
			if relays := strings.TrimSpace(cCtx.String("relays")); relays != "" {
				cfg.Relays = nil
				for _, u := range strings.Split(relays, ",") {
					cfg.Relays = append(cfg.Relays,
						relay.Config{URL: u, Read: true, Write: true})
				}
				cfg.tempRelays = true
			}
			cCtx.App.Metadata = map[string]any{"config": cfg}
			return nil
		},
		After: func(cCtx *cli.Context) error {
			if cfg, ok := cCtx.App.Metadata["config"].(*C); ok {
				return cfg.Store.Close()
			}
			return nil
		},
	}
	if err := app.Run(os.Args); chk.E(err) {
		os.Exit(1)
	}
}
