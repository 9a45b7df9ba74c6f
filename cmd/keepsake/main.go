package main

import (
	"fmt"
	"os"

	"keepsake/internal/content/config"
	"keepsake/internal/shared/logger"

	"github.com/docopt/docopt-go"
)

const KeepsakeVersion = "1.0.0"

const usage = `Keepsake collection client.

The server is read from KEEPSAKE_SERVER_URL and writes use KEEPSAKE_ADMIN_TOKEN
(print one with "keepsake unlock"). Collections are memories (alias cards)
and gallery (alias photos).

Usage:
    keepsake watch <collection>
    keepsake list <collection> [--desc]
    keepsake events <collection> [--count=<count>]
    keepsake create <collection> [<file>...]
        [--title=<title>] [--date=<date>] [--description=<text>] [--caption=<caption>]
    keepsake edit <collection> <id> [--file=<file>]
        [--title=<title>] [--date=<date>] [--description=<text>] [--caption=<caption>]
    keepsake delete <collection> <id>
    keepsake seed
    keepsake carousel <count> [--width=<px>] [--gap=<px>] [--viewport=<px>] [--scroll=<px>]
    keepsake unlock
    keepsake hash <code>
    keepsake -h | --help
    keepsake --version

Options:
    -h --help                Show this screen.
    --version                Show version.
    --desc                   List newest first.
    --count=<count>          Number of change log entries [default: 20].
    --file=<file>            Replace the record's media with this file.
    --title=<title>          Card title.
    --date=<date>            Card date label.
    --description=<text>     Card description.
    --caption=<caption>      Photo caption.
    --width=<px>             Slide width [default: 320].
    --gap=<px>               Gap between slides [default: 16].
    --viewport=<px>          Viewport width [default: 360].
    --scroll=<px>            Scroll offset [default: 0].`

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], KeepsakeVersion)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not load .env file: %v\n", err)
	}
	log := logger.NewLogger().WithComponent("cli")

	if err := run(opts, log); err != nil {
		fmt.Fprintf(os.Stderr, "keepsake: %v\n", err)
		os.Exit(1)
	}
}

func run(opts docopt.Opts, log logger.Logger) error {
	// Commands that need no server.
	if hash_, _ := opts.Bool("hash"); hash_ {
		return hashCode(opts)
	} else if carousel_, _ := opts.Bool("carousel"); carousel_ {
		return carouselCmd(opts)
	}

	cfg, err := config.LoadClientConfig()
	if err != nil {
		return err
	}
	app, err := newCLI(cfg, log, os.Stdout)
	if err != nil {
		return err
	}

	if watch_, _ := opts.Bool("watch"); watch_ {
		return app.watch(opts)
	} else if list_, _ := opts.Bool("list"); list_ {
		return app.list(opts)
	} else if events_, _ := opts.Bool("events"); events_ {
		return app.events(opts)
	} else if create_, _ := opts.Bool("create"); create_ {
		return app.create(opts)
	} else if edit_, _ := opts.Bool("edit"); edit_ {
		return app.edit(opts)
	} else if delete_, _ := opts.Bool("delete"); delete_ {
		return app.delete(opts)
	} else if seed_, _ := opts.Bool("seed"); seed_ {
		return app.seed()
	} else if unlock_, _ := opts.Bool("unlock"); unlock_ {
		return app.unlock(os.Stdin)
	}
	return nil
}
