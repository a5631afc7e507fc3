// Command feedctl reads and writes social records from the command line.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/R3E-Network/ledgerfeed/internal/app"
	"github.com/R3E-Network/ledgerfeed/internal/cli"
	"github.com/R3E-Network/ledgerfeed/internal/config"
	"github.com/R3E-Network/ledgerfeed/internal/httputil"
	"github.com/R3E-Network/ledgerfeed/internal/ledger"
	"github.com/R3E-Network/ledgerfeed/internal/social"
	"github.com/R3E-Network/ledgerfeed/pkg/logger"
)

var commands = []cli.Command{
	{Name: "derive", Usage: "derive <profile|post|follow> <owner> [index]"},
	{Name: "feed", Usage: "feed <viewer>"},
	{Name: "posts", Usage: "posts <owner>"},
	{Name: "following", Usage: "following <owner>"},
	{Name: "is-following", Usage: "is-following <owner> <candidate>"},
	{Name: "profile", Usage: "profile <owner> <username>"},
	{Name: "post", Usage: "post <owner> <text>"},
	{Name: "follow", Usage: "follow <owner> <target>"},
	{Name: "completion", Usage: "completion <bash|zsh|fish>"},
}

var globalFlags = []string{"-config", "-server", "-ledger", "-rpc-url", "-log-level", "-json"}

// backend is the set of operations feedctl runs, either in process or
// against a feedd server.
type backend interface {
	Feed(ctx context.Context, viewer ledger.Identity, refresh bool) ([]social.FeedItem, error)
	UserPage(ctx context.Context, owner ledger.Identity) (*social.UserPage, error)
	Followees(ctx context.Context, owner ledger.Identity) ([]ledger.Identity, error)
	IsFollowing(ctx context.Context, owner, candidate ledger.Identity) (bool, error)
	CreateProfile(ctx context.Context, owner ledger.Identity, username string) error
	CreatePost(ctx context.Context, owner ledger.Identity, text string) (social.FeedItem, error)
	CreateFollowEdge(ctx context.Context, owner, target ledger.Identity) error
}

// local runs operations against the ledger directly.
type local struct{ svc *social.Service }

func (l local) Feed(ctx context.Context, viewer ledger.Identity, refresh bool) ([]social.FeedItem, error) {
	return l.svc.FeedFor(ctx, viewer, refresh)
}

func (l local) UserPage(ctx context.Context, owner ledger.Identity) (*social.UserPage, error) {
	return l.svc.Aggregator.BuildUserPage(ctx, owner)
}

func (l local) Followees(ctx context.Context, owner ledger.Identity) ([]ledger.Identity, error) {
	return l.svc.Follows.ListFollowees(ctx, owner)
}

func (l local) IsFollowing(ctx context.Context, owner, candidate ledger.Identity) (bool, error) {
	return l.svc.IsFollowing(ctx, owner, candidate)
}

func (l local) CreateProfile(ctx context.Context, owner ledger.Identity, username string) error {
	return l.svc.Mutator.CreateProfile(ctx, owner, username)
}

func (l local) CreatePost(ctx context.Context, owner ledger.Identity, text string) (social.FeedItem, error) {
	return l.svc.Mutator.CreatePost(ctx, owner, text)
}

func (l local) CreateFollowEdge(ctx context.Context, owner, target ledger.Identity) error {
	return l.svc.Mutator.CreateFollowEdge(ctx, owner, target)
}

type runner struct {
	api     backend
	deriver ledger.Deriver
	out     *cli.Printer
	asJSON  bool
}

func main() {
	fs := flag.NewFlagSet("feedctl", flag.ExitOnError)
	configPath := fs.String("config", os.Getenv("LEDGERFEED_CONFIG"), "Path to YAML config file")
	ledgerKind := fs.String("ledger", "", "Ledger backend: rpc or memory")
	rpcURL := fs.String("rpc-url", "", "JSON-RPC endpoint")
	logLevel := fs.String("log-level", "", "Log level")
	asJSON := fs.Bool("json", false, "Print results as JSON")
	server := fs.String("server", os.Getenv("LEDGERFEED_SERVER"), "feedd base URL; commands run in process when empty")
	fs.Usage = func() { usage(fs) }
	_ = fs.Parse(os.Args[1:])

	args := fs.Args()
	if len(args) == 0 {
		usage(fs)
		os.Exit(2)
	}
	if args[0] == "completion" {
		if len(args) != 2 {
			fail(fmt.Errorf("usage: feedctl completion <bash|zsh|fish>"))
		}
		if err := cli.WriteCompletion(os.Stdout, args[1], "feedctl", commands, globalFlags); err != nil {
			fail(err)
		}
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fail(err)
	}
	if *ledgerKind != "" {
		cfg.Ledger.Kind = *ledgerKind
	}
	if *rpcURL != "" {
		cfg.Ledger.RPCURL = *rpcURL
	}
	cfg.Logging.Level = "warn"
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fail(err)
	}

	log := logger.New(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Component: "feedctl"})
	program, err := cfg.Program()
	if err != nil {
		fail(err)
	}
	r := &runner{
		deriver: ledger.NewDeriver(program),
		out:     cli.NewPrinter(os.Stdout),
		asJSON:  *asJSON,
	}
	if *server != "" {
		r.api = httputil.NewClient(httputil.ClientConfig{BaseURL: *server, Timeout: cfg.Ledger.ConfirmTimeout + 30*time.Second})
	} else {
		l, err := app.NewLedger(cfg.Ledger, program, log.Named("chain"))
		if err != nil {
			fail(err)
		}
		r.api = local{svc: social.New(social.Config{
			Ledger:        l,
			Program:       program,
			Concurrency:   cfg.Feed.Concurrency,
			MaxFollowScan: cfg.Feed.MaxFollowScan,
			MaxPostScan:   cfg.Feed.MaxPostScan,
			Logger:        log,
		})}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := r.run(ctx, args[0], args[1:]); err != nil {
		stop()
		fail(err)
	}
}

func (r *runner) run(ctx context.Context, name string, args []string) error {
	switch name {
	case "derive":
		return r.derive(args)
	case "feed":
		return r.withIdentities(args, 1, func(ids []ledger.Identity) error {
			items, err := r.api.Feed(ctx, ids[0], true)
			if err != nil {
				return err
			}
			return r.feed(items)
		})
	case "posts":
		return r.withIdentities(args, 1, func(ids []ledger.Identity) error {
			page, err := r.api.UserPage(ctx, ids[0])
			if err != nil {
				return err
			}
			if r.asJSON {
				return r.json(page)
			}
			fmt.Printf("%s (%s)\n", page.Username, page.Owner)
			return r.feed(page.Posts)
		})
	case "following":
		return r.withIdentities(args, 1, func(ids []ledger.Identity) error {
			followees, err := r.api.Followees(ctx, ids[0])
			if err != nil {
				return err
			}
			if r.asJSON {
				return r.json(followees)
			}
			for _, id := range followees {
				fmt.Println(id)
			}
			return nil
		})
	case "is-following":
		return r.withIdentities(args, 2, func(ids []ledger.Identity) error {
			following, err := r.api.IsFollowing(ctx, ids[0], ids[1])
			if err != nil {
				return err
			}
			if r.asJSON {
				return r.json(map[string]bool{"following": following})
			}
			fmt.Println(following)
			return nil
		})
	case "profile":
		if len(args) != 2 {
			return fmt.Errorf("usage: feedctl profile <owner> <username>")
		}
		owner, err := ledger.ParseIdentity(args[0])
		if err != nil {
			return err
		}
		return r.submit("creating profile", func() error {
			return r.api.CreateProfile(ctx, owner, args[1])
		})
	case "post":
		if len(args) < 2 {
			return fmt.Errorf("usage: feedctl post <owner> <text>")
		}
		owner, err := ledger.ParseIdentity(args[0])
		if err != nil {
			return err
		}
		var item social.FeedItem
		err = r.submit("submitting post", func() error {
			var err error
			item, err = r.api.CreatePost(ctx, owner, strings.Join(args[1:], " "))
			return err
		})
		if err != nil {
			return err
		}
		return r.feed([]social.FeedItem{item})
	case "follow":
		return r.withIdentities(args, 2, func(ids []ledger.Identity) error {
			return r.submit("creating follow edge", func() error {
				return r.api.CreateFollowEdge(ctx, ids[0], ids[1])
			})
		})
	default:
		return fmt.Errorf("unknown command %q", name)
	}
}

func (r *runner) derive(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: feedctl derive <profile|post|follow> <owner> [index]")
	}
	owner, err := ledger.ParseIdentity(args[1])
	if err != nil {
		return err
	}
	var index uint64
	if len(args) > 2 {
		if index, err = strconv.ParseUint(args[2], 10, 64); err != nil {
			return fmt.Errorf("index: %w", err)
		}
	}
	d := r.deriver
	var addr ledger.Address
	switch args[0] {
	case "profile":
		addr = d.Profile(owner)
	case "post":
		addr = d.Post(owner, index)
	case "follow":
		addr = d.Follow(owner, index)
	default:
		return fmt.Errorf("unknown record kind %q", args[0])
	}
	if r.asJSON {
		return r.json(addr)
	}
	fmt.Println(addr)
	return nil
}

func (r *runner) withIdentities(args []string, n int, fn func([]ledger.Identity) error) error {
	if len(args) != n {
		return fmt.Errorf("expected %d identities, got %d", n, len(args))
	}
	ids := make([]ledger.Identity, n)
	for i, s := range args {
		id, err := ledger.ParseIdentity(s)
		if err != nil {
			return fmt.Errorf("identity %q: %w", s, err)
		}
		ids[i] = id
	}
	return fn(ids)
}

func (r *runner) submit(what string, fn func() error) error {
	spin := cli.NewSpinner(os.Stderr, what)
	spin.Start()
	err := fn()
	spin.Stop()
	if err != nil {
		return err
	}
	if !r.asJSON {
		r.out.Success(what + ": confirmed")
	}
	return nil
}

func (r *runner) feed(items []social.FeedItem) error {
	if r.asJSON {
		return r.json(items)
	}
	r.out.Feed(items)
	return nil
}

func (r *runner) json(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func usage(fs *flag.FlagSet) {
	fmt.Fprintln(os.Stderr, "Usage: feedctl [flags] <command> [args]")
	fmt.Fprintln(os.Stderr, "\nCommands:")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %s\n", c.Usage)
	}
	fmt.Fprintln(os.Stderr, "\nFlags:")
	fs.PrintDefaults()
}

func fail(err error) {
	cli.NewPrinter(os.Stderr).Error(err.Error())
	os.Exit(1)
}
