package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/golang/glog"

	"github.com/xiaot623/livedoc/internal/config"
	internalhttp "github.com/xiaot623/livedoc/internal/http"
	"github.com/xiaot623/livedoc/internal/policy"
	"github.com/xiaot623/livedoc/internal/render"
	"github.com/xiaot623/livedoc/internal/repository"
	"github.com/xiaot623/livedoc/internal/session"
	"github.com/xiaot623/livedoc/internal/transport/ws"
	"github.com/xiaot623/livedoc/internal/widgets"
)

const LivedocVersion = "0.1.0"

const DefaultRunsLimit = 20

func main() {
	usage := `Live document session client.

Usage:
    livedoc connect [--url=<url>] [--http_addr=<addr>] [--journal=<dsn>] [--query=<query>] [--print]
    livedoc runs [--journal=<dsn>] [--limit=<n>]
    livedoc events <run_id> [--journal=<dsn>]
    livedoc -h | --help
    livedoc --version

Options:
    -h --help            Show this screen.
    --version            Show version.
    --url=<url>          Session stream URL. Overrides server.url.
    --http_addr=<addr>   Serve the inspection API on this address. Overrides http.addr.
    --journal=<dsn>      SQLite journal DSN. Overrides journal.dsn.
    --query=<query>      Query string of the first run. Overrides session.query_string.
    --print              Print the document tree after every change.
    --limit=<n>          Number of runs to list.`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], LivedocVersion)
	if err != nil {
		panic(err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "livedoc: %v\n", err)
		os.Exit(1)
	}
	applyOverrides(&cfg, opts)
	setupLogging(cfg.Log.Verbosity)
	defer glog.Flush()

	if connect_, _ := opts.Bool("connect"); connect_ {
		connect(cfg, opts)
	} else if runs_, _ := opts.Bool("runs"); runs_ {
		listRuns(cfg, opts)
	} else if events_, _ := opts.Bool("events"); events_ {
		listEvents(cfg, opts)
	}
}

func applyOverrides(cfg *config.Config, opts docopt.Opts) {
	if url, _ := opts.String("--url"); url != "" {
		cfg.Server.URL = url
	}
	if addr, _ := opts.String("--http_addr"); addr != "" {
		cfg.HTTP.Addr = addr
	}
	if dsn, _ := opts.String("--journal"); dsn != "" {
		cfg.Journal.DSN = dsn
	}
	if query, err := opts.String("--query"); err == nil {
		cfg.Session.QueryString = query
	}
}

func setupLogging(verbosity int) {
	flag.Set("logtostderr", "true")
	flag.Set("v", strconv.Itoa(verbosity))
	flag.CommandLine.Parse([]string{})
}

func connect(cfg config.Config, opts docopt.Opts) {
	printTree, _ := opts.Bool("--print")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Optional journal
	var recorder session.Recorder
	var journal internalhttp.Journal
	if cfg.Journal.DSN != "" {
		store, err := repository.NewSQLiteStore(cfg.Journal.DSN)
		if err != nil {
			glog.Exitf("Failed to open journal: %v", err)
		}
		defer store.Close()
		recorder = repository.NewRecorder(store)
		journal = store
	}

	outbound, err := loadPolicy(ctx, cfg.Policy)
	if err != nil {
		glog.Exitf("Failed to load policy: %v", err)
	}

	client, err := ws.Dial(ctx, ws.Config{
		URL:            cfg.Server.URL,
		PingInterval:   cfg.Server.PingInterval,
		WriteTimeout:   cfg.Server.WriteTimeout,
		ReadTimeout:    cfg.Server.ReadTimeout,
		MaxMessageSize: cfg.Server.MaxMessageSize,
	})
	if err != nil {
		glog.Exitf("Failed to connect to %s: %v", cfg.Server.URL, err)
	}
	glog.Infof("Connected to %s", cfg.Server.URL)

	store := widgets.New()
	var server *internalhttp.Server
	engine := session.NewEngine(session.Options{
		MaxCachedMessageAge: cfg.Cache.MaxMessageAge,
		Widgets:             store,
		Sender:              client,
		Recorder:            recorder,
		Policy:              outbound,
		OnChange: func(e *session.Engine) {
			snap := e.Snapshot()
			if server != nil {
				server.Publish(snap)
			}
			if printTree {
				fmt.Println(render.Tree(snap))
				fmt.Println()
			}
		},
		OnResync: client.Resync,
	})

	if cfg.HTTP.Addr != "" {
		server = internalhttp.NewServer(client, store, journal)
		server.Publish(engine.Snapshot())
		go func() {
			if err := server.Start(cfg.HTTP.Addr); err != nil && err != http.ErrServerClosed {
				glog.Errorf("Failed to start HTTP server: %v", err)
				stop()
			}
		}()
		glog.Infof("HTTP server started on %s", cfg.HTTP.Addr)
	}

	// Ask for the first run once the engine goroutine is up.
	go func() {
		query := cfg.Session.QueryString
		var sendErr error
		err := client.Do(ctx, func(e *session.Engine) {
			_, sendErr = e.RequestRerun(ctx, session.RerunOptions{QueryString: &query})
		})
		if err == nil {
			err = sendErr
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			glog.Errorf("Failed to request the first run: %v", err)
		}
	}()

	err = client.Run(ctx, engine)
	if err != nil && !errors.Is(err, context.Canceled) {
		glog.Errorf("Session ended: %v", err)
	}

	// Graceful shutdown
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			glog.Errorf("Failed to shutdown HTTP server gracefully: %v", err)
		}
	}
	glog.Info("Session closed")
}

func loadPolicy(ctx context.Context, cfg config.PolicyConfig) (*policy.Engine, error) {
	content := policy.DefaultPolicy
	if cfg.File != "" {
		data, err := os.ReadFile(cfg.File)
		if err != nil {
			return nil, err
		}
		content = string(data)
	}
	return policy.NewEngine(ctx, content, cfg.DeveloperMode)
}

func openJournal(cfg config.Config) *repository.SQLiteStore {
	if cfg.Journal.DSN == "" {
		glog.Exit("No journal configured; set journal.dsn or pass --journal")
	}
	store, err := repository.NewSQLiteStore(cfg.Journal.DSN)
	if err != nil {
		glog.Exitf("Failed to open journal: %v", err)
	}
	return store
}

func listRuns(cfg config.Config, opts docopt.Opts) {
	limit := DefaultRunsLimit
	if n, err := opts.Int("--limit"); err == nil {
		limit = n
	}

	store := openJournal(cfg)
	defer store.Close()

	runs, err := store.ListRuns(context.Background(), limit)
	if err != nil {
		glog.Exitf("Failed to list runs: %v", err)
	}
	for _, run := range runs {
		ended := "-"
		if run.EndedAt != nil {
			ended = run.EndedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
		}
		fmt.Printf("%s  %-24s  %s  %s\n", run.RunID, run.Status, run.StartedAt.Format(time.RFC3339), ended)
	}
}

func listEvents(cfg config.Config, opts docopt.Opts) {
	runID, _ := opts.String("<run_id>")

	store := openJournal(cfg)
	defer store.Close()

	ctx := context.Background()
	run, err := store.GetRun(ctx, runID)
	if err != nil {
		glog.Exitf("Failed to get run: %v", err)
	}
	if run == nil {
		glog.Exitf("Run %s not found", runID)
	}

	events, err := store.GetEvents(ctx, runID, nil, 0)
	if err != nil {
		glog.Exitf("Failed to get events: %v", err)
	}
	fmt.Printf("%s  %s\n", run.RunID, run.Status)
	for _, event := range events {
		ts := time.UnixMilli(event.Ts).Format("15:04:05.000")
		fmt.Printf("  %s  %-22s  %s\n", ts, event.Type, string(event.Payload))
	}
}
