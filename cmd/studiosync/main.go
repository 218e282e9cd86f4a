package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/schollz/progressbar/v3"
	"github.com/smallbiznis/studiosync/internal/clock"
	"github.com/smallbiznis/studiosync/internal/config"
	"github.com/smallbiznis/studiosync/internal/export/csvsource"
	"github.com/smallbiznis/studiosync/internal/metricspush"
	"github.com/smallbiznis/studiosync/internal/migration"
	"github.com/smallbiznis/studiosync/internal/observability"
	"github.com/smallbiznis/studiosync/internal/pipeline"
	pipelinedomain "github.com/smallbiznis/studiosync/internal/pipeline/domain"
	"github.com/smallbiznis/studiosync/internal/reporting"
	"github.com/smallbiznis/studiosync/internal/runlock"
	"github.com/smallbiznis/studiosync/internal/scheduler"
	"github.com/smallbiznis/studiosync/internal/server"
	"github.com/smallbiznis/studiosync/internal/watermark"
	"github.com/smallbiznis/studiosync/pkg/db"
	"go.uber.org/fx"
)

const (
	exitOK      = 0
	exitFailed  = 1
	exitUsage   = 2
	exitPartial = 3
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(exitUsage)
	}
	switch os.Args[1] {
	case "run":
		os.Exit(runOnce(os.Args[2:]))
	case "serve":
		serve()
	default:
		usage()
		os.Exit(exitUsage)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: studiosync run [-progress] [-timeout 30m] [-lock-ttl 2h] | studiosync serve")
}

func coreModules() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,

		csvsource.Module,
		reporting.Module,
		watermark.Module,
		pipeline.Module,
		metricspush.Module,
		runlock.Module,
	)
}

// serve runs the scheduler loop and the status server until a signal.
func serve() {
	app := fx.New(
		coreModules(),
		scheduler.Module,
		server.Module,
		fx.Invoke(scheduler.Start),
	)
	app.Run()
}

// runOnce imports a single window and prints the run summary as JSON.
func runOnce(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	showProgress := fs.Bool("progress", false, "show row progress on stderr")
	timeout := fs.Duration("timeout", 0, "abort the run after this long (0 means no limit)")
	lockTTL := fs.Duration("lock-ttl", 2*time.Hour, "lease held on the run lock")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	var (
		svc      pipelinedomain.Service
		registry *prometheus.Registry
		pusher   metricspush.Pusher
		locker   runlock.Locker
	)
	app := fx.New(
		coreModules(),
		fx.Populate(&svc, &registry, &pusher, &locker),
	)

	startCtx, cancelStart := context.WithTimeout(context.Background(), fx.DefaultTimeout)
	defer cancelStart()
	if err := app.Start(startCtx); err != nil {
		fmt.Fprintf(os.Stderr, "studiosync: start: %v\n", err)
		return exitFailed
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), fx.DefaultTimeout)
		defer cancel()
		_ = app.Stop(stopCtx)
	}()

	// A manual run must not overlap a scheduled one on another replica.
	token, acquired, err := locker.TryLock(context.Background(), runlock.KeyImportRun, *lockTTL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "studiosync: acquire run lock: %v\n", err)
		return exitFailed
	}
	if !acquired {
		fmt.Fprintln(os.Stderr, "studiosync: another import is running")
		return exitFailed
	}
	defer func() {
		_ = locker.Release(context.Background(), runlock.KeyImportRun, token)
	}()

	ctx := context.Background()
	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}
	if *showProgress {
		bar := progressbar.NewOptions(-1,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("importing"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetItsString("rows"),
			progressbar.OptionShowIts(),
			progressbar.OptionThrottle(100*time.Millisecond),
		)
		defer func() {
			_ = bar.Finish()
			fmt.Fprintln(os.Stderr)
		}()
		ctx = pipelinedomain.WithProgress(ctx, func(entity string, rows int) {
			bar.Describe(entity)
			_ = bar.Add(rows)
		})
	}

	summary, runErr := svc.Run(ctx, pipelinedomain.TriggerManual)

	if pusher != nil {
		pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := pusher.Push(pushCtx, registry); err != nil {
			fmt.Fprintf(os.Stderr, "studiosync: push metrics: %v\n", err)
		}
		cancel()
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		fmt.Fprintf(os.Stderr, "studiosync: encode summary: %v\n", err)
	}

	switch {
	case runErr == nil:
		return exitOK
	case errors.Is(runErr, pipelinedomain.ErrRunPartial):
		fmt.Fprintf(os.Stderr, "studiosync: %v\n", runErr)
		return exitPartial
	default:
		fmt.Fprintf(os.Stderr, "studiosync: %v\n", runErr)
		return exitFailed
	}
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
