// Command datastack is an operator CLI for Athena query lifecycles.
//
// Usage:
//
//	datastack submit   --query "SELECT ..." [--database D] [--workgroup W]
//	datastack status   --execution-id ID
//	datastack results  --execution-id ID [--page-size N] [--page-token T] [--all]
//	datastack wait     --execution-id ID [--timeout 5m] [--interval 2s] [--cancel-on-timeout]
//	datastack cancel   --execution-id ID
//	datastack estimate --query "SELECT ..."
//
// The server side never polls; wait runs the caller-side poll loop with an
// explicit deadline, which is the intended way to block on completion.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/datastack-mcp/datastack-go/internal/athena"
	"github.com/datastack-mcp/datastack-go/internal/awsauth"
	"github.com/datastack-mcp/datastack-go/internal/config"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	switch os.Args[1] {
	case "submit":
		cmdSubmit(os.Args[2:])
	case "status":
		cmdStatus(os.Args[2:])
	case "results":
		cmdResults(os.Args[2:])
	case "wait":
		cmdWait(os.Args[2:])
	case "cancel":
		cmdCancel(os.Args[2:])
	case "estimate":
		cmdEstimate(os.Args[2:])
	default:
		usage()
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: datastack <submit|status|results|wait|cancel|estimate> [flags]")
	os.Exit(1)
}

func newManager(ctx context.Context) *athena.Manager {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	awsCfg, err := awsauth.NewConfig(ctx, cfg.AWSRegion, cfg.AWSProfile, cfg.CrossAccountRole)
	if err != nil {
		log.Fatalf("aws config: %v", err)
	}
	return athena.New(awsCfg, athena.NewExecStore(), cfg.AthenaDatabase, cfg.AthenaWorkgroup, cfg.AthenaOutputLocation)
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("failed to marshal output: %v", err)
	}
	fmt.Println(string(data))
}

func cmdSubmit(args []string) {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	query := fs.String("query", "", "SQL text to execute (required)")
	database := fs.String("database", "", "database override")
	workgroup := fs.String("workgroup", "", "workgroup override")
	_ = fs.Parse(args)

	if *query == "" {
		fs.Usage()
		os.Exit(1)
	}

	ctx := context.Background()
	mgr := newManager(ctx)
	id, err := mgr.Submit(ctx, *query, athena.SubmitOptions{Database: *database, Workgroup: *workgroup})
	if err != nil {
		log.Fatalf("submit failed: %v", err)
	}
	printJSON(map[string]string{"execution_id": id})
}

func cmdStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	id := fs.String("execution-id", "", "execution ID (required)")
	_ = fs.Parse(args)

	if *id == "" {
		fs.Usage()
		os.Exit(1)
	}

	ctx := context.Background()
	exec, err := newManager(ctx).GetStatus(ctx, *id)
	if err != nil {
		log.Fatalf("status failed: %v", err)
	}
	printJSON(exec)
}

func cmdResults(args []string) {
	fs := flag.NewFlagSet("results", flag.ExitOnError)
	id := fs.String("execution-id", "", "execution ID (required)")
	pageSize := fs.Int("page-size", 100, "rows per page")
	pageToken := fs.String("page-token", "", "opaque token for a specific page")
	all := fs.Bool("all", false, "follow page tokens until the result set is drained")
	_ = fs.Parse(args)

	if *id == "" {
		fs.Usage()
		os.Exit(1)
	}

	ctx := context.Background()
	mgr := newManager(ctx)

	page, err := mgr.GetResults(ctx, *id, int32(*pageSize), *pageToken)
	if err != nil {
		log.Fatalf("results failed: %v", err)
	}
	if !*all {
		printJSON(page)
		return
	}

	rows := page.Rows
	for page.NextPageToken != "" {
		page, err = mgr.GetResults(ctx, *id, int32(*pageSize), page.NextPageToken)
		if err != nil {
			log.Fatalf("results failed: %v", err)
		}
		rows = append(rows, page.Rows...)
	}
	printJSON(athena.ResultPage{Columns: page.Columns, Rows: rows})
}

func cmdWait(args []string) {
	fs := flag.NewFlagSet("wait", flag.ExitOnError)
	id := fs.String("execution-id", "", "execution ID (required)")
	timeout := fs.Duration("timeout", athena.DefaultWaitTimeout, "give up after this long")
	interval := fs.Duration("interval", athena.DefaultPollInterval, "poll interval")
	cancelOnTimeout := fs.Bool("cancel-on-timeout", false, "cancel the query if the deadline passes")
	_ = fs.Parse(args)

	if *id == "" {
		fs.Usage()
		os.Exit(1)
	}

	ctx := context.Background()
	w := &athena.Waiter{
		Poller:          newManager(ctx),
		Interval:        *interval,
		Timeout:         *timeout,
		CancelOnTimeout: *cancelOnTimeout,
	}
	exec, err := w.Wait(ctx, *id)
	if err != nil {
		log.Fatalf("wait failed: %v", err)
	}
	printJSON(exec)
}

func cmdCancel(args []string) {
	fs := flag.NewFlagSet("cancel", flag.ExitOnError)
	id := fs.String("execution-id", "", "execution ID (required)")
	_ = fs.Parse(args)

	if *id == "" {
		fs.Usage()
		os.Exit(1)
	}

	ctx := context.Background()
	if err := newManager(ctx).Cancel(ctx, *id); err != nil {
		log.Fatalf("cancel failed: %v", err)
	}
	fmt.Printf("cancelled %s\n", *id)
}

func cmdEstimate(args []string) {
	fs := flag.NewFlagSet("estimate", flag.ExitOnError)
	query := fs.String("query", "", "SQL text to score (required)")
	_ = fs.Parse(args)

	if *query == "" {
		fs.Usage()
		os.Exit(1)
	}

	printJSON(athena.EstimateCost(*query))
}
