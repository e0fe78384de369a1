package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/curatd/curatd/internal/adapter/postgres"
	"github.com/curatd/curatd/internal/config"
)

// runAdmin dispatches admin subcommands (add-reviewer, remove-reviewer, list-pool).
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "add-reviewer":
		return runAdminAddReviewer(args[1:])
	case "remove-reviewer":
		return runAdminRemoveReviewer(args[1:])
	case "list-pool":
		return runAdminListPool(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: curatd admin <command> [options]

Commands:
  add-reviewer     Add a reviewer to a collection's pool
  remove-reviewer  Remove a reviewer from a collection's pool
  list-pool        List a collection's reviewer pool in rotation order
  help             Show this help message

Running servers pick pool changes up when their cache entry expires
(cache.pool_ttl, one minute by default).

Examples:
  curatd admin add-reviewer --collection essays --reviewer reviewer-ann
  curatd admin remove-reviewer --collection essays --reviewer reviewer-ann
  curatd admin list-pool --collection essays
`)
}

func loadAdminDeps() (*postgres.Directory, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}

	dir := postgres.NewDirectory(pool)
	cleanup := func() {
		pool.Close()
	}
	return dir, cleanup, nil
}

func runAdminAddReviewer(args []string) error {
	fs := flag.NewFlagSet("add-reviewer", flag.ContinueOnError)
	collection := fs.String("collection", "", "collection ID (required)")
	reviewer := fs.String("reviewer", "", "reviewer ID (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *collection == "" {
		return fmt.Errorf("--collection is required")
	}
	if *reviewer == "" {
		return fmt.Errorf("--reviewer is required")
	}

	dir, cleanup, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := context.Background()
	if err := dir.AddReviewer(ctx, *collection, *reviewer); err != nil {
		return fmt.Errorf("add reviewer: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Reviewer %s added to pool %s\n", *reviewer, *collection)
	return nil
}

func runAdminRemoveReviewer(args []string) error {
	fs := flag.NewFlagSet("remove-reviewer", flag.ContinueOnError)
	collection := fs.String("collection", "", "collection ID (required)")
	reviewer := fs.String("reviewer", "", "reviewer ID (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *collection == "" {
		return fmt.Errorf("--collection is required")
	}
	if *reviewer == "" {
		return fmt.Errorf("--reviewer is required")
	}

	dir, cleanup, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := context.Background()
	if err := dir.RemoveReviewer(ctx, *collection, *reviewer); err != nil {
		return fmt.Errorf("remove reviewer: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Reviewer %s removed from pool %s\n", *reviewer, *collection)
	return nil
}

func runAdminListPool(args []string) error {
	fs := flag.NewFlagSet("list-pool", flag.ContinueOnError)
	collection := fs.String("collection", "", "collection ID (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *collection == "" {
		return fmt.Errorf("--collection is required")
	}

	dir, cleanup, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := context.Background()
	reviewers, err := dir.PoolFor(ctx, *collection)
	if err != nil {
		return fmt.Errorf("list pool: %w", err)
	}

	if len(reviewers) == 0 {
		fmt.Printf("No reviewers in pool %s.\n", *collection)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "POSITION\tREVIEWER")
	for i, id := range reviewers {
		_, _ = fmt.Fprintf(w, "%d\t%s\n", i, id)
	}
	return w.Flush()
}
