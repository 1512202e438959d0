// Command repair runs one reconciliation pass over the follow graph and the
// like sets, then prints what it found. Interrupting it is safe: every write
// it makes is a full recompute of a single document.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/anonto42/nano-midea/socialgraph/internal/models"
	"github.com/anonto42/nano-midea/socialgraph/internal/repair"
	"github.com/anonto42/nano-midea/socialgraph/internal/repositories"
	"github.com/anonto42/nano-midea/socialgraph/pkg/config"
	"github.com/anonto42/nano-midea/socialgraph/pkg/logger"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "report drift without writing")
	concurrency := flag.Int("concurrency", 0, "parallel document writes (default REPAIR_CONCURRENCY)")
	history := flag.Int("history", 0, "print the last N recorded runs instead of running a pass")
	flag.Parse()

	code := run(*dryRun, *concurrency, *history)
	logger.Sync()
	os.Exit(code)
}

func run(dryRun bool, concurrency, history int) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if err := logger.Init(cfg.Env); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	log := logger.Get()
	if concurrency < 1 {
		concurrency = cfg.RepairConcurrency
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := config.InitDB(ctx, cfg)
	if err != nil {
		log.Error("database unavailable", zap.Error(err))
		return 1
	}
	defer db.CloseDB()

	var runs repositories.RepairRunRepository
	if db.Postgres != nil {
		if runs, err = repositories.NewGormRepairRunRepository(db.Postgres); err != nil {
			log.Error("repair audit table unavailable", zap.Error(err))
			return 1
		}
	}

	if history > 0 {
		if runs == nil {
			fmt.Fprintln(os.Stderr, "run history needs POSTGRES_URL")
			return 2
		}
		recent, err := runs.RecentRuns(ctx, history)
		if err != nil {
			log.Error("failed to load run history", zap.Error(err))
			return 1
		}
		printHistory(os.Stdout, recent)
		return 0
	}

	svc := repair.NewService(
		repositories.NewMongoUserRepository(db.Database),
		repositories.NewMongoPostRepository(db.Database),
		repositories.NewMongoCommentRepository(db.Database),
		runs,
		concurrency,
	)

	pass := svc.Run
	if dryRun {
		pass = svc.Check
	}
	summary, err := pass(ctx)
	printSummary(os.Stdout, summary)
	if err != nil {
		log.Error("repair failed", zap.Error(err))
		return 1
	}
	return 0
}

func printSummary(out io.Writer, s *repair.Summary) {
	if s == nil {
		return
	}
	mode := "repair"
	if s.DryRun {
		mode = "check (dry run)"
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(w, "mode\t%s\t\n", mode)
	fmt.Fprintf(w, "aborted\t%t\t\n", s.Aborted)
	fmt.Fprintf(w, "users scanned\t%d\t\n", s.UsersScanned)
	fmt.Fprintf(w, "users corrected\t%d\t\n", s.UsersCorrected)
	fmt.Fprintf(w, "items scanned\t%d\t\n", s.ItemsScanned)
	fmt.Fprintf(w, "items corrected\t%d\t\n", s.ItemsCorrected)
	fmt.Fprintf(w, "dangling refs removed\t%d\t\n", s.DanglingRefsRemoved)
	fmt.Fprintf(w, "counters corrected\t%d\t\n", s.CountersCorrected)
	fmt.Fprintf(w, "orphans deleted\t%d\t\n", s.OrphansDeleted)
	fmt.Fprintf(w, "took\t%s\t\n", s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
	w.Flush()
}

func printHistory(out io.Writer, runs []models.RepairRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tMODE\tUSERS FIXED\tITEMS FIXED\tDANGLING\tCOUNTERS\tORPHANS\tRESULT")
	for _, r := range runs {
		mode := "repair"
		if r.DryRun {
			mode = "check"
		}
		result := "ok"
		switch {
		case r.Error != "":
			result = r.Error
		case r.Aborted:
			result = "aborted"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			r.StartedAt.UTC().Format(time.RFC3339), mode,
			r.UsersCorrected, r.ItemsCorrected, r.DanglingRefsRemoved, r.CountersCorrected, r.OrphansDeleted, result)
	}
	w.Flush()
}
