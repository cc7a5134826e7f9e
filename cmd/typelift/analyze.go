package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"typelift/internal/driver"
	"typelift/internal/infer"
	"typelift/internal/report"
	"typelift/internal/trace"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [flags] <module.ll ...>",
	Short: "Recover types for one or more IR modules",
	Long:  "Analyze IR modules: seed a type graph from the selected evidence source, solve to a fixed point and report the recovered types.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  analyzeExecution,
}

func init() {
	analyzeCmd.Flags().String("source", "comb", "type evidence source (mig|di|tbaa|comb)")
	analyzeCmd.Flags().String("solver", "worklist", "fixed-point driver (worklist|bounded)")
	analyzeCmd.Flags().Int("iters", 0, "iteration cap for the bounded solver (0 = config default)")
	analyzeCmd.Flags().Bool("dump", false, "dump every recovered value")
	analyzeCmd.Flags().Bool("coverage", true, "print the coverage summary")
	analyzeCmd.Flags().Bool("stats", false, "print opaque-value statistics")
	analyzeCmd.Flags().Bool("misses", false, "list values with no recovered type at all")
	analyzeCmd.Flags().Int("jobs", 0, "parallel file workers (0 = all cores)")
	analyzeCmd.Flags().String("ui", "auto", "progress rendering (auto|plain|tui)")
	analyzeCmd.Flags().Bool("no-cache", false, "disable the result cache")
}

func analyzeExecution(cmd *cobra.Command, args []string) error {
	sourceValue, err := cmd.Flags().GetString("source")
	if err != nil {
		return err
	}
	solverValue, err := cmd.Flags().GetString("solver")
	if err != nil {
		return err
	}
	iters, err := cmd.Flags().GetInt("iters")
	if err != nil {
		return err
	}
	dump, err := cmd.Flags().GetBool("dump")
	if err != nil {
		return err
	}
	coverage, err := cmd.Flags().GetBool("coverage")
	if err != nil {
		return err
	}
	stats, err := cmd.Flags().GetBool("stats")
	if err != nil {
		return err
	}
	misses, err := cmd.Flags().GetBool("misses")
	if err != nil {
		return err
	}
	jobs, err := cmd.Flags().GetInt("jobs")
	if err != nil {
		return err
	}
	uiValue, err := cmd.Flags().GetString("ui")
	if err != nil {
		return err
	}
	noCache, err := cmd.Flags().GetBool("no-cache")
	if err != nil {
		return err
	}

	colorValue, err := cmd.Root().PersistentFlags().GetString("color")
	if err != nil {
		return err
	}
	quiet, err := cmd.Root().PersistentFlags().GetBool("quiet")
	if err != nil {
		return err
	}
	timings, err := cmd.Root().PersistentFlags().GetBool("timings")
	if err != nil {
		return err
	}
	verbose, err := cmd.Root().PersistentFlags().GetBool("verbose")
	if err != nil {
		return err
	}

	source, err := infer.ParseSource(sourceValue)
	if err != nil {
		return err
	}
	solver, err := infer.ParseSolver(solverValue)
	if err != nil {
		return err
	}
	uiModeValue, err := readUIMode(uiValue)
	if err != nil {
		return err
	}
	colored := applyColorMode(colorValue)

	cfg, fileCfg, err := driver.LoadConfig(filepath.Dir(args[0]))
	if err != nil {
		return err
	}
	if iters > 0 {
		cfg.MaxIters = iters
	}
	if !cmd.Flags().Changed("solver") && fileCfg.Solver.Kind != "" {
		if solver, err = infer.ParseSolver(fileCfg.Solver.Kind); err != nil {
			return err
		}
	}

	var cache *driver.DiskCache
	cacheEnabled := !noCache
	if fileCfg.Cache.Enabled != nil {
		cacheEnabled = cacheEnabled && *fileCfg.Cache.Enabled
	}
	if cacheEnabled {
		if cache, err = driver.OpenDiskCache("typelift"); err != nil {
			// The cache is an accelerator, never a requirement.
			cache = nil
		}
	}

	req := &driver.Request{
		Files:  args,
		Source: source,
		Solver: solver,
		Cfg:    cfg,
		Jobs:   jobs,
		Cache:  cache,
	}

	ctx := context.Background()
	if verbose {
		ctx = trace.WithTracer(ctx, trace.NewWriter(os.Stderr, trace.LevelDebug))
	}

	var results []driver.FileResult
	if shouldUseTUI(uiModeValue, len(args)) {
		results, err = runAnalyzeWithUI(ctx, req)
	} else {
		results, err = driver.Analyze(ctx, req)
	}
	if err != nil {
		return err
	}

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "%s: %v\n", res.Path, res.Err)
			continue
		}
		if len(results) > 1 && !quiet {
			fmt.Printf("== %s\n", res.Path)
		}
		if dump {
			report.Dump(os.Stdout, res.Entries)
		}
		if coverage {
			report.Coverage(os.Stdout, res.Coverage, colored)
		}
		if stats {
			report.Stats(os.Stdout, res.Total, res.Opaque)
		}
		if misses {
			report.Misses(os.Stdout, res.Misses, colored)
		}
		if timings && res.Timing != nil && !res.FromCache {
			fmt.Print(res.Timing.Summary())
		}
	}

	if failed > 0 {
		return errors.New(failedMessage(failed, len(results)))
	}
	return nil
}

func failedMessage(failed, total int) string {
	return fmt.Sprintf("%d of %d modules failed", failed, total)
}
