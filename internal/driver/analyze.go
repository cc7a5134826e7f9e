package driver

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"golang.org/x/sync/errgroup"

	"typelift/internal/infer"
	"typelift/internal/ir/parse"
	"typelift/internal/observ"
	"typelift/internal/trace"
	"typelift/internal/typegraph"
)

// Request describes one analysis invocation over one or more module
// files.
type Request struct {
	Files  []string
	Source infer.Source
	Solver infer.SolverKind
	Cfg    infer.Config
	Jobs   int
	Cache  *DiskCache

	Progress Sink
}

// FileResult is the outcome for one module file. Err is set when the
// file failed; the remaining files of the request still run.
type FileResult struct {
	Path      string
	Entries   []typegraph.Entry
	Coverage  typegraph.Coverage
	Total     int
	Opaque    int
	Misses    []typegraph.Entry
	Timing    *observ.Timer
	FromCache bool
	Err       error
}

// Analyze runs the pipeline for every requested file. Files fan out
// across workers; each module gets its own engine and graph, so the
// single-threaded engine contract holds per run.
func Analyze(ctx context.Context, req *Request) ([]FileResult, error) {
	if req == nil || len(req.Files) == 0 {
		return nil, fmt.Errorf("no input files")
	}
	sink := req.Progress
	if sink == nil {
		sink = nopSink{}
	}
	jobs := req.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}

	results := make([]FileResult, len(req.Files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)

	for i, path := range req.Files {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = analyzeFile(ctx, req, sink, path)
			if results[i].Err != nil {
				sink.OnEvent(Event{File: path, Status: StatusError})
			} else {
				sink.OnEvent(Event{
					File:    path,
					Status:  StatusDone,
					Percent: results[i].Coverage.Percent(),
				})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// analyzeFile runs parse → seed → solve → report for one file.
func analyzeFile(ctx context.Context, req *Request, sink Sink, path string) FileResult {
	tracer := trace.FromContext(ctx)
	timer := observ.NewTimer()
	res := FileResult{Path: path, Timing: timer}

	fail := func(err error) FileResult {
		res.Err = err
		return res
	}

	sink.OnEvent(Event{File: path, Stage: StageParse, Status: StatusWorking})
	src, err := os.ReadFile(path)
	if err != nil {
		return fail(err)
	}

	digest := ResultDigest(src, req.Source.String(), solverName(req.Solver))
	if req.Cache != nil {
		var payload DiskPayload
		if ok, err := req.Cache.Get(digest, &payload); err == nil && ok {
			trace.Eventf(tracer, trace.LevelInfo, "cache hit for %s", path)
			res.Entries = entriesFromPayload(payload.Entries)
			res.Coverage = typegraph.Coverage{Total: payload.Total, Covered: payload.Covered}
			res.Total = payload.StatAll
			res.Opaque = payload.StatOpaq
			res.FromCache = true
			return res
		}
	}

	stop := timer.Phase(string(StageParse))
	m, err := parse.Module(path, string(src))
	stop()
	if err != nil {
		return fail(err)
	}

	sink.OnEvent(Event{File: path, Stage: StageSeed, Status: StatusWorking})
	stop = timer.Phase(string(StageSeed))
	analyzer := infer.NewAnalyzer(m, req.Source, req.Cfg, tracer)
	tg, err := analyzer.Init()
	stop()
	if err != nil {
		return fail(fmt.Errorf("%s: %w", path, err))
	}

	sink.OnEvent(Event{File: path, Stage: StageSolve, Status: StatusWorking})
	stop = timer.Phase(string(StageSolve))
	if req.Solver == infer.SolverBounded {
		err = analyzer.SolveBounded()
	} else {
		err = analyzer.Solve()
	}
	stop()
	if err != nil {
		return fail(fmt.Errorf("%s: %w", path, err))
	}

	sink.OnEvent(Event{File: path, Stage: StageReport, Status: StatusWorking})
	stop = timer.Phase(string(StageReport))
	res.Entries = tg.Entries(m)
	res.Coverage = tg.Coverage(m)
	res.Total, res.Opaque = tg.Stats(m)
	res.Misses = tg.Misses(m)
	stop()

	if req.Cache != nil {
		payload := &DiskPayload{
			Schema:   diskCacheSchemaVersion,
			Source:   req.Source.String(),
			Path:     path,
			Entries:  payloadEntries(res.Entries),
			Total:    res.Coverage.Total,
			Covered:  res.Coverage.Covered,
			StatAll:  res.Total,
			StatOpaq: res.Opaque,
		}
		if err := req.Cache.Put(digest, payload); err != nil {
			trace.Eventf(tracer, trace.LevelWarn, "cache write failed for %s: %v", path, err)
		}
	}
	return res
}

func solverName(k infer.SolverKind) string {
	if k == infer.SolverBounded {
		return "bounded"
	}
	return "worklist"
}
