package driver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"typelift/internal/infer"
)

const sampleModule = `
@g = global i32 0, align 4

define i32 @f(ptr %q) {
  %l = load i32, ptr %q, align 4
  ret i32 %l
}
`

func writeModule(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("write module: %v", err)
	}
	return path
}

func TestAnalyze_SingleFile(t *testing.T) {
	dir := t.TempDir()
	path := writeModule(t, dir, "mod.ll", sampleModule)

	results, err := Analyze(context.Background(), &Request{
		Files:  []string{path},
		Source: infer.SourceMig,
		Cfg:    infer.DefaultConfig(),
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	res := results[0]
	if res.Err != nil {
		t.Fatalf("file failed: %v", res.Err)
	}
	if res.Coverage.Total == 0 || res.Coverage.Covered == 0 {
		t.Fatalf("empty coverage: %+v", res.Coverage)
	}

	found := false
	for _, e := range res.Entries {
		if e.Scope == "f" && e.Name == "q" {
			found = true
			for _, ty := range e.Types {
				if ty == "i32*" {
					return
				}
			}
		}
	}
	if !found {
		t.Fatalf("no entry for %%q in dump: %+v", res.Entries)
	}
	t.Fatalf("pointer not refined in dump")
}

func TestAnalyze_FanOutAndFailureIsolation(t *testing.T) {
	dir := t.TempDir()
	good := writeModule(t, dir, "good.ll", sampleModule)
	bad := writeModule(t, dir, "bad.ll", "@g = global junk 0")

	results, err := Analyze(context.Background(), &Request{
		Files:  []string{good, bad},
		Source: infer.SourceMig,
		Cfg:    infer.DefaultConfig(),
		Jobs:   2,
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if results[0].Err != nil {
		t.Fatalf("good file failed: %v", results[0].Err)
	}
	if results[1].Err == nil {
		t.Fatalf("bad file must report its parse error")
	}
}

func TestAnalyze_CacheHit(t *testing.T) {
	dir := t.TempDir()
	path := writeModule(t, dir, "mod.ll", sampleModule)
	cache := testCache(t)

	req := &Request{
		Files:  []string{path},
		Source: infer.SourceMig,
		Cfg:    infer.DefaultConfig(),
		Cache:  cache,
	}
	first, err := Analyze(context.Background(), req)
	if err != nil || first[0].Err != nil {
		t.Fatalf("first run: %v / %v", err, first[0].Err)
	}
	if first[0].FromCache {
		t.Fatalf("first run cannot be a cache hit")
	}

	second, err := Analyze(context.Background(), req)
	if err != nil || second[0].Err != nil {
		t.Fatalf("second run: %v / %v", err, second[0].Err)
	}
	if !second[0].FromCache {
		t.Fatalf("second run should hit the cache")
	}
	if second[0].Coverage != first[0].Coverage {
		t.Fatalf("cached coverage differs: %+v vs %+v", second[0].Coverage, first[0].Coverage)
	}
}

func TestAnalyze_MissingDebugInfoFails(t *testing.T) {
	dir := t.TempDir()
	path := writeModule(t, dir, "mod.ll", sampleModule)

	results, err := Analyze(context.Background(), &Request{
		Files:  []string{path},
		Source: infer.SourceComb,
		Cfg:    infer.DefaultConfig(),
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if results[0].Err == nil {
		t.Fatalf("comb without debug info must fail the file")
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	cfgSrc := `
[solver]
kind = "bounded"
iters = 9

[types]
resolve_typedef = false

[types.translate]
size_t = "i64"

[cache]
enabled = false
`
	if err := os.WriteFile(filepath.Join(dir, configName), []byte(cfgSrc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, fc, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MaxIters != 9 {
		t.Errorf("MaxIters = %d, want 9", cfg.MaxIters)
	}
	if cfg.ResolveTypedef {
		t.Errorf("resolve_typedef not applied")
	}
	if cfg.Translate["size_t"] != "i64" {
		t.Errorf("translate table not merged: %v", cfg.Translate)
	}
	if cfg.Translate["int"] != "i32" {
		t.Errorf("defaults lost: %v", cfg.Translate)
	}
	if fc.Solver.Kind != "bounded" {
		t.Errorf("solver kind = %q", fc.Solver.Kind)
	}
	if fc.Cache.Enabled == nil || *fc.Cache.Enabled {
		t.Errorf("cache flag not read")
	}
}

func TestLoadConfig_Absent(t *testing.T) {
	cfg, _, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("absent config must not fail: %v", err)
	}
	if cfg.MaxIters != infer.DefaultConfig().MaxIters {
		t.Fatalf("defaults not returned")
	}
}
