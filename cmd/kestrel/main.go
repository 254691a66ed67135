// Kestrel CLI - compiles and runs kestrel programs
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"golang.org/x/sync/errgroup"

	"github.com/kestreljs/kestrel/codecache"
	"github.com/kestreljs/kestrel/config"
	"github.com/kestreljs/kestrel/vm"
)

func main() {
	verbose := flag.Bool("v", false, "Verbose output")
	interactive := flag.Bool("i", false, "Start interactive REPL")
	expr := flag.String("e", "", "Evaluate expression and print its value")
	checkOnly := flag.Bool("check", false, "Parse sources without running them")
	optimistic := flag.Bool("optimistic", false, "Enable optimistic type layouts")
	noPersist := flag.Bool("no-persist", false, "Disable the compiled-unit store")
	timings := flag.Bool("timings", false, "Print phase timings on exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: kestrel [options] [files...]\n\n")
		fmt.Fprintf(os.Stderr, "Compiles and runs the given .kes files in order.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  kestrel -i                # Start REPL\n")
		fmt.Fprintf(os.Stderr, "  kestrel -e '1 + 2 * 3'    # Evaluate an expression\n")
		fmt.Fprintf(os.Stderr, "  kestrel -check lib.kes    # Syntax-check without running\n")
		fmt.Fprintf(os.Stderr, "  kestrel -timings app.kes  # Run and report phase timings\n")
	}
	flag.Parse()

	if *verbose {
		commonlog.Configure(1, nil)
	} else {
		commonlog.Configure(0, nil)
	}

	cfg, err := config.FindAndLoad(".")
	if err != nil {
		fail("%v", err)
	}
	if *optimistic {
		cfg.Engine.OptimisticTypes = true
	}
	if *noPersist {
		cfg.Persistence.Enabled = false
	}

	ctx := vm.NewContext()
	ctx.OptimisticTypes = cfg.Engine.OptimisticTypes

	var store codecache.Store
	if cfg.Persistence.Enabled {
		path := cfg.StorePath()
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			fail("creating cache directory: %v", err)
		}
		store, err = codecache.OpenSQLStore(path)
		if err != nil {
			fail("%v", err)
		}
		defer store.Close()
		if *verbose {
			fmt.Printf("Using compiled-unit store %s\n", path)
		}
	}

	pipeline := codecache.NewPipeline(ctx, pipelineParams(cfg), store)

	exitCode := 0
	switch {
	case *expr != "":
		if err := runSource(ctx, pipeline, codecache.NewSource("<eval>", *expr), *checkOnly); err != nil {
			printError(err)
			exitCode = 1
		}
	case len(flag.Args()) > 0:
		if err := runFiles(ctx, pipeline, flag.Args(), *checkOnly); err != nil {
			printError(err)
			exitCode = 1
		}
	case *interactive || isatty.IsTerminal(os.Stdin.Fd()):
		runREPL(ctx, pipeline)
	default:
		flag.Usage()
		exitCode = 2
	}

	if *timings {
		fmt.Fprint(os.Stderr, ctx.Timings.Report())
	}
	os.Exit(exitCode)
}

func pipelineParams(cfg *config.Config) codecache.Params {
	return codecache.Params{
		MaxInstalls:        cfg.Cache.MaxInstalls,
		MaxBytes:           cfg.Cache.MaxBytes,
		StrongRecency:      cfg.Cache.StrongRecency,
		AllowAnonymous:     cfg.Cache.AllowAnonymous,
		AnonymousMaxSource: cfg.Cache.AnonymousMaxSource,
		Lazy:               cfg.Engine.Lazy,
	}
}

// runFiles reads and syntax-checks all files concurrently, then runs
// them in argument order.
func runFiles(ctx *vm.Context, pipeline *codecache.Pipeline, paths []string, checkOnly bool) error {
	sources := make([]*codecache.Source, len(paths))

	var g errgroup.Group
	for i, path := range paths {
		g.Go(func() error {
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			src := codecache.NewSource(path, string(data))
			if err := pipeline.CheckSyntax(src); err != nil {
				return err
			}
			sources[i] = src
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, src := range sources {
		if err := runSource(ctx, pipeline, src, checkOnly); err != nil {
			return err
		}
	}
	return nil
}

func runSource(ctx *vm.Context, pipeline *codecache.Pipeline, src *codecache.Source, checkOnly bool) error {
	if checkOnly {
		return pipeline.CheckSyntax(src)
	}
	prog, err := pipeline.Compile(src)
	if err != nil {
		return err
	}
	v, err := prog.Run(ctx)
	if err != nil {
		return err
	}
	printValue(v)
	return nil
}

// runREPL starts an interactive read-eval-print loop.
func runREPL(ctx *vm.Context, pipeline *codecache.Pipeline) {
	fmt.Println("Kestrel REPL (type 'exit' to quit)")

	scanner := bufio.NewScanner(os.Stdin)
	n := 0
	for {
		fmt.Print(">> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		n++
		src := codecache.NewSource(fmt.Sprintf("<repl:%d>", n), line)
		prog, err := pipeline.Compile(src)
		if err != nil {
			printError(err)
			continue
		}
		v, err := prog.Run(ctx)
		if err != nil {
			printError(err)
			continue
		}
		printValue(v)
	}
}

func printValue(v vm.Value) {
	if v.IsUndefined() {
		return
	}
	fmt.Println(v.String())
}

func printError(err error) {
	if isatty.IsTerminal(os.Stderr.Fd()) {
		fmt.Fprintf(os.Stderr, "\x1b[31mError:\x1b[0m %v\n", err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
