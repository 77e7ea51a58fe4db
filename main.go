package main

import (
	"TargetFetcher/internal/config"
	"TargetFetcher/internal/logging"
	"TargetFetcher/pkg/api"
	"TargetFetcher/pkg/dispatch"
	"TargetFetcher/pkg/manifest"
	"TargetFetcher/pkg/materializer"
	"TargetFetcher/pkg/target"
	"TargetFetcher/pkg/worker"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// Exit codes
const (
	ExitSuccess       = 0
	ExitGeneralError  = 1
	ExitInvalidArgs   = 2
	ExitTargetsFailed = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return ExitInvalidArgs
	}

	switch args[0] {
	case "serve":
		return runServe(args[1:])
	case "apply":
		return runApply(args[1:])
	case "pack":
		return runPack(args[1:])
	case "help", "-h", "--help":
		printUsage()
		return ExitSuccess
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
		printUsage()
		return ExitInvalidArgs
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: targetfetcher <command> [options]

Commands:
  serve   Run the worker pool behind the HTTP/WebSocket API
  apply   Materialize every target of a manifest and wait for the results
  pack    Write a manifest from directory and file arguments

Run 'targetfetcher <command> -h' for command-specific help.`)
}

func loadConfig(path string) (config.FetcherConfig, bool) {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return cfg, false
	}
	config.Config = cfg
	logging.GlobalLogger.SetLevel(cfg.LogLevel)
	return cfg, true
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "YAML configuration file")
	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}

	cfg, ok := loadConfig(*configPath)
	if !ok {
		return ExitInvalidArgs
	}

	queue := dispatch.NewQueue()
	pool := worker.NewPool(cfg.ConcurrentWorkers, materializer.NewMaterializer(cfg), queue)
	server := api.NewServer(queue, pool, cfg.ReplyTimeout)
	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: server.Router()}

	errCh := make(chan error, 1)
	go func() {
		logging.GlobalLogger.Info("Server starting on " + cfg.ListenAddr)
		errCh <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	code := ExitSuccess
	select {
	case sig := <-sigCh:
		logging.GlobalLogger.Info("Received " + sig.String() + ", shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logging.GlobalLogger.Error("Server failed: " + err.Error())
			code = ExitGeneralError
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logging.GlobalLogger.Warn("HTTP shutdown: " + err.Error())
	}
	pool.Stop()
	return code
}

func runApply(args []string) int {
	fs := flag.NewFlagSet("apply", flag.ExitOnError)
	configPath := fs.String("config", "", "YAML configuration file")
	manifestPath := fs.String("manifest", "", "Manifest file (required)")
	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}
	if *manifestPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -manifest is required")
		fs.Usage()
		return ExitInvalidArgs
	}

	cfg, ok := loadConfig(*configPath)
	if !ok {
		return ExitInvalidArgs
	}

	targets, err := manifest.Load(*manifestPath)
	if err != nil {
		logging.GlobalLogger.Error(err.Error())
		return ExitGeneralError
	}

	queue := dispatch.NewQueue()
	pool := worker.NewPool(cfg.ConcurrentWorkers, materializer.NewMaterializer(cfg), queue)
	defer pool.Stop()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Directories are submitted in manifest order but workers may finish them
	// in any order, so a nested directory can race its parent. Each
	// directory level is therefore awaited before the next one is queued.
	failed := 0
	for _, batch := range batchByDepth(targets) {
		replies := make([]*dispatch.Reply, 0, len(batch))
		for _, t := range batch {
			reply, err := dispatch.Submit(queue, t)
			if err != nil {
				logging.GlobalLogger.Error(t.String() + ": " + err.Error())
				failed++
				continue
			}
			replies = append(replies, reply)
		}
		for _, reply := range replies {
			status, err := reply.Wait(ctx)
			if err != nil {
				logging.GlobalLogger.Error("Interrupted: " + err.Error())
				return ExitGeneralError
			}
			if status == dispatch.Failed {
				failed++
			}
		}
	}

	logging.GlobalLogger.Info(fmt.Sprintf("Applied %d targets, %d failed", len(targets), failed))
	if failed > 0 {
		return ExitTargetsFailed
	}
	return ExitSuccess
}

// batchByDepth groups directory targets by path depth, shallowest first,
// and puts every file target in a final batch. Files create their own
// parents.
func batchByDepth(targets []target.Target) [][]target.Target {
	byDepth := make(map[int][]target.Target)
	maxDepth := 0
	var files []target.Target
	for _, t := range targets {
		if t.Kind() != target.Directory {
			files = append(files, t)
			continue
		}
		d := pathDepth(t.Destination())
		byDepth[d] = append(byDepth[d], t)
		if d > maxDepth {
			maxDepth = d
		}
	}

	var batches [][]target.Target
	for d := 0; d <= maxDepth; d++ {
		if len(byDepth[d]) > 0 {
			batches = append(batches, byDepth[d])
		}
	}
	if len(files) > 0 {
		batches = append(batches, files)
	}
	return batches
}

// pathDepth counts the separators of the cleaned path, ignoring a leading
// or trailing one, so "a//b/", "./a/b" and "/a/b" are all depth 1.
func pathDepth(p string) int {
	sep := string(filepath.Separator)
	cleaned := strings.Trim(filepath.Clean(p), sep)
	if cleaned == "." || cleaned == "" {
		return 0
	}
	return strings.Count(cleaned, sep)
}

type targetList []target.Target

// dirFlag and fileFlag append to the same list so argument order is kept.
type dirFlag struct{ list *targetList }
type fileFlag struct{ list *targetList }

func (f dirFlag) String() string { return "" }
func (f dirFlag) Set(v string) error {
	*f.list = append(*f.list, target.NewDirectory(v))
	return nil
}

func (f fileFlag) String() string { return "" }
func (f fileFlag) Set(v string) error {
	dest, url, ok := strings.Cut(v, "=")
	if !ok || dest == "" || url == "" {
		return fmt.Errorf("expected dest=url, got %q", v)
	}
	*f.list = append(*f.list, target.NewFile(dest, url))
	return nil
}

func runPack(args []string) int {
	fs := flag.NewFlagSet("pack", flag.ExitOnError)
	var targets targetList
	out := fs.String("out", "", "Manifest file to write (required)")
	compress := fs.Bool("zstd", false, "Compress the manifest with zstd")
	fs.Var(dirFlag{&targets}, "dir", "Directory target (repeatable)")
	fs.Var(fileFlag{&targets}, "file", "File target as dest=url (repeatable)")
	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}
	if *out == "" || len(targets) == 0 {
		fmt.Fprintln(os.Stderr, "Error: -out and at least one -dir or -file are required")
		fs.Usage()
		return ExitInvalidArgs
	}

	if err := manifest.Save(*out, targets, *compress); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitGeneralError
	}
	fmt.Fprintf(os.Stderr, "Wrote %d targets to %s\n", len(targets), *out)
	return ExitSuccess
}
