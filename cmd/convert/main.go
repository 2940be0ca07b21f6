package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"

	"github.com/kirillkom/file-toolbox/internal/bootstrap"
	"github.com/kirillkom/file-toolbox/internal/catalog"
	"github.com/kirillkom/file-toolbox/internal/config"
	"github.com/kirillkom/file-toolbox/internal/core/domain"
	"github.com/kirillkom/file-toolbox/internal/infrastructure/download"
	"github.com/kirillkom/file-toolbox/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/file-toolbox/internal/observability/logging"
)

func main() {
	_ = godotenv.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, config.Load(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, cfg config.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("convert", flag.ContinueOnError)
	fs.SetOutput(stderr)
	toolID := fs.String("tool", "mp3-to-wav", "Tool id from the catalog")
	outDir := fs.String("out", cfg.DownloadDir, "Directory converted files are saved to")
	list := fs.Bool("list", false, "List catalog categories and tools, then exit")
	category := fs.String("category", catalog.DefaultCategoryID, "Category highlighted by -list")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: convert [-tool ID] [-out DIR] FILE...")
		fmt.Fprintln(stderr, "       convert -list [-category ID]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}

	logger := logging.NewTextLogger(stderr, cfg.LogLevel)

	registry, err := catalog.Load()
	if err != nil {
		fmt.Fprintf(stderr, "load catalog: %v\n", err)
		return 1
	}
	if *list {
		if _, ok := registry.CategoryByID(*category); !ok {
			fmt.Fprintf(stderr, "unknown category %q\n", *category)
			return 2
		}
		selection := catalog.NewSelectionStore()
		selection.SetSelectedCategoryID(*category)
		printCatalog(stdout, registry, selection)
		return 0
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	files := make([]domain.FileDescriptor, 0, fs.NArg())
	for _, path := range fs.Args() {
		file, err := localfs.Describe(path)
		if err != nil {
			fmt.Fprintf(stderr, "%v\n", err)
			return 1
		}
		files = append(files, file)
	}

	saver, err := download.NewSaver(*outDir, download.Options{Logger: logger})
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	orchestrator, err := bootstrap.NewOrchestrator(cfg, registry, *toolID, saver, logger)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}

	report, err := orchestrator.Select(files)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	if report.Rejected() > 0 {
		fmt.Fprintln(stderr, orchestrator.Snapshot().Advisory)
	}
	if len(report.Accepted) == 0 {
		return 1
	}

	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWriter(stderr),
		progressbar.OptionSetDescription("uploading"),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(50*time.Millisecond),
	)
	unsubscribe := orchestrator.Subscribe(func(snap domain.RunSnapshot) {
		bar.Describe(string(snap.Status))
		_ = bar.Set(snap.Progress)
	})
	defer unsubscribe()

	if err := orchestrator.Convert(ctx); err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	final, err := orchestrator.Wait(ctx)
	_ = bar.Finish()
	fmt.Fprintln(stderr)
	if err != nil {
		orchestrator.Reset()
		fmt.Fprintf(stderr, "interrupted: %v\n", err)
		return 130
	}

	if final.Status == domain.RunFailed {
		fmt.Fprintln(stderr, final.Message)
		return 1
	}
	if err := saver.Wait(); err != nil {
		fmt.Fprintf(stderr, "download failed: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, final.Message)
	for _, path := range saver.Saved() {
		fmt.Fprintln(stdout, path)
	}
	return 0
}

func printCatalog(w io.Writer, registry *catalog.Registry, selection *catalog.SelectionStore) {
	for _, category := range registry.Categories() {
		marker := " "
		if category.ID == selection.SelectedCategoryID() {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %s  %s\n", marker, category.ID, category.Name)
		for _, tool := range category.Tools {
			status := "coming soon"
			if tool.Implemented() {
				exts := strings.Join(tool.Policy.Validation.AcceptedExtensions, ",")
				status = fmt.Sprintf("accepts %s up to %dMB", exts, tool.Policy.Validation.MaxSizeMB)
			}
			fmt.Fprintf(w, "    %-16s %s (%s)\n", tool.ID, tool.Name, status)
		}
	}
}
