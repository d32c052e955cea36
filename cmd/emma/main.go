package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"emma/internal/browser"
	"emma/internal/config"
	"emma/internal/detect"
	"emma/internal/engine"
	"emma/internal/media"
	"emma/internal/page"
	"emma/internal/queue"
	"emma/internal/vault"
)

var (
	// Global flags
	verbose    bool
	configPath string

	cfg    config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "emma",
	Short: "emma - content recognition and capture engine for web pages",
	Long: `emma analyzes web pages with a pluggable recognizer pipeline, extracts
conversations, code, documentation, articles, and research content, captures
page media through a multi-technique fallback cascade, and persists everything
to a local vault.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}

		zcfg := zap.NewProductionConfig()
		if level, lerr := zapcore.ParseLevel(cfg.Logging.Level); lerr == nil {
			zcfg.Level = zap.NewAtomicLevelAt(level)
		}
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [url-or-file...]",
	Short: "Classify pages without capturing anything",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAnalyze,
}

var (
	captureForce     bool
	captureSelection string
	captureWithMedia bool
)

var captureCmd = &cobra.Command{
	Use:   "capture [url-or-file]",
	Short: "Extract content from a page and store it in the vault",
	Args:  cobra.ExactArgs(1),
	RunE:  runCapture,
}

var imagesCmd = &cobra.Command{
	Use:   "images [url-or-file]",
	Short: "Rank capture-worthy images on a page",
	Args:  cobra.ExactArgs(1),
	RunE:  runImages,
}

var mediaOut string

var mediaCmd = &cobra.Command{
	Use:   "media [url]",
	Short: "Capture page media through the fallback cascade",
	Args:  cobra.ExactArgs(1),
	RunE:  runMedia,
}

var watchCmd = &cobra.Command{
	Use:   "watch [url-or-file]",
	Short: "Re-rank images whenever the page or file changes",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

var vaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Inspect the local memory vault",
}

var vaultStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize vault contents",
	RunE:  runVaultStats,
}

var vaultListLimit int

var vaultListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent memories",
	RunE:  runVaultList,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")

	captureCmd.Flags().BoolVar(&captureForce, "force", false, "capture even below the confidence gate")
	captureCmd.Flags().StringVar(&captureSelection, "selection", "", "capture this text instead of the full page")
	captureCmd.Flags().BoolVar(&captureWithMedia, "media", false, "also capture page media as attachments")

	mediaCmd.Flags().StringVarP(&mediaOut, "out", "o", ".", "directory to write captured media into")
	vaultListCmd.Flags().IntVarP(&vaultListLimit, "limit", "n", 20, "maximum memories to list")

	vaultCmd.AddCommand(vaultStatsCmd, vaultListCmd)
	rootCmd.AddCommand(analyzeCmd, captureCmd, imagesCmd, mediaCmd, watchCmd, vaultCmd)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func isURL(input string) bool {
	return strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://")
}

// loadSnapshot resolves an input to a page snapshot. URLs go through the
// browser; local files are parsed directly. The returned cleanup is non-nil
// when browser resources need closing.
func loadSnapshot(ctx context.Context, loader *browser.Loader, input string) (*page.Snapshot, *browser.Page, error) {
	if isURL(input) {
		p, err := loader.Open(ctx, input)
		if err != nil {
			return nil, nil, err
		}
		snap, err := p.Snapshot(ctx)
		if err != nil {
			_ = p.Close()
			return nil, nil, err
		}
		return snap, p, nil
	}

	data, err := os.ReadFile(input)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", input, err)
	}
	abs, err := filepath.Abs(input)
	if err != nil {
		abs = input
	}
	snap, err := page.Parse("file://"+abs, string(data))
	return snap, nil, err
}

func needsBrowser(inputs []string) bool {
	for _, in := range inputs {
		if isURL(in) {
			return true
		}
	}
	return false
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e := engine.NewWithDefaults(queue.New(discardStore{}, logger), logger)

	var loader *browser.Loader
	if needsBrowser(args) {
		loader = browser.NewLoader(cfg.Browser, logger)
		defer loader.Shutdown()
	}

	type result struct {
		input      string
		recognizer string
		confidence float64
	}
	results := make([]result, len(args))

	g, gctx := errgroup.WithContext(ctx)
	for i, input := range args {
		g.Go(func() error {
			snap, p, err := loadSnapshot(gctx, loader, input)
			if err != nil {
				return fmt.Errorf("%s: %w", input, err)
			}
			if p != nil {
				defer p.Close()
			}
			match := e.Analyze(snap)
			results[i] = result{input: input, recognizer: match.Name, confidence: match.Confidence}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, r := range results {
		fmt.Printf("%-50s %-15s %.2f\n", r.input, r.recognizer, r.confidence)
	}
	return nil
}

// discardStore backs analysis-only runs where nothing should persist.
type discardStore struct{}

func (discardStore) AddMemory(ctx context.Context, m queue.Memory) (string, error) {
	return m.ID, nil
}

func runCapture(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	input := args[0]

	v, err := vault.Open(cfg.Vault.Path, logger)
	if err != nil {
		return err
	}
	defer v.Close()

	e := engine.NewWithDefaults(queue.New(v, logger), logger)
	e.SetMinConfidence(cfg.Engine.MinConfidence)

	var loader *browser.Loader
	if isURL(input) {
		loader = browser.NewLoader(cfg.Browser, logger)
		defer loader.Shutdown()
	}
	snap, p, err := loadSnapshot(ctx, loader, input)
	if err != nil {
		return err
	}
	if p != nil {
		defer p.Close()
	}

	selection := captureSelection
	if selection == "" && p != nil {
		if sel, serr := p.Selection(ctx); serr == nil {
			selection = sel
		}
	}

	memories, err := e.Capture(ctx, snap, engine.CaptureOptions{
		Force:         captureForce,
		UserTriggered: true,
		Selection:     selection,
	})
	if err != nil {
		return err
	}
	if len(memories) == 0 {
		fmt.Println("Nothing captured.")
		return nil
	}

	if captureWithMedia && p != nil {
		results, merr := captureMedia(ctx, p)
		if merr != nil {
			logger.Warn("media capture failed", zap.Error(merr))
		}
		if len(results) > 0 {
			attachments := make([]queue.Attachment, 0, len(results))
			for _, r := range results {
				attachments = append(attachments, queue.Attachment{
					Technique: string(r.Technique),
					MIME:      r.Payload.MIME,
					Bytes:     r.Payload.Bytes,
				})
			}
			anchor := memories[0]
			anchor.Attachments = attachments
			if _, aerr := v.AddMemory(ctx, anchor); aerr != nil {
				logger.Warn("storing media attachments failed", zap.Error(aerr))
			}
		}
	}

	fmt.Printf("Captured %d memories from %s:\n", len(memories), input)
	for _, m := range memories {
		fmt.Printf("  [%s] %s: %s\n", m.Type, m.Role, truncateLine(m.Content, 80))
	}
	return nil
}

func captureMedia(ctx context.Context, p *browser.Page) ([]*media.Result, error) {
	elements, err := p.CollectElements(ctx)
	if err != nil {
		return nil, err
	}

	var clone media.DOMRasterizer
	if cfg.Media.EnableDOMClone {
		clone = p
	}
	cascade := media.NewCascade(logger, cfg.Media.Delay(),
		media.DefaultCascadeTechniques(p, p, p, clone, cfg.Media.JPEGQuality)...)

	return cascade.CaptureBatch(ctx, elements, func(done, total int, result *media.Result, err error) {
		if err != nil {
			logger.Debug("element capture exhausted", zap.Int("done", done), zap.Int("total", total), zap.Error(err))
			return
		}
		logger.Debug("element captured",
			zap.Int("done", done),
			zap.Int("total", total),
			zap.String("technique", string(result.Technique)))
	})
}

func runImages(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	input := args[0]

	var loader *browser.Loader
	if isURL(input) {
		loader = browser.NewLoader(cfg.Browser, logger)
		defer loader.Shutdown()
	}
	snap, p, err := loadSnapshot(ctx, loader, input)
	if err != nil {
		return err
	}
	if p != nil {
		defer p.Close()
	}

	printImages(detect.New(cfg.Detect, logger).Scan(snap))
	return nil
}

func printImages(images []detect.DetectedImage) {
	if len(images) == 0 {
		fmt.Println("No qualifying images found.")
		return
	}
	fmt.Printf("%-14s %-15s %8s  %s\n", "ID", "SOURCE", "SCORE", "URL")
	for _, img := range images {
		fmt.Printf("%-14s %-15s %8.1f  %s\n", img.ID, img.Source, img.Relevance, truncateLine(img.URL, 90))
	}
}

func runMedia(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	url := args[0]
	if !isURL(url) {
		return fmt.Errorf("media capture needs a live page, got %q", url)
	}

	loader := browser.NewLoader(cfg.Browser, logger)
	defer loader.Shutdown()

	p, err := loader.Open(ctx, url)
	if err != nil {
		return err
	}
	defer p.Close()

	results, err := captureMedia(ctx, p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(mediaOut, 0o755); err != nil {
		return err
	}

	for i, r := range results {
		name := fmt.Sprintf("capture-%03d-%s%s", i+1, r.Technique, extensionFor(r.Payload.MIME))
		path := filepath.Join(mediaOut, name)
		if werr := os.WriteFile(path, r.Payload.Bytes, 0o644); werr != nil {
			return fmt.Errorf("write %s: %w", path, werr)
		}
		fmt.Printf("%-12s %8d bytes  %s\n", r.Technique, len(r.Payload.Bytes), path)
	}
	fmt.Printf("Captured %d elements to %s\n", len(results), mediaOut)
	return nil
}

func extensionFor(mime string) string {
	switch mime {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/svg+xml":
		return ".svg"
	case "image/webp":
		return ".webp"
	default:
		return ".bin"
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	input := args[0]
	detector := detect.New(cfg.Detect, logger)

	if isURL(input) {
		return watchURL(ctx, detector, input)
	}
	return watchFile(ctx, detector, input)
}

// watchURL re-scans a live page on image mutations, debounced.
func watchURL(ctx context.Context, detector *detect.Detector, url string) error {
	loader := browser.NewLoader(cfg.Browser, logger)
	defer loader.Shutdown()

	p, err := loader.Open(ctx, url)
	if err != nil {
		return err
	}
	defer p.Close()

	rescan := func() {
		snap, serr := p.Snapshot(ctx)
		if serr != nil {
			logger.Warn("rescan snapshot failed", zap.Error(serr))
			return
		}
		fmt.Printf("--- rescan at %s ---\n", time.Now().Format(time.TimeOnly))
		printImages(detector.Scan(snap))
	}
	rescan()

	watcher := detect.NewWatcher(detect.DefaultRescanDelay, rescan)
	defer watcher.Stop()

	return p.WatchImages(ctx, 250*time.Millisecond, watcher.Trigger)
}

// watchFile re-scans a local HTML file whenever it is written, debounced.
func watchFile(ctx context.Context, detector *detect.Detector, path string) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	target, err := filepath.Abs(path)
	if err != nil {
		target = path
	}

	rescan := func() {
		data, rerr := os.ReadFile(path)
		if rerr != nil {
			logger.Warn("rescan read failed", zap.Error(rerr))
			return
		}
		snap, perr := page.Parse("file://"+target, string(data))
		if perr != nil {
			logger.Warn("rescan parse failed", zap.Error(perr))
			return
		}
		fmt.Printf("--- rescan at %s ---\n", time.Now().Format(time.TimeOnly))
		printImages(detector.Scan(snap))
	}
	rescan()

	watcher := detect.NewWatcher(detect.DefaultRescanDelay, rescan)
	defer watcher.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			abs, aerr := filepath.Abs(ev.Name)
			if aerr != nil || abs != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				watcher.Trigger()
			}
		case werr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("file watcher error", zap.Error(werr))
		}
	}
}

func runVaultStats(cmd *cobra.Command, args []string) error {
	v, err := vault.Open(cfg.Vault.Path, logger)
	if err != nil {
		return err
	}
	defer v.Close()

	stats, err := v.Stats(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("Vault: %s\n", v.Path())
	fmt.Printf("Memories:    %d\n", stats.Memories)
	fmt.Printf("Attachments: %d\n", stats.Attachments)
	if len(stats.ByType) > 0 {
		fmt.Println("By type:")
		for typ, n := range stats.ByType {
			fmt.Printf("  %-15s %d\n", typ, n)
		}
	}
	if len(stats.ByDomain) > 0 {
		fmt.Println("By domain:")
		for domain, n := range stats.ByDomain {
			fmt.Printf("  %-30s %d\n", domain, n)
		}
	}
	return nil
}

func runVaultList(cmd *cobra.Command, args []string) error {
	v, err := vault.Open(cfg.Vault.Path, logger)
	if err != nil {
		return err
	}
	defer v.Close()

	memories, err := v.List(cmd.Context(), vaultListLimit)
	if err != nil {
		return err
	}
	if len(memories) == 0 {
		fmt.Println("Vault is empty.")
		return nil
	}

	for _, m := range memories {
		fmt.Printf("%s  %-13s %-25s %s\n",
			m.CapturedAt.Local().Format("2006-01-02 15:04"),
			m.Type, m.Domain, truncateLine(m.Content, 70))
	}
	return nil
}

func truncateLine(s string, limit int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
