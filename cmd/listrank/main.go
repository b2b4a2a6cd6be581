// Package main provides the command-line interface for listrank.
// It implements subcommands for ranking a list, resuming saved progress,
// exporting ratings, listing saved sessions and validating list files, with
// both an interactive TUI and a scriptable batch mode.
package main

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/pashagolub/listrank/pkg/data"
	"github.com/pashagolub/listrank/pkg/images"
	"github.com/pashagolub/listrank/pkg/journal"
	"github.com/pashagolub/listrank/pkg/ranking"
	"github.com/pashagolub/listrank/pkg/session"
	"github.com/pashagolub/listrank/pkg/tui"
)

// Version information - set by build process
var (
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// GlobalOptions defines global CLI flags
type GlobalOptions struct {
	Config  string `long:"config" short:"c" description:"Configuration file path" default:"listrank.yaml"`
	Verbose bool   `long:"verbose" short:"v" description:"Enable verbose logging"`
	Version bool   `long:"version" description:"Show version information"`
}

// RankOptions are shared by the commands that run a ranking session
type RankOptions struct {
	DisplayMode string `long:"display-mode" description:"Rating scale (zscore/distribution)"`
	NoImages    bool   `long:"no-images" description:"Do not look up cover art"`
	Batch       bool   `long:"batch" description:"Read choices from stdin (1, 2, s, u, r, q) instead of the TUI"`
	Output      string `long:"output" short:"o" description:"Export ratings here when the session ends"`
}

// RankCommand handles 'listrank rank' subcommand
type RankCommand struct {
	Input    string `long:"input" short:"i" description:"MyAnimeList XML export or CSV file" required:"true"`
	Key      string `long:"key" description:"Progress key, defaults to the file name"`
	Format   string `long:"format" description:"Input format (auto/mal/csv)"`
	NoPriors bool   `long:"no-priors" description:"Ignore existing scores"`
	Fresh    bool   `long:"fresh" description:"Discard saved progress for this list"`

	RankOptions
}

// ResumeCommand handles 'listrank resume' subcommand
type ResumeCommand struct {
	Key string `long:"key" description:"Progress key of the saved session" required:"true"`

	RankOptions
}

// ExportCommand handles 'listrank export' subcommand
type ExportCommand struct {
	Key          string `long:"key" description:"Progress key to export" required:"true"`
	Output       string `long:"output" short:"o" description:"Output file path"`
	Format       string `long:"format" description:"Export format (csv/json/text/mal-json/mal-xml)"`
	Template     string `long:"template" description:"YAML file with a custom export template"`
	IncludeStats bool   `long:"include-stats" description:"Include confidence and statistics"`
	IncludeAudit bool   `long:"include-audit" description:"Include the comparison journal"`
}

// ListCommand handles 'listrank list' subcommand
type ListCommand struct {
	Format string `long:"format" description:"Output format (table/json/csv)" default:"table"`
	All    bool   `long:"all" description:"Include expired progress"`
}

// ValidateCommand handles 'listrank validate' subcommand
type ValidateCommand struct {
	Input   string `long:"input" short:"i" description:"List file to validate" required:"true"`
	Format  string `long:"format" description:"Input format (auto/mal/csv)"`
	Preview int    `long:"preview" description:"Number of entries to preview" default:"5"`
}

// ErrorCode represents CLI exit codes
type ErrorCode int

const (
	ExitSuccess ErrorCode = iota
	ExitFileError
	ExitConfigError
	ExitSessionError
	ExitExportError
	ExitValidationError
)

// CLIError represents a CLI error with exit code
type CLIError struct {
	Code        ErrorCode
	Message     string
	Details     map[string]any
	Suggestions []string
}

func (e *CLIError) Error() string {
	return e.Message
}

// formatErrorJSON formats error as JSON for structured output
func formatErrorJSON(err *CLIError) string {
	body := map[string]any{
		"code":    err.Code,
		"message": err.Message,
	}
	if err.Details != nil {
		body["details"] = err.Details
	}
	if err.Suggestions != nil {
		body["suggestions"] = err.Suggestions
	}

	jsonBytes, _ := json.MarshalIndent(map[string]any{"error": body}, "", "  ")
	return string(jsonBytes)
}

var (
	globalOpts GlobalOptions
	logLevel   = new(slog.LevelVar)
	logger     = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	// stdin and stdout are swapped in tests
	stdin  io.Reader = os.Stdin
	stdout io.Writer = os.Stdout
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		var cliErr *CLIError
		if errors.As(err, &cliErr) {
			fmt.Fprintln(os.Stderr, formatErrorJSON(cliErr))
			os.Exit(int(cliErr.Code))
		}
		logger.Error("listrank failed", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	globalOpts = GlobalOptions{}
	parser := flags.NewParser(&globalOpts, flags.Default)
	parser.Usage = "[OPTIONS] COMMAND [COMMAND-OPTIONS]"
	parser.CommandHandler = func(command flags.Commander, args []string) error {
		configureLogging(globalOpts.Verbose)
		if globalOpts.Version {
			return showVersion()
		}
		if command == nil {
			return nil
		}
		return command.Execute(args)
	}

	commands := []struct {
		name, short string
		command     any
	}{
		{"rank", "Rank a list by pairwise comparisons", &RankCommand{}},
		{"resume", "Resume saved progress", &ResumeCommand{}},
		{"export", "Export ratings from saved progress", &ExportCommand{}},
		{"list", "List saved progress", &ListCommand{}},
		{"validate", "Validate a list file", &ValidateCommand{}},
	}
	for _, c := range commands {
		if _, err := parser.AddCommand(c.name, c.short, "", c.command); err != nil {
			return err
		}
	}

	_, err := parser.ParseArgs(args)
	if err == nil {
		return nil
	}

	var flagsErr *flags.Error
	if !errors.As(err, &flagsErr) {
		return err
	}
	switch flagsErr.Type {
	case flags.ErrHelp:
		return nil
	case flags.ErrCommandRequired:
		if globalOpts.Version {
			return showVersion()
		}
		return &CLIError{
			Code:    ExitConfigError,
			Message: "No command specified",
			Suggestions: []string{
				"Use 'listrank rank --input animelist.xml' to begin ranking",
				"Use 'listrank --help' to see all available commands",
			},
		}
	default:
		return &CLIError{
			Code:    ExitConfigError,
			Message: fmt.Sprintf("Invalid arguments: %v", err),
		}
	}
}

// Execute implements the Command interface for RankCommand
func (c *RankCommand) Execute(args []string) error {
	config, err := loadConfiguration(globalOpts.Config)
	if err != nil {
		return err
	}
	if c.Format != "" {
		config.Import.Format = c.Format
	}
	if c.NoPriors {
		config.Import.UseExistingRatings = false
	}
	if err := c.apply(config); err != nil {
		return err
	}

	list, err := data.LoadList(c.Input, config.Import)
	if err != nil {
		return &CLIError{
			Code:    ExitFileError,
			Message: fmt.Sprintf("Failed to load list: %v", err),
			Details: map[string]any{"file": c.Input},
			Suggestions: []string{
				"Validate the file with 'listrank validate --input " + c.Input + "'",
				"Use --format to force mal or csv",
			},
		}
	}

	key := c.Key
	if key == "" {
		key = data.KeyFromPath(c.Input)
	}
	if err := data.ValidateKey(key); err != nil {
		return &CLIError{Code: ExitConfigError, Message: err.Error()}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	storage, err := openStorage(ctx, config)
	if err != nil {
		return err
	}
	defer storage.Close()

	if c.Fresh {
		if err := storage.Delete(ctx, key); err != nil && !errors.Is(err, data.ErrProgressNotFound) {
			return &CLIError{Code: ExitSessionError, Message: fmt.Sprintf("Failed to discard progress: %v", err)}
		}
	}

	return runSession(ctx, config, storage, key, list, c.RankOptions)
}

// Execute implements the Command interface for ResumeCommand
func (c *ResumeCommand) Execute(args []string) error {
	config, err := loadConfiguration(globalOpts.Config)
	if err != nil {
		return err
	}
	if err := c.apply(config); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	storage, err := openStorage(ctx, config)
	if err != nil {
		return err
	}
	defer storage.Close()

	return runSession(ctx, config, storage, c.Key, nil, c.RankOptions)
}

// apply overrides configuration with rank flags
func (o *RankOptions) apply(config *data.Config) error {
	if o.DisplayMode != "" {
		config.Ranking.DisplayMode = o.DisplayMode
	}
	if o.NoImages {
		config.Images.Enabled = false
	}
	if err := config.Validate(); err != nil {
		return &CLIError{Code: ExitConfigError, Message: err.Error()}
	}
	return nil
}

// runSession prepares the engine and runs the interactive or batch loop
func runSession(ctx context.Context, config *data.Config, storage data.Storage, key string, list *data.List, opts RankOptions) error {
	if !opts.Batch {
		// the TUI owns the terminal
		restore, err := logToFile(filepath.Join(filepath.Dir(journalDir(config)), "listrank.log"))
		if err != nil {
			return &CLIError{Code: ExitFileError, Message: fmt.Sprintf("Failed to open log file: %v", err)}
		}
		defer restore()
	}

	engineConfig, err := config.Ranking.EngineConfig(logger)
	if err != nil {
		return &CLIError{Code: ExitConfigError, Message: err.Error()}
	}
	engine, err := ranking.NewEngine(engineConfig)
	if err != nil {
		return &CLIError{Code: ExitConfigError, Message: err.Error()}
	}

	mode, list, err := session.Prepare(ctx, engine, list, storage, key, config.Import.UseExistingRatings, logger)
	if err != nil {
		if errors.Is(err, data.ErrProgressNotFound) {
			return &CLIError{
				Code:    ExitSessionError,
				Message: fmt.Sprintf("No saved progress for '%s'", key),
				Details: map[string]any{"key": key},
				Suggestions: []string{
					"Use 'listrank list' to see saved progress",
					"Saved progress expires after " + config.Storage.MaxAge.String(),
				},
			}
		}
		return &CLIError{Code: ExitSessionError, Message: fmt.Sprintf("Failed to load progress: %v", err)}
	}

	trail, err := journal.NewAuditTrail(key, journalDir(config))
	if err != nil {
		return &CLIError{Code: ExitSessionError, Message: fmt.Sprintf("Failed to open journal: %v", err)}
	}

	var imageService *images.Service
	registry := prometheus.NewRegistry()
	if _, ok := images.MediaFor(list.Kind); ok && config.Images.Enabled && !opts.Batch {
		imageOptions := images.OptionsFromConfig(config.Images)
		imageOptions.Logger = logger
		imageOptions.Registerer = registry
		imageService = images.New(imageOptions)
	}

	sess, err := session.New(session.Options{
		Key:      key,
		Mode:     mode,
		List:     list,
		Engine:   engine,
		Storage:  storage,
		Journal:  trail,
		Images:   imageService,
		AutoSave: config.Storage.AutoSave,
		Prefetch: config.Images.Prefetch,
		Logger:   logger,
	})
	if err != nil {
		_ = trail.Close()
		return &CLIError{Code: ExitSessionError, Message: err.Error()}
	}
	defer sess.Close()

	if imageService != nil {
		imageCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go imageService.Run(imageCtx)
		sess.QueueImages()
	}

	state := engine.State()
	logger.Info("session ready",
		"key", key,
		"mode", mode,
		"items", len(engine.Items()),
		"done", state.ComparisonsDone,
		"total", state.TotalComparisons)

	if opts.Batch {
		err = runBatchMode(sess, stdin, stdout)
	} else {
		err = runInteractiveMode(sess, config, opts.Output)
	}
	if err != nil {
		return err
	}

	// the session must outlive a cancelled context
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := sess.Save(saveCtx); err != nil {
		return &CLIError{Code: ExitSessionError, Message: fmt.Sprintf("Failed to save progress: %v", err)}
	}
	logImageMetrics(registry)

	if opts.Output != "" {
		if err := exportSession(sess, opts.Output, exportOptions(config, "", false, false), ""); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Exported ratings to: %s\n", opts.Output)
	}

	fmt.Fprintf(stdout, "Progress saved as '%s'. Use 'listrank resume --key %s' to continue.\n", key, key)
	return nil
}

// runInteractiveMode runs the terminal interface
func runInteractiveMode(sess *session.Session, config *data.Config, exportPath string) error {
	app, err := tui.NewApp(tui.Options{
		Session:    sess,
		UI:         config.UI,
		Export:     config.Export,
		ExportPath: exportPath,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	if err := app.RegisterDefaultScreens(); err != nil {
		return err
	}
	return app.Run()
}

// runBatchMode drives the session from line commands:
// 1 or 2 pick a side, s skips, u undoes, r redoes, q quits
func runBatchMode(sess *session.Session, in io.Reader, out io.Writer) error {
	engine := sess.Engine()
	lines := newLineReader(in)

	for {
		pair, ok := engine.CurrentPair()
		if !ok {
			break
		}
		state := engine.State()
		fmt.Fprintf(out, "[%d/%d] 1) %s  vs  2) %s\n",
			state.ComparisonsDone+1, state.TotalComparisons, pair.Left.Title, pair.Right.Title)

		line, ok := lines.next()
		if !ok {
			return printRatings(sess, out)
		}

		var actionErr error
		switch line {
		case "1":
			actionErr = sess.ChooseSide(0)
		case "2":
			actionErr = sess.ChooseSide(1)
		case "s":
			actionErr = sess.Skip()
		case "u":
			actionErr = sess.Undo()
		case "r":
			actionErr = sess.Redo()
		case "q":
			return printRatings(sess, out)
		default:
			fmt.Fprintf(out, "unknown command %q, use 1, 2, s, u, r or q\n", line)
		}
		if actionErr != nil {
			return &CLIError{Code: ExitSessionError, Message: actionErr.Error()}
		}
	}

	fmt.Fprintf(out, "Ranking complete, accuracy %d%%\n", engine.Accuracy())
	if _, err := sess.Finalize(); err != nil {
		logger.Warn("failed to journal final ratings", "error", err)
	}
	return printRatings(sess, out)
}

// lineReader yields trimmed, lowercased, non-empty input lines
type lineReader struct {
	scanner *bufio.Scanner
}

func newLineReader(in io.Reader) *lineReader {
	return &lineReader{scanner: bufio.NewScanner(in)}
}

func (r *lineReader) next() (string, bool) {
	for r.scanner.Scan() {
		if line := strings.ToLower(strings.TrimSpace(r.scanner.Text())); line != "" {
			return line, true
		}
	}
	return "", false
}

// printRatings writes the current ratings, best first
func printRatings(sess *session.Session, out io.Writer) error {
	for i, item := range sess.Ratings() {
		if _, err := fmt.Fprintf(out, "%3d. %4.1f  %s\n", i+1, item.Rating, item.Title); err != nil {
			return err
		}
	}
	return nil
}

// Execute implements the Command interface for ExportCommand
func (c *ExportCommand) Execute(args []string) error {
	config, err := loadConfiguration(globalOpts.Config)
	if err != nil {
		return err
	}

	ctx := context.Background()
	storage, err := openStorage(ctx, config)
	if err != nil {
		return err
	}
	defer storage.Close()

	engineConfig, err := config.Ranking.EngineConfig(logger)
	if err != nil {
		return &CLIError{Code: ExitConfigError, Message: err.Error()}
	}
	engine, err := ranking.NewEngine(engineConfig)
	if err != nil {
		return &CLIError{Code: ExitConfigError, Message: err.Error()}
	}

	mode, list, err := session.Prepare(ctx, engine, nil, storage, c.Key, false, logger)
	if err != nil || mode != session.ResumeMode {
		return &CLIError{
			Code:    ExitSessionError,
			Message: fmt.Sprintf("No usable saved progress for '%s'", c.Key),
			Details: map[string]any{"key": c.Key},
			Suggestions: []string{
				"Use 'listrank list' to see saved progress",
			},
		}
	}

	var trail *journal.AuditTrail
	if c.IncludeAudit {
		if trail, err = journal.NewAuditTrail(c.Key, journalDir(config)); err != nil {
			return &CLIError{Code: ExitSessionError, Message: fmt.Sprintf("Failed to open journal: %v", err)}
		}
	}
	sess, err := session.New(session.Options{
		Key:     c.Key,
		Mode:    mode,
		List:    list,
		Engine:  engine,
		Journal: trail,
		Logger:  logger,
	})
	if err != nil {
		return &CLIError{Code: ExitSessionError, Message: err.Error()}
	}
	defer sess.Close()

	options := exportOptions(config, c.Format, c.IncludeStats, c.IncludeAudit)
	output := c.Output
	if output == "" {
		output = tui.DefaultExportPath(c.Key, string(options.Format))
	}

	if err := exportSession(sess, output, options, c.Template); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Exported ratings to: %s\n", output)
	if globalOpts.Verbose {
		fmt.Fprintf(stdout, "Format: %s\n", options.Format)
		fmt.Fprintf(stdout, "Entries: %d\n", len(engine.Items()))
	}
	return nil
}

// exportOptions merges export flags over the configuration
func exportOptions(config *data.Config, format string, stats, audit bool) journal.ExportOptions {
	if format == "" {
		format = config.Export.Format
	}
	return journal.ExportOptions{
		Format:        journal.ExportFormat(format),
		RoundDecimals: config.Export.RoundDecimals,
		IncludeStats:  stats,
		IncludeAudit:  audit,
	}
}

// exportSession writes ratings to output, through a template when one is given
func exportSession(sess *session.Session, output string, options journal.ExportOptions, templatePath string) error {
	exportErr := func(err error) error {
		return &CLIError{
			Code:    ExitExportError,
			Message: fmt.Sprintf("Export failed: %v", err),
			Details: map[string]any{
				"output_file": output,
				"format":      string(options.Format),
			},
			Suggestions: []string{
				"Check output directory permissions",
				"Try a different output format",
			},
		}
	}

	if templatePath == "" {
		if err := sess.ExportToFile(output, options); err != nil {
			return exportErr(err)
		}
		return nil
	}

	tmpl, err := loadTemplate(templatePath)
	if err != nil {
		return &CLIError{Code: ExitConfigError, Message: err.Error(), Details: map[string]any{"template": templatePath}}
	}
	file, err := os.Create(output)
	if err != nil {
		return exportErr(err)
	}
	if err := sess.ExportWithTemplate(file, tmpl, options); err != nil {
		_ = file.Close()
		return exportErr(err)
	}
	if err := file.Close(); err != nil {
		return exportErr(err)
	}
	return nil
}

// loadTemplate reads an export template from YAML
func loadTemplate(path string) (journal.ExportTemplate, error) {
	var tmpl journal.ExportTemplate
	content, err := os.ReadFile(path)
	if err != nil {
		return tmpl, fmt.Errorf("failed to read template: %w", err)
	}
	if err := yaml.Unmarshal(content, &tmpl); err != nil {
		return tmpl, fmt.Errorf("failed to parse template %s: %w", path, err)
	}
	if tmpl.RowFormat == "" {
		return tmpl, fmt.Errorf("template %s has no row format", path)
	}
	return tmpl, nil
}

// Execute implements the Command interface for ListCommand
func (c *ListCommand) Execute(args []string) error {
	config, err := loadConfiguration(globalOpts.Config)
	if err != nil {
		return err
	}

	ctx := context.Background()
	storage, err := openStorage(ctx, config)
	if err != nil {
		return err
	}
	defer storage.Close()

	infos, err := storage.List(ctx)
	if err != nil {
		return &CLIError{Code: ExitSessionError, Message: fmt.Sprintf("Failed to list progress: %v", err)}
	}
	if !c.All {
		kept := infos[:0]
		for _, info := range infos {
			if !info.Expired {
				kept = append(kept, info)
			}
		}
		infos = kept
	}

	switch c.Format {
	case "json":
		return outputProgressJSON(infos)
	case "csv":
		return outputProgressCSV(infos)
	case "table":
		return outputProgressTable(infos)
	default:
		return &CLIError{
			Code:    ExitConfigError,
			Message: fmt.Sprintf("Unknown list format: %s", c.Format),
			Suggestions: []string{
				"Use --format table, json or csv",
			},
		}
	}
}

// Execute implements the Command interface for ValidateCommand
func (c *ValidateCommand) Execute(args []string) error {
	config, err := loadConfiguration(globalOpts.Config)
	if err != nil {
		return err
	}
	if c.Format != "" {
		config.Import.Format = c.Format
	}

	list, err := data.LoadList(c.Input, config.Import)
	if err != nil {
		code := ExitValidationError
		if _, statErr := os.Stat(c.Input); errors.Is(statErr, os.ErrNotExist) {
			code = ExitFileError
		}
		return &CLIError{
			Code:    code,
			Message: fmt.Sprintf("Validation failed: %v", err),
			Details: map[string]any{"file": c.Input},
			Suggestions: []string{
				"MyAnimeList exports are XML files from the list export page",
				"CSV files need an id and a title column",
			},
		}
	}

	n := len(list.Entries)
	fmt.Fprintf(stdout, "File: %s\n", c.Input)
	fmt.Fprintf(stdout, "Format: %s, kind: %s\n", list.Format, list.Kind)
	fmt.Fprintf(stdout, "Entries: %d (skipped %d)\n", n, list.Skipped)
	fmt.Fprintf(stdout, "Rated: %.0f%%\n", list.RatedShare()*100)
	fmt.Fprintf(stdout, "Comparisons: about %d\n", n*ranking.ComparisonsPerItem(n)/2)

	if c.Preview > 0 && n > 0 {
		fmt.Fprintln(stdout, "\nPreview:")
		for _, entry := range list.Entries[:min(c.Preview, n)] {
			score := "-"
			if entry.Score > 0 {
				score = fmt.Sprintf("%.0f", entry.Score)
			}
			fmt.Fprintf(stdout, "  %-8d %-5s %s\n", entry.ID, score, entry.Title)
		}
	}
	return nil
}

// Helper functions

func showVersion() error {
	fmt.Fprintf(stdout, "listrank version %s\n", Version)
	fmt.Fprintf(stdout, "Build date: %s\n", BuildDate)
	fmt.Fprintf(stdout, "Git commit: %s\n", GitCommit)
	return nil
}

func configureLogging(verbose bool) {
	logLevel.Set(slog.LevelInfo)
	if verbose {
		logLevel.Set(slog.LevelDebug)
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}

func loadConfiguration(configPath string) (*data.Config, error) {
	config, err := data.LoadWithEnvironment(configPath)
	if err != nil {
		return nil, &CLIError{
			Code:    ExitConfigError,
			Message: fmt.Sprintf("Failed to load configuration: %v", err),
			Suggestions: []string{
				"Check configuration file syntax",
				"Use --config flag to specify different config file",
				"Run with --verbose for more details",
			},
		}
	}
	return config, nil
}

// openStorage creates and, for sqlite, initializes the configured backend
func openStorage(ctx context.Context, config *data.Config) (data.Storage, error) {
	storage, err := data.NewStorage(config.Storage)
	if err != nil {
		return nil, &CLIError{Code: ExitConfigError, Message: err.Error()}
	}
	if initializer, ok := storage.(interface{ Init(context.Context) error }); ok {
		if err := initializer.Init(ctx); err != nil {
			_ = storage.Close()
			return nil, &CLIError{Code: ExitSessionError, Message: fmt.Sprintf("Failed to open storage: %v", err)}
		}
	}
	return storage, nil
}

// logToFile redirects logging to path until the returned function is called
func logToFile(path string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	previous := logger
	logger = slog.New(slog.NewTextHandler(file, &slog.HandlerOptions{Level: logLevel}))
	return func() {
		logger = previous
		_ = file.Close()
	}, nil
}

// journalDir places journals next to saved progress
func journalDir(config *data.Config) string {
	base := config.Storage.Path
	if base == "" {
		dir, err := data.DefaultStorageDir()
		if err != nil {
			return "journal"
		}
		base = dir
	} else if config.Storage.Backend == "sqlite" {
		base = filepath.Dir(base)
	}
	return filepath.Join(base, "journal")
}

// logImageMetrics summarizes image lookups at debug level
func logImageMetrics(registry *prometheus.Registry) {
	families, err := registry.Gather()
	if err != nil {
		logger.Debug("failed to gather image metrics", "error", err)
		return
	}
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			attrs := []any{"metric", family.GetName()}
			for _, label := range metric.GetLabel() {
				attrs = append(attrs, label.GetName(), label.GetValue())
			}
			switch {
			case metric.GetCounter() != nil:
				attrs = append(attrs, "value", metric.GetCounter().GetValue())
			case metric.GetGauge() != nil:
				attrs = append(attrs, "value", metric.GetGauge().GetValue())
			case metric.GetHistogram() != nil:
				attrs = append(attrs, "count", metric.GetHistogram().GetSampleCount())
			}
			logger.Debug("image metrics", attrs...)
		}
	}
}

func outputProgressJSON(infos []data.ProgressInfo) error {
	encoder := json.NewEncoder(stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(infos)
}

func outputProgressCSV(infos []data.ProgressInfo) error {
	writer := csv.NewWriter(stdout)
	defer writer.Flush()

	if err := writer.Write([]string{"Key", "Kind", "Items", "Saved", "Expired"}); err != nil {
		return err
	}
	for _, info := range infos {
		record := []string{
			info.Key,
			string(info.Kind),
			fmt.Sprintf("%d", info.Items),
			info.SavedAt.Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%t", info.Expired),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	return writer.Error()
}

func outputProgressTable(infos []data.ProgressInfo) error {
	if len(infos) == 0 {
		fmt.Fprintln(stdout, "No saved progress found")
		return nil
	}

	fmt.Fprintf(stdout, "%-30s %-8s %-6s %s\n", "KEY", "KIND", "ITEMS", "SAVED")
	fmt.Fprintln(stdout, strings.Repeat("-", 66))
	for _, info := range infos {
		key := info.Key
		if len(key) > 30 {
			key = key[:27] + "..."
		}
		saved := info.SavedAt.Format("2006-01-02 15:04")
		if info.Expired {
			saved += " (expired)"
		}
		fmt.Fprintf(stdout, "%-30s %-8s %-6d %s\n", key, info.Kind, info.Items, saved)
	}
	return nil
}
