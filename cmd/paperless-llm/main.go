package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/cpg314/paperless-llm/pkg/cache"
	cfgPkg "github.com/cpg314/paperless-llm/pkg/config"
	"github.com/cpg314/paperless-llm/pkg/extract"
	"github.com/cpg314/paperless-llm/pkg/llm"
	"github.com/cpg314/paperless-llm/pkg/paperless"
	"github.com/cpg314/paperless-llm/pkg/pipeline"
	"github.com/cpg314/paperless-llm/pkg/prompt"
)

type Flags struct {
	ConfigPath     string
	PaperlessURL   string
	PaperlessToken string
	LLMURL         string
	Model          string
	Apply          bool
	ProcessAll     bool
	Currency       string
	Tag            string
	Slots          int
	KeepTagOnEmpty bool
	DBUrl          string
	Yes            bool
}

func main() {
	flags := parseFlags()

	if err := run(flags); err != nil {
		log.Fatal(err)
	}
}

func parseFlags() Flags {
	var flags Flags

	flag.StringVar(&flags.ConfigPath, "config", "", "Path to config file")
	flag.StringVar(&flags.PaperlessURL, "paperless-url", "", "paperless-ngx base URL")
	flag.StringVar(&flags.PaperlessToken, "paperless-token", "", "paperless-ngx API token")
	flag.StringVar(&flags.LLMURL, "llm-url", "", "Model server URL (llama.cpp, OpenAI-compatible)")
	flag.StringVar(&flags.Model, "model", "", "Model name (default: first model advertised by the server)")
	flag.BoolVar(&flags.Apply, "apply", false, "Write changes back to paperless (default: dry run)")
	flag.BoolVar(&flags.ProcessAll, "process-all", false, "Process all documents instead of marker-tagged only")
	flag.StringVar(&flags.Currency, "currency", "", "Currency for the amount field")
	flag.StringVar(&flags.Tag, "tag", "", "Marker tag selecting documents to process")
	flag.IntVar(&flags.Slots, "slots", 0, "Parallel inference slots of the model server")
	flag.BoolVar(&flags.KeepTagOnEmpty, "keep-tag-on-empty", false, "Keep the marker tag when the model finds nothing to extract")
	flag.StringVar(&flags.DBUrl, "db-url", "", "PostgreSQL connection string for the optional outcome cache")
	flag.BoolVar(&flags.Yes, "yes", false, "Skip the confirmation prompt in apply mode")
	flag.Parse()

	return flags
}

// buildConfig loads the config file and applies explicit flag overrides.
func buildConfig(flags Flags) (*cfgPkg.Config, error) {
	config, err := cfgPkg.LoadConfig(flags.ConfigPath)
	if err != nil {
		return nil, err
	}

	if flags.PaperlessURL != "" {
		config.Paperless.URL = flags.PaperlessURL
	}
	if flags.PaperlessToken != "" {
		config.Paperless.Token = flags.PaperlessToken
	}
	if flags.LLMURL != "" {
		config.LLM.BaseURL = flags.LLMURL
	}
	if flags.Model != "" {
		config.LLM.Model = flags.Model
	}
	if flags.Currency != "" {
		config.Pipeline.Currency = flags.Currency
	}
	if flags.Tag != "" {
		config.Pipeline.Tag = flags.Tag
	}
	if flags.Slots > 0 {
		config.LLM.Slots = flags.Slots
	}
	if flags.KeepTagOnEmpty {
		config.Pipeline.KeepTagOnEmpty = true
	}
	if flags.DBUrl != "" {
		config.Cache.URL = flags.DBUrl
	}

	if errs := config.Validate(); len(errs) > 0 {
		for _, e := range errs {
			color.Red("config: %v", e)
		}
		return nil, fmt.Errorf("invalid configuration")
	}
	return config, nil
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("docs"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func warnApply(apply bool) {
	if !apply {
		color.Yellow("Not applying changes, use the --apply flag")
	}
}

// confirmApply asks before mutating the store; there is no backup of the
// previous titles outside of the logs.
func confirmApply() bool {
	color.Yellow("Apply mode will overwrite document titles and amounts in paperless. Continue? [y/N]")
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes"
}

func run(flags Flags) error {
	config, err := buildConfig(flags)
	if err != nil {
		return err
	}

	if flags.Apply && !flags.Yes && !confirmApply() {
		return fmt.Errorf("aborted")
	}
	warnApply(flags.Apply)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := paperless.NewWithConfig(paperless.ClientConfig{
		BaseURL:   config.Paperless.URL,
		Token:     config.Paperless.Token,
		RateLimit: config.Paperless.RateLimit,
		PageSize:  config.Paperless.PageSize,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize paperless client: %w", err)
	}

	// Resolving the marker tag and the amount field doubles as the startup
	// connectivity check for the store.
	tags, err := store.Tags(ctx)
	if err != nil {
		return fmt.Errorf("failed to reach paperless: %w", err)
	}
	tagID, ok := tags[config.Pipeline.Tag]
	if !ok {
		return fmt.Errorf("tag %q not found in paperless", config.Pipeline.Tag)
	}
	fields, err := store.CustomFields(ctx)
	if err != nil {
		return fmt.Errorf("failed to list custom fields: %w", err)
	}
	amountFieldID, ok := fields[config.Pipeline.AmountField]
	if !ok {
		return fmt.Errorf("custom field %q not found in paperless", config.Pipeline.AmountField)
	}

	completerConfig := llm.CompleterConfig{
		BaseURL:     config.LLM.BaseURL,
		Model:       config.LLM.Model,
		MaxTokens:   config.LLM.MaxTokens,
		Temperature: config.LLM.Temperature,
		Timeout:     time.Duration(config.LLM.TimeoutSeconds) * time.Second,
		Slots:       config.LLM.Slots,
	}
	completer, err := llm.NewWithConfig(completerConfig)
	if err != nil {
		return err
	}
	info, err := completer.Ping(ctx)
	if err != nil {
		return fmt.Errorf("failed to reach model server: %w", err)
	}
	if config.LLM.Model == "" {
		config.LLM.Model = info.Model
		completerConfig.Model = info.Model
		completer, err = llm.NewWithConfig(completerConfig)
		if err != nil {
			return err
		}
	}
	contextSize := info.ContextSize
	if contextSize == 0 {
		contextSize = config.LLM.ContextSize
	}
	color.Blue("Using model %s (context %d tokens)", config.LLM.Model, contextSize)

	builder := prompt.NewWithConfig(prompt.BuilderConfig{
		Budget:   prompt.ContentBudget(contextSize, config.LLM.MaxTokens, config.Pipeline.Currency),
		Currency: config.Pipeline.Currency,
	})
	validator := extract.NewWithConfig(extract.ValidatorConfig{
		MaxTitleLen: config.Pipeline.MaxTitleLen,
	})

	var outcomes pipeline.OutcomeCache
	if config.Cache.URL != "" {
		c, err := cache.NewWithConfig(cache.CacheConfig{
			ConnString: config.Cache.URL,
			TableName:  config.Cache.TableName,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize outcome cache: %w", err)
		}
		defer c.Close()
		outcomes = c
	}

	var bar *progressbar.ProgressBar
	pipe, err := pipeline.NewWithConfig(pipeline.Config{
		TagID:          tagID,
		AmountFieldID:  amountFieldID,
		Currency:       config.Pipeline.Currency,
		Apply:          flags.Apply,
		ProcessAll:     flags.ProcessAll,
		KeepTagOnEmpty: config.Pipeline.KeepTagOnEmpty,
		MaxAttempts:    config.Pipeline.MaxAttempts,
		RetryBase:      time.Duration(config.Pipeline.RetryBaseMs) * time.Millisecond,
		Slots:          config.LLM.Slots,
		OnProgress: func(task pipeline.Task) {
			if bar != nil {
				bar.Add(1)
			}
		},
	}, pipeline.Deps{
		Store:     store,
		Completer: completer,
		Builder:   builder,
		Validator: validator,
		Cache:     outcomes,
	})
	if err != nil {
		return err
	}

	ids, err := pipe.ListCandidates(ctx)
	if err != nil {
		return err
	}
	color.Blue("Found %d documents to process (tag %q)", len(ids), config.Pipeline.Tag)
	if len(ids) == 0 {
		return nil
	}

	bar = getProgressBar(len(ids), "Processing documents...")
	tasks, summary := pipe.Run(ctx, ids)
	bar.Finish()
	fmt.Println()

	printOutcomes(tasks)
	printSummary(summary)
	warnApply(flags.Apply)

	// Individual document failures are summarized, not fatal.
	return nil
}

func printOutcomes(tasks []pipeline.Task) {
	for _, task := range tasks {
		switch task.Status {
		case pipeline.StatusApplied:
			if task.Decision.Title != nil && *task.Decision.Title != task.OldTitle {
				color.Green("✓ %d: %q -> %q", task.DocumentID, task.OldTitle, *task.Decision.Title)
			} else {
				color.Green("✓ %d: %q", task.DocumentID, task.OldTitle)
			}
			if task.Decision.Amount != nil {
				color.Green("  amount %s", *task.Decision.Amount)
			}
		case pipeline.StatusSkipped:
			color.Yellow("- %d: nothing to extract", task.DocumentID)
		default:
			color.Red("✗ %d: %v", task.DocumentID, task.Err)
		}
	}
}

func printSummary(summary pipeline.RunSummary) {
	mode := "apply"
	if summary.DryRun {
		mode = "dry run"
	}
	color.Blue("\nProcessed %d documents in %s (%s)", summary.Candidates, summary.Elapsed.Round(time.Millisecond), mode)
	color.Green("✓ %d applied", summary.Applied)
	color.Yellow("- %d skipped", summary.Skipped)
	if summary.CacheHits > 0 {
		color.Blue("  %d served from the outcome cache", summary.CacheHits)
	}
	if summary.Failed > 0 {
		color.Red("✗ %d failed: %v", summary.Failed, summary.FailedIDs)
	}
}
