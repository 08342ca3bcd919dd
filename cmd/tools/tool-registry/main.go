// cmd/tools/tool-registry/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"preset-workers/internal/common/config"
	"preset-workers/internal/common/database"
	"preset-workers/internal/common/logger"
	"preset-workers/internal/common/templatestore"
	"preset-workers/internal/presets"
	"preset-workers/pkg/registry"
)

const defaultRegistryPath = "configs/tool-registry.json"

func main() {
	if len(os.Args) < 2 {
		help(os.Stdout)
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "init":
		err = runInit(os.Args[2:], os.Stdout)
	case "validate":
		err = runValidate(os.Args[2:], os.Stdout)
	case "list":
		err = runList(os.Args[2:], os.Stdout)
	case "resolve":
		err = runResolve(os.Args[2:], os.Stdout)
	case "help":
		fallthrough
	default:
		help(os.Stdout)
		return
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runInit writes the built-in profiles to a registry file.
func runInit(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	path := fs.String("path", defaultRegistryPath, "Path to registry file")
	force := fs.Bool("force", false, "Overwrite an existing file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := os.Stat(*path); err == nil && !*force {
		return fmt.Errorf("%s already exists (use -force to overwrite)", *path)
	}

	reg := registry.Default()
	reg.LastUpdated = time.Now().Format(time.RFC3339)
	if err := registry.Save(reg, *path); err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote %d tools to %s\n", len(reg.Tools), *path)
	return nil
}

func runValidate(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	path := fs.String("path", defaultRegistryPath, "Path to registry file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	reg, err := registry.LoadRegistry(*path)
	if err != nil {
		return fmt.Errorf("registry validation failed: %w", err)
	}
	fmt.Fprintf(out, "Registry validation passed. Found %d tools.\n", len(reg.Tools))
	return nil
}

func runList(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	path := fs.String("path", "", "Path to registry file (defaults to built-in profiles)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	reg, err := registry.LoadRegistry(*path)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tKIND\tSUBJECT\tMODIFIER\tLOCALES\tRESTRICTED")
	for _, t := range reg.Tools {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			t.Type,
			t.ResultKind,
			strings.Join(t.SubjectParams, ","),
			strings.Join(t.ModifierParams, ","),
			strings.Join(t.Locales, ","),
			strings.Join(append(append([]string{}, t.RestrictedSubjects...), t.RestrictedModifiers...), ","),
		)
	}
	return tw.Flush()
}

type resolveOptions struct {
	configPath string
	tool       string
	locale     string
	subject    string
	modifier   string
	tier       string
}

// runResolve fetches one tool's templates through the configured store and
// resolves a single selection against them, printing the result as JSON.
func runResolve(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	var opts resolveOptions
	fs.StringVar(&opts.configPath, "config", "", "Config file (defaults to the standard lookup)")
	fs.StringVar(&opts.tool, "tool", "", "Tool type (required)")
	fs.StringVar(&opts.locale, "locale", "en", "Locale")
	fs.StringVar(&opts.subject, "subject", "", "Subject reference (required)")
	fs.StringVar(&opts.modifier, "modifier", "", "Modifier reference")
	fs.StringVar(&opts.tier, "tier", string(presets.TierDemo), "Access tier")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if opts.tool == "" || opts.subject == "" {
		fs.Usage()
		return fmt.Errorf("tool and subject are required for resolve")
	}

	var (
		cfg *config.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = config.LoadFromFile(opts.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	log := logger.NewStructured(cfg.Logging.Level, cfg.Logging.Format)
	tools, err := registry.LoadRegistry(cfg.Catalog.RegistryPath)
	if err != nil {
		return err
	}

	deps := templatestore.Dependencies{Logger: log}
	if cfg.TemplateStore.Source == config.SourceElasticsearch {
		es, err := database.NewElasticsearch(cfg.Database.Elasticsearch, nil)
		if err != nil {
			return err
		}
		deps.Elasticsearch = es
	}
	source, err := templatestore.New(cfg.TemplateStore, deps)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Catalog.LoadTimeout))
	defer cancel()
	report, err := resolveSelection(ctx, source, tools, opts, log)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

type resolveReport struct {
	Tool       string                 `json:"tool"`
	Locale     string                 `json:"locale"`
	Records    int                    `json:"records"`
	Keys       int                    `json:"keys"`
	Skipped    int                    `json:"skipped"`
	Subjects   []string               `json:"subjects"`
	Modifiers  []string               `json:"modifiers"`
	Result     presets.ResolvedResult `json:"result"`
	PreviewURL string                 `json:"previewUrl,omitempty"`
}

// resolveSelection drives a session the way a tool page does: the selection is made
// while the index is still loading and resolves once it arrives.
func resolveSelection(ctx context.Context, source presets.Source, tools *registry.ToolRegistry, opts resolveOptions, log logger.Logger) (*resolveReport, error) {
	profile, ok := tools.Profile(opts.tool)
	if !ok {
		return nil, fmt.Errorf("unknown tool type %q", opts.tool)
	}
	tool := presets.ToolType(profile.Type)
	locale := presets.NormalizeLocale(opts.locale)
	sel := presets.Selection{
		ToolType:    tool,
		SubjectRef:  opts.subject,
		ModifierRef: opts.modifier,
		Locale:      locale,
	}

	session := presets.NewSession(presets.ParseTier(opts.tier))
	seq := session.BeginLoad(tool, locale)
	session.Select(sel)

	raws, err := source.Fetch(ctx, tool, locale)
	if err != nil {
		session.FailLoad(seq, err)
		return nil, fmt.Errorf("fetch %s/%s: %w", tool, locale, err)
	}
	records, skipped := presets.NewExtractor(profile, log).ExtractAll(raws)
	ix := presets.Build(records)

	result, _, _ := session.CompleteLoad(seq, ix)
	report := &resolveReport{
		Tool:      string(tool),
		Locale:    locale,
		Records:   ix.Len(),
		Keys:      ix.KeyCount(),
		Skipped:   skipped,
		Subjects:  ix.Subjects(),
		Modifiers: ix.Modifiers(),
		Result:    result,
	}
	if !result.Found() {
		report.PreviewURL = presets.PreviewURL(ix, sel)
	}
	return report, nil
}

func help(out io.Writer) {
	fmt.Fprintln(out, `
Usage: tool-registry <command> [flags]

Commands:
  init      Write the built-in tool profiles to a registry file
  validate  Validate the registry file
  list      Print the tool profiles
  resolve   Fetch templates for one tool and resolve a selection
  help      Show this help message

Examples:
  tool-registry init -path configs/tool-registry.json
  tool-registry validate -path configs/tool-registry.json
  tool-registry list
  tool-registry resolve -tool avatar -locale zh -subject a1 -modifier s2 -tier demo

Use 'tool-registry <command> -h' for more information about a command.`)
}
