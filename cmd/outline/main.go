// outline numbers ProseMirror outline documents from the command line.
//
// Documents are read from JSON, JSONC (comments and trailing commas
// allowed) or Markdown files. Every command runs a numbering pass first,
// so hand-written fixtures do not need computed numbers.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"

	"chronicle/outline/internal/doctree"
	"chronicle/outline/internal/export"
	"chronicle/outline/internal/importer"
	"chronicle/outline/internal/interaction"
	"chronicle/outline/internal/numbering"
)

var errUsage = errors.New("usage")

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type command struct {
	name    string
	summary string
	run     func(args []string, env *environment) error
}

type environment struct {
	stdout io.Writer
	stderr io.Writer
	log    *slog.Logger
	engine *numbering.Engine
}

var commands = []command{
	{"markers", "print the numbering markers of a document", runMarkers},
	{"entries", "print the numbered table of contents", runEntries},
	{"override", "apply one override and write the document", runOverride},
	{"import", "convert Markdown to numbered ProseMirror JSON", runImport},
	{"export", "render a standalone numbered HTML page", runExport},
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printUsage(stderr)
		if len(args) == 0 {
			return errUsage
		}
		return nil
	}

	level := slog.LevelWarn
	if os.Getenv("OUTLINE_DEBUG") != "" {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	env := &environment{
		stdout: stdout,
		stderr: stderr,
		log:    log,
		engine: numbering.New(numbering.Options{}, log),
	}

	for _, cmd := range commands {
		if cmd.name == args[0] {
			return cmd.run(args[1:], env)
		}
	}
	fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
	printUsage(stderr)
	return errUsage
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: outline <command> [flags] FILE")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %-10s %s\n", cmd.name, cmd.summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "FILE may be .json, .jsonc or .md. Run 'outline <command> --help' for flags.")
}

// parseFlags parses args and returns the single positional file argument.
func parseFlags(flagSet *pflag.FlagSet, args []string, env *environment) (string, error) {
	flagSet.SetOutput(env.stderr)
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return "", nil
		}
		return "", fmt.Errorf("%w: %v", errUsage, err)
	}
	if flagSet.NArg() != 1 {
		fmt.Fprintf(env.stderr, "%s expects exactly one FILE argument\n", flagSet.Name())
		flagSet.PrintDefaults()
		return "", errUsage
	}
	return flagSet.Arg(0), nil
}

func runMarkers(args []string, env *environment) error {
	flagSet := pflag.NewFlagSet("markers", pflag.ContinueOnError)
	asJSON := flagSet.Bool("json", false, "print the marker set as JSON")
	path, err := parseFlags(flagSet, args, env)
	if err != nil || path == "" {
		return err
	}
	doc, err := loadNumbered(path, env.engine)
	if err != nil {
		return err
	}
	set, err := numbering.Markers(doc)
	if err != nil {
		return err
	}
	if *asJSON {
		return writeJSON(env.stdout, set)
	}
	renderMarkers(env.stdout, set, numbering.Entries(doc))
	return nil
}

func runEntries(args []string, env *environment) error {
	flagSet := pflag.NewFlagSet("entries", pflag.ContinueOnError)
	asJSON := flagSet.Bool("json", false, "print entries as JSON")
	path, err := parseFlags(flagSet, args, env)
	if err != nil || path == "" {
		return err
	}
	doc, err := loadNumbered(path, env.engine)
	if err != nil {
		return err
	}
	entries := numbering.Entries(doc)
	if *asJSON {
		return writeJSON(env.stdout, entries)
	}
	renderEntries(env.stdout, entries)
	return nil
}

func runOverride(args []string, env *environment) error {
	flagSet := pflag.NewFlagSet("override", pflag.ContinueOnError)
	address := flagSet.StringP("address", "a", "", "item address, e.g. 1.2")
	action := flagSet.String("action", "", "set-value, restart-from-one, restart-from-current, continue or clear")
	value := flagSet.String("value", "", "number for set-value")
	output := flagSet.StringP("output", "o", "", "write the document here instead of stdout")
	path, err := parseFlags(flagSet, args, env)
	if err != nil || path == "" {
		return err
	}
	doc, err := loadNumbered(path, env.engine)
	if err != nil {
		return err
	}

	adapter := interaction.NewAdapter(env.engine, nil, nil)
	report, err := adapter.Submit(doc, interaction.Request{
		Address: *address,
		Action:  interaction.Action(*action),
		Value:   *value,
	})
	if err != nil {
		return err
	}
	renderReport(env.stderr, report)
	return writeDocument(*output, env.stdout, doc)
}

func runImport(args []string, env *environment) error {
	flagSet := pflag.NewFlagSet("import", pflag.ContinueOnError)
	output := flagSet.StringP("output", "o", "", "write the document here instead of stdout")
	path, err := parseFlags(flagSet, args, env)
	if err != nil || path == "" {
		return err
	}
	if !isMarkdown(path) {
		return fmt.Errorf("import expects a Markdown file, got %s", filepath.Base(path))
	}
	doc, err := loadNumbered(path, env.engine)
	if err != nil {
		return err
	}
	return writeDocument(*output, env.stdout, doc)
}

func runExport(args []string, env *environment) error {
	flagSet := pflag.NewFlagSet("export", pflag.ContinueOnError)
	title := flagSet.String("title", "", "page title (default: first heading)")
	output := flagSet.StringP("output", "o", "", "write HTML here instead of stdout")
	path, err := parseFlags(flagSet, args, env)
	if err != nil || path == "" {
		return err
	}
	doc, err := loadNumbered(path, env.engine)
	if err != nil {
		return err
	}
	page, err := export.HTML(export.Document{
		Title: firstNonBlank(*title, importer.Title(doc), strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))),
		Doc:   doc,
	})
	if err != nil {
		return err
	}
	if *output == "" {
		_, err = io.WriteString(env.stdout, page)
		return err
	}
	return os.WriteFile(*output, []byte(page), 0o644)
}

// loadNumbered reads path and runs one numbering pass over it.
func loadNumbered(path string, engine *numbering.Engine) (*doctree.Document, error) {
	doc, err := readDocument(path)
	if err != nil {
		return nil, err
	}
	if _, err := engine.Recompute(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func readDocument(path string) (*doctree.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if isMarkdown(path) {
		return importer.Markdown(data), nil
	}
	doc, err := doctree.Parse(jsonc.ToJSON(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

func isMarkdown(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return true
	}
	return false
}

func writeDocument(output string, stdout io.Writer, doc *doctree.Document) error {
	if output == "" {
		return writeJSON(stdout, doc)
	}
	file, err := os.Create(output)
	if err != nil {
		return err
	}
	if err := writeJSON(file, doc); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func writeJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
