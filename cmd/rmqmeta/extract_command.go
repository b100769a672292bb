package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"rmqmeta/internal/config"
	"rmqmeta/internal/extract"
	"rmqmeta/internal/logging"
	"rmqmeta/internal/metadata"
	"rmqmeta/internal/ner"
)

type backendReport struct {
	Backend  string `json:"backend" yaml:"backend"`
	Success  bool   `json:"success" yaml:"success"`
	Phrases  int    `json:"phrases" yaml:"phrases"`
	Duration string `json:"duration" yaml:"duration"`
	Error    string `json:"error,omitempty" yaml:"error,omitempty"`
}

type extractReport struct {
	File     string           `json:"file" yaml:"file"`
	Pages    int              `json:"pages,omitempty" yaml:"pages,omitempty"`
	Backends []backendReport  `json:"backends" yaml:"backends"`
	Record   *metadata.Record `json:"record,omitempty" yaml:"-"`
}

func newExtractCommand(ctx *commandContext) *cobra.Command {
	var format string
	var verbose bool

	cmd := &cobra.Command{
		Use:   "extract FILE",
		Short: "Run the extraction backends and entity tagger on a local document",
		Long: "Runs every extraction backend plus the entity tagger against FILE and prints the\n" +
			"metadata record that would be stored. Nothing is written to the document store.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := checkFormat(format, "table", "json", "yaml")
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			path, err = filepath.Abs(path)
			if err != nil {
				return err
			}

			logger := logging.NewNop()
			if verbose {
				if logger, err = logging.New(logging.Options{Level: "debug", Format: cfg.Logging.Format, OutputPaths: []string{"stderr"}}); err != nil {
					return err
				}
			}
			report := runExtraction(cmd, cfg, path, logger)

			switch format {
			case "json":
				return writeJSON(cmd, report)
			case "yaml":
				return writeYAML(cmd, yamlReport(report))
			}
			printExtractReport(cmd, report)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format (table, json, yaml)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log backend progress to stderr")
	return cmd
}

func runExtraction(cmd *cobra.Command, cfg *config.Config, path string, logger *slog.Logger) extractReport {
	report := extractReport{File: path}
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		if pages, err := extract.PageCount(path); err == nil {
			report.Pages = pages
		}
	}

	classifier := ner.NewClassifier(cfg.NER, cfg.Paths.TmpDir, logger)
	runner := extract.NewRunner(
		extract.Backends(cfg.Extraction),
		ner.NewTagger(classifier, cfg.NER.TokenTypes),
		cfg.NER.TokenTypes,
		extract.WithTimeout(time.Duration(cfg.Extraction.TimeoutSeconds)*time.Second),
		extract.WithConcurrency(cfg.Extraction.Concurrent),
		extract.WithLogger(logger),
	)
	results := runner.Run(cmd.Context(), path)

	record := metadata.New(filepath.Base(path), filepath.Dir(path), time.Now())
	for _, r := range results {
		entry := backendReport{
			Backend:  r.Backend,
			Success:  r.Success,
			Phrases:  len(r.Phrases),
			Duration: r.Duration.Round(time.Millisecond).String(),
		}
		if r.Err != nil {
			entry.Error = r.Err.Error()
		}
		if r.Success {
			record.Fold(r.Phrases)
		}
		report.Backends = append(report.Backends, entry)
	}
	if extract.Succeeded(results) {
		report.Record = record
	}
	return report
}

// yamlReport keeps record fields in record order, which a plain map would not.
func yamlReport(report extractReport) *yaml.Node {
	root := &yaml.Node{}
	_ = root.Encode(report)
	if report.Record == nil {
		return root
	}
	record := &yaml.Node{Kind: yaml.MappingNode}
	for _, f := range report.Record.Fields() {
		value := &yaml.Node{}
		_ = value.Encode(f.Value)
		record.Content = append(record.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: f.Key}, value)
	}
	root.Content = append(root.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: "record"}, record)
	return root
}

func printExtractReport(cmd *cobra.Command, report extractReport) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "File: %s\n", report.File)
	if report.Pages > 0 {
		fmt.Fprintf(out, "Pages: %d\n", report.Pages)
	}

	rows := make([][]string, 0, len(report.Backends))
	for _, b := range report.Backends {
		status := "ok"
		if !b.Success {
			status = "failed"
		}
		rows = append(rows, []string{b.Backend, status, strconv.Itoa(b.Phrases), b.Duration, b.Error})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Backend", "Result", "Phrases", "Duration", "Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	))

	if report.Record == nil {
		fmt.Fprintln(out, "Every backend failed; the message would be quarantined")
		return
	}
	fieldRows := make([][]string, 0)
	for _, f := range report.Record.Fields() {
		switch v := f.Value.(type) {
		case []string:
			fieldRows = append(fieldRows, []string{f.Key, strings.Join(v, "; ")})
		default:
			fieldRows = append(fieldRows, []string{f.Key, fmt.Sprint(v)})
		}
	}
	fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, fieldRows, nil))
}
