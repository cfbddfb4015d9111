package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/todmy/req-analyzer/internal/analysis"
	"github.com/todmy/req-analyzer/internal/config"
	"github.com/todmy/req-analyzer/internal/logging"
	"github.com/todmy/req-analyzer/internal/metrics"
	"github.com/todmy/req-analyzer/pkg/models"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze a requirements file and print contradictions as JSON",
	Long: `Run a synchronous analysis over a file holding one requirement per line.
Blank lines and lines starting with # are ignored.

Examples:
  req-analyzer analyze --file requirements.txt
  req-analyzer analyze --file - --nli-threshold 0.9 < requirements.txt`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("file")
		format, _ := cmd.Flags().GetString("format")
		if format != "json" && format != "text" {
			return fmt.Errorf("invalid format %q: use json or text", format)
		}

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		verbose, _ := cmd.Flags().GetBool("verbose")
		logger, err := cliLogger(cmd.ErrOrStderr(), verbose, cfg.Logging)
		if err != nil {
			return err
		}
		defer logger.Sync()

		in, err := openInput(cmd, path)
		if err != nil {
			return err
		}
		defer in.Close()

		reqs, err := readRequirements(in)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		scorer, closeCache, err := newScorer(ctx, cfg, metrics.New(), logger)
		if err != nil {
			return err
		}
		defer closeCache()

		stores, closeDB, err := openStores(ctx, config.DatabaseConfig{}, logger)
		if err != nil {
			return err
		}
		defer closeDB()

		orchestrator := analysis.NewOrchestrator(analysisConfig(cfg.Analysis), scorer, stores,
			analysis.WithProvider(cfg.NLI.Provider),
			analysis.WithLogger(logger),
		)

		resp, err := orchestrator.AnalyzeSync(ctx, reqs, analyzeOptions(cmd))
		if err != nil {
			return err
		}

		if format == "text" {
			printText(cmd.OutOrStdout(), resp)
			return nil
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	},
}

func init() {
	addAnalyzeFlags(analyzeCmd)
	analyzeCmd.MarkFlagRequired("file")
}

func addAnalyzeFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("file", "f", "", "requirements file, one per line (- for stdin)")
	cmd.Flags().Float64("similarity-threshold", 0, "similarity gate threshold (default from config)")
	cmd.Flags().Float64("nli-threshold", 0, "contradiction score threshold (default from config)")
	cmd.Flags().Int("max-requirements", 0, "cap on analyzed requirements (default from config)")
	cmd.Flags().String("format", "json", "output format: json or text")
	cmd.Flags().BoolP("verbose", "v", false, "write logs to stderr")
}

// analyzeOptions overrides only the thresholds given on the command line
func analyzeOptions(cmd *cobra.Command) analysis.Options {
	var opts analysis.Options
	if cmd.Flags().Changed("similarity-threshold") {
		v, _ := cmd.Flags().GetFloat64("similarity-threshold")
		opts.SimilarityThreshold = &v
	}
	if cmd.Flags().Changed("nli-threshold") {
		v, _ := cmd.Flags().GetFloat64("nli-threshold")
		opts.NLIThreshold = &v
	}
	if cmd.Flags().Changed("max-requirements") {
		v, _ := cmd.Flags().GetInt("max-requirements")
		opts.MaxRequirements = &v
	}
	return opts
}

// cliLogger keeps stdout for the result. Logs go to w, and only when verbose.
func cliLogger(w io.Writer, verbose bool, cfg config.LoggingConfig) (*zap.Logger, error) {
	if !verbose {
		return zap.NewNop(), nil
	}
	return logging.NewWithSink(cfg.Level, cfg.Format, zapcore.AddSync(w))
}

func openInput(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open requirements file: %w", err)
	}
	return f, nil
}

// readRequirements returns one requirement per non-blank, non-comment line
func readRequirements(r io.Reader) ([]models.RequirementText, error) {
	var texts []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		texts = append(texts, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read requirements: %w", err)
	}
	return models.TextsOf(texts...), nil
}

// printText writes a human-readable report
func printText(w io.Writer, resp *analysis.Response) {
	red := color.New(color.FgRed, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	for _, warning := range resp.Warnings {
		fmt.Fprintf(w, "%s %s\n", yellow("⚠"), warning)
	}
	if resp.Errors != "" {
		fmt.Fprintf(w, "%s %s\n", yellow("⚠"), resp.Errors)
	}

	if len(resp.Contradictions) == 0 {
		fmt.Fprintf(w, "%s No contradictions found (%d comparisons)\n", green("✓"), resp.ComparisonsMade)
		return
	}

	fmt.Fprintf(w, "%s Found %d contradiction(s) in %d comparisons:\n\n",
		red("✗"), len(resp.Contradictions), resp.ComparisonsMade)
	for _, c := range resp.Contradictions {
		fmt.Fprintf(w, "%s #%d vs #%d (score %.2f)\n", cyan("→"), c.Index1+1, c.Index2+1, c.ContradictionScore)
		fmt.Fprintf(w, "  %s\n  %s\n\n", c.Requirement1, c.Requirement2)
	}
}
