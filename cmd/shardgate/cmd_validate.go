package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"shardgate/internal/dedup"
	"shardgate/internal/embedding"
	"shardgate/internal/types"
	"shardgate/internal/validation"
)

var (
	// Input flags shared by validate, duplicates, metadata and seed
	contentFlag      string
	contentFileFlag  string
	metadataFlag     string
	metadataFileFlag string

	// validate
	offlineFlag        bool
	skipSimilarityFlag bool
	policyFlag         string
	jsonFlag           bool

	// duplicates
	uniqueIDFlag string
	groupIDFlag  string

	// metadata
	strictFlag bool
)

// validateCmd runs the full gatekeeper pipeline
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a shard before storage",
	Long: `Runs every pre-storage check in order:
  payload_safety, metadata_fields, file_references, token_budget,
  code_snippets, content_quality, then duplicate checks across all
  collections (duplicate_hash, duplicate_unique_id, similar_content).

Exits 1 when the verdict is negative.

Example:
  shardgate validate --content-file shard.md --metadata-file shard.yaml`,
	RunE: runValidate,
}

// duplicatesCmd runs only the duplicate checks
var duplicatesCmd = &cobra.Command{
	Use:   "duplicates",
	Short: "Check content for duplicates across all collections",
	RunE:  runDuplicates,
}

// metadataCmd validates metadata on its own
var metadataCmd = &cobra.Command{
	Use:   "metadata",
	Short: "Validate shard metadata only",
	RunE:  runMetadata,
}

func init() {
	for _, cmd := range []*cobra.Command{validateCmd, duplicatesCmd, seedCmd} {
		cmd.Flags().StringVar(&contentFlag, "content", "", "Shard content")
		cmd.Flags().StringVar(&contentFileFlag, "content-file", "", "File holding shard content (- for stdin)")
	}
	for _, cmd := range []*cobra.Command{validateCmd, metadataCmd, seedCmd} {
		cmd.Flags().StringVar(&metadataFlag, "metadata", "", "Shard metadata as JSON")
		cmd.Flags().StringVar(&metadataFileFlag, "metadata-file", "", "JSON or YAML metadata file")
	}

	validateCmd.Flags().BoolVar(&offlineFlag, "offline", false, "Skip duplicate checks (no store access)")
	validateCmd.Flags().BoolVar(&skipSimilarityFlag, "skip-similarity", false, "Skip the semantic similarity check")
	validateCmd.Flags().StringVar(&policyFlag, "similarity-policy", "", "advisory or blocking (default from config)")
	validateCmd.Flags().BoolVar(&jsonFlag, "json", false, "Print the verdict as JSON")

	duplicatesCmd.Flags().StringVar(&uniqueIDFlag, "unique-id", "", "Also check this unique_id for collisions")
	duplicatesCmd.Flags().StringVar(&groupIDFlag, "group-id", "", "Tenant scope (default: project_id)")
	duplicatesCmd.Flags().BoolVar(&skipSimilarityFlag, "skip-semantic", false, "Skip the semantic similarity check")
	duplicatesCmd.Flags().BoolVar(&jsonFlag, "json", false, "Print the report as JSON")

	metadataCmd.Flags().BoolVar(&strictFlag, "strict", false, "Treat advisory warnings as errors")
}

func runValidate(cmd *cobra.Command, args []string) error {
	content, err := readContent(contentFlag, contentFileFlag)
	if err != nil {
		return err
	}
	metadata, err := readMetadata(metadataFlag, metadataFileFlag)
	if err != nil {
		return err
	}
	var policy dedup.SimilarityPolicy
	if policyFlag != "" {
		if policy, err = dedup.ParsePolicy(policyFlag); err != nil {
			return err
		}
	}

	pipeline, _, _, closeFn, err := gatekeeper(offlineFlag)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := commandContext()
	defer cancel()

	result, err := pipeline.Validate(ctx, content, metadata, validation.Options{
		SkipDuplicates:   offlineFlag,
		SkipSimilarity:   skipSimilarityFlag,
		SimilarityPolicy: policy,
	})
	if err != nil {
		return err
	}
	logger.Debug("Validation finished",
		zap.Bool("valid", result.Valid),
		zap.Int("errors", len(result.Report.Errors)),
		zap.Int("warnings", len(result.Report.Warnings)))

	if err := printResult(cmd.OutOrStdout(), result, jsonFlag); err != nil {
		return err
	}
	if !result.Valid {
		return errRejected
	}
	return nil
}

func printResult(w io.Writer, result *validation.Result, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	style := verdictStyle(result.Valid, len(result.Report.Warnings))
	lines := strings.SplitN(result.Summary, "\n", 2)
	fmt.Fprintln(w, style.Render(lines[0]))
	if len(lines) > 1 {
		fmt.Fprintln(w, lines[1])
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("hash:   %s", result.Report.ContentHash)))
	fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("tokens: ~%d", result.Report.TokenCount)))
	fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("checks: %s", strings.Join(result.Report.ChecksPerformed, ", "))))
	return nil
}

func runDuplicates(cmd *cobra.Command, args []string) error {
	content, err := readContent(contentFlag, contentFileFlag)
	if err != nil {
		return err
	}

	st, closeFn, err := openStore()
	if err != nil {
		return err
	}
	defer closeFn()

	var engine embedding.EmbeddingEngine
	if !skipSimilarityFlag {
		if engine, err = buildEngine(); err != nil {
			logger.Warn("Embedding engine unavailable", zap.Error(err))
		}
	}

	groupID := groupIDFlag
	if groupID == "" {
		groupID = cfg.ProjectID
	}

	ctx, cancel := commandContext()
	defer cancel()

	report, err := buildDetector(st, engine).Check(ctx, dedup.Candidate{
		Content:  content,
		UniqueID: uniqueIDFlag,
		GroupID:  groupID,
	}, dedup.Options{SkipSimilarity: skipSimilarityFlag})
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if jsonFlag {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printDuplicates(w, report)
	}

	if report.HasHardDuplicate() {
		return errRejected
	}
	return nil
}

func printDuplicates(w io.Writer, report *dedup.Report) {
	fmt.Fprintln(w, headerStyle.Render("Duplicate check"))
	fmt.Fprintln(w, dimStyle.Render("hash: "+report.ContentHash))

	section := func(title string, matches []dedup.Match, style func(...string) string) {
		if len(matches) == 0 {
			return
		}
		fmt.Fprintln(w, style(fmt.Sprintf("%s (%d):", title, len(matches))))
		for _, m := range matches {
			line := fmt.Sprintf("  - %s id=%s unique_id=%s", m.Collection, m.PointID, m.UniqueID)
			if m.MatchType == dedup.MatchSimilar {
				line += fmt.Sprintf(" score=%.2f", m.Score)
			}
			fmt.Fprintln(w, line)
		}
	}
	section("Exact content matches", report.HashMatches, errorStyle.Render)
	section("unique_id collisions", report.IDCollisions, errorStyle.Render)
	section("Similar content", report.Similar, warnStyle.Render)

	for _, s := range report.Skipped {
		where := s.Collection
		if where == "" {
			where = "all collections"
		}
		fmt.Fprintln(w, warnStyle.Render(fmt.Sprintf("skipped %s for %s: %s", s.Check, where, s.Reason)))
	}

	if !report.HasHardDuplicate() && len(report.Similar) == 0 {
		fmt.Fprintln(w, passStyle.Render("No duplicates found"))
	}
}

func runMetadata(cmd *cobra.Command, args []string) error {
	metadata, err := readMetadata(metadataFlag, metadataFileFlag)
	if err != nil {
		return err
	}
	if err := validation.CheckPayloadSafety(metadata, cfg.Validation); err != nil {
		return err
	}

	errs, warnings := validation.ValidateMetadata(metadata)
	if strictFlag {
		errs = append(errs, warnings...)
		warnings = nil
	}

	w := cmd.OutOrStdout()
	printFindings(w, "Errors", errs, errorStyle.Render)
	printFindings(w, "Warnings", warnings, warnStyle.Render)
	if len(errs) > 0 {
		fmt.Fprintln(w, errorStyle.Render("METADATA INVALID"))
		return errRejected
	}
	fmt.Fprintln(w, passStyle.Render("METADATA VALID"))
	return nil
}

func printFindings(w io.Writer, title string, findings []types.Finding, style func(...string) string) {
	if len(findings) == 0 {
		return
	}
	fmt.Fprintln(w, style(title+":"))
	for _, f := range findings {
		fmt.Fprintf(w, "  - %s\n", f.String())
	}
}
