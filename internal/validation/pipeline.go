// Package validation is the pre-storage gatekeeper. It runs metadata and
// content checks, then duplicate detection, and produces a verdict.
package validation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"shardgate/internal/config"
	"shardgate/internal/dedup"
	"shardgate/internal/logging"
	"shardgate/internal/store"
	"shardgate/internal/types"
)

// Stage names, in the order they run. Duplicate stages use the names from
// the dedup package.
const (
	CheckPayload  = "payload_safety"
	CheckMetadata = "metadata_fields"
	CheckFileRefs = "file_references"
	CheckTokens   = "token_budget"
	CheckSnippets = "code_snippets"
	CheckQuality  = "content_quality"

	// CheckShard names findings from shard construction in Admit.
	CheckShard = "shard"
	// CheckDuplicates names the warning recorded when the store is down.
	CheckDuplicates = "duplicates"
)

// Options are per-call knobs.
type Options struct {
	// SkipDuplicates runs the pipeline offline.
	SkipDuplicates bool
	// SkipSimilarity avoids the embedding call.
	SkipSimilarity bool
	// SimilarityPolicy overrides the configured policy when set.
	SimilarityPolicy dedup.SimilarityPolicy
}

// Report is the structured detail of a verdict.
type Report struct {
	ContentHash     string          `json:"content_hash"`
	TokenCount      int             `json:"token_count"`
	ChecksPerformed []string        `json:"checks_performed"`
	Errors          []types.Finding `json:"errors"`
	Warnings        []types.Finding `json:"warnings"`
	Duplicates      *dedup.Report   `json:"duplicates,omitempty"`
}

// Result is the gatekeeper verdict.
type Result struct {
	Valid   bool   `json:"valid"`
	Summary string `json:"summary"`
	Report  Report `json:"report"`
}

// Pipeline runs the fixed check sequence. It holds no per-call state.
type Pipeline struct {
	cfg      config.ValidationConfig
	detector *dedup.Detector
	policy   dedup.SimilarityPolicy
}

// New builds a pipeline. A nil detector runs every call offline.
func New(cfg config.ValidationConfig, detector *dedup.Detector) *Pipeline {
	policy, err := dedup.ParsePolicy(cfg.SimilarityPolicy)
	if err != nil {
		logging.ValidationWarn("%v; using %s", err, dedup.PolicyAdvisory)
		policy = dedup.PolicyAdvisory
	}
	return &Pipeline{cfg: cfg, detector: detector, policy: policy}
}

// Validate checks content and metadata. The only errors returned are
// ErrUnsafePayload and the context's; every other problem is a finding.
func (p *Pipeline) Validate(ctx context.Context, content string, metadata map[string]interface{}, opts Options) (*Result, error) {
	if err := CheckPayloadSafety(metadata, p.cfg); err != nil {
		logging.ValidationWarn("Payload rejected: %v", err)
		logging.Audit().PayloadRejected(err)
		return nil, err
	}
	return p.run(ctx, content, metadata, opts)
}

// Admit constructs the shard before any lookup, then validates it. The
// shard is returned only on a passing verdict.
func (p *Pipeline) Admit(ctx context.Context, content string, metadata map[string]interface{}, opts Options) (*types.Shard, *Result, error) {
	if err := CheckPayloadSafety(metadata, p.cfg); err != nil {
		logging.Audit().PayloadRejected(err)
		return nil, nil, err
	}

	shard, err := types.NewShardFromMetadata(content, metadata)
	if err != nil {
		var f *types.Finding
		if !errors.As(err, &f) {
			return nil, nil, err
		}
		report := Report{
			ContentHash:     types.ContentHash(content),
			TokenCount:      types.EstimateTokens(content),
			ChecksPerformed: []string{CheckPayload, CheckShard},
			Errors:          []types.Finding{*f},
			Warnings:        []types.Finding{},
		}
		logging.Validation("Admit: shard rejected before lookup: %s", f)
		return nil, &Result{Valid: false, Summary: summarize(report.Errors, report.Warnings), Report: report}, nil
	}

	result, err := p.run(ctx, content, metadata, opts)
	if err != nil || !result.Valid {
		return nil, result, err
	}
	return shard, result, nil
}

func (p *Pipeline) run(ctx context.Context, content string, metadata map[string]interface{}, opts Options) (*Result, error) {
	start := time.Now()
	reqID := uuid.NewString()
	log := logging.WithRequestID(logging.CategoryValidation, reqID)
	audit := logging.AuditWithRequest(reqID)

	uniqueID := types.StringField(metadata, types.FieldUniqueID)
	memType, _ := types.ParseMemoryType(types.StringField(metadata, types.FieldType))
	log.WithField("unique_id", uniqueID).Debug("Validating %d chars as %q", len(content), memType)

	report := Report{
		ContentHash:     types.ContentHash(content),
		TokenCount:      types.EstimateTokens(content),
		ChecksPerformed: []string{CheckPayload},
		Errors:          []types.Finding{},
		Warnings:        []types.Finding{},
	}
	add := func(check string, errs, warnings []types.Finding) {
		report.ChecksPerformed = append(report.ChecksPerformed, check)
		report.Errors = append(report.Errors, errs...)
		report.Warnings = append(report.Warnings, warnings...)
		logging.ValidationDebug("%s: %d errors, %d warnings", check, len(errs), len(warnings))
	}

	errs, warnings := ValidateMetadata(metadata)
	add(CheckMetadata, errs, warnings)
	add(CheckFileRefs, CheckFileReferences(content, memType), nil)
	add(CheckTokens, CheckTokenBudget(content, memType, p.cfg.MaxTokensPerShard), nil)
	add(CheckSnippets, nil, CheckCodeSnippets(content, p.cfg.MaxCodeLines))
	errs, warnings = CheckContentQuality(content, p.cfg.MinContentLength, p.cfg.MaxContentLength)
	add(CheckQuality, errs, warnings)

	switch {
	case opts.SkipDuplicates || p.detector == nil:
		log.Debug("Duplicate checks skipped (offline)")
	case len(report.Errors) > 0:
		log.Debug("Duplicate checks skipped: %d hard errors already found", len(report.Errors))
	default:
		if err := p.checkDuplicates(ctx, content, metadata, opts, &report, audit); err != nil {
			return nil, err
		}
	}

	result := &Result{
		Valid:   len(report.Errors) == 0,
		Summary: summarize(report.Errors, report.Warnings),
		Report:  report,
	}

	elapsed := time.Since(start)
	audit.Verdict(uniqueID, result.Valid, len(report.Errors), len(report.Warnings), elapsed.Milliseconds())
	logging.Get(logging.CategoryValidation).StructuredLog("info", "verdict", map[string]interface{}{
		"request_id": reqID,
		"unique_id":  uniqueID,
		"valid":      result.Valid,
		"errors":     len(report.Errors),
		"warnings":   len(report.Warnings),
		"elapsed_ms": elapsed.Milliseconds(),
	})
	return result, nil
}

func (p *Pipeline) checkDuplicates(ctx context.Context, content string, metadata map[string]interface{}, opts Options, report *Report, audit *logging.AuditLogger) error {
	if hc, ok := p.detector.Store().(store.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			logging.ValidationWarn("Vector store unavailable, skipping duplicate checks: %v", err)
			audit.CollaboratorUnavailable(CheckDuplicates, "", err)
			report.Warnings = append(report.Warnings, types.NewFinding(types.CollaboratorUnavailable, CheckDuplicates, "",
				"vector store unavailable (%v); duplicate checks skipped", err))
			return nil
		}
	}

	uniqueID := types.StringField(metadata, types.FieldUniqueID)
	dup, err := p.detector.Check(ctx, dedup.Candidate{
		Content:  content,
		UniqueID: uniqueID,
		GroupID:  types.StringField(metadata, types.FieldGroupID),
	}, dedup.Options{SkipSimilarity: opts.SkipSimilarity})
	if err != nil {
		return fmt.Errorf("duplicate check: %w", err)
	}

	policy := p.policy
	if opts.SimilarityPolicy != "" {
		policy = opts.SimilarityPolicy
	}
	errs, warnings := dup.Findings(policy)

	report.Duplicates = dup
	report.ChecksPerformed = append(report.ChecksPerformed, dup.ChecksPerformed...)
	report.Errors = append(report.Errors, errs...)
	report.Warnings = append(report.Warnings, warnings...)

	for _, matches := range [][]dedup.Match{dup.HashMatches, dup.IDCollisions, dup.Similar} {
		for _, m := range matches {
			audit.Duplicate(uniqueID, m.Collection, string(m.MatchType), m.PointID, m.Score)
		}
	}
	for _, s := range dup.Skipped {
		audit.CollaboratorUnavailable(s.Check, s.Collection, errors.New(s.Reason))
	}
	return nil
}

// summarize renders the human-readable verdict.
func summarize(errs, warnings []types.Finding) string {
	var b strings.Builder
	bullets := func(findings []types.Finding) {
		for i, f := range findings {
			if i > 0 {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "  - %s", f.String())
		}
	}

	switch {
	case len(errs) > 0:
		b.WriteString("VALIDATION FAILED:\n")
		bullets(errs)
		if len(warnings) > 0 {
			b.WriteString("\n\nWarnings:\n")
			bullets(warnings)
		}
	case len(warnings) > 0:
		b.WriteString("VALIDATION PASSED with warnings:\n")
		bullets(warnings)
	default:
		b.WriteString("VALIDATION PASSED")
	}
	return b.String()
}
