package validation

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"shardgate/internal/budget"
	"shardgate/internal/config"
	"shardgate/internal/types"
)

// fileReference matches "path/file.ext:line" or "path/file.ext:start-end".
var fileReference = regexp.MustCompile(`[a-zA-Z0-9_/\-\.]+\.(py|md|yaml|yml|sql|sh|js|ts|tsx|json|go|toml):\d+(?:-\d+)?`)

// codeBlock matches fenced blocks and inline code spans.
var codeBlock = regexp.MustCompile("```[\\s\\S]*?```|`[^`]+`")

var placeholders = []string{"TODO", "FIXME", "TBD", "[INSERT", "[PLACEHOLDER"}

// ValidateContent runs every content check for a shard of memType.
func ValidateContent(content string, memType types.MemoryType, cfg config.ValidationConfig) (errs, warnings []types.Finding) {
	errs = append(errs, CheckFileReferences(content, memType)...)
	errs = append(errs, CheckTokenBudget(content, memType, cfg.MaxTokensPerShard)...)
	warnings = append(warnings, CheckCodeSnippets(content, cfg.MaxCodeLines)...)
	qErrs, qWarnings := CheckContentQuality(content, cfg.MinContentLength, cfg.MaxContentLength)
	errs = append(errs, qErrs...)
	warnings = append(warnings, qWarnings...)
	return errs, warnings
}

// CheckFileReferences requires at least one file:line reference for
// actionable types. Other types are exempt.
func CheckFileReferences(content string, memType types.MemoryType) []types.Finding {
	if !memType.RequiresFileReference() || fileReference.MatchString(content) {
		return nil
	}
	return []types.Finding{types.NewFinding(types.FormatError, CheckFileRefs, types.FieldContent,
		"missing file:line reference; type %s requires format src/path/file.py:89-234", memType)}
}

// FileReferences returns every file:line reference in content.
func FileReferences(content string) []string {
	return fileReference.FindAllString(content, -1)
}

// CheckTokenBudget rejects content above the ingestion ceiling for memType.
func CheckTokenBudget(content string, memType types.MemoryType, maxTokensPerShard int) []types.Finding {
	tokens := types.EstimateTokens(content)
	ceiling := budget.ShardCeiling(memType, maxTokensPerShard)
	if tokens <= ceiling {
		return nil
	}
	return []types.Finding{types.NewFinding(types.RangeError, CheckTokens, types.FieldContent,
		"content exceeds max tokens per shard: %d > %d; split into multiple shards", tokens, ceiling)}
}

// CheckCodeSnippets warns about code blocks longer than maxLines non-blank
// lines.
func CheckCodeSnippets(content string, maxLines int) []types.Finding {
	var warnings []types.Finding
	for _, block := range codeBlock.FindAllString(content, -1) {
		lines := 0
		for _, line := range strings.Split(block, "\n") {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" || strings.HasPrefix(trimmed, "```") {
				continue
			}
			lines++
		}
		if lines > maxLines {
			warnings = append(warnings, types.NewFinding(types.Advisory, CheckSnippets, types.FieldContent,
				"code snippet has %d lines; keep snippets to %d lines or link to the full file", lines, maxLines))
		}
	}
	return warnings
}

// CheckContentQuality enforces character-length limits and flags
// placeholder text. Short content and placeholders are warnings; content
// above the maximum must be split.
func CheckContentQuality(content string, minLength, maxLength int) (errs, warnings []types.Finding) {
	length := utf8.RuneCountInString(content)
	if length < minLength {
		warnings = append(warnings, types.NewFinding(types.Advisory, CheckQuality, types.FieldContent,
			"content too short (%d chars); minimum %d chars for meaningful knowledge", length, minLength))
	}
	if length > maxLength {
		errs = append(errs, types.NewFinding(types.RangeError, CheckQuality, types.FieldContent,
			"content too long (%d chars); maximum %d chars, split into multiple shards", length, maxLength))
	}

	upper := strings.ToUpper(content)
	for _, p := range placeholders {
		if strings.Contains(upper, p) {
			warnings = append(warnings, types.NewFinding(types.Advisory, CheckQuality, types.FieldContent,
				"content contains placeholder text %q", p))
		}
	}
	return errs, warnings
}
