package validation

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shardgate/internal/config"
	"shardgate/internal/dedup"
	"shardgate/internal/types"
)

var offlineChecks = []string{CheckPayload, CheckMetadata, CheckFileRefs, CheckTokens, CheckSnippets, CheckQuality}

func TestValidate_OfflinePass(t *testing.T) {
	p := New(config.DefaultValidationConfig(), nil)

	result, err := p.Validate(context.Background(), validContent, validMetadata(), Options{})
	require.NoError(t, err)

	assert.True(t, result.Valid)
	assert.Equal(t, "VALIDATION PASSED", result.Summary)
	assert.Equal(t, offlineChecks, result.Report.ChecksPerformed)
	assert.Equal(t, types.ContentHash(validContent), result.Report.ContentHash)
	assert.Equal(t, 69, result.Report.TokenCount)
	assert.Empty(t, result.Report.Errors)
	assert.Empty(t, result.Report.Warnings)
	assert.Nil(t, result.Report.Duplicates)
}

func TestValidate_MissingComponentAndAgent(t *testing.T) {
	p := New(config.DefaultValidationConfig(), nil)
	md := validMetadata()
	delete(md, "component")
	delete(md, "agent")

	result, err := p.Validate(context.Background(), validContent, md, Options{})
	require.NoError(t, err)

	assert.False(t, result.Valid)
	assert.Equal(t, []string{types.FieldComponent, types.FieldAgent}, fieldsOf(result.Report.Errors))
	assert.Equal(t, []types.ErrorKind{types.SchemaError, types.SchemaError}, kindsOf(result.Report.Errors))
	assert.True(t, strings.HasPrefix(result.Summary, "VALIDATION FAILED:\n  - SchemaError [component]"))
}

func TestValidate_ActionableTypeWithoutFileReference(t *testing.T) {
	p := New(config.DefaultValidationConfig(), nil)
	content := strings.Replace(validContent, " in auth/token.go:42-57", " in the token validator", 1)

	result, err := p.Validate(context.Background(), content, validMetadata(), Options{})
	require.NoError(t, err)

	assert.False(t, result.Valid)
	require.Len(t, result.Report.Errors, 1)
	assert.Equal(t, types.FormatError, result.Report.Errors[0].Kind)
	assert.Equal(t, CheckFileRefs, result.Report.Errors[0].Check)
	assert.Contains(t, result.Report.Errors[0].Message, "file.py:89-234")

	// The same content is fine for a type outside the actionable set.
	md := validMetadata()
	md["type"] = "best_practice"
	md["unique_id"] = "bp-jwt-leeway"
	result, err = p.Validate(context.Background(), content, md, Options{})
	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestValidate_IdenticalContentDifferentUniqueID(t *testing.T) {
	p := New(config.DefaultValidationConfig(), newDetector(seededStore(t), []float32{0, 1}))

	result, err := p.Validate(context.Background(), validContent, validMetadata(), Options{})
	require.NoError(t, err)

	assert.False(t, result.Valid)
	require.Len(t, result.Report.Errors, 1)
	assert.Equal(t, types.DuplicateError, result.Report.Errors[0].Kind)
	assert.Equal(t, dedup.CheckHash, result.Report.Errors[0].Check)
	assert.Contains(t, result.Report.Errors[0].Message, "error-jwt-skew-original")

	// Similarity is not attempted once the hash matched.
	assert.Equal(t, append(append([]string{}, offlineChecks...), dedup.CheckHash, dedup.CheckUniqueID),
		result.Report.ChecksPerformed)
	require.NotNil(t, result.Report.Duplicates)
	assert.Empty(t, result.Report.Duplicates.Similar)
}

func TestValidate_UniqueIDCollision(t *testing.T) {
	p := New(config.DefaultValidationConfig(), newDetector(seededStore(t), []float32{0.6, -0.8}))
	md := validMetadata()
	md["unique_id"] = "bp-table-driven-tests"
	md["type"] = "best_practice"
	content := strings.Replace(validContent, "thirty", "forty", 1)

	result, err := p.Validate(context.Background(), content, md, Options{})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	require.Len(t, result.Report.Errors, 1)
	assert.Equal(t, dedup.CheckUniqueID, result.Report.Errors[0].Check)
	assert.Contains(t, result.Report.ChecksPerformed, dedup.CheckSimilar)
}

func TestValidate_SimilarityPolicy(t *testing.T) {
	content := strings.Replace(validContent, "thirty", "forty", 1)

	t.Run("advisory by default", func(t *testing.T) {
		p := New(config.DefaultValidationConfig(), newDetector(seededStore(t), []float32{1, 0}))
		result, err := p.Validate(context.Background(), content, validMetadata(), Options{})
		require.NoError(t, err)
		assert.True(t, result.Valid)
		require.Len(t, result.Report.Warnings, 1)
		assert.Equal(t, types.Advisory, result.Report.Warnings[0].Kind)
		assert.True(t, strings.HasPrefix(result.Summary, "VALIDATION PASSED with warnings:\n"))
	})

	t.Run("blocking per call", func(t *testing.T) {
		p := New(config.DefaultValidationConfig(), newDetector(seededStore(t), []float32{1, 0}))
		result, err := p.Validate(context.Background(), content, validMetadata(), Options{SimilarityPolicy: dedup.PolicyBlocking})
		require.NoError(t, err)
		assert.False(t, result.Valid)
		require.Len(t, result.Report.Errors, 1)
		assert.Equal(t, dedup.CheckSimilar, result.Report.Errors[0].Check)
	})

	t.Run("blocking from config", func(t *testing.T) {
		cfg := config.DefaultValidationConfig()
		cfg.SimilarityPolicy = "blocking"
		p := New(cfg, newDetector(seededStore(t), []float32{1, 0}))
		result, err := p.Validate(context.Background(), content, validMetadata(), Options{})
		require.NoError(t, err)
		assert.False(t, result.Valid)
	})

	t.Run("skip similarity", func(t *testing.T) {
		p := New(config.DefaultValidationConfig(), newDetector(seededStore(t), []float32{1, 0}))
		result, err := p.Validate(context.Background(), content, validMetadata(), Options{SkipSimilarity: true})
		require.NoError(t, err)
		assert.True(t, result.Valid)
		assert.NotContains(t, result.Report.ChecksPerformed, dedup.CheckSimilar)
	})
}

func TestValidate_StoreUnreachable(t *testing.T) {
	p := New(config.DefaultValidationConfig(), newDetector(downStore{seededStore(t)}, []float32{1, 0}))

	result, err := p.Validate(context.Background(), validContent, validMetadata(), Options{})
	require.NoError(t, err)

	// The verdict is produced, the duplicate stage is reported as unavailable
	// and never counted as a negative.
	assert.True(t, result.Valid)
	require.Len(t, result.Report.Warnings, 1)
	assert.Equal(t, types.CollaboratorUnavailable, result.Report.Warnings[0].Kind)
	assert.Contains(t, result.Report.Warnings[0].Message, "connection refused")
	assert.Equal(t, offlineChecks, result.Report.ChecksPerformed)
	assert.Contains(t, result.Summary, "VALIDATION PASSED with warnings:")
}

func TestValidate_DuplicatesSkippedOnHardErrors(t *testing.T) {
	engine := &fakeEngine{vec: []float32{1, 0}}
	cfg := dedup.DefaultConfig()
	cfg.Collections = collectionNames.All()
	p := New(config.DefaultValidationConfig(), dedup.New(seededStore(t), engine, cfg))

	md := validMetadata()
	md["importance"] = "urgent"
	result, err := p.Validate(context.Background(), validContent, md, Options{})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, offlineChecks, result.Report.ChecksPerformed)
	assert.Nil(t, result.Report.Duplicates)
}

func TestValidate_UnsafePayload(t *testing.T) {
	cfg := config.DefaultValidationConfig()
	cfg.MaxMetadataDepth = 5
	cfg.MaxMetadataBytes = 2048
	p := New(cfg, nil)

	deep := validMetadata()
	node := deep
	for i := 0; i < 10; i++ {
		child := map[string]interface{}{}
		node["nested"] = child
		node = child
	}

	big := validMetadata()
	big["notes"] = strings.Repeat("x", 4096)

	odd := validMetadata()
	odd["callback"] = make(chan int)

	for name, md := range map[string]map[string]interface{}{"deep": deep, "big": big, "unserializable": odd} {
		t.Run(name, func(t *testing.T) {
			result, err := p.Validate(context.Background(), validContent, md, Options{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrUnsafePayload))
			assert.Nil(t, result)
		})
	}
}

func TestValidate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(config.DefaultValidationConfig(), newDetector(seededStore(t), []float32{1, 0}))
	_, err := p.Validate(ctx, validContent, validMetadata(), Options{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestValidate_ReportJSON(t *testing.T) {
	p := New(config.DefaultValidationConfig(), nil)
	result, err := p.Validate(context.Background(), validContent, validMetadata(), Options{})
	require.NoError(t, err)

	data, err := json.Marshal(result.Report)
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	for _, key := range []string{"content_hash", "token_count", "checks_performed", "errors", "warnings"} {
		assert.Contains(t, decoded, key)
	}
	assert.Equal(t, []interface{}{}, decoded["errors"])
}

func TestAdmit(t *testing.T) {
	p := New(config.DefaultValidationConfig(), nil)

	t.Run("pass returns shard", func(t *testing.T) {
		shard, result, err := p.Admit(context.Background(), validContent, validMetadata(), Options{})
		require.NoError(t, err)
		require.True(t, result.Valid)
		require.NotNil(t, shard)
		assert.Equal(t, types.TypeErrorPattern, shard.Type)
		assert.Equal(t, result.Report.ContentHash, shard.ContentHash)
	})

	t.Run("token bounds fail before lookup", func(t *testing.T) {
		detector := newDetector(downStore{seededStore(t)}, []float32{1, 0})
		p := New(config.DefaultValidationConfig(), detector)
		shard, result, err := p.Admit(context.Background(), "too short: auth/token.go:1", validMetadata(), Options{})
		require.NoError(t, err)
		assert.Nil(t, shard)
		assert.False(t, result.Valid)
		assert.Equal(t, []string{CheckPayload, CheckShard}, result.Report.ChecksPerformed)
		require.Len(t, result.Report.Errors, 1)
		assert.Equal(t, types.RangeError, result.Report.Errors[0].Kind)
	})

	t.Run("failing verdict returns no shard", func(t *testing.T) {
		md := validMetadata()
		md["component"] = "a"
		shard, result, err := p.Admit(context.Background(), validContent, md, Options{})
		require.NoError(t, err)
		assert.Nil(t, shard)
		assert.False(t, result.Valid)
	})
}

func TestSummarize(t *testing.T) {
	errs := []types.Finding{types.NewFinding(types.RangeError, CheckTokens, "content", "too big")}
	warnings := []types.Finding{types.NewFinding(types.Advisory, CheckQuality, "content", "has TODO")}

	assert.Equal(t, "VALIDATION PASSED", summarize(nil, nil))
	assert.Equal(t, "VALIDATION PASSED with warnings:\n  - Advisory [content]: has TODO", summarize(nil, warnings))
	assert.Equal(t,
		"VALIDATION FAILED:\n  - RangeError [content]: too big\n\nWarnings:\n  - Advisory [content]: has TODO",
		summarize(errs, warnings))
}
