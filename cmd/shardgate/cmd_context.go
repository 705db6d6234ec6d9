package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"shardgate/internal/retrieval"
	"shardgate/internal/store"
	"shardgate/internal/types"
	"shardgate/internal/validation"
)

var (
	// context
	agentFlag      string
	queryFlag      string
	collectionFlag string
	minScoreFlag   float64
	typesFlag      []string
)

// contextCmd loads budgeted memory context for an agent
var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Load relevant memories for an agent within its token budget",
	Long: `Searches one collection for shards relevant to --query, keeps the
best-ranked results that fit the agent's token budget, and prints them as
prompt-ready context blocks.

Example:
  shardgate context --agent dev --query "JWT refresh clock skew"`,
	RunE: runContext,
}

// seedCmd validates a shard and stores it in the configured store
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Validate a shard and store it when it passes",
	RunE:  runSeed,
}

func init() {
	contextCmd.Flags().StringVar(&agentFlag, "agent", "", "Agent identity (required)")
	contextCmd.Flags().StringVar(&queryFlag, "query", "", "Search text (required)")
	contextCmd.Flags().StringVar(&collectionFlag, "collection", string(types.CollectionKnowledge), "knowledge, best_practices or agent_memory")
	contextCmd.Flags().Float64Var(&minScoreFlag, "min-score", 0, "Drop results scoring below this")
	contextCmd.Flags().StringSliceVar(&typesFlag, "type", nil, "Restrict to memory types")
	contextCmd.Flags().StringVar(&groupIDFlag, "group-id", "", "Tenant scope (default: project_id)")
	contextCmd.MarkFlagRequired("agent")
	contextCmd.MarkFlagRequired("query")
}

func runContext(cmd *cobra.Command, args []string) error {
	if _, ok := types.ParseAgent(agentFlag); !ok {
		logger.Warn("Unknown agent; default budget applies", zap.String("agent", agentFlag))
	}

	collection := types.Collection(collectionFlag)
	switch collection {
	case types.CollectionKnowledge, types.CollectionBestPractices, types.CollectionAgentMemory:
	default:
		return fmt.Errorf("unknown collection %q (use knowledge, best_practices or agent_memory)", collectionFlag)
	}

	var memTypes []types.MemoryType
	for _, raw := range typesFlag {
		t, ok := types.ParseMemoryType(raw)
		if !ok {
			return fmt.Errorf("unknown memory type %q", raw)
		}
		memTypes = append(memTypes, t)
	}

	st, closeFn, err := openStore()
	if err != nil {
		return err
	}
	defer closeFn()

	engine, err := buildEngine()
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	out, sel, err := buildSearcher(st, engine).LoadContext(ctx, agentFlag, retrieval.Query{
		Text:       queryFlag,
		Collection: collection,
		GroupID:    groupIDFlag,
		Types:      memTypes,
	}, minScoreFlag)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if out == "" {
		fmt.Fprintln(w, dimStyle.Render("No relevant memories found."))
		return nil
	}
	fmt.Fprintln(w, out)
	fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("%d memories, ~%d/%d tokens", len(sel.Items), sel.TotalTokens, sel.Budget)))
	return nil
}

func runSeed(cmd *cobra.Command, args []string) error {
	content, err := readContent(contentFlag, contentFileFlag)
	if err != nil {
		return err
	}
	metadata, err := readMetadata(metadataFlag, metadataFileFlag)
	if err != nil {
		return err
	}

	pipeline, st, engine, closeFn, err := gatekeeper(false)
	if err != nil {
		return err
	}
	defer closeFn()

	writer, ok := st.(store.Writer)
	if !ok {
		return fmt.Errorf("%s store does not accept writes", cfg.Store.Backend)
	}

	ctx, cancel := commandContext()
	defer cancel()

	shard, result, err := pipeline.Admit(ctx, content, metadata, validation.Options{})
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if err := printResult(w, result, false); err != nil {
		return err
	}
	if shard == nil {
		return errRejected
	}

	var vector []float32
	dims := 0
	if engine != nil {
		if vector, err = engine.Embed(ctx, shard.Content); err != nil {
			return fmt.Errorf("failed to embed shard: %w", err)
		}
		dims = len(vector)
	}

	collection := cfg.Store.Collections.ForType(shard.Type)
	if err := writer.EnsureCollection(ctx, collection, dims); err != nil {
		return fmt.Errorf("failed to prepare %s: %w", collection, err)
	}
	if err := writer.Upsert(ctx, collection, []store.Point{{
		ID:      shard.ID,
		Payload: shard.Payload(),
		Vector:  vector,
	}}); err != nil {
		return fmt.Errorf("failed to store shard: %w", err)
	}

	logger.Info("Shard stored",
		zap.String("id", shard.ID),
		zap.String("unique_id", shard.UniqueID),
		zap.String("collection", collection))
	fmt.Fprintln(w, passStyle.Render(fmt.Sprintf("Stored %s in %s (id %s)", shard.UniqueID, collection, shard.ID)))
	return nil
}
