package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/driftline/mnemo/internal/config"
	"github.com/driftline/mnemo/internal/explore"
	"github.com/driftline/mnemo/internal/memory"
	"github.com/driftline/mnemo/internal/search"
	"github.com/driftline/mnemo/internal/store"
)

// openStores opens the database and the vector index for CLI commands.
func openStores() (*store.DB, *search.ChromemIndex, error) {
	db, idx, _, err := openStoresWithConfig()
	return db, idx, err
}

func openStoresWithConfig() (*store.DB, *search.ChromemIndex, config.Config, error) {
	cfgPath := os.Getenv("MNEMO_CONFIG")
	if cfgPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfgPath = filepath.Join(home, ".mnemo", "config.yaml")
		}
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, cfg, err
	}

	dbPath := os.Getenv("MNEMO_DB")
	if dbPath == "" {
		dbPath = cfg.Database.Path
	}
	if dbPath == "" {
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, nil, cfg, err
		}
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, nil, cfg, fmt.Errorf("open db: %w", err)
	}

	vecPath := cfg.Search.Path
	if vecPath == "" {
		vecPath = filepath.Join(filepath.Dir(dbPath), "vectors")
	}
	idx, err := search.Open(vecPath, db, search.NewHashEmbedder(cfg.Search.Dimensions))
	if err != nil {
		db.Close()
		return nil, nil, cfg, fmt.Errorf("open index: %w", err)
	}
	return db, idx, cfg, nil
}

func openManager() (*store.DB, *memory.Manager, error) {
	db, idx, cfg, err := openStoresWithConfig()
	if err != nil {
		return nil, nil, err
	}
	mgr := memory.NewManager(idx, db.SharedState(), memory.Options{
		MaxTurns:         cfg.Memory.MaxTurns,
		MaxRetrieved:     cfg.Memory.MaxRetrieved,
		ConsolidateEvery: cfg.Memory.ConsolidateEvery,
	})
	return db, mgr, nil
}

// --- stats command ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show memory and exploration statistics",
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	db, mgr, err := openManager()
	if err != nil {
		return err
	}
	defer db.Close()

	s := mgr.GetStats()
	fmt.Println("Memory tiers:")
	fmt.Printf("  episodic:  %d\n", s.EpisodicCount)
	fmt.Printf("  semantic:  %d\n", s.SemanticCount)
	fmt.Printf("  longterm:  %d\n", s.LongTermCount)

	ts, err := explore.NewTracker(db).Stats()
	if err != nil {
		return err
	}
	fmt.Println("Exploration threads:")
	fmt.Printf("  total: %d (active %d, dormant %d, concluded %d)\n",
		ts.TotalThreads, ts.ActiveThreads, ts.DormantThreads, ts.ConcludedThreads)
	fmt.Printf("  links: %d, mean depth %.1f, branched %d\n",
		ts.TotalLinks, ts.AverageDepth, ts.BranchedThreads)
	return nil
}

// --- recall command ---

var (
	recallLimit int
	recallTier  string
)

var recallCmd = &cobra.Command{
	Use:   "recall [query]",
	Short: "Recall memories by similarity",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRecall,
}

func runRecall(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")

	db, mgr, err := openManager()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	opts := memory.RecallOpts{}
	if recallTier != "" {
		opts.Tiers = []memory.Tier{memory.Tier(recallTier)}
	}
	entries, err := mgr.Recall(ctx, query, recallLimit, opts)
	if err != nil {
		return fmt.Errorf("recall: %w", err)
	}
	if len(entries) == 0 {
		fmt.Println("No memories found.")
		return nil
	}

	for i, e := range entries {
		fmt.Printf("%d. [%.2f] [%s] %s\n", i+1, e.EffectiveImportance(), e.Tier, e.Content)
		if len(e.Tags) > 0 {
			fmt.Printf("   tags: %s\n", strings.Join(e.Tags, ", "))
		}
	}
	return nil
}

// --- remember command ---

var (
	rememberTier       string
	rememberImportance float64
	rememberTags       []string
)

var rememberCmd = &cobra.Command{
	Use:   "remember [content]",
	Short: "Store a memory",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRemember,
}

func runRemember(cmd *cobra.Command, args []string) error {
	content := strings.Join(args, " ")

	db, mgr, err := openManager()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	entry, err := mgr.Remember(ctx, content, memory.Tier(rememberTier), memory.RememberOptions{
		Importance: rememberImportance,
		Tags:       rememberTags,
		Source:     "cli",
	})
	if err != nil {
		return fmt.Errorf("remember: %w", err)
	}
	fmt.Printf("Stored %s in %s tier.\n", entry.ID, entry.Tier)
	return nil
}

// --- threads command ---

var threadsStatus string

var threadsCmd = &cobra.Command{
	Use:   "threads [search-text]",
	Short: "List or search exploration threads",
	RunE:  runThreads,
}

func runThreads(cmd *cobra.Command, args []string) error {
	db, _, err := openStores()
	if err != nil {
		return err
	}
	defer db.Close()

	tracker := explore.NewTracker(db)

	var threads []store.Thread
	if len(args) > 0 {
		threads, err = tracker.Search(strings.Join(args, " "), 20)
	} else {
		threads, err = tracker.List(threadsStatus, 20)
	}
	if err != nil {
		return err
	}
	if len(threads) == 0 {
		fmt.Println("No threads found.")
		return nil
	}

	for _, th := range threads {
		updated := time.UnixMilli(th.UpdatedAt).Format("2006-01-02")
		fmt.Printf("%-10s %-30s depth %-3d %s  %s\n", th.Status, th.Name, th.Depth, updated, th.Question)
	}
	return nil
}

// --- consolidate command ---

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Promote salient episodes into long-term memory",
	RunE:  runConsolidate,
}

func runConsolidate(cmd *cobra.Command, args []string) error {
	db, mgr, err := openManager()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	result, err := mgr.Consolidate(ctx)
	if err != nil {
		return fmt.Errorf("consolidate: %w", err)
	}
	fmt.Printf("Considered %d salient episodes.\n", result.SourceEpisodes)
	if result.PatternSummary != nil {
		fmt.Printf("Pattern summary: %s\n", result.PatternSummary.Content)
	}
	if result.RelationshipEssence != nil {
		fmt.Printf("Relationship essence: %s\n", result.RelationshipEssence.Content)
	}
	return nil
}

func init() {
	recallCmd.Flags().IntVarP(&recallLimit, "limit", "n", 5, "Maximum number of results")
	recallCmd.Flags().StringVarP(&recallTier, "tier", "t", "", "Restrict to one tier (episodic, semantic, longterm)")

	rememberCmd.Flags().StringVarP(&rememberTier, "tier", "t", "semantic", "Tier to store into")
	rememberCmd.Flags().Float64VarP(&rememberImportance, "importance", "i", 0, "Importance (0..1, 0 = tier default)")
	rememberCmd.Flags().StringSliceVar(&rememberTags, "tag", nil, "Tags to attach (repeatable)")

	threadsCmd.Flags().StringVarP(&threadsStatus, "status", "s", "", "Filter by status (active, dormant, concluded)")
}
