package cmd

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/dayuer/charbot-go/internal/config"
	"github.com/dayuer/charbot-go/internal/mappings"
	"github.com/dayuer/charbot-go/internal/redis"
	"github.com/dayuer/charbot-go/internal/resolver"
	"github.com/dayuer/charbot-go/internal/textnorm"
	"github.com/dayuer/charbot-go/internal/utils"
)

var mappingsCmd = &cobra.Command{
	Use:   "mappings",
	Short: "Inspect and edit the name mappings document",
}

var mappingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List static and learned mappings",
	Args:  cobra.NoArgs,
	RunE:  runMappingsList,
}

var mappingsAddCmd = &cobra.Command{
	Use:   "add <token> <display name>",
	Short: "Add or replace a static mapping",
	Args:  cobra.ExactArgs(2),
	RunE:  runMappingsAdd,
}

var mappingsRemoveCmd = &cobra.Command{
	Use:     "remove <token>",
	Aliases: []string{"rm"},
	Short:   "Remove a static mapping",
	Args:    cobra.ExactArgs(1),
	RunE:    runMappingsRemove,
}

func init() {
	mappingsCmd.AddCommand(mappingsListCmd, mappingsAddCmd, mappingsRemoveCmd)
	rootCmd.AddCommand(mappingsCmd)
}

func openStore() (*mappings.Store, config.Config, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, cfg, err
	}
	store := mappings.NewStore(cfg.Storage.MappingsFile, logger)
	if err := store.Load(); err != nil {
		return nil, cfg, fmt.Errorf("reading %s: %w", store.Path(), err)
	}
	return store, cfg, nil
}

// evictCachedName drops the shared cache entry for token so the next lookup
// goes back to the services. It reports whether an eviction happened.
func evictCachedName(cmd *cobra.Command, cfg config.Config, token string) bool {
	if cfg.Redis.URL == "" {
		return false
	}
	if !redis.Init(redis.Config{URL: cfg.Redis.URL, Password: cfg.Redis.Password, DB: cfg.Redis.DB}, logger) {
		return false
	}
	defer redis.Close()
	return resolver.RedisCache{}.Delete(cmd.Context(), textnorm.Normalize(token))
}

func runMappingsList(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	doc := store.Snapshot()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n", store.Path())
	printTable(out, "static", doc.StaticMappings)
	printTable(out, "learned", doc.LearnedMappings)
	return nil
}

func printTable(out io.Writer, title string, table map[string]mappings.Entry) {
	fmt.Fprintf(out, "\n%s (%d)\n", title, len(table))
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		e := table[k]
		fmt.Fprintf(out, "  %-24s %-32s %.2f\n",
			utils.TruncateString(k, 24, ""), utils.TruncateString(e.DisplayName, 32, ""), e.Confidence)
	}
}

func runMappingsAdd(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	store.PutStatic(args[0], args[1])
	if err := store.Save(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ %s → %s\n", args[0], args[1])
	return nil
}

func runMappingsRemove(cmd *cobra.Command, args []string) error {
	store, cfg, err := openStore()
	if err != nil {
		return err
	}
	if !store.RemoveStatic(args[0]) {
		return fmt.Errorf("no static mapping for %q", args[0])
	}
	if err := store.Save(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ removed %s\n", args[0])
	if evictCachedName(cmd, cfg, args[0]) {
		fmt.Fprintln(cmd.OutOrStdout(), "  cached name evicted")
	}
	return nil
}
