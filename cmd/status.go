package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dayuer/charbot-go/internal/config"
	"github.com/dayuer/charbot-go/internal/mappings"
	"github.com/dayuer/charbot-go/internal/session"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration, mappings and the saved session",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, path, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "charbot status")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Config:   %s%s\n", path, missingMark(path))
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(out, "          invalid: %v\n", err)
	}

	fmt.Fprintln(out, "\nChannel:")
	if wa := cfg.Channel.WhatsApp; wa != nil && wa.BridgeURL != "" {
		fmt.Fprintf(out, "  WhatsApp bridge: %s\n", wa.BridgeURL)
		if len(wa.AllowFrom) > 0 {
			fmt.Fprintf(out, "  Allow from: %v\n", wa.AllowFrom)
		}
	} else {
		fmt.Fprintln(out, "  WhatsApp bridge: not configured")
	}

	fmt.Fprintln(out, "\nSession:")
	fmt.Fprintf(out, "  Owners: %v (self is owner: %v)\n", cfg.Session.Owners, cfg.Session.SelfIsOwner)
	snapPath := filepath.Join(config.DataDir(), "session.json")
	if snap, err := session.LoadSnapshot(snapPath); err != nil {
		fmt.Fprintf(out, "  Saved state: unreadable (%v)\n", err)
	} else {
		st := snap.State
		fmt.Fprintf(out, "  Saved state: %s", st.Status())
		if st.BoundGroupID != "" {
			fmt.Fprintf(out, " on %s (%s)", st.BoundGroupName, st.BoundGroupID)
		}
		fmt.Fprintln(out)
	}

	fmt.Fprintln(out, "\nMappings:")
	store := mappings.NewStore(cfg.Storage.MappingsFile, logger)
	if err := store.Load(); err != nil {
		fmt.Fprintf(out, "  %s: unreadable (%v)\n", store.Path(), err)
	} else {
		static, learned := store.Counts()
		fmt.Fprintf(out, "  %s%s\n  static: %d, learned: %d\n", store.Path(), missingMark(store.Path()), static, learned)
	}

	fmt.Fprintln(out, "\nName resolution:")
	if !cfg.Pipeline.ResolveNames {
		fmt.Fprintln(out, "  off (marked words are echoed as written)")
		return nil
	}
	specs, err := config.LoadServices(cfg.Resolver.ServicesFile)
	if err != nil {
		fmt.Fprintf(out, "  %s: %v\n", cfg.Resolver.ServicesFile, err)
		return nil
	}
	if len(specs) == 0 {
		fmt.Fprintln(out, "  on, mappings only (no external services)")
	}
	for _, s := range specs {
		fmt.Fprintf(out, "  %s: %s\n", s.Name, s.URL)
	}
	return nil
}

func missingMark(path string) string {
	if _, err := os.Stat(path); err != nil {
		return " (missing)"
	}
	return ""
}
