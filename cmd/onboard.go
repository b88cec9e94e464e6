package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dayuer/charbot-go/internal/config"
	"github.com/dayuer/charbot-go/internal/mappings"
	"github.com/dayuer/charbot-go/internal/utils"
)

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Create the default config, services and mappings files",
	RunE:  runOnboard,
}

func init() {
	rootCmd.AddCommand(onboardCmd)
}

func runOnboard(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	path := configPath
	if path == "" {
		path = config.GetConfigPath()
	}

	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(out, "Config already exists at %s\n", path)
	} else {
		if err := config.Save(config.DefaultConfig(), path); err != nil {
			return fmt.Errorf("creating config: %w", err)
		}
		fmt.Fprintf(out, "✓ Created config at %s\n", path)
	}

	fmt.Fprintf(out, "✓ Data directory at %s\n", utils.GetDataPath())

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	services := cfg.Resolver.ServicesFile
	if _, err := os.Stat(services); os.IsNotExist(err) {
		if _, err := utils.EnsureDir(filepath.Dir(services)); err != nil {
			return err
		}
		if err := os.WriteFile(services, []byte(config.ExampleServicesYAML), 0644); err != nil {
			return fmt.Errorf("creating services file: %w", err)
		}
		fmt.Fprintf(out, "✓ Created %s\n", services)
	}

	store := mappings.NewStore(cfg.Storage.MappingsFile, logger)
	if _, err := os.Stat(store.Path()); os.IsNotExist(err) {
		if err := store.Save(); err != nil {
			return fmt.Errorf("creating mappings file: %w", err)
		}
		fmt.Fprintf(out, "✓ Created %s\n", store.Path())
	}

	fmt.Fprintln(out, "\ncharbot is ready.")
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintf(out, "  1. Set channel.whatsapp.bridgeUrl and session.owners in %s\n", path)
	fmt.Fprintln(out, "  2. Run: charbot gateway")
	fmt.Fprintln(out, "  3. Send .a from an owner account and pick a group by number")
	return nil
}
