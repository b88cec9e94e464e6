package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dayuer/charbot-go/internal/agent"
	"github.com/dayuer/charbot-go/internal/bus"
	"github.com/dayuer/charbot-go/internal/mappings"
	"github.com/dayuer/charbot-go/internal/textnorm"
)

var extractCmd = &cobra.Command{
	Use:   "extract <message text>",
	Short: "Dry-run the reply pipeline on a message without sending anything",
	Example: `  charbot extract "who is *Naruto* and *Sasuke*?"
  charbot extract --json --no-resolve "*ساكورا*"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExtract,
}

var (
	extractJSON      bool
	extractNoResolve bool
)

func init() {
	extractCmd.Flags().BoolVar(&extractJSON, "json", false, "print the result as JSON")
	extractCmd.Flags().BoolVar(&extractNoResolve, "no-resolve", false, "skip name resolution even if enabled")
	rootCmd.AddCommand(extractCmd)
}

type discardSender struct{}

func (discardSender) Send(context.Context, bus.OutboundMessage) error { return nil }

type extractResult struct {
	Normalized string        `json:"normalized"`
	Tokens     []agent.Token `json:"tokens"`
	Reply      string        `json:"reply"`
	Kind       string        `json:"kind"`
	Correction string        `json:"correction,omitempty"`
	Delay      string        `json:"delay"`
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if extractNoResolve {
		cfg.Pipeline.ResolveNames = false
	}

	store := mappings.NewStore(cfg.Storage.MappingsFile, logger)
	if err := store.Load(); err != nil {
		logger.Warn("mappings not loaded")
	}
	engine, err := agent.Build(cfg, agent.Deps{
		Store:      store,
		Sender:     discardSender{},
		Logger:     logger,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	})
	if err != nil {
		return err
	}

	text := strings.Join(args, " ")
	tokens, plan, delay := engine.Preview(cmd.Context(), text)
	store.Wait()

	res := extractResult{
		Normalized: textnorm.Normalize(text),
		Tokens:     tokens,
		Reply:      plan.Text,
		Kind:       string(plan.Kind),
		Delay:      delay.String(),
	}
	if plan.Correct {
		res.Correction = plan.CorrectionText()
	}

	out := cmd.OutOrStdout()
	if extractJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Fprintf(out, "normalized: %s\n", res.Normalized)
	for _, t := range tokens {
		mark := "✗"
		if t.IsCandidate {
			mark = "✓"
		}
		fmt.Fprintf(out, "  %s %-20s %.2f %s\n", mark, t.Surface, t.Confidence, t.Reason)
	}
	if res.Reply == "" {
		fmt.Fprintln(out, "no reply")
		return nil
	}
	fmt.Fprintf(out, "reply after %s: %s (%s)\n", res.Delay, res.Reply, res.Kind)
	if res.Correction != "" {
		fmt.Fprintf(out, "correction: %s\n", res.Correction)
	}
	return nil
}
