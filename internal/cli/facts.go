package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aliendevit/minuteone/internal/store"
)

func init() {
	contextCmd := &cobra.Command{
		Use:   "context",
		Short: "Show recent facts grouped by kind",
		Run:   runContext,
	}
	contextCmd.Flags().Int("window", 72, "Window in hours")
	RootCmd.AddCommand(contextCmd)

	searchCmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Full-text search over facts",
		Args:  cobra.ExactArgs(1),
		Run:   runSearch,
	}
	searchCmd.Flags().Int("limit", 50, "Maximum results")
	RootCmd.AddCommand(searchCmd)
}

func runContext(cmd *cobra.Command, args []string) {
	hours, _ := cmd.Flags().GetInt("window")

	cfg := loadConfig()
	s := openStore(cfg)
	defer s.Close()

	grouped, err := s.Context(cmd.Context(), time.Duration(hours)*time.Hour)
	if err != nil {
		exitErr("context", err)
	}
	out, _ := json.MarshalIndent(grouped, "", "  ")
	fmt.Println(string(out))
}

func runSearch(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")

	cfg := loadConfig()
	s := openStore(cfg)
	defer s.Close()

	facts, err := s.QueryFacts(cmd.Context(), store.QueryParams{Text: args[0], Limit: limit})
	if err != nil {
		exitErr("search", err)
	}
	out, _ := json.MarshalIndent(facts, "", "  ")
	fmt.Println(string(out))
}
