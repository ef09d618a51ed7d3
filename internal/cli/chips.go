package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aliendevit/minuteone/internal/chips"
	"github.com/aliendevit/minuteone/internal/model"
	"github.com/aliendevit/minuteone/internal/store"
)

func init() {
	listCmd := &cobra.Command{
		Use:   "chips",
		Short: "List chips",
		Run:   runChips,
	}
	listCmd.Flags().String("state", "", "Filter by state")
	listCmd.Flags().String("band", "", "Filter by band")
	RootCmd.AddCommand(listCmd)

	resolveCmd := &cobra.Command{
		Use:   "resolve [chip-id] [action]",
		Short: "Apply a user action to a chip",
		Long:  "Apply accept, edit, override, or dismiss to an open chip. Overrides require --reason; edits require --value.",
		Args:  cobra.ExactArgs(2),
		Run:   runResolve,
	}
	resolveCmd.Flags().String("value", "", "New value (edit)")
	resolveCmd.Flags().String("reason", "", "Override reason")
	resolveCmd.Flags().Bool("ack", false, "Acknowledge evidence was viewed")
	RootCmd.AddCommand(resolveCmd)

	auditCmd := &cobra.Command{
		Use:   "audit [chip-id]",
		Short: "Show a chip's transition history",
		Args:  cobra.ExactArgs(1),
		Run:   runAudit,
	}
	RootCmd.AddCommand(auditCmd)
}

func runChips(cmd *cobra.Command, args []string) {
	state, _ := cmd.Flags().GetString("state")
	band, _ := cmd.Flags().GetString("band")

	cfg := loadConfig()
	s := openStore(cfg)
	defer s.Close()

	list, err := s.ListChips(cmd.Context(), store.ChipFilter{
		State: model.ChipState(state),
		Band:  model.Band(band),
	})
	if err != nil {
		exitErr("list chips", err)
	}
	out, _ := json.MarshalIndent(list, "", "  ")
	fmt.Println(string(out))
}

func runResolve(cmd *cobra.Command, args []string) {
	value, _ := cmd.Flags().GetString("value")
	reason, _ := cmd.Flags().GetString("reason")
	ack, _ := cmd.Flags().GetBool("ack")

	cfg := loadConfig()
	s := openStore(cfg)
	defer s.Close()

	manager := newManager(cfg, s, nil)
	chip, err := manager.Resolve(cmd.Context(), chips.ResolveRequest{
		ChipID:       args[0],
		Action:       model.ChipAction(args[1]),
		Value:        value,
		Reason:       reason,
		Acknowledged: ack,
	})
	if err != nil {
		exitErr("resolve", err)
	}
	out, _ := json.Marshal(chip)
	fmt.Println(string(out))
}

func runAudit(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	s := openStore(cfg)
	defer s.Close()

	trail, err := s.AuditTrail(cmd.Context(), args[0])
	if err != nil {
		exitErr("audit", err)
	}
	out, _ := json.MarshalIndent(trail, "", "  ")
	fmt.Println(string(out))
}
