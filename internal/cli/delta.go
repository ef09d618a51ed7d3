package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aliendevit/minuteone/internal/delta"
)

func init() {
	cmd := &cobra.Command{
		Use:   "delta [name]",
		Short: "Show the change between the two most recent observations of a fact",
		Args:  cobra.ExactArgs(1),
		Run:   runDelta,
	}
	RootCmd.AddCommand(cmd)
}

func runDelta(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	s := openStore(cfg)
	defer s.Close()

	d, err := delta.New(s).Compute(cmd.Context(), args[0])
	if err != nil {
		exitErr("delta", err)
	}
	out, _ := json.Marshal(d)
	fmt.Println(string(out))
}
