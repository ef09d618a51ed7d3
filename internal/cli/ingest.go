package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/aliendevit/minuteone/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "ingest [file]",
		Short: "Ingest a batch of facts",
		Long:  "Ingest a JSON array of facts from a file or stdin. The batch is atomic.",
		Args:  cobra.MaximumNArgs(1),
		Run:   runIngest,
	}
	RootCmd.AddCommand(cmd)
}

func runIngest(cmd *cobra.Command, args []string) {
	var data []byte
	var err error
	if len(args) > 0 {
		data, err = os.ReadFile(args[0])
	} else {
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		exitErr("read facts", err)
	}

	var facts []model.Fact
	if err := json.Unmarshal(data, &facts); err != nil {
		exitErr("parse facts", err)
	}

	cfg := loadConfig()
	s := openStore(cfg)
	defer s.Close()

	written, err := s.IngestFacts(cmd.Context(), facts)
	if err != nil {
		exitErr("ingest", err)
	}

	manager := newManager(cfg, s, nil)
	reopened, err := manager.Escalate(cmd.Context(), facts)
	if err != nil {
		exitErr("escalate", err)
	}

	out, _ := json.Marshal(map[string]int{"written": written, "reopened": reopened})
	fmt.Println(string(out))
}
