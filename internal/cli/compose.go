package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/aliendevit/minuteone/internal/compose"
	"github.com/aliendevit/minuteone/internal/delta"
	"github.com/aliendevit/minuteone/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "compose [note|handoff|discharge]",
		Short: "Render a document from a visit record",
		Long:  "Render a note, handoff, or discharge document. The visit JSON is read from a file or stdin; cited facts are resolved from the store.",
		Args:  cobra.ExactArgs(1),
		Run:   runCompose,
	}
	cmd.Flags().String("visit", "", "Visit JSON file (default: stdin)")
	cmd.Flags().StringSlice("evidence", nil, "Fact ids to cite")
	cmd.Flags().String("lang", "", "Discharge language (en or es)")
	RootCmd.AddCommand(cmd)
}

func runCompose(cmd *cobra.Command, args []string) {
	visitPath, _ := cmd.Flags().GetString("visit")
	evidenceIDs, _ := cmd.Flags().GetStringSlice("evidence")
	lang, _ := cmd.Flags().GetString("lang")

	var data []byte
	var err error
	if visitPath != "" {
		data, err = os.ReadFile(visitPath)
	} else {
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		exitErr("read visit", err)
	}
	var visit model.Visit
	if err := json.Unmarshal(data, &visit); err != nil {
		exitErr("parse visit", err)
	}
	if err := visit.Validate(); err != nil {
		exitErr("validate visit", err)
	}

	cfg := loadConfig()
	s := openStore(cfg)
	defer s.Close()

	facts, err := s.FactsByID(cmd.Context(), evidenceIDs)
	if err != nil {
		exitErr("load evidence", err)
	}
	engine := delta.New(s)
	items := make([]compose.EvidenceItem, 0, len(facts))
	for _, f := range facts {
		d, err := engine.Compute(cmd.Context(), f.Name)
		if err != nil {
			exitErr("compute delta", err)
		}
		items = append(items, compose.EvidenceItem{Fact: f, Delta: d})
	}

	if lang == "" {
		lang = visit.LanguagePref
	}

	var artifact compose.Artifact
	switch args[0] {
	case "note":
		artifact = compose.Note(visit, items)
	case "handoff":
		artifact = compose.Handoff(visit, items)
	case "discharge":
		artifact = compose.Discharge(visit, items, lang)
	default:
		exitErr("compose", fmt.Errorf("unknown kind %q", args[0]))
	}
	fmt.Println(artifact.Content)
}
