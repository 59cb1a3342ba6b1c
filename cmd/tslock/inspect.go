package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/pixperk/tslock/pkg/slots"
	tstime "github.com/pixperk/tslock/pkg/time"
	"github.com/pixperk/tslock/pkg/types"
	"github.com/spf13/cobra"
)

var flagJSON bool

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print the state of every slot in the lease table",
	RunE:  runInspect,
}

func init() {
	inspectCmd.Flags().BoolVar(&flagJSON, "json", false, "print JSON instead of a table")
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(_ *cobra.Command, _ []string) error {
	table, err := slots.Open(cfg.SlotFile, cfg.Slots)
	if err != nil {
		return err
	}
	defer table.Close()

	statuses, err := table.Snapshot(tstime.NewWallClock())
	if err != nil {
		return err
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(statuses)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SLOT\tSTATE\tWORD\tREMAINING")
	for i, st := range statuses {
		remaining := "-"
		if st.State == types.StateHeld {
			remaining = st.Remaining().String()
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", i, st.State, st.Word, remaining)
	}
	return w.Flush()
}
