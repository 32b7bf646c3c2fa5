package main

import (
	"bufio"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/mictl/internal/integration/debug"
	"github.com/dshills/mictl/internal/integration/debug/mi"
)

var decodeCmd = &cobra.Command{
	Use:   "decode",
	Short: "Decode MI output read from stdin",
	Long: `Reads debugger MI output from stdin, one record per line, and prints the
command results and events it decodes. Useful for inspecting captured
debugger transcripts.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		strict, _ := cmd.Flags().GetBool("strict")
		out := cmd.OutOrStdout()

		decoder := mi.NewDecoder("decode")
		table := debug.NewBreakpointTable()
		scanner := bufio.NewScanner(cmd.InOrStdin())
		scanner.Buffer(make([]byte, 0, 64<<10), 16<<20)

		failures := 0
		for lineNo := 1; scanner.Scan(); lineNo++ {
			line := scanner.Text()
			if line == "" {
				continue
			}
			d, err := decoder.Decode(line, table)
			if err != nil {
				failures++
				fmt.Fprintf(out, "line %d: %v\n", lineNo, err)
				continue
			}
			switch {
			case d.Result != nil:
				table.RecordResult(*d.Result)
				fmt.Fprintln(out, formatResult(*d.Result))
			case d.Event != nil:
				table.Apply(d.Event)
				fmt.Fprintln(out, formatEvent(d.Event))
			}
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		if strict && failures > 0 {
			return fmt.Errorf("%d undecodable line(s)", failures)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(decodeCmd)
	decodeCmd.Flags().Bool("strict", false, "Exit non-zero when a line cannot be decoded")
}
