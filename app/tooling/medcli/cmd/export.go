package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

var exportFile string

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a shareable snapshot of the chain to a file",
	Run: func(cmd *cobra.Command, args []string) {
		_, st, loaded, err := openState()
		if err != nil {
			log.Fatal(err)
		}
		if !loaded {
			log.Fatal("no chain file found in ", dataDir)
		}

		if err := st.ExportTo(exportFile); err != nil {
			log.Fatal(err)
		}

		snap := st.ExportSnapshot()
		fmt.Printf("Exported %d block(s) at difficulty %d to %s\n", snap.ChainLength, snap.Difficulty, exportFile)
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&exportFile, "file", "f", "chain_export.json", "File to write the export to.")
}
