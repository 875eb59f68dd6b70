package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history <key> <value>",
	Short: "Print every transaction whose content matches key=value",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ch, _, loaded, err := openState()
		if err != nil {
			log.Fatal(err)
		}
		if !loaded {
			log.Fatal("no chain file found in ", dataDir)
		}

		entries := ch.TransactionHistory(args[0], args[1])
		if len(entries) == 0 {
			fmt.Printf("No transactions found for %s=%s\n", args[0], args[1])
			return
		}

		for _, e := range entries {
			ts := time.Unix(int64(e.Timestamp), 0).Format(time.RFC3339)
			color.Cyan("block %d  %s", e.BlockIndex, ts)
			fmt.Println("  hash:  ", e.BlockHash)
			fmt.Println("  tx:    ", e.Transaction.TransactionID)
			fmt.Println("  device:", e.Transaction.DeviceID)
			fmt.Println("  content:", e.Transaction.Content)
		}
		fmt.Printf("\n%d matching transaction(s)\n", len(entries))
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
}
