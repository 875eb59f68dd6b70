package cmd

import (
	"fmt"
	"log"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// verifyCmd represents the verify command
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Validate the chain and print a summary",
	Run: func(cmd *cobra.Command, args []string) {
		ch, st, loaded, err := openState()
		if err != nil {
			log.Fatal(err)
		}
		if !loaded {
			log.Fatal("no chain file found in ", dataDir)
		}

		if err := ch.Validate(); err != nil {
			color.Red("Chain is INVALID: %v", err)
			return
		}
		color.Green("Chain is valid.")

		stats := st.ChainStats()
		fmt.Println("Blocks:              ", stats.ChainLength)
		fmt.Println("Transactions:        ", stats.TransactionCount)
		fmt.Println("Pending transactions:", stats.PendingTransactions)
		fmt.Println("Difficulty:          ", stats.Difficulty)
		fmt.Printf("Avg block time:       %.2fs\n", stats.AvgBlockTime)
		fmt.Println("Latest block hash:   ", stats.LatestBlockHash)
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
