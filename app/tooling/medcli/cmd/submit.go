package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/medledger/ledger/foundation/ledger/transaction"
	"github.com/spf13/cobra"
)

// submitCmd represents the submit command
var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Record a medicine event and mine it into a block",
	Run: func(cmd *cobra.Command, args []string) {
		ch, st, loaded, err := openState()
		if err != nil {
			log.Fatal(err)
		}
		if !loaded {
			fmt.Println("No existing chain found. Starting a new chain from genesis.")
		}

		in := bufio.NewReader(os.Stdin)

		fmt.Println("\nPlease enter the medicine information:")
		name := prompt(in, "Medicine name: ")
		expiration := prompt(in, "Expiration date: ")

		var count int
		for {
			count, err = strconv.Atoi(prompt(in, "Medicine count: "))
			if err == nil {
				break
			}
			fmt.Println("Please enter a valid number for medicine count.")
		}

		userID := prompt(in, "User ID: ")

		content, err := json.Marshal(map[string]any{
			"Medicine name":   name,
			"Expiration date": expiration,
			"Medicine count":  count,
			"user ID":         userID,
		})
		if err != nil {
			log.Fatal(err)
		}

		deviceID := fmt.Sprintf("medicine_input_%s", userID)
		tx := transaction.New(string(content), deviceID)

		if _, err := ch.AddTransaction(tx); err != nil {
			log.Fatal(err)
		}

		fmt.Println("\nCreating block with medicine information...")
		b, elapsed := ch.MinePendingTransactions(deviceID)

		if err := st.Save(); err != nil {
			log.Fatal(err)
		}

		color.Green("Block successfully created and added to the chain.")
		fmt.Println("Block index:    ", b.Index)
		fmt.Println("Block hash:     ", b.Hash)
		fmt.Println("Transaction ID: ", tx.TransactionID)
		fmt.Println("Mining time:    ", elapsed)
		fmt.Println("\nTotal blocks in chain:", ch.Length())
	},
}

func init() {
	rootCmd.AddCommand(submitCmd)
}

func prompt(in *bufio.Reader, label string) string {
	fmt.Print(label)
	line, _ := in.ReadString('\n')
	return strings.TrimSpace(line)
}
