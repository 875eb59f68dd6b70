// Package cmd contains the medcli app for working with a ledger data
// directory from the command line.
package cmd

import (
	"os"

	"github.com/medledger/ledger/foundation/ledger/chain"
	"github.com/medledger/ledger/foundation/ledger/state"
	"github.com/spf13/cobra"
)

var (
	dataDir    string
	difficulty int
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "medcli",
	Short: "Record and inspect medicine events on the ledger",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "d", "zledger", "Path to the ledger data directory.")
	rootCmd.PersistentFlags().IntVar(&difficulty, "difficulty", 3, "Mining difficulty for new chains.")
}

// openState loads the chain from the data directory, starting a fresh
// chain from genesis when no file exists yet.
func openState() (*chain.Chain, *state.State, bool, error) {
	ch := chain.New(chain.Config{
		Difficulty: difficulty,
	})

	st, err := state.New(state.Config{
		Chain:   ch,
		DataDir: dataDir,
	})
	if err != nil {
		return nil, nil, false, err
	}

	loaded, err := st.Load()
	if err != nil {
		return nil, nil, false, err
	}
	if !loaded {
		ch.Genesis()
	}

	return ch, st, loaded, nil
}
