package cmd

import (
	"fmt"
	"log"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var checkpointKeep int

// checkpointCmd represents the checkpoint command
var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Manage chain snapshots in the data directory",
}

var checkpointCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Snapshot the current chain",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		_, st, loaded, err := openState()
		if err != nil {
			log.Fatal(err)
		}
		if !loaded {
			log.Fatal("no chain file found in ", dataDir)
		}

		name := ""
		if len(args) == 1 {
			name = args[0]
		}

		created, err := st.CreateCheckpoint(name)
		if err != nil {
			log.Fatal(err)
		}
		color.Green("Checkpoint created: %s", created)
	},
}

var checkpointListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots, oldest first",
	Run: func(cmd *cobra.Command, args []string) {
		_, st, _, err := openState()
		if err != nil {
			log.Fatal(err)
		}

		names, err := st.ListCheckpoints()
		if err != nil {
			log.Fatal(err)
		}
		if len(names) == 0 {
			fmt.Println("No checkpoints found.")
			return
		}
		for _, name := range names {
			fmt.Println(name)
		}
	},
}

var checkpointRestoreCmd = &cobra.Command{
	Use:   "restore <name>",
	Short: "Replace the active chain with a snapshot",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		_, st, _, err := openState()
		if err != nil {
			log.Fatal(err)
		}

		found, err := st.RestoreCheckpoint(args[0])
		if err != nil {
			log.Fatal(err)
		}
		if !found {
			log.Fatal("checkpoint not found: ", args[0])
		}

		if err := st.Save(); err != nil {
			log.Fatal(err)
		}
		color.Green("Chain restored from %s", args[0])
	},
}

var checkpointCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove old snapshots beyond the retention count",
	Run: func(cmd *cobra.Command, args []string) {
		_, st, _, err := openState()
		if err != nil {
			log.Fatal(err)
		}

		removed, err := st.CleanupOldCheckpoints(checkpointKeep)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("Removed %d checkpoint(s), keeping the newest %d\n", removed, checkpointKeep)
	},
}

func init() {
	rootCmd.AddCommand(checkpointCmd)
	checkpointCmd.AddCommand(checkpointCreateCmd)
	checkpointCmd.AddCommand(checkpointListCmd)
	checkpointCmd.AddCommand(checkpointRestoreCmd)
	checkpointCmd.AddCommand(checkpointCleanupCmd)
	checkpointCleanupCmd.Flags().IntVarP(&checkpointKeep, "keep", "k", 5, "Number of checkpoints to keep.")
}
