package main

import (
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "converse",
	Short: "Headless participant for Converse rooms",
	Long: `converse joins a room on a Converse signaling server, relays chat from
stdin and takes part in the room's media mesh with a synthetic audio track.`,
}

func main() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	rootCmd.AddCommand(joinCmd)

	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Println(err.Error())
		os.Exit(1)
	}
}
