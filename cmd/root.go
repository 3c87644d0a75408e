package cmd

import (
	"fmt"
	"log"
	"os"

	"DeckFM/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "deckfm",
	Short: "DeckFM is a local backend for a multi-source music player.",
	Run: func(cmd *cobra.Command, args []string) {
		log.Println("Starting DeckFM backend...")
		// server.Start handles its own logging and shutdown.
		server.Start()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
