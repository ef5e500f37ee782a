package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{Use: "vidqa", Short: "Conversational QA over video transcripts"}

	root.AddCommand(serveCMD(), migrateCMD(), askCMD(), tokenCMD())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
