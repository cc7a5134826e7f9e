package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"typelift/internal/version"
)

var versionNameColor = color.New(color.FgCyan, color.Bold)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the typelift version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("%s %s\n", versionNameColor.Sprint("typelift"), version.Number)
		if version.Commit != "" {
			fmt.Printf("commit: %s\n", version.Commit)
		}
		if version.Date != "" {
			fmt.Printf("built:  %s\n", version.Date)
		}
	},
}
