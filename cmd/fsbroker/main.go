package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set at build time with -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "none"
)

var rootCmd = &cobra.Command{
	Use:   "fsbroker",
	Short: "Filesystem broker",
	Long: `fsbroker serves filesystem operations (open, append, read, mkdirs, ...)
over a framed binary protocol, backed by memory, a local directory,
BadgerDB or S3.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetOut(os.Stdout)
	rootCmd.AddCommand(
		newStartCommand(),
		newInitCommand(),
		newVersionCommand(),
		newClientCommand(),
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
