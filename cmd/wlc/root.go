// Command wlc is the query whitelist compiler's CLI front-end.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/forbearing/sqlwhitelist/config"
	"github.com/forbearing/sqlwhitelist/logger"
	"github.com/spf13/cobra"
)

var (
	green = color.New(color.FgHiGreen).SprintFunc()
	red   = color.New(color.FgHiRed).SprintFunc()
	gray  = color.New(color.FgHiBlack).SprintFunc()
)

var rootCmd = &cobra.Command{
	Use:     "wlc",
	Short:   "query whitelist compiler",
	Long:    "wlc statically resolves sql(...) query templates and their validators into a whitelist file",
	Version: "1.0.0",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Init(); err != nil {
			return err
		}
		return logger.Init()
	},
}

func init() {
	rootCmd.AddCommand(buildCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, red(err))
		os.Exit(1)
	}
}
