package main

import (
	"fmt"
	"os"

	"github.com/forbearing/sqlwhitelist/internal/compiler"
	"github.com/forbearing/sqlwhitelist/logger"
	"github.com/spf13/cobra"
)

var (
	verbose    bool
	outputPath string
)

var buildCmd = &cobra.Command{
	Use:   "build [src]",
	Short: "resolve query-execute call sites and emit a whitelist",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runBuild,
}

func init() {
	buildCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print every call site's resolution trace, not only failures")
	buildCmd.Flags().StringVarP(&outputPath, "out", "o", "whitelist.json", "path to write the compiled whitelist")
}

func runBuild(cmd *cobra.Command, args []string) error {
	src := "."
	if len(args) == 1 {
		src = args[0]
	}

	logger.Compiler.Infow("build starting", "dir", src, "verbose", verbose)

	res, err := compiler.Compile(compiler.Config{Dir: src, Verbose: verbose})
	if err != nil {
		logger.Compiler.Errorw("compile failed", "dir", src, "error", err)
		return err
	}

	fmt.Println(compiler.Summary(res))
	for _, trace := range res.Traces {
		fmt.Fprintln(os.Stderr, gray(trace))
	}

	data, err := compiler.EmitJSON(res.Whitelist)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return err
	}

	if !res.Success() {
		logger.Compiler.Warnw("build finished with unresolved call sites", "unresolved", res.UnresolvedCount, "resolved", res.ResolvedCount)
		fmt.Fprintf(os.Stderr, "%s %d call site(s) did not resolve; whitelist is incomplete\n", red("✘"), res.UnresolvedCount)
		os.Exit(1)
	}
	logger.Compiler.Infow("build finished", "resolved", res.ResolvedCount, "out", outputPath)
	fmt.Printf("%s whitelist written to %s (%d entries)\n", green("✔"), outputPath, res.Whitelist.Len())
	return nil
}
