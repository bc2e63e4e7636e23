package main

import (
	"io"

	"github.com/spf13/cobra"
)

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "ebmc",
		Short:         "按文件名在线查找并核对电子书，整理到 found_on_<source>/",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	rootCmd.AddCommand(newRunCommand(stdout, stderr))
	rootCmd.AddCommand(newSeedCommand(stdout))
	return rootCmd
}
