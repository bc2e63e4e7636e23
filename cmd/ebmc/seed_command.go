package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/EBMC/internal/domain"
	"github.com/John-Robertt/EBMC/internal/extract"
)

type seedOutput struct {
	File   string `json:"file"`
	Title  string `json:"title"`
	Author string `json:"author"`
	Query  string `json:"query"`
}

func newSeedCommand(stdout io.Writer) *cobra.Command {
	var pathHints bool

	cmd := &cobra.Command{
		Use:   "seed <filename>...",
		Short: "打印从文件名提取出的检索种子（不访问网络）",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := make([]seedOutput, 0, len(args))
			for _, a := range args {
				var hints []string
				if pathHints {
					hints = domain.BookFile{RelPath: filepath.ToSlash(a)}.Hints()
				}
				s := extract.Extract(a, hints)
				out = append(out, seedOutput{File: a, Title: s.Title, Author: s.Author, Query: s.Query()})
			}

			if isTTY(stdout) {
				rows := make([][]string, 0, len(out))
				for _, s := range out {
					rows = append(rows, []string{s.File, s.Title, s.Author})
				}
				fmt.Fprintln(stdout, renderTable([]string{"文件", "书名", "作者"}, rows, nil))
				return nil
			}

			// 非 TTY：每行一个 JSON，便于脚本消费。
			enc := json.NewEncoder(stdout)
			enc.SetEscapeHTML(false)
			for _, s := range out {
				if err := enc.Encode(s); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&pathHints, "path-hints", false, "文件名未给出作者时，用父目录名补全作者")
	return cmd
}
