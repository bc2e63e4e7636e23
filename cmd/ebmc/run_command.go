package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/EBMC/internal/app/run"
	"github.com/John-Robertt/EBMC/internal/config"
	"github.com/John-Robertt/EBMC/internal/domain"
	"github.com/John-Robertt/EBMC/internal/logging"
)

type runFlags struct {
	apply       bool
	threshold   float64
	concurrency int
	verbose     int
	logFormat   string
}

func newRunCommand(stdout, stderr io.Writer) *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run [path]",
		Short: "扫描目录并查找电子书（默认 dry-run）",
		Long: `扫描 path 下的电子书，按文件名在多个 source 上检索并核对。

默认 dry-run：只检索并输出计划，不创建目录、不写入、不移动。
--apply 时把匹配成功的文件移动到 <path>/found_on_<source>/<Author>_<Title><ext>，
并写入同名 .opf 与 <path>/cache/report.json。未匹配的文件保持原位。`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli := config.CLIArgs{}
			if len(args) == 1 {
				cli.Path = args[0]
			}
			flags := cmd.Flags()
			if flags.Changed("apply") {
				cli.Apply, cli.ApplySet = f.apply, true
			}
			if flags.Changed("threshold") {
				cli.Threshold, cli.ThresholdSet = f.threshold, true
			}
			if flags.Changed("concurrency") {
				cli.Concurrency, cli.ConcurrencySet = f.concurrency, true
			}
			if f.verbose > 0 {
				cli.LogLevel, cli.LogLevelSet = logging.LevelForVerbosity(f.verbose), true
			}
			if flags.Changed("log-format") {
				cli.LogFormat, cli.LogFormatSet = f.logFormat, true
			}

			if code := runBooks(cmd.Context(), cli, stdout, stderr); code != 0 {
				return &exitError{code: code}
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&f.apply, "apply", false, "执行目录创建、OPF 写入与移动；支持 --apply=false 覆盖配置中的 apply=true")
	flags.Float64Var(&f.threshold, "threshold", 0, "匹配阈值 (0,1]，默认 0.8")
	flags.IntVar(&f.concurrency, "concurrency", 0, "同时解析的文件数，默认 4")
	flags.CountVarP(&f.verbose, "verbose", "v", "日志详细程度：-v info，-vv debug")
	flags.StringVar(&f.logFormat, "log-format", "", "日志格式：text|json")
	return cmd
}

func runBooks(ctx context.Context, cli config.CLIArgs, stdout, stderr io.Writer) int {
	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(stderr, "读取当前目录失败：%v\n", err)
		return 1
	}
	cwdAbs, _ := filepath.Abs(cwd)

	eff, err := config.LoadEffective(cwd, cli)
	if err != nil {
		emitReport(stdout, stderr, reportForError(cwdAbs, cli.ApplySet && cli.Apply, config.Code(err), err))
		return 1
	}

	level := eff.LogLevel
	if level == "" {
		level = logging.LevelForVerbosity(0)
	}
	logger, err := logging.New(logging.Options{Level: level, Format: eff.LogFormat, Writer: stderr})
	if err != nil {
		emitReport(stdout, stderr, reportForError(eff.Path, eff.Apply, domain.ErrCodeConfigInvalid, err))
		return 1
	}

	adapters, err := run.NewAdapters(eff)
	if err != nil {
		emitReport(stdout, stderr, reportForError(eff.Path, eff.Apply, domain.ErrCodeConfigInvalid, err))
		return 1
	}

	opts := []run.Option{run.WithLogger(logger)}
	progressW, interactive := pickProgressWriter(stdout, stderr)
	if interactive {
		opts = append(opts, run.WithObserver(newProgressUI(progressW)))
	}

	rr := run.Execute(ctx, eff, adapters, opts...)

	emitReport(stdout, stderr, rr)
	if interactive {
		emitLocations(progressW, eff)
	}
	if rr.Summary.Failed == 0 && rr.Summary.Unmatched == 0 {
		return 0
	}
	return 1
}
