package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
)

func main() {
	os.Exit(execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// exitError 携带非零退出码（run 存在 failed/unmatched 时为 1）；信息已经输出过，不再打印。
type exitError struct{ code int }

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// execute 返回进程退出码：0 全部成功；1 存在失败/未匹配；2 参数错误。
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	root := newRootCommand(stdout, stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	if !errors.Is(err, context.Canceled) {
		fmt.Fprintf(stderr, "参数错误：%v\n\n", err)
		fmt.Fprint(stderr, root.UsageString())
	}
	return 2
}
