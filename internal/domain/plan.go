package domain

// MovePlan 规划一次文件移动（只描述 src/dst；真正执行必须遵守“移动最后一步”）。
type MovePlan struct {
	SrcAbs string
	DstAbs string
}

// ItemPlan 是对某个已匹配文件的最小执行计划。
type ItemPlan struct {
	Source SourceName
	Move   MovePlan

	// OPFName 非空时，需要在目标目录写入 OPF sidecar（不覆盖已有文件）。
	OPFName string
}
