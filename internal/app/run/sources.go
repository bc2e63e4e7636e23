package run

import (
	"fmt"

	"github.com/John-Robertt/EBMC/internal/config"
	"github.com/John-Robertt/EBMC/internal/infra/httpx"
	"github.com/John-Robertt/EBMC/internal/source"
	"github.com/John-Robertt/EBMC/internal/source/evrit"
	"github.com/John-Robertt/EBMC/internal/source/simania"
	"github.com/John-Robertt/EBMC/internal/source/steimatzky"
	"github.com/John-Robertt/EBMC/internal/source/websearch"
)

// NewAdapters 按生效配置构建全部 source，并按 eff.Sources 的顺序挑选启用项。
// 所有 source 共享一个 HTTP client，因此共享按 host 的限速。
func NewAdapters(eff config.EffectiveConfig) ([]source.Adapter, error) {
	client, err := httpx.NewClient(eff.HTTPOptions())
	if err != nil {
		return nil, fmt.Errorf("proxy.url 无效：%w", err)
	}

	engine := websearch.Engine{BaseURL: eff.SearchURL, Client: client}
	reg, err := source.NewRegistry(
		evrit.New(engine, client, eff.ResultsPerSource),
		steimatzky.New(engine, client, eff.ResultsPerSource),
		simania.New(engine, client, eff.ResultsPerSource),
		websearch.Adapter{Searcher: engine, Limit: eff.ResultsPerSource},
	)
	if err != nil {
		return nil, err
	}
	return reg.Select(eff.Sources)
}
