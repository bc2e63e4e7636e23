package source

import (
	"fmt"

	"github.com/John-Robertt/EBMC/internal/domain"
)

// Registry 是 source 的只读注册表（按 name 索引）。
// 用 map 做 O(1) 查找；source 数量极小，保持简单即可。
type Registry struct {
	byName map[domain.SourceName]Adapter
	order  []domain.SourceName
}

func NewRegistry(adapters ...Adapter) (Registry, error) {
	byName := make(map[domain.SourceName]Adapter, len(adapters))
	order := make([]domain.SourceName, 0, len(adapters))
	for _, a := range adapters {
		if a == nil {
			return Registry{}, fmt.Errorf("source 不能为空")
		}
		name, err := domain.ParseSourceName(string(a.Name()))
		if err != nil {
			return Registry{}, err
		}
		if _, ok := byName[name]; ok {
			return Registry{}, fmt.Errorf("重复的 source：%q", name)
		}
		byName[name] = a
		order = append(order, name)
	}
	return Registry{byName: byName, order: order}, nil
}

func (r Registry) Get(name domain.SourceName) (Adapter, bool) {
	if r.byName == nil {
		return nil, false
	}
	a, ok := r.byName[name]
	return a, ok
}

// All 按注册顺序返回全部 source。
func (r Registry) All() []Adapter {
	out := make([]Adapter, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.byName[n])
	}
	return out
}

// Select 按 names 的顺序挑出 source；names 为空时返回全部。
func (r Registry) Select(names []domain.SourceName) ([]Adapter, error) {
	if len(names) == 0 {
		return r.All(), nil
	}
	out := make([]Adapter, 0, len(names))
	for _, n := range names {
		a, ok := r.Get(n)
		if !ok {
			return nil, fmt.Errorf("source 未注册：%q", n)
		}
		out = append(out, a)
	}
	return out, nil
}
