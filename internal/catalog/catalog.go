package catalog

import (
	"fmt"
	"sort"
	"strconv"
)

// RefKind 调用返回值的引用种类
type RefKind string

const (
	RefNew      RefKind = "new_ref"
	RefBorrowed RefKind = "borrowed_ref"
	RefNone     RefKind = "none"
)

// Sentinel 错误哨兵返回值
type Sentinel string

const (
	SentinelNull   Sentinel = "NULL"
	SentinelNegOne Sentinel = "-1"
	SentinelZero   Sentinel = "0"
	SentinelNone   Sentinel = "none"
)

// StealWhen steal 发生的时机（§ 目录 steal 条件性策略）
// StealAlways: 调用失败时 steal 也已发生（如 PyList_SetItem）
// StealOnSuccess: 仅调用成功时 steal
type StealWhen string

const (
	StealAlways    StealWhen = "always"
	StealOnSuccess StealWhen = "success"
)

// Entry 单个 API 函数的所有权语义记录（已验证的内部形式）
type Entry struct {
	ReturnRef   RefKind
	ArgSteal    map[int]bool
	ArgIncr     map[int]bool
	ArgDecr     map[int]bool
	ErrorReturn Sentinel
	StealOn     StealWhen
}

// RawEntry 外部交换格式（JSON/YAML 目录文件中的一条记录）。
// 扩展字段 arg_ref_incr / arg_ref_decr / steal_on 是可选的。
type RawEntry struct {
	ReturnRefType string          `json:"return_ref_type" yaml:"return_ref_type"`
	ArgRefSteal   map[string]bool `json:"arg_ref_steal,omitempty" yaml:"arg_ref_steal,omitempty"`
	ArgRefIncr    map[string]bool `json:"arg_ref_incr,omitempty" yaml:"arg_ref_incr,omitempty"`
	ArgRefDecr    map[string]bool `json:"arg_ref_decr,omitempty" yaml:"arg_ref_decr,omitempty"`
	ErrorReturn   any             `json:"error_return,omitempty" yaml:"error_return,omitempty"`
	StealOn       string          `json:"steal_on,omitempty" yaml:"steal_on,omitempty"`
}

// 目录来源优先级：显式覆盖 > 推断条目 > 内置默认（固定策略，与合并顺序无关）
const (
	SourceBuiltin  = 0
	SourceInferred = 1
	SourceOverride = 2
)

// Catalog 进程级语义目录。启动时填充，分析开始前 Freeze，之后只读，
// 因此注入器的并发查询不需要加锁。
type Catalog struct {
	entries map[string]Entry
	ranks   map[string]int
	frozen  bool
}

// New 创建空目录
func New() *Catalog {
	return &Catalog{
		entries: make(map[string]Entry),
		ranks:   make(map[string]int),
	}
}

// Lookup 按函数名查条目。未知函数没有条目（开放世界）。
func (c *Catalog) Lookup(name string) (Entry, bool) {
	e, ok := c.entries[name]
	return e, ok
}

// Has 判断函数是否有条目
func (c *Catalog) Has(name string) bool {
	_, ok := c.entries[name]
	return ok
}

// Len 条目数量
func (c *Catalog) Len() int {
	return len(c.entries)
}

// Names 按字典序返回全部函数名
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Freeze 冻结目录。这是一次性的初始化屏障：所有来源合并完成后调用，
// 之后任何 Merge 都会报错。
func (c *Catalog) Freeze() {
	c.frozen = true
}

// Frozen 是否已冻结
func (c *Catalog) Frozen() bool {
	return c.frozen
}

// Merge 把一个来源的条目合并进目录，逐条验证。
// 非法条目被丢弃并记录警告，不会中断剩余条目的处理。
// 同名条目按来源优先级决定去留，与合并顺序无关。
func (c *Catalog) Merge(raw map[string]RawEntry, rank int) ([]string, error) {
	if c.frozen {
		return nil, fmt.Errorf("catalog is frozen, cannot merge new entries")
	}

	var warnings []string
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		entry, err := validateEntry(raw[name])
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("invalid catalog entry for %s: %v", name, err))
			continue
		}
		if existing, ok := c.ranks[name]; ok && existing > rank {
			// 已有更高优先级来源的条目
			continue
		}
		c.entries[name] = entry
		c.ranks[name] = rank
	}
	return warnings, nil
}

// validateEntry 按交换模式验证一条原始记录并转换为内部形式
func validateEntry(raw RawEntry) (Entry, error) {
	entry := Entry{
		ReturnRef:   RefNone,
		ErrorReturn: SentinelNone,
		StealOn:     StealAlways,
	}

	switch RefKind(raw.ReturnRefType) {
	case RefNew, RefBorrowed, RefNone:
		entry.ReturnRef = RefKind(raw.ReturnRefType)
	case "":
		// 缺省按 none 处理
	default:
		return Entry{}, fmt.Errorf("invalid return_ref_type %q", raw.ReturnRefType)
	}

	var err error
	if entry.ArgSteal, err = validateArgMap(raw.ArgRefSteal, "arg_ref_steal"); err != nil {
		return Entry{}, err
	}
	if entry.ArgIncr, err = validateArgMap(raw.ArgRefIncr, "arg_ref_incr"); err != nil {
		return Entry{}, err
	}
	if entry.ArgDecr, err = validateArgMap(raw.ArgRefDecr, "arg_ref_decr"); err != nil {
		return Entry{}, err
	}

	if entry.ErrorReturn, err = normalizeSentinel(raw.ErrorReturn); err != nil {
		return Entry{}, err
	}

	switch StealWhen(raw.StealOn) {
	case StealAlways, StealOnSuccess:
		entry.StealOn = StealWhen(raw.StealOn)
	case "":
		// 缺省：失败时 steal 也已发生，这是 CPython 容器 API 的主流约定
	default:
		return Entry{}, fmt.Errorf("invalid steal_on %q", raw.StealOn)
	}

	return entry, nil
}

// validateArgMap 校验实参索引映射：键必须是非负整数
func validateArgMap(raw map[string]bool, field string) (map[int]bool, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[int]bool, len(raw))
	for key, flag := range raw {
		idx, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("%s keys must be numeric indices, got %q", field, key)
		}
		if idx < 0 {
			return nil, fmt.Errorf("%s index must be non-negative, got %d", field, idx)
		}
		if flag {
			out[idx] = true
		}
	}
	return out, nil
}

// normalizeSentinel 把交换格式的 error_return 值规范化为哨兵枚举。
// JSON 数字反序列化为 float64，YAML 为 int，字符串形式也要接受。
func normalizeSentinel(v any) (Sentinel, error) {
	switch val := v.(type) {
	case nil:
		return SentinelNone, nil
	case string:
		switch Sentinel(val) {
		case SentinelNull, SentinelNegOne, SentinelZero, SentinelNone:
			return Sentinel(val), nil
		}
		return "", fmt.Errorf("invalid error_return %q", val)
	case float64:
		switch val {
		case -1:
			return SentinelNegOne, nil
		case 0:
			return SentinelZero, nil
		}
		return "", fmt.Errorf("invalid error_return %v", val)
	case int:
		switch val {
		case -1:
			return SentinelNegOne, nil
		case 0:
			return SentinelZero, nil
		}
		return "", fmt.Errorf("invalid error_return %v", val)
	default:
		return "", fmt.Errorf("invalid error_return type %T", v)
	}
}
