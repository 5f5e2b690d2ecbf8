package analysis

// RefState 变量在某程序点的引用所有权状态。
// Unknown 是格的顶元素：合并不兼容状态的结果，分析对它保持保守。
type RefState uint8

const (
	StateUnknown RefState = iota
	StateOwned
	StateBorrowed
	StateStolen
	StateReleased
)

func (s RefState) String() string {
	switch s {
	case StateOwned:
		return "owned"
	case StateBorrowed:
		return "borrowed"
	case StateStolen:
		return "stolen"
	case StateReleased:
		return "released"
	default:
		return "unknown"
	}
}

// varState 单个变量的跟踪状态及其来源调用（诊断消息用）
type varState struct {
	State       RefState
	Origin      string
	OriginCoord string
}

// stateMap 某程序点全部被跟踪变量的状态；缺失的键视为 Unknown
type stateMap map[string]varState

func cloneState(s stateMap) stateMap {
	out := make(stateMap, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// mergeState 汇合点的逐变量合并：状态相同则保留（含第一条边的来源），
// 不同则向顶元素 Unknown 收敛。缺失视为 Unknown。
func mergeState(states []stateMap) stateMap {
	if len(states) == 0 {
		return stateMap{}
	}
	out := cloneState(states[0])
	for _, s := range states[1:] {
		for name, vs := range s {
			cur, tracked := out[name]
			if !tracked {
				out[name] = varState{State: StateUnknown}
				continue
			}
			if cur.State != vs.State {
				out[name] = varState{State: StateUnknown}
			}
		}
		for name := range out {
			if _, tracked := s[name]; !tracked {
				out[name] = varState{State: StateUnknown}
			}
		}
	}
	return out
}

func statesEqual(a, b stateMap) bool {
	if len(a) != len(b) {
		return false
	}
	for k, va := range a {
		vb, ok := b[k]
		if !ok || va != vb {
			return false
		}
	}
	return true
}
