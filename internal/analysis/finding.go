package analysis

// Kind 违规种类
type Kind string

const (
	KindLeak               Kind = "leak"
	KindDoubleFree         Kind = "double-free"
	KindBorrowedMisuse     Kind = "borrowed-misuse"
	KindIncorrectDecrement Kind = "incorrect-decrement"
	KindDivergentDisposal  Kind = "divergent-disposal"
)

// Severity levels
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

// Confidence levels
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// CWE IDs
const (
	CWE401 = "CWE-401" // Missing Release of Memory
	CWE415 = "CWE-415" // Double Free
	CWE763 = "CWE-763" // Release of Invalid Pointer or Reference
	CWE911 = "CWE-911" // Improper Update of Reference Count
)

// Finding 分析器产出的单条违规记录，产出后不再修改
type Finding struct {
	Kind       Kind   `json:"kind"`
	Function   string `json:"function"`
	Variable   string `json:"variable"`
	Coord      string `json:"coord"`
	Message    string `json:"message"`
	Severity   string `json:"severity"`
	Confidence string `json:"confidence"`
	CWE        string `json:"cwe"`
	ErrorPath  bool   `json:"error_path,omitempty"`
}
