package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"
)

// JSONReport JSON 格式报告
type JSONReport struct {
	GeneratedAt time.Time              `json:"generated_at"`
	Tool        ToolInfo               `json:"tool"`
	Summary     Summary                `json:"summary"`
	Findings    []FindingReport        `json:"findings"`
	Statistics  map[string]interface{} `json:"statistics,omitempty"`
}

// ToolInfo 工具信息
type ToolInfo struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
}

// Summary 发现统计摘要
type Summary struct {
	Total         int            `json:"total"`
	BySeverity    map[string]int `json:"by_severity"`
	ByKind        map[string]int `json:"by_kind"`
	FilesAnalyzed int            `json:"files_analyzed,omitempty"`
}

// FindingReport 单条发现的输出结构
type FindingReport struct {
	Kind       string `json:"kind"`
	CWE        string `json:"cwe,omitempty"`
	Message    string `json:"message"`
	Function   string `json:"function"`
	Variable   string `json:"variable,omitempty"`
	File       string `json:"file"`
	Line       int    `json:"line"`
	Column     int    `json:"column"`
	Severity   string `json:"severity"`
	Confidence string `json:"confidence"`
	ErrorPath  bool   `json:"error_path,omitempty"`
}

// JSONWriter JSON 报告写入器
type JSONWriter struct {
	writer io.Writer
	pretty bool
}

// NewJSONWriter 创建新的 JSON 写入器
func NewJSONWriter(writer io.Writer, options ...JSONOption) *JSONWriter {
	w := &JSONWriter{
		writer: writer,
		pretty: false,
	}

	for _, opt := range options {
		opt(w)
	}

	return w
}

// JSONOption JSON 选项
type JSONOption func(*JSONWriter)

// WithPrettyJSON 启用美化 JSON 输出
func WithPrettyJSON() JSONOption {
	return func(w *JSONWriter) {
		w.pretty = true
	}
}

// Write 生成并写入报告
func (w *JSONWriter) Write(result *AnalysisResult) error {
	report := w.generateReport(result)

	var data []byte
	var err error

	if w.pretty {
		data, err = json.MarshalIndent(report, "", "  ")
	} else {
		data, err = json.Marshal(report)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON report: %w", err)
	}

	_, err = w.writer.Write(data)
	return err
}

// WriteToFile 写入到文件
func (w *JSONWriter) WriteToFile(result *AnalysisResult, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()

	writer := NewJSONWriter(file, w.options()...)
	return writer.Write(result)
}

// generateReport 生成报告数据
func (w *JSONWriter) generateReport(result *AnalysisResult) *JSONReport {
	report := &JSONReport{
		GeneratedAt: time.Now(),
		Tool: ToolInfo{
			Name:        "LISA-IR",
			Version:     "1.0.0",
			Description: "Semantic lifting and reference-state analysis for C extension code",
		},
		Summary: Summary{
			Total:         len(result.Findings),
			BySeverity:    make(map[string]int),
			ByKind:        make(map[string]int),
			FilesAnalyzed: result.FilesAnalyzed,
		},
		Findings:   make([]FindingReport, 0, len(result.Findings)),
		Statistics: make(map[string]interface{}),
	}

	for _, f := range result.Findings {
		report.Summary.BySeverity[f.Severity]++
		report.Summary.ByKind[string(f.Kind)]++

		file, line, col := SplitCoord(f.Coord)
		report.Findings = append(report.Findings, FindingReport{
			Kind:       string(f.Kind),
			CWE:        f.CWE,
			Message:    f.Message,
			Function:   f.Function,
			Variable:   f.Variable,
			File:       file,
			Line:       line,
			Column:     col,
			Severity:   f.Severity,
			Confidence: f.Confidence,
			ErrorPath:  f.ErrorPath,
		})
	}

	// 按严重性排序，同级按行号
	severityOrder := map[string]int{
		"high":   0,
		"medium": 1,
		"low":    2,
	}
	sort.SliceStable(report.Findings, func(i, j int) bool {
		si := severityOrder[report.Findings[i].Severity]
		sj := severityOrder[report.Findings[j].Severity]
		if si == sj {
			return report.Findings[i].Line < report.Findings[j].Line
		}
		return si < sj
	})

	report.Statistics["analysis_duration"] = result.Duration.String()
	report.Statistics["functions_analyzed"] = result.FunctionsAnalyzed
	if len(result.Unanalyzed) > 0 {
		report.Statistics["unanalyzed_functions"] = result.Unanalyzed
	}

	return report
}

// options 获取选项
func (w *JSONWriter) options() []JSONOption {
	opts := []JSONOption{}
	if w.pretty {
		opts = append(opts, WithPrettyJSON())
	}
	return opts
}
