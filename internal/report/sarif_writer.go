package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// SARIFWriter SARIF 格式报告写入器
type SARIFWriter struct {
	writer io.Writer
	pretty bool
}

// NewSARIFWriter 创建新的 SARIF 写入器
func NewSARIFWriter(writer io.Writer, options ...SARIFOption) *SARIFWriter {
	w := &SARIFWriter{
		writer: writer,
		pretty: false,
	}

	for _, opt := range options {
		opt(w)
	}

	return w
}

// SARIFOption SARIF 选项
type SARIFOption func(*SARIFWriter)

// WithPrettySARIF 启用美化 JSON 输出
func WithPrettySARIF() SARIFOption {
	return func(w *SARIFWriter) {
		w.pretty = true
	}
}

// Write 生成并写入 SARIF 报告
func (w *SARIFWriter) Write(result *AnalysisResult) error {
	sarifReport := w.generateSARIFReport(result)

	var data []byte
	var err error

	if w.pretty {
		data, err = json.MarshalIndent(sarifReport, "", "  ")
	} else {
		data, err = json.Marshal(sarifReport)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal SARIF report: %w", err)
	}

	_, err = w.writer.Write(data)
	return err
}

// WriteToFile 写入到文件
func (w *SARIFWriter) WriteToFile(result *AnalysisResult, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()

	writer := NewSARIFWriter(file, w.options()...)
	return writer.Write(result)
}

// generateSARIFReport 按 SARIF 2.1.0 规范生成报告
func (w *SARIFWriter) generateSARIFReport(result *AnalysisResult) *SARIF {
	rules, ruleIndex := w.generateRules(result)
	return &SARIF{
		Version: "2.1.0",
		Schema:  "https://json.schemastore.org/sarif-2.1.0.json",
		Runs: []Run{
			{
				Tool: Tool{
					Driver: Driver{
						Name:    "LISA-IR",
						Version: "1.0.0",
						Rules:   rules,
					},
				},
				Results: w.generateResults(result, ruleIndex),
			},
		},
	}
}

// generateRules 生成规则定义表和 CWE 到索引的映射
func (w *SARIFWriter) generateRules(result *AnalysisResult) ([]Rule, map[string]int) {
	byID := make(map[string]Rule)

	for _, f := range result.Findings {
		ruleID := f.CWE
		if ruleID == "" {
			ruleID = string(f.Kind)
		}
		if _, exists := byID[ruleID]; !exists {
			byID[ruleID] = Rule{
				ID:               ruleID,
				Name:             string(f.Kind),
				ShortDescription: Description{Text: string(f.Kind)},
				FullDescription:  Description{Text: fmt.Sprintf("Reference-counting violation: %s", f.Kind)},
				HelpURI:          cweHelpURI(ruleID),
			}
		}
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rules := make([]Rule, 0, len(ids))
	index := make(map[string]int, len(ids))
	for i, id := range ids {
		rules = append(rules, byID[id])
		index[id] = i
	}
	return rules, index
}

func cweHelpURI(ruleID string) string {
	if !strings.HasPrefix(ruleID, "CWE-") {
		return ""
	}
	return fmt.Sprintf("https://cwe.mitre.org/data/definitions/%s.html", strings.TrimPrefix(ruleID, "CWE-"))
}

// generateResults 生成结果列表
func (w *SARIFWriter) generateResults(result *AnalysisResult, ruleIndex map[string]int) []Result {
	results := make([]Result, 0, len(result.Findings))

	for _, f := range result.Findings {
		ruleID := f.CWE
		if ruleID == "" {
			ruleID = string(f.Kind)
		}

		file, line, col := SplitCoord(f.Coord)
		res := Result{
			RuleID:    ruleID,
			RuleIndex: ruleIndex[ruleID],
			Level:     w.mapSeverityToSARIF(f.Severity),
			Message:   Message{Text: f.Message},
			Locations: []Location{
				{
					PhysicalLocation: PhysicalLocation{
						ArtifactLocation: ArtifactLocation{
							URI: file,
						},
						Region: Region{
							StartLine:   line,
							StartColumn: col,
						},
					},
				},
			},
		}

		res.Properties = map[string]interface{}{
			"confidence": f.Confidence,
			"function":   f.Function,
			"variable":   f.Variable,
		}
		if f.ErrorPath {
			res.Properties["error_path"] = true
		}

		results = append(results, res)
	}

	return results
}

// mapSeverityToSARIF 映射严重性到 SARIF 级别
func (w *SARIFWriter) mapSeverityToSARIF(severity string) string {
	switch severity {
	case "high":
		return "error"
	case "medium":
		return "warning"
	case "low":
		return "note"
	default:
		return "warning"
	}
}

// options 获取选项
func (w *SARIFWriter) options() []SARIFOption {
	opts := []SARIFOption{}
	if w.pretty {
		opts = append(opts, WithPrettySARIF())
	}
	return opts
}

// SARIF SARIF 报告结构
type SARIF struct {
	Version string `json:"version"`
	Schema  string `json:"$schema"`
	Runs    []Run  `json:"runs"`
}

// Run SARIF 运行
type Run struct {
	Tool    Tool     `json:"tool"`
	Results []Result `json:"results"`
}

// Tool SARIF 工具
type Tool struct {
	Driver Driver `json:"driver"`
}

// Driver 工具驱动
type Driver struct {
	Name           string `json:"name"`
	Version        string `json:"version"`
	InformationURI string `json:"informationUri,omitempty"`
	Rules          []Rule `json:"rules,omitempty"`
}

// Rule SARIF 规则
type Rule struct {
	ID               string      `json:"id"`
	Name             string      `json:"name"`
	ShortDescription Description `json:"shortDescription"`
	FullDescription  Description `json:"fullDescription"`
	HelpURI          string      `json:"helpUri,omitempty"`
}

// Description 描述
type Description struct {
	Text string `json:"text"`
}

// Result SARIF 结果
type Result struct {
	RuleID     string                 `json:"ruleId"`
	RuleIndex  int                    `json:"ruleIndex"`
	Level      string                 `json:"level"`
	Message    Message                `json:"message"`
	Locations  []Location             `json:"locations,omitempty"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// Message 消息
type Message struct {
	Text string `json:"text"`
}

// Location 位置
type Location struct {
	PhysicalLocation PhysicalLocation `json:"physicalLocation,omitempty"`
}

// PhysicalLocation 物理位置
type PhysicalLocation struct {
	ArtifactLocation ArtifactLocation `json:"artifactLocation"`
	Region           Region           `json:"region,omitempty"`
}

// ArtifactLocation artifact 位置
type ArtifactLocation struct {
	URI string `json:"uri"`
}

// Region 区域
type Region struct {
	StartLine   int `json:"startLine"`
	StartColumn int `json:"startColumn,omitempty"`
	EndLine     int `json:"endLine,omitempty"`
	EndColumn   int `json:"endColumn,omitempty"`
}
