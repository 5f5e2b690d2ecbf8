package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/20000419/LISA-IR/internal/analysis"
)

// Format 报告格式类型
type Format string

const (
	FormatJSON  Format = "json"
	FormatText  Format = "text"
	FormatSARIF Format = "sarif"
	FormatAll   Format = "all"
)

// AnalysisResult 一次完整分析运行的汇总，交给写入器输出
type AnalysisResult struct {
	Findings          []analysis.Finding
	Duration          time.Duration
	FilesAnalyzed     int
	FunctionsAnalyzed int
	Unanalyzed        []string // 因结构错误被跳过的函数
}

// Writer 报告写入器接口
type Writer interface {
	Write(result *AnalysisResult) error
	WriteToFile(result *AnalysisResult, filename string) error
}

// Manager 报告管理器
type Manager struct {
	format    Format
	outputDir string
	timestamp bool
	filename  string
}

// ManagerOption 管理器选项
type ManagerOption func(*Manager)

// WithFormat 设置报告格式
func WithFormat(format Format) ManagerOption {
	return func(m *Manager) {
		m.format = format
	}
}

// WithOutputDir 设置输出目录
func WithOutputDir(dir string) ManagerOption {
	return func(m *Manager) {
		m.outputDir = dir
	}
}

// WithTimestamp 添加时间戳到文件名
func WithTimestamp() ManagerOption {
	return func(m *Manager) {
		m.timestamp = true
	}
}

// WithFilename 设置自定义文件名
func WithFilename(filename string) ManagerOption {
	return func(m *Manager) {
		m.filename = filename
	}
}

// NewManager 创建新的报告管理器
func NewManager(options ...ManagerOption) *Manager {
	m := &Manager{
		format:    FormatText,
		outputDir: ".",
		timestamp: false,
	}

	for _, opt := range options {
		opt(m)
	}

	return m
}

// CreateWriter 创建报告写入器
func (m *Manager) CreateWriter(format Format, writer io.Writer) (Writer, error) {
	switch format {
	case FormatJSON:
		return NewJSONWriter(writer), nil
	case FormatText:
		return NewTextWriter(writer), nil
	case FormatSARIF:
		return NewSARIFWriter(writer), nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// Generate 生成报告文件，返回写出的文件路径
func (m *Manager) Generate(result *AnalysisResult) ([]string, error) {
	var outputFiles []string

	switch m.format {
	case FormatAll:
		for _, format := range []Format{FormatJSON, FormatText, FormatSARIF} {
			files, err := m.generateSingleFormat(result, format)
			if err != nil {
				return nil, err
			}
			outputFiles = append(outputFiles, files...)
		}
	case FormatJSON, FormatText, FormatSARIF:
		files, err := m.generateSingleFormat(result, m.format)
		if err != nil {
			return nil, err
		}
		outputFiles = append(outputFiles, files...)
	default:
		return nil, fmt.Errorf("unsupported format: %s", m.format)
	}

	return outputFiles, nil
}

// generateSingleFormat 生成单个格式的报告
func (m *Manager) generateSingleFormat(result *AnalysisResult, format Format) ([]string, error) {
	if err := os.MkdirAll(m.outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	filename := m.generateFilename(format)
	filePath := filepath.Join(m.outputDir, filename)
	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()

	writer, err := m.CreateWriter(format, file)
	if err != nil {
		return nil, err
	}

	if err := writer.Write(result); err != nil {
		return nil, fmt.Errorf("failed to write %s report: %w", format, err)
	}

	return []string{filePath}, nil
}

// generateFilename 生成文件名
func (m *Manager) generateFilename(format Format) string {
	if m.filename != "" {
		return m.filename
	}

	timestamp := ""
	if m.timestamp {
		timestamp = time.Now().Format("20060102_150405")
	}

	baseName := "lisa_report"

	if timestamp != "" {
		return fmt.Sprintf("%s_%s.%s", baseName, timestamp, format)
	}

	return fmt.Sprintf("%s.%s", baseName, format)
}

// ParseFormat 解析格式字符串
func ParseFormat(formatStr string) (Format, error) {
	switch strings.ToLower(formatStr) {
	case "json":
		return FormatJSON, nil
	case "text":
		return FormatText, nil
	case "sarif":
		return FormatSARIF, nil
	case "all":
		return FormatAll, nil
	default:
		return "", fmt.Errorf("unsupported format: %s", formatStr)
	}
}

// SupportedFormats 获取支持的格式列表
func SupportedFormats() []Format {
	return []Format{FormatJSON, FormatText, FormatSARIF, FormatAll}
}

// FormatDescription 获取格式描述
func FormatDescription(format Format) string {
	descriptions := map[Format]string{
		FormatJSON:  "JSON format - Machine-readable output",
		FormatText:  "Text format - Human-readable console output",
		FormatSARIF: "SARIF format - Static Analysis Results Interchange Format",
		FormatAll:   "All formats - Generate reports in all supported formats",
	}

	if desc, ok := descriptions[format]; ok {
		return desc
	}

	return "Unknown format"
}

// SplitCoord 把 "file:line:col" 坐标拆开；缺列的坐标返回零值
func SplitCoord(coord string) (file string, line, col int) {
	idx := strings.LastIndex(coord, ":")
	if idx < 0 {
		return coord, 0, 0
	}
	fmt.Sscanf(coord[idx+1:], "%d", &col)
	rest := coord[:idx]
	idx = strings.LastIndex(rest, ":")
	if idx < 0 {
		return rest, 0, col
	}
	fmt.Sscanf(rest[idx+1:], "%d", &line)
	return rest[:idx], line, col
}
