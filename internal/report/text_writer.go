package report

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/20000419/LISA-IR/internal/analysis"
)

// TextWriter 文本格式报告写入器
type TextWriter struct {
	writer    io.Writer
	verbose   bool
	showStats bool
}

// NewTextWriter 创建新的文本写入器
func NewTextWriter(writer io.Writer, options ...TextOption) *TextWriter {
	w := &TextWriter{
		writer:    writer,
		verbose:   false,
		showStats: true,
	}

	for _, opt := range options {
		opt(w)
	}

	return w
}

// TextOption 文本选项
type TextOption func(*TextWriter)

// WithVerbose 启用详细输出
func WithVerbose() TextOption {
	return func(w *TextWriter) {
		w.verbose = true
	}
}

// WithoutStats 禁用统计信息
func WithoutStats() TextOption {
	return func(w *TextWriter) {
		w.showStats = false
	}
}

// Write 生成并写入文本报告
func (w *TextWriter) Write(result *AnalysisResult) error {
	if len(result.Findings) == 0 {
		w.writeNoFindings(result)
		return nil
	}

	w.writeHeader(result)

	if w.showStats {
		w.writeStatistics(result)
	}

	w.writeFindings(result)

	return nil
}

// WriteToFile 写入到文件
func (w *TextWriter) WriteToFile(result *AnalysisResult, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()

	writer := NewTextWriter(file, w.options()...)
	return writer.Write(result)
}

// writeHeader 写入报告标题
func (w *TextWriter) writeHeader(result *AnalysisResult) {
	fmt.Fprintf(w.writer, "\n")
	fmt.Fprintf(w.writer, "LISA-IR Reference-State Analysis Results\n")
	fmt.Fprintf(w.writer, "=========================================\n")
	fmt.Fprintf(w.writer, "Analysis Time: %s\n", result.Duration)
	fmt.Fprintf(w.writer, "Generated: %s\n\n", time.Now().Format(time.RFC3339))
}

// writeNoFindings 写入无发现信息
func (w *TextWriter) writeNoFindings(result *AnalysisResult) {
	fmt.Fprintf(w.writer, "\n✓ No reference-counting issues found.\n\n")
	fmt.Fprintf(w.writer, "Analysis Summary:\n")
	fmt.Fprintf(w.writer, "  Files analyzed: %d\n", result.FilesAnalyzed)
	fmt.Fprintf(w.writer, "  Functions analyzed: %d\n", result.FunctionsAnalyzed)
	fmt.Fprintf(w.writer, "  Duration: %s\n\n", result.Duration)
}

// writeStatistics 写入统计信息
func (w *TextWriter) writeStatistics(result *AnalysisResult) {
	severityCount := make(map[string]int)
	kindCount := make(map[string]int)
	fileCount := make(map[string]int)
	for _, f := range result.Findings {
		severityCount[f.Severity]++
		kindCount[string(f.Kind)]++
		file, _, _ := SplitCoord(f.Coord)
		fileCount[file]++
	}

	fmt.Fprintf(w.writer, "Summary:\n")
	fmt.Fprintf(w.writer, "--------\n")
	fmt.Fprintf(w.writer, "Total findings: %d\n", len(result.Findings))
	fmt.Fprintf(w.writer, "  High: %d\n", severityCount["high"])
	fmt.Fprintf(w.writer, "  Medium: %d\n", severityCount["medium"])
	fmt.Fprintf(w.writer, "  Low: %d\n\n", severityCount["low"])

	if w.verbose {
		fmt.Fprintf(w.writer, "By Kind:\n")
		for _, kind := range sortedKeys(kindCount) {
			fmt.Fprintf(w.writer, "  %s: %d\n", kind, kindCount[kind])
		}
		fmt.Fprintf(w.writer, "\n")
	}

	fmt.Fprintf(w.writer, "Files with issues: %d\n", len(fileCount))
	if len(result.Unanalyzed) > 0 {
		fmt.Fprintf(w.writer, "Functions skipped (structural errors): %d\n", len(result.Unanalyzed))
		if w.verbose {
			for _, fn := range result.Unanalyzed {
				fmt.Fprintf(w.writer, "  - %s\n", fn)
			}
		}
	}
	fmt.Fprintf(w.writer, "\n")
}

// writeFindings 写入发现详情
func (w *TextWriter) writeFindings(result *AnalysisResult) {
	groups := make(map[string][]analysis.Finding)
	for _, f := range result.Findings {
		groups[f.Severity] = append(groups[f.Severity], f)
	}

	for _, severity := range []string{"high", "medium", "low"} {
		findings, ok := groups[severity]
		if !ok || len(findings) == 0 {
			continue
		}

		fileGroups := make(map[string][]analysis.Finding)
		for _, f := range findings {
			file, _, _ := SplitCoord(f.Coord)
			fileGroups[file] = append(fileGroups[file], f)
		}

		fmt.Fprintf(w.writer, "%s Findings (%d):\n", strings.ToUpper(severity), len(findings))
		fmt.Fprintf(w.writer, "%s\n", strings.Repeat("=", 50))

		for _, filename := range sortedFileKeys(fileGroups) {
			fmt.Fprintf(w.writer, "\nFile: %s\n", filename)
			fmt.Fprintf(w.writer, "%s\n", strings.Repeat("-", 50))

			tw := tabwriter.NewWriter(w.writer, 0, 8, 2, ' ', 0)
			for _, f := range fileGroups[filename] {
				_, line, col := SplitCoord(f.Coord)
				fmt.Fprintf(tw, "  %s\t%d:%d\t%s\t%s\t(%s)\n",
					f.Kind,
					line,
					col,
					f.Function,
					f.Message,
					f.Confidence,
				)
				if w.verbose && f.CWE != "" {
					fmt.Fprintf(tw, "  \t\t%s\n", f.CWE)
				}
			}
			tw.Flush()
		}
		fmt.Fprintf(w.writer, "\n")
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedFileKeys(m map[string][]analysis.Finding) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// options 获取选项
func (w *TextWriter) options() []TextOption {
	opts := []TextOption{}
	if w.verbose {
		opts = append(opts, WithVerbose())
	}
	if !w.showStats {
		opts = append(opts, WithoutStats())
	}
	return opts
}
