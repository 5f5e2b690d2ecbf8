package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/20000419/LISA-IR/internal/analysis"
)

func sampleResult() *AnalysisResult {
	return &AnalysisResult{
		Findings: []analysis.Finding{
			{
				Kind:       analysis.KindLeak,
				Function:   "create_int_list",
				Variable:   "list",
				Coord:      "leaky_module.c:23:9",
				Message:    `reference held by "list" is never released`,
				Severity:   analysis.SeverityMedium,
				Confidence: analysis.ConfidenceMedium,
				CWE:        analysis.CWE401,
				ErrorPath:  true,
			},
			{
				Kind:       analysis.KindDoubleFree,
				Function:   "create_tuple_from_list",
				Variable:   "item",
				Coord:      "leaky_module.c:88:13",
				Message:    `releasing "item" whose ownership was already transferred away`,
				Severity:   analysis.SeverityHigh,
				Confidence: analysis.ConfidenceHigh,
				CWE:        analysis.CWE415,
			},
		},
		Duration:          125 * time.Millisecond,
		FilesAnalyzed:     1,
		FunctionsAnalyzed: 6,
	}
}

func TestSplitCoord(t *testing.T) {
	tests := []struct {
		coord    string
		wantFile string
		wantLine int
		wantCol  int
	}{
		{"module.c:10:5", "module.c", 10, 5},
		{"dir/sub/module.c:3:1", "dir/sub/module.c", 3, 1},
		{"module.c:7", "module.c", 0, 7},
		{"module.c", "module.c", 0, 0},
		{"", "", 0, 0},
	}
	for _, tt := range tests {
		file, line, col := SplitCoord(tt.coord)
		assert.Equal(t, tt.wantFile, file, tt.coord)
		assert.Equal(t, tt.wantLine, line, tt.coord)
		assert.Equal(t, tt.wantCol, col, tt.coord)
	}
}

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"json", "JSON", "text", "sarif", "all"} {
		f, err := ParseFormat(s)
		require.NoError(t, err)
		assert.Equal(t, Format(strings.ToLower(s)), f)
	}

	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestJSONWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONWriter(&buf, WithPrettyJSON())
	require.NoError(t, w.Write(sampleResult()))

	var report JSONReport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &report))

	assert.Equal(t, "LISA-IR", report.Tool.Name)
	assert.Equal(t, 2, report.Summary.Total)
	assert.Equal(t, 1, report.Summary.BySeverity["high"])
	assert.Equal(t, 1, report.Summary.ByKind["leak"])

	// 按严重性排序：high 在前
	require.Len(t, report.Findings, 2)
	assert.Equal(t, "double-free", report.Findings[0].Kind)
	assert.Equal(t, "leaky_module.c", report.Findings[0].File)
	assert.Equal(t, 88, report.Findings[0].Line)
	assert.Equal(t, 13, report.Findings[0].Column)
	assert.True(t, report.Findings[1].ErrorPath)
}

func TestTextWriterWithFindings(t *testing.T) {
	var buf bytes.Buffer
	w := NewTextWriter(&buf, WithVerbose())
	require.NoError(t, w.Write(sampleResult()))

	out := buf.String()
	assert.Contains(t, out, "LISA-IR Reference-State Analysis Results")
	assert.Contains(t, out, "Total findings: 2")
	assert.Contains(t, out, "HIGH Findings (1):")
	assert.Contains(t, out, "MEDIUM Findings (1):")
	assert.Contains(t, out, "leaky_module.c")
	assert.Contains(t, out, "double-free")
	assert.Contains(t, out, "CWE-415")
}

func TestTextWriterNoFindings(t *testing.T) {
	var buf bytes.Buffer
	w := NewTextWriter(&buf)
	require.NoError(t, w.Write(&AnalysisResult{FilesAnalyzed: 2, FunctionsAnalyzed: 5}))

	out := buf.String()
	assert.Contains(t, out, "No reference-counting issues found")
	assert.Contains(t, out, "Functions analyzed: 5")
}

func TestSARIFWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewSARIFWriter(&buf)
	require.NoError(t, w.Write(sampleResult()))

	var sarif SARIF
	require.NoError(t, json.Unmarshal(buf.Bytes(), &sarif))

	assert.Equal(t, "2.1.0", sarif.Version)
	require.Len(t, sarif.Runs, 1)

	run := sarif.Runs[0]
	assert.Equal(t, "LISA-IR", run.Tool.Driver.Name)

	// 规则表按 CWE 排序且结果的 ruleIndex 一致
	require.Len(t, run.Tool.Driver.Rules, 2)
	assert.Equal(t, "CWE-401", run.Tool.Driver.Rules[0].ID)
	assert.Equal(t, "CWE-415", run.Tool.Driver.Rules[1].ID)

	require.Len(t, run.Results, 2)
	for _, res := range run.Results {
		assert.Equal(t, res.RuleID, run.Tool.Driver.Rules[res.RuleIndex].ID)
	}

	byRule := make(map[string]Result)
	for _, res := range run.Results {
		byRule[res.RuleID] = res
	}
	assert.Equal(t, "warning", byRule["CWE-401"].Level)
	assert.Equal(t, "error", byRule["CWE-415"].Level)
	assert.Equal(t, "leaky_module.c", byRule["CWE-415"].Locations[0].PhysicalLocation.ArtifactLocation.URI)
	assert.Equal(t, 88, byRule["CWE-415"].Locations[0].PhysicalLocation.Region.StartLine)
}

func TestManagerGenerate(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(WithFormat(FormatJSON), WithOutputDir(dir))

	files, err := m.Generate(sampleResult())
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, filepath.Join(dir, "lisa_report.json"), files[0])

	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	var report JSONReport
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, 2, report.Summary.Total)
}

func TestManagerGenerateAllFormats(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(WithFormat(FormatAll), WithOutputDir(dir))

	files, err := m.Generate(sampleResult())
	require.NoError(t, err)
	require.Len(t, files, 3)

	exts := make(map[string]bool)
	for _, f := range files {
		exts[filepath.Ext(f)] = true
		info, err := os.Stat(f)
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0))
	}
	assert.True(t, exts[".json"])
	assert.True(t, exts[".text"])
	assert.True(t, exts[".sarif"])
}

func TestManagerCustomFilename(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(WithFormat(FormatJSON), WithOutputDir(dir), WithFilename("custom.json"))

	files, err := m.Generate(sampleResult())
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, filepath.Join(dir, "custom.json"), files[0])
}

func TestCreateWriterRejectsUnknownFormat(t *testing.T) {
	m := NewManager()
	_, err := m.CreateWriter(Format("xml"), &bytes.Buffer{})
	assert.Error(t, err)
}
