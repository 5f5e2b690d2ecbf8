package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/20000419/LISA-IR/internal/analysis"
	"github.com/20000419/LISA-IR/internal/catalog"
	"github.com/20000419/LISA-IR/internal/frontend"
	"github.com/20000419/LISA-IR/internal/inject"
	"github.com/20000419/LISA-IR/internal/ir"
	"github.com/20000419/LISA-IR/internal/lifter"
	"github.com/20000419/LISA-IR/internal/report"
)

// getExcludedDirs 目录扫描时跳过的目录
func getExcludedDirs() map[string]bool {
	return map[string]bool{
		"build": true, "dist": true, "cmake-build": true,
		"vendor": true, "node_modules": true, "third_party": true,
		".git": true, ".svn": true, ".hg": true,
		".cache": true, ".idea": true, ".vscode": true,
		"__pycache__": true, ".pytest_cache": true,
	}
}

// fileResult 单个文件的分析结果
type fileResult struct {
	path       string
	findings   []analysis.Finding
	functions  int
	unanalyzed []string
	err        error
}

// analyzeFile 完整流水线：解析 → AST 转换 → 提升 → 语义注入 → 引用状态分析
func analyzeFile(ctx context.Context, path string, cat *catalog.Catalog, dumpIR string, verbose bool) fileResult {
	result := fileResult{path: path}

	unit, err := frontend.ParseFile(ctx, path)
	if err != nil {
		result.err = err
		return result
	}

	file := frontend.Convert(unit)
	mod, structErrs := lifter.LowerModule(file)
	for _, se := range structErrs {
		result.unanalyzed = append(result.unanalyzed, se.Func)
		if verbose {
			log.Printf("跳过函数: %v", se)
		}
	}

	if verbose {
		for _, name := range mod.Order {
			if dead := mod.Functions[name].UnreachableBlocks(); len(dead) > 0 {
				log.Printf("%s: 函数 %s 含 %d 个不可达块", path, name, len(dead))
			}
		}
	}

	inject.AnnotateModule(mod, cat)

	if dumpIR != "" {
		dumpModule(mod, dumpIR)
	}

	analyzer := analysis.New()
	result.findings = analyzer.AnalyzeModule(mod)
	result.functions = len(mod.Order)
	return result
}

// dumpModule 把提升后的 IR 打到标准输出（调试用）
func dumpModule(mod *ir.Module, format string) {
	for _, name := range mod.Order {
		fn := mod.Functions[name]
		switch format {
		case "sexp":
			fmt.Println(ir.DumpSexp(fn))
		default:
			data, err := ir.DumpJSON(fn)
			if err != nil {
				log.Printf("Warning: failed to dump IR for %s: %v", name, err)
				continue
			}
			fmt.Println(string(data))
		}
	}
}

// collectFiles 展开命令行参数里的文件和目录
func collectFiles(args []string) ([]string, error) {
	excluded := getExcludedDirs()
	var files []string

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}

		if !info.IsDir() {
			files = append(files, arg)
			continue
		}

		err = filepath.Walk(arg, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return nil
			}
			if info.IsDir() {
				if excluded[strings.ToLower(filepath.Base(path))] {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.ToLower(filepath.Ext(path)) == ".c" {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

// buildCatalog 按固定优先级组装语义目录：内置 < 外部条目 < 显式覆盖。
// 全部来源合并完成后冻结，之后并发分析只读不写。
func buildCatalog(catalogFile, overrideFile string) (*catalog.Catalog, error) {
	cat := catalog.New()
	if err := catalog.LoadBuiltins(cat); err != nil {
		return nil, err
	}

	merge := func(path string, rank int) error {
		if path == "" {
			return nil
		}
		raw, err := catalog.LoadFile(path)
		if err != nil {
			return err
		}
		warnings, err := cat.Merge(raw, rank)
		if err != nil {
			return err
		}
		for _, w := range warnings {
			log.Printf("Warning: %s: %s", path, w)
		}
		return nil
	}

	if err := merge(catalogFile, catalog.SourceInferred); err != nil {
		return nil, err
	}
	if err := merge(overrideFile, catalog.SourceOverride); err != nil {
		return nil, err
	}

	cat.Freeze()
	return cat, nil
}

func main() {
	// 根据 CPU 核心数自动调整 workers，不低于 4，不超过 32
	defaultWorkers := runtime.NumCPU()
	if defaultWorkers < 4 {
		defaultWorkers = 4
	}
	if defaultWorkers > 32 {
		defaultWorkers = 32
	}

	var (
		workers     = flag.Int("workers", defaultWorkers, "Number of worker goroutines (default: NumCPU, capped at 32)")
		verbose     = flag.Bool("v", false, "Verbose output")
		format      = flag.String("format", "text", "Output format (text, json, sarif, all)")
		output      = flag.String("output", "", "Output file name for report (e.g., report.json)")
		outputDir   = flag.String("output-dir", ".", "Output directory for report files")
		timestamp   = flag.Bool("timestamp", false, "Add timestamp to output files")
		listFormats = flag.Bool("list-formats", false, "List supported output formats")
		catalogFile = flag.String("catalog", "", "External semantic catalog file (JSON or YAML)")
		override    = flag.String("override", "", "Override catalog file, takes precedence over all other sources")
		dumpIR      = flag.String("dump-ir", "", "Dump lifted IR to stdout (json, sexp)")
		help        = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *listFormats {
		fmt.Println("Supported output formats:")
		for _, f := range report.SupportedFormats() {
			fmt.Printf("  %-6s %s\n", f, report.FormatDescription(f))
		}
		return
	}

	if *help || flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <file.c | directory> ...\n\nOptions:\n", os.Args[0])
		flag.PrintDefaults()
		if *help {
			return
		}
		os.Exit(2)
	}

	if *dumpIR != "" && *dumpIR != "json" && *dumpIR != "sexp" {
		log.Fatalf("Invalid dump-ir value: %q (want json or sexp)", *dumpIR)
	}

	outputFormat, err := report.ParseFormat(*format)
	if err != nil {
		log.Fatalf("Invalid format: %v", err)
	}

	cat, err := buildCatalog(*catalogFile, *override)
	if err != nil {
		log.Fatalf("Failed to build semantic catalog: %v", err)
	}
	if *verbose {
		log.Printf("语义目录就绪: %d 个条目", cat.Len())
	}

	files, err := collectFiles(flag.Args())
	if err != nil {
		log.Fatalf("%v", err)
	}
	if len(files) == 0 {
		log.Printf("未找到任何 C 文件")
		return
	}
	if *verbose {
		log.Printf("发现 %d 个 C 文件", len(files))
	}

	start := time.Now()
	ctx := context.Background()

	// 按文件并行：每个函数的分析是独立的顺序计算，文件之间无共享可变状态
	jobs := make(chan string, len(files))
	results := make(chan fileResult, len(files))

	n := *workers
	if n > len(files) {
		n = len(files)
	}
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				results <- analyzeFile(ctx, path, cat, *dumpIR, *verbose)
			}
		}()
	}
	for _, f := range files {
		jobs <- f
	}
	close(jobs)
	wg.Wait()
	close(results)

	summary := &report.AnalysisResult{}
	failed := 0
	for r := range results {
		if r.err != nil {
			log.Printf("Failed to analyze %s: %v", r.path, r.err)
			failed++
			continue
		}
		summary.Findings = append(summary.Findings, r.findings...)
		summary.FilesAnalyzed++
		summary.FunctionsAnalyzed += r.functions
		summary.Unanalyzed = append(summary.Unanalyzed, r.unanalyzed...)
	}
	summary.Duration = time.Since(start)

	if *output == "" && *outputDir == "." && outputFormat == report.FormatText {
		// 没有指定输出文件时文本报告直接打到标准输出
		writer := report.NewTextWriter(os.Stdout, textOptions(*verbose)...)
		if err := writer.Write(summary); err != nil {
			log.Fatalf("Failed to write report: %v", err)
		}
	} else {
		opts := []report.ManagerOption{
			report.WithFormat(outputFormat),
			report.WithOutputDir(*outputDir),
		}
		if *output != "" {
			opts = append(opts, report.WithFilename(*output))
		}
		if *timestamp {
			opts = append(opts, report.WithTimestamp())
		}
		manager := report.NewManager(opts...)
		outputFiles, err := manager.Generate(summary)
		if err != nil {
			log.Fatalf("Failed to generate report: %v", err)
		}
		for _, f := range outputFiles {
			log.Printf("报告已写入: %s", f)
		}
	}

	if *verbose {
		log.Printf("分析完成: %d 个文件, %d 个函数, %d 条发现, 耗时 %v",
			summary.FilesAnalyzed, summary.FunctionsAnalyzed, len(summary.Findings), summary.Duration)
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func textOptions(verbose bool) []report.TextOption {
	if verbose {
		return []report.TextOption{report.WithVerbose()}
	}
	return nil
}
