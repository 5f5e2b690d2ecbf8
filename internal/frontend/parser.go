// Package frontend 基于 tree-sitter 的 C 前端：解析源文件并
// 把语法树转换成分析器使用的 C 子集 AST。
package frontend

import (
	"context"
	"fmt"
	"os"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
)

// ParserPool 管理 tree-sitter Parser 实例池。
// 每个 goroutine 从池里取独立的 Parser，避免全局锁。
type ParserPool struct {
	pool sync.Pool
}

// NewParserPool 创建新的 Parser Pool
func NewParserPool() *ParserPool {
	return &ParserPool{
		pool: sync.Pool{
			New: func() interface{} {
				parser := sitter.NewParser()
				parser.SetLanguage(c.GetLanguage())
				return parser
			},
		},
	}
}

var globalParserPool = NewParserPool()

// GetParser 从池获取 Parser
func GetParser() *sitter.Parser {
	return globalParserPool.pool.Get().(*sitter.Parser)
}

// PutParser 归还 Parser，重置状态以便重用
func PutParser(parser *sitter.Parser) {
	parser.Reset()
	globalParserPool.pool.Put(parser)
}

// ParsedUnit 一个已解析的翻译单元
type ParsedUnit struct {
	FilePath string
	Root     *sitter.Node
	Source   []byte
	Tree     *sitter.Tree
}

// Text 取节点覆盖的源码文本，越界时返回空串
func (u *ParsedUnit) Text(node *sitter.Node) string {
	if node == nil {
		return ""
	}
	start := node.StartByte()
	end := node.EndByte()
	if end > uint32(len(u.Source)) {
		end = uint32(len(u.Source))
	}
	if start >= end {
		return ""
	}
	return string(u.Source[start:end])
}

// ParseFile 解析单个 C 源文件
func ParseFile(ctx context.Context, filePath string) (*ParsedUnit, error) {
	source, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", filePath, err)
	}
	return ParseSource(ctx, filePath, source)
}

// ParseSource 解析内存中的 C 源码
func ParseSource(ctx context.Context, name string, source []byte) (*ParsedUnit, error) {
	parser := GetParser()
	defer PutParser(parser)

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}

	return &ParsedUnit{
		FilePath: name,
		Root:     tree.RootNode(),
		Source:   source,
		Tree:     tree,
	}, nil
}
