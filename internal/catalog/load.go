package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFile 按扩展名从 JSON 或 YAML 目录文件读取原始条目
func LoadFile(path string) (map[string]RawEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	case ".json":
		return ParseJSON(data)
	default:
		return nil, fmt.Errorf("unsupported catalog format %q (want .json, .yaml or .yml)", filepath.Ext(path))
	}
}

// ParseJSON 解析 JSON 目录文档：顶层为函数名到条目的映射
func ParseJSON(data []byte) (map[string]RawEntry, error) {
	var raw map[string]RawEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse catalog JSON: %w", err)
	}
	return raw, nil
}

// ParseYAML 解析 YAML 目录文档，结构与 JSON 版一致
func ParseYAML(data []byte) (map[string]RawEntry, error) {
	var raw map[string]RawEntry
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse catalog YAML: %w", err)
	}
	return raw, nil
}
