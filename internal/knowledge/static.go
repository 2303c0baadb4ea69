// Package knowledge 提供可选的静态知识库，为提及分析提示词补充背景资料。
package knowledge

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Provider 根据提及文本检索相关知识。
type Provider interface {
	Lookup(text string) []Snippet
}

// Snippet 描述可供大模型引用的一段知识。
type Snippet struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Keywords []string `json:"keywords"`
}

// StaticProvider 通过加载 JSON 文件提供关键词匹配检索。
type StaticProvider struct {
	items      []Snippet
	maxResults int
}

// NewStaticProvider 创建静态知识库实例。
func NewStaticProvider(items []Snippet, maxResults int) *StaticProvider {
	if maxResults <= 0 {
		maxResults = 3
	}
	normalized := make([]Snippet, 0, len(items))
	for _, item := range items {
		keywords := make([]string, 0, len(item.Keywords))
		for _, kw := range item.Keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				keywords = append(keywords, kw)
			}
		}
		item.Keywords = keywords
		normalized = append(normalized, item)
	}
	return &StaticProvider{items: normalized, maxResults: maxResults}
}

// LoadStaticProvider 从 JSON 文件加载知识条目。
func LoadStaticProvider(path string, maxResults int) (*StaticProvider, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("知识库文件路径不能为空")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取知识库文件失败: %w", err)
	}
	var entries []Snippet
	if err := json.Unmarshal(content, &entries); err != nil {
		return nil, fmt.Errorf("解析知识库文件失败: %w", err)
	}
	return NewStaticProvider(entries, maxResults), nil
}

// Lookup 返回关键词出现在提及文本中的条目，没有关键词的条目不参与匹配。
func (p *StaticProvider) Lookup(text string) []Snippet {
	if p == nil {
		return nil
	}
	text = strings.ToLower(text)
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var results []Snippet
	for _, item := range p.items {
		for _, kw := range item.Keywords {
			if strings.Contains(text, kw) {
				results = append(results, item)
				break
			}
		}
		if len(results) >= p.maxResults {
			break
		}
	}
	return results
}

// Render 将检索结果拼接为提示词附录，没有结果时返回空字符串。
func Render(snippets []Snippet) string {
	if len(snippets) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Background notes:")
	for _, s := range snippets {
		b.WriteString("\n- ")
		if s.Title != "" {
			b.WriteString(s.Title)
			b.WriteString(": ")
		}
		b.WriteString(strings.TrimSpace(s.Content))
	}
	return b.String()
}

var _ Provider = (*StaticProvider)(nil)
