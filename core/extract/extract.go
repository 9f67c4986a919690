// Package extract 从 LLM 自由文本里尽力抽取结构化 JSON
// 调度器只保证返回文本，下游需要结构化数据时用这里的多级策略兜底
package extract

import (
	"encoding/json"
	"regexp"
	"strings"
)

// fencedRegex 匹配 ```json ... ``` 或无语言标注的围栏代码块
var fencedRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// FromText 依次尝试多种策略，返回第一个合法 JSON
// 策略顺序：围栏代码块 → 括号深度扫描 {} → 括号深度扫描 [] → 掐头去尾 → 原文直解
// 永不 panic、永不返回 error，全部失败时 ok=false
func FromText(s string) (json.RawMessage, bool) {
	if strings.TrimSpace(s) == "" {
		return nil, false
	}

	// (a) 围栏代码块
	if m := fencedRegex.FindStringSubmatch(s); len(m) == 2 {
		if raw, ok := parseValid(m[1]); ok {
			return raw, true
		}
	}

	// (b) 深度匹配第一个完整 {...}
	if candidate := scanBalanced(s, '{', '}'); candidate != "" {
		if raw, ok := parseValid(candidate); ok {
			return raw, true
		}
	}

	// (c) 同理扫描 [...]
	if candidate := scanBalanced(s, '[', ']'); candidate != "" {
		if raw, ok := parseValid(candidate); ok {
			return raw, true
		}
	}

	// (d) 掐掉首尾的非 JSON 文本再解
	if trimmed := trimToJSON(s); trimmed != "" {
		if raw, ok := parseValid(trimmed); ok {
			return raw, true
		}
	}

	// (e) 原文直解
	if raw, ok := parseValid(s); ok {
		return raw, true
	}

	return nil, false
}

// Object 便捷入口：抽取并反序列化为 map，失败返回 nil
func Object(s string) map[string]any {
	raw, ok := FromText(s)
	if !ok {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

// Array 便捷入口：抽取并反序列化为数组，失败返回 nil
func Array(s string) []any {
	raw, ok := FromText(s)
	if !ok {
		return nil
	}
	var arr []any
	if err := json.Unmarshal(raw, &arr); err != nil {
		return nil
	}
	return arr
}

// parseValid 校验候选文本是合法 JSON 后返回紧凑原文
func parseValid(s string) (json.RawMessage, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	return json.RawMessage(s), true
}

// scanBalanced 找到第一个 open，按括号深度扫到配对的 close
// 字符串字面量内的括号要跳过，转义引号同样要处理
func scanBalanced(s string, open, close byte) string {
	start := strings.IndexByte(s, open)
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// trimToJSON 去掉第一个 JSON 起始符之前、最后一个结束符之后的文本
func trimToJSON(s string) string {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	end := strings.LastIndexAny(s, "}]")
	if end <= start {
		return ""
	}
	return s[start : end+1]
}
