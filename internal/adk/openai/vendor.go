package openai

import (
	"encoding/json"
	"regexp"
	"strings"
)

// 部分 OpenAI 兼容服务不走标准 tool_calls 字段，
// 而是把工具调用以 <tool_call>{...}</tool_call> 标记内联在文本里（Qwen 系常见）。
var vendorToolCallPattern = regexp.MustCompile(`(?s)<tool_call>\s*(\{.*?\})\s*</tool_call>`)

// VendorToolCall 从文本标记中解析出的工具调用
type VendorToolCall struct {
	Name string
	Args map[string]any
}

// parseVendorToolCalls 提取文本中的内联工具调用标记，返回调用列表和清理后的文本
func parseVendorToolCalls(text string) ([]VendorToolCall, string) {
	matches := vendorToolCallPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil, text
	}

	var calls []VendorToolCall
	for _, m := range matches {
		var payload struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := json.Unmarshal([]byte(m[1]), &payload); err != nil || payload.Name == "" {
			continue
		}
		args := make(map[string]any)
		if len(payload.Arguments) > 0 {
			// arguments 可能是对象，也可能是二次编码的字符串
			if err := json.Unmarshal(payload.Arguments, &args); err != nil {
				var argsStr string
				if json.Unmarshal(payload.Arguments, &argsStr) == nil {
					json.Unmarshal([]byte(argsStr), &args)
				}
			}
		}
		calls = append(calls, VendorToolCall{Name: payload.Name, Args: args})
	}

	cleaned := strings.TrimSpace(vendorToolCallPattern.ReplaceAllString(text, ""))
	return calls, cleaned
}

// FilterVendorToolCallMarkers 去掉文本中的内联工具调用标记，用于最终展示
func FilterVendorToolCallMarkers(text string) string {
	if !strings.Contains(text, "<tool_call>") {
		return text
	}
	return strings.TrimSpace(vendorToolCallPattern.ReplaceAllString(text, ""))
}
