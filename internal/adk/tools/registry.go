package tools

import (
	"github.com/run-bigpig/warroom/internal/logger"
	"github.com/run-bigpig/warroom/internal/services"

	"google.golang.org/adk/tool"
)

var toolLog = logger.New("tools")

// ToolInfo 工具元信息，用于拼进专家提示词
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Registry 内置工具注册表，专家按配置挑选可用工具
type Registry struct {
	marketService *services.MarketService
	newsService   *services.NewsService

	tools map[string]tool.Tool
	infos map[string]ToolInfo
}

// NewRegistry 创建工具注册表并注册全部内置工具
func NewRegistry(marketService *services.MarketService, newsService *services.NewsService) *Registry {
	r := &Registry{
		marketService: marketService,
		newsService:   newsService,
		tools:         make(map[string]tool.Tool),
		infos:         make(map[string]ToolInfo),
	}

	builders := []func() (tool.Tool, error){
		r.createStockRealtimeTool,
		r.createKLineTool,
		r.createNewsTool,
	}
	for _, build := range builders {
		t, err := build()
		if err != nil {
			toolLog.Error("register tool error: %v", err)
			continue
		}
		r.tools[t.Name()] = t
		r.infos[t.Name()] = ToolInfo{Name: t.Name(), Description: t.Description()}
	}
	return r
}

// GetTools 按名称获取工具，忽略未注册的名称
func (r *Registry) GetTools(names []string) []tool.Tool {
	var result []tool.Tool
	for _, name := range names {
		if t, ok := r.tools[name]; ok {
			result = append(result, t)
		}
	}
	return result
}

// GetAllTools 获取全部内置工具
func (r *Registry) GetAllTools() []tool.Tool {
	result := make([]tool.Tool, 0, len(r.tools))
	for _, t := range r.tools {
		result = append(result, t)
	}
	return result
}

// GetToolInfosByNames 按名称获取工具元信息
func (r *Registry) GetToolInfosByNames(names []string) []ToolInfo {
	var result []ToolInfo
	for _, name := range names {
		if info, ok := r.infos[name]; ok {
			result = append(result, info)
		}
	}
	return result
}
