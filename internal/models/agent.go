package models

// AgentConfig 专家席位配置，ID 对应名册中的参与者
type AgentConfig struct {
	ID           string   `json:"id"`   // 名册中的参与者 ID，如 market
	Name         string   `json:"name"` // 展示名称
	Role         string   `json:"role"` // 角色描述
	Instruction  string   `json:"instruction"`
	Enabled      bool     `json:"enabled"`
	Tools        []string `json:"tools,omitempty"`        // 内置工具名称列表
	MCPServers   []string `json:"mcpServers,omitempty"`   // 可用的 MCP 服务器 ID
	AIConfigID   string   `json:"aiConfigId,omitempty"`   // 专属 AI 配置，空则用默认
	IntroAsk     string   `json:"introAsk,omitempty"`     // 介绍时向用户提出的问题，空则不提问
	IntroOptions []string `json:"introOptions,omitempty"` // 介绍提问的候选答案
}

// Seat 返回该席位对应的参与者 ID
func (c *AgentConfig) Seat() ParticipantID {
	return ParticipantID(c.ID)
}

// AIProvider AI 服务提供方
type AIProvider string

const (
	AIProviderGemini AIProvider = "gemini"
	AIProviderOpenAI AIProvider = "openai"
)

// AIConfig AI 服务配置
type AIConfig struct {
	ID           string     `json:"id"`
	Provider     AIProvider `json:"provider"`
	ModelName    string     `json:"modelName"`
	APIKey       string     `json:"apiKey"`
	BaseURL      string     `json:"baseUrl,omitempty"`
	NoSystemRole bool       `json:"noSystemRole,omitempty"` // 模型不支持 system role 时降级处理
}

// MCPTransportType MCP 传输类型
type MCPTransportType string

const (
	MCPTransportHTTP    MCPTransportType = "http"
	MCPTransportSSE     MCPTransportType = "sse"
	MCPTransportCommand MCPTransportType = "command"
)

// MCPServerConfig MCP 服务器配置
type MCPServerConfig struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Enabled       bool             `json:"enabled"`
	TransportType MCPTransportType `json:"transportType"`
	Endpoint      string           `json:"endpoint,omitempty"`
	Command       string           `json:"command,omitempty"`
	Args          []string         `json:"args,omitempty"`
	ToolFilter    []string         `json:"toolFilter,omitempty"`
}
