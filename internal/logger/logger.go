package logger

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Level 日志级别
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

var levelColors = [...]string{
	"\033[36m", // cyan
	"\033[32m", // green
	"\033[33m", // yellow
	"\033[31m", // red
}

const resetColor = "\033[0m"

// ParseLevel 解析日志级别名称，未知名称返回 INFO
func ParseLevel(name string) Level {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return DEBUG
	case "WARN":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// 全局默认日志级别，启动时读取环境变量
var globalLevel = INFO

func init() {
	if v := os.Getenv("WARROOM_LOG_LEVEL"); v != "" {
		globalLevel = ParseLevel(v)
	}
}

// SetGlobalLevel 设置全局日志级别
func SetGlobalLevel(level Level) {
	globalLevel = level
}

// Logger 日志记录器，按模块打标
type Logger struct {
	module string
}

// New 创建新的日志记录器
func New(module string) *Logger {
	return &Logger{module: module}
}

// log 内部日志方法
func (l *Logger) log(level Level, format string, args ...any) {
	if level < globalLevel {
		return
	}

	timestamp := time.Now().Format("15:04:05.000")
	msg := fmt.Sprintf(format, args...)

	fmt.Fprintf(os.Stderr, "%s%s%s [%s] %s: %s\n",
		levelColors[level], levelNames[level], resetColor,
		timestamp, l.module, msg)
}

// Debug 调试日志
func (l *Logger) Debug(format string, args ...any) {
	l.log(DEBUG, format, args...)
}

// Info 信息日志
func (l *Logger) Info(format string, args ...any) {
	l.log(INFO, format, args...)
}

// Warn 警告日志
func (l *Logger) Warn(format string, args ...any) {
	l.log(WARN, format, args...)
}

// Error 错误日志
func (l *Logger) Error(format string, args ...any) {
	l.log(ERROR, format, args...)
}
