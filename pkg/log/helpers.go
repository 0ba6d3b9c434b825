package log

import (
	"context"
	"fmt"

	"github.com/go-kratos/kratos/v2/log"
)

// LogHelper 扩展 Kratos log.Helper，提供便捷的日志方法
// 通过在日志调用时自动添加 "type" 字段，触发 EmojiConsoleEncoder 的表情符号映射
type LogHelper struct {
	*log.Helper
}

// NewLogHelper 创建增强的日志辅助器
func NewLogHelper(logger log.Logger) *LogHelper {
	return &LogHelper{
		Helper: log.NewHelper(logger),
	}
}

func withType(msg, logType string, kvs []interface{}) []interface{} {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	return append(allKvs, "type", logType)
}

// Harvest 记录数据源抓取日志（表情符号: 🛰️）
func (h *LogHelper) Harvest(ctx context.Context, source, msg string, kvs ...interface{}) {
	kvs = append(kvs, "run_id", GetRunID(ctx), "source", source)
	h.Infow(withType(fmt.Sprintf("[%s] %s", source, msg), "harvest", kvs)...)
}

// Retry 记录重试日志（表情符号: 🔁）
func (h *LogHelper) Retry(ctx context.Context, source string, attempt int, delaySeconds float64, err error) {
	msg := fmt.Sprintf("[%s] attempt %d failed, retrying in %.1fs: %v", source, attempt, delaySeconds, err)
	h.Warnw(withType(msg, "retry", []interface{}{
		"run_id", GetRunID(ctx),
		"source", source,
		"attempt", attempt,
		"delay_seconds", delaySeconds,
	})...)
}

// RateLimit 记录速率限制日志（表情符号: 🚦）
func (h *LogHelper) RateLimit(msg string, kvs ...interface{}) {
	h.Infow(withType(msg, "rate_limit", kvs)...)
}

// Circuit 记录熔断器状态变化（表情符号: 🔌）
func (h *LogHelper) Circuit(group, from, to string, kvs ...interface{}) {
	msg := fmt.Sprintf("Circuit breaker %s: %s -> %s", group, from, to)
	kvs = append(kvs, "group", group, "from", from, "to", to)
	h.Warnw(withType(msg, "circuit", kvs)...)
}

// Snapshot 记录快照校验/持久化日志（表情符号: 🗂️）
func (h *LogHelper) Snapshot(msg string, kvs ...interface{}) {
	h.Infow(withType(msg, "snapshot", kvs)...)
}

// Alert 记录告警判定（表情符号: 🚨）
func (h *LogHelper) Alert(ctx context.Context, msg string, kvs ...interface{}) {
	kvs = append(kvs, "run_id", GetRunID(ctx))
	h.Errorw(withType(msg, "alert", kvs)...)
}

// Success 记录成功操作日志（表情符号: ✅）
func (h *LogHelper) Success(msg string, kvs ...interface{}) {
	h.Infow(withType(msg, "success", kvs)...)
}

// Database 记录数据库操作日志（表情符号: 💾）
func (h *LogHelper) Database(msg string, kvs ...interface{}) {
	h.Debugw(withType(msg, "database", kvs)...)
}

// Redis 记录 Redis 操作日志（表情符号: 📦）
func (h *LogHelper) Redis(msg string, kvs ...interface{}) {
	h.Debugw(withType(msg, "redis", kvs)...)
}

// Scheduler 记录调度器相关日志（表情符号: 🎯）
func (h *LogHelper) Scheduler(msg string, kvs ...interface{}) {
	h.Infow(withType(msg, "scheduler", kvs)...)
}

// Startup 记录启动相关日志（表情符号: 🚀）
func (h *LogHelper) Startup(msg string, kvs ...interface{}) {
	h.Infow(withType(msg, "startup", kvs)...)
}

// Request 记录 HTTP 请求日志（表情符号: 🌐 或根据状态码）
func (h *LogHelper) Request(method, url string, status int, durationMs int64, kvs ...interface{}) {
	msg := fmt.Sprintf("%s %s - %d (%dms)", method, url, status, durationMs)
	kvs = append(kvs,
		"method", method,
		"url", url,
		"status", status,
		"duration_ms", durationMs,
	)
	h.Infow(withType(msg, "request", kvs)...)
}

// RunCompleted 记录一次采集运行的汇总（便捷方法）
func (h *LogHelper) RunCompleted(ctx context.Context, version, status string, successes, warnings, errors int, kvs ...interface{}) {
	runCtx := GetRunContext(ctx)
	msg := fmt.Sprintf("[%s] Harvest completed - Version: %s, Status: %s | OK: %d, Warnings: %d, Errors: %d (%dms)",
		runCtx.RunID, version, status, successes, warnings, errors, GetElapsedTime(ctx))
	kvs = append(kvs,
		"run_id", runCtx.RunID,
		"trigger", runCtx.Trigger,
		"version", version,
		"status", status,
		"total_successes", successes,
		"total_warnings", warnings,
		"total_errors", errors,
	)
	h.Infow(withType(msg, "success", kvs)...)
}
