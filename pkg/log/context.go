package log

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// contextKey 是用于存储 RunContext 的私有 key 类型
type contextKey string

const runContextKey contextKey = "intelharvest_run_context"

// RunContext 存储一次采集运行的追踪信息
// 通过 Context 传递，所有数据源的日志都带同一个 run_id
type RunContext struct {
	RunID     string    // 10位短ID，如 mgrn0zfqda
	Trigger   string    // cron / manual / once
	StartTime time.Time // 运行开始时间
}

var (
	randSource = rand.NewSource(time.Now().UnixNano())
	randMutex  sync.Mutex
	// base36 字符集（小写字母 + 数字）
	base36Chars = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// GenerateRunID 生成10位随机运行ID
func GenerateRunID() string {
	randMutex.Lock()
	defer randMutex.Unlock()

	b := make([]byte, 10)
	for i := range b {
		b[i] = base36Chars[randSource.Int63()%36]
	}
	return string(b)
}

// WithRunContext 将 RunContext 注入到 Context 中
func WithRunContext(ctx context.Context, runID, trigger string) context.Context {
	return context.WithValue(ctx, runContextKey, &RunContext{
		RunID:     runID,
		Trigger:   trigger,
		StartTime: time.Now(),
	})
}

// GetRunContext 从 Context 中提取 RunContext
// 如果不存在，返回 RunID 为 "unknown" 的默认值，避免 nil 检查
func GetRunContext(ctx context.Context) *RunContext {
	if ctx != nil {
		if runCtx, ok := ctx.Value(runContextKey).(*RunContext); ok {
			return runCtx
		}
	}
	return &RunContext{RunID: "unknown"}
}

// GetRunID 从 Context 中提取 Run ID
func GetRunID(ctx context.Context) string {
	return GetRunContext(ctx).RunID
}

// GetElapsedTime 获取运行已执行时间（毫秒）
func GetElapsedTime(ctx context.Context) int64 {
	runCtx := GetRunContext(ctx)
	if runCtx.StartTime.IsZero() {
		return 0
	}
	return time.Since(runCtx.StartTime).Milliseconds()
}
