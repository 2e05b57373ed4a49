package tools

import (
	"context"

	"github.com/BaSui01/imagenhancer/events"
)

type emitterKey struct{}
type forwardKey struct{}

// WithEmitter 把事件回调放入 ctx，供工具函数推送进度
func WithEmitter(ctx context.Context, emitter events.Emitter) context.Context {
	return context.WithValue(ctx, emitterKey{}, emitter)
}

// EmitterFromContext 取出事件回调，没有时返回 nil
func EmitterFromContext(ctx context.Context) events.Emitter {
	if e, ok := ctx.Value(emitterKey{}).(events.Emitter); ok {
		return e
	}
	return nil
}

// WithForward 设置需要透传给生成后端的请求头
func WithForward(ctx context.Context, headers map[string]string) context.Context {
	return context.WithValue(ctx, forwardKey{}, headers)
}

// ForwardFromContext 取出透传请求头
func ForwardFromContext(ctx context.Context) map[string]string {
	h, _ := ctx.Value(forwardKey{}).(map[string]string)
	return h
}
