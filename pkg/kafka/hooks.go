package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// ConsumerHook intercepts message handling. BeforeHandle may rewrite
// the context, message and payload; a non-nil error skips the handler
// and routes the message through error processing.
type ConsumerHook interface {
	BeforeHandle(ctx context.Context, topic string, msg kafka.Message, payload []byte) (context.Context, kafka.Message, []byte, error)
	AfterHandle(ctx context.Context, topic string, msg kafka.Message, payload []byte, err error)
	OnError(ctx context.Context, topic string, msg kafka.Message, payload []byte, err error)
}

// NoopHook satisfies ConsumerHook without doing anything.
type NoopHook struct{}

func (NoopHook) BeforeHandle(ctx context.Context, _ string, msg kafka.Message, payload []byte) (context.Context, kafka.Message, []byte, error) {
	return ctx, msg, payload, nil
}

func (NoopHook) AfterHandle(context.Context, string, kafka.Message, []byte, error) {}

func (NoopHook) OnError(context.Context, string, kafka.Message, []byte, error) {}

// HookFuncs adapts plain functions into a ConsumerHook. Nil functions
// are no-ops.
type HookFuncs struct {
	Before func(context.Context, string, kafka.Message, []byte) (context.Context, kafka.Message, []byte, error)
	After  func(context.Context, string, kafka.Message, []byte, error)
	Err    func(context.Context, string, kafka.Message, []byte, error)
}

func (h HookFuncs) BeforeHandle(ctx context.Context, topic string, msg kafka.Message, payload []byte) (context.Context, kafka.Message, []byte, error) {
	if h.Before == nil {
		return ctx, msg, payload, nil
	}
	return h.Before(ctx, topic, msg, payload)
}

func (h HookFuncs) AfterHandle(ctx context.Context, topic string, msg kafka.Message, payload []byte, err error) {
	if h.After != nil {
		h.After(ctx, topic, msg, payload, err)
	}
}

func (h HookFuncs) OnError(ctx context.Context, topic string, msg kafka.Message, payload []byte, err error) {
	if h.Err != nil {
		h.Err(ctx, topic, msg, payload, err)
	}
}

// HookChain runs several hooks as one. Before hooks run in order and
// thread their rewrites through; After hooks unwind in reverse. Every
// invocation is recover-guarded so a hook cannot take the consumer
// down with it.
type HookChain struct {
	hooks []ConsumerHook
}

// NewHookChain composes hooks, dropping nils.
func NewHookChain(hooks ...ConsumerHook) *HookChain {
	kept := make([]ConsumerHook, 0, len(hooks))
	for _, h := range hooks {
		if h != nil {
			kept = append(kept, h)
		}
	}
	return &HookChain{hooks: kept}
}

func (hc *HookChain) BeforeHandle(ctx context.Context, topic string, msg kafka.Message, payload []byte) (context.Context, kafka.Message, []byte, error) {
	for _, h := range hc.hooks {
		var err error
		ctx, msg, payload, err = safeBefore(h, ctx, topic, msg, payload)
		if err != nil {
			hc.OnError(ctx, topic, msg, payload, err)
			return ctx, msg, payload, err
		}
	}
	return ctx, msg, payload, nil
}

func (hc *HookChain) AfterHandle(ctx context.Context, topic string, msg kafka.Message, payload []byte, err error) {
	for i := len(hc.hooks) - 1; i >= 0; i-- {
		h := hc.hooks[i]
		safely(func() { h.AfterHandle(ctx, topic, msg, payload, err) })
	}
}

func (hc *HookChain) OnError(ctx context.Context, topic string, msg kafka.Message, payload []byte, err error) {
	for _, h := range hc.hooks {
		h := h
		safely(func() { h.OnError(ctx, topic, msg, payload, err) })
	}
}

// safeBefore keeps the unmodified inputs when the hook panics, so the
// chain degrades to a pass-through instead of corrupting the message.
func safeBefore(h ConsumerHook, ctx context.Context, topic string, msg kafka.Message, payload []byte) (outCtx context.Context, outMsg kafka.Message, outPayload []byte, err error) {
	outCtx, outMsg, outPayload = ctx, msg, payload
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook panic: %v", r)
		}
	}()
	return h.BeforeHandle(ctx, topic, msg, payload)
}

func safely(fn func()) {
	defer func() { _ = recover() }()
	fn()
}

type hookCtxKey int

const (
	ctxKeyHandleStart hookCtxKey = iota
	ctxKeyTraceID
)

// WithHandleStart stamps the handling start time into ctx.
func WithHandleStart(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ctxKeyHandleStart, t)
}

// HandleStart reads the start time stamped by WithHandleStart.
func HandleStart(ctx context.Context) (time.Time, bool) {
	t, ok := ctx.Value(ctxKeyHandleStart).(time.Time)
	return t, ok
}

// WithTraceID stamps a correlation id into ctx. Empty ids are ignored.
func WithTraceID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKeyTraceID, id)
}

// TraceID reads the correlation id, or "" when none was stamped.
func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyTraceID).(string)
	return id
}

// ExtractTraceID pulls the trace_id header off a message.
func ExtractTraceID(msg kafka.Message) string {
	for _, h := range msg.Headers {
		if h.Key == "trace_id" && len(h.Value) > 0 {
			return string(h.Value)
		}
	}
	return ""
}
