// Package ctxutil carries small per-request values (trace/request ids, the
// authenticated participant) through context.Context without import cycles
// between the http and orchestrator layers.
package ctxutil

import (
	"context"

	"github.com/google/uuid"
)

type traceDataKey struct{}

type TraceData struct {
	TraceID   string
	RequestID string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	td, _ := ctx.Value(traceDataKey{}).(*TraceData)
	return td
}

type requestDataKey struct{}

type RequestData struct {
	UserID uuid.UUID
}

func WithRequestData(ctx context.Context, rd *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey{}, rd)
}

func GetRequestData(ctx context.Context) *RequestData {
	rd, _ := ctx.Value(requestDataKey{}).(*RequestData)
	return rd
}
