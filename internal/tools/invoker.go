package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/threadline/dialoguecore/internal/coreerr"
	"github.com/threadline/dialoguecore/internal/data/repos"
	"github.com/threadline/dialoguecore/internal/domain"
	"github.com/threadline/dialoguecore/internal/pkg/dbctx"
	"github.com/threadline/dialoguecore/internal/pkg/logger"
)

// Invocation is what DialogueCore passes ToolInvoker for a single call.
type Invocation struct {
	DialogueID uuid.UUID
	TurnID     uuid.UUID
	ToolID     string
	Parameters map[string]any
}

// Result is what ToolInvoker returns: the structured tool result plus the
// bookkeeping the orchestrator needs for the Turn's tool trace.
type Result struct {
	Success   bool
	Output    any
	Err       error
	LatencyMS int64
}

type Invoker struct {
	registry  *Registry
	calls     repos.ToolCallRepo
	lock      InvocationLock
	log       *logger.Logger
	timeout   time.Duration
}

func NewInvoker(registry *Registry, calls repos.ToolCallRepo, lock InvocationLock, timeout time.Duration, log *logger.Logger) *Invoker {
	return &Invoker{
		registry: registry,
		calls:    calls,
		lock:     lock,
		log:      log.With("component", "ToolInvoker"),
		timeout:  timeout,
	}
}

// Invoke resolves inv.ToolID, validates parameters, guards against a
// concurrent duplicate invocation, executes with a bounded timeout, and
// records a ToolCall row for every executed call, successful or not. Calls
// rejected before execution (unknown tool, invalid parameters, suppressed
// duplicate) are not recorded.
func (inv *Invoker) Invoke(ctx context.Context, dbc dbctx.Context, call Invocation) (Result, error) {
	tool, ok := inv.registry.Get(call.ToolID)
	if !ok {
		return Result{}, coreerr.New(coreerr.InvalidParameters, fmt.Sprintf("unknown tool %q", call.ToolID))
	}
	if err := validateParameters(tool.ParameterSchema(), call.Parameters); err != nil {
		return Result{}, coreerr.Wrap(coreerr.InvalidParameters, err, "tool parameter validation failed")
	}

	lockKey := fmt.Sprintf("%s:%s:%s", call.DialogueID, call.ToolID, ParameterHash(call.Parameters))
	acquired, err := inv.lock.Acquire(ctx, lockKey, inv.timeout+5*time.Second)
	if err != nil {
		inv.log.Warn("lock acquire failed, proceeding without guard", "error", err)
	} else if !acquired {
		return Result{}, coreerr.New(coreerr.ToolFailure, "duplicate concurrent invocation suppressed")
	}
	if acquired {
		defer func() { _ = inv.lock.Release(context.Background(), lockKey) }()
	}

	callCtx, cancel := context.WithTimeout(ctx, inv.timeout)
	defer cancel()

	start := time.Now()
	output, invokeErr := tool.Invoke(callCtx, call.Parameters)
	latency := time.Since(start)

	result := Result{
		Success:   invokeErr == nil,
		Output:    output,
		Err:       invokeErr,
		LatencyMS: latency.Milliseconds(),
	}

	inv.record(dbc, call, result)

	if invokeErr != nil {
		if callCtx.Err() != nil {
			return result, coreerr.Wrap(coreerr.ToolTimeout, invokeErr, "tool invocation timed out")
		}
		return result, coreerr.Wrap(coreerr.ToolFailure, invokeErr, "tool invocation failed")
	}
	return result, nil
}

func (inv *Invoker) record(dbc dbctx.Context, call Invocation, result Result) {
	params, _ := json.Marshal(call.Parameters)
	var resultJSON datatypes.JSON
	if result.Output != nil {
		if b, err := json.Marshal(result.Output); err == nil {
			resultJSON = datatypes.JSON(b)
		}
	}
	errMsg := ""
	if result.Err != nil {
		errMsg = result.Err.Error()
	}
	row := &domain.ToolCall{
		DialogueID: call.DialogueID,
		TurnID:     call.TurnID,
		ToolID:     call.ToolID,
		Parameters: datatypes.JSON(params),
		Success:    result.Success,
		Result:     resultJSON,
		Error:      errMsg,
		LatencyMS:  result.LatencyMS,
	}
	if _, err := inv.calls.Create(dbc, row); err != nil {
		inv.log.Warn("failed to record tool call", "error", err)
	}
}
