package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tandem-run/tandem/pkg/run"
	"github.com/tandem-run/tandem/pkg/team"
	"github.com/tandem-run/tandem/pkg/tools"
)

// delegationTools builds the coordinator's tool surface: delegate to one
// member, and optionally the same task to all members at once.
func (cr *componentRun) delegationTools() []tools.Tool {
	single := tools.DelegateToMember(cr.teamRef.MemberIDs())
	single.Handler = cr.handleDelegateToMember

	out := []tools.Tool{single}
	if cr.teamRef.DelegateToAll() {
		all := tools.DelegateToMembers()
		all.Handler = cr.handleDelegateToAll
		out = append(out, all)
	}
	return out
}

func (cr *componentRun) handleDelegateToMember(ctx context.Context, call tools.ToolCall) (*tools.ToolCallResult, error) {
	var params struct {
		MemberID string `json:"member_id"`
		Task     string `json:"task"`
	}
	if err := json.Unmarshal([]byte(call.Function.Arguments), &params); err != nil {
		return tools.ResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	member, err := cr.teamRef.Member(params.MemberID)
	if err != nil {
		return tools.ResultError(err.Error()), nil
	}

	output := cr.runMember(ctx, member, params.Task)
	return delegationResult(member, output), nil
}

func (cr *componentRun) handleDelegateToAll(ctx context.Context, call tools.ToolCall) (*tools.ToolCallResult, error) {
	var params struct {
		Task string `json:"task"`
	}
	if err := json.Unmarshal([]byte(call.Function.Arguments), &params); err != nil {
		return tools.ResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	members := cr.teamRef.Members()
	outputs := make([]*run.Output, len(members))

	var wg sync.WaitGroup
	for i, member := range members {
		wg.Add(1)
		go func(i int, member team.Member) {
			defer wg.Done()
			outputs[i] = cr.runMember(ctx, member, params.Task)
		}(i, member)
	}
	wg.Wait()

	var sb strings.Builder
	for i, member := range members {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(member.ID())
		sb.WriteString(": ")
		sb.WriteString(delegationResult(member, outputs[i]).Output)
	}
	return tools.ResultSuccess(sb.String()), nil
}

// runMember executes one member's full sub-run inside the delegation
// bracket. The member owns its aggregator; its events are forwarded into the
// team stream when member streaming is enabled.
func (cr *componentRun) runMember(ctx context.Context, member team.Member, task string) *run.Output {
	ctx, span := cr.rt.tracer.Start(ctx, "runtime.delegation", trace.WithAttributes(
		attribute.String("team", cr.teamRef.ID()),
		attribute.String("member", member.ID()),
		attribute.String("run.id", cr.rc.RunID),
	))
	defer span.End()

	memberRun, err := cr.rt.newComponentRun(member, cr.sess, cr.cfg, nil)
	if err != nil {
		span.SetStatus(codes.Error, "member setup failed")
		return &run.Output{
			RunID:   newRunID(),
			Status:  run.StatusFailed,
			Error:   err.Error(),
			Content: err.Error(),
		}
	}

	agg := run.NewAggregator(memberRun.rc, cr.cfg.userID, task, memberRun.aggregatorOpts()...)
	var ch chan run.Event
	if cr.streamMemberEvents() {
		ch = cr.em.ch
	}
	memberRun.em = &emitter{ch: ch, agg: agg}

	memberRun.start(ctx, task)

	output := agg.Output()
	cr.mu.Lock()
	cr.em.agg.AddMemberResponse(output)
	cr.mu.Unlock()

	if output.Status == run.StatusFailed {
		span.SetStatus(codes.Error, "member run failed")
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return output
}

// delegationResult turns a member's final output into the coordinator-visible
// tool result. Failures and pauses become readable result text so the team
// run keeps going.
func delegationResult(member team.Member, output *run.Output) *tools.ToolCallResult {
	switch output.Status {
	case run.StatusFailed:
		return tools.ResultError(fmt.Sprintf("member %s failed: %s", member.ID(), output.Error))
	case run.StatusPaused:
		return tools.ResultError(fmt.Sprintf("member %s is paused awaiting tool confirmation and produced no result", member.ID()))
	default:
		return tools.ResultSuccess(output.ContentString())
	}
}
