package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/voidreach/sectors/internal/events"
)

// Message is one entry in the inference transcript.
type Message struct {
	Role       string // "system" | "user" | "assistant" | "tool"
	Content    string
	ToolCallID string
	ToolName   string
}

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// InferenceResult is one model turn: free text plus any requested tool
// calls.
type InferenceResult struct {
	Text      string
	ToolCalls []ToolCall
}

// InferenceService is the LLM boundary the reactor drives. Implementations
// adapt a concrete provider SDK.
type InferenceService interface {
	Infer(ctx context.Context, messages []Message, tools []*Tool) (InferenceResult, error)
}

const (
	toolNameFinished       = "finished"
	toolNameWaitInIdleState = "wait_in_idle_state"
)

// Options configures a Reactor's timing and lifecycle behavior.
type Options struct {
	DebounceDelay       time.Duration // default 1.0s
	CompletionTimeout   time.Duration // default 5s
	NoToolWatchdogDelay time.Duration // default 5s
	MaxNoToolNudges     int           // default 3
	StopOnErrorEvent    bool
	OnLifecycle         func(events.Name, any)
}

func (o Options) withDefaults() Options {
	if o.DebounceDelay <= 0 {
		o.DebounceDelay = time.Second
	}
	if o.CompletionTimeout <= 0 {
		o.CompletionTimeout = 5 * time.Second
	}
	if o.NoToolWatchdogDelay <= 0 {
		o.NoToolWatchdogDelay = 5 * time.Second
	}
	if o.MaxNoToolNudges <= 0 {
		o.MaxNoToolNudges = 3
	}
	if o.OnLifecycle == nil {
		o.OnLifecycle = func(events.Name, any) {}
	}
	return o
}

// Reactor is an event-gated loop wrapping an InferenceService: inbound
// game events accumulate in the transcript and trigger a debounced
// inference; sync tools pre-mark a context-skip credit so their own
// result isn't double-counted when the matching event arrives; async
// tools pre-arm a completion wait before their handler runs so a fast
// event can never race ahead of the correlation.
type Reactor struct {
	opts      Options
	inference InferenceService
	tools     *Registry

	mu       sync.Mutex
	messages []Message

	skipCounters map[events.Name]int

	awaitingCompletion string
	completionTimer    *time.Timer

	debounceTimer *time.Timer

	running bool
	rerun   bool

	noToolNudges   int
	noToolWatchdog *time.Timer

	finished bool
	doneCh   chan struct{}

	idleWaiters []chan events.Event

	ctx context.Context
}

// NewReactor builds a Reactor around inference and the tool registry.
func NewReactor(inference InferenceService, tools *Registry, opts Options) *Reactor {
	return &Reactor{
		opts:         opts.withDefaults(),
		inference:    inference,
		tools:        tools,
		skipCounters: make(map[events.Name]int),
		doneCh:       make(chan struct{}),
	}
}

// Run starts the task: seeds the transcript with systemPrompt, emits
// task.start, and blocks until the finished tool is called, the no-tool
// nudge budget is exhausted, or ctx is done.
func (r *Reactor) Run(ctx context.Context, systemPrompt string) error {
	r.ctx = ctx
	r.mu.Lock()
	r.messages = []Message{{Role: "system", Content: systemPrompt}}
	r.mu.Unlock()

	r.opts.OnLifecycle(events.TaskStart, nil)
	r.triggerInference()

	select {
	case <-r.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleEvent feeds one inbound game event into the reactor. It is safe
// to call concurrently with Run and from multiple producers.
func (r *Reactor) HandleEvent(ev events.Event) {
	r.notifyIdleWaiters(ev)

	r.mu.Lock()
	if n := r.skipCounters[ev.Name]; n > 0 {
		r.skipCounters[ev.Name] = n - 1
		r.mu.Unlock()
		return // this event's data was already carried by a sync tool result
	}

	r.appendEventMessageLocked(ev)

	if ev.Name == events.Error && r.opts.StopOnErrorEvent {
		r.finishLocked()
		r.mu.Unlock()
		return
	}

	if r.awaitingCompletion != "" && string(ev.Name) == r.awaitingCompletion {
		r.awaitingCompletion = ""
		if r.completionTimer != nil {
			r.completionTimer.Stop()
			r.completionTimer = nil
		}
		r.mu.Unlock()
		r.triggerInference()
		return
	}

	r.resetDebounceLocked()
	r.mu.Unlock()
}

func (r *Reactor) appendEventMessageLocked(ev events.Event) {
	body := ev.Summary
	if body == "" {
		body = fmt.Sprintf("%v", ev.Payload)
	}
	r.messages = append(r.messages, Message{
		Role:    "user",
		Content: fmt.Sprintf("<event name=%s>%s</event>", ev.Name, body),
	})
}

// armSyncSkip must be called before invoking a sync tool's handler
// so an event that arrives mid-call is still caught by the skip credit.
func (r *Reactor) armSyncSkip(name events.Name) {
	r.mu.Lock()
	r.skipCounters[name]++
	r.mu.Unlock()
}

// armCompletionWait must be called before invoking an async tool's
// handler — pre-arming before the suspension point prevents the
// completion event from arriving before the wait is registered.
func (r *Reactor) armCompletionWait(eventName string) {
	r.mu.Lock()
	r.awaitingCompletion = eventName
	if r.completionTimer != nil {
		r.completionTimer.Stop()
	}
	r.completionTimer = time.AfterFunc(r.opts.CompletionTimeout, func() {
		r.onCompletionTimeout(eventName)
	})
	r.mu.Unlock()
}

func (r *Reactor) onCompletionTimeout(eventName string) {
	r.mu.Lock()
	if r.awaitingCompletion != eventName {
		r.mu.Unlock()
		return
	}
	r.awaitingCompletion = ""
	r.completionTimer = nil
	r.mu.Unlock()
	r.triggerInference()
}

func (r *Reactor) resetDebounceLocked() {
	if r.debounceTimer != nil {
		r.debounceTimer.Stop()
	}
	r.debounceTimer = time.AfterFunc(r.opts.DebounceDelay, func() {
		r.triggerInference()
	})
}

func (r *Reactor) triggerInference() {
	r.mu.Lock()
	if r.finished {
		r.mu.Unlock()
		return
	}
	if r.awaitingCompletion != "" {
		r.mu.Unlock()
		return // the completion event or its timeout triggers the next inference
	}
	if r.running {
		r.rerun = true
		r.mu.Unlock()
		return
	}
	r.running = true
	r.mu.Unlock()
	go r.runLoop()
}

func (r *Reactor) runLoop() {
	for {
		r.mu.Lock()
		msgs := append([]Message(nil), r.messages...)
		r.mu.Unlock()

		result, err := r.inference.Infer(r.ctx, msgs, r.tools.All())
		if err != nil {
			r.mu.Lock()
			r.messages = append(r.messages, Message{Role: "assistant", Content: fmt.Sprintf("inference error: %v", err)})
			r.mu.Unlock()
		} else {
			r.mu.Lock()
			r.messages = append(r.messages, Message{Role: "assistant", Content: result.Text})
			r.mu.Unlock()

			if len(result.ToolCalls) == 0 {
				r.armNoToolWatchdog()
			} else {
				r.stopNoToolWatchdog()
				r.dispatchToolCalls(result.ToolCalls)
			}
		}

		r.mu.Lock()
		if r.awaitingCompletion != "" {
			r.rerun = false
		}
		if r.rerun && !r.finished {
			r.rerun = false
			r.mu.Unlock()
			continue
		}
		r.running = false
		r.mu.Unlock()
		return
	}
}

func (r *Reactor) armNoToolWatchdog() {
	r.mu.Lock()
	if r.noToolWatchdog != nil {
		r.noToolWatchdog.Stop()
	}
	r.noToolWatchdog = time.AfterFunc(r.opts.NoToolWatchdogDelay, r.onNoToolWatchdogFire)
	r.mu.Unlock()
}

func (r *Reactor) stopNoToolWatchdog() {
	r.mu.Lock()
	if r.noToolWatchdog != nil {
		r.noToolWatchdog.Stop()
		r.noToolWatchdog = nil
	}
	r.noToolNudges = 0
	r.mu.Unlock()
}

func (r *Reactor) onNoToolWatchdogFire() {
	r.mu.Lock()
	if r.finished {
		r.mu.Unlock()
		return
	}
	r.noToolNudges++
	if r.noToolNudges > r.opts.MaxNoToolNudges {
		r.finishLocked()
		r.mu.Unlock()
		return
	}
	r.messages = append(r.messages, Message{Role: "user", Content: "Call a tool or call finished to complete the task."})
	r.mu.Unlock()
	r.triggerInference()
}

func (r *Reactor) dispatchToolCalls(calls []ToolCall) {
	for _, call := range calls {
		switch call.Name {
		case toolNameFinished:
			r.mu.Lock()
			r.messages = append(r.messages, Message{Role: "tool", ToolCallID: call.ID, ToolName: call.Name, Content: "task finished"})
			r.finishLocked()
			r.mu.Unlock()
			return
		case toolNameWaitInIdleState:
			result := r.waitInIdleState(call.Args)
			r.mu.Lock()
			r.messages = append(r.messages, Message{Role: "tool", ToolCallID: call.ID, ToolName: call.Name, Content: result})
			r.mu.Unlock()
		default:
			r.dispatchRegisteredTool(call)
		}
	}
}

func (r *Reactor) dispatchRegisteredTool(call ToolCall) {
	tool, ok := r.tools.Resolve(call.Name)
	if !ok {
		r.mu.Lock()
		r.messages = append(r.messages, Message{Role: "tool", ToolCallID: call.ID, ToolName: call.Name, Content: "unknown tool"})
		r.mu.Unlock()
		return
	}

	if tool.AsyncCompletionEventName != "" {
		r.armCompletionWait(tool.AsyncCompletionEventName)
		go func() {
			_, _ = tool.Handler(r.ctx, call.Args)
		}()
		r.mu.Lock()
		r.messages = append(r.messages, Message{Role: "tool", ToolCallID: call.ID, ToolName: call.Name, Content: `{"status": "Executed."}`})
		r.mu.Unlock()
		return
	}

	if tool.SkipEventName != "" {
		r.armSyncSkip(events.Name(tool.SkipEventName))
	}
	result, err := tool.Handler(r.ctx, call.Args)
	if err != nil {
		result = fmt.Sprintf("error: %v", err)
	}
	r.mu.Lock()
	r.messages = append(r.messages, Message{Role: "tool", ToolCallID: call.ID, ToolName: call.Name, Content: result})
	r.mu.Unlock()
}

func (r *Reactor) waitInIdleState(args map[string]any) string {
	seconds := 5
	if v, ok := args["seconds"]; ok {
		switch n := v.(type) {
		case int:
			seconds = n
		case float64:
			seconds = int(n)
		}
	}
	if seconds < 1 {
		seconds = 1
	}
	if seconds > 60 {
		seconds = 60
	}

	ch := make(chan events.Event, 1)
	r.mu.Lock()
	r.idleWaiters = append(r.idleWaiters, ch)
	r.mu.Unlock()
	defer r.removeIdleWaiter(ch)

	select {
	case ev := <-ch:
		return fmt.Sprintf("observed event %s", ev.Name)
	case <-time.After(time.Duration(seconds) * time.Second):
		r.HandleEvent(events.Event{Name: events.IdleComplete, Summary: "idle wait elapsed with no events"})
		return "idle.complete"
	case <-r.ctx.Done():
		return "cancelled"
	}
}

func (r *Reactor) notifyIdleWaiters(ev events.Event) {
	r.mu.Lock()
	waiters := append([]chan events.Event(nil), r.idleWaiters...)
	r.mu.Unlock()
	for _, ch := range waiters {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (r *Reactor) removeIdleWaiter(target chan events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, ch := range r.idleWaiters {
		if ch == target {
			r.idleWaiters = append(r.idleWaiters[:i], r.idleWaiters[i+1:]...)
			return
		}
	}
}

// finishLocked must be called with r.mu held. It is idempotent.
func (r *Reactor) finishLocked() {
	if r.finished {
		return
	}
	r.finished = true
	if r.debounceTimer != nil {
		r.debounceTimer.Stop()
	}
	if r.completionTimer != nil {
		r.completionTimer.Stop()
	}
	if r.noToolWatchdog != nil {
		r.noToolWatchdog.Stop()
	}
	close(r.doneCh)
	r.opts.OnLifecycle(events.TaskFinish, nil)
}

// Finished reports whether the task has ended.
func (r *Reactor) Finished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finished
}

// Transcript returns a copy of the accumulated message history.
func (r *Reactor) Transcript() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}
