package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"
)

// 命令状态常量
const (
	StateIssued    = "issued"
	StatePending   = "pending"
	StateSucceeded = "succeeded"
	StateFailed    = "failed"
)

// 事件常量
const (
	EventAccept   = "accept"
	EventComplete = "complete"
	EventFail     = "fail"
)

// Snapshot 命令状态快照
type Snapshot struct {
	Name      string    `json:"name"`
	CommandID string    `json:"command_id,omitempty"`
	State     string    `json:"state"`
	Polls     int       `json:"polls"`
	Since     time.Time `json:"since"`
}

// Command 远程命令状态机
// issued -> pending -> succeeded | failed
type Command struct {
	mu       sync.RWMutex
	name     string
	id       string
	polls    int
	since    time.Time
	fsm      *fsm.FSM
	onChange func(name, from, to string)
}

// NewCommand 创建命令状态机，初始状态为 issued
func NewCommand(name string, onChange func(name, from, to string)) *Command {
	c := &Command{
		name:     name,
		since:    time.Now(),
		onChange: onChange,
	}

	c.fsm = fsm.NewFSM(
		StateIssued,
		fsm.Events{
			// 服务器返回 commandId
			{Name: EventAccept, Src: []string{StateIssued}, Dst: StatePending},

			// 轮询结果
			{Name: EventComplete, Src: []string{StatePending}, Dst: StateSucceeded},
			{Name: EventFail, Src: []string{StateIssued, StatePending}, Dst: StateFailed},
		},
		fsm.Callbacks{
			"after_event": func(ctx context.Context, e *fsm.Event) {
				if c.onChange != nil && e.Src != e.Dst {
					c.onChange(c.name, e.Src, e.Dst)
				}
			},
		},
	)

	return c
}

// Name 命令名称
func (c *Command) Name() string {
	return c.name
}

// ID 服务器分配的命令 ID
func (c *Command) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

// Current 当前状态
func (c *Command) Current() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fsm.Current()
}

// Done 是否已进入终态
func (c *Command) Done() bool {
	switch c.Current() {
	case StateSucceeded, StateFailed:
		return true
	}
	return false
}

// Succeeded 是否执行成功
func (c *Command) Succeeded() bool {
	return c.Current() == StateSucceeded
}

// Accept 记录 commandId 并进入 pending
func (c *Command) Accept(commandID string) error {
	if err := c.trigger(EventAccept); err != nil {
		return err
	}
	c.mu.Lock()
	c.id = commandID
	c.mu.Unlock()
	return nil
}

// Complete 命令执行成功
func (c *Command) Complete() error {
	return c.trigger(EventComplete)
}

// Fail 命令执行失败，已处于终态时忽略
func (c *Command) Fail() error {
	if !c.CanTransition(EventFail) {
		return nil
	}
	return c.trigger(EventFail)
}

// RecordPoll 记录一次轮询并返回累计次数
func (c *Command) RecordPoll() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.polls++
	return c.polls
}

// CanTransition 检查是否可以转换
func (c *Command) CanTransition(event string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fsm.Can(event)
}

// Snapshot 获取状态快照
func (c *Command) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		Name:      c.name,
		CommandID: c.id,
		State:     c.fsm.Current(),
		Polls:     c.polls,
		Since:     c.since,
	}
}

// trigger 触发事件
func (c *Command) trigger(event string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.fsm.Event(context.Background(), event); err != nil {
		return fmt.Errorf("command %s: trigger event %s: %w", c.name, event, err)
	}

	c.since = time.Now()
	return nil
}
