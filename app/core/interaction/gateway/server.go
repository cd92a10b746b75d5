package gateway

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"calagent/app/core/queue"
	"calagent/app/pkg/types"
)

// QueueOptions controls the sequential turn queue. One worker keeps turns in
// strict arrival order, matching the one-human-one-turn dialogue model.
type QueueOptions struct {
	Enabled        bool
	EnqueueTimeout time.Duration
	AttemptTimeout time.Duration
	MaxRetries     int
	RetryDelay     time.Duration
}

type DefaultGateway struct {
	agent    types.Agent
	channels map[string]types.Channel
	mu       sync.RWMutex

	executionQueue *queue.Queue
	queueOptions   QueueOptions

	processedMessages uint64
	lastMessageUnix   atomic.Int64
	startedUnix       atomic.Int64
}

type HealthStatus struct {
	Started            bool
	StartedAt          time.Time
	RegisteredChannels []string
	AgentName          string
	ProcessedMessages  uint64
	LastMessageAt      time.Time
	QueueEnabled       bool
	Queue              queue.Stats
}

func NewGateway(agent types.Agent) *DefaultGateway {
	return &DefaultGateway{
		agent:    agent,
		channels: make(map[string]types.Channel),
	}
}

func (g *DefaultGateway) RegisterChannel(c types.Channel) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.channels[c.ID()] = c
	log.Printf("[Gateway] Registered channel: %s", c.ID())
}

func (g *DefaultGateway) SetExecutionQueue(q *queue.Queue, opts QueueOptions) {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.EnqueueTimeout < 0 {
		opts.EnqueueTimeout = 0
	}
	if opts.AttemptTimeout < 0 {
		opts.AttemptTimeout = 0
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.executionQueue = q
	g.queueOptions = opts
}

func (g *DefaultGateway) Start(ctx context.Context) error {
	var wg sync.WaitGroup
	g.startedUnix.Store(time.Now().Unix())

	handler := func(msg types.Message) {
		atomic.AddUint64(&g.processedMessages, 1)
		g.lastMessageUnix.Store(time.Now().Unix())
		log.Printf("[Gateway] Received message from channel=%s user=%s", msg.ChannelID, msg.UserID)

		if g.queueEnabled() {
			g.dispatchWithQueue(ctx, msg)
			return
		}
		if err := g.processAndReply(ctx, msg); err != nil {
			log.Printf("[Gateway] Processing failed: %v", err)
			_ = g.sendErrorReply(ctx, msg, "Something went wrong handling that message. Please try again.")
		}
	}

	g.mu.RLock()
	for _, c := range g.channels {
		wg.Add(1)
		go func(ch types.Channel) {
			defer wg.Done()
			if err := ch.Start(ctx, handler); err != nil {
				log.Printf("[Gateway] Channel %s error: %v", ch.ID(), err)
			}
		}(c)
	}
	g.mu.RUnlock()

	log.Println("[Gateway] Started all channels")
	wg.Wait()
	return nil
}

func (g *DefaultGateway) queueEnabled() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.queueOptions.Enabled && g.executionQueue != nil
}

func (g *DefaultGateway) dispatchWithQueue(ctx context.Context, msg types.Message) {
	g.mu.RLock()
	q := g.executionQueue
	opts := g.queueOptions
	g.mu.RUnlock()

	attempt := 0
	job := queue.Job{
		MaxRetries:     opts.MaxRetries,
		RetryDelay:     opts.RetryDelay,
		AttemptTimeout: opts.AttemptTimeout,
		Run: func(runCtx context.Context) error {
			attempt++
			err := g.processAndReply(runCtx, msg)
			if err == nil {
				return nil
			}
			if attempt <= opts.MaxRetries {
				log.Printf("[Gateway] Queue job retrying request=%s attempt=%d/%d: %v", msg.RequestID, attempt, opts.MaxRetries+1, err)
				return err
			}
			log.Printf("[Gateway] Queue job failed request=%s after %d attempts: %v", msg.RequestID, attempt, err)
			_ = g.sendErrorReply(runCtx, msg, "Something went wrong handling that message. Please try again.")
			return nil
		},
	}

	enqueueCtx := ctx
	cancel := func() {}
	if opts.EnqueueTimeout > 0 {
		enqueueCtx, cancel = context.WithTimeout(ctx, opts.EnqueueTimeout)
	}
	defer cancel()

	if _, err := q.EnqueueContext(enqueueCtx, job); err != nil {
		log.Printf("[Gateway] Queue enqueue failed: %v", err)
		_ = g.sendErrorReply(ctx, msg, "I'm overloaded right now, please try again in a moment.")
	}
}

func (g *DefaultGateway) processAndReply(ctx context.Context, msg types.Message) error {
	response, err := g.agent.Process(ctx, msg)
	if err != nil {
		return fmt.Errorf("agent process: %w", err)
	}
	if strings.TrimSpace(response.Content) == "" {
		return nil
	}

	channel, exists := g.channelByID(msg.ChannelID)
	if !exists {
		return fmt.Errorf("channel not found for reply: %s", msg.ChannelID)
	}
	if err := channel.Send(ctx, response); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	return nil
}

func (g *DefaultGateway) sendErrorReply(ctx context.Context, msg types.Message, reason string) error {
	channel, exists := g.channelByID(msg.ChannelID)
	if !exists {
		return fmt.Errorf("channel not found for reply: %s", msg.ChannelID)
	}
	response := types.Message{
		ID:        "resp-" + msg.ID,
		Content:   reason,
		Role:      types.MessageRoleAssistant,
		ChannelID: msg.ChannelID,
		UserID:    msg.UserID,
		RequestID: msg.RequestID,
		Meta:      msg.Meta,
	}
	return channel.Send(ctx, response)
}

func (g *DefaultGateway) channelByID(id string) (types.Channel, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c, ok := g.channels[id]
	return c, ok
}

func (g *DefaultGateway) Health() HealthStatus {
	g.mu.RLock()
	channels := make([]string, 0, len(g.channels))
	for id := range g.channels {
		channels = append(channels, id)
	}
	queueEnabled := g.queueOptions.Enabled && g.executionQueue != nil
	var queueStats queue.Stats
	if g.executionQueue != nil {
		queueStats = g.executionQueue.Stats()
	}
	agentName := ""
	if g.agent != nil {
		agentName = g.agent.Name()
	}
	g.mu.RUnlock()
	sort.Strings(channels)

	status := HealthStatus{
		Started:            g.startedUnix.Load() > 0,
		RegisteredChannels: channels,
		AgentName:          agentName,
		ProcessedMessages:  atomic.LoadUint64(&g.processedMessages),
		QueueEnabled:       queueEnabled,
		Queue:              queueStats,
	}
	if started := g.startedUnix.Load(); started > 0 {
		status.StartedAt = time.Unix(started, 0)
	}
	if last := g.lastMessageUnix.Load(); last > 0 {
		status.LastMessageAt = time.Unix(last, 0)
	}
	return status
}
