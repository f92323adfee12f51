package mediagroups

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/mymmrac/telego"
)

const (
	// DefaultSettleDelay is how long an album is collected after its first part arrives.
	DefaultSettleDelay = 2 * time.Second
	// DefaultMaxGroupSize limits the number of parts kept per album (Telegram allows 10).
	DefaultMaxGroupSize = 10
)

// ProcessFunc receives the collected parts of one album, ordered by message id.
type ProcessFunc func(ctx context.Context, groupKey string, messages []telego.Message) error

type albumState struct {
	mu       sync.Mutex
	messages []telego.Message
	timer    *time.Timer
	closed   bool // Set once flushed; late parts start a new album state
}

// Manager collects the parts of source albums for a short settle window and
// then hands them over in message order.
type Manager struct {
	baseCtx context.Context
	handler ProcessFunc
	delay   time.Duration
	maxSize int

	groups sync.Map // map[string]*albumState
	wg     sync.WaitGroup
}

// NewManager creates a media group manager. baseCtx bounds every handler call.
func NewManager(baseCtx context.Context, handler ProcessFunc, delay time.Duration, maxSize int) *Manager {
	if delay <= 0 {
		delay = DefaultSettleDelay
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxGroupSize
	}
	return &Manager{baseCtx: baseCtx, handler: handler, delay: delay, maxSize: maxSize}
}

// GroupKey identifies an album across chats.
func GroupKey(chatID int64, mediaGroupID string) string {
	return fmt.Sprintf("%d:%s", chatID, mediaGroupID)
}

// Add stores one album part and schedules processing when it is the first.
// Messages without a media group id are ignored.
func (m *Manager) Add(message telego.Message) {
	if message.MediaGroupID == "" {
		return
	}
	key := GroupKey(message.Chat.ID, message.MediaGroupID)

	var state *albumState
	for {
		actual, _ := m.groups.LoadOrStore(key, &albumState{messages: make([]telego.Message, 0, m.maxSize)})
		state = actual.(*albumState)
		state.mu.Lock()
		if !state.closed {
			break
		}
		state.mu.Unlock()
	}
	defer state.mu.Unlock()

	for _, msg := range state.messages {
		if msg.MessageID == message.MessageID {
			return
		}
	}
	if len(state.messages) >= m.maxSize {
		log.Printf("[MediaGroups Group:%s] Group limit (%d) reached, message %d dropped.", key, m.maxSize, message.MessageID)
		return
	}
	state.messages = append(state.messages, message)

	if state.timer == nil {
		m.wg.Add(1)
		state.timer = time.AfterFunc(m.delay, func() {
			defer m.wg.Done()
			m.flush(m.baseCtx, key)
		})
	}
}

// flush removes the album from the buffer and runs the handler on it.
func (m *Manager) flush(ctx context.Context, key string) {
	val, loaded := m.groups.LoadAndDelete(key)
	if !loaded {
		return
	}
	state := val.(*albumState)

	state.mu.Lock()
	messages := make([]telego.Message, len(state.messages))
	copy(messages, state.messages)
	state.timer = nil
	state.closed = true
	state.mu.Unlock()

	if len(messages) == 0 {
		return
	}
	sort.Slice(messages, func(i, j int) bool { return messages[i].MessageID < messages[j].MessageID })

	if err := m.handler(ctx, key, messages); err != nil {
		log.Printf("[MediaGroups Group:%s] Error processing %d parts: %v", key, len(messages), err)
	}
}

// Shutdown flushes every pending album immediately using ctx and waits for
// handlers already running.
func (m *Manager) Shutdown(ctx context.Context) {
	flushed := 0
	m.groups.Range(func(key, value interface{}) bool {
		state := value.(*albumState)
		state.mu.Lock()
		stopped := state.timer != nil && state.timer.Stop()
		state.mu.Unlock()
		if stopped {
			m.flush(ctx, key.(string))
			m.wg.Done()
			flushed++
		}
		return true
	})
	m.wg.Wait()
	log.Printf("[MediaGroups] Shutdown complete. Flushed %d pending album(s).", flushed)
}
