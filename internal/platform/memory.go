package platform

import (
	"context"
	"fmt"
	"sync"
)

// MemoryChat is an in-process Chat used by the dev server and tests. Poll and
// Ask outcomes are scripted through ResolvePoll / QueueAnswer.
type MemoryChat struct {
	mu           sync.Mutex
	nextID       int64
	channels     map[int64]string
	messages     map[MessageRef]*storedMessage
	displayNames map[int64]string

	askAnswers  []string
	pollResults chan []Tally
	cancelTally []Tally
}

type storedMessage struct {
	Content   string
	Embed     *Embed
	Reactions map[string]int
}

// NewMemoryChat constructs an empty in-process chat platform.
func NewMemoryChat() *MemoryChat {
	return &MemoryChat{
		channels:     make(map[int64]string),
		messages:     make(map[MessageRef]*storedMessage),
		displayNames: make(map[int64]string),
		pollResults:  make(chan []Tally, 4),
	}
}

func (c *MemoryChat) allocateID() int64 {
	c.nextID++
	return c.nextID
}

func (c *MemoryChat) SendMessage(_ context.Context, channelID int64, content string, embed *Embed) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.allocateID()
	c.messages[MessageRef{ChannelID: channelID, MessageID: id}] = &storedMessage{
		Content:   content,
		Embed:     embed,
		Reactions: make(map[string]int),
	}
	return id, nil
}

func (c *MemoryChat) EditMessage(_ context.Context, ref MessageRef, content string, embed *Embed) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	stored, ok := c.messages[ref]
	if !ok {
		return ErrNotFound
	}
	stored.Content = content
	stored.Embed = embed
	return nil
}

func (c *MemoryChat) DeleteMessage(_ context.Context, ref MessageRef) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.messages[ref]; !ok {
		return ErrNotFound
	}
	delete(c.messages, ref)
	return nil
}

func (c *MemoryChat) AddReaction(_ context.Context, ref MessageRef, symbol string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	stored, ok := c.messages[ref]
	if !ok {
		return ErrNotFound
	}
	stored.Reactions[symbol]++
	return nil
}

func (c *MemoryChat) RemoveReaction(_ context.Context, ref MessageRef, symbol string, _ int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	stored, ok := c.messages[ref]
	if !ok {
		return ErrNotFound
	}
	if stored.Reactions[symbol] > 0 {
		stored.Reactions[symbol]--
	}
	return nil
}

func (c *MemoryChat) ClearReactions(_ context.Context, ref MessageRef) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	stored, ok := c.messages[ref]
	if !ok {
		return ErrNotFound
	}
	stored.Reactions = make(map[string]int)
	return nil
}

func (c *MemoryChat) ReactionCount(_ context.Context, ref MessageRef, symbol string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stored, ok := c.messages[ref]
	if !ok {
		return 0, ErrNotFound
	}
	return stored.Reactions[symbol], nil
}

func (c *MemoryChat) CreateChannel(_ context.Context, _ int64, name string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.allocateID()
	c.channels[id] = name
	return id, nil
}

func (c *MemoryChat) DeleteChannel(_ context.Context, channelID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.channels[channelID]; !ok {
		return ErrNotFound
	}
	delete(c.channels, channelID)
	return nil
}

func (c *MemoryChat) DisplayName(_ context.Context, _ int64, userID int64) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if name, ok := c.displayNames[userID]; ok {
		return name, nil
	}
	return fmt.Sprintf("member-%d", userID), nil
}

// SetDisplayName registers a member display name for lookups.
func (c *MemoryChat) SetDisplayName(userID int64, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.displayNames[userID] = name
}

// QueueAnswer scripts the symbol the next Ask call resolves to.
func (c *MemoryChat) QueueAnswer(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.askAnswers = append(c.askAnswers, symbol)
}

func (c *MemoryChat) Ask(ctx context.Context, _ MessageRef, _ []int64, symbols []string) (string, error) {
	c.mu.Lock()
	if len(c.askAnswers) > 0 {
		answer := c.askAnswers[0]
		c.askAnswers = c.askAnswers[1:]
		c.mu.Unlock()
		return answer, nil
	}
	c.mu.Unlock()
	if len(symbols) == 0 {
		return "", fmt.Errorf("platform: ask with no symbols")
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	return symbols[0], nil
}

// ResolvePoll completes the currently blocked Poll call with the given tally.
func (c *MemoryChat) ResolvePoll(tallies []Tally) {
	c.pollResults <- tallies
}

// SetCancelTally scripts the partial tally returned when a Poll is cancelled.
func (c *MemoryChat) SetCancelTally(tallies []Tally) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelTally = tallies
}

func (c *MemoryChat) Poll(ctx context.Context, _ []MessageRef, _ []string) ([]Tally, error) {
	select {
	case tallies := <-c.pollResults:
		return tallies, nil
	case <-ctx.Done():
		c.mu.Lock()
		partial := c.cancelTally
		c.mu.Unlock()
		return partial, nil
	}
}

// MessageCount reports how many messages currently exist in the channel.
func (c *MemoryChat) MessageCount(channelID int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for ref := range c.messages {
		if ref.ChannelID == channelID {
			count++
		}
	}
	return count
}

// Message returns the stored content and embed for inspection in tests.
func (c *MemoryChat) Message(ref MessageRef) (string, *Embed, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stored, ok := c.messages[ref]
	if !ok {
		return "", nil, false
	}
	return stored.Content, stored.Embed, true
}

// React applies a member reaction directly, bypassing the dispatch path.
func (c *MemoryChat) React(ref MessageRef, symbol string, count int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stored, ok := c.messages[ref]
	if !ok {
		return
	}
	stored.Reactions[symbol] += count
}

// HasChannel reports whether the channel still exists.
func (c *MemoryChat) HasChannel(channelID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.channels[channelID]
	return ok
}
