package platform

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Reaction symbols with fixed meaning on coordinator-owned cards.
const (
	SymbolJoin   = "\U0001F682" // locomotive on the summary card
	SymbolLeave  = "❌"
	SymbolUpvote = "⬆" // interest vote on report cards
)

// ErrNotFound reports that a message, channel or member no longer exists.
// Callers deleting or editing treat it as already satisfied.
var ErrNotFound = errors.New("platform: not found")

// MessageRef addresses a message inside a channel.
type MessageRef struct {
	ChannelID int64
	MessageID int64
}

// String renders the ref in the wire form "<channel>/<message>".
func (r MessageRef) String() string {
	return fmt.Sprintf("%d/%d", r.ChannelID, r.MessageID)
}

// ParseRef parses the "<channel>/<message>" wire form.
func ParseRef(raw string) (MessageRef, error) {
	parts := strings.SplitN(strings.TrimSpace(raw), "/", 2)
	if len(parts) != 2 {
		return MessageRef{}, fmt.Errorf("platform: malformed message ref %q", raw)
	}
	channelID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return MessageRef{}, fmt.Errorf("platform: malformed channel id in ref %q", raw)
	}
	messageID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return MessageRef{}, fmt.Errorf("platform: malformed message id in ref %q", raw)
	}
	return MessageRef{ChannelID: channelID, MessageID: messageID}, nil
}

// EmbedField is a named text block inside an embed card.
type EmbedField struct {
	Name  string
	Value string
}

// Embed is the renderable card payload attached to a chat message.
type Embed struct {
	Title       string
	Description string
	Thumbnail   string
	Footer      string
	Timestamp   time.Time
	Fields      []EmbedField
}

// Tally is one symbol's reaction count in a poll result, highest counts first.
type Tally struct {
	Symbol string
	Count  int
}

// Chat is the platform collaborator the coordinator talks to. All mutating
// calls are fallible and idempotent on retry; deleting something already gone
// yields ErrNotFound.
type Chat interface {
	SendMessage(ctx context.Context, channelID int64, content string, embed *Embed) (int64, error)
	EditMessage(ctx context.Context, ref MessageRef, content string, embed *Embed) error
	DeleteMessage(ctx context.Context, ref MessageRef) error

	AddReaction(ctx context.Context, ref MessageRef, symbol string) error
	RemoveReaction(ctx context.Context, ref MessageRef, symbol string, userID int64) error
	ClearReactions(ctx context.Context, ref MessageRef) error
	ReactionCount(ctx context.Context, ref MessageRef, symbol string) (int, error)

	CreateChannel(ctx context.Context, guildID int64, name string) (int64, error)
	DeleteChannel(ctx context.Context, channelID int64) error
	DisplayName(ctx context.Context, guildID, userID int64) (string, error)

	// Ask prompts the listed users to pick one symbol on the referenced
	// message and blocks until the first of them answers.
	Ask(ctx context.Context, ref MessageRef, userIDs []int64, symbols []string) (string, error)

	// Poll runs the platform voting primitive over the referenced cards and
	// blocks until its quorum or timeout settles. Cancelling ctx resolves the
	// poll immediately with the partial tally collected so far; the partial
	// result is returned with a nil error.
	Poll(ctx context.Context, refs []MessageRef, symbols []string) ([]Tally, error)
}

// ChoiceSymbols returns a stable symbol per candidate index: the regional
// indicator letters A, B, C, ...
func ChoiceSymbols(n int) []string {
	symbols := make([]string, 0, n)
	for i := 0; i < n; i++ {
		symbols = append(symbols, string(rune(0x1F1E6+i)))
	}
	return symbols
}
