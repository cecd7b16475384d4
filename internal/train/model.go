package train

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Train is one live raid train session. All state mutation happens under the
// session's own mutex; coordinator methods run to completion before yielding.
type Train struct {
	mu   sync.Mutex
	deps *deps

	ID              int64
	GuildID         int64
	ChannelID       int64
	ReportChannelID int64

	// CurrentEventID is the event being visited; 0 means none yet. It is
	// never also present in History.
	CurrentEventID int64
	// NextEventID is decided but not yet activated; cleared exactly when it
	// becomes current.
	NextEventID int64
	// History holds previously visited event ids in visit order.
	History []int64

	// ReportMsgIDs are the interest-vote alert cards this session has posted,
	// in wire ref form. They feed the external vote source.
	ReportMsgIDs []string
	// PollMsgIDs are the cards belonging to the active poll round.
	PollMsgIDs []string
	// AlertMsgIDs are join/leave notice messages, in-memory only.
	AlertMsgIDs []string

	// SummaryMessageID is the card members react to in order to join/leave.
	SummaryMessageID int64

	round *round
}

// Row is the durable shape of a session.
type Row struct {
	ID               int64  `gorm:"column:id;primaryKey"`
	GuildID          int64  `gorm:"column:guild_id;not null"`
	ChannelID        int64  `gorm:"column:channel_id;not null;index"`
	ReportChannelID  int64  `gorm:"column:report_channel_id;not null"`
	CurrentEventID   int64  `gorm:"column:current_event_id;not null;default:0"`
	NextEventID      int64  `gorm:"column:next_event_id;not null;default:0"`
	HistoryJSON      string `gorm:"column:history_json;type:text;not null;default:'[]'"`
	ReportMsgsJSON   string `gorm:"column:report_msgs_json;type:text;not null;default:'[]'"`
	PollMsgsJSON     string `gorm:"column:poll_msgs_json;type:text;not null;default:'[]'"`
	SummaryMessageID int64  `gorm:"column:summary_message_id;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (Row) TableName() string {
	return "trains"
}

func (t *Train) toRow() Row {
	return Row{
		ID:               t.ID,
		GuildID:          t.GuildID,
		ChannelID:        t.ChannelID,
		ReportChannelID:  t.ReportChannelID,
		CurrentEventID:   t.CurrentEventID,
		NextEventID:      t.NextEventID,
		HistoryJSON:      encodeInt64List(t.History),
		ReportMsgsJSON:   encodeStringList(t.ReportMsgIDs),
		PollMsgsJSON:     encodeStringList(t.PollMsgIDs),
		SummaryMessageID: t.SummaryMessageID,
	}
}

func fromRow(row Row, d *deps) (*Train, error) {
	history, err := decodeInt64List(row.HistoryJSON)
	if err != nil {
		return nil, fmt.Errorf("train: bad history column for %d: %w", row.ID, err)
	}
	reportMsgs, err := decodeStringList(row.ReportMsgsJSON)
	if err != nil {
		return nil, fmt.Errorf("train: bad report messages column for %d: %w", row.ID, err)
	}
	pollMsgs, err := decodeStringList(row.PollMsgsJSON)
	if err != nil {
		return nil, fmt.Errorf("train: bad poll messages column for %d: %w", row.ID, err)
	}
	return &Train{
		deps:             d,
		ID:               row.ID,
		GuildID:          row.GuildID,
		ChannelID:        row.ChannelID,
		ReportChannelID:  row.ReportChannelID,
		CurrentEventID:   row.CurrentEventID,
		NextEventID:      row.NextEventID,
		History:          history,
		ReportMsgIDs:     reportMsgs,
		PollMsgIDs:       pollMsgs,
		SummaryMessageID: row.SummaryMessageID,
	}, nil
}

func encodeInt64List(values []int64) string {
	if len(values) == 0 {
		return "[]"
	}
	encoded, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(encoded)
}

func decodeInt64List(raw string) ([]int64, error) {
	if raw == "" {
		return nil, nil
	}
	var values []int64
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, err
	}
	return values, nil
}

func encodeStringList(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	encoded, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(encoded)
}

func decodeStringList(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, err
	}
	return values, nil
}
