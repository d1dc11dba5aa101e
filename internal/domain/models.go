// Package domain defines the persistence model for the room's event log.
// The log is mapped with GORM and is the single durable record of everything
// ever broadcast: chat messages and system notices alike.
package domain

import "encoding/json"

// Event kinds. The log holds user-authored messages and server-synthesized
// system notices (joins and leaves); nothing else is ever appended.
const (
	KindMessage = "message"
	KindSystem  = "system"
)

// ChatEvent is one persisted unit of room history.
//
// Fields:
//   - ID: assigned by the store at insert time; strictly increasing and
//     gap-free as long as appends for a room are serialized by its owner.
//   - Kind: "message" or "system" (enforced by DB constraint).
//   - Author: sender identity for messages, empty for system notices.
//   - Text: the message body or notice text.
//   - Timestamp: event time in Unix milliseconds, assigned by the room.
//
// Events are immutable once created and are never deleted; growth is bounded
// only at read time by the history limit.
type ChatEvent struct {
	ID        uint64 `json:"id"        gorm:"primaryKey;autoIncrement"`
	Kind      string `json:"kind"      gorm:"type:varchar(16);not null;check:kind IN ('message','system')"`
	Author    string `json:"author,omitempty" gorm:"type:varchar(64);not null;default:''"`
	Text      string `json:"text"      gorm:"type:text;not null"`
	Timestamp int64  `json:"timestamp" gorm:"not null;index"`
}

// TableName returns the database table name for ChatEvent.
func (ChatEvent) TableName() string { return "events" }

// MarshalWire renders the event in its live-broadcast wire shape, which
// mirrors the persisted shape but carries an explicit "type" discriminator.
func (e ChatEvent) MarshalWire() ([]byte, error) {
	switch e.Kind {
	case KindSystem:
		return json.Marshal(struct {
			Type string `json:"type"`
			ID   uint64 `json:"id,omitempty"`
			Text string `json:"text"`
		}{Type: KindSystem, ID: e.ID, Text: e.Text})
	default:
		return json.Marshal(struct {
			Type      string `json:"type"`
			ID        uint64 `json:"id"`
			Author    string `json:"author"`
			Text      string `json:"text"`
			Timestamp int64  `json:"timestamp"`
		}{Type: KindMessage, ID: e.ID, Author: e.Author, Text: e.Text, Timestamp: e.Timestamp})
	}
}
