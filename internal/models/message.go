package models

// Message is the part of a channel message the publisher needs.
type Message struct {
	ID        string
	ChannelID string
	AuthorID  string
	// FromBot is true when the message was written by this bot's account.
	FromBot bool
}
