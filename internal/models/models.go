package models

import "time"

// Channel describes a Slack channel that can be searched.
type Channel struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Purpose string `json:"purpose,omitempty"`
	Topic   string `json:"topic,omitempty"`
}

type Attachment struct {
	Title       string `json:"title"`
	OriginalURL string `json:"original_url"`
}

// Message is a normalized Slack message candidate.
type Message struct {
	Text        string       `json:"text"`
	TS          string       `json:"ts"`
	User        string       `json:"user,omitempty"`
	Attachments []Attachment `json:"attachments"`
	Permalink   string       `json:"permalink,omitempty"`
}

// ChannelResult holds the messages kept for one searched channel.
type ChannelResult struct {
	ChannelName string    `json:"channel_name"`
	ChannelID   string    `json:"channel_id"`
	Messages    []Message `json:"messages"`
}

// DateRange is an inferred search range in MM/DD/YYYY form.
type DateRange struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// TimeWindow bounds a history fetch in Unix seconds.
type TimeWindow struct {
	Oldest int64 `json:"oldest"`
	Latest int64 `json:"latest"`
	Limit  int   `json:"limit"`
}

// Interaction is one stored user/assistant exchange.
type Interaction struct {
	UserID           string `json:"user_id"`
	UserName         string `json:"user_name,omitempty"`
	UserMessage      string `json:"user_message"`
	AssistantMessage string `json:"assistant_message"`
}

// HistoryMessage is a single message of a thread's stored history.
type HistoryMessage struct {
	Role      string    `json:"role"`
	RoleType  string    `json:"role_type"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
