package model

import (
	"strings"
	"unicode/utf8"
)

// QuickReply is an operator-authored canned response.
type QuickReply struct {
	ID        string `json:"id"`
	Category  string `json:"category"`
	Text      string `json:"text"`
	SortOrder int    `json:"sortOrder"`
}

// QuickReplyRequest creates or replaces a template.
type QuickReplyRequest struct {
	Category  string `json:"category"`
	Text      string `json:"text"`
	SortOrder int    `json:"sortOrder"`
}

// Validate checks the template fields.
func (r *QuickReplyRequest) Validate() error {
	r.Text = strings.TrimSpace(r.Text)
	r.Category = strings.TrimSpace(r.Category)
	if r.Text == "" {
		return invalid("quick reply text cannot be empty")
	}
	if utf8.RuneCountInString(r.Text) > 2000 {
		return invalid("quick reply text exceeds maximum length")
	}
	if utf8.RuneCountInString(r.Category) > 64 {
		return invalid("quick reply category exceeds maximum length")
	}
	return nil
}

// SelectionResponse is returned when a template or draft is put into the input.
type SelectionResponse struct {
	Text   string `json:"text"`
	Typing bool   `json:"typing"`
}
