package middleware

import (
	"errors"
	"net/url"
	"regexp"
	"unicode/utf8"
)

const (
	maxMessageRunes = 5000
	maxTypingRunes  = 10000
	maxImageURLLen  = 2048
)

// Room, message and template IDs are UUIDs from the memory store or hex
// ObjectIDs from MongoDB.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateRoomID validates a room ID.
func ValidateRoomID(id string) error {
	if !idPattern.MatchString(id) {
		return errors.New("invalid room ID format")
	}
	return nil
}

// ValidateMessageID validates a message ID.
func ValidateMessageID(id string) error {
	if !idPattern.MatchString(id) {
		return errors.New("invalid message ID format")
	}
	return nil
}

// ValidateQuickReplyID validates a quick reply ID.
func ValidateQuickReplyID(id string) error {
	if !idPattern.MatchString(id) {
		return errors.New("invalid quick reply ID format")
	}
	return nil
}

// ValidateMessageContent validates an outgoing message. Either field may
// be nil; deciding whether the message is empty is left to the service.
func ValidateMessageContent(text, imageURL *string) error {
	if text != nil {
		if !utf8.ValidString(*text) {
			return errors.New("text must be valid UTF-8")
		}
		if utf8.RuneCountInString(*text) > maxMessageRunes {
			return errors.New("text exceeds maximum length")
		}
	}
	if imageURL != nil && *imageURL != "" {
		if len(*imageURL) > maxImageURLLen {
			return errors.New("image URL exceeds maximum length")
		}
		u, err := url.Parse(*imageURL)
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			return errors.New("image URL must be an absolute http(s) URL")
		}
	}
	return nil
}

// ValidateTypingText validates the input contents reported on keystroke.
func ValidateTypingText(text string) error {
	if !utf8.ValidString(text) {
		return errors.New("text must be valid UTF-8")
	}
	if utf8.RuneCountInString(text) > maxTypingRunes {
		return errors.New("text exceeds maximum length")
	}
	return nil
}
