// Package protocol implements the line-oriented wire format shared by the
// command and liveness channels: `VERB[:payload]` frames, one per line, with
// JSON payloads where a verb carries structured data.
package protocol

import (
	"encoding/json"
	"strings"

	apperrors "github.com/openclaw/chat-relay-go/internal/errors"
)

// Request verbs
const (
	VerbAuth        = "AUTH"
	VerbLogin       = "LOGIN"
	VerbRegister    = "REGISTER"
	VerbCreateChat  = "CREATE_CHAT"
	VerbGetChats    = "GET_CHATS"
	VerbGetMessages = "GET_MESSAGES"
	VerbMessage     = "MESSAGE"
)

// Fixed reply literals
const (
	AuthSuccess  = "AUTH_SUCCESS"
	AuthFail     = "AUTH_FAIL"
	RegSuccess   = "REG_SUCCESS"
	RegFail      = "REG_FAIL"
	AuthError    = "AUTH_ERROR"
	KeepAlive    = "KEEP_ALIVE"
	Alive        = "ALIVE"
	ChatCreated  = "CHAT_CREATED"
	ChatError    = "CHAT_ERROR"
	MessageError = "MESSAGE_ERROR"
	GenericError = "ERROR"
)

// Frame is one decoded wire line.
type Frame struct {
	Verb    string
	Payload string
}

// Parse splits a raw line into verb and payload. The line terminator is
// optional. A line without a colon is a bare verb.
func Parse(line string) (Frame, error) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return Frame{}, apperrors.Protocol("empty frame")
	}

	verb, payload, _ := strings.Cut(line, ":")
	if !isVerb(verb) {
		return Frame{}, apperrors.Protocol("malformed verb")
	}

	return Frame{Verb: verb, Payload: strings.TrimSpace(payload)}, nil
}

// Decode unmarshals the JSON payload into v.
func (f Frame) Decode(v any) error {
	if f.Payload == "" {
		return apperrors.Protocol(f.Verb + " requires a payload")
	}
	if err := json.Unmarshal([]byte(f.Payload), v); err != nil {
		return apperrors.Protocol("malformed JSON payload").WithCause(err)
	}
	return nil
}

// Encode renders a frame as a wire line without the terminator.
func Encode(verb, payload string) string {
	if payload == "" {
		return verb
	}
	return verb + ":" + payload
}

// EncodeJSON renders a bare JSON document as a wire line.
func EncodeJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// TokenAnnouncement is the first line sent over a freshly accepted
// liveness connection.
func TokenAnnouncement(token string) string {
	return VerbAuth + ": " + token
}

// ChatCreatedReply is the positive reply to CREATE_CHAT.
func ChatCreatedReply(chatID string) string {
	return Encode(ChatCreated, chatID)
}

func isVerb(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if (c < 'A' || c > 'Z') && c != '_' {
			return false
		}
	}
	return true
}
