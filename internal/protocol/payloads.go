package protocol

import (
	"encoding/json"
	"strings"
)

// Credentials is the payload of LOGIN and REGISTER.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// CreateChatRequest is the payload of CREATE_CHAT.
type CreateChatRequest struct {
	Target   Targets `json:"target"`
	IsGroup  bool    `json:"is_group"`
	Creator  string  `json:"creator"`
	ChatName string  `json:"chat_name,omitempty"`
}

// ChatMessageRequest is the payload of MESSAGE.
type ChatMessageRequest struct {
	ChatID   string `json:"chat_id"`
	Content  string `json:"content"`
	Username string `json:"username"`
}

// Targets accepts either a single username or a list of usernames.
type Targets []string

func (t *Targets) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*t = Targets{single}
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*t = many
	return nil
}

// Normalized trims every entry and drops empties and duplicates, keeping
// first-seen order.
func (t Targets) Normalized() []string {
	seen := make(map[string]struct{}, len(t))
	out := make([]string, 0, len(t))
	for _, name := range t {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
