package mc

import (
	"encoding/json"

	"github.com/Tnze/go-mc/chat"
)

// TextComponent wraps legacy formatted text (using § codes) into a chat
// component, the format disconnect reasons and descriptions are sent in.
func TextComponent(text string) String {
	bb, err := json.Marshal(chat.Text(text))
	if err != nil {
		return String(`{"text":""}`)
	}
	return String(bb)
}

// PlainText returns the text of a chat component without formatting, it
// accepts both the object form and a bare json string.
func PlainText(raw json.RawMessage) string {
	var msg chat.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return string(raw)
	}
	return msg.ClearString()
}
