package streamclient

import (
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

// TempChatPrefix marks a chat that exists only client-side, awaiting its first
// successful round-trip. Durability checks live here so callers never test id
// prefixes themselves.
const TempChatPrefix = "temp-"

func NewTempChatID() string {
	return TempChatPrefix + uuid.NewString()
}

func IsDurableChatID(id string) bool {
	return id != "" && !strings.HasPrefix(id, TempChatPrefix)
}

// IsDurableMessageID reports whether an id came from the server. Optimistic
// placeholders use negative synthetic ids.
func IsDurableMessageID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

var placeholderSeq atomic.Int64

func nextPlaceholderID() string {
	return strconv.FormatInt(-placeholderSeq.Add(1), 10)
}
