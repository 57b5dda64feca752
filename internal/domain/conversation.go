package domain

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// ConversationKey identifies one conversation: the messaging account that
// received the message and the remote contact it belongs to.
type ConversationKey struct {
	AccountID     string
	CounterpartID string
}

// String renders the key for use in logs, maps and lock tables.
func (k ConversationKey) String() string {
	return k.AccountID + "#" + k.CounterpartID
}

// Turn is one message in a conversation.
type Turn struct {
	Role Role
	Text string
}

// UserTurn builds a turn authored by the remote contact.
func UserTurn(text string) Turn { return Turn{Role: RoleUser, Text: text} }

// ModelTurn builds a turn authored by the reply generator.
func ModelTurn(text string) Turn { return Turn{Role: RoleModel, Text: text} }

// History is the ordered sequence of turns for one conversation. It is
// append-only: each relay operation extends it by exactly one user turn and
// one model turn.
type History []Turn

// Clone returns an independent copy so callers can hand out snapshots.
func (h History) Clone() History {
	if h == nil {
		return nil
	}
	out := make(History, len(h))
	copy(out, h)
	return out
}
