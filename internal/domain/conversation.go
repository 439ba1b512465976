package domain

import "strconv"

// ConversationID names a private chat or a group.
type ConversationID int64

func (id ConversationID) String() string { return strconv.FormatInt(int64(id), 10) }

func ParseConversationID(s string) (ConversationID, error) {
	n, err := parseID(s)
	return ConversationID(n), err
}
