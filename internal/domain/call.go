package domain

import "strconv"

// CallID names one active signaling session.
type CallID int64

func (id CallID) String() string { return strconv.FormatInt(int64(id), 10) }

func ParseCallID(s string) (CallID, error) {
	n, err := parseID(s)
	return CallID(n), err
}
