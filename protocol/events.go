package protocol

// Event is a typed server broadcast decoded from an inbound frame. The set
// of variants is closed: the unexported marker keeps other packages from
// growing it, so a switch over events can be exhaustive.
type Event interface {
	// ConnID is the id of the connection the frame arrived on.
	ConnID() string
	event()
}

type eventBase struct {
	Conn string
}

func (e eventBase) ConnID() string { return e.Conn }
func (eventBase) event()           {}

type StageEvent struct {
	eventBase
	StagePayload
}

type ColumnEvent struct {
	eventBase
	ColumnPayload
}

type CardEvent struct {
	eventBase
	CardPayload
}

type ContentEvent struct {
	eventBase
	ContentPayload
}

type MoveEvent struct {
	eventBase
	MovePayload
}

type RevealEvent struct {
	eventBase
	RevealPayload
}

type GroupEvent struct {
	eventBase
	GroupPayload
}

type VoteEvent struct {
	eventBase
	VotePayload
}

type UnvoteEvent struct {
	eventBase
	VotePayload
}

type DeleteEvent struct {
	eventBase
	DeletePayload
}

type UserEvent struct {
	eventBase
	UserPayload
}

type RetroEvent struct {
	eventBase
	RetroPayload
}

// ErrorEvent carries either a server-reported error or the description of a
// payload that failed to decode. Both reach the application the same way.
type ErrorEvent struct {
	eventBase
	Message string
}
