package protocol

// Op names the operation carried by a frame and decides how its payload is
// interpreted. The set is closed; the dispatcher ignores anything else.
type Op string

// Operations broadcast by the server.
const (
	OpStage   Op = "stage"
	OpColumn  Op = "column"
	OpCard    Op = "card"
	OpContent Op = "content"
	OpMove    Op = "move"
	OpReveal  Op = "reveal"
	OpGroup   Op = "group"
	OpVote    Op = "vote"
	OpUnvote  Op = "unvote"
	OpDelete  Op = "delete"
	OpUser    Op = "user"
	OpRetro   Op = "retro"
	OpError   Op = "error"
)

// Operations that only ever travel client to server.
const (
	OpAdd         Op = "add"
	OpEdit        Op = "edit"
	OpMenu        Op = "menu"
	OpJoinRetro   Op = "joinRetro"
	OpCreateRetro Op = "createRetro"
)
