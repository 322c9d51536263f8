package protocol

import "github.com/adamwitko/retro/domain"

// SendFunc delivers one encoded frame to the server. Implementations are
// built once per connection from the server URL, the connection id, and the
// session token; see the client package.
type SendFunc func(frame []byte) error

// Commands builds outbound frames for every user-initiated action. It does
// no validation of argument values; its only job is faithful serialization.
type Commands struct {
	send SendFunc
}

// NewCommands returns a builder that hands finished frames to send.
func NewCommands(send SendFunc) Commands {
	return Commands{send: send}
}

func (c Commands) emit(op Op, payload any) error {
	frame, err := EncodeFrame(op, payload)
	if err != nil {
		return err
	}
	return c.send(frame)
}

// Add creates a new card with the given text in a column.
func (c Commands) Add(columnID domain.ColumnID, cardText string) error {
	return c.emit(OpAdd, AddPayload{ColumnID: columnID, CardText: cardText})
}

// Edit replaces a card's text. Each edit names the content version it was
// based on; the server mints the next one.
func (c Commands) Edit(contentID domain.ContentID, columnID domain.ColumnID, cardID domain.CardID, cardText string) error {
	return c.emit(OpEdit, EditPayload{ColumnID: columnID, ContentID: contentID, CardID: cardID, CardText: cardText})
}

// Move relocates a card between columns.
func (c Commands) Move(columnFrom, columnTo domain.ColumnID, cardID domain.CardID) error {
	return c.emit(OpMove, MovePayload{ColumnFrom: columnFrom, ColumnTo: columnTo, CardID: cardID})
}

// Reveal makes a card's content visible to all participants.
func (c Commands) Reveal(columnID domain.ColumnID, cardID domain.CardID) error {
	return c.emit(OpReveal, RevealPayload{ColumnID: columnID, CardID: cardID})
}

// Group merges one card into another.
func (c Commands) Group(columnFrom domain.ColumnID, cardFrom domain.CardID, columnTo domain.ColumnID, cardTo domain.CardID) error {
	return c.emit(OpGroup, GroupPayload{ColumnFrom: columnFrom, CardFrom: cardFrom, ColumnTo: columnTo, CardTo: cardTo})
}

// Vote adds one of the user's votes to a card.
func (c Commands) Vote(userID domain.UserID, columnID domain.ColumnID, cardID domain.CardID) error {
	return c.emit(OpVote, VotePayload{UserID: userID, ColumnID: columnID, CardID: cardID})
}

// Unvote removes one of the user's votes from a card.
func (c Commands) Unvote(userID domain.UserID, columnID domain.ColumnID, cardID domain.CardID) error {
	return c.emit(OpUnvote, VotePayload{UserID: userID, ColumnID: columnID, CardID: cardID})
}

// Delete removes a card.
func (c Commands) Delete(columnID domain.ColumnID, cardID domain.CardID) error {
	return c.emit(OpDelete, DeletePayload{ColumnID: columnID, CardID: cardID})
}

// SetStage moves the retro to another phase.
func (c Commands) SetStage(stage string) error {
	return c.emit(OpStage, StagePayload{Stage: stage})
}

// Announce introduces the signed-in user to the other participants.
func (c Commands) Announce(username string) error {
	return c.emit(OpUser, UserPayload{Username: username})
}

// Menu asks the server for the list of known retros. The payload is an
// empty string, kept for wire compatibility.
func (c Commands) Menu() error {
	return c.emit(OpMenu, "")
}

// JoinRetro subscribes the connection to a retro and requests its current
// state.
func (c Commands) JoinRetro(retroID domain.RetroID) error {
	return c.emit(OpJoinRetro, JoinRetroPayload{RetroID: retroID})
}

// CreateRetro starts a new retro with the given participants.
func (c Commands) CreateRetro(name string, users []string) error {
	return c.emit(OpCreateRetro, CreateRetroPayload{Name: name, Users: users})
}
