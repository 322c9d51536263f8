package protocol

import (
	"time"

	"github.com/adamwitko/retro/domain"
)

// Payload shapes for every operation. Identifiers keep their entity-scoped
// types here; they serialize as plain strings.

type StagePayload struct {
	Stage string `json:"stage"`
}

type ColumnPayload struct {
	ColumnID    domain.ColumnID `json:"columnId"`
	ColumnName  string          `json:"columnName"`
	ColumnOrder int             `json:"columnOrder"`
}

type CardPayload struct {
	ColumnID   domain.ColumnID `json:"columnId"`
	CardID     domain.CardID   `json:"cardId"`
	Revealed   bool            `json:"revealed"`
	Votes      int             `json:"votes"`
	TotalVotes int             `json:"totalVotes"`
}

type ContentPayload struct {
	ColumnID  domain.ColumnID  `json:"columnId"`
	CardID    domain.CardID    `json:"cardId"`
	ContentID domain.ContentID `json:"contentId"`
	CardText  string           `json:"cardText"`
}

type MovePayload struct {
	ColumnFrom domain.ColumnID `json:"columnFrom"`
	ColumnTo   domain.ColumnID `json:"columnTo"`
	CardID     domain.CardID   `json:"cardId"`
}

type RevealPayload struct {
	ColumnID domain.ColumnID `json:"columnId"`
	CardID   domain.CardID   `json:"cardId"`
}

type GroupPayload struct {
	ColumnFrom domain.ColumnID `json:"columnFrom"`
	CardFrom   domain.CardID   `json:"cardFrom"`
	ColumnTo   domain.ColumnID `json:"columnTo"`
	CardTo     domain.CardID   `json:"cardTo"`
}

// VotePayload is shared by vote and unvote; the two are distinguished only
// by their op.
type VotePayload struct {
	UserID   domain.UserID   `json:"userId"`
	ColumnID domain.ColumnID `json:"columnId"`
	CardID   domain.CardID   `json:"cardId"`
}

type DeletePayload struct {
	ColumnID domain.ColumnID `json:"columnId"`
	CardID   domain.CardID   `json:"cardId"`
}

type UserPayload struct {
	Username string `json:"username"`
}

type RetroPayload struct {
	ID           domain.RetroID `json:"id"`
	Name         string         `json:"name"`
	CreatedAt    time.Time      `json:"createdAt"`
	Participants []string       `json:"participants"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}

// Client-originated payloads without a broadcast counterpart.

type AddPayload struct {
	ColumnID domain.ColumnID `json:"columnId"`
	CardText string          `json:"cardText"`
}

type EditPayload struct {
	ColumnID  domain.ColumnID  `json:"columnId"`
	ContentID domain.ContentID `json:"contentId"`
	CardID    domain.CardID    `json:"cardId"`
	CardText  string           `json:"cardText"`
}

type JoinRetroPayload struct {
	RetroID domain.RetroID `json:"retroId"`
}

type CreateRetroPayload struct {
	Name  string   `json:"name"`
	Users []string `json:"users"`
}
