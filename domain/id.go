package domain

import "github.com/google/uuid"

// Identifier types are deliberately distinct so a column id can never be
// handed to something expecting a card id, even though every identifier
// travels as a plain string on the wire.

// RetroID identifies a retrospective.
type RetroID string

// ColumnID identifies a column on a board.
type ColumnID string

// CardID identifies a card within a column.
type CardID string

// ContentID identifies one version of a card's text. Every edit produces a
// new one.
type ContentID string

// UserID identifies a participant. It is the signed-in username.
type UserID string

func (id RetroID) String() string   { return string(id) }
func (id ColumnID) String() string  { return string(id) }
func (id CardID) String() string    { return string(id) }
func (id ContentID) String() string { return string(id) }
func (id UserID) String() string    { return string(id) }

// NewRetroID returns a fresh retro identifier.
func NewRetroID() RetroID { return RetroID(uuid.NewString()) }

// NewColumnID returns a fresh column identifier.
func NewColumnID() ColumnID { return ColumnID(uuid.NewString()) }

// NewCardID returns a fresh card identifier.
func NewCardID() CardID { return CardID(uuid.NewString()) }

// NewContentID returns a fresh content identifier.
func NewContentID() ContentID { return ContentID(uuid.NewString()) }
