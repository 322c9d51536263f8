package domain

import "time"

// Retro is a retrospective session. Everything but the participant list is
// fixed once the retro has been created.
type Retro struct {
	ID           RetroID
	Name         string
	CreatedAt    time.Time
	Participants []string
}

// Column groups cards on the board. Display order follows Order, not the
// position columns happen to arrive in.
type Column struct {
	ID    ColumnID
	Name  string
	Order int
}

// Card is a single discussion item. Its text lives in Content records,
// versioned separately so edits can be told apart. Votes is the vote count
// of the user a given card frame was rendered for; TotalVotes is the
// aggregate across all participants.
type Card struct {
	ID         CardID
	ColumnID   ColumnID
	Revealed   bool
	Votes      int
	TotalVotes int
}

// Content is one version of a card's text.
type Content struct {
	ID       ContentID
	ColumnID ColumnID
	CardID   CardID
	Text     string
}

// Vote records that a user voted for a card once. A user may hold several
// votes on the same card.
type Vote struct {
	UserID   UserID
	ColumnID ColumnID
	CardID   CardID
}
