// Package board holds the accumulated state of one retro. The protocol
// layer itself keeps nothing between frames; everything it decodes is
// folded in here, on the server as the authoritative model and in tests as
// the reference reducer.
package board

import (
	"sort"

	"github.com/adamwitko/retro/domain"
	"github.com/adamwitko/retro/protocol"
)

type voteKey struct {
	user domain.UserID
	card domain.CardID
}

// Board is the state of a single retro.
type Board struct {
	Retro     domain.Retro
	Stage     string
	LastError string

	columns  map[domain.ColumnID]*domain.Column
	cards    map[domain.CardID]*domain.Card
	contents map[domain.CardID][]domain.Content
	votes    map[voteKey]int
}

// New returns an empty board.
func New() *Board {
	return &Board{
		columns:  make(map[domain.ColumnID]*domain.Column),
		cards:    make(map[domain.CardID]*domain.Card),
		contents: make(map[domain.CardID][]domain.Content),
		votes:    make(map[voteKey]int),
	}
}

// Apply folds one protocol event into the board. State-broadcast events
// (card, column, content, retro, stage, user) replace by id and are
// idempotent; structural events (move, group, delete) edit relationships
// keyed by the identifiers they carry and ignore ids that no longer exist.
func (b *Board) Apply(ev protocol.Event) {
	switch e := ev.(type) {
	case protocol.StageEvent:
		b.Stage = e.Stage
	case protocol.ColumnEvent:
		b.columns[e.ColumnID] = &domain.Column{ID: e.ColumnID, Name: e.ColumnName, Order: e.ColumnOrder}
	case protocol.CardEvent:
		b.cards[e.CardID] = &domain.Card{
			ID:         e.CardID,
			ColumnID:   e.ColumnID,
			Revealed:   e.Revealed,
			Votes:      e.Votes,
			TotalVotes: e.TotalVotes,
		}
	case protocol.ContentEvent:
		b.setContent(domain.Content{ID: e.ContentID, ColumnID: e.ColumnID, CardID: e.CardID, Text: e.CardText})
	case protocol.MoveEvent:
		if card, ok := b.cards[e.CardID]; ok {
			card.ColumnID = e.ColumnTo
			for i := range b.contents[e.CardID] {
				b.contents[e.CardID][i].ColumnID = e.ColumnTo
			}
		}
	case protocol.RevealEvent:
		if card, ok := b.cards[e.CardID]; ok {
			card.Revealed = true
		}
	case protocol.GroupEvent:
		b.group(e.CardFrom, e.ColumnTo, e.CardTo)
	case protocol.VoteEvent:
		b.votes[voteKey{e.UserID, e.CardID}]++
		b.recountVotes(e.CardID)
	case protocol.UnvoteEvent:
		k := voteKey{e.UserID, e.CardID}
		if b.votes[k] > 0 {
			b.votes[k]--
		}
		if b.votes[k] == 0 {
			delete(b.votes, k)
		}
		b.recountVotes(e.CardID)
	case protocol.DeleteEvent:
		b.removeCard(e.CardID)
	case protocol.UserEvent:
		b.addParticipant(e.Username)
	case protocol.RetroEvent:
		b.Retro = domain.Retro{ID: e.ID, Name: e.Name, CreatedAt: e.CreatedAt, Participants: e.Participants}
	case protocol.ErrorEvent:
		b.LastError = e.Message
	}
}

func (b *Board) setContent(c domain.Content) {
	versions := b.contents[c.CardID]
	for i := range versions {
		if versions[i].ID == c.ID {
			versions[i] = c
			return
		}
	}
	b.contents[c.CardID] = append(versions, c)
}

func (b *Board) group(from domain.CardID, columnTo domain.ColumnID, to domain.CardID) {
	src, ok := b.cards[from]
	if !ok {
		return
	}
	dst, ok := b.cards[to]
	if !ok {
		return
	}
	// Contents and votes follow the card they were merged into.
	for _, c := range b.contents[from] {
		c.CardID = to
		c.ColumnID = columnTo
		b.setContent(c)
	}
	delete(b.contents, from)
	for k, n := range b.votes {
		if k.card == from {
			b.votes[voteKey{k.user, to}] += n
			delete(b.votes, k)
		}
	}
	dst.Revealed = dst.Revealed || src.Revealed
	delete(b.cards, from)
	b.recountVotes(to)
}

func (b *Board) removeCard(id domain.CardID) {
	delete(b.cards, id)
	delete(b.contents, id)
	for k := range b.votes {
		if k.card == id {
			delete(b.votes, k)
		}
	}
}

func (b *Board) recountVotes(id domain.CardID) {
	card, ok := b.cards[id]
	if !ok {
		return
	}
	total := 0
	for k, n := range b.votes {
		if k.card == id {
			total += n
		}
	}
	card.TotalVotes = total
}

func (b *Board) addParticipant(username string) {
	for _, p := range b.Retro.Participants {
		if p == username {
			return
		}
	}
	b.Retro.Participants = append(b.Retro.Participants, username)
}

// Votes returns how many votes user holds on card.
func (b *Board) Votes(user domain.UserID, card domain.CardID) int {
	return b.votes[voteKey{user, card}]
}

// TotalVotes returns the aggregate vote count for card.
func (b *Board) TotalVotes(card domain.CardID) int {
	total := 0
	for k, n := range b.votes {
		if k.card == card {
			total += n
		}
	}
	return total
}

// Card returns a copy of the card, if present.
func (b *Board) Card(id domain.CardID) (domain.Card, bool) {
	card, ok := b.cards[id]
	if !ok {
		return domain.Card{}, false
	}
	return *card, true
}

// Column returns a copy of the column, if present.
func (b *Board) Column(id domain.ColumnID) (domain.Column, bool) {
	col, ok := b.columns[id]
	if !ok {
		return domain.Column{}, false
	}
	return *col, true
}

// Columns returns all columns ordered by their Order attribute.
func (b *Board) Columns() []domain.Column {
	cols := make([]domain.Column, 0, len(b.columns))
	for _, c := range b.columns {
		cols = append(cols, *c)
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i].Order < cols[j].Order })
	return cols
}

// Cards returns all cards, grouped under their columns' order.
func (b *Board) Cards() []domain.Card {
	cards := make([]domain.Card, 0, len(b.cards))
	for _, c := range b.cards {
		cards = append(cards, *c)
	}
	sort.Slice(cards, func(i, j int) bool { return cards[i].ID < cards[j].ID })
	return cards
}

// Contents returns every content version of card, oldest first.
func (b *Board) Contents(card domain.CardID) []domain.Content {
	out := make([]domain.Content, len(b.contents[card]))
	copy(out, b.contents[card])
	return out
}

// LatestContent returns the current text version of card.
func (b *Board) LatestContent(card domain.CardID) (domain.Content, bool) {
	versions := b.contents[card]
	if len(versions) == 0 {
		return domain.Content{}, false
	}
	return versions[len(versions)-1], true
}

// Snapshot renders the frames that bring a newly joined connection up to
// the board's current state. Card frames carry the receiving user's own
// vote count.
func (b *Board) Snapshot(user domain.UserID) ([][]byte, error) {
	frames := make([][]byte, 0, 2+len(b.columns)+2*len(b.cards))

	frame, err := protocol.EncodeFrame(protocol.OpRetro, protocol.RetroPayload{
		ID:           b.Retro.ID,
		Name:         b.Retro.Name,
		CreatedAt:    b.Retro.CreatedAt,
		Participants: b.Retro.Participants,
	})
	if err != nil {
		return nil, err
	}
	frames = append(frames, frame)

	if b.Stage != "" {
		frame, err = protocol.EncodeFrame(protocol.OpStage, protocol.StagePayload{Stage: b.Stage})
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	}

	for _, col := range b.Columns() {
		frame, err = protocol.EncodeFrame(protocol.OpColumn, protocol.ColumnPayload{
			ColumnID:    col.ID,
			ColumnName:  col.Name,
			ColumnOrder: col.Order,
		})
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	}

	for _, card := range b.Cards() {
		frame, err = protocol.EncodeFrame(protocol.OpCard, protocol.CardPayload{
			ColumnID:   card.ColumnID,
			CardID:     card.ID,
			Revealed:   card.Revealed,
			Votes:      b.Votes(user, card.ID),
			TotalVotes: b.TotalVotes(card.ID),
		})
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)

		if content, ok := b.LatestContent(card.ID); ok {
			frame, err = protocol.EncodeFrame(protocol.OpContent, protocol.ContentPayload{
				ColumnID:  content.ColumnID,
				CardID:    content.CardID,
				ContentID: content.ID,
				CardText:  content.Text,
			})
			if err != nil {
				return nil, err
			}
			frames = append(frames, frame)
		}
	}

	return frames, nil
}
