package api

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/adamwitko/retro/board"
	"github.com/adamwitko/retro/domain"
	"github.com/adamwitko/retro/protocol"
)

var (
	// ErrNoRetro reports a frame from a connection that has not joined a
	// retro yet.
	ErrNoRetro = errors.New("connection has not joined a retro")
	// ErrUnknownRetro reports a join for a retro this instance does not
	// host.
	ErrUnknownRetro = errors.New("unknown retro")
)

// Outbound is one frame the server wants delivered. An empty Target means
// every participant of the room's retro.
type Outbound struct {
	Target domain.UserID
	Frame  []byte
}

// Rooms tracks every live retro this instance is authoritative for and
// which retro each connection has joined.
type Rooms struct {
	mu     sync.Mutex
	rooms  map[domain.RetroID]*Room
	joined map[string]domain.RetroID
}

// NewRooms returns an empty registry.
func NewRooms() *Rooms {
	return &Rooms{
		rooms:  make(map[domain.RetroID]*Room),
		joined: make(map[string]domain.RetroID),
	}
}

// Room is one live retro. Its board is the authoritative state; every
// mutation goes through a protocol frame so clients replay exactly what
// the server applied.
type Room struct {
	ID domain.RetroID

	mu    sync.Mutex
	board *board.Board
}

// Default columns seeded into every new retro.
var defaultColumns = []string{"Start", "Stop", "Continue"}

// Create starts a new retro and returns the frames describing it: the
// retro itself followed by its columns.
func (rs *Rooms) Create(name string, users []string) (*Room, [][]byte, error) {
	retro := protocol.RetroPayload{
		ID:           domain.NewRetroID(),
		Name:         name,
		CreatedAt:    time.Now().UTC(),
		Participants: users,
	}

	room := &Room{ID: retro.ID, board: board.New()}
	frames := make([][]byte, 0, 1+len(defaultColumns))

	frame, err := room.apply(protocol.OpRetro, retro)
	if err != nil {
		return nil, nil, err
	}
	frames = append(frames, frame)

	for i, colName := range defaultColumns {
		frame, err := room.apply(protocol.OpColumn, protocol.ColumnPayload{
			ColumnID:    domain.NewColumnID(),
			ColumnName:  colName,
			ColumnOrder: i + 1,
		})
		if err != nil {
			return nil, nil, err
		}
		frames = append(frames, frame)
	}

	rs.mu.Lock()
	rs.rooms[retro.ID] = room
	rs.mu.Unlock()
	return room, frames, nil
}

// Join points a connection at a retro and returns the room.
func (rs *Rooms) Join(connID string, id domain.RetroID) (*Room, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	room, ok := rs.rooms[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRetro, id)
	}
	rs.joined[connID] = id
	return room, nil
}

// RoomFor returns the room a connection has joined.
func (rs *Rooms) RoomFor(connID string) (*Room, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	id, ok := rs.joined[connID]
	if !ok {
		return nil, ErrNoRetro
	}
	room, ok := rs.rooms[id]
	if !ok {
		return nil, ErrNoRetro
	}
	return room, nil
}

// Get returns a live room by retro id.
func (rs *Rooms) Get(id domain.RetroID) (*Room, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	room, ok := rs.rooms[id]
	return room, ok
}

// List returns the retros of every live room.
func (rs *Rooms) List() []domain.Retro {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out := make([]domain.Retro, 0, len(rs.rooms))
	for _, room := range rs.rooms {
		room.mu.Lock()
		out = append(out, room.board.Retro)
		room.mu.Unlock()
	}
	return out
}

// apply encodes a frame, folds it into the board and returns the frame.
// Running the board off the same bytes the clients receive keeps both
// sides of the wire in lockstep.
func (r *Room) apply(op protocol.Op, payload any) ([]byte, error) {
	frame, err := protocol.EncodeFrame(op, payload)
	if err != nil {
		return nil, err
	}
	env, err := protocol.DecodeEnvelope(frame)
	if err != nil {
		return nil, err
	}
	ev, ok := protocol.DecodeEvent(env)
	if !ok {
		return nil, fmt.Errorf("op %s is not a broadcast event", op)
	}
	r.board.Apply(ev)
	return frame, nil
}

// Snapshot renders the frames bringing user's connection up to date.
func (r *Room) Snapshot(user domain.UserID) ([][]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.board.Snapshot(user)
}

// Participants returns the current participant list.
func (r *Room) Participants() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.board.Retro.Participants...)
}

// Announce broadcasts a user joining the retro.
func (r *Room) Announce(user domain.UserID) ([]Outbound, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	frame, err := r.apply(protocol.OpUser, protocol.UserPayload{Username: string(user)})
	if err != nil {
		return nil, err
	}
	return []Outbound{{Frame: frame}}, nil
}

// Handle applies one client request to the room and returns the frames to
// deliver. Requests referencing identifiers the board no longer knows come
// back as a protocol error frame targeted at the requester; the connection
// itself is never failed.
func (r *Room) Handle(user domain.UserID, req protocol.Request) ([]Outbound, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Outbound
	broadcast := func(op protocol.Op, payload any) error {
		frame, err := r.apply(op, payload)
		if err != nil {
			return err
		}
		out = append(out, Outbound{Frame: frame})
		return nil
	}
	reject := func(msg string) ([]Outbound, error) {
		frame, err := protocol.EncodeFrame(protocol.OpError, protocol.ErrorPayload{Error: msg})
		if err != nil {
			return nil, err
		}
		return []Outbound{{Target: user, Frame: frame}}, nil
	}
	// Card frames are rendered per recipient: votes carries that user's
	// own count.
	cardFrames := func(cardID domain.CardID) error {
		card, ok := r.board.Card(cardID)
		if !ok {
			return nil
		}
		for _, p := range r.board.Retro.Participants {
			frame, err := protocol.EncodeFrame(protocol.OpCard, protocol.CardPayload{
				ColumnID:   card.ColumnID,
				CardID:     card.ID,
				Revealed:   card.Revealed,
				Votes:      r.board.Votes(domain.UserID(p), card.ID),
				TotalVotes: r.board.TotalVotes(card.ID),
			})
			if err != nil {
				return err
			}
			out = append(out, Outbound{Target: domain.UserID(p), Frame: frame})
		}
		return nil
	}

	switch q := req.(type) {
	case protocol.AddRequest:
		if _, ok := r.board.Column(q.ColumnID); !ok {
			return reject("column not found")
		}
		cardID := domain.NewCardID()
		if err := broadcast(protocol.OpCard, protocol.CardPayload{ColumnID: q.ColumnID, CardID: cardID}); err != nil {
			return nil, err
		}
		return out, broadcast(protocol.OpContent, protocol.ContentPayload{
			ColumnID:  q.ColumnID,
			CardID:    cardID,
			ContentID: domain.NewContentID(),
			CardText:  q.CardText,
		})
	case protocol.EditRequest:
		if _, ok := r.board.Card(q.CardID); !ok {
			return reject("card not found")
		}
		// Every edit mints a new content version so clients can discard
		// stale ones.
		return out, broadcast(protocol.OpContent, protocol.ContentPayload{
			ColumnID:  q.ColumnID,
			CardID:    q.CardID,
			ContentID: domain.NewContentID(),
			CardText:  q.CardText,
		})
	case protocol.SetStageRequest:
		return out, broadcast(protocol.OpStage, q.StagePayload)
	case protocol.MoveRequest:
		if _, ok := r.board.Card(q.CardID); !ok {
			return reject("card not found")
		}
		if _, ok := r.board.Column(q.ColumnTo); !ok {
			return reject("column not found")
		}
		return out, broadcast(protocol.OpMove, q.MovePayload)
	case protocol.RevealRequest:
		if _, ok := r.board.Card(q.CardID); !ok {
			return reject("card not found")
		}
		return out, broadcast(protocol.OpReveal, q.RevealPayload)
	case protocol.GroupRequest:
		if _, ok := r.board.Card(q.CardFrom); !ok {
			return reject("card not found")
		}
		if _, ok := r.board.Card(q.CardTo); !ok {
			return reject("card not found")
		}
		if err := broadcast(protocol.OpGroup, q.GroupPayload); err != nil {
			return nil, err
		}
		return out, cardFrames(q.CardTo)
	case protocol.VoteRequest:
		if _, ok := r.board.Card(q.CardID); !ok {
			return reject("card not found")
		}
		if err := broadcast(protocol.OpVote, q.VotePayload); err != nil {
			return nil, err
		}
		return out, cardFrames(q.CardID)
	case protocol.UnvoteRequest:
		if _, ok := r.board.Card(q.CardID); !ok {
			return reject("card not found")
		}
		if err := broadcast(protocol.OpUnvote, q.VotePayload); err != nil {
			return nil, err
		}
		return out, cardFrames(q.CardID)
	case protocol.DeleteRequest:
		if _, ok := r.board.Card(q.CardID); !ok {
			return reject("card not found")
		}
		return out, broadcast(protocol.OpDelete, q.DeletePayload)
	case protocol.AnnounceRequest:
		return out, broadcast(protocol.OpUser, q.UserPayload)
	default:
		return nil, fmt.Errorf("request %T is not a room operation", req)
	}
}
