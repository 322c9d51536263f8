package api

import (
	"errors"
	"testing"

	"github.com/bytedance/sonic"

	"github.com/adamwitko/retro/domain"
	"github.com/adamwitko/retro/protocol"
)

func frameWithConn(t *testing.T, connID string, op protocol.Op, payload any) []byte {
	t.Helper()
	data := ""
	if payload != nil {
		raw, err := sonic.ConfigStd.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		data = string(raw)
	}
	frame, err := sonic.ConfigStd.Marshal(protocol.Envelope{ID: connID, Op: op, Data: data})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return frame
}

func mustRequest(t *testing.T, connID string, op protocol.Op, payload any) protocol.Request {
	t.Helper()
	env, err := protocol.DecodeEnvelope(frameWithConn(t, connID, op, payload))
	if err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	req, err := protocol.DecodeRequest(env)
	if err != nil {
		t.Fatalf("decode request: %v", err)
	}
	return req
}

func decodeFrame(t *testing.T, frame []byte) protocol.Envelope {
	t.Helper()
	env, err := protocol.DecodeEnvelope(frame)
	if err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return env
}

func newTestRoom(t *testing.T, users ...string) (*Rooms, *Room) {
	t.Helper()
	rooms := NewRooms()
	room, _, err := rooms.Create("sprint 12", users)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	return rooms, room
}

func addCard(t *testing.T, room *Room, user domain.UserID, text string) domain.CardID {
	t.Helper()
	cols := room.board.Columns()
	if len(cols) == 0 {
		t.Fatal("room has no columns")
	}
	req := mustRequest(t, "conn", protocol.OpAdd, protocol.AddPayload{ColumnID: cols[0].ID, CardText: text})
	outs, err := room.Handle(user, req)
	if err != nil {
		t.Fatalf("add card: %v", err)
	}
	for _, out := range outs {
		env := decodeFrame(t, out.Frame)
		if env.Op == protocol.OpCard {
			var p protocol.CardPayload
			if err := sonic.ConfigStd.Unmarshal([]byte(env.Data), &p); err != nil {
				t.Fatalf("decode card payload: %v", err)
			}
			return p.CardID
		}
	}
	t.Fatal("add produced no card frame")
	return ""
}

func TestCreateSeedsRetroAndDefaultColumns(t *testing.T) {
	rooms := NewRooms()
	room, frames, err := rooms.Create("release retro", []string{"alice", "bob"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(frames) != 4 {
		t.Fatalf("expected retro + 3 column frames, got %d", len(frames))
	}
	if op := decodeFrame(t, frames[0]).Op; op != protocol.OpRetro {
		t.Fatalf("first frame op = %s, want retro", op)
	}

	cols := room.board.Columns()
	if len(cols) != 3 {
		t.Fatalf("expected 3 columns, got %d", len(cols))
	}
	wantNames := []string{"Start", "Stop", "Continue"}
	for i, col := range cols {
		if col.Name != wantNames[i] {
			t.Fatalf("column %d = %q, want %q", i, col.Name, wantNames[i])
		}
		if col.Order != i+1 {
			t.Fatalf("column %q order = %d, want %d", col.Name, col.Order, i+1)
		}
	}
	if got := room.board.Retro.Name; got != "release retro" {
		t.Fatalf("retro name = %q", got)
	}
}

func TestJoinTracksConnection(t *testing.T) {
	rooms, room := newTestRoom(t, "alice")

	if _, err := rooms.Join("conn-1", room.ID); err != nil {
		t.Fatalf("join: %v", err)
	}
	got, err := rooms.RoomFor("conn-1")
	if err != nil {
		t.Fatalf("room for conn: %v", err)
	}
	if got != room {
		t.Fatal("RoomFor returned a different room")
	}

	if _, err := rooms.RoomFor("stranger"); !errors.Is(err, ErrNoRetro) {
		t.Fatalf("expected ErrNoRetro, got %v", err)
	}
	if _, err := rooms.Join("conn-2", domain.RetroID("missing")); !errors.Is(err, ErrUnknownRetro) {
		t.Fatalf("expected ErrUnknownRetro, got %v", err)
	}
}

func TestHandleAddBroadcastsCardAndContent(t *testing.T) {
	_, room := newTestRoom(t, "alice")
	cols := room.board.Columns()

	req := mustRequest(t, "conn", protocol.OpAdd, protocol.AddPayload{ColumnID: cols[0].ID, CardText: "ship smaller"})
	outs, err := room.Handle("alice", req)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(outs) != 2 {
		t.Fatalf("expected card + content frames, got %d", len(outs))
	}
	for _, out := range outs {
		if out.Target != "" {
			t.Fatalf("add frames should broadcast, got target %q", out.Target)
		}
	}
	if decodeFrame(t, outs[0].Frame).Op != protocol.OpCard {
		t.Fatal("first frame should be the card")
	}
	if decodeFrame(t, outs[1].Frame).Op != protocol.OpContent {
		t.Fatal("second frame should be the content")
	}
	if len(room.board.Cards()) != 1 {
		t.Fatalf("board should hold the new card, has %d", len(room.board.Cards()))
	}
}

func TestHandleVoteEmitsPerUserCardFrames(t *testing.T) {
	_, room := newTestRoom(t, "alice", "bob")
	cardID := addCard(t, room, "alice", "retro the retro")
	cols := room.board.Columns()

	req := mustRequest(t, "conn", protocol.OpVote, protocol.VotePayload{
		UserID: "alice", ColumnID: cols[0].ID, CardID: cardID,
	})
	outs, err := room.Handle("alice", req)
	if err != nil {
		t.Fatalf("handle vote: %v", err)
	}

	// One broadcast vote frame plus one card frame per participant.
	if len(outs) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(outs))
	}
	votes := map[domain.UserID]int{}
	for _, out := range outs[1:] {
		env := decodeFrame(t, out.Frame)
		if env.Op != protocol.OpCard {
			t.Fatalf("expected card frame, got %s", env.Op)
		}
		var p protocol.CardPayload
		if err := sonic.ConfigStd.Unmarshal([]byte(env.Data), &p); err != nil {
			t.Fatalf("decode card payload: %v", err)
		}
		if p.TotalVotes != 1 {
			t.Fatalf("totalVotes = %d, want 1", p.TotalVotes)
		}
		votes[out.Target] = p.Votes
	}
	if votes["alice"] != 1 {
		t.Fatalf("alice's own count = %d, want 1", votes["alice"])
	}
	if votes["bob"] != 0 {
		t.Fatalf("bob's own count = %d, want 0", votes["bob"])
	}
}

func TestHandleVoteUnknownCardRejected(t *testing.T) {
	_, room := newTestRoom(t, "alice")
	cols := room.board.Columns()

	req := mustRequest(t, "conn", protocol.OpVote, protocol.VotePayload{
		UserID: "alice", ColumnID: cols[0].ID, CardID: "gone",
	})
	outs, err := room.Handle("alice", req)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(outs) != 1 {
		t.Fatalf("expected a single error frame, got %d", len(outs))
	}
	if outs[0].Target != "alice" {
		t.Fatalf("error frame should target the requester, got %q", outs[0].Target)
	}
	if decodeFrame(t, outs[0].Frame).Op != protocol.OpError {
		t.Fatal("expected an error frame")
	}
	if len(room.board.Cards()) != 0 {
		t.Fatal("rejected vote should not touch the board")
	}
}

func TestHandleGroupMergesVotes(t *testing.T) {
	_, room := newTestRoom(t, "alice", "bob")
	from := addCard(t, room, "alice", "too many meetings")
	to := addCard(t, room, "bob", "meetings again")
	cols := room.board.Columns()

	vote := func(user domain.UserID, card domain.CardID) {
		req := mustRequest(t, "conn", protocol.OpVote, protocol.VotePayload{
			UserID: user, ColumnID: cols[0].ID, CardID: card,
		})
		if _, err := room.Handle(user, req); err != nil {
			t.Fatalf("vote: %v", err)
		}
	}
	vote("alice", from)
	vote("bob", to)

	req := mustRequest(t, "conn", protocol.OpGroup, protocol.GroupPayload{
		ColumnFrom: cols[0].ID, CardFrom: from,
		ColumnTo: cols[0].ID, CardTo: to,
	})
	outs, err := room.Handle("alice", req)
	if err != nil {
		t.Fatalf("group: %v", err)
	}

	if _, ok := room.board.Card(from); ok {
		t.Fatal("grouped-away card should be gone")
	}
	if got := room.board.TotalVotes(to); got != 2 {
		t.Fatalf("merged totalVotes = %d, want 2", got)
	}

	sawCardFrame := false
	for _, out := range outs {
		env := decodeFrame(t, out.Frame)
		if env.Op != protocol.OpCard {
			continue
		}
		sawCardFrame = true
		var p protocol.CardPayload
		if err := sonic.ConfigStd.Unmarshal([]byte(env.Data), &p); err != nil {
			t.Fatalf("decode card payload: %v", err)
		}
		if p.TotalVotes != 2 {
			t.Fatalf("card frame totalVotes = %d, want 2", p.TotalVotes)
		}
		if p.Votes != 1 {
			t.Fatalf("per-user votes = %d for %s, want 1", p.Votes, out.Target)
		}
	}
	if !sawCardFrame {
		t.Fatal("group should re-announce the surviving card")
	}
}

func TestAnnounceAddsParticipant(t *testing.T) {
	_, room := newTestRoom(t)

	outs, err := room.Announce("carol")
	if err != nil {
		t.Fatalf("announce: %v", err)
	}
	if len(outs) != 1 || outs[0].Target != "" {
		t.Fatalf("announce should broadcast one frame, got %#v", outs)
	}
	if got := room.Participants(); len(got) != 1 || got[0] != "carol" {
		t.Fatalf("participants = %v", got)
	}
}

func TestListIncludesLiveRooms(t *testing.T) {
	rooms, room := newTestRoom(t, "alice")
	list := rooms.List()
	if len(list) != 1 || list[0].ID != room.ID {
		t.Fatalf("list = %#v", list)
	}
}
