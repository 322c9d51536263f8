package protocol

import (
	"testing"
	"time"

	"github.com/adamwitko/retro/domain"
)

func TestDecodeEventCard(t *testing.T) {
	raw := []byte(`{"id":"conn-1","op":"card","data":"{\"columnId\":\"c1\",\"cardId\":\"k1\",\"revealed\":false,\"votes\":2,\"totalVotes\":5}"}`)
	env, err := DecodeEnvelope(raw)
	if err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	ev, ok := DecodeEvent(env)
	if !ok {
		t.Fatal("expected an event")
	}
	card, ok := ev.(CardEvent)
	if !ok {
		t.Fatalf("expected CardEvent, got %T", ev)
	}
	if card.ConnID() != "conn-1" {
		t.Fatalf("unexpected conn id: %q", card.ConnID())
	}
	if card.ColumnID != domain.ColumnID("c1") || card.CardID != domain.CardID("k1") {
		t.Fatalf("unexpected identifiers: %+v", card.CardPayload)
	}
	if card.Revealed || card.Votes != 2 || card.TotalVotes != 5 {
		t.Fatalf("unexpected payload: %+v", card.CardPayload)
	}
}

func TestDecodeEventUnknownOpIsDropped(t *testing.T) {
	env := Envelope{ID: "conn-1", Op: "bogus", Data: "{}"}
	ev, ok := DecodeEvent(env)
	if ok || ev != nil {
		t.Fatalf("unknown op should produce nothing, got %#v", ev)
	}
}

func TestDecodeEventMalformedPayloadDegrades(t *testing.T) {
	env := Envelope{ID: "conn-1", Op: OpVote, Data: "not-json"}
	ev, ok := DecodeEvent(env)
	if !ok {
		t.Fatal("malformed payload must still produce an event")
	}
	errEv, ok := ev.(ErrorEvent)
	if !ok {
		t.Fatalf("expected ErrorEvent, got %T", ev)
	}
	if errEv.ConnID() != "conn-1" {
		t.Fatalf("unexpected conn id: %q", errEv.ConnID())
	}
	if errEv.Message == "" {
		t.Fatal("error event must describe the parse failure")
	}
}

func TestDecodeEventServerError(t *testing.T) {
	env := Envelope{ID: "conn-2", Op: OpError, Data: `{"error":"card not found"}`}
	ev, ok := DecodeEvent(env)
	if !ok {
		t.Fatal("expected an event")
	}
	errEv, ok := ev.(ErrorEvent)
	if !ok {
		t.Fatalf("expected ErrorEvent, got %T", ev)
	}
	if errEv.Message != "card not found" {
		t.Fatalf("unexpected message: %q", errEv.Message)
	}
}

func TestDecodeEventBadDateSurfacesAsError(t *testing.T) {
	env := Envelope{ID: "conn-1", Op: OpRetro, Data: `{"id":"r1","name":"sprint1","createdAt":"yesterday-ish","participants":[]}`}
	ev, ok := DecodeEvent(env)
	if !ok {
		t.Fatal("expected an event")
	}
	if _, isErr := ev.(ErrorEvent); !isErr {
		t.Fatalf("unparseable date must degrade to an ErrorEvent, got %T", ev)
	}
}

func TestDecodeEventRetro(t *testing.T) {
	env := Envelope{ID: "conn-1", Op: OpRetro, Data: `{"id":"r1","name":"sprint1","createdAt":"2024-03-01T10:00:00Z","participants":["a","b"]}`}
	ev, ok := DecodeEvent(env)
	if !ok {
		t.Fatal("expected an event")
	}
	retro, ok := ev.(RetroEvent)
	if !ok {
		t.Fatalf("expected RetroEvent, got %T", ev)
	}
	want := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	if !retro.CreatedAt.Equal(want) {
		t.Fatalf("unexpected createdAt: %v", retro.CreatedAt)
	}
	if len(retro.Participants) != 2 || retro.Participants[0] != "a" {
		t.Fatalf("unexpected participants: %v", retro.Participants)
	}
}

func TestDispatchFrameThreadsState(t *testing.T) {
	type state struct{ stages []string }

	h := func(s state, ev Event) state {
		if stage, ok := ev.(StageEvent); ok {
			s.stages = append(s.stages, stage.Stage)
		}
		return s
	}

	var s state
	var err error
	s, err = DispatchFrame([]byte(`{"id":"c","op":"stage","data":"{\"stage\":\"writing\"}"}`), s, h)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	s, err = DispatchFrame([]byte(`{"id":"c","op":"bogus","data":"{}"}`), s, h)
	if err != nil {
		t.Fatalf("unknown op must not error: %v", err)
	}
	s, err = DispatchFrame([]byte(`{"id":"c","op":"stage","data":"{\"stage\":\"voting\"}"}`), s, h)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if len(s.stages) != 2 || s.stages[0] != "writing" || s.stages[1] != "voting" {
		t.Fatalf("unexpected state: %+v", s)
	}
}

func TestDispatchFrameOuterParseFailureIsReturned(t *testing.T) {
	s, err := DispatchFrame([]byte("garbage"), 0, func(s int, _ Event) int { return s + 1 })
	if err == nil {
		t.Fatal("expected outer parse failure")
	}
	if s != 0 {
		t.Fatalf("state must be unchanged, got %d", s)
	}
}

// A malformed frame must never abort processing of the frames behind it.
func TestDispatchFrameSurvivesHostilePayloads(t *testing.T) {
	frames := [][]byte{
		[]byte(`{"id":"c","op":"vote","data":"not-json"}`),
		[]byte(`{"id":"c","op":"card","data":"{\"votes\":\"many\"}"}`),
		[]byte(`{"id":"c","op":"retro","data":"{\"createdAt\":123456}"}`),
		[]byte(`{"id":"c","op":"stage","data":"{\"stage\":\"done\"}"}`),
	}
	errs, stages := 0, 0
	h := func(s int, ev Event) int {
		switch ev.(type) {
		case ErrorEvent:
			errs++
		case StageEvent:
			stages++
		}
		return s
	}
	for _, f := range frames {
		if _, err := DispatchFrame(f, 0, h); err != nil {
			t.Fatalf("dispatch %s: %v", f, err)
		}
	}
	if errs != 3 || stages != 1 {
		t.Fatalf("expected 3 error events and 1 stage event, got %d/%d", errs, stages)
	}
}
