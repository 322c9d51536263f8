package storage

import (
	"testing"
	"time"
)

func TestDecodeRetroEntity(t *testing.T) {
	data := []byte(`{"PartitionKey":"retro","RowKey":"r1","Name":"sprint1","CreatedAt":"2024-05-20T09:30:00Z","Stage":"voting","Participants":"[\"a\",\"b\"]"}`)
	retro, err := decodeRetroEntity(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if retro.ID != "r1" || retro.Name != "sprint1" {
		t.Fatalf("unexpected retro: %#v", retro)
	}
	want := time.Date(2024, 5, 20, 9, 30, 0, 0, time.UTC)
	if !retro.CreatedAt.Equal(want) {
		t.Fatalf("unexpected createdAt: %v", retro.CreatedAt)
	}
	if len(retro.Participants) != 2 || retro.Participants[1] != "b" {
		t.Fatalf("unexpected participants: %v", retro.Participants)
	}
}

func TestDecodeRetroEntityToleratesBadColumns(t *testing.T) {
	data := []byte(`{"PartitionKey":"retro","RowKey":"r2","Name":"x","CreatedAt":"not-a-date","Participants":"not-json"}`)
	retro, err := decodeRetroEntity(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !retro.CreatedAt.IsZero() {
		t.Fatalf("bad date should stay zero, got %v", retro.CreatedAt)
	}
	if len(retro.Participants) != 0 {
		t.Fatalf("bad participants should stay empty, got %v", retro.Participants)
	}
}
