// Package storage persists the retro archive: frames flow through an Azure
// queue and the archiver folds them into a retro read-model table.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"github.com/adamwitko/retro/domain"
)

// retroPartition keys every retro row; the retro id is the row key.
const retroPartition = "retro"

// ArchivedFrame wraps one protocol frame on the archive queue.
type ArchivedFrame struct {
	RetroID domain.RetroID  `json:"retroId"`
	Frame   json.RawMessage `json:"frame"`
}

// Storage provides access to the archive queue and the retro table.
type Storage struct {
	retroTable   *aztables.Client
	archiveQueue *azqueue.QueueClient
}

// New creates a Storage instance from the given connection string.
func New(connStr, retroTable, archiveQueue string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	rt := svc.NewClient(retroTable)
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	aq, err := azqueue.NewQueueClientFromConnectionString(connStr, archiveQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{retroTable: rt, archiveQueue: aq}, nil
}

// EnqueueFrames sends broadcast frames to the archive queue.
func (s *Storage) EnqueueFrames(ctx context.Context, retroID domain.RetroID, frames [][]byte) error {
	for _, frame := range frames {
		payload, err := json.Marshal(ArchivedFrame{RetroID: retroID, Frame: frame})
		if err != nil {
			return err
		}
		if _, err := s.archiveQueue.EnqueueMessage(ctx, string(payload), nil); err != nil {
			return err
		}
	}
	return nil
}

// Dequeue retrieves a single message from the archive queue. It returns nil
// when the queue is empty.
func (s *Storage) Dequeue(ctx context.Context) (*azqueue.DequeuedMessage, error) {
	resp, err := s.archiveQueue.DequeueMessage(ctx, nil)
	if err != nil {
		return nil, err
	}
	if len(resp.Messages) == 0 {
		return nil, nil
	}
	return resp.Messages[0], nil
}

// Delete removes a processed message from the archive queue.
func (s *Storage) Delete(ctx context.Context, id, receipt string) error {
	_, err := s.archiveQueue.DeleteMessage(ctx, id, receipt, nil)
	return err
}

// RetroEntity is a retro row in the read model.
type RetroEntity struct {
	aztables.Entity
	Name         string `json:"Name"`
	CreatedAt    string `json:"CreatedAt"`
	Stage        string `json:"Stage,omitempty"`
	Participants string `json:"Participants,omitempty"`
}

// GetRetro retrieves a retro row if present.
func (s *Storage) GetRetro(ctx context.Context, id domain.RetroID) (*RetroEntity, error) {
	ent, err := s.retroTable.GetEntity(ctx, retroPartition, string(id), nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == 404 {
			return nil, nil
		}
		return nil, err
	}
	var retro RetroEntity
	if err := json.Unmarshal(ent.Value, &retro); err != nil {
		return nil, err
	}
	return &retro, nil
}

// UpsertRetro creates or replaces a retro row.
func (s *Storage) UpsertRetro(ctx context.Context, ent RetroEntity) error {
	ent.PartitionKey = retroPartition
	payload, err := json.Marshal(ent)
	if err == nil {
		_, err = s.retroTable.UpsertEntity(ctx, payload, nil)
	}
	return err
}

// retroUpdate carries partial updates for a retro row.
type retroUpdate struct {
	aztables.Entity
	Stage        *string `json:"Stage,omitempty"`
	Participants *string `json:"Participants,omitempty"`
}

// SetRetroStage merges a new stage into an existing retro row.
func (s *Storage) SetRetroStage(ctx context.Context, id domain.RetroID, stage string) error {
	return s.mergeRetro(ctx, retroUpdate{
		Entity: aztables.Entity{PartitionKey: retroPartition, RowKey: string(id)},
		Stage:  &stage,
	})
}

// SetRetroParticipants merges the participant list into an existing row.
// Participants are stored as a JSON array in a single column.
func (s *Storage) SetRetroParticipants(ctx context.Context, id domain.RetroID, participants []string) error {
	encoded, err := json.Marshal(participants)
	if err != nil {
		return err
	}
	list := string(encoded)
	return s.mergeRetro(ctx, retroUpdate{
		Entity:       aztables.Entity{PartitionKey: retroPartition, RowKey: string(id)},
		Participants: &list,
	})
}

func (s *Storage) mergeRetro(ctx context.Context, upd retroUpdate) error {
	payload, err := json.Marshal(upd)
	if err == nil {
		et := azcore.ETagAny
		_, err = s.retroTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge})
	}
	return err
}

// FetchRetros lists every archived retro.
func (s *Storage) FetchRetros(ctx context.Context) ([]domain.Retro, error) {
	filter := "PartitionKey eq '" + retroPartition + "'"
	pager := s.retroTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	retros := []domain.Retro{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			retro, err := decodeRetroEntity(e)
			if err != nil {
				return nil, err
			}
			retros = append(retros, retro)
		}
	}
	return retros, nil
}

func decodeRetroEntity(data []byte) (domain.Retro, error) {
	var ent RetroEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Retro{}, err
	}
	retro := domain.Retro{ID: domain.RetroID(ent.RowKey), Name: ent.Name}
	if ent.CreatedAt != "" {
		if created, err := time.Parse(time.RFC3339, ent.CreatedAt); err == nil {
			retro.CreatedAt = created
		}
	}
	if ent.Participants != "" {
		// Malformed rows keep an empty list rather than failing the fetch.
		_ = json.Unmarshal([]byte(ent.Participants), &retro.Participants)
	}
	return retro, nil
}
