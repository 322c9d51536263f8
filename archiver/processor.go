// Package archiver folds archived protocol frames into the retro
// read-model table.
package archiver

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"github.com/adamwitko/retro/domain"
	"github.com/adamwitko/retro/protocol"
	"github.com/adamwitko/retro/storage"
)

// Store is the slice of the storage layer the processor writes to.
type Store interface {
	GetRetro(ctx context.Context, id domain.RetroID) (*storage.RetroEntity, error)
	UpsertRetro(ctx context.Context, ent storage.RetroEntity) error
	SetRetroStage(ctx context.Context, id domain.RetroID, stage string) error
	SetRetroParticipants(ctx context.Context, id domain.RetroID, participants []string) error
}

// Processor consumes archive queue messages one at a time.
type Processor struct {
	store  Store
	logger *log.Logger
}

func NewProcessor(store Store, logger *log.Logger) *Processor {
	return &Processor{store: store, logger: logger}
}

// Process applies one queue message to the read model. Card-level frames
// carry no read-model state and are skipped; only retro, stage, and user
// frames land in the table. A decode failure is an error so the caller can
// count poison messages, but the message is still consumed.
func (p *Processor) Process(ctx context.Context, msgText string) error {
	var archived storage.ArchivedFrame
	if err := sonic.ConfigStd.Unmarshal([]byte(msgText), &archived); err != nil {
		return fmt.Errorf("decode archive message: %w", err)
	}
	env, err := protocol.DecodeEnvelope(archived.Frame)
	if err != nil {
		return fmt.Errorf("decode archived frame: %w", err)
	}
	ev, ok := protocol.DecodeEvent(env)
	if !ok {
		return fmt.Errorf("archived frame has unknown op %q", env.Op)
	}

	switch e := ev.(type) {
	case protocol.RetroEvent:
		return p.store.UpsertRetro(ctx, storage.RetroEntity{
			Entity:    aztables.Entity{RowKey: string(e.ID)},
			Name:      e.Name,
			CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339),
		})
	case protocol.StageEvent:
		return p.store.SetRetroStage(ctx, archived.RetroID, e.Stage)
	case protocol.UserEvent:
		return p.addParticipant(ctx, archived.RetroID, e.Username)
	case protocol.ErrorEvent:
		// Transient errors are not part of a retro's history.
		return nil
	default:
		return nil
	}
}

func (p *Processor) addParticipant(ctx context.Context, id domain.RetroID, username string) error {
	ent, err := p.store.GetRetro(ctx, id)
	if err != nil {
		return err
	}
	if ent == nil {
		p.logger.Warnf("participant %s announced for unknown retro %s", username, id)
		return nil
	}

	var participants []string
	if ent.Participants != "" {
		if err := sonic.ConfigStd.Unmarshal([]byte(ent.Participants), &participants); err != nil {
			p.logger.Warnf("resetting malformed participant list for retro %s: %v", id, err)
			participants = nil
		}
	}
	for _, existing := range participants {
		if existing == username {
			return nil
		}
	}
	participants = append(participants, username)
	return p.store.SetRetroParticipants(ctx, id, participants)
}
