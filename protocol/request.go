package protocol

import (
	"errors"
	"fmt"
)

// ErrUnknownRequest reports a frame whose op is not something clients send.
var ErrUnknownRequest = errors.New("unknown request op")

// Request is a client-originated frame decoded on the server side. Like
// Event it is a closed union.
type Request interface {
	ConnID() string
	request()
}

type requestBase struct {
	Conn string
}

func (r requestBase) ConnID() string { return r.Conn }
func (requestBase) request()         {}

type AddRequest struct {
	requestBase
	AddPayload
}

type EditRequest struct {
	requestBase
	EditPayload
}

type SetStageRequest struct {
	requestBase
	StagePayload
}

type MoveRequest struct {
	requestBase
	MovePayload
}

type RevealRequest struct {
	requestBase
	RevealPayload
}

type GroupRequest struct {
	requestBase
	GroupPayload
}

type VoteRequest struct {
	requestBase
	VotePayload
}

type UnvoteRequest struct {
	requestBase
	VotePayload
}

type DeleteRequest struct {
	requestBase
	DeletePayload
}

type AnnounceRequest struct {
	requestBase
	UserPayload
}

type MenuRequest struct {
	requestBase
}

type JoinRetroRequest struct {
	requestBase
	JoinRetroPayload
}

type CreateRetroRequest struct {
	requestBase
	CreateRetroPayload
}

// DecodeRequest decodes a client frame. Unlike DecodeEvent it returns
// errors: the server logs bad requests and drops them, it never echoes a
// decode failure back as board state.
func DecodeRequest(env Envelope) (Request, error) {
	base := requestBase{Conn: env.ID}
	switch env.Op {
	case OpAdd:
		var p AddPayload
		if err := decodePayload(env.Data, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Op, err)
		}
		return AddRequest{base, p}, nil
	case OpEdit:
		var p EditPayload
		if err := decodePayload(env.Data, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Op, err)
		}
		return EditRequest{base, p}, nil
	case OpStage:
		var p StagePayload
		if err := decodePayload(env.Data, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Op, err)
		}
		return SetStageRequest{base, p}, nil
	case OpMove:
		var p MovePayload
		if err := decodePayload(env.Data, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Op, err)
		}
		return MoveRequest{base, p}, nil
	case OpReveal:
		var p RevealPayload
		if err := decodePayload(env.Data, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Op, err)
		}
		return RevealRequest{base, p}, nil
	case OpGroup:
		var p GroupPayload
		if err := decodePayload(env.Data, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Op, err)
		}
		return GroupRequest{base, p}, nil
	case OpVote:
		var p VotePayload
		if err := decodePayload(env.Data, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Op, err)
		}
		return VoteRequest{base, p}, nil
	case OpUnvote:
		var p VotePayload
		if err := decodePayload(env.Data, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Op, err)
		}
		return UnvoteRequest{base, p}, nil
	case OpDelete:
		var p DeletePayload
		if err := decodePayload(env.Data, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Op, err)
		}
		return DeleteRequest{base, p}, nil
	case OpUser:
		var p UserPayload
		if err := decodePayload(env.Data, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Op, err)
		}
		return AnnounceRequest{base, p}, nil
	case OpMenu:
		return MenuRequest{base}, nil
	case OpJoinRetro:
		var p JoinRetroPayload
		if err := decodePayload(env.Data, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Op, err)
		}
		return JoinRetroRequest{base, p}, nil
	case OpCreateRetro:
		var p CreateRetroPayload
		if err := decodePayload(env.Data, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Op, err)
		}
		return CreateRetroRequest{base, p}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownRequest, env.Op)
	}
}
