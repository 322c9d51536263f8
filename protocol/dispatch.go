package protocol

// DecodeEvent turns an extracted envelope into a typed event. The boolean
// is false only for operations outside the registry, which are dropped
// without producing anything. A payload that fails to decode degrades to an
// ErrorEvent tagged with the same connection id; malformed input never
// panics and never aborts the connection.
func DecodeEvent(env Envelope) (Event, bool) {
	base := eventBase{Conn: env.ID}
	fail := func(err error) (Event, bool) {
		return ErrorEvent{eventBase: base, Message: err.Error()}, true
	}
	switch env.Op {
	case OpStage:
		var p StagePayload
		if err := decodePayload(env.Data, &p); err != nil {
			return fail(err)
		}
		return StageEvent{base, p}, true
	case OpColumn:
		var p ColumnPayload
		if err := decodePayload(env.Data, &p); err != nil {
			return fail(err)
		}
		return ColumnEvent{base, p}, true
	case OpCard:
		var p CardPayload
		if err := decodePayload(env.Data, &p); err != nil {
			return fail(err)
		}
		return CardEvent{base, p}, true
	case OpContent:
		var p ContentPayload
		if err := decodePayload(env.Data, &p); err != nil {
			return fail(err)
		}
		return ContentEvent{base, p}, true
	case OpMove:
		var p MovePayload
		if err := decodePayload(env.Data, &p); err != nil {
			return fail(err)
		}
		return MoveEvent{base, p}, true
	case OpReveal:
		var p RevealPayload
		if err := decodePayload(env.Data, &p); err != nil {
			return fail(err)
		}
		return RevealEvent{base, p}, true
	case OpGroup:
		var p GroupPayload
		if err := decodePayload(env.Data, &p); err != nil {
			return fail(err)
		}
		return GroupEvent{base, p}, true
	case OpVote:
		var p VotePayload
		if err := decodePayload(env.Data, &p); err != nil {
			return fail(err)
		}
		return VoteEvent{base, p}, true
	case OpUnvote:
		var p VotePayload
		if err := decodePayload(env.Data, &p); err != nil {
			return fail(err)
		}
		return UnvoteEvent{base, p}, true
	case OpDelete:
		var p DeletePayload
		if err := decodePayload(env.Data, &p); err != nil {
			return fail(err)
		}
		return DeleteEvent{base, p}, true
	case OpUser:
		var p UserPayload
		if err := decodePayload(env.Data, &p); err != nil {
			return fail(err)
		}
		return UserEvent{base, p}, true
	case OpRetro:
		var p RetroPayload
		if err := decodePayload(env.Data, &p); err != nil {
			return fail(err)
		}
		return RetroEvent{base, p}, true
	case OpError:
		var p ErrorPayload
		if err := decodePayload(env.Data, &p); err != nil {
			return fail(err)
		}
		return ErrorEvent{eventBase: base, Message: p.Error}, true
	default:
		// Unknown operations are dropped on purpose: a newer server may
		// broadcast ops this client does not know yet.
		return nil, false
	}
}

// Handler folds one event into caller-owned state and returns the updated
// state. The protocol layer keeps none of it between calls.
type Handler[S any] func(state S, ev Event) S

// DispatchFrame decodes a single raw inbound frame and applies it through
// h. Outer parse failures are returned to the caller; everything past the
// envelope follows the DecodeEvent contract, so state passes through
// untouched for unknown ops and malformed payloads reach h as ErrorEvents.
func DispatchFrame[S any](raw []byte, state S, h Handler[S]) (S, error) {
	env, err := DecodeEnvelope(raw)
	if err != nil {
		return state, err
	}
	ev, ok := DecodeEvent(env)
	if !ok {
		return state, nil
	}
	return h(state, ev), nil
}
