package conversation

import (
	"context"
	"maps"
)

type Stage string

const (
	StageIdle                     Stage = "idle"
	StageAwaitingName             Stage = "awaiting_name"
	StageAwaitingPhone            Stage = "awaiting_phone"
	StageAwaitingAddress          Stage = "awaiting_address"
	StageAwaitingPromoPhoto       Stage = "awaiting_promo_photo"
	StageAwaitingPromoCode        Stage = "awaiting_promo_code"
	StageAwaitingBlockPhone       Stage = "awaiting_block_phone"
	StageAwaitingBroadcastMessage Stage = "awaiting_broadcast_message"
)

// Stages lists every stage, idle first.
var Stages = []Stage{
	StageIdle,
	StageAwaitingName,
	StageAwaitingPhone,
	StageAwaitingAddress,
	StageAwaitingPromoPhoto,
	StageAwaitingPromoCode,
	StageAwaitingBlockPhone,
	StageAwaitingBroadcastMessage,
}

type InputKind string

const (
	InputText    InputKind = "text"
	InputContact InputKind = "contact"
	InputPhoto   InputKind = "photo"
	InputOther   InputKind = "other"
)

var InputKinds = []InputKind{InputText, InputContact, InputPhoto, InputOther}

// Buffered field names.
const (
	FieldName    = "name"
	FieldPhone   = "phone"
	FieldAddress = "address"
)

type State struct {
	Stage  Stage             `json:"stage"`
	Fields map[string]string `json:"fields,omitempty"`
}

func Idle() State {
	return State{Stage: StageIdle}
}

func (s State) IsIdle() bool {
	return s.Stage == "" || s.Stage == StageIdle
}

// Advance returns a copy of s at stage with key=value added to the buffer.
func (s State) Advance(stage Stage, key, value string) State {
	fields := maps.Clone(s.Fields)
	if fields == nil {
		fields = make(map[string]string)
	}
	if key != "" {
		fields[key] = value
	}
	return State{Stage: stage, Fields: fields}
}

// Store keeps the dialogue position per user. Callers must serialize access
// per user; the store itself only guarantees map safety.
type Store interface {
	Get(ctx context.Context, userID int64) (State, error)
	Set(ctx context.Context, userID int64, state State) error
	Clear(ctx context.Context, userID int64) error
}
