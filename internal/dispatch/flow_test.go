package dispatch

import (
	"context"
	"slices"
	"testing"

	"github.com/C4T-BuT-S4D/promobot/internal/conversation"
	"github.com/C4T-BuT-S4D/promobot/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlowCoversEveryStage(t *testing.T) {
	for _, stage := range conversation.Stages {
		tr, ok := flow[stage]
		if stage == conversation.StageIdle {
			assert.False(t, ok, "idle must not consume input")
			continue
		}
		require.True(t, ok, "no transition for %s", stage)
		assert.Contains(t, conversation.InputKinds, tr.accepts, stage)
		assert.NotNil(t, tr.apply, stage)

		text, _ := tr.prompt()
		assert.NotEmpty(t, text, stage)

		if tr.next != conversation.StageIdle {
			_, ok := flow[tr.next]
			assert.True(t, ok, "%s leads to unknown stage %s", stage, tr.next)
		}
	}
	assert.Len(t, flow, len(conversation.Stages)-1)
}

func TestWrongInputKindReprompts(t *testing.T) {
	const user int64 = 90

	updates := map[conversation.InputKind]func() transport.Update{
		conversation.InputText:    func() transport.Update { return textUpdate(user, "some text") },
		conversation.InputContact: func() transport.Update { return contactUpdate(user, "+998916666666", user) },
		conversation.InputPhoto:   func() transport.Update { return photoUpdate(user) },
		conversation.InputOther:   func() transport.Update { return otherUpdate(user) },
	}
	require.Len(t, updates, len(conversation.InputKinds))

	for _, stage := range conversation.Stages {
		tr, ok := flow[stage]
		if !ok {
			continue
		}
		for _, kind := range conversation.InputKinds {
			if kind == tr.accepts {
				continue
			}
			t.Run(string(stage)+"/"+string(kind), func(t *testing.T) {
				h := newHarness(t)
				st := conversation.State{
					Stage:  stage,
					Fields: map[string]string{conversation.FieldName: "Alice"},
				}
				require.NoError(t, h.states.Set(context.Background(), user, st))

				h.handle(updates[kind]())

				got, err := h.states.Get(context.Background(), user)
				require.NoError(t, err)
				assert.Equal(t, st, got)

				want := tr.retry
				if want == "" {
					want, _ = tr.prompt()
				}
				assert.Equal(t, []string{want}, h.tr.textsTo(user))
				assert.Empty(t, h.tr.docs)
			})
		}
	}
}

func TestValidInputAdvances(t *testing.T) {
	const user int64 = 91
	h := newHarness(t)

	var visited []conversation.Stage
	h.text(user, "/register")
	for stage := h.stage(user); stage != conversation.StageIdle; stage = h.stage(user) {
		require.False(t, slices.Contains(visited, stage), "dialogue loops at %s", stage)
		visited = append(visited, stage)

		switch flow[stage].accepts {
		case conversation.InputText:
			h.text(user, "Some value")
		case conversation.InputContact:
			h.handle(contactUpdate(user, "+998917777777", user))
		case conversation.InputPhoto:
			h.handle(photoUpdate(user))
		}
	}
	assert.Equal(t, []conversation.Stage{
		conversation.StageAwaitingName,
		conversation.StageAwaitingPhone,
		conversation.StageAwaitingAddress,
		conversation.StageAwaitingPromoPhoto,
	}, visited)
}
