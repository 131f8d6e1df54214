package timeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/servicedesk/internal/domain"
)

func TestLog_AppendAssignsSequence(t *testing.T) {
	log := New(nil)
	first := log.Append(Entry{Action: domain.ActionTagSubmitted, ActorID: "u1", ActorName: "Ana"})
	second := log.Append(Entry{Action: domain.ActionTagApproved, ActorID: "u2", ActorName: "Budi"})

	assert.Equal(t, 1, first.Seq)
	assert.Equal(t, 2, second.Seq)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 2, log.Len())
	require.NoError(t, Validate(log.Events()))
}

func TestLog_TimestampsNeverGoBackwards(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	log := New(nil)
	log.Append(Entry{Action: domain.ActionTagSubmitted, At: now})
	late := log.Append(Entry{Action: domain.ActionTagApproved, At: now.Add(-time.Hour)})

	assert.Equal(t, now, late.Timestamp)
	require.NoError(t, Validate(log.Events()))
}

func TestLog_DoesNotAliasInput(t *testing.T) {
	stored := []domain.TimelineEvent{{ID: "e1", Seq: 1, Action: domain.ActionTagSubmitted}}
	log := New(stored)
	log.Append(Entry{Action: domain.ActionTagApproved})

	assert.Len(t, stored, 1)
	events := log.Events()
	events[0].Details = "changed"
	assert.Empty(t, log.Events()[0].Details)
}

func TestLog_Since(t *testing.T) {
	log := New(nil)
	log.Append(Entry{Action: domain.ActionTagSubmitted})
	log.Append(Entry{Action: domain.ActionTagApproved})
	log.Append(Entry{Action: domain.ActionTagAssigned})

	fresh := log.Since(1)
	require.Len(t, fresh, 2)
	assert.Equal(t, domain.ActionTagApproved, fresh[0].Action)
	assert.Nil(t, log.Since(3))

	last, ok := log.Last()
	require.True(t, ok)
	assert.Equal(t, domain.ActionTagAssigned, last.Action)
}

func TestValidate_RejectsGaps(t *testing.T) {
	events := []domain.TimelineEvent{{ID: "a", Seq: 1}, {ID: "b", Seq: 3}}
	assert.Error(t, Validate(events))
}

func TestIsPrefix(t *testing.T) {
	log := New(nil)
	log.Append(Entry{Action: domain.ActionTagSubmitted})
	before := log.Events()
	log.Append(Entry{Action: domain.ActionTagApproved})
	after := log.Events()

	assert.True(t, IsPrefix(before, after))
	assert.False(t, IsPrefix(after, before))

	tampered := append([]domain.TimelineEvent(nil), after...)
	tampered[0].Details = "rewritten"
	assert.False(t, IsPrefix(before, tampered))
}
