package application

import (
	"context"
	"errors"
	"testing"

	"provindex/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParticipantIndexLookupIsCaseInsensitive(t *testing.T) {
	index := NewParticipantIndex([]domain.ParticipantRecord{
		{Address: "0xAbC0000000000000000000000000000000000001", Name: "Olivar Sur", Role: "Producer", Location: "37.9,-4.7", Active: true},
	})

	participant, ok := index.Lookup("0xabc0000000000000000000000000000000000001")
	require.True(t, ok)
	assert.Equal(t, "Olivar Sur", participant.Name)
	assert.Equal(t, domain.RoleProducer, participant.Role)
	assert.Equal(t, "0xabc0000000000000000000000000000000000001", participant.Address)
	assert.True(t, participant.Active)

	_, ok = index.Lookup("0xABC0000000000000000000000000000000000001")
	assert.True(t, ok)
}

func TestParticipantIndexResolveUnknown(t *testing.T) {
	index := NewParticipantIndex(nil)

	participant := index.Resolve("0xDEAD000000000000000000000000000000000000")
	assert.Equal(t, domain.Participant{
		Address:  "0xdead000000000000000000000000000000000000",
		Name:     domain.UnknownParticipantName,
		Role:     domain.RoleUnknown,
		Location: domain.UnknownLocation,
		Active:   false,
	}, participant)
}

func TestParticipantIndexUnrecognizedRoleAndDuplicates(t *testing.T) {
	index := NewParticipantIndex([]domain.ParticipantRecord{
		{Address: "0x01", Name: "first", Role: "factory"},
		{Address: "0x01", Name: "second", Role: "distributor"},
		{Address: "", Name: "blank"},
	})

	require.Equal(t, 1, index.Len())
	participant, ok := index.Lookup("0x01")
	require.True(t, ok)
	assert.Equal(t, "second", participant.Name)
	assert.Equal(t, domain.RoleUnknown, participant.Role)
	assert.Len(t, index.All(), 1)
}

func TestLoadParticipantIndexPropagatesError(t *testing.T) {
	ledger := newFakeLedger()
	ledger.participantsErr = errors.New("registry down")

	_, err := LoadParticipantIndex(context.Background(), ledger)
	assert.EqualError(t, err, "registry down")
}
