package application

import (
	"context"
	"log/slog"
	"strings"

	"provindex/internal/domain"
)

type ParticipantSource interface {
	Participants(ctx context.Context) ([]domain.ParticipantRecord, error)
}

// ParticipantIndex is a read-only, address-keyed view of one participant registry snapshot.
// Keys are lower-cased addresses, so lookups are case-insensitive.
type ParticipantIndex struct {
	byAddress map[string]domain.Participant
}

// NewParticipantIndex builds the index from a registry snapshot. Records with a role outside
// the known set are kept under RoleUnknown. When an address appears more than once the last
// record wins.
func NewParticipantIndex(records []domain.ParticipantRecord) *ParticipantIndex {
	index := &ParticipantIndex{byAddress: make(map[string]domain.Participant, len(records))}
	for _, record := range records {
		key := normalizeAddress(record.Address)
		if key == "" {
			continue
		}
		role, ok := domain.ParseRole(record.Role)
		if !ok {
			slog.Warn("participant has unrecognized role",
				"address", key,
				"role", record.Role,
			)
		}
		index.byAddress[key] = domain.Participant{
			Address:  key,
			Name:     record.Name,
			Role:     role,
			Location: record.Location,
			Active:   record.Active,
		}
	}
	return index
}

// LoadParticipantIndex fetches the registry snapshot and indexes it.
func LoadParticipantIndex(ctx context.Context, source ParticipantSource) (*ParticipantIndex, error) {
	records, err := source.Participants(ctx)
	if err != nil {
		return nil, err
	}
	return NewParticipantIndex(records), nil
}

// Lookup returns the registered participant for address, or false on a miss.
func (i *ParticipantIndex) Lookup(address string) (domain.Participant, bool) {
	participant, ok := i.byAddress[normalizeAddress(address)]
	return participant, ok
}

// Resolve is Lookup with the unknown-participant placeholder applied on a miss.
func (i *ParticipantIndex) Resolve(address string) domain.Participant {
	if participant, ok := i.Lookup(address); ok {
		return participant
	}
	return domain.UnknownParticipant(normalizeAddress(address))
}

func (i *ParticipantIndex) Len() int {
	return len(i.byAddress)
}

// All returns the indexed participants in no particular order.
func (i *ParticipantIndex) All() []domain.Participant {
	participants := make([]domain.Participant, 0, len(i.byAddress))
	for _, participant := range i.byAddress {
		participants = append(participants, participant)
	}
	return participants
}

func normalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
