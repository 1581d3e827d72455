package ledger

import (
	"context"
	"errors"
	"fmt"

	"provindex/internal/domain"

	"github.com/ethereum/go-ethereum/common"
)

// Caller executes read-only contract calls.
type Caller interface {
	Call(ctx context.Context, to string, data []byte) ([]byte, error)
}

// ParticipantRegistry reads the participant registry contract.
type ParticipantRegistry struct {
	caller  Caller
	address string
}

func NewParticipantRegistry(caller Caller, address string) (*ParticipantRegistry, error) {
	if caller == nil {
		return nil, errors.New("contract caller is required")
	}
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid participant registry address %q", address)
	}
	return &ParticipantRegistry{caller: caller, address: address}, nil
}

// Participants returns the full registry snapshot.
func (r *ParticipantRegistry) Participants(ctx context.Context) ([]domain.ParticipantRecord, error) {
	input, err := participantABI.Pack("getAllParticipants")
	if err != nil {
		return nil, err
	}
	output, err := r.caller.Call(ctx, r.address, input)
	if err != nil {
		return nil, fmt.Errorf("getAllParticipants: %w", err)
	}
	var tuples []participantTuple
	if err := participantABI.UnpackIntoInterface(&tuples, "getAllParticipants", output); err != nil {
		return nil, fmt.Errorf("decode participants: %w", err)
	}
	records := make([]domain.ParticipantRecord, 0, len(tuples))
	for _, tuple := range tuples {
		records = append(records, tuple.record())
	}
	return records, nil
}

// Participant returns the registry entry for one address. Unregistered addresses come back
// with a zero address field and are reported as not found.
func (r *ParticipantRegistry) Participant(ctx context.Context, address string) (domain.ParticipantRecord, bool, error) {
	if !common.IsHexAddress(address) {
		return domain.ParticipantRecord{}, false, fmt.Errorf("invalid address %q", address)
	}
	input, err := participantABI.Pack("getParticipant", common.HexToAddress(address))
	if err != nil {
		return domain.ParticipantRecord{}, false, err
	}
	output, err := r.caller.Call(ctx, r.address, input)
	if err != nil {
		return domain.ParticipantRecord{}, false, fmt.Errorf("getParticipant: %w", err)
	}
	var out struct {
		Participant participantTuple
	}
	if err := participantABI.UnpackIntoInterface(&out, "getParticipant", output); err != nil {
		return domain.ParticipantRecord{}, false, fmt.Errorf("decode participant: %w", err)
	}
	if out.Participant.Addr == (common.Address{}) {
		return domain.ParticipantRecord{}, false, nil
	}
	return out.Participant.record(), true, nil
}

func (t participantTuple) record() domain.ParticipantRecord {
	return domain.ParticipantRecord{
		Address:  addressHex(t.Addr),
		Name:     t.Name,
		Role:     t.Role,
		Location: t.Location,
		Active:   t.Active,
	}
}
