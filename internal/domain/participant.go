package domain

import "strings"

// Role is the closed set of participant roles known to the registry.
type Role string

const (
	RoleProducer Role = "producer"
	RoleFactory  Role = "factory"
	RoleRetailer Role = "retailer"
	RoleAdmin    Role = "admin"
	RoleUnknown  Role = "Unknown"
)

// ParseRole maps a registry role string onto a Role. The second result is false when the
// string is not one of the known roles.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleProducer:
		return RoleProducer, true
	case RoleFactory:
		return RoleFactory, true
	case RoleRetailer:
		return RoleRetailer, true
	case RoleAdmin:
		return RoleAdmin, true
	default:
		return RoleUnknown, false
	}
}

// Participant is an actor registered on the ledger.
type Participant struct {
	Address  string `json:"address"`
	Name     string `json:"name"`
	Role     Role   `json:"role"`
	Location string `json:"location"`
	Active   bool   `json:"active"`
}

// Placeholder values used when an address is not in the participant registry.
const (
	UnknownParticipantName = "Unknown"
	UnknownLocation        = "0,0"
)

// UnknownParticipant returns the placeholder identity for an unregistered address.
func UnknownParticipant(address string) Participant {
	return Participant{
		Address:  address,
		Name:     UnknownParticipantName,
		Role:     RoleUnknown,
		Location: UnknownLocation,
		Active:   false,
	}
}

// ParticipantRecord is a participant row exactly as the registry returns it, before the role
// string is validated.
type ParticipantRecord struct {
	Address  string
	Name     string
	Role     string
	Location string
	Active   bool
}
