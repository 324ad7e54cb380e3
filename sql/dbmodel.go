package sql

import "time"

type RemoteParty struct {
	// identity in the form CC*PID*ROLE
	ID              string
	CountryCode     string
	PartyId         string
	Role            string
	Status          string
	BusinessName    string
	BusinessWebsite string
	LastUpdated     time.Time
}

func (RemoteParty) Table() string {
	return "remote_parties"
}

type AccessInfo struct {
	ID       int
	Token    string
	Status   string
	IssuedAt time.Time
	// keeps the insertion order
	Position int

	// ref to the party
	RemoteParty string
}

func (AccessInfo) Table() string {
	return "access_infos"
}

type RemoteAccessInfo struct {
	ID          int
	Token       string
	VersionsUrl string
	Version     string
	// json encoded list of endpoints
	Endpoints  string
	ReceivedAt time.Time
	Position   int

	// ref to the party
	RemoteParty string
}

func (RemoteAccessInfo) Table() string {
	return "remote_access_infos"
}
