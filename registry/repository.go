package registry

import (
	"context"
	"errors"
	"sync"

	"github.com/fiware/ocpi-core/logging"
	"github.com/fiware/ocpi-core/model"
)

var logger = logging.Log()

var ErrPartyNotFound = errors.New("party_not_found")

/**
* Persistence of the registered parties. The registry keeps its own in-memory index,
* repositories are only read on startup and on reloads.
 */
type PartyRepository interface {
	GetParties(ctx context.Context) (parties []model.RemoteParty, err error)
	GetParty(ctx context.Context, identity model.PartyIdentity) (party model.RemoteParty, err error)
	// creates or replaces the party
	SaveParty(ctx context.Context, party model.RemoteParty) (err error)
	DeleteParty(ctx context.Context, identity model.PartyIdentity) (err error)
}

/**
* Quick in-memory implementation of the party repository. Should only be used for dev and testing, does not have any persistence.
 */
type InMemoryRepo struct {
	mu       sync.RWMutex
	partyMap map[model.PartyIdentity]model.RemoteParty
}

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{partyMap: map[model.PartyIdentity]model.RemoteParty{}}
}

func (imr *InMemoryRepo) GetParties(ctx context.Context) (parties []model.RemoteParty, err error) {
	imr.mu.RLock()
	defer imr.mu.RUnlock()

	parties = make([]model.RemoteParty, 0, len(imr.partyMap))
	for _, party := range imr.partyMap {
		parties = append(parties, party.Copy())
	}
	sortParties(parties)
	return parties, err
}

func (imr *InMemoryRepo) GetParty(ctx context.Context, identity model.PartyIdentity) (party model.RemoteParty, err error) {
	imr.mu.RLock()
	defer imr.mu.RUnlock()

	party, ok := imr.partyMap[identity]
	if !ok {
		return party, ErrPartyNotFound
	}
	return party.Copy(), err
}

func (imr *InMemoryRepo) SaveParty(ctx context.Context, party model.RemoteParty) (err error) {
	imr.mu.Lock()
	defer imr.mu.Unlock()

	imr.partyMap[party.Identity] = party.Copy()
	return err
}

func (imr *InMemoryRepo) DeleteParty(ctx context.Context, identity model.PartyIdentity) (err error) {
	imr.mu.Lock()
	defer imr.mu.Unlock()

	if _, ok := imr.partyMap[identity]; !ok {
		logger.Debugf("No such party %s exists.", identity)
		return ErrPartyNotFound
	}
	delete(imr.partyMap, identity)
	return err
}
