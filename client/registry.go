package client

import (
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	ocpiHttp "github.com/fiware/ocpi-core/http"
	"github.com/fiware/ocpi-core/metrics"
	"github.com/fiware/ocpi-core/model"
	"github.com/fiware/ocpi-core/registry"
)

var ErrNotRegistered = errors.New("party_not_registered")

// PartyLookup is the part of the party registry the clients are built from.
type PartyLookup interface {
	FindByIdentity(identity model.PartyIdentity) (model.RemoteParty, bool)
	OnChange(listener registry.Listener)
}

type ClientFactory func(partner model.PartyIdentity, remoteAccess model.RemoteAccessInfo) *Client

/**
* NewClientFactory builds clients that call the partner as the own identity best matching the partner's role,
* e.g. as EMSP towards a CPO.
 */
func NewClientFactory(httpClient ocpiHttp.HttpClient, ownIdentities []model.PartyIdentity) ClientFactory {
	return func(partner model.PartyIdentity, remoteAccess model.RemoteAccessInfo) *Client {
		return NewClient(httpClient, SelectOwnIdentity(ownIdentities, partner.Role), partner, remoteAccess)
	}
}

var counterparts = map[model.Role]model.Role{
	model.RoleCPO:  model.RoleEMSP,
	model.RoleEMSP: model.RoleCPO,
	model.RoleNSP:  model.RoleCPO,
	model.RoleNAP:  model.RoleCPO,
	model.RoleSCSP: model.RoleCPO,
}

func SelectOwnIdentity(ownIdentities []model.PartyIdentity, partnerRole model.Role) model.PartyIdentity {
	if len(ownIdentities) == 0 {
		return model.PartyIdentity{}
	}
	if counterpart, ok := counterparts[partnerRole]; ok {
		for _, own := range ownIdentities {
			if own.Role == counterpart {
				return own
			}
		}
	}
	return ownIdentities[0]
}

/**
* ClientRegistry hands out one client per partner identity. Clients are built on first use from the most recent
* remote access info of the partner and dropped once that changes or the partner is removed.
 */
type ClientRegistry struct {
	parties PartyLookup
	factory ClientFactory

	group   singleflight.Group
	mu      sync.Mutex
	clients map[model.PartyIdentity]*Client
}

func NewClientRegistry(parties PartyLookup, factory ClientFactory) *ClientRegistry {
	clientRegistry := &ClientRegistry{parties: parties, factory: factory, clients: map[model.PartyIdentity]*Client{}}
	parties.OnChange(clientRegistry.onPartyChange)
	return clientRegistry
}

/**
* GetClient returns the client for the partner. Fails with ErrNotRegistered if the partner is unknown or
* never handed out credentials to this platform.
 */
func (cr *ClientRegistry) GetClient(identity model.PartyIdentity) (*Client, error) {
	remoteAccess, err := cr.remoteAccess(identity)
	if err != nil {
		return nil, err
	}
	if client := cr.cached(identity, remoteAccess); client != nil {
		return client, nil
	}

	result, err, _ := cr.group.Do(identity.String(), func() (interface{}, error) {
		// the snapshot read above may predate a rotation, build from the current one
		remoteAccess, err := cr.remoteAccess(identity)
		if err != nil {
			return nil, err
		}
		if client := cr.cached(identity, remoteAccess); client != nil {
			return client, nil
		}
		client := cr.factory(identity, remoteAccess)

		cr.mu.Lock()
		if _, stale := cr.clients[identity]; stale {
			metrics.CountClientInvalidation("stale")
		}
		cr.clients[identity] = client
		cr.mu.Unlock()

		metrics.CountClientBuild("built")
		logger.Debugf("Built client for %s.", identity)
		return client, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Client), nil
}

func (cr *ClientRegistry) remoteAccess(identity model.PartyIdentity) (remoteAccess model.RemoteAccessInfo, err error) {
	party, found := cr.parties.FindByIdentity(identity)
	if !found {
		return remoteAccess, errors.Wrapf(ErrNotRegistered, "%s is unknown", identity)
	}
	remoteAccess, registered := party.LatestRemoteAccess()
	if !registered {
		return remoteAccess, errors.Wrapf(ErrNotRegistered, "%s did not provide credentials yet", identity)
	}
	return remoteAccess, nil
}

// cached returns the stored client if it was built from the given remote access. Stored clients are only
// replaced inside the build flight.
func (cr *ClientRegistry) cached(identity model.PartyIdentity, remoteAccess model.RemoteAccessInfo) *Client {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	client, ok := cr.clients[identity]
	if !ok || !client.remoteAccess.SameRemoteAccess(remoteAccess) {
		return nil
	}
	return client
}

func (cr *ClientRegistry) Invalidate(identity model.PartyIdentity) {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	if _, ok := cr.clients[identity]; ok {
		delete(cr.clients, identity)
		logger.Debugf("Dropped client for %s.", identity)
	}
}

func (cr *ClientRegistry) Size() int {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	return len(cr.clients)
}

func (cr *ClientRegistry) onPartyChange(change registry.Change) {
	switch change.Kind {
	case registry.PartyDeleted:
		cr.Invalidate(change.Identity)
		metrics.CountClientInvalidation(string(change.Kind))
	case registry.PartySaved:
		if change.Current == nil {
			return
		}
		latest, registered := change.Current.LatestRemoteAccess()
		cr.mu.Lock()
		client, ok := cr.clients[change.Identity]
		if ok && (!registered || !client.remoteAccess.SameRemoteAccess(latest)) {
			delete(cr.clients, change.Identity)
			metrics.CountClientInvalidation(string(change.Kind))
			logger.Debugf("Credentials of %s changed, dropped its client.", change.Identity)
		}
		cr.mu.Unlock()
	}
}
