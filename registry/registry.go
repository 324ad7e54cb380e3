package registry

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/fiware/ocpi-core/logging"
	"github.com/fiware/ocpi-core/model"
)

var ErrPartyExists = errors.New("party_already_exists")

type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

type ChangeKind string

const (
	PartySaved   ChangeKind = "saved"
	PartyDeleted ChangeKind = "deleted"
)

/**
* Change is handed to the listeners after a write was committed. Previous is nil for newly
* created parties, Current is nil for deleted ones.
 */
type Change struct {
	Identity model.PartyIdentity
	Kind     ChangeKind
	Previous *model.RemoteParty
	Current  *model.RemoteParty
}

type Listener func(change Change)

/**
* Registry holds every known remote party, indexed by identity and by token. Reads are served from
* memory and always return copies. Writes go to the repository first and replace the whole entry afterwards,
* so that readers either see the old or the new version of a party.
 */
type Registry struct {
	repository PartyRepository
	clock      Clock

	mu      sync.RWMutex
	parties map[model.PartyIdentity]model.RemoteParty
	tokens  map[string][]model.PartyIdentity

	// serializes read-modify-write cycles
	writeMu sync.Mutex

	listenerMu sync.RWMutex
	listeners  []Listener
}

func NewRegistry(repository PartyRepository, clock Clock) *Registry {
	if clock == nil {
		clock = RealClock{}
	}
	return &Registry{
		repository: repository,
		clock:      clock,
		parties:    map[model.PartyIdentity]model.RemoteParty{},
		tokens:     map[string][]model.PartyIdentity{},
	}
}

// FindByToken returns every party holding the token, ordered by identity.
func (r *Registry) FindByToken(token string) []model.RemoteParty {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identities := r.tokens[token]
	parties := make([]model.RemoteParty, 0, len(identities))
	for _, identity := range identities {
		parties = append(parties, r.parties[identity].Copy())
	}
	return parties
}

func (r *Registry) FindByIdentity(identity model.PartyIdentity) (party model.RemoteParty, found bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	party, found = r.parties[identity]
	if !found {
		return party, false
	}
	return party.Copy(), true
}

func (r *Registry) List() []model.RemoteParty {
	r.mu.RLock()
	defer r.mu.RUnlock()

	parties := make([]model.RemoteParty, 0, len(r.parties))
	for _, party := range r.parties {
		parties = append(parties, party.Copy())
	}
	sortParties(parties)
	return parties
}

func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.parties)
}

// Create stores a new party and fails with ErrPartyExists if the identity is already known.
func (r *Registry) Create(ctx context.Context, party model.RemoteParty) (model.RemoteParty, error) {
	return r.CreateOrUpdate(ctx, party.Identity, func(stored *model.RemoteParty, exists bool) error {
		if exists {
			return ErrPartyExists
		}
		*stored = party.Copy()
		return nil
	})
}

// Save creates or replaces the party.
func (r *Registry) Save(ctx context.Context, party model.RemoteParty) (model.RemoteParty, error) {
	return r.CreateOrUpdate(ctx, party.Identity, func(stored *model.RemoteParty, exists bool) error {
		*stored = party.Copy()
		return nil
	})
}

// Update applies the mutation to a copy of the stored party and commits the result.
func (r *Registry) Update(ctx context.Context, identity model.PartyIdentity, mutate func(party *model.RemoteParty) error) (model.RemoteParty, error) {
	return r.CreateOrUpdate(ctx, identity, func(stored *model.RemoteParty, exists bool) error {
		if !exists {
			return ErrPartyNotFound
		}
		return mutate(stored)
	})
}

/**
* CreateOrUpdate runs the mutation against a copy of the current party (or an empty one carrying the identity)
* and commits it. Concurrent writers are serialized, the mutation must not block on io.
 */
func (r *Registry) CreateOrUpdate(ctx context.Context, identity model.PartyIdentity, mutate func(party *model.RemoteParty, exists bool) error) (model.RemoteParty, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	previous, exists := r.FindByIdentity(identity)
	party := previous.Copy()
	if !exists {
		party = model.RemoteParty{Identity: identity, Status: model.StatusEnabled, AccessInfos: []model.AccessInfo{}, RemoteAccessInfos: []model.RemoteAccessInfo{}}
	}
	if err := mutate(&party, exists); err != nil {
		return party, err
	}
	if party.Identity != identity {
		return party, model.ErrInvalidIdentity
	}
	if err := identity.Validate(); err != nil {
		return party, err
	}
	if party.Status == "" {
		party.Status = model.StatusEnabled
	}
	party.LastUpdated = r.clock.Now().UTC()

	if err := r.repository.SaveParty(ctx, party); err != nil {
		logger.Warnf("Was not able to persist party %s. Err: %v", identity, err)
		return party, err
	}

	r.mu.Lock()
	r.put(party)
	r.mu.Unlock()

	current := party.Copy()
	change := Change{Identity: identity, Kind: PartySaved, Current: &current}
	if exists {
		change.Previous = &previous
	}
	r.notify(change)
	logger.Debugf("Stored party %s.", describe(party))
	return party.Copy(), nil
}

func (r *Registry) Delete(ctx context.Context, identity model.PartyIdentity) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	previous, exists := r.FindByIdentity(identity)
	if !exists {
		return ErrPartyNotFound
	}
	if err := r.repository.DeleteParty(ctx, identity); err != nil && !errors.Is(err, ErrPartyNotFound) {
		logger.Warnf("Was not able to delete party %s. Err: %v", identity, err)
		return err
	}

	r.mu.Lock()
	r.remove(identity)
	r.mu.Unlock()

	r.notify(Change{Identity: identity, Kind: PartyDeleted, Previous: &previous})
	logger.Debugf("Deleted party %s.", identity)
	return nil
}

/**
* Load replaces the index with the content of the repository. Listeners are informed about every
* party that was added, changed or removed.
 */
func (r *Registry) Load(ctx context.Context) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	parties, err := r.repository.GetParties(ctx)
	if err != nil {
		return err
	}

	loaded := map[model.PartyIdentity]model.RemoteParty{}
	for _, party := range parties {
		if err := party.Identity.Validate(); err != nil {
			logger.Warnf("Skip stored party with invalid identity. Err: %v", err)
			continue
		}
		loaded[party.Identity] = party.Copy()
	}

	r.mu.Lock()
	previousParties := r.parties
	r.parties = map[model.PartyIdentity]model.RemoteParty{}
	r.tokens = map[string][]model.PartyIdentity{}
	for _, party := range loaded {
		r.put(party)
	}
	r.mu.Unlock()

	for identity, party := range loaded {
		current := party.Copy()
		previous, existed := previousParties[identity]
		if !existed {
			r.notify(Change{Identity: identity, Kind: PartySaved, Current: &current})
		} else if !previous.LastUpdated.Equal(party.LastUpdated) {
			r.notify(Change{Identity: identity, Kind: PartySaved, Previous: &previous, Current: &current})
		}
	}
	for identity, previous := range previousParties {
		if _, stillExists := loaded[identity]; !stillExists {
			removed := previous
			r.notify(Change{Identity: identity, Kind: PartyDeleted, Previous: &removed})
		}
	}
	logger.Debugf("Loaded %d parties into the registry.", len(loaded))
	return nil
}

// OnChange registers a listener. Listeners are called synchronously and must not write to the registry.
func (r *Registry) OnChange(listener Listener) {
	r.listenerMu.Lock()
	defer r.listenerMu.Unlock()
	r.listeners = append(r.listeners, listener)
}

func (r *Registry) notify(change Change) {
	r.listenerMu.RLock()
	listeners := append([]Listener{}, r.listeners...)
	r.listenerMu.RUnlock()

	for _, listener := range listeners {
		listener(change)
	}
}

// put and remove require the write lock.
func (r *Registry) put(party model.RemoteParty) {
	r.remove(party.Identity)
	r.parties[party.Identity] = party

	for _, token := range distinctTokens(party) {
		identities := append(r.tokens[token], party.Identity)
		sort.Slice(identities, func(i, j int) bool {
			return identities[i].String() < identities[j].String()
		})
		r.tokens[token] = identities
	}
}

func (r *Registry) remove(identity model.PartyIdentity) {
	existing, ok := r.parties[identity]
	if !ok {
		return
	}
	delete(r.parties, identity)
	for _, token := range distinctTokens(existing) {
		remaining := []model.PartyIdentity{}
		for _, holder := range r.tokens[token] {
			if holder != identity {
				remaining = append(remaining, holder)
			}
		}
		if len(remaining) == 0 {
			delete(r.tokens, token)
		} else {
			r.tokens[token] = remaining
		}
	}
}

func distinctTokens(party model.RemoteParty) []string {
	seen := map[string]bool{}
	tokens := []string{}
	for _, accessInfo := range party.AccessInfos {
		if accessInfo.Token == "" || seen[accessInfo.Token] {
			continue
		}
		seen[accessInfo.Token] = true
		tokens = append(tokens, accessInfo.Token)
	}
	return tokens
}

func sortParties(parties []model.RemoteParty) {
	sort.Slice(parties, func(i, j int) bool {
		return parties[i].Identity.String() < parties[j].Identity.String()
	})
}

// only used for debug output
func describe(party model.RemoteParty) string {
	masked := party.Copy()
	for i := range masked.AccessInfos {
		masked.AccessInfos[i].Token = logging.MaskToken(masked.AccessInfos[i].Token)
	}
	for i := range masked.RemoteAccessInfos {
		masked.RemoteAccessInfos[i].Token = logging.MaskToken(masked.RemoteAccessInfos[i].Token)
	}
	return logging.PrettyPrintObject(masked)
}
