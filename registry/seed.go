package registry

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/fiware/ocpi-core/model"
)

type seedFile struct {
	Parties []model.RemoteParty `yaml:"parties"`
}

/**
* Seed creates the parties of the given yaml file. Parties that are already registered stay untouched,
* so the file can stay configured across restarts.
 */
func Seed(ctx context.Context, registry *Registry, path string) (created int, err error) {
	fileContent, err := os.ReadFile(path)
	if err != nil {
		return created, errors.Wrapf(err, "was not able to read seed file %s", path)
	}

	var seed seedFile
	if err := yaml.Unmarshal(fileContent, &seed); err != nil {
		return created, errors.Wrapf(err, "seed file %s is not valid yaml", path)
	}

	for _, party := range seed.Parties {
		party.Identity = model.NewPartyIdentity(party.Identity.CountryCode, party.Identity.PartyId, party.Identity.Role)
		if err := party.Identity.Validate(); err != nil {
			return created, errors.Wrapf(err, "seed file %s contains an invalid party", path)
		}
		if party.AccessInfos == nil {
			party.AccessInfos = []model.AccessInfo{}
		}
		if party.RemoteAccessInfos == nil {
			party.RemoteAccessInfos = []model.RemoteAccessInfo{}
		}
		for i := range party.AccessInfos {
			if party.AccessInfos[i].Status == "" {
				party.AccessInfos[i].Status = model.StatusEnabled
			}
		}

		_, err := registry.Create(ctx, party)
		if errors.Is(err, ErrPartyExists) {
			logger.Debugf("Party %s is already registered, skip it.", party.Identity)
			continue
		}
		if err != nil {
			return created, errors.Wrapf(err, "was not able to seed party %s", party.Identity)
		}
		created++
	}
	logger.Infof("Seeded %d parties from %s.", created, path)
	return created, nil
}
