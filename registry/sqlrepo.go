package registry

import (
	"context"
	"encoding/json"

	"github.com/fiware/ocpi-core/config"
	"github.com/fiware/ocpi-core/logging"
	"github.com/fiware/ocpi-core/model"
	dbModel "github.com/fiware/ocpi-core/sql"
	"github.com/go-rel/mysql"
	"github.com/go-rel/rel"
	"github.com/go-rel/rel/where"
	_ "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
)

type SqlRepo struct {
	repo rel.Repository
}

/**
* Opens the mysql connection for the given configuration.
 */
func GetMySqlRepository(mySqlConfig config.MySqlConfig) (rel.Repository, error) {
	adapter, err := mysql.Open(mySqlConfig.ConnectionString())
	if err != nil {
		return nil, errors.Wrapf(err, "was not able to connect to db %s:%d/%s as user %s", mySqlConfig.Host, mySqlConfig.Port, mySqlConfig.Database, mySqlConfig.Username)
	}
	logger.Infof("Connected to mysql at %s:%d/%s as storage backend.", mySqlConfig.Host, mySqlConfig.Port, mySqlConfig.Database)
	return rel.New(adapter), nil
}

func NewSqlRepository(repository rel.Repository) *SqlRepo {
	return &SqlRepo{repo: repository}
}

func (sqlRepo *SqlRepo) GetParties(ctx context.Context) (parties []model.RemoteParty, err error) {
	var sqlParties []dbModel.RemoteParty
	err = sqlRepo.repo.FindAll(ctx, &sqlParties, rel.SortAsc("id"))
	if err != nil {
		return parties, errors.Wrap(err, "was not able to query for parties")
	}
	parties = make([]model.RemoteParty, 0, len(sqlParties))
	for _, sqlParty := range sqlParties {
		party, err := sqlRepo.loadParty(ctx, sqlParty)
		if err != nil {
			return parties, err
		}
		parties = append(parties, party)
	}
	return parties, nil
}

func (sqlRepo *SqlRepo) GetParty(ctx context.Context, identity model.PartyIdentity) (party model.RemoteParty, err error) {
	sqlParty, err := sqlRepo.findSqlParty(ctx, identity.String())
	if err != nil {
		return party, err
	}
	return sqlRepo.loadParty(ctx, sqlParty)
}

func (sqlRepo *SqlRepo) SaveParty(ctx context.Context, party model.RemoteParty) (err error) {
	sqlParty, accessInfos, remoteAccessInfos, err := toSqlParty(party)
	if err != nil {
		return err
	}

	return sqlRepo.repo.Transaction(ctx, func(ctx context.Context) error {
		_, err := sqlRepo.findSqlParty(ctx, sqlParty.ID)
		switch {
		case errors.Is(err, ErrPartyNotFound):
			logger.Debugf("Insert new party %s.", sqlParty.ID)
			if err := sqlRepo.repo.Insert(ctx, &sqlParty); err != nil {
				return errors.Wrapf(err, "was not able to insert party %s", sqlParty.ID)
			}
		case err != nil:
			return err
		default:
			logger.Debugf("Replace party %s.", sqlParty.ID)
			if err := sqlRepo.deleteChildren(ctx, sqlParty.ID); err != nil {
				return err
			}
			if err := sqlRepo.repo.Update(ctx, &sqlParty); err != nil {
				return errors.Wrapf(err, "was not able to update party %s", sqlParty.ID)
			}
		}
		for i := range accessInfos {
			if err := sqlRepo.repo.Insert(ctx, &accessInfos[i]); err != nil {
				return errors.Wrapf(err, "was not able to insert access info for %s", sqlParty.ID)
			}
		}
		for i := range remoteAccessInfos {
			if err := sqlRepo.repo.Insert(ctx, &remoteAccessInfos[i]); err != nil {
				return errors.Wrapf(err, "was not able to insert remote access info for %s", sqlParty.ID)
			}
		}
		return nil
	})
}

func (sqlRepo *SqlRepo) DeleteParty(ctx context.Context, identity model.PartyIdentity) (err error) {
	sqlParty, err := sqlRepo.findSqlParty(ctx, identity.String())
	if err != nil {
		logger.Debugf("Party %s to delete not found.", identity)
		return err
	}
	return sqlRepo.repo.Transaction(ctx, func(ctx context.Context) error {
		if err := sqlRepo.deleteChildren(ctx, sqlParty.ID); err != nil {
			return err
		}
		if err := sqlRepo.repo.Delete(ctx, &sqlParty); err != nil {
			return errors.Wrapf(err, "was not able to delete party %s", sqlParty.ID)
		}
		return nil
	})
}

func (sqlRepo *SqlRepo) findSqlParty(ctx context.Context, id string) (sqlParty dbModel.RemoteParty, err error) {
	err = sqlRepo.repo.Find(ctx, &sqlParty, where.Eq("id", id))
	if errors.Is(err, rel.ErrNotFound) {
		return sqlParty, ErrPartyNotFound
	}
	if err != nil {
		return sqlParty, errors.Wrapf(err, "was not able to find party %s", id)
	}
	return sqlParty, nil
}

func (sqlRepo *SqlRepo) findChildren(ctx context.Context, partyId string) (accessInfos []dbModel.AccessInfo, remoteAccessInfos []dbModel.RemoteAccessInfo, err error) {
	err = sqlRepo.repo.FindAll(ctx, &accessInfos, where.Eq("remote_party", partyId), rel.SortAsc("position"))
	if err != nil {
		return accessInfos, remoteAccessInfos, errors.Wrapf(err, "was not able to load access infos of %s", partyId)
	}
	err = sqlRepo.repo.FindAll(ctx, &remoteAccessInfos, where.Eq("remote_party", partyId), rel.SortAsc("position"))
	if err != nil {
		return accessInfos, remoteAccessInfos, errors.Wrapf(err, "was not able to load remote access infos of %s", partyId)
	}
	return accessInfos, remoteAccessInfos, nil
}

func (sqlRepo *SqlRepo) deleteChildren(ctx context.Context, partyId string) error {
	accessInfos, remoteAccessInfos, err := sqlRepo.findChildren(ctx, partyId)
	if err != nil {
		return err
	}
	for _, accessInfo := range accessInfos {
		if err := sqlRepo.repo.Delete(ctx, &accessInfo); err != nil {
			logger.Infof("Was not able to delete access info %d", accessInfo.ID)
			return errors.Wrap(err, "was not able to delete access info")
		}
	}
	for _, remoteAccessInfo := range remoteAccessInfos {
		if err := sqlRepo.repo.Delete(ctx, &remoteAccessInfo); err != nil {
			logger.Infof("Was not able to delete remote access info %d", remoteAccessInfo.ID)
			return errors.Wrap(err, "was not able to delete remote access info")
		}
	}
	return nil
}

func (sqlRepo *SqlRepo) loadParty(ctx context.Context, sqlParty dbModel.RemoteParty) (party model.RemoteParty, err error) {
	accessInfos, remoteAccessInfos, err := sqlRepo.findChildren(ctx, sqlParty.ID)
	if err != nil {
		return party, err
	}
	logger.Tracef("Loaded party %s.", logging.PrettyPrintObject(sqlParty))
	return fromSqlParty(sqlParty, accessInfos, remoteAccessInfos)
}

func toSqlParty(party model.RemoteParty) (sqlParty dbModel.RemoteParty, accessInfos []dbModel.AccessInfo, remoteAccessInfos []dbModel.RemoteAccessInfo, err error) {
	id := party.Identity.String()
	sqlParty = dbModel.RemoteParty{
		ID:              id,
		CountryCode:     party.Identity.CountryCode,
		PartyId:         party.Identity.PartyId,
		Role:            string(party.Identity.Role),
		Status:          string(party.Status),
		BusinessName:    party.BusinessDetails.Name,
		BusinessWebsite: party.BusinessDetails.Website,
		LastUpdated:     party.LastUpdated,
	}
	accessInfos = []dbModel.AccessInfo{}
	for i, accessInfo := range party.AccessInfos {
		accessInfos = append(accessInfos, dbModel.AccessInfo{Token: accessInfo.Token, Status: string(accessInfo.Status), IssuedAt: accessInfo.CreatedAt, Position: i, RemoteParty: id})
	}
	remoteAccessInfos = []dbModel.RemoteAccessInfo{}
	for i, remoteAccess := range party.RemoteAccessInfos {
		endpoints, err := json.Marshal(remoteAccess.Endpoints)
		if err != nil {
			return sqlParty, accessInfos, remoteAccessInfos, errors.Wrap(err, "was not able to encode the endpoints")
		}
		remoteAccessInfos = append(remoteAccessInfos, dbModel.RemoteAccessInfo{
			Token:       remoteAccess.Token,
			VersionsUrl: remoteAccess.VersionsURL,
			Version:     string(remoteAccess.Version),
			Endpoints:   string(endpoints),
			ReceivedAt:  remoteAccess.CreatedAt,
			Position:    i,
			RemoteParty: id,
		})
	}
	return sqlParty, accessInfos, remoteAccessInfos, nil
}

func fromSqlParty(sqlParty dbModel.RemoteParty, accessInfos []dbModel.AccessInfo, remoteAccessInfos []dbModel.RemoteAccessInfo) (party model.RemoteParty, err error) {
	party = model.RemoteParty{
		Identity:          model.NewPartyIdentity(sqlParty.CountryCode, sqlParty.PartyId, model.Role(sqlParty.Role)),
		Status:            model.Status(sqlParty.Status),
		BusinessDetails:   model.BusinessDetails{Name: sqlParty.BusinessName, Website: sqlParty.BusinessWebsite},
		AccessInfos:       []model.AccessInfo{},
		RemoteAccessInfos: []model.RemoteAccessInfo{},
		LastUpdated:       sqlParty.LastUpdated,
	}
	for _, accessInfo := range accessInfos {
		party.AccessInfos = append(party.AccessInfos, model.AccessInfo{Token: accessInfo.Token, Status: model.Status(accessInfo.Status), CreatedAt: accessInfo.IssuedAt})
	}
	for _, remoteAccess := range remoteAccessInfos {
		endpoints := []model.Endpoint{}
		if remoteAccess.Endpoints != "" {
			if err := json.Unmarshal([]byte(remoteAccess.Endpoints), &endpoints); err != nil {
				return party, errors.Wrapf(err, "stored endpoints of %s are invalid", sqlParty.ID)
			}
		}
		party.RemoteAccessInfos = append(party.RemoteAccessInfos, model.RemoteAccessInfo{
			Token:       remoteAccess.Token,
			VersionsURL: remoteAccess.VersionsUrl,
			Version:     model.VersionNumber(remoteAccess.Version),
			Endpoints:   endpoints,
			CreatedAt:   remoteAccess.ReceivedAt,
		})
	}
	return party, nil
}
