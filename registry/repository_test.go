package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-rel/rel"
	"github.com/go-rel/rel/where"
	"github.com/go-rel/reltest"
	"github.com/google/go-cmp/cmp"
	log "github.com/sirupsen/logrus"

	"github.com/fiware/ocpi-core/logging"
	"github.com/fiware/ocpi-core/model"
	"github.com/fiware/ocpi-core/sql"
)

var testTime = time.Date(2022, 10, 1, 12, 0, 0, 0, time.UTC)

func getIdentity(countryCode string, partyId string, role model.Role) model.PartyIdentity {
	return model.PartyIdentity{CountryCode: countryCode, PartyId: partyId, Role: role}
}

func getAccessInfo(token string, status model.Status) model.AccessInfo {
	return model.AccessInfo{Token: token, Status: status, CreatedAt: testTime}
}

func getRemoteAccess(token string, versionsUrl string) model.RemoteAccessInfo {
	return model.RemoteAccessInfo{Token: token, VersionsURL: versionsUrl, Version: model.Version221, Endpoints: []model.Endpoint{{Identifier: model.ModuleCredentials, Role: model.InterfaceReceiver, URL: versionsUrl + "/2.2.1/credentials"}}, CreatedAt: testTime}
}

func getParty(identity model.PartyIdentity, status model.Status, accessInfos []model.AccessInfo, remoteAccessInfos []model.RemoteAccessInfo) model.RemoteParty {
	return model.RemoteParty{Identity: identity, Status: status, BusinessDetails: model.BusinessDetails{Name: "Test " + identity.PartyId}, AccessInfos: accessInfos, RemoteAccessInfos: remoteAccessInfos, LastUpdated: testTime}
}

func getSqlMock() (dbMock *reltest.Repository, sqlRepo *SqlRepo) {
	dbMock = reltest.New()
	sqlRepo = NewSqlRepository(dbMock)
	return
}

type repositoryTest struct {
	testName string
	party    model.RemoteParty
}

func getRepositoryTests() []repositoryTest {
	cpo := getIdentity("DE", "ABC", model.RoleCPO)
	return []repositoryTest{
		{"Store a party without any tokens.", getParty(cpo, model.StatusEnabled, []model.AccessInfo{}, []model.RemoteAccessInfo{})},
		{"Store a party with access infos.", getParty(cpo, model.StatusEnabled, []model.AccessInfo{getAccessInfo("old", model.StatusDisabled), getAccessInfo("new", model.StatusEnabled)}, []model.RemoteAccessInfo{})},
		{"Store a registered party.", getParty(cpo, model.StatusEnabled, []model.AccessInfo{getAccessInfo("token", model.StatusEnabled)}, []model.RemoteAccessInfo{getRemoteAccess("remote", "https://partner.org/ocpi/versions")})},
		{"Store a disabled party.", getParty(cpo, model.StatusDisabled, []model.AccessInfo{getAccessInfo("token", model.StatusEnabled)}, []model.RemoteAccessInfo{})},
	}
}

func TestInMemoryRoundTrip(t *testing.T) {
	logging.Log().SetLevel(log.DebugLevel)

	for _, tc := range getRepositoryTests() {
		t.Run(tc.testName, func(t *testing.T) {
			repo := NewInMemoryRepo()
			if err := repo.SaveParty(context.TODO(), tc.party); err != nil {
				t.Fatalf("%s: Party should have been saved, but was %v.", tc.testName, err)
			}
			stored, err := repo.GetParty(context.TODO(), tc.party.Identity)
			if err != nil {
				t.Fatalf("%s: Party should have been found, but was %v.", tc.testName, err)
			}
			if diff := cmp.Diff(tc.party, stored); diff != "" {
				t.Errorf("%s: Stored party differs. Diff: %s", tc.testName, diff)
			}

			if err := repo.DeleteParty(context.TODO(), tc.party.Identity); err != nil {
				t.Errorf("%s: Party should have been deleted, but was %v.", tc.testName, err)
			}
			if _, err := repo.GetParty(context.TODO(), tc.party.Identity); !errors.Is(err, ErrPartyNotFound) {
				t.Errorf("%s: Deleted party should not be found, but was %v.", tc.testName, err)
			}
		})
	}
}

func TestInMemoryIsolation(t *testing.T) {
	repo := NewInMemoryRepo()
	party := getParty(getIdentity("DE", "ABC", model.RoleCPO), model.StatusEnabled, []model.AccessInfo{getAccessInfo("token", model.StatusEnabled)}, []model.RemoteAccessInfo{})
	repo.SaveParty(context.TODO(), party)

	party.AccessInfos[0].Token = "changed"
	stored, _ := repo.GetParty(context.TODO(), party.Identity)
	if stored.AccessInfos[0].Token != "token" {
		t.Errorf("Changing the saved struct should not change the stored party.")
	}
	stored.AccessInfos[0].Status = model.StatusDisabled
	storedAgain, _ := repo.GetParty(context.TODO(), party.Identity)
	if storedAgain.AccessInfos[0].Status != model.StatusEnabled {
		t.Errorf("Changing a returned party should not change the stored party.")
	}
	if err := repo.DeleteParty(context.TODO(), getIdentity("NL", "XYZ", model.RoleEMSP)); !errors.Is(err, ErrPartyNotFound) {
		t.Errorf("Deleting an unknown party should fail with not found, but was %v.", err)
	}
}

func TestSqlMapping(t *testing.T) {
	for _, tc := range getRepositoryTests() {
		t.Run(tc.testName, func(t *testing.T) {
			sqlParty, accessInfos, remoteAccessInfos, err := toSqlParty(tc.party)
			if err != nil {
				t.Fatalf("%s: Mapping should succeed, but was %v.", tc.testName, err)
			}
			if sqlParty.ID != tc.party.Identity.String() {
				t.Errorf("%s: The identity should be used as id, but was %s.", tc.testName, sqlParty.ID)
			}
			for i, accessInfo := range accessInfos {
				if accessInfo.Position != i || accessInfo.RemoteParty != sqlParty.ID {
					t.Errorf("%s: Access info %d is not referenced correctly: %v", tc.testName, i, accessInfo)
				}
			}
			mapped, err := fromSqlParty(sqlParty, accessInfos, remoteAccessInfos)
			if err != nil {
				t.Fatalf("%s: Mapping back should succeed, but was %v.", tc.testName, err)
			}
			if diff := cmp.Diff(tc.party, mapped); diff != "" {
				t.Errorf("%s: Mapped party differs. Diff: %s", tc.testName, diff)
			}
		})
	}
}

func TestSqlGetParty(t *testing.T) {
	logging.Log().SetLevel(log.DebugLevel)

	for _, tc := range getRepositoryTests() {
		t.Run(tc.testName, func(t *testing.T) {
			dbMock, sqlRepo := getSqlMock()
			sqlParty, accessInfos, remoteAccessInfos, _ := toSqlParty(tc.party)

			dbMock.ExpectFind(where.Eq("id", sqlParty.ID)).Result(sqlParty)
			dbMock.ExpectFindAll(where.Eq("remote_party", sqlParty.ID), rel.SortAsc("position")).Result(accessInfos)
			dbMock.ExpectFindAll(where.Eq("remote_party", sqlParty.ID), rel.SortAsc("position")).Result(remoteAccessInfos)

			party, err := sqlRepo.GetParty(context.TODO(), tc.party.Identity)
			if err != nil {
				t.Fatalf("%s: Party should have been found, but was %v.", tc.testName, err)
			}
			if diff := cmp.Diff(tc.party, party); diff != "" {
				t.Errorf("%s: Loaded party differs. Diff: %s", tc.testName, diff)
			}
			dbMock.AssertExpectations(t)
		})
	}

	dbMock, sqlRepo := getSqlMock()
	dbMock.ExpectFind(where.Eq("id", "NL*XYZ*EMSP")).NotFound()
	if _, err := sqlRepo.GetParty(context.TODO(), getIdentity("NL", "XYZ", model.RoleEMSP)); !errors.Is(err, ErrPartyNotFound) {
		t.Errorf("An unknown party should not be found, but was %v.", err)
	}
}

func TestSqlSaveParty(t *testing.T) {
	logging.Log().SetLevel(log.DebugLevel)

	for _, tc := range getRepositoryTests() {
		t.Run(tc.testName, func(t *testing.T) {
			dbMock, sqlRepo := getSqlMock()
			id := tc.party.Identity.String()

			dbMock.ExpectTransaction(func(r *reltest.Repository) {
				r.ExpectFind(where.Eq("id", id)).NotFound()
				r.ExpectInsert().ForType("*sql.RemoteParty")
				for range tc.party.AccessInfos {
					r.ExpectInsert().ForType("*sql.AccessInfo")
				}
				for range tc.party.RemoteAccessInfos {
					r.ExpectInsert().ForType("*sql.RemoteAccessInfo")
				}
			})

			if err := sqlRepo.SaveParty(context.TODO(), tc.party); err != nil {
				t.Errorf("%s: Party should have been saved, but was %v.", tc.testName, err)
			}
			dbMock.AssertExpectations(t)
		})
	}
}

func TestSqlReplaceParty(t *testing.T) {
	dbMock, sqlRepo := getSqlMock()
	identity := getIdentity("DE", "ABC", model.RoleCPO)
	stored := getParty(identity, model.StatusEnabled, []model.AccessInfo{getAccessInfo("old", model.StatusEnabled)}, []model.RemoteAccessInfo{})
	sqlParty, accessInfos, remoteAccessInfos, _ := toSqlParty(stored)
	accessInfos[0].ID = 1

	replacement := getParty(identity, model.StatusEnabled, []model.AccessInfo{getAccessInfo("old", model.StatusDisabled), getAccessInfo("new", model.StatusEnabled)}, []model.RemoteAccessInfo{getRemoteAccess("remote", "https://partner.org/versions")})

	dbMock.ExpectTransaction(func(r *reltest.Repository) {
		r.ExpectFind(where.Eq("id", sqlParty.ID)).Result(sqlParty)
		r.ExpectFindAll(where.Eq("remote_party", sqlParty.ID), rel.SortAsc("position")).Result(accessInfos)
		r.ExpectFindAll(where.Eq("remote_party", sqlParty.ID), rel.SortAsc("position")).Result(remoteAccessInfos)
		r.ExpectDelete().ForType("*sql.AccessInfo")
		r.ExpectUpdate().ForType("*sql.RemoteParty")
		r.ExpectInsert().ForType("*sql.AccessInfo")
		r.ExpectInsert().ForType("*sql.AccessInfo")
		r.ExpectInsert().ForType("*sql.RemoteAccessInfo")
	})

	if err := sqlRepo.SaveParty(context.TODO(), replacement); err != nil {
		t.Errorf("Party should have been replaced, but was %v.", err)
	}
	dbMock.AssertExpectations(t)
}

func TestSqlDeleteParty(t *testing.T) {
	dbMock, sqlRepo := getSqlMock()
	identity := getIdentity("DE", "ABC", model.RoleCPO)
	sqlParty, _, _, _ := toSqlParty(getParty(identity, model.StatusEnabled, []model.AccessInfo{}, []model.RemoteAccessInfo{}))

	dbMock.ExpectFind(where.Eq("id", sqlParty.ID)).Result(sqlParty)
	dbMock.ExpectTransaction(func(r *reltest.Repository) {
		r.ExpectFindAll(where.Eq("remote_party", sqlParty.ID), rel.SortAsc("position")).Result([]sql.AccessInfo{{ID: 1, Token: "token", RemoteParty: sqlParty.ID}})
		r.ExpectFindAll(where.Eq("remote_party", sqlParty.ID), rel.SortAsc("position")).Result([]sql.RemoteAccessInfo{})
		r.ExpectDelete().ForType("*sql.AccessInfo")
		r.ExpectDelete().ForType("*sql.RemoteParty")
	})

	if err := sqlRepo.DeleteParty(context.TODO(), identity); err != nil {
		t.Errorf("Party should have been deleted, but was %v.", err)
	}
	dbMock.AssertExpectations(t)

	dbMock, sqlRepo = getSqlMock()
	dbMock.ExpectFind(where.Eq("id", sqlParty.ID)).NotFound()
	if err := sqlRepo.DeleteParty(context.TODO(), identity); !errors.Is(err, ErrPartyNotFound) {
		t.Errorf("Deleting an unknown party should fail with not found, but was %v.", err)
	}
}

func TestSqlInvalidEndpoints(t *testing.T) {
	sqlParty := sql.RemoteParty{ID: "DE*ABC*CPO", CountryCode: "DE", PartyId: "ABC", Role: "CPO", Status: "ENABLED"}
	_, err := fromSqlParty(sqlParty, []sql.AccessInfo{}, []sql.RemoteAccessInfo{{Token: "t", Endpoints: "not-json", RemoteParty: sqlParty.ID}})
	if err == nil {
		t.Errorf("Invalid stored endpoints should be reported.")
	}
}
