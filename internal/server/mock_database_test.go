package server

import (
	"github.com/stretchr/testify/mock"

	"github.com/toronlabs/toron_backend/internal/database"
)

// MockDatabase is a testify mock of the store gateway
type MockDatabase struct {
	mock.Mock
}

var _ database.DatabaseInterface = (*MockDatabase)(nil)

func (m *MockDatabase) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockDatabase) GetSubject(id int64) (*database.Subject, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*database.Subject), args.Error(1)
}

func (m *MockDatabase) ListSubjects() ([]*database.Subject, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*database.Subject), args.Error(1)
}

func (m *MockDatabase) GetProfile(userID string) (*database.Profile, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*database.Profile), args.Error(1)
}

func (m *MockDatabase) UpdateProfile(userID string, update database.ProfileUpdate) error {
	args := m.Called(userID, update)
	return args.Error(0)
}

func (m *MockDatabase) SetAdmin(userID string, isAdmin bool) error {
	args := m.Called(userID, isAdmin)
	return args.Error(0)
}

func (m *MockDatabase) RecordResult(winnerID string, winnerRating float64, loserID string, loserRating float64) error {
	args := m.Called(winnerID, winnerRating, loserID, loserRating)
	return args.Error(0)
}

func (m *MockDatabase) GetLeaderboard(limit int) ([]*database.Profile, error) {
	args := m.Called(limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*database.Profile), args.Error(1)
}

func (m *MockDatabase) InsertBattle(battle *database.Battle) (int64, error) {
	args := m.Called(battle)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDatabase) GetBattle(id int64) (*database.Battle, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*database.Battle), args.Error(1)
}

func (m *MockDatabase) ListBattles(limit, offset int) ([]*database.Battle, error) {
	args := m.Called(limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*database.Battle), args.Error(1)
}

func (m *MockDatabase) CountBattles() (int, error) {
	args := m.Called()
	return args.Int(0), args.Error(1)
}

func (m *MockDatabase) RunMigrations() error {
	args := m.Called()
	return args.Error(0)
}
