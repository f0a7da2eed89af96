package database

// DatabaseInterface defines the interface for database operations
type DatabaseInterface interface {
	Close() error

	// Subjects
	GetSubject(id int64) (*Subject, error)
	ListSubjects() ([]*Subject, error)

	// Profiles
	GetProfile(userID string) (*Profile, error)
	UpdateProfile(userID string, update ProfileUpdate) error
	SetAdmin(userID string, isAdmin bool) error
	RecordResult(winnerID string, winnerRating float64, loserID string, loserRating float64) error
	GetLeaderboard(limit int) ([]*Profile, error)

	// Battles
	InsertBattle(battle *Battle) (int64, error)
	GetBattle(id int64) (*Battle, error)
	ListBattles(limit, offset int) ([]*Battle, error)
	CountBattles() (int, error)

	// Migration runner
	RunMigrations() error
}

// Ensure Database implements DatabaseInterface
var _ DatabaseInterface = (*Database)(nil)
