package database

import (
	"database/sql"
	"fmt"
	"time"
)

// Battle represents a finished debate. Player1 argued the agree side,
// Player2 the disagree side. LogJSON holds the full speaking log and
// VerdictJSON the final blended verdict.
type Battle struct {
	ID          int64     `json:"id"`
	Player1     string    `json:"player1"`
	Player2     string    `json:"player2"`
	SubjectID   int64     `json:"subjectId"`
	WinnerID    string    `json:"winnerId"`
	LogJSON     string    `json:"logJson"`
	VerdictJSON string    `json:"verdictJson"`
	CreatedAt   time.Time `json:"createdAt"`
}

// InsertBattle persists a finished battle and returns its ID
func (d *Database) InsertBattle(battle *Battle) (int64, error) {
	query := `INSERT INTO battles (player1, player2, subject_id, winner_id, log_json, verdict_json)
		VALUES (?, ?, ?, ?, ?, ?)`

	result, err := d.db.Exec(query,
		battle.Player1,
		battle.Player2,
		battle.SubjectID,
		battle.WinnerID,
		battle.LogJSON,
		battle.VerdictJSON,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert battle: %v: %w", err, ErrTransient)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read battle id: %v: %w", err, ErrTransient)
	}

	return id, nil
}

// GetBattle retrieves a battle by ID
func (d *Database) GetBattle(id int64) (*Battle, error) {
	query := `SELECT id, player1, player2, subject_id, winner_id, log_json, verdict_json, created_at
		FROM battles WHERE id = ?`

	var battle Battle
	var winnerID, verdictJSON sql.NullString

	err := d.db.QueryRow(query, id).Scan(
		&battle.ID,
		&battle.Player1,
		&battle.Player2,
		&battle.SubjectID,
		&winnerID,
		&battle.LogJSON,
		&verdictJSON,
		&battle.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("battle with ID %d: %w", id, ErrNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("failed to get battle: %v: %w", err, ErrTransient)
	}

	if winnerID.Valid {
		battle.WinnerID = winnerID.String
	}
	if verdictJSON.Valid {
		battle.VerdictJSON = verdictJSON.String
	}

	return &battle, nil
}

// ListBattles returns finished battles newest first
func (d *Database) ListBattles(limit, offset int) ([]*Battle, error) {
	query := `SELECT id, player1, player2, subject_id, winner_id, log_json, verdict_json, created_at
		FROM battles ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`

	rows, err := d.db.Query(query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query battles: %v: %w", err, ErrTransient)
	}
	defer rows.Close()

	var battles []*Battle
	for rows.Next() {
		var battle Battle
		var winnerID, verdictJSON sql.NullString

		err := rows.Scan(
			&battle.ID,
			&battle.Player1,
			&battle.Player2,
			&battle.SubjectID,
			&winnerID,
			&battle.LogJSON,
			&verdictJSON,
			&battle.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan battle: %v: %w", err, ErrTransient)
		}

		if winnerID.Valid {
			battle.WinnerID = winnerID.String
		}
		if verdictJSON.Valid {
			battle.VerdictJSON = verdictJSON.String
		}
		battles = append(battles, &battle)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read battles: %v: %w", err, ErrTransient)
	}

	return battles, nil
}

// CountBattles returns the total number of finished battles
func (d *Database) CountBattles() (int, error) {
	var count int
	err := d.db.QueryRow(`SELECT COUNT(*) FROM battles`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count battles: %v: %w", err, ErrTransient)
	}
	return count, nil
}
