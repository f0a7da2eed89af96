package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// DefaultRating is the rating a fresh profile starts with
const DefaultRating = 1500.0

// Profile represents a player's persistent record
type Profile struct {
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	Rating      float64   `json:"rating"`
	Wins        int       `json:"wins"`
	Loses       int       `json:"loses"`
	IsAdmin     bool      `json:"isAdmin"`
	AvatarURL   string    `json:"avatarUrl,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ProfileUpdate holds optional profile changes. Nil fields stay untouched.
type ProfileUpdate struct {
	DisplayName *string
	Rating      *float64
	Wins        *int
	Loses       *int
	AvatarURL   *string
}

// GetProfile retrieves a profile, creating a default one when the user
// has never been seen. The display name starts as the user ID.
func (d *Database) GetProfile(userID string) (*Profile, error) {
	insert := `INSERT INTO user_profile (user_id, display_name) VALUES (?, ?)
		ON CONFLICT(user_id) DO NOTHING`
	if _, err := d.db.Exec(insert, userID, userID); err != nil {
		return nil, fmt.Errorf("failed to ensure profile: %v: %w", err, ErrTransient)
	}

	query := `SELECT user_id, display_name, rating, wins, loses, is_admin,
		avatar_url, created_at, updated_at
	FROM user_profile WHERE user_id = ?`

	var profile Profile
	var avatarURL sql.NullString

	err := d.db.QueryRow(query, userID).Scan(
		&profile.UserID,
		&profile.DisplayName,
		&profile.Rating,
		&profile.Wins,
		&profile.Loses,
		&profile.IsAdmin,
		&avatarURL,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("profile for user %s: %w", userID, ErrNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("failed to get profile: %v: %w", err, ErrTransient)
	}

	if avatarURL.Valid {
		profile.AvatarURL = avatarURL.String
	}

	return &profile, nil
}

// UpdateProfile applies the non-nil fields of update to a profile
func (d *Database) UpdateProfile(userID string, update ProfileUpdate) error {
	var sets []string
	var args []interface{}

	if update.DisplayName != nil {
		sets = append(sets, "display_name = ?")
		args = append(args, *update.DisplayName)
	}
	if update.Rating != nil {
		sets = append(sets, "rating = ?")
		args = append(args, *update.Rating)
	}
	if update.Wins != nil {
		sets = append(sets, "wins = ?")
		args = append(args, *update.Wins)
	}
	if update.Loses != nil {
		sets = append(sets, "loses = ?")
		args = append(args, *update.Loses)
	}
	if update.AvatarURL != nil {
		sets = append(sets, "avatar_url = ?")
		args = append(args, *update.AvatarURL)
	}
	if len(sets) == 0 {
		return nil
	}

	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	query := fmt.Sprintf("UPDATE user_profile SET %s WHERE user_id = ?", strings.Join(sets, ", "))
	args = append(args, userID)

	result, err := d.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update profile: %v: %w", err, ErrTransient)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %v: %w", err, ErrTransient)
	}
	if affected == 0 {
		return fmt.Errorf("profile for user %s: %w", userID, ErrNotFound)
	}

	return nil
}

// SetAdmin flips the admin flag on a profile
func (d *Database) SetAdmin(userID string, isAdmin bool) error {
	query := `UPDATE user_profile SET is_admin = ?, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ?`

	result, err := d.db.Exec(query, isAdmin, userID)
	if err != nil {
		return fmt.Errorf("failed to set admin flag: %v: %w", err, ErrTransient)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check admin update: %v: %w", err, ErrTransient)
	}
	if affected == 0 {
		return fmt.Errorf("profile for user %s: %w", userID, ErrNotFound)
	}

	return nil
}

// RecordResult applies a finished match to both players atomically:
// new ratings plus a win for one side and a loss for the other.
func (d *Database) RecordResult(winnerID string, winnerRating float64, loserID string, loserRating float64) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v: %w", err, ErrTransient)
	}

	winQuery := `UPDATE user_profile SET rating = ?, wins = wins + 1,
		updated_at = CURRENT_TIMESTAMP WHERE user_id = ?`
	if _, err := tx.Exec(winQuery, winnerRating, winnerID); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to record win: %v: %w", err, ErrTransient)
	}

	loseQuery := `UPDATE user_profile SET rating = ?, loses = loses + 1,
		updated_at = CURRENT_TIMESTAMP WHERE user_id = ?`
	if _, err := tx.Exec(loseQuery, loserRating, loserID); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to record loss: %v: %w", err, ErrTransient)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit result: %v: %w", err, ErrTransient)
	}

	return nil
}

// GetLeaderboard returns the top profiles ordered by rating
func (d *Database) GetLeaderboard(limit int) ([]*Profile, error) {
	if limit <= 0 {
		limit = 10
	}

	query := `SELECT user_id, display_name, rating, wins, loses, is_admin,
		avatar_url, created_at, updated_at
	FROM user_profile ORDER BY rating DESC, wins DESC LIMIT ?`

	rows, err := d.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %v: %w", err, ErrTransient)
	}
	defer rows.Close()

	var profiles []*Profile
	for rows.Next() {
		var profile Profile
		var avatarURL sql.NullString

		err := rows.Scan(
			&profile.UserID,
			&profile.DisplayName,
			&profile.Rating,
			&profile.Wins,
			&profile.Loses,
			&profile.IsAdmin,
			&avatarURL,
			&profile.CreatedAt,
			&profile.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %v: %w", err, ErrTransient)
		}

		if avatarURL.Valid {
			profile.AvatarURL = avatarURL.String
		}
		profiles = append(profiles, &profile)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read leaderboard: %v: %w", err, ErrTransient)
	}

	return profiles, nil
}
