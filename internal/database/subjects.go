package database

import (
	"database/sql"
	"fmt"
)

// Subject represents a debate subject
type Subject struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// BuiltinSubjects returns the default debate subjects. They seed the
// subjects table on first migration and double as the fallback list
// when the store cannot be read, so their IDs must match the seeded rows.
func BuiltinSubjects() []*Subject {
	return []*Subject{
		{
			ID:    1,
			Title: "인공지능 판사를 도입해야 한다",
			Body:  "법원의 판결에 인공지능 판사를 도입하는 것에 대해 토론합니다. 찬성 측은 일관성과 효율성을, 반대 측은 책임 소재와 편향 문제를 중심으로 논증하세요.",
		},
		{
			ID:    2,
			Title: "청소년의 SNS 사용을 제한해야 한다",
			Body:  "청소년의 소셜 미디어 사용을 법적으로 제한하는 것에 대해 토론합니다. 정신 건강 보호와 표현의 자유 사이의 균형을 논증하세요.",
		},
		{
			ID:    3,
			Title: "동물원을 폐지해야 한다",
			Body:  "동물원 제도의 존폐에 대해 토론합니다. 동물 복지와 종 보전, 교육적 가치를 중심으로 논증하세요.",
		},
		{
			ID:    4,
			Title: "주 4일 근무제를 도입해야 한다",
			Body:  "주 4일 근무제의 전면 도입에 대해 토론합니다. 생산성과 삶의 질, 기업 부담을 중심으로 논증하세요.",
		},
		{
			ID:    5,
			Title: "사형제도를 유지해야 한다",
			Body:  "사형제도의 유지 여부에 대해 토론합니다. 범죄 억지력과 오판 가능성, 인권 문제를 중심으로 논증하세요.",
		},
	}
}

// GetSubject retrieves a subject by ID
func (d *Database) GetSubject(id int64) (*Subject, error) {
	query := `SELECT id, title, body FROM subjects WHERE id = ?`

	var subject Subject
	err := d.db.QueryRow(query, id).Scan(&subject.ID, &subject.Title, &subject.Body)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("subject with ID %d: %w", id, ErrNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("failed to get subject: %v: %w", err, ErrTransient)
	}

	return &subject, nil
}

// ListSubjects retrieves all subjects ordered by ID
func (d *Database) ListSubjects() ([]*Subject, error) {
	rows, err := d.db.Query(`SELECT id, title, body FROM subjects ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query subjects: %v: %w", err, ErrTransient)
	}
	defer rows.Close()

	var subjects []*Subject
	for rows.Next() {
		var subject Subject
		if err := rows.Scan(&subject.ID, &subject.Title, &subject.Body); err != nil {
			return nil, fmt.Errorf("failed to scan subject: %v: %w", err, ErrTransient)
		}
		subjects = append(subjects, &subject)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read subjects: %v: %w", err, ErrTransient)
	}

	return subjects, nil
}
