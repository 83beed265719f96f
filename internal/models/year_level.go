package models

import "time"

// YearLevel is a grade/year offering configured by the admin console.
type YearLevel struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	LevelRank int       `db:"level_rank" json:"level_rank"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
