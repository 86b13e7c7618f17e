package models

import "time"

type Semester struct {
	ID        int64     `db:"id"`
	Name      string    `db:"name"`
	StartDate time.Time `db:"start_date"`
	EndDate   time.Time `db:"end_date"`
	IsActive  bool      `db:"is_active"`
}

type Student struct {
	ID       int64  `db:"id"`
	Code     string `db:"code"`
	FullName string `db:"full_name"`
	IsActive bool   `db:"is_active"`
}
