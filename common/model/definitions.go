package model

import (
	"encoding/json"
	"time"
)

// JSONUnmarshal is the one place responses get decoded.
func JSONUnmarshal(data []byte, out interface{}) error {
	return json.Unmarshal(data, out)
}

// ----------------------------------------------------------------------
// Platform resources
// ----------------------------------------------------------------------

// Contest is a timed competition.
type Contest struct {
	ID          int64     `json:"id"`
	Slug        string    `json:"slug"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
	Status      string    `json:"status"`
}

// Running reports whether the contest is live at now.
func (c Contest) Running(now time.Time) bool {
	return !now.Before(c.StartsAt) && now.Before(c.EndsAt)
}

// Course is a self-paced learning track.
type Course struct {
	ID          int64    `json:"id"`
	Slug        string   `json:"slug"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Level       string   `json:"level,omitempty"`
	MentorIDs   []int64  `json:"mentor_ids,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Published   bool     `json:"published"`
}

// CourseUpdate is the body of PATCH /courses/{id}; nil fields are left alone.
type CourseUpdate struct {
	Title       *string  `json:"title,omitempty"`
	Description *string  `json:"description,omitempty"`
	Level       *string  `json:"level,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Published   *bool    `json:"published,omitempty"`
}

// Mentor is a person who reviews work on courses.
type Mentor struct {
	ID        int64    `json:"id"`
	Name      string   `json:"name"`
	Bio       string   `json:"bio,omitempty"`
	Expertise []string `json:"expertise,omitempty"`
}

// Team groups users for team contests.
type Team struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	MemberIDs []int64   `json:"member_ids"`
	CreatedAt time.Time `json:"created_at"`
}

// TeamInput is the body of POST /teams.
type TeamInput struct {
	Name      string  `json:"name"`
	MemberIDs []int64 `json:"member_ids,omitempty"`
}

// Stats is the platform-wide counters endpoint.
type Stats struct {
	Users    int64 `json:"users"`
	Contests int64 `json:"contests"`
	Courses  int64 `json:"courses"`
	Mentors  int64 `json:"mentors"`
}

// Page wraps list responses.
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

// StandingRow is one participant's line in a contest scoreboard.
type StandingRow struct {
	UserID   int64   `json:"user_id"`
	Username string  `json:"username"`
	Rank     int     `json:"rank"`
	Score    float64 `json:"score"`
	Solved   int     `json:"solved"`
}
