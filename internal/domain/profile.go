package domain

import "time"

// Profile is the member profile created once a signup completes. Profile editing lives
// in other services; this core only creates the row and reads its identity.
type Profile struct {
	ProfileID       string    `json:"id" dynamodbav:"profile_id"`
	SignupID        string    `json:"signup_id" dynamodbav:"signup_id"`
	InstitutionalID string    `json:"institutional_id" dynamodbav:"institutional_id"`
	Email           string    `json:"email" dynamodbav:"email"`
	FullName        string    `json:"full_name" dynamodbav:"full_name"`
	Level           string    `json:"level" dynamodbav:"level"`
	YearIntake      int       `json:"year_intake" dynamodbav:"year_intake"`
	IsIndonesian    bool      `json:"is_indonesian" dynamodbav:"is_indonesian"`
	Program         string    `json:"program" dynamodbav:"program"`
	Major           string    `json:"major" dynamodbav:"major"`
	CreatedAt       time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt       time.Time `json:"updated" dynamodbav:"updated_at"`
}
