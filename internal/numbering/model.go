package numbering

import (
	"errors"
	"time"
)

// ResetRule controls when a config's counter starts over.
type ResetRule string

const (
	ResetNever   ResetRule = "NEVER"
	ResetYearly  ResetRule = "YEARLY"
	ResetMonthly ResetRule = "MONTHLY"
)

func (r ResetRule) Valid() bool {
	switch r {
	case ResetNever, ResetYearly, ResetMonthly:
		return true
	}
	return false
}

// Config is a document numbering scheme. Fiscal configs embed the
// reset period into the number itself.
type Config struct {
	ID           int64     `json:"id"`
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	DocumentType string    `json:"document_type"`
	Prefix       string    `json:"prefix"`
	Suffix       string    `json:"suffix"`
	Separator    string    `json:"separator"`
	Digits       int       `json:"digits"`
	CurrentNo    int64     `json:"current_no"`
	ResetRule    ResetRule `json:"reset_rule"`
	LastPeriod   string    `json:"last_period"`
	Fiscal       bool      `json:"fiscal"`
	IsDefault    bool      `json:"is_default"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// LocationAssignment binds a location to a config for one document
// type. At most one assignment per (document type, location) is active.
type LocationAssignment struct {
	ID           int64     `json:"id"`
	DocumentType string    `json:"document_type"`
	LocationID   int64     `json:"location_id"`
	ConfigID     int64     `json:"config_id"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// UserPreference overrides the location assignment for a single user.
type UserPreference struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	DocumentType string    `json:"document_type"`
	ConfigID     int64     `json:"config_id"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// ErrNoConfiguration is returned when no active config can be resolved
// for a document type.
var ErrNoConfiguration = errors.New("numbering: no configuration for document type")
