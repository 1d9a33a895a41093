// Package harvest implements the resumable contact-email harvest loop.
//
// The loop walks a dataset of websites, skips rows that already carry an
// accessibility status, scrapes each remaining site plus a bounded number of
// same-site subpages for role-based email addresses, and checkpoints the
// dataset and both result tables after every row so a later run can resume.
package harvest

import (
	"fmt"
	"time"
)

// Status is the value stored in the dataset's status column.
type Status string

// Row status values.
const (
	StatusUnset Status = ""
	StatusYes   Status = "YES"
	StatusNo    Status = "NO"
)

// StopReason explains why a run ended.
type StopReason string

// Stop reasons reported in the Summary.
const (
	StopExhausted   StopReason = "exhausted"
	StopBudget      StopReason = "budget"
	StopInterrupted StopReason = "interrupted"
)

// Result table columns.
const (
	ColumnWebsite    = "Website"
	ColumnEmails     = "Emails"
	ColumnAccessible = "Accessible"
)

// DefaultPrefixes are the role-based local parts treated as company contacts.
var DefaultPrefixes = []string{
	"info@", "contact@", "hello@", "support@", "help@", "sales@", "business@", "partnerships@",
	"media@", "press@", "hr@", "careers@", "jobs@", "admin@", "office@", "feedback@", "marketing@",
	"billing@", "accounts@", "ceo@",
}

// Config controls a harvest run.
type Config struct {
	WebsiteColumn string
	StatusColumn  string
	Prefixes      []string
	// Budget is the wall-clock limit checked before each row. Zero or
	// negative processes nothing.
	Budget      time.Duration
	MaxSubpages int
	// Topic receives the run summary when a Publisher is configured.
	Topic string
}

// DefaultConfig mirrors the defaults loaded from configuration.
func DefaultConfig() Config {
	return Config{
		WebsiteColumn: "Website",
		StatusColumn:  "accessible",
		Prefixes:      append([]string(nil), DefaultPrefixes...),
		Budget:        30 * time.Minute,
		MaxSubpages:   10,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.WebsiteColumn == "" {
		return fmt.Errorf("website column is required")
	}
	if c.StatusColumn == "" {
		return fmt.Errorf("status column is required")
	}
	if c.WebsiteColumn == c.StatusColumn {
		return fmt.Errorf("website and status columns must differ")
	}
	if len(c.Prefixes) == 0 {
		return fmt.Errorf("at least one email prefix is required")
	}
	if c.MaxSubpages < 0 {
		return fmt.Errorf("max subpages must be >= 0")
	}
	return nil
}

// Page is a fetched document.
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
}

// Summary reports what a run did.
type Summary struct {
	RunID         string        `json:"run_id"`
	Pending       int           `json:"pending"`
	Processed     int           `json:"processed"`
	Accessible    int           `json:"accessible"`
	NotAccessible int           `json:"not_accessible"`
	Skipped       int           `json:"skipped"`
	Reason        StopReason    `json:"reason"`
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration_ns"`
}
