// Package snapshot takes verified point-in-time copies of the graph
// database and prunes them with a tiered retention policy.
package snapshot

import (
	"time"
)

// RetentionPolicy defines how many snapshots to keep at each tier.
// Snapshots are categorized by age:
// - Hourly: snapshots less than 24 hours old
// - Daily: snapshots between 1-7 days old
// - Weekly: snapshots between 7-30 days old
// - Monthly: snapshots between 30-365 days old
// Older snapshots are always removed.
type RetentionPolicy struct {
	Hourly  int
	Daily   int
	Weekly  int
	Monthly int
}

// DefaultRetention keeps a day of hourlies, a week of dailies, a month of
// weeklies and a year of monthlies.
var DefaultRetention = RetentionPolicy{Hourly: 24, Daily: 7, Weekly: 4, Monthly: 12}

// Info contains metadata about a snapshot file.
type Info struct {
	// Path is the full path to the snapshot file
	Path string

	// Timestamp is when the snapshot was taken, from its file name when
	// it follows the naming scheme, otherwise its modification time
	Timestamp time.Time

	// Size is the snapshot file size in bytes
	Size int64
}

// Result describes one snapshot taken by Manager.Take.
type Result struct {
	Path     string
	Size     int64
	Duration time.Duration
	Verified bool
	Pruned   []string // Snapshots removed by retention afterwards
}
