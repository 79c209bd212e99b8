package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	filePrefix = "memgraph-"
	fileSuffix = ".db"
	nameLayout = "20060102T150405.000000Z"
)

// fileName returns the snapshot file name for t.
func fileName(t time.Time) string {
	return filePrefix + t.UTC().Format(nameLayout) + fileSuffix
}

// timeFromName parses the timestamp embedded by fileName.
func timeFromName(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
		return time.Time{}, false
	}
	t, err := time.Parse(nameLayout, strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// listSnapshots lists all .db files in dir, newest first.
func listSnapshots(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot directory: %w", err)
	}

	var snapshots []Info
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileSuffix) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue // Skip files we can't stat
		}

		ts, ok := timeFromName(entry.Name())
		if !ok {
			ts = info.ModTime()
		}

		snapshots = append(snapshots, Info{
			Path:      filepath.Join(dir, entry.Name()),
			Timestamp: ts,
			Size:      info.Size(),
		})
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Timestamp.After(snapshots[j].Timestamp)
	})

	return snapshots, nil
}

// selectExpired returns the paths the policy does not keep. snapshots must
// be sorted newest first.
func selectExpired(snapshots []Info, policy RetentionPolicy, now time.Time) []string {
	var expired []string
	var hourly, daily, weekly, monthly []Info

	for _, s := range snapshots {
		age := now.Sub(s.Timestamp)
		switch {
		case age < 24*time.Hour:
			hourly = append(hourly, s)
		case age < 7*24*time.Hour:
			daily = append(daily, s)
		case age < 30*24*time.Hour:
			weekly = append(weekly, s)
		case age < 365*24*time.Hour:
			monthly = append(monthly, s)
		default:
			expired = append(expired, s.Path)
		}
	}

	for _, tier := range []struct {
		items []Info
		keep  int
	}{
		{hourly, policy.Hourly},
		{daily, policy.Daily},
		{weekly, policy.Weekly},
		{monthly, policy.Monthly},
	} {
		if len(tier.items) > tier.keep {
			for _, s := range tier.items[tier.keep:] {
				expired = append(expired, s.Path)
			}
		}
	}

	return expired
}

// applyRetention removes snapshots the policy does not keep and returns the
// removed paths. Deletion continues past individual failures.
func applyRetention(dir string, policy RetentionPolicy, now time.Time) ([]string, error) {
	snapshots, err := listSnapshots(dir)
	if err != nil {
		return nil, err
	}

	var removed []string
	var lastErr error
	for _, path := range selectExpired(snapshots, policy, now) {
		if err := os.Remove(path); err != nil {
			lastErr = err
			continue
		}
		removed = append(removed, path)
	}

	if lastErr != nil {
		return removed, fmt.Errorf("failed to delete some snapshots: %w", lastErr)
	}
	return removed, nil
}
