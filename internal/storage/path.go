package storage

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"
)

const snapshotRoot = "snapshots"

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildSnapshotPath returns the object key a dataset snapshot taken at t is
// published under, e.g.
// snapshots/olist/date=2026-10-18/olist-20261018T101500Z.parquet.
func BuildSnapshotPath(name string, t time.Time) (string, error) {
	if err := validatePathComponent(name, "dataset name"); err != nil {
		return "", err
	}
	ts := t.UTC()
	return path.Join(
		snapshotRoot,
		name,
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		fmt.Sprintf("%s-%s.parquet", name, ts.Format("20060102T150405Z")),
	), nil
}

// SnapshotPrefix is the key prefix shared by every snapshot of name.
func SnapshotPrefix(name string) (string, error) {
	if err := validatePathComponent(name, "dataset name"); err != nil {
		return "", err
	}
	return path.Join(snapshotRoot, name) + "/", nil
}

// LatestSnapshot picks the newest parquet snapshot from a listing. Keys sort
// chronologically because of their timestamp suffix.
func LatestSnapshot(objects []ObjectInfo) (ObjectInfo, bool) {
	candidates := make([]ObjectInfo, 0, len(objects))
	for _, object := range objects {
		if strings.HasSuffix(object.Key, ".parquet") {
			candidates = append(candidates, object)
		}
	}
	if len(candidates) == 0 {
		return ObjectInfo{}, false
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Key < candidates[j].Key })
	return candidates[len(candidates)-1], true
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
