// Package dispatch triggers CI workflows on a time-of-day schedule. It is meant
// to run every minute from cron; a lock file keeps overlapping runs out.
package dispatch

import (
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Schedule types.
const (
	TypeHourly = "hourly"
	TypeDaily  = "daily"
)

// Entry is the schedule of one workflow.
type Entry struct {
	Workflow string `json:"-"`
	Type     string `json:"type"`

	// Minute is the minute of every hour an hourly workflow runs at.
	Minute *int `json:"minute,omitempty"`

	// Time is the "HH:MM" (UTC) a daily workflow runs at.
	Time string `json:"time,omitempty"`
}

// Due reports whether the entry fires at now's minute, in UTC.
func (e Entry) Due(now time.Time) bool {
	now = now.UTC()
	switch e.Type {
	case TypeHourly:
		return e.Minute != nil && *e.Minute == now.Minute()
	case TypeDaily:
		hour, minute, err := parseClock(e.Time)
		if err != nil {
			return false
		}
		return hour == now.Hour() && minute == now.Minute()
	default:
		return false
	}
}

// LoadSchedule reads {"workflow.yml": {"type": ..., "minute"|"time": ...}}.
// Keys starting with "_" are comments and skipped. Entries are sorted by workflow.
func LoadSchedule(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read schedule %s", path)
	}
	entries, err := ParseSchedule(data)
	if err != nil {
		return nil, errors.Wrapf(err, "parse schedule %s", path)
	}
	return entries, nil
}

// ParseSchedule decodes and validates a schedule document.
func ParseSchedule(data []byte) ([]Entry, error) {
	var raw map[string]jsoniter.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(raw))
	for name, msg := range raw {
		if strings.HasPrefix(name, "_") {
			continue
		}
		var e Entry
		if err := json.Unmarshal(msg, &e); err != nil {
			return nil, errors.Wrapf(err, "workflow %s", name)
		}
		e.Workflow = name
		if err := e.validate(); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Workflow < entries[j].Workflow })
	return entries, nil
}

func (e Entry) validate() error {
	switch e.Type {
	case TypeHourly:
		if e.Minute == nil || *e.Minute < 0 || *e.Minute > 59 {
			return errors.Errorf("workflow %s: hourly schedule needs minute 0-59", e.Workflow)
		}
	case TypeDaily:
		if _, _, err := parseClock(e.Time); err != nil {
			return errors.Wrapf(err, "workflow %s", e.Workflow)
		}
	default:
		return errors.Errorf("workflow %s: unknown schedule type %q", e.Workflow, e.Type)
	}
	return nil
}

func parseClock(s string) (int, int, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, errors.Errorf("invalid time %q, want HH:MM", s)
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, errors.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, errors.Errorf("invalid minute in %q", s)
	}
	return hour, minute, nil
}
