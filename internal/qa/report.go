package qa

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jonesrussell/analyst/internal/domain"
)

// writeReport persists one failed audit as a markdown file under the reports
// directory, named so the files sort chronologically.
func (a *Auditor) writeReport(event *domain.TrackerEvent, j *Judgment) (string, error) {
	if err := os.MkdirAll(a.cfg.ReportsDir, 0o755); err != nil {
		return "", fmt.Errorf("qa: create %s: %w", a.cfg.ReportsDir, err)
	}

	now := time.Now().UTC()
	record, err := json.MarshalIndent(event, "", "  ")
	if err != nil {
		return "", fmt.Errorf("qa: marshal event %s: %w", event.ID, err)
	}

	body := fmt.Sprintf(`# QA failure: %s

- **Audited**: %s
- **Event**: %s/%s
- **Component**: %s (%s)
- **Verdict**: %s

## Motivation

%s

## Recommendation

%s

## Audited record

`+"```json\n%s\n```\n",
		event.Type,
		now.Format(time.RFC3339),
		event.Type, event.ID,
		event.Component, event.Action,
		j.Verdict,
		j.Motivation,
		j.Recommendation,
		record)

	path := filepath.Join(a.cfg.ReportsDir,
		fmt.Sprintf("%s_%s.md", now.Format("20060102T150405Z"), event.ID))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(body), 0o644); err != nil {
		return "", fmt.Errorf("qa: write report %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("qa: place report %s: %w", path, err)
	}
	return path, nil
}

type dailyCounter struct {
	Date     string `json:"date"`
	Failures int    `json:"failures"`
}

// bumpDailyCounter increments today's failure tally. One file per day keeps
// the history greppable without a database.
func (a *Auditor) bumpDailyCounter() error {
	if err := os.MkdirAll(a.cfg.CounterDir, 0o755); err != nil {
		return fmt.Errorf("qa: create %s: %w", a.cfg.CounterDir, err)
	}

	day := time.Now().UTC().Format("2006-01-02")
	path := filepath.Join(a.cfg.CounterDir, "failures_"+day+".json")

	counter := dailyCounter{Date: day}
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &counter); err != nil {
			return fmt.Errorf("qa: decode counter %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("qa: read counter %s: %w", path, err)
	}
	counter.Failures++

	data, err := json.MarshalIndent(counter, "", "  ")
	if err != nil {
		return fmt.Errorf("qa: encode counter: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("qa: write counter %s: %w", tmp, err)
	}
	return os.Rename(tmp, path)
}

// DailyFailures reads one day's failure count. A missing file is zero.
func (a *Auditor) DailyFailures(day time.Time) (int, error) {
	path := filepath.Join(a.cfg.CounterDir, "failures_"+day.UTC().Format("2006-01-02")+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("qa: read counter %s: %w", path, err)
	}
	var counter dailyCounter
	if err := json.Unmarshal(data, &counter); err != nil {
		return 0, fmt.Errorf("qa: decode counter %s: %w", path, err)
	}
	return counter.Failures, nil
}
