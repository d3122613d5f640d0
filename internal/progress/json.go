package progress

import (
	"encoding/json"
	"fmt"
	"time"
)

// recordJSON is the wire representation of a record.
type recordJSON struct {
	ID                      string            `json:"id"`
	Status                  Status            `json:"status"`
	StartTime               *time.Time        `json:"start_time,omitempty"`
	EndTime                 *time.Time        `json:"end_time,omitempty"`
	LastUpdate              time.Time         `json:"last_update"`
	SuggestedTimeoutSeconds int64             `json:"suggested_timeout_seconds,omitempty"`
	Title                   string            `json:"title"`
	Subtitle                string            `json:"subtitle,omitempty"`
	Percent                 int               `json:"percent"`
	Weight                  int               `json:"weight"`
	ErrorMessage            string            `json:"error_message,omitempty"`
	Payload                 map[string]string `json:"payload,omitempty"`
	Children                []*Record         `json:"children,omitempty"`
}

// MarshalJSON satisfies json.Marshaler.
func (r *Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{
		ID:                      r.id,
		Status:                  r.status,
		StartTime:               timePtr(r.startTime),
		EndTime:                 timePtr(r.endTime),
		LastUpdate:              r.lastUpdate,
		SuggestedTimeoutSeconds: int64(r.suggestedTimeout / time.Second),
		Title:                   r.title,
		Subtitle:                r.subtitle,
		Percent:                 r.percent,
		Weight:                  r.weight,
		ErrorMessage:            r.errorMessage,
		Payload:                 r.payload,
		Children:                r.children,
	})
}

// UnmarshalJSON satisfies json.Unmarshaler.
func (r *Record) UnmarshalJSON(data []byte) error {
	var rj recordJSON
	if err := json.Unmarshal(data, &rj); err != nil {
		return err
	}

	switch rj.Status {
	case StatusPending, StatusRunning, StatusSucceeded, StatusFailed:
	default:
		return fmt.Errorf("unknown record status %q", rj.Status)
	}
	for i, c := range rj.Children {
		if c == nil {
			return fmt.Errorf("record %q child %d is null", rj.ID, i)
		}
	}

	*r = Record{
		id:               rj.ID,
		status:           rj.Status,
		lastUpdate:       rj.LastUpdate,
		suggestedTimeout: time.Duration(rj.SuggestedTimeoutSeconds) * time.Second,
		title:            rj.Title,
		subtitle:         rj.Subtitle,
		percent:          clampPercent(rj.Percent),
		weight:           max(rj.Weight, 0),
		errorMessage:     rj.ErrorMessage,
		payload:          rj.Payload,
		children:         rj.Children,
	}
	if rj.StartTime != nil {
		r.startTime = *rj.StartTime
	}
	if rj.EndTime != nil {
		r.endTime = *rj.EndTime
	}

	return nil
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
