package progress

import (
	"time"
)

// Status is the status of a progress record.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

const (
	// DefaultWeight is the weight of a record inside its parent unless set.
	DefaultWeight = 100
	// UnknownPercent is the percent of a record with no known progress.
	UnknownPercent = -1
)

// Record is the progress of one, possibly composite, lifecycle operation.
//
// A record owns its children, they are never shared between parents and
// Clone copies the whole tree. Records are not safe for concurrent use.
type Record struct {
	id               string
	status           Status
	startTime        time.Time
	endTime          time.Time
	lastUpdate       time.Time
	suggestedTimeout time.Duration
	title            string
	subtitle         string
	percent          int
	weight           int
	errorMessage     string
	payload          map[string]string
	children         []*Record
}

// New returns a new pending record.
func New(id string) *Record {
	now := time.Now()
	return &Record{
		id:         id,
		status:     StatusPending,
		startTime:  now,
		lastUpdate: now,
		percent:    UnknownPercent,
		weight:     DefaultWeight,
	}
}

// Succeeded returns a new terminal record that has succeeded.
func Succeeded(id, title string) *Record {
	r := New(id)
	r.SetTitle(title)
	r.Succeed()
	return r
}

// Failed returns a new terminal record that has failed with msg.
func Failed(id, title, msg string) *Record {
	r := New(id)
	r.SetTitle(title)
	r.Fail(msg)
	return r
}

// Running returns a new record that has already started.
func Running(id, title string) *Record {
	r := New(id)
	r.SetTitle(title)
	r.SetStatus(StatusRunning)
	return r
}

func (r *Record) ID() string                      { return r.id }
func (r *Record) Status() Status                  { return r.status }
func (r *Record) StartTime() time.Time            { return r.startTime }
func (r *Record) EndTime() time.Time              { return r.endTime }
func (r *Record) LastUpdate() time.Time           { return r.lastUpdate }
func (r *Record) SuggestedTimeout() time.Duration { return r.suggestedTimeout }
func (r *Record) Title() string                   { return r.title }
func (r *Record) Subtitle() string                { return r.subtitle }
func (r *Record) Percent() int                    { return r.percent }
func (r *Record) Weight() int                     { return r.weight }
func (r *Record) ErrorMessage() string            { return r.errorMessage }

// Children returns the ordered children of the record.
func (r *Record) Children() []*Record {
	return append([]*Record{}, r.children...)
}

// Payload returns an adapter defined payload value.
func (r *Record) Payload(key string) (string, bool) {
	v, ok := r.payload[key]
	return v, ok
}

// PayloadMap returns a copy of the whole adapter defined payload.
func (r *Record) PayloadMap() map[string]string {
	return copyPayload(r.payload)
}

func (r *Record) SetStatus(s Status) {
	r.status = s
	r.touch()
}

func (r *Record) SetStartTime(t time.Time) {
	r.startTime = t
	r.touch()
}

func (r *Record) SetEndTime(t time.Time) {
	r.endTime = t
	r.touch()
}

func (r *Record) SetSuggestedTimeout(d time.Duration) {
	r.suggestedTimeout = d
	r.touch()
}

func (r *Record) SetTitle(title string) {
	r.title = title
	r.touch()
}

func (r *Record) SetSubtitle(subtitle string) {
	r.subtitle = subtitle
	r.touch()
}

// SetPercent sets the percent, values out of range are clamped to -1 or 100.
func (r *Record) SetPercent(p int) {
	r.percent = clampPercent(p)
	r.touch()
}

// SetWeight sets the weight of the record inside its parent, negative weights are set to 0.
func (r *Record) SetWeight(w int) {
	r.weight = max(w, 0)
	r.touch()
}

func (r *Record) SetErrorMessage(msg string) {
	r.errorMessage = msg
	r.touch()
}

// SetPayload sets an adapter defined payload value.
func (r *Record) SetPayload(key, value string) {
	if r.payload == nil {
		r.payload = map[string]string{}
	}
	r.payload[key] = value
	r.touch()
}

// Succeed marks the record as succeeded.
func (r *Record) Succeed() {
	r.status = StatusSucceeded
	r.percent = 100
	r.endTime = time.Now()
	r.touch()
}

// Fail marks the record as failed with msg.
func (r *Record) Fail(msg string) {
	r.status = StatusFailed
	r.errorMessage = msg
	r.endTime = time.Now()
	r.touch()
}

// IsComplete returns true when the record has succeeded or failed.
func (r *Record) IsComplete() bool { return r.HasSucceeded() || r.HasFailed() }

func (r *Record) HasSucceeded() bool { return r.status == StatusSucceeded }
func (r *Record) HasFailed() bool    { return r.status == StatusFailed }
func (r *Record) IsRunning() bool    { return r.status == StatusRunning }

// AttachChild appends child to the record children and aggregates the record.
// The record takes ownership of child.
//
// A complete record is not re-aggregated: a succeeded record keeps its status,
// percent and subtitle whatever child is attached, except a failed child which
// still fails it. Attach placeholder children before any of them completes.
func (r *Record) AttachChild(child *Record) {
	r.children = append(r.children, child)
	r.touch()
	r.Aggregate()
}

// ReplaceChild replaces the child at position i and aggregates the record with
// the same rules as AttachChild.
// The record takes ownership of child, out of range positions are ignored.
func (r *Record) ReplaceChild(i int, child *Record) {
	if i < 0 || i >= len(r.children) {
		return
	}
	r.children[i] = child
	r.touch()
	r.Aggregate()
}

// Aggregate recomputes the record from its children in order.
//
// The first failed child fails the record and stops the iteration, children
// after it are not inspected. Otherwise the percent is the weighted mean of
// the children percents, the record succeeds when all children succeeded, and
// it runs when any child started, taking the subtitle of the last running child.
func (r *Record) Aggregate() {
	if len(r.children) == 0 {
		return
	}

	wasComplete := r.IsComplete()

	var weightedSum, totalWeight int
	var latestEnd time.Time
	var runningSubtitle string
	allSucceeded, anyStarted, anyRunning := true, false, false
	for _, child := range r.children {
		totalWeight += child.weight
		if child.percent >= 0 {
			weightedSum += child.percent * child.weight
		}
		if child.endTime.After(latestEnd) {
			latestEnd = child.endTime
		}
		if child.status != StatusSucceeded {
			allSucceeded = false
		}
		if child.status != StatusPending {
			anyStarted = true
		}
		if child.status == StatusRunning {
			runningSubtitle = child.subtitle
			anyRunning = true
		}
		if child.status == StatusFailed {
			r.status = StatusFailed
			r.errorMessage = child.errorMessage
			r.touch()
			break
		}
	}

	// Failed is sticky and succeeded is terminal.
	if r.status == StatusFailed || wasComplete {
		return
	}

	r.SetPercent(weightedPercent(weightedSum, totalWeight))

	switch {
	case allSucceeded:
		r.status = StatusSucceeded
		r.percent = 100
		r.subtitle = ""
		r.endTime = latestEnd
		r.touch()
	case anyStarted:
		r.status = StatusRunning
		if anyRunning {
			r.subtitle = runningSubtitle
		}
		r.touch()
	}
}

// Clone returns a deep copy of the record, its payload and its children.
func (r *Record) Clone() *Record {
	c := *r
	c.payload = copyPayload(r.payload)
	c.children = nil
	if len(r.children) > 0 {
		c.children = make([]*Record, 0, len(r.children))
		for _, child := range r.children {
			c.children = append(c.children, child.Clone())
		}
	}
	return &c
}

// touch updates the last update time, it never goes backwards.
func (r *Record) touch() {
	if now := time.Now(); now.After(r.lastUpdate) {
		r.lastUpdate = now
	}
}

// weightedPercent returns the rounded percent of the weighted sum, a zero total weight is 0%.
func weightedPercent(weightedSum, totalWeight int) int {
	if totalWeight <= 0 {
		return 0
	}
	return clampPercent((2*weightedSum + totalWeight) / (2 * totalWeight))
}

func clampPercent(p int) int {
	switch {
	case p < 0:
		return UnknownPercent
	case p > 100:
		return 100
	}
	return p
}

func copyPayload(p map[string]string) map[string]string {
	if p == nil {
		return nil
	}
	c := make(map[string]string, len(p))
	for k, v := range p {
		c[k] = v
	}
	return c
}
