package progress_test

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/activator/internal/progress"
)

type childSpec struct {
	status   progress.Status
	percent  int
	weight   int
	subtitle string
	errMsg   string
	endTime  time.Time
}

func newChild(id string, s childSpec) *progress.Record {
	r := progress.New(id)
	applySpec(r, s)
	return r
}

func applySpec(r *progress.Record, s childSpec) {
	r.SetStatus(s.status)
	r.SetPercent(s.percent)
	r.SetWeight(s.weight)
	r.SetSubtitle(s.subtitle)
	r.SetErrorMessage(s.errMsg)
	r.SetEndTime(s.endTime)
}

// newParent attaches pending children and then updates them all at once, so the
// aggregation sees the whole list like a parent whose children progressed.
func newParent(children []childSpec) *progress.Record {
	parent := progress.New("parent")
	for i := range children {
		parent.AttachChild(progress.New(string(rune('a' + i))))
	}
	for i, child := range parent.Children() {
		applySpec(child, children[i])
	}
	parent.Aggregate()
	return parent
}

func TestNew(t *testing.T) {
	assert := assert.New(t)

	r := progress.New("r1")

	assert.Equal("r1", r.ID())
	assert.Equal(progress.StatusPending, r.Status())
	assert.Equal(progress.UnknownPercent, r.Percent())
	assert.Equal(progress.DefaultWeight, r.Weight())
	assert.False(r.IsComplete())
	assert.False(r.StartTime().IsZero())
	assert.True(r.EndTime().IsZero())
}

func TestRecordAggregate(t *testing.T) {
	end1 := time.Date(2026, 1, 30, 10, 0, 0, 0, time.UTC)
	end2 := time.Date(2026, 1, 30, 11, 0, 0, 0, time.UTC)

	tests := map[string]struct {
		children    []childSpec
		expStatus   progress.Status
		expPercent  int
		expSubtitle string
		expErrMsg   string
		expEndTime  time.Time
	}{
		"A running child and a pending child should run with the weighted percent and the running subtitle": {
			children: []childSpec{
				{status: progress.StatusRunning, percent: 50, weight: 100, subtitle: "loading"},
				{status: progress.StatusPending, percent: -1, weight: 100},
			},
			expStatus:   progress.StatusRunning,
			expPercent:  25,
			expSubtitle: "loading",
		},

		"A failed child should fail the parent with the first failed child error": {
			children: []childSpec{
				{status: progress.StatusSucceeded, percent: 100, weight: 50},
				{status: progress.StatusFailed, percent: 10, weight: 50, errMsg: "quota exceeded"},
				{status: progress.StatusSucceeded, percent: 100, weight: 50},
			},
			expStatus:  progress.StatusFailed,
			expPercent: 0,
			expErrMsg:  "quota exceeded",
		},

		"Only the first failed child error should be adopted": {
			children: []childSpec{
				{status: progress.StatusFailed, weight: 100, errMsg: "first"},
				{status: progress.StatusFailed, weight: 100, errMsg: "second"},
			},
			expStatus:  progress.StatusFailed,
			expPercent: 0,
			expErrMsg:  "first",
		},

		"All succeeded children should succeed the parent with the latest end time": {
			children: []childSpec{
				{status: progress.StatusSucceeded, percent: 100, weight: 100, subtitle: "done", endTime: end2},
				{status: progress.StatusSucceeded, percent: 100, weight: 30, endTime: end1},
			},
			expStatus:  progress.StatusSucceeded,
			expPercent: 100,
			expEndTime: end2,
		},

		"All pending children should keep the parent pending": {
			children: []childSpec{
				{status: progress.StatusPending, percent: -1, weight: 100},
				{status: progress.StatusPending, percent: -1, weight: 100},
			},
			expStatus:  progress.StatusPending,
			expPercent: 0,
		},

		"The last running child subtitle should win": {
			children: []childSpec{
				{status: progress.StatusRunning, percent: 10, weight: 100, subtitle: "first"},
				{status: progress.StatusSucceeded, percent: 100, weight: 100, subtitle: "ignored"},
				{status: progress.StatusRunning, percent: 40, weight: 100, subtitle: "last"},
			},
			expStatus:   progress.StatusRunning,
			expPercent:  50,
			expSubtitle: "last",
		},

		"The percent should be rounded": {
			children: []childSpec{
				{status: progress.StatusRunning, percent: 1, weight: 100},
				{status: progress.StatusPending, percent: 0, weight: 100},
				{status: progress.StatusPending, percent: 0, weight: 100},
			},
			expStatus:  progress.StatusRunning,
			expPercent: 0,
		},

		"Weights should be honored on the percent": {
			children: []childSpec{
				{status: progress.StatusSucceeded, percent: 100, weight: 300},
				{status: progress.StatusRunning, percent: 0, weight: 100},
			},
			expStatus:  progress.StatusRunning,
			expPercent: 75,
		},

		"Zero total weight should be a zero percent": {
			children: []childSpec{
				{status: progress.StatusRunning, percent: 50, weight: 0},
			},
			expStatus:  progress.StatusRunning,
			expPercent: 0,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			parent := newParent(test.children)

			assert.Equal(test.expStatus, parent.Status())
			assert.Equal(test.expPercent, parent.Percent())
			assert.Equal(test.expSubtitle, parent.Subtitle())
			assert.Equal(test.expErrMsg, parent.ErrorMessage())
			if !test.expEndTime.IsZero() {
				assert.Equal(test.expEndTime, parent.EndTime())
			}
			assert.Len(parent.Children(), len(test.children))
		})
	}
}

func TestRecordAggregateWeightedPercentProperty(t *testing.T) {
	assert := assert.New(t)

	percents := []int{0, 7, 33, 50, 66, 99, 100}
	weights := []int{1, 13, 50, 100, 250}

	for _, p1 := range percents {
		for _, p2 := range percents {
			for _, w1 := range weights {
				for _, w2 := range weights {
					parent := progress.New("parent")
					parent.AttachChild(newChild("a", childSpec{status: progress.StatusRunning, percent: p1, weight: w1}))
					parent.AttachChild(newChild("b", childSpec{status: progress.StatusRunning, percent: p2, weight: w2}))

					exp := (2*(p1*w1+p2*w2) + (w1 + w2)) / (2 * (w1 + w2))
					assert.Equal(exp, parent.Percent(), "p1=%d w1=%d p2=%d w2=%d", p1, w1, p2, w2)
				}
			}
		}
	}
}

func TestRecordAggregateTerminalIsFixedPoint(t *testing.T) {
	tests := map[string]struct {
		children  []childSpec
		expStatus progress.Status
	}{
		"A succeeded parent should stay succeeded": {
			children: []childSpec{
				{status: progress.StatusSucceeded, percent: 100, weight: 100},
			},
			expStatus: progress.StatusSucceeded,
		},

		"A failed parent should stay failed": {
			children: []childSpec{
				{status: progress.StatusRunning, percent: 100, weight: 100},
				{status: progress.StatusFailed, weight: 100, errMsg: "boom"},
			},
			expStatus: progress.StatusFailed,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			parent := newParent(test.children)
			assert.True(parent.IsComplete())

			for range 3 {
				parent.Aggregate()
				assert.Equal(test.expStatus, parent.Status())
				assert.True(parent.IsComplete())
			}
		})
	}
}

func TestRecordFailedIsStickyOnChildUpdate(t *testing.T) {
	assert := assert.New(t)

	child := newChild("a", childSpec{status: progress.StatusFailed, weight: 100, errMsg: "boom"})
	parent := progress.New("parent")
	parent.AttachChild(child)
	assert.True(parent.HasFailed())

	// The failing child recovers, the parent must not.
	parent.Children()[0].Succeed()
	parent.Aggregate()

	assert.True(parent.HasFailed())
	assert.Equal("boom", parent.ErrorMessage())
}

func TestRecordAttachChildToCompleteRecord(t *testing.T) {
	tests := map[string]struct {
		child      *progress.Record
		expStatus  progress.Status
		expPercent int
		expErrMsg  string
	}{
		"A pending child should not reopen a succeeded record.": {
			child:      progress.New("b"),
			expStatus:  progress.StatusSucceeded,
			expPercent: 100,
		},

		"A running child should not reopen a succeeded record.": {
			child:      progress.Running("b", "second"),
			expStatus:  progress.StatusSucceeded,
			expPercent: 100,
		},

		"A failed child should fail a succeeded record.": {
			child:      progress.Failed("b", "second", "boom"),
			expStatus:  progress.StatusFailed,
			expPercent: 100,
			expErrMsg:  "boom",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			parent := progress.New("parent")
			parent.AttachChild(progress.Succeeded("a", "first"))
			assert.True(parent.HasSucceeded())

			parent.AttachChild(test.child)
			assert.Len(parent.Children(), 2)
			assert.Equal(test.expStatus, parent.Status())
			assert.Equal(test.expPercent, parent.Percent())
			assert.Equal(test.expErrMsg, parent.ErrorMessage())
		})
	}
}

func TestRecordReplaceChild(t *testing.T) {
	assert := assert.New(t)

	parent := progress.Running("parent", "ACTIVATE 2 resources")
	parent.AttachChild(progress.New("a"))
	parent.AttachChild(progress.New("b"))
	assert.True(parent.IsRunning())
	assert.Equal(0, parent.Percent())

	parent.ReplaceChild(0, progress.Succeeded("a2", "first"))
	assert.True(parent.IsRunning())
	assert.Equal(50, parent.Percent())
	assert.Equal("a2", parent.Children()[0].ID())

	// Out of range positions are ignored.
	parent.ReplaceChild(2, progress.Failed("c", "third", "boom"))
	assert.Len(parent.Children(), 2)
	assert.True(parent.IsRunning())

	parent.ReplaceChild(1, progress.Succeeded("b2", "second"))
	assert.True(parent.HasSucceeded())
	assert.Equal(100, parent.Percent())
}

func TestRecordPercentIsClamped(t *testing.T) {
	tests := map[string]struct {
		percent    int
		expPercent int
	}{
		"Negative percents should be unknown": {percent: -20, expPercent: -1},
		"Percents over 100 should be 100":     {percent: 150, expPercent: 100},
		"Percents in range should be kept":    {percent: 42, expPercent: 42},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			r := progress.New("r")
			r.SetPercent(test.percent)
			assert.Equal(t, test.expPercent, r.Percent())
		})
	}
}

func TestRecordLastUpdateIsMonotonic(t *testing.T) {
	assert := assert.New(t)

	r := progress.New("r")
	last := r.LastUpdate()
	mutations := []func(){
		func() { r.SetTitle("t") },
		func() { r.SetSubtitle("s") },
		func() { r.SetStatus(progress.StatusRunning) },
		func() { r.SetPercent(10) },
		func() { r.AttachChild(progress.New("c")) },
		func() { r.SetPayload("k", "v") },
		func() { r.Succeed() },
	}
	for _, m := range mutations {
		m()
		assert.False(r.LastUpdate().Before(last))
		last = r.LastUpdate()
	}
}

func TestRecordConstructors(t *testing.T) {
	assert := assert.New(t)

	ok := progress.Succeeded("a", "all good")
	assert.True(ok.HasSucceeded())
	assert.Equal(100, ok.Percent())
	assert.Equal("all good", ok.Title())
	assert.False(ok.EndTime().IsZero())

	ko := progress.Failed("b", "bad", "boom")
	assert.True(ko.HasFailed())
	assert.Equal("boom", ko.ErrorMessage())

	run := progress.Running("c", "working")
	assert.True(run.IsRunning())
	assert.False(run.IsComplete())
}

func TestRecordClone(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	child := progress.Running("child", "child")
	child.SetPayload("job", "42")
	parent := progress.New("parent")
	parent.SetPayload("provider", "fake")
	parent.AttachChild(child)

	clone := parent.Clone()
	require.Len(clone.Children(), 1)

	// Mutating the original must not leak into the clone.
	child.SetPayload("job", "43")
	child.Fail("boom")
	parent.SetPayload("provider", "other")

	cloneChild := clone.Children()[0]
	job, _ := cloneChild.Payload("job")
	assert.Equal("42", job)
	assert.True(cloneChild.IsRunning())
	provider, _ := clone.Payload("provider")
	assert.Equal("fake", provider)
	assert.NotSame(parent.Children()[0], cloneChild)
}

func TestRecordJSON(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	parent := progress.New("parent")
	parent.SetTitle("Activating")
	parent.SetSuggestedTimeout(20 * time.Minute)
	child := progress.Failed("child", "Creating database", "quota exceeded")
	child.SetPayload("job", "7")
	parent.AttachChild(child)

	data, err := json.Marshal(parent)
	require.NoError(err)

	var got progress.Record
	require.NoError(json.Unmarshal(data, &got))

	assert.Equal("parent", got.ID())
	assert.Equal(progress.StatusFailed, got.Status())
	assert.Equal("quota exceeded", got.ErrorMessage())
	assert.Equal(20*time.Minute, got.SuggestedTimeout())
	require.Len(got.Children(), 1)
	job, ok := got.Children()[0].Payload("job")
	assert.True(ok)
	assert.Equal("7", job)
	assert.True(got.EndTime().IsZero())
}

func TestRecordJSONInvalid(t *testing.T) {
	tests := map[string]struct {
		data string
	}{
		"An unknown status should fail.": {
			data: `{"id":"a","status":"TRANSIENT"}`,
		},

		"A null child should fail.": {
			data: `{"id":"a","status":"RUNNING","children":[null]}`,
		},

		"A null nested child should fail.": {
			data: `{"id":"a","status":"RUNNING","children":[{"id":"b","status":"PENDING","children":[null]}]}`,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			var r progress.Record
			err := json.Unmarshal([]byte(test.data), &r)
			assert.Error(t, err)
		})
	}
}

func TestRecordDisplay(t *testing.T) {
	tests := map[string]struct {
		record   func() *progress.Record
		expLines string
	}{
		"A pending record with unknown percent": {
			record: func() *progress.Record {
				r := progress.New("a")
				r.SetTitle("Creating space")
				return r
			},
			expLines: " -  ] (---) Creating space\n",
		},

		"A tree with running, succeeded and failed records": {
			record: func() *progress.Record {
				app := progress.Running("c1", "App")
				app.SetPercent(5)
				app.SetSubtitle("starting")
				route := progress.Succeeded("c2", "Route")
				db := progress.Failed("c3", "Database", "quota exceeded")
				db.SetPercent(0)
				r := progress.New("p")
				r.SetTitle("Env")
				r.AttachChild(app)
				r.AttachChild(route)
				r.AttachChild(db)
				return r
			},
			expLines: "" +
				"053%] (*KO) Env : starting ** quota exceeded\n" +
				"   005%] (RUN) App : starting\n" +
				"   100%] (+OK) Route\n" +
				"   000%] (*KO) Database ** quota exceeded\n",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			err := test.record().Display(&buf)
			require.NoError(t, err)
			assert.Equal(t, test.expLines, buf.String())
		})
	}
}
