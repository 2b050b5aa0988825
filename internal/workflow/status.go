package workflow

import (
	"github.com/rfpdesk/internal/model"
	"github.com/rfpdesk/internal/records"
)

// TaskInfo describes the running job.
type TaskInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Progress int    `json:"progress"`
	State    string `json:"state"`
}

// Status summarizes the collection and the progress of the three steps.
type Status struct {
	Records   int       `json:"records"`
	Selected  int       `json:"selected"`
	Generated int       `json:"generated"`
	Eligible  int       `json:"eligible"`
	Sent      int       `json:"sent"`
	Steps     Steps     `json:"steps"`
	Active    *TaskInfo `json:"active,omitempty"`
	Last      *Event    `json:"last,omitempty"`
}

type Steps struct {
	Fetched   bool `json:"fetched"`
	Generated bool `json:"generated"`
	Sent      bool `json:"sent"`
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	sent := c.sent
	var last *Event
	if c.last != nil {
		ev := *c.last
		last = &ev
	}
	c.mu.Unlock()

	st := Status{
		Records:   c.records.Len(),
		Selected:  c.records.CountSelected(),
		Generated: c.records.CountGenerated(),
		Eligible:  c.records.CountEligible(),
		Sent:      sent,
		Last:      last,
	}
	st.Steps = Steps{
		Fetched:   st.Records > 0,
		Generated: st.Selected > 0 && st.Generated == st.Selected,
		Sent:      st.Eligible > 0 && sent == st.Eligible,
	}
	if h := c.tasks.Active(); h != nil {
		st.Active = &TaskInfo{ID: h.ID, Name: h.Name, Progress: h.Progress(), State: h.State().String()}
	}
	return st
}

// Page is one page of the collection with its position label values.
type Page struct {
	Index    int                   `json:"index"`
	Count    int                   `json:"count"`
	Capacity int                   `json:"capacity"`
	From     int                   `json:"from"`
	To       int                   `json:"to"`
	Total    int                   `json:"total"`
	Records  []model.RequestRecord `json:"records"`
}

// Page returns page index of the collection, clamped to the valid range.
func (c *Controller) Page(index, capacity int) (Page, error) {
	snapshot := c.records.Snapshot()
	pager, err := records.NewPager(len(snapshot), capacity)
	if err != nil {
		return Page{}, err
	}
	pager.Goto(index)
	from, to, total := pager.Window()

	items := records.Slice(snapshot, pager.Current(), capacity)
	if items == nil {
		items = []model.RequestRecord{}
	}
	return Page{
		Index:    pager.Current(),
		Count:    pager.Pages(),
		Capacity: capacity,
		From:     from,
		To:       to,
		Total:    total,
		Records:  items,
	}, nil
}
