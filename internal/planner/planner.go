// Package planner owns one user's planning session: the selected courses,
// the checked classes of every group and the events on display.
//
// All state transitions of a Planner are serialized by its mutex. Remote
// catalog queries run outside the lock; their results are re-validated
// against the selection's generation token before they are committed.
package planner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"courseplan/internal/catalog"
	"courseplan/internal/events"
	"courseplan/internal/group"
	appLog "courseplan/internal/log"
	"courseplan/internal/model"
	"courseplan/internal/selection"
)

var (
	ErrUnknownCourse = errors.New("course is not selected")
	ErrUnknownClass  = errors.New("class is not offered by the course")
	ErrUnknownGroup  = errors.New("group does not exist")
	// ErrStaleSelection is returned when a course was removed or re-added
	// while its class list was being fetched.
	ErrStaleSelection = errors.New("selection changed while fetching")
	// ErrClassTaken is returned when a class is already checked under
	// another selected course.
	ErrClassTaken = errors.New("class is checked under another course")
)

// Catalog is the subset of the catalog client the planner needs.
type Catalog interface {
	SearchCourses(ctx context.Context, p catalog.SearchParams) ([]model.CourseSummary, error)
	ClassList(ctx context.Context, course model.CourseInfo) ([]model.ClassGroup, error)
}

// Recorder receives planner action outcomes.
type Recorder interface {
	RecordCourseAction(action, outcome string)
	RecordClassAction(action, outcome string)
	RecordStaleFetch()
}

// CalendarSettings are the static widget flags returned with the events.
type CalendarSettings struct {
	Editable        bool `json:"editable"`
	Selectable      bool `json:"selectable"`
	WeekendsVisible bool `json:"weekendsVisible"`
}

// CalendarView is the payload of the calendar widget.
type CalendarView struct {
	Events []model.CalendarEvent `json:"events"`
	CalendarSettings
}

// ClassView is one class option with its checkbox state.
type ClassView struct {
	model.ClassOption
	Checked bool `json:"checked"`
}

// GroupView is one group with its derived group box.
type GroupView struct {
	Index   int           `json:"index"`
	Type    string        `json:"type"`
	Display group.Display `json:"display"`
	Locked  bool          `json:"locked"`
	Count   int           `json:"count"`
	Classes []ClassView   `json:"classes"`
}

// CourseView is one course card.
type CourseView struct {
	ParentID model.ID         `json:"parentId"`
	Course   model.CourseInfo `json:"course"`
	// Loading is set while the class list is still being fetched.
	Loading bool        `json:"loading"`
	Groups  []GroupView `json:"groups"`
}

// ClassRef names one class option of a selected course.
type ClassRef struct {
	Course model.ID `json:"course"`
	Class  model.ID `json:"class"`
}

// SkippedClass is a ClassRef that Import could not check.
type SkippedClass struct {
	ClassRef
	Error string `json:"error"`
}

// ImportResult reports what Import did.
type ImportResult struct {
	Checked []ClassRef     `json:"checked"`
	Skipped []SkippedClass `json:"skipped"`
}

// Options configures a Planner. Catalog and Cache are required.
type Options struct {
	Catalog    Catalog
	Cache      *catalog.Cache
	Translator events.Translator
	Calendar   CalendarSettings
	Metrics    Recorder
}

// Planner is the controller of one session.
type Planner struct {
	catalog    Catalog
	cache      *catalog.Cache
	translator events.Translator
	calendar   CalendarSettings
	metrics    Recorder

	mu         sync.Mutex
	store      *selection.Store
	groups     map[model.ID][]*group.Reconciler
	pending    map[model.ID]uint64
	projection *events.Projection
}

// New creates an empty planner.
func New(opts Options) *Planner {
	return &Planner{
		catalog:    opts.Catalog,
		cache:      opts.Cache,
		translator: opts.Translator,
		calendar:   opts.Calendar,
		metrics:    opts.Metrics,
		store:      selection.New(),
		groups:     make(map[model.ID][]*group.Reconciler),
		pending:    make(map[model.ID]uint64),
		projection: events.NewProjection(),
	}
}

// Search queries the catalog. It touches no session state.
func (p *Planner) Search(ctx context.Context, params catalog.SearchParams) ([]model.CourseSummary, error) {
	courses, err := p.catalog.SearchCourses(ctx, params)
	if err != nil {
		appLog.Error("course search failed", err, "subject", params.Subject, "title", params.Title)
		return []model.CourseSummary{}, err
	}
	appLog.Debug("course search", "subject", params.Subject, "title", params.Title, "results", len(courses))
	return courses, nil
}

// AddCourse selects a course and reports whether it was added. Selecting a
// course that is already selected changes nothing. A cached class list is
// reused as is; otherwise the course is added with no groups and filled in
// when the fetch completes.
func (p *Planner) AddCourse(ctx context.Context, summary model.CourseSummary) (model.SelectionRecord, bool, error) {
	id := summary.ClassNumber
	if id == "" {
		return model.SelectionRecord{}, false, fmt.Errorf("%w: missing class number", ErrUnknownCourse)
	}

	p.mu.Lock()
	if rec, ok := p.store.Get(id); ok {
		p.mu.Unlock()
		p.record("add", "duplicate")
		return rec, false, nil
	}
	if rec, ok := p.cache.Lookup(id); ok {
		p.store.Add(rec)
		p.attachGroups(id, rec.Groups)
		p.mu.Unlock()
		appLog.Info("course added", "id", id, "source", "cache", "groups", len(rec.Groups))
		p.record("add", "cache")
		return rec, true, nil
	}
	token, _ := p.store.Add(model.SelectionRecord{ParentID: id, Course: summary.Course, Groups: []model.ClassGroup{}})
	p.pending[id] = token
	p.mu.Unlock()

	rec, fromCache, err := p.cache.Load(ctx, id, func(ctx context.Context) (model.SelectionRecord, error) {
		groups, err := p.catalog.ClassList(ctx, summary.Course)
		if err != nil {
			return model.SelectionRecord{}, err
		}
		return model.SelectionRecord{ParentID: id, Course: summary.Course, Groups: groups}, nil
	})

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pending[id] == token {
		delete(p.pending, id)
	}
	if err != nil {
		// Drop the placeholder unless it was already replaced.
		if cur, ok := p.store.Token(id); ok && cur == token {
			p.store.Remove(id)
		}
		appLog.Error("course add failed", err, "id", id)
		p.record("add", "error")
		return model.SelectionRecord{}, false, err
	}
	if err := p.store.SetGroups(id, token, rec.Groups); err != nil {
		appLog.Warn("discarding stale class list", "id", id)
		if p.metrics != nil {
			p.metrics.RecordStaleFetch()
		}
		p.record("add", "stale")
		return model.SelectionRecord{}, false, fmt.Errorf("%w: course %s", ErrStaleSelection, id)
	}
	p.attachGroups(id, rec.Groups)

	source := "catalog"
	if fromCache {
		source = "cache"
	}
	appLog.Info("course added", "id", id, "source", source, "groups", len(rec.Groups))
	p.record("add", source)

	out, _ := p.store.Get(id)
	return out, true, nil
}

// RemoveCourse removes a course together with all of its checked classes
// and displayed events.
func (p *Planner) RemoveCourse(id model.ID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.store.Remove(id) {
		p.record("remove", "unknown")
		return false
	}
	for _, rc := range p.groups[id] {
		rc.Reset()
	}
	delete(p.groups, id)
	delete(p.pending, id)
	n := p.projection.RemoveGroup(id)

	appLog.Info("course removed", "id", id, "events_removed", n)
	p.record("remove", "ok")
	return true
}

// CheckClass checks one class option and returns the events it added. A
// class that is already checked is left alone and yields no events. A class
// shown under several courses can be checked under one of them at a time.
// If any meeting cannot be translated nothing changes.
func (p *Planner) CheckClass(parentID, classID model.ID) ([]model.CalendarEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, rc, opt, err := p.locate(parentID, classID)
	if err != nil {
		p.recordClass("check", "unknown")
		return nil, err
	}
	if rc.Checked(classID) {
		p.recordClass("check", "noop")
		return nil, nil
	}
	if owner, ok := p.checkedElsewhere(parentID, classID); ok {
		p.recordClass("check", "conflict")
		return nil, fmt.Errorf("%w: class %s is checked under course %s", ErrClassTaken, classID, owner)
	}

	evs, err := p.translator.Translate(parentID, rec.Course, opt)
	if err != nil {
		appLog.Error("class check rejected", err, "course", parentID, "class", classID)
		p.recordClass("check", "invalid")
		return nil, err
	}
	rc.ChildChecked(classID)
	p.projection.Append(evs...)

	appLog.Debug("class checked", "course", parentID, "class", classID, "events", len(evs))
	p.recordClass("check", "ok")
	return evs, nil
}

// UncheckClass unchecks one class option and returns how many events were
// removed.
func (p *Planner) UncheckClass(parentID, classID model.ID) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, rc, _, err := p.locate(parentID, classID)
	if err != nil {
		p.recordClass("uncheck", "unknown")
		return 0, err
	}
	if !rc.ChildUnchecked(classID) {
		p.recordClass("uncheck", "noop")
		return 0, nil
	}
	n := p.projection.RemoveClass(parentID, classID)

	appLog.Debug("class unchecked", "course", parentID, "class", classID, "events", n)
	p.recordClass("uncheck", "ok")
	return n, nil
}

// ClearGroup forces one group back to unchecked and returns the classes
// that were unchecked by it.
func (p *Planner) ClearGroup(parentID model.ID, index int) ([]model.ID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.store.Has(parentID) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCourse, parentID)
	}
	rcs := p.groups[parentID]
	if index < 0 || index >= len(rcs) {
		return nil, fmt.Errorf("%w: course %s group %d", ErrUnknownGroup, parentID, index)
	}

	ids := rcs[index].Reset()
	for _, id := range ids {
		p.projection.RemoveClass(parentID, id)
	}
	appLog.Debug("group cleared", "course", parentID, "group", index, "classes", len(ids))
	p.recordClass("clear", "ok")
	return ids, nil
}

// Import checks every class in refs, in order, skipping duplicates. Each
// class is checked on its own: a class that fails is reported in Skipped
// and does not undo the others.
func (p *Planner) Import(refs []ClassRef) ImportResult {
	res := ImportResult{Checked: []ClassRef{}, Skipped: []SkippedClass{}}
	seen := make(map[ClassRef]struct{}, len(refs))
	for _, ref := range refs {
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		if _, err := p.CheckClass(ref.Course, ref.Class); err != nil {
			res.Skipped = append(res.Skipped, SkippedClass{ClassRef: ref, Error: err.Error()})
			continue
		}
		res.Checked = append(res.Checked, ref)
	}
	appLog.Info("classes imported", "checked", len(res.Checked), "skipped", len(res.Skipped))
	return res
}

// Courses returns the course cards in selection order.
func (p *Planner) Courses() []CourseView {
	p.mu.Lock()
	defer p.mu.Unlock()

	recs := p.store.List()
	out := make([]CourseView, 0, len(recs))
	for _, rec := range recs {
		_, loading := p.pending[rec.ParentID]
		cv := CourseView{
			ParentID: rec.ParentID,
			Course:   rec.Course,
			Loading:  loading,
			Groups:   make([]GroupView, 0, len(rec.Groups)),
		}
		rcs := p.groups[rec.ParentID]
		for gi, g := range rec.Groups {
			rc := rcs[gi]
			gv := GroupView{
				Index:   gi,
				Type:    g.Type,
				Display: rc.Display(),
				Locked:  rc.Locked(),
				Count:   rc.Count(),
				Classes: make([]ClassView, 0, len(g.Classes)),
			}
			for _, c := range g.Classes {
				gv.Classes = append(gv.Classes, ClassView{ClassOption: c, Checked: rc.Checked(c.ClassNumber)})
			}
			cv.Groups = append(cv.Groups, gv)
		}
		out = append(out, cv)
	}
	return out
}

// Events returns the displayed events.
func (p *Planner) Events() []model.CalendarEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.projection.Events()
}

// Calendar returns the calendar widget payload.
func (p *Planner) Calendar() CalendarView {
	return CalendarView{Events: p.Events(), CalendarSettings: p.calendar}
}

// locate resolves a class of a selected course. Callers hold p.mu.
func (p *Planner) locate(parentID, classID model.ID) (model.SelectionRecord, *group.Reconciler, model.ClassOption, error) {
	rec, ok := p.store.Get(parentID)
	if !ok {
		return rec, nil, model.ClassOption{}, fmt.Errorf("%w: %s", ErrUnknownCourse, parentID)
	}
	gi, opt, ok := rec.FindClass(classID)
	if !ok {
		return rec, nil, opt, fmt.Errorf("%w: course %s class %s", ErrUnknownClass, parentID, classID)
	}
	return rec, p.groups[parentID][gi], opt, nil
}

// checkedElsewhere reports the other course, if any, under which classID is
// checked. Callers hold p.mu.
func (p *Planner) checkedElsewhere(parentID, classID model.ID) (model.ID, bool) {
	for pid, rcs := range p.groups {
		if pid == parentID {
			continue
		}
		for _, rc := range rcs {
			if rc.Checked(classID) {
				return pid, true
			}
		}
	}
	return "", false
}

func (p *Planner) attachGroups(id model.ID, groups []model.ClassGroup) {
	rcs := make([]*group.Reconciler, len(groups))
	for i, g := range groups {
		rcs[i] = group.New(len(g.Classes))
	}
	p.groups[id] = rcs
}

func (p *Planner) record(action, outcome string) {
	if p.metrics != nil {
		p.metrics.RecordCourseAction(action, outcome)
	}
}

func (p *Planner) recordClass(action, outcome string) {
	if p.metrics != nil {
		p.metrics.RecordClassAction(action, outcome)
	}
}
