package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	appLog "courseplan/internal/log"
	"courseplan/internal/model"
)

// System query targets understood by the course-planner endpoint.
const (
	TargetCourseSearch = "/system/COURSE_SEARCH/queryx"
	TargetClassList    = "/system/COURSE_CLASS_LIST/queryx"
	TargetTerms        = "/system/TERMS/queryx"
	TargetSubjects     = "/system/SUBJECTS_BY_YEAR/queryx"
	TargetCampuses     = "/system/CAMPUS/queryx"
	TargetCareers      = "/system/CSP_ACAD_CAREER/queryx"
)

const (
	defaultTimeout    = 15 * time.Second
	defaultRetryDelay = 500 * time.Millisecond
	maxBodyBytes      = 8 << 20
)

// Recorder receives one observation per remote query.
type Recorder interface {
	RecordCatalogRequest(target, status string, seconds float64)
}

// Options configures a Client.
type Options struct {
	URL        string
	Virtual    string
	Year       int
	PageSize   int
	Session    int
	Timeout    time.Duration
	MaxRetries int
	// RetryDelay is the first backoff step; zero uses 500ms.
	RetryDelay time.Duration
	HTTPClient *http.Client
	Metrics    Recorder
}

// Client queries the remote course-planner API.
type Client struct {
	endpoint   string
	virtual    string
	year       int
	pageSize   int
	session    int
	maxRetries int
	retryDelay time.Duration
	http       *http.Client
	metrics    Recorder
}

// SearchParams selects courses. At least one field other than the page
// settings must be set.
type SearchParams struct {
	Subject       string
	Title         string
	CatalogNumber string
	ClassNumber   string
	Term          string
	Career        string
	Campus        string
	Page          int
	PageSize      int
}

// Term is one row of the TERMS target.
type Term struct {
	ID          model.ID `json:"id"`
	Description string   `json:"description"`
	Year        model.ID `json:"year"`
	Current     string   `json:"current"`
}

// Subject is one row of the SUBJECTS_BY_YEAR target.
type Subject struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Campus is one row of the CAMPUS target.
type Campus struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Career is one academic career, such as UGRD.
type Career struct {
	Value string `json:"value"`
	Name  string `json:"name"`
}

// NewClient creates a catalog client.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 10
	}
	if opts.Session <= 0 {
		opts.Session = 1
	}
	if opts.Virtual == "" {
		opts.Virtual = "Y"
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		endpoint:   opts.URL,
		virtual:    opts.Virtual,
		year:       opts.Year,
		pageSize:   opts.PageSize,
		session:    opts.Session,
		maxRetries: max(opts.MaxRetries, 0),
		retryDelay: opts.RetryDelay,
		http:       hc,
		metrics:    opts.Metrics,
	}
}

type searchRow struct {
	Subject     string   `json:"SUBJECT"`
	CatalogNbr  model.ID `json:"CATALOG_NBR"`
	ClassNbr    model.ID `json:"CLASS_NBR"`
	CourseTitle string   `json:"COURSE_TITLE"`
	CourseID    model.ID `json:"COURSE_ID"`
	OfferNbr    model.ID `json:"COURSE_OFFER_NBR"`
	Term        model.ID `json:"TERM"`
	Year        model.ID `json:"YEAR"`
	Campus      string   `json:"CAMPUS"`
	Units       model.ID `json:"UNITS"`
	Career      string   `json:"ACAD_CAREER"`
}

type termRow struct {
	Term    model.ID `json:"TERM"`
	Descr   string   `json:"DESCR"`
	Year    model.ID `json:"ACAD_YEAR"`
	Current any      `json:"CURRENT"`
}

type subjectRow struct {
	Subject string `json:"SUBJECT"`
	Descr   string `json:"DESCR"`
}

type campusRow struct {
	Campus string `json:"CAMPUS"`
	Descr  string `json:"DESCR"`
}

type careerRow struct {
	Value string `json:"FIELDVALUE"`
	Name  string `json:"XLATLONGNAME"`
}

// envelope is the common response shape:
//
//	{"status":"success","data":{"query":{"rows":[...],"total_rows":N}}}
//
// Class lists carry "groups" either under data.query or directly under data.
type envelope struct {
	Status string `json:"status"`
	Data   struct {
		Query struct {
			Rows      json.RawMessage `json:"rows"`
			Groups    json.RawMessage `json:"groups"`
			TotalRows int             `json:"total_rows"`
		} `json:"query"`
		Groups json.RawMessage `json:"groups"`
	} `json:"data"`
}

// SearchCourses runs a COURSE_SEARCH query.
func (c *Client) SearchCourses(ctx context.Context, p SearchParams) ([]model.CourseSummary, error) {
	// A Caser is stateful, so one per call.
	upper := cases.Upper(language.Und)
	filters := []struct{ key, value string }{
		{"subject", upper.String(strings.TrimSpace(p.Subject))},
		{"course_title", strings.TrimSpace(p.Title)},
		{"catalogue_number", strings.TrimSpace(p.CatalogNumber)},
		{"class_number", strings.TrimSpace(p.ClassNumber)},
		{"term", strings.TrimSpace(p.Term)},
		{"academic_career", upper.String(strings.TrimSpace(p.Career))},
		{"campus", strings.TrimSpace(p.Campus)},
	}
	page := p.Page
	if page <= 0 {
		page = 1
	}
	size := p.PageSize
	if size <= 0 {
		size = c.pageSize
	}

	params := url.Values{}
	for _, f := range filters {
		if f.value != "" {
			params.Set(f.key, f.value)
		}
	}
	if len(params) == 0 {
		return nil, ErrInvalidQuery
	}
	params.Set("virtual", c.virtual)
	params.Set("year", strconv.Itoa(c.year))
	params.Set("pagenbr", strconv.Itoa(page))
	params.Set("pagesize", strconv.Itoa(size))

	rows, err := queryRows[searchRow](ctx, c, TargetCourseSearch, params)
	if err != nil {
		return nil, err
	}

	out := make([]model.CourseSummary, 0, len(rows))
	for _, r := range rows {
		if r.ClassNbr == "" {
			continue
		}
		offer := r.OfferNbr.String()
		if offer == "" {
			offer = "1"
		}
		out = append(out, model.CourseSummary{
			ClassNumber: r.ClassNbr,
			Course: model.CourseInfo{
				Subject:       r.Subject,
				CatalogNumber: r.CatalogNbr.String(),
				Title:         r.CourseTitle,
				CourseID:      r.CourseID.String(),
				Term:          r.Term.String(),
				OfferNumber:   offer,
			},
			Year:   r.Year.String(),
			Campus: r.Campus,
			Units:  r.Units.String(),
			Career: r.Career,
		})
	}
	return out, nil
}

// ClassList runs a COURSE_CLASS_LIST query for one course offering.
func (c *Client) ClassList(ctx context.Context, course model.CourseInfo) ([]model.ClassGroup, error) {
	if course.CourseID == "" || course.Term == "" {
		return nil, fmt.Errorf("%w: course id and term are required", ErrInvalidQuery)
	}
	offer := course.OfferNumber
	if offer == "" {
		offer = "1"
	}

	params := url.Values{}
	params.Set("virtual", c.virtual)
	params.Set("offer", offer)
	params.Set("crseid", course.CourseID)
	params.Set("term", course.Term)
	params.Set("session", strconv.Itoa(c.session))

	env, err := c.query(ctx, TargetClassList, params)
	if err != nil {
		return nil, err
	}
	raw := env.Data.Query.Groups
	if len(raw) == 0 {
		raw = env.Data.Groups
	}
	var groups []model.ClassGroup
	if err := decodeRaw(raw, &groups); err != nil {
		return nil, &QueryError{Target: TargetClassList, Err: fmt.Errorf("%w: %v", ErrBadResponse, err)}
	}
	if groups == nil {
		groups = []model.ClassGroup{}
	}
	return groups, nil
}

// Terms lists the terms of the configured academic year.
func (c *Client) Terms(ctx context.Context) ([]Term, error) {
	rows, err := queryRows[termRow](ctx, c, TargetTerms, c.yearParams())
	if err != nil {
		return nil, err
	}
	out := make([]Term, 0, len(rows))
	for _, r := range rows {
		out = append(out, Term{ID: r.Term, Description: r.Descr, Year: r.Year, Current: flag(r.Current)})
	}
	return out, nil
}

// Subjects lists the subject areas of the configured academic year.
func (c *Client) Subjects(ctx context.Context) ([]Subject, error) {
	rows, err := queryRows[subjectRow](ctx, c, TargetSubjects, c.yearParams())
	if err != nil {
		return nil, err
	}
	out := make([]Subject, 0, len(rows))
	for _, r := range rows {
		out = append(out, Subject{Name: r.Subject, Description: r.Descr})
	}
	return out, nil
}

// Campuses lists every campus.
func (c *Client) Campuses(ctx context.Context) ([]Campus, error) {
	rows, err := queryRows[campusRow](ctx, c, TargetCampuses, url.Values{"MaxRows": {"9999"}})
	if err != nil {
		return nil, err
	}
	out := make([]Campus, 0, len(rows))
	for _, r := range rows {
		out = append(out, Campus{Name: r.Campus, Description: r.Descr})
	}
	return out, nil
}

// Careers lists the academic careers.
func (c *Client) Careers(ctx context.Context) ([]Career, error) {
	rows, err := queryRows[careerRow](ctx, c, TargetCareers, url.Values{"MaxRows": {"9999"}})
	if err != nil {
		return nil, err
	}
	out := make([]Career, 0, len(rows))
	for _, r := range rows {
		out = append(out, Career{Value: r.Value, Name: r.Name})
	}
	return out, nil
}

// queryRows runs a query and decodes data.query.rows into T.
func queryRows[T any](ctx context.Context, c *Client, target string, params url.Values) ([]T, error) {
	env, err := c.query(ctx, target, params)
	if err != nil {
		return nil, err
	}
	var rows []T
	if err := decodeRaw(env.Data.Query.Rows, &rows); err != nil {
		return nil, &QueryError{Target: target, Err: fmt.Errorf("%w: %v", ErrBadResponse, err)}
	}
	return rows, nil
}

func (c *Client) yearParams() url.Values {
	params := url.Values{}
	params.Set("virtual", c.virtual)
	params.Set("year_from", strconv.Itoa(c.year))
	params.Set("year_to", strconv.Itoa(c.year))
	params.Set("MaxRows", "9999")
	return params
}

// query performs one GET against the endpoint with retries and decodes the
// response envelope.
func (c *Client) query(ctx context.Context, target string, params url.Values) (envelope, error) {
	var env envelope

	u, err := url.Parse(c.endpoint)
	if err != nil {
		return env, &QueryError{Target: target, Err: fmt.Errorf("%w: bad endpoint: %v", ErrNetwork, err)}
	}
	q := u.Query()
	q.Set("target", target)
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()

	start := time.Now()
	var body []byte
	err = RetryWithBackoff(ctx, c.maxRetries, c.retryDelay, func() error {
		b, status, err := c.get(ctx, u.String())
		if err != nil {
			return &QueryError{Target: target, Err: fmt.Errorf("%w: %v", ErrNetwork, err)}
		}
		if status < 200 || status >= 300 {
			qe := &QueryError{Target: target, StatusCode: status, Err: fmt.Errorf("%w: %s", ErrNetwork, http.StatusText(status))}
			// 429 and 5xx are worth another attempt.
			if status == http.StatusTooManyRequests || status >= 500 {
				return qe
			}
			return permanent(qe)
		}
		body = b
		return nil
	})
	if err == nil {
		if derr := json.Unmarshal(body, &env); derr != nil {
			err = &QueryError{Target: target, Err: fmt.Errorf("%w: %v", ErrBadResponse, derr)}
		} else if env.Status != "success" {
			err = &QueryError{Target: target, Err: fmt.Errorf("%w: status %q", ErrBadResponse, env.Status)}
		}
	}
	if err != nil && ctx.Err() != nil && !errors.Is(err, ErrNetwork) {
		err = &QueryError{Target: target, Err: fmt.Errorf("%w: %v", ErrNetwork, err)}
	}

	elapsed := time.Since(start)
	status := "success"
	if err != nil {
		status = "error"
		appLog.Error("catalog query failed", err, "target", target, "elapsed", elapsed)
	} else {
		appLog.Debug("catalog query ok", "target", target, "elapsed", elapsed, "total_rows", env.Data.Query.TotalRows)
	}
	if c.metrics != nil {
		c.metrics.RecordCatalogRequest(targetName(target), status, elapsed.Seconds())
	}
	return env, err
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

// decodeRaw treats an absent array as empty.
func decodeRaw(raw json.RawMessage, out any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// flag renders the CURRENT column, which arrives as "Y", true or 1.
func flag(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// targetName turns "/system/COURSE_SEARCH/queryx" into "COURSE_SEARCH".
func targetName(target string) string {
	parts := strings.Split(strings.Trim(target, "/"), "/")
	if len(parts) >= 2 {
		return parts[1]
	}
	return target
}
