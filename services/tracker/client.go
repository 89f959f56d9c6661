package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/ukaguzi/core"
	"github.com/trezcool/ukaguzi/core/event"
	"github.com/trezcool/ukaguzi/core/inspection"
)

const (
	orgUnitFields = "id,name,geometry,parent[id,name],children[id,name,geometry]"
	meFields      = "id,username,name,email,organisationUnits[id]"
	maxErrBody    = 512
)

var maxEventPages = 1000 // mockable

// Error is returned when the tracker answers with a client error status.
type Error struct {
	Op         string
	StatusCode int
	Message    string
}

func (err *Error) Error() string {
	return fmt.Sprintf("%s: tracker returned %d: %s", err.Op, err.StatusCode, err.Message)
}

// IsRejection reports whether err is a client error returned by the tracker.
func IsRejection(err error) bool {
	var tErr *Error
	return errors.As(err, &tErr)
}

type (
	eventsPage struct {
		Page      int           `json:"page"`
		PageSize  int           `json:"pageSize"`
		PageCount int           `json:"pageCount"`
		Pager     *pager        `json:"pager"` // legacy
		Instances []event.Event `json:"instances"`
		Events    []event.Event `json:"events"` // legacy
	}

	pager struct {
		Page      int `json:"page"`
		PageCount int `json:"pageCount"`
	}

	geometry struct {
		Type        string          `json:"type"`
		Coordinates json.RawMessage `json:"coordinates"`
	}

	orgUnit struct {
		ID       string    `json:"id"`
		Name     string    `json:"name"`
		Geometry *geometry `json:"geometry"`
		Parent   *orgUnit  `json:"parent"`
		Children []orgUnit `json:"children"`
	}

	me struct {
		ID                string `json:"id"`
		Username          string `json:"username"`
		Name              string `json:"name"`
		Email             string `json:"email"`
		OrganisationUnits []struct {
			ID string `json:"id"`
		} `json:"organisationUnits"`
	}

	importReport struct {
		Status       string `json:"status"`
		BundleReport struct {
			TypeReportMap map[string]struct {
				ObjectReports []struct {
					UID string `json:"uid"`
				} `json:"objectReports"`
			} `json:"typeReportMap"`
		} `json:"bundleReport"`
		ValidationReport struct {
			ErrorReports []struct {
				Message string `json:"message"`
			} `json:"errorReports"`
		} `json:"validationReport"`
	}
)

// Client talks to the tracker API with basic auth.
type Client struct {
	base     string
	username string
	password string
	pageSize int
	h        *http.Client
}

var (
	_ inspection.Tracker       = (*Client)(nil)
	_ inspection.Authenticator = (*Client)(nil)
)

func NewClient(conf core.TrackerConfig) *Client {
	pageSize := conf.PageSize
	if pageSize <= 0 {
		pageSize = 500
	}
	return &Client{
		base:     strings.TrimRight(conf.BaseURL, "/"),
		username: conf.Username,
		password: conf.Password,
		pageSize: pageSize,
		h:        &http.Client{Timeout: conf.Timeout},
	}
}

// WithCredentials returns a copy of c authenticating as username.
func (c *Client) WithCredentials(username, password string) *Client {
	cp := *c
	cp.username = username
	cp.password = password
	return &cp
}

func (c *Client) do(ctx context.Context, op, method, path string, q url.Values, body interface{}, out interface{}) error {
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, op)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return errors.Wrap(err, op)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.h.Do(req)
	if err != nil {
		return core.NewTransportError(op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusInternalServerError {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
		return core.NewTransportError(op, &Error{Op: op, StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(b))})
	}
	if resp.StatusCode >= http.StatusBadRequest {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
		tErr := &Error{Op: op, StatusCode: resp.StatusCode, Message: rejectionMessage(b)}
		switch resp.StatusCode {
		case http.StatusNotFound:
			return errors.Wrap(inspection.ErrNotFound, tErr.Error())
		case http.StatusUnauthorized:
			return errors.Wrap(inspection.ErrInvalidCreds, tErr.Error())
		}
		return tErr
	}

	if out == nil {
		return nil
	}
	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "%s: decoding response", op)
	}
	return nil
}

// rejectionMessage extracts the validation messages of an import report, or returns the raw body.
func rejectionMessage(body []byte) string {
	var rep importReport
	if err := json.Unmarshal(body, &rep); err == nil && len(rep.ValidationReport.ErrorReports) > 0 {
		msgs := make([]string, 0, len(rep.ValidationReport.ErrorReports))
		for _, r := range rep.ValidationReport.ErrorReports {
			msgs = append(msgs, r.Message)
		}
		return strings.Join(msgs, "; ")
	}
	return strings.TrimSpace(string(body))
}

func (p eventsPage) pageCount() int {
	if p.PageCount > 0 {
		return p.PageCount
	}
	if p.Pager != nil {
		return p.Pager.PageCount
	}
	return 0
}

func (p eventsPage) page() int {
	if p.Page > 0 {
		return p.Page
	}
	if p.Pager != nil {
		return p.Pager.Page
	}
	return 0
}

// Events fetches every event of orgUnit in program, following pages until the last or a short one.
func (c *Client) Events(ctx context.Context, orgUnit, program string) ([]event.Event, error) {
	var out []event.Event
	for page := 1; ; page++ {
		if page > maxEventPages {
			return nil, errors.Errorf("fetching events: more than %d pages for %s", maxEventPages, orgUnit)
		}
		q := url.Values{}
		q.Set("orgUnit", orgUnit)
		q.Set("program", program)
		q.Set("page", strconv.Itoa(page))
		q.Set("pageSize", strconv.Itoa(c.pageSize))
		q.Set("totalPages", "true")
		q.Set("order", "occurredAt:asc")

		var payload eventsPage
		if err := c.do(ctx, "fetching events", http.MethodGet, "/api/tracker/events", q, nil, &payload); err != nil {
			return nil, err
		}
		items := payload.Instances
		if items == nil {
			items = payload.Events
		}
		if got := payload.page(); got > 0 && got != page {
			return nil, errors.Errorf("fetching events: asked for page %d, got page %d", page, got)
		}
		out = append(out, items...)

		if n := payload.pageCount(); n > 0 && page >= n {
			break
		}
		size := c.pageSize
		if payload.PageSize > 0 {
			size = payload.PageSize
		}
		if len(items) < size {
			break
		}
	}
	return out, nil
}

// OrgUnit fetches an org unit with its parent and children.
func (c *Client) OrgUnit(ctx context.Context, id string) (event.OrgUnit, error) {
	q := url.Values{}
	q.Set("fields", orgUnitFields)

	var ou orgUnit
	if err := c.do(ctx, "fetching org unit", http.MethodGet, "/api/organisationUnits/"+url.PathEscape(id), q, nil, &ou); err != nil {
		return event.OrgUnit{}, err
	}
	return ou.toOrgUnit(), nil
}

func (ou orgUnit) toOrgUnit() event.OrgUnit {
	out := event.OrgUnit{ID: ou.ID, Name: ou.Name, Coordinates: ou.Geometry.point()}
	if ou.Parent != nil {
		out.Parent = &event.OrgUnit{ID: ou.Parent.ID, Name: ou.Parent.Name}
	}
	if len(ou.Children) > 0 {
		out.Children = make([]event.OrgUnit, 0, len(ou.Children))
		for _, child := range ou.Children {
			out.Children = append(out.Children, child.toOrgUnit())
		}
	}
	return out
}

// point returns [longitude, latitude] of a Point geometry, nil for any other geometry.
func (g *geometry) point() []float64 {
	if g == nil || g.Type != "Point" {
		return nil
	}
	var coords []float64
	if err := json.Unmarshal(g.Coordinates, &coords); err != nil || len(coords) < 2 {
		return nil
	}
	return coords[:2]
}

// PostEvents imports events synchronously and returns their ids.
func (c *Client) PostEvents(ctx context.Context, events ...event.Event) ([]string, error) {
	q := url.Values{}
	q.Set("async", "false")

	var rep importReport
	body := map[string][]event.Event{"events": events}
	if err := c.do(ctx, "posting events", http.MethodPost, "/api/tracker", q, body, &rep); err != nil {
		return nil, err
	}
	if rep.Status == "ERROR" {
		return nil, &Error{Op: "posting events", StatusCode: http.StatusOK, Message: rejectionMessage(mustJSON(rep))}
	}

	var ids []string
	for _, obj := range rep.BundleReport.TypeReportMap["EVENT"].ObjectReports {
		ids = append(ids, obj.UID)
	}
	return ids, nil
}

func mustJSON(v interface{}) []byte {
	b, _ := json.Marshal(v)
	return b
}

// Me authenticates username against the tracker and returns the matching inspector.
func (c *Client) Me(ctx context.Context, username, password string) (inspection.Inspector, error) {
	q := url.Values{}
	q.Set("fields", meFields)

	var m me
	if err := c.WithCredentials(username, password).do(ctx, "authenticating", http.MethodGet, "/api/me", q, nil, &m); err != nil {
		return inspection.Inspector{}, err
	}
	insp := inspection.Inspector{
		ID:       m.ID,
		Username: m.Username,
		Name:     m.Name,
		Email:    m.Email,
		OrgUnits: make([]string, 0, len(m.OrganisationUnits)),
	}
	for _, ou := range m.OrganisationUnits {
		insp.OrgUnits = append(insp.OrgUnits, ou.ID)
	}
	return insp, nil
}
