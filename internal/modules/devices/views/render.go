package views

import (
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/Tom-Camp/fe/internal/modules/devices/types"
	"github.com/Tom-Camp/fe/internal/telemetry"
)

const layoutFile = "base.html"

// pages maps a page file name to its own template set (layout, partials
// and the page), so each page can define "content".
var pages map[string]*template.Template

var funcs = template.FuncMap{
	"formatTime":  formatTime,
	"formatValue": formatValue,
}

// loadTemplatesFromFS loads templates from the given fs and dir. Used by
// LoadTemplates and by tests to simulate failure scenarios.
func loadTemplatesFromFS(fsys fs.FS, dir string) error {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return err
	}
	layout, err := template.New(layoutFile).Funcs(funcs).ParseFS(sub, layoutFile, "partials/*.html")
	if err != nil {
		return err
	}

	names, err := fs.Glob(sub, "*.html")
	if err != nil {
		return err
	}
	loaded := make(map[string]*template.Template, len(names))
	for _, name := range names {
		if name == layoutFile {
			continue
		}
		t, err := layout.Clone()
		if err != nil {
			return err
		}
		if t, err = t.ParseFS(sub, name); err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
		loaded[name] = t
	}
	pages = loaded
	return nil
}

// LoadTemplates loads embedded templates. Call during startup before
// serving requests; if it returns an error, do not start the server.
func LoadTemplates() error {
	return loadTemplatesFromFS(viewsFS, "templates")
}

// StaticHandler serves the embedded chart script and stylesheet under
// /static/.
func StaticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServerFS(sub))
}

func render(w io.Writer, page string, data any) error {
	t, ok := pages[page]
	if !ok {
		return errors.New(page + " template not loaded: call views.LoadTemplates during startup")
	}
	return t.ExecuteTemplate(w, "base", data)
}

// NavItem is one link of the device navigation bar.
type NavItem struct {
	Class  telemetry.DeviceClass
	Title  string
	Active bool
}

// Layout is shared by every page.
type Layout struct {
	PageTitle string
	Nav       []NavItem
}

// NewLayout builds the layout with active marking the current device.
func NewLayout(pageTitle string, devices []types.DeviceInfo, active telemetry.DeviceClass) Layout {
	nav := make([]NavItem, 0, len(devices))
	for _, d := range devices {
		nav = append(nav, NavItem{Class: d.Class, Title: d.Title, Active: d.Class == active})
	}
	return Layout{PageTitle: pageTitle, Nav: nav}
}

// Metric is a labelled, formatted value.
type Metric struct {
	Label string
	Value string
}

// Card is one device on the home page.
type Card struct {
	Class      telemetry.DeviceClass
	Title      string
	Phase      string
	DataPoints int
	ErrorCount int
	UpdatedAt  string
	FetchedAt  time.Time
	Metrics    []Metric
	Error      string
}

type HomeData struct {
	Layout
	Cards []Card
}

// NewHomeData turns overview summaries into cards.
func NewHomeData(layout Layout, sums []types.Summary) HomeData {
	cards := make([]Card, 0, len(sums))
	for _, s := range sums {
		c := Card{
			Class:      s.Class,
			Title:      s.Title,
			Phase:      s.Phase,
			DataPoints: s.DataPoints,
			ErrorCount: s.ErrorCount,
			FetchedAt:  s.FetchedAt,
		}
		switch {
		case s.Err != nil:
			c.Error = UserMessage(s.Err)
		case s.Latest != nil:
			c.UpdatedAt = formatTime(s.Latest.Timestamp)
			for _, f := range summaryFields[s.Class] {
				c.Metrics = append(c.Metrics, Metric{
					Label: f.Label,
					Value: formatValue(s.Latest.Value(f.Column)) + f.Unit,
				})
			}
		}
		cards = append(cards, c)
	}
	return HomeData{Layout: layout, Cards: cards}
}

func RenderHome(w io.Writer, data HomeData) error {
	return render(w, "home.html", data)
}

// ChartDataset is one chart line as the chart script consumes it.
type ChartDataset struct {
	Label    string `json:"label"`
	Color    string `json:"color"`
	Dashed   bool   `json:"dashed"`
	FillPrev bool   `json:"fill_prev"`
	Data     []any  `json:"data"`
}

type ChartData struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	YLabel   string         `json:"y_label"`
	Datasets []ChartDataset `json:"datasets"`
}

// ChartPayload is embedded in the device page as JSON.
type ChartPayload struct {
	Labels []string    `json:"labels"`
	Charts []ChartData `json:"charts"`
}

type Row struct {
	Time   string
	Values []string
}

type DeviceData struct {
	Layout
	Dashboard  types.Dashboard
	Charts     []ChartSpec
	Payload    ChartPayload
	Columns    []string
	Rows       []Row
	Errors     []telemetry.ErrorEvent
	ShowErrors bool
}

// NewDeviceData lays out a dashboard for the device page.
func NewDeviceData(layout Layout, d types.Dashboard) DeviceData {
	specs := Charts(d.Class)
	schema, _ := telemetry.LookupSchema(d.Class)

	labels := make([]string, 0, d.Table.Len())
	for _, ts := range d.Table.Timestamps {
		labels = append(labels, formatTime(ts))
	}

	payload := ChartPayload{Labels: labels, Charts: make([]ChartData, 0, len(specs))}
	for _, spec := range specs {
		cd := ChartData{ID: spec.ID, Title: spec.Title, YLabel: spec.YLabel}
		for _, s := range spec.Series {
			data := d.Table.Series[s.Column]
			if data == nil {
				data = []any{}
			}
			cd.Datasets = append(cd.Datasets, ChartDataset{
				Label:    s.Label,
				Color:    s.Color,
				Dashed:   s.Band,
				FillPrev: s.FillPrev,
				Data:     data,
			})
		}
		payload.Charts = append(payload.Charts, cd)
	}

	rows := make([]Row, 0, d.Table.Len())
	for i, ts := range d.Table.Timestamps {
		r := Row{Time: formatTime(ts), Values: make([]string, 0, len(d.Table.Columns))}
		for _, c := range d.Table.Columns {
			r.Values = append(r.Values, formatValue(d.Table.Series[c][i]))
		}
		rows = append(rows, r)
	}

	return DeviceData{
		Layout:     layout,
		Dashboard:  d,
		Charts:     specs,
		Payload:    payload,
		Columns:    d.Table.Columns,
		Rows:       rows,
		Errors:     d.Errors,
		ShowErrors: schema.HasErrors(),
	}
}

func RenderDevice(w io.Writer, data DeviceData) error {
	return render(w, "device.html", data)
}

type ErrorData struct {
	Layout
	Status  int
	Heading string
	Message string
}

func RenderError(w io.Writer, data ErrorData) error {
	return render(w, "error.html", data)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("Jan 2 2006 15:04 MST")
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "—"
	case bool:
		if t {
			return "on"
		}
		return "off"
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
