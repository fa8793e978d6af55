package report

import (
	"encoding/json"
	"fmt"
	htmltemplate "html/template"
	"io"
	"slices"
	"text/template"
	"time"

	"github.com/FranksOps/gotot/internal/storage"
)

// OutcomeIncomplete marks a search whose journal has no terminal record.
const OutcomeIncomplete = "incomplete"

// Search is one search reconstructed from its hop records.
type Search struct {
	ID       string
	Target   time.Time
	Outcome  string
	Hops     int
	Pages    int
	Landing  string // empty unless the search navigated somewhere
	Started  time.Time
	Duration time.Duration
	Error    string
}

// Summary contains aggregated figures about journaled searches.
type Summary struct {
	TotalSearches int
	TotalPages    int
	TotalErrors   int
	Outcomes      map[string]int
	AvgHops       float64
	MaxHops       int
	StartTime     time.Time
	EndTime       time.Time
	Duration      time.Duration
	Searches      []Search
}

// GenerateSummary groups hop records by search. Records may come in any
// order. Targets are shown in loc; nil means time.Local.
func GenerateSummary(records []*storage.HopRecord, loc *time.Location) Summary {
	if loc == nil {
		loc = time.Local
	}
	s := Summary{Outcomes: make(map[string]int)}
	if len(records) == 0 {
		return s
	}

	bySearch := make(map[string][]*storage.HopRecord)
	s.StartTime, s.EndTime = records[0].CreatedAt, records[0].CreatedAt
	for _, r := range records {
		bySearch[r.SearchID] = append(bySearch[r.SearchID], r)
		if r.CreatedAt.Before(s.StartTime) {
			s.StartTime = r.CreatedAt
		}
		if r.CreatedAt.After(s.EndTime) {
			s.EndTime = r.CreatedAt
		}
	}
	s.Duration = s.EndTime.Sub(s.StartTime)

	totalHops := 0
	for id, recs := range bySearch {
		search := summarize(id, recs, loc)
		s.Searches = append(s.Searches, search)
		s.TotalSearches++
		s.TotalPages += search.Pages
		s.Outcomes[search.Outcome]++
		if search.Outcome == storage.OutcomeError {
			s.TotalErrors++
		}
		totalHops += search.Hops
		s.MaxHops = max(s.MaxHops, search.Hops)
	}
	s.AvgHops = float64(totalHops) / float64(s.TotalSearches)

	slices.SortFunc(s.Searches, func(a, b Search) int {
		return a.Started.Compare(b.Started)
	})
	return s
}

func summarize(id string, recs []*storage.HopRecord, loc *time.Location) Search {
	slices.SortFunc(recs, func(a, b *storage.HopRecord) int {
		if a.Hop != b.Hop {
			return a.Hop - b.Hop
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	first, last := recs[0], recs[len(recs)-1]
	search := Search{
		ID:      id,
		Target:  time.UnixMilli(first.Target).In(loc),
		Outcome: OutcomeIncomplete,
		Hops:    last.Hop,
		Pages:   len(recs),
		Started: first.CreatedAt,
	}
	for _, r := range recs {
		search.Duration += r.Duration
	}

	if !last.Terminal() {
		return search
	}
	search.Outcome = last.Outcome
	switch last.Outcome {
	case storage.OutcomeError:
		// the failed page was never evaluated
		search.Pages--
		search.Error = last.Error
	case storage.OutcomeAborted:
		// the hop that hit the limit was counted but not fetched
		search.Hops++
		search.Landing = last.URL
	default:
		search.Landing = last.URL
	}
	return search
}

// WriteJSON writes the summary to the provided writer in JSON format.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return nil
}

const textTmpl = `gotot Search Journal
--------------------
Time:          {{.StartTime.Format "2006-01-02 15:04:05"}} - {{.EndTime.Format "2006-01-02 15:04:05"}}
Searches:      {{.TotalSearches}}
Pages:         {{.TotalPages}}
Errors:        {{.TotalErrors}}
Hops:          avg {{printf "%.1f" .AvgHops}}, max {{.MaxHops}}

Outcomes:
{{- range $outcome, $count := .Outcomes}}
  {{$outcome}}: {{$count}}
{{- else}}
  None
{{- end}}

Searches:
{{- range .Searches}}
  {{.Started.Format "2006-01-02 15:04:05"}}  {{.Target.Format "2006-01-02 15:04"}}  {{.Outcome}} after {{.Hops}} hops
    {{if .Error}}error: {{.Error}}{{else}}{{.Landing}}{{end}}
{{- else}}
  None
{{- end}}
`

// WriteText writes a human-readable text summary to the provided writer.
func WriteText(w io.Writer, summary Summary) error {
	t, err := template.New("textReport").Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("parse text template: %w", err)
	}
	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("render text report: %w", err)
	}
	return nil
}

const htmlTmpl = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>gotot Search Journal</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #333; }
  h1 { border-bottom: 2px solid #ccc; padding-bottom: 10px; }
  .stat-card { display: inline-block; padding: 20px; margin: 10px 10px 10px 0; background: #f4f4f4; border-radius: 5px; min-width: 150px; }
  .stat-val { font-size: 24px; font-weight: bold; }
  table { border-collapse: collapse; margin-top: 10px; }
  th, td { padding: 8px 12px; border: 1px solid #ccc; text-align: left; }
  th { background: #eaeaea; }
  .error { color: red; }
</style>
</head>
<body>
  <h1>gotot Search Journal</h1>
  <p><strong>Time:</strong> {{.StartTime.Format "2006-01-02 15:04:05"}} to {{.EndTime.Format "2006-01-02 15:04:05"}} ({{.Duration}})</p>

  <div class="stat-card">
    <div>Searches</div>
    <div class="stat-val">{{.TotalSearches}}</div>
  </div>
  <div class="stat-card">
    <div>Pages</div>
    <div class="stat-val">{{.TotalPages}}</div>
  </div>
  <div class="stat-card">
    <div>Errors</div>
    <div class="stat-val" style="color: {{if gt .TotalErrors 0}}red{{else}}green{{end}};">{{.TotalErrors}}</div>
  </div>
  <div class="stat-card">
    <div>Hops (avg / max)</div>
    <div class="stat-val">{{printf "%.1f" .AvgHops}} / {{.MaxHops}}</div>
  </div>

  <h3>Outcomes</h3>
  <table>
    <tr><th>Outcome</th><th>Count</th></tr>
    {{- range $outcome, $count := .Outcomes}}
    <tr><td>{{$outcome}}</td><td>{{$count}}</td></tr>
    {{- else}}
    <tr><td colspan="2">None</td></tr>
    {{- end}}
  </table>

  <h3>Searches</h3>
  <table>
    <tr><th>Started</th><th>Target</th><th>Outcome</th><th>Hops</th><th>Landing</th></tr>
    {{- range .Searches}}
    <tr>
      <td>{{.Started.Format "2006-01-02 15:04:05"}}</td>
      <td>{{.Target.Format "2006-01-02 15:04"}}</td>
      <td>{{.Outcome}}</td>
      <td>{{.Hops}}</td>
      <td>{{if .Error}}<span class="error">{{.Error}}</span>{{else}}<a href="{{.Landing}}">{{.Landing}}</a>{{end}}</td>
    </tr>
    {{- else}}
    <tr><td colspan="5">None</td></tr>
    {{- end}}
  </table>
</body>
</html>
`

// WriteHTML writes an HTML report to the provided writer.
func WriteHTML(w io.Writer, summary Summary) error {
	t, err := htmltemplate.New("htmlReport").Parse(htmlTmpl)
	if err != nil {
		return fmt.Errorf("parse html template: %w", err)
	}
	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("render html report: %w", err)
	}
	return nil
}
