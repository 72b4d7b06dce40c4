package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/aristath/eqtrak/internal/modules/metrics"
	"github.com/aristath/eqtrak/internal/modules/performance"
)

type format string

const (
	formatTable format = "table"
	formatYAML  format = "yaml"
	formatJSON  format = "json"
)

func parseFormat(s string) (format, error) {
	switch f := format(strings.ToLower(s)); f {
	case formatTable, formatYAML, formatJSON:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q, must be one of: table, yaml, json", s)
}

type definitionView struct {
	ID       string   `yaml:"id" json:"id"`
	Name     string   `yaml:"name" json:"name"`
	Scope    string   `yaml:"scope" json:"scope"`
	Kind     string   `yaml:"value_kind" json:"value_kind"`
	Family   string   `yaml:"family,omitempty" json:"family,omitempty"`
	Owner    string   `yaml:"owner,omitempty" json:"owner,omitempty"`
	Depends  []string `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`
	IsSystem bool     `yaml:"system" json:"system"`
	Derived  bool     `yaml:"derived" json:"derived"`
}

type namedResult struct {
	Name   string
	Result metrics.Result
}

type resultView struct {
	Metric     string `yaml:"metric" json:"metric"`
	Status     string `yaml:"status" json:"status"`
	Value      string `yaml:"value,omitempty" json:"value,omitempty"`
	Reason     string `yaml:"reason,omitempty" json:"reason,omitempty"`
	Provenance string `yaml:"provenance,omitempty" json:"provenance,omitempty"`
}

func viewResult(name string, r metrics.Result) resultView {
	v := resultView{Metric: name, Status: string(r.Status), Reason: r.Reason, Provenance: r.Provenance}
	if d, ok := r.Decimal(); ok {
		v.Value = d.String()
	} else if r.OK() && r.Text != nil {
		v.Value = *r.Text
	}
	return v
}

type positionView struct {
	PositionID string       `yaml:"position_id" json:"position_id"`
	Ticker     string       `yaml:"ticker" json:"ticker"`
	Metrics    []resultView `yaml:"metrics" json:"metrics"`
}

type summaryView struct {
	PortfolioID string         `yaml:"portfolio_id" json:"portfolio_id"`
	Name        string         `yaml:"name" json:"name"`
	Metrics     []resultView   `yaml:"metrics" json:"metrics"`
	Positions   []positionView `yaml:"positions" json:"positions"`
}

type printer struct {
	w      io.Writer
	format format
}

func newPrinter(w io.Writer, f format) *printer {
	return &printer{w: w, format: f}
}

func (p *printer) message(msg string, args ...interface{}) error {
	text := fmt.Sprintf(msg, args...)
	if p.format == formatTable {
		_, err := fmt.Fprintln(p.w, text)
		return err
	}
	return p.encode(map[string]string{"message": text})
}

func (p *printer) definitions(defs []metrics.Definition) error {
	views := make([]definitionView, 0, len(defs))
	for _, d := range defs {
		views = append(views, definitionView{
			ID:       d.ID,
			Name:     d.Name,
			Scope:    string(d.Scope),
			Kind:     string(d.Kind),
			Family:   d.Family,
			Owner:    d.OwnerID,
			Depends:  d.Dependencies,
			IsSystem: d.IsSystem,
			Derived:  d.IsDerived,
		})
	}
	if p.format != formatTable {
		return p.encode(views)
	}

	rows := make([][]string, 0, len(views))
	for _, v := range views {
		owner := v.Owner
		if v.IsSystem {
			owner = "system"
		}
		rows = append(rows, []string{v.ID, v.Name, v.Scope, v.Kind, owner, fmt.Sprint(v.Derived)})
	}
	return writeTable(p.w, []string{"ID", "NAME", "SCOPE", "KIND", "OWNER", "DERIVED"}, rows)
}

func (p *printer) results(results []namedResult) error {
	views := make([]resultView, 0, len(results))
	for _, r := range results {
		views = append(views, viewResult(r.Name, r.Result))
	}
	if p.format != formatTable {
		return p.encode(views)
	}
	return writeTable(p.w, resultHeaders, resultRows(views))
}

func (p *printer) summary(s *performance.Summary) error {
	view := summaryView{
		PortfolioID: s.PortfolioID,
		Name:        s.Name,
		Metrics: []resultView{
			viewResult("total_value", s.TotalValue),
			viewResult("return_pct", s.ReturnPct),
			viewResult("return_abs", s.ReturnAbs),
			viewResult("twr_pct", s.TWR),
		},
		Positions: make([]positionView, 0, len(s.Positions)),
	}
	for _, pos := range s.Positions {
		view.Positions = append(view.Positions, positionView{
			PositionID: pos.PositionID,
			Ticker:     pos.Ticker,
			Metrics: []resultView{
				viewResult("cost_basis", pos.CostBasis),
				viewResult("current_value", pos.CurrentValue),
				viewResult("gain_loss_pct", pos.GainPct),
				viewResult("gain_loss_abs", pos.GainAbs),
			},
		})
	}
	if p.format != formatTable {
		return p.encode(view)
	}

	if _, err := fmt.Fprintf(p.w, "%s (%s)\n", view.Name, view.PortfolioID); err != nil {
		return err
	}
	if err := writeTable(p.w, resultHeaders, resultRows(view.Metrics)); err != nil {
		return err
	}
	for _, pos := range view.Positions {
		if _, err := fmt.Fprintf(p.w, "\n%s (%s)\n", pos.Ticker, pos.PositionID); err != nil {
			return err
		}
		if err := writeTable(p.w, resultHeaders, resultRows(pos.Metrics)); err != nil {
			return err
		}
	}
	return nil
}

func (p *printer) encode(v interface{}) error {
	if p.format == formatJSON {
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	enc := yaml.NewEncoder(p.w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

var resultHeaders = []string{"METRIC", "STATUS", "VALUE", "REASON", "PROVENANCE"}

func resultRows(views []resultView) [][]string {
	rows := make([][]string, 0, len(views))
	for _, v := range views {
		rows = append(rows, []string{v.Metric, v.Status, v.Value, v.Reason, v.Provenance})
	}
	return rows
}

// writeTable writes aligned columns.
func writeTable(w io.Writer, headers []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, strings.Join(headers, "\t")); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := fmt.Fprintln(tw, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return tw.Flush()
}
