package main

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/iamgideonidoko/signet-match/internal/models"
	"github.com/iamgideonidoko/signet-match/pkg/similarity"
)

func renderMatches(matches []models.Match) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"#", "Fingerprint", "Category", "Last seen", "Overall", "Confidence", "Combined", "Risks"})

	for i, m := range matches {
		risks := make([]string, 0, len(m.Similarity.RiskIndicators))
		for _, r := range m.Similarity.RiskIndicators {
			risks = append(risks, string(r))
		}
		tw.AppendRow(table.Row{
			i + 1,
			m.FingerprintID,
			string(m.DeviceCategory),
			m.LastSeen.UTC().Format("2006-01-02 15:04"),
			fmt.Sprintf("%.4f", m.Similarity.Overall),
			fmt.Sprintf("%.4f", m.Similarity.Confidence),
			fmt.Sprintf("%.4f", m.Combined),
			strings.Join(risks, ", "),
		})
	}

	configs := make([]table.ColumnConfig, 0, 4)
	for _, n := range []int{1, 5, 6, 7} {
		configs = append(configs, table.ColumnConfig{Number: n, Align: text.AlignRight, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

func renderComponents(components []models.Component) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Component", "Layer", "Weight", "Entropy", "Reliability", "Noisy"})

	for _, c := range components {
		p := similarity.ParamsFor(c)
		noisy := ""
		if similarity.Noisy(c) {
			noisy = "yes"
		}
		tw.AppendRow(table.Row{
			c.String(),
			string(c.Layer()),
			fmt.Sprintf("%.2f", p.Weight),
			fmt.Sprintf("%.2f", p.Entropy),
			fmt.Sprintf("%.2f", p.Reliability),
			noisy,
		})
	}

	configs := make([]table.ColumnConfig, 0, 3)
	for _, n := range []int{3, 4, 5} {
		configs = append(configs, table.ColumnConfig{Number: n, Align: text.AlignRight, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}
