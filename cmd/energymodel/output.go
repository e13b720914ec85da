//go:build linux

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/ja7ad/energymodel/pkg/energy"
)

type domainView struct {
	ID     int                    `json:"id"`
	CPUs   string                 `json:"cpus"`
	States []energy.CapacityState `json:"states"`
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func writeStates(w io.Writer, m *energy.Model) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "DOMAIN\tCPUS\tSTATE\tCAP\tPOWER\tCAP/PWR")
	fmt.Fprintln(tw, "------\t----\t-----\t---\t-----\t-------")
	m.ForEachDomain(func(d energy.FrequencyDomain, em *energy.EnergyModel) bool {
		for i, cs := range em.States {
			fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%d\n", d.ID, d.Span, i, cs.Cap, cs.Power, em.Efficiency(i))
		}
		return true
	})
	return tw.Flush()
}

func writeDomains(w io.Writer, m *energy.Model) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "DOMAIN\tCPUS\tSTATES\tMAX CAP")
	fmt.Fprintln(tw, "------\t----\t------\t-------")
	m.ForEachDomain(func(d energy.FrequencyDomain, em *energy.EnergyModel) bool {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\n", d.ID, d.Span, em.NrCapStates(), em.MaxCap())
		return true
	})
	return tw.Flush()
}

func writeJSON(w io.Writer, m *energy.Model) error {
	var out []domainView
	m.ForEachDomain(func(d energy.FrequencyDomain, em *energy.EnergyModel) bool {
		out = append(out, domainView{ID: d.ID, CPUs: d.Span.String(), States: em.States})
		return true
	})
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
