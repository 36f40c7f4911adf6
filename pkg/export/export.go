// Package export writes assembled horizon inputs to analysis-friendly
// formats.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"

	"github.com/gridkey/horizon/core/model"
)

// WriteJSON writes the input to w in the optimizer wire format.
func WriteJSON(w io.Writer, in *model.OptimizationInput) error {
	enc := json.NewEncoder(w)
	return enc.Encode(in)
}

// WriteCSV writes every series of the input to w as long-format rows.
func WriteCSV(w io.Writer, in *model.OptimizationInput) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"feed", "timestamp", "value", "unit", "provenance"}); err != nil {
		return err
	}
	write := func(s model.TimeSeries) error {
		label := func(p model.Point) string {
			for _, pr := range s.Provenance {
				if pr.Window.Contains(p.Time) {
					return pr.Label()
				}
			}
			return ""
		}
		for _, p := range s.Points {
			rec := []string{
				string(s.Feed),
				p.Time.Format(model.WireTimeLayout),
				strconv.FormatFloat(p.Value, 'f', -1, 64),
				s.Unit,
				label(p),
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
		return nil
	}
	for _, f := range model.RequiredFeeds(in.Battery.Zone) {
		s, ok := in.Series[f.Name]
		if !ok {
			continue
		}
		if err := write(s); err != nil {
			return err
		}
	}
	if in.Renewable != nil {
		if err := write(*in.Renewable); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
