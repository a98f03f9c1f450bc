package main

import (
	"io"
	"strconv"

	"github.com/pterm/pterm"

	"github.com/okian/memocred/internal/app"
	"github.com/okian/memocred/internal/domain/model"
)

// renderSummary prints run totals followed by the best scored authors.
func renderSummary(w io.Writer, res app.Result, top []model.CredibilityScore) error {
	scored := 0
	for _, s := range res.Scores {
		if s.Scored() {
			scored++
		}
	}

	totals := pterm.TableData{
		{"Run", res.RunID},
		{"State", string(res.State)},
		{"Memos", strconv.Itoa(len(res.Memos))},
		{"Authors", strconv.Itoa(len(res.Bundles))},
		{"Scored", strconv.Itoa(scored)},
		{"Unscored", strconv.Itoa(len(res.Scores) - scored)},
		{"Memo snapshot", res.MemoSnapshotPath},
		{"Credibility snapshot", res.CredibilitySnapshotPath},
	}
	if err := pterm.DefaultTable.WithWriter(w).WithData(totals).Render(); err != nil {
		return err
	}
	if len(top) == 0 {
		return nil
	}

	ranking := pterm.TableData{{"#", "Author", "Score", "Evidence", "Memos", "Days"}}
	for i, s := range top {
		ranking = append(ranking, []string{
			strconv.Itoa(i + 1),
			s.Author,
			strconv.FormatFloat(s.Score, 'f', 2, 64),
			strconv.Itoa(s.EvidenceCount),
			strconv.Itoa(s.MemoCount),
			strconv.Itoa(s.TimespanDays),
		})
	}
	return pterm.DefaultTable.WithWriter(w).WithHasHeader().WithBoxed().WithData(ranking).Render()
}
