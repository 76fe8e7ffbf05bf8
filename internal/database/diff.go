package database

import "github.com/nao1215/streamscout/internal/model"

// CandidateDiff compares the candidate snapshots of two runs.
type CandidateDiff struct {
	// Added were observed only in the newer run.
	Added []model.Candidate

	// Removed were observed only in the older run.
	Removed []model.Candidate

	// Common were observed in both.
	Common []model.Candidate

	// SelectionChanged is true when the runs verified different URLs.
	SelectionChanged bool
}

// HasChanges reports whether the candidate sets or the selection differ.
func (d *CandidateDiff) HasChanges() bool {
	return len(d.Added) > 0 || len(d.Removed) > 0 || d.SelectionChanged
}

// DiffRuns compares older with newer. Candidates keep the order of the run
// they are taken from.
func DiffRuns(older, newer *model.Run) *CandidateDiff {
	inOlder := make(map[string]bool, len(older.Candidates))
	for _, c := range older.Candidates {
		inOlder[c.URL] = true
	}
	inNewer := make(map[string]bool, len(newer.Candidates))
	for _, c := range newer.Candidates {
		inNewer[c.URL] = true
	}

	d := &CandidateDiff{SelectionChanged: selectedURL(older) != selectedURL(newer)}
	for _, c := range newer.Candidates {
		if inOlder[c.URL] {
			d.Common = append(d.Common, c)
		} else {
			d.Added = append(d.Added, c)
		}
	}
	for _, c := range older.Candidates {
		if !inNewer[c.URL] {
			d.Removed = append(d.Removed, c)
		}
	}
	return d
}

func selectedURL(r *model.Run) string {
	if r.Selection == nil {
		return ""
	}
	return r.Selection.URL
}
