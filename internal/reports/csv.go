package reports

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Artifact is a rendered report attachment.
type Artifact struct {
	Name string
	Data []byte
}

// Artifacts renders the hourly histograms as one CSV per event kind.
// Each file has a header row and 24 hour,count rows.
func (s Stats) Artifacts() ([]Artifact, error) {
	period := s.PeriodStart.Format("2006-01")
	kinds := []struct {
		slug string
		hist [24]int
	}{
		{"validations", s.ValidationsByHour},
		{"failures", s.FailuresByHour},
		{"admin", s.AdminByHour},
	}

	out := make([]Artifact, 0, len(kinds))
	for _, k := range kinds {
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		if err := w.Write([]string{"hour", "count"}); err != nil {
			return nil, fmt.Errorf("render %s csv: %w", k.slug, err)
		}
		for hour, count := range k.hist {
			if err := w.Write([]string{strconv.Itoa(hour), strconv.Itoa(count)}); err != nil {
				return nil, fmt.Errorf("render %s csv: %w", k.slug, err)
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, fmt.Errorf("render %s csv: %w", k.slug, err)
		}
		out = append(out, Artifact{
			Name: fmt.Sprintf("%s_%s.csv", k.slug, period),
			Data: buf.Bytes(),
		})
	}
	return out, nil
}

// WriteArtifacts persists the artifacts under dir, creating it if
// needed, and returns the written paths. Local copies survive even
// when report delivery fails.
func WriteArtifacts(dir string, artifacts []Artifact) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	paths := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		p := filepath.Join(dir, a.Name)
		if err := os.WriteFile(p, a.Data, 0o644); err != nil {
			return nil, fmt.Errorf("write report artifact: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}
