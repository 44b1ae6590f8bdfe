package upload

import (
	"context"

	"github.com/jwalitptl/frontdesk/internal/model"
)

// Failure names a file that was skipped and why.
type Failure struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

type BatchResult struct {
	URLs     []string
	Failures []Failure
}

// Partial reports whether at least one file was skipped.
func (r BatchResult) Partial() bool {
	return len(r.Failures) > 0
}

// UploadAll uploads files one after another. A failed file is recorded and
// the rest still go out; URLs keep the order of the accepted files.
func UploadAll(ctx context.Context, u Uploader, files []model.PendingFile, allowed map[string]bool) BatchResult {
	var res BatchResult
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			res.Failures = append(res.Failures, Failure{Name: f.Name, Reason: err.Error()})
			continue
		}
		url, err := u.Upload(ctx, f, allowed)
		if err != nil {
			res.Failures = append(res.Failures, Failure{Name: f.Name, Reason: err.Error()})
			continue
		}
		res.URLs = append(res.URLs, url)
	}
	return res
}
