package model

import "encoding/json"

type FileKind int

const (
	FilePending FileKind = iota
	FilePersisted
)

func (k FileKind) String() string {
	if k == FilePersisted {
		return "persisted"
	}
	return "pending"
}

// PendingFile is a selected file that has not been uploaded yet.
type PendingFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// FileRef is either a pending local file or the URL of an uploaded one.
type FileRef struct {
	Kind    FileKind
	Pending *PendingFile
	URL     string
}

func Pending(f PendingFile) FileRef {
	return FileRef{Kind: FilePending, Pending: &f}
}

func Persisted(url string) FileRef {
	return FileRef{Kind: FilePersisted, URL: url}
}

func PersistedAll(urls []string) []FileRef {
	refs := make([]FileRef, 0, len(urls))
	for _, u := range urls {
		refs = append(refs, Persisted(u))
	}
	return refs
}

func (f FileRef) IsPending() bool {
	return f.Kind == FilePending
}

func (f FileRef) MarshalJSON() ([]byte, error) {
	out := struct {
		Kind        string `json:"kind"`
		URL         string `json:"url,omitempty"`
		Name        string `json:"name,omitempty"`
		ContentType string `json:"contentType,omitempty"`
		Size        int    `json:"size,omitempty"`
	}{Kind: f.Kind.String(), URL: f.URL}
	if f.Pending != nil {
		out.Name = f.Pending.Name
		out.ContentType = f.Pending.ContentType
		out.Size = len(f.Pending.Data)
	}
	return json.Marshal(out)
}

// SplitFiles separates persisted URLs from pending files, keeping order.
func SplitFiles(refs []FileRef) (urls []string, pending []PendingFile) {
	for _, r := range refs {
		if r.IsPending() {
			pending = append(pending, *r.Pending)
			continue
		}
		urls = append(urls, r.URL)
	}
	return urls, pending
}
