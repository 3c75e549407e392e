// Package novel defines core types shared across subsystems.
package novel

import "time"

// JobStatus represents the lifecycle state of a crawl-and-assemble job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusResolving  JobStatus = "resolving"
	JobStatusFetching   JobStatus = "fetching"
	JobStatusAssembling JobStatus = "assembling"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// IsTerminal reports whether the status is a final state.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// Policy selects how a job treats terminally failed chapters.
type Policy string

// Execution policies accepted on submission.
const (
	PolicyFailFast   Policy = "fail-fast"
	PolicyBestEffort Policy = "best-effort"
)

// Format identifies an output artifact format.
type Format string

// Supported artifact formats.
const (
	FormatEPUB     Format = "epub"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

// ParseFormat validates a format name from config or API input.
func ParseFormat(s string) (Format, bool) {
	switch Format(s) {
	case FormatEPUB, FormatMarkdown, FormatHTML:
		return Format(s), true
	default:
		return "", false
	}
}

// ChapterRange is an inclusive 1-based index range. The zero value means
// the full chapter list; leaving one bound unset leaves that end open.
type ChapterRange struct {
	First int `json:"first,omitempty"`
	Last  int `json:"last,omitempty"`
}

// IsZero reports whether the range selects the full list.
func (r ChapterRange) IsZero() bool {
	return r.First == 0 && r.Last == 0
}

// JobRequest captures a submission from the bot/API collaborator.
type JobRequest struct {
	WorkURL string       `json:"url"`
	Range   ChapterRange `json:"range"`
	Formats []Format     `json:"formats"`
	Policy  Policy       `json:"policy"`
}

// Counters tracks per-job chapter outcomes.
type Counters struct {
	ChaptersSucceeded int `json:"chapters_succeeded"`
	ChaptersFailed    int `json:"chapters_failed"`
	Retries           int `json:"retries"`
}

// Artifact is one assembled output file.
type Artifact struct {
	Format Format `json:"format"`
	Path   string `json:"path"`
}

// Job represents the metadata persisted for each submitted crawl request.
type Job struct {
	ID            string       `json:"id"`
	WorkURL       string       `json:"work_url"`
	Site          string       `json:"site"`
	Title         string       `json:"title,omitempty"`
	TotalChapters int          `json:"total_chapters,omitempty"`
	Status        JobStatus    `json:"status"`
	Policy        Policy       `json:"policy"`
	Formats       []Format     `json:"formats"`
	Range         ChapterRange `json:"range"`
	Submitted     time.Time    `json:"submitted_at"`
	Started       *time.Time   `json:"started_at,omitempty"`
	Finished      *time.Time   `json:"finished_at,omitempty"`
	ErrorText     string       `json:"error_text,omitempty"`
	Counters      Counters     `json:"counters"`
	Gaps          []int        `json:"gaps,omitempty"`
	Artifacts     []Artifact   `json:"artifacts,omitempty"`
}

// ChapterRef points at one chapter of a work. Index defines final ordering
// and is authoritative regardless of fetch completion order.
type ChapterRef struct {
	Index int    `json:"index"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Work is the resolved metadata and chapter list for a work reference.
type Work struct {
	URL      string       `json:"url"`
	Title    string       `json:"title"`
	Author   string       `json:"author,omitempty"`
	CoverURL string       `json:"cover_url,omitempty"`
	Synopsis string       `json:"synopsis,omitempty"`
	Chapters []ChapterRef `json:"chapters"`
}

// Chapter is a fetched chapter body ready for assembly.
type Chapter struct {
	Ref  ChapterRef
	HTML string
}
