package types

// PipelineState is a node of the run state machine
type PipelineState string

const (
	StateIdle          PipelineState = "idle"
	StateTopicSelected PipelineState = "topic_selected"
	StateResearched    PipelineState = "researched"
	StateScripted      PipelineState = "scripted"
	StateImagesReady   PipelineState = "images_ready"
	StateVideoReady    PipelineState = "video_ready"
	StatePublished     PipelineState = "published"
	StateFailed        PipelineState = "failed"
)

var stateOrder = map[PipelineState]int{
	StateIdle:          0,
	StateTopicSelected: 1,
	StateResearched:    2,
	StateScripted:      3,
	StateImagesReady:   4,
	StateVideoReady:    5,
	StatePublished:     6,
}

// CanAdvance reports whether moving from s to next is a legal forward step.
// Failed is reachable from any non-terminal state.
func (s PipelineState) CanAdvance(next PipelineState) bool {
	if s.Terminal() {
		return false
	}
	if next == StateFailed {
		return true
	}
	from, ok1 := stateOrder[s]
	to, ok2 := stateOrder[next]
	return ok1 && ok2 && to == from+1
}

// Terminal reports whether no further transitions are allowed
func (s PipelineState) Terminal() bool {
	return s == StatePublished || s == StateFailed
}

// RunReport is the outcome of one pipeline run
type RunReport struct {
	RunID          string         `json:"run_id"`
	Timestamp      string         `json:"timestamp"`
	StartedAt      string         `json:"started_at"`
	CompletedAt    string         `json:"completed_at"`
	State          PipelineState  `json:"state"`
	LastGoodState  PipelineState  `json:"last_good_state"`
	Error          string         `json:"error,omitempty"`
	Err            error          `json:"-"`
	Topic          *Topic         `json:"topic,omitempty"`
	ContentPath    string         `json:"content_path,omitempty"`
	Video          *VideoArtifact `json:"video,omitempty"`
	FailedRanks    []int          `json:"failed_ranks,omitempty"`
	HistoryUpdated bool           `json:"history_updated"`
	VideoID        string         `json:"video_id,omitempty"`
	VideoURL       string         `json:"video_url,omitempty"`
	PublishError   string         `json:"publish_error,omitempty"`
	PublishErr     error          `json:"-"`
}
