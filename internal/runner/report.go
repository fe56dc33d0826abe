package runner

// Status is the terminal classification of a run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// FetchContext counts what the connectors produced.
type FetchContext struct {
	Total     int            `json:"total"`
	PerSource map[string]int `json:"per_source,omitempty"`
}

// PipelineContext counts the normalize/dedupe stages.
type PipelineContext struct {
	Normalized int `json:"normalized"`
	Deduped    int `json:"deduped"`
}

// FilterContext counts the window/seen/block filters.
type FilterContext struct {
	DroppedOld        int `json:"dropped_old"`
	DroppedSeen       int `json:"dropped_seen"`
	SeenReaddedVideos int `json:"seen_readded_videos"`
	DroppedBlocked    int `json:"dropped_blocked"`
	Remaining         int `json:"remaining"`
}

// VideoFunnel tracks videos through the pipeline.
type VideoFunnel struct {
	Fetched  int `json:"fetched"`
	Selected int `json:"selected"`
}

// SelectionContext counts the final sections.
type SelectionContext struct {
	MustRead int `json:"must_read"`
	Skim     int `json:"skim"`
	Videos   int `json:"videos"`
}

// ScoringContext reports the agent path's budget accounting.
type ScoringContext struct {
	Budgeted       int     `json:"budgeted"`
	AgentScored    int     `json:"agent_scored"`
	RulesFallbacks int     `json:"rules_fallbacks"`
	Overflow       int     `json:"overflow"`
	CacheHits      int     `json:"cache_hits"`
	Coverage       float64 `json:"coverage"`
}

// Context is the structured funnel the report carries.
type Context struct {
	Fetched   FetchContext     `json:"fetched"`
	Pipeline  PipelineContext  `json:"pipeline"`
	Filtering FilterContext    `json:"filtering"`
	Scoring   ScoringContext   `json:"scoring"`
	Video     VideoFunnel      `json:"video_funnel"`
	Selection SelectionContext `json:"selection"`
	// SparseNote is set when the run selected very few items.
	SparseNote string `json:"sparse_note,omitempty"`
}

// RunReport is what one digest run returns to its caller.
type RunReport struct {
	RunID         string
	Status        Status
	SourceErrors  []string
	SummaryErrors []string
	SourceCount   int
	MustReadCount int
	SkimCount     int
	VideoCount    int
	Context       Context

	// Preview artifacts, set only in preview mode.
	PreviewChat     string
	PreviewMarkdown string
}
