package worker

// RunAggregate summarizes one trial at a fixed worker count. Memory uses
// the max across workers (worst-case pressure); time, speed and frame rate
// use the arithmetic mean. JSON keys match the survey submission format.
type RunAggregate struct {
	Workers   int     `json:"workers"`
	MaxFrames int64   `json:"frame"`
	Speed     float64 `json:"speed"`
	TimeSec   float64 `json:"time_s"`
	MaxRSSKB  float64 `json:"rss_kb"`
	FPS       float64 `json:"avgFPS"`
}

// ReasonKind tags the failure taxonomy of a trial or search.
type ReasonKind int

const (
	// ReasonProcess covers classified and unclassified process failures.
	ReasonProcess ReasonKind = iota
	// ReasonTimeout means a worker exceeded the per-process timeout.
	ReasonTimeout
	// ReasonPerformance means the run completed but below real-time speed.
	ReasonPerformance
	// ReasonExternalLimit means an externally imposed worker ceiling was hit.
	ReasonExternalLimit
	// ReasonInconclusive marks an anomaly that should not occur under
	// correct parameters; it is reported, never silently dropped.
	ReasonInconclusive
)

// FailureReason is a tagged failure with an optional human-readable message.
type FailureReason struct {
	Kind    ReasonKind
	Message string
}

func (r FailureReason) String() string {
	switch r.Kind {
	case ReasonTimeout:
		return "failed_timeout"
	case ReasonPerformance:
		return "performance"
	case ReasonExternalLimit:
		return "limited"
	case ReasonInconclusive:
		if r.Message != "" {
			return "inconclusive: " + r.Message
		}
		return "inconclusive"
	default:
		if r.Message != "" {
			return r.Message
		}
		return "generic_ffmpeg_failure"
	}
}
