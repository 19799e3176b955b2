package domain

// Stage identifies a point in the processing pipeline for progress
// reporting. The set is fixed and each stage has a canonical progress
// percentage; published percentages are clamped so that they never
// decrease for a given job even when stages overlap (the cache check runs
// concurrently with extraction).
type Stage string

// Pipeline stages in rough execution order.
const (
	StageInitializing    Stage = "initializing"
	StageDownloading     Stage = "downloading"
	StageCheckingCache   Stage = "checking_cache"
	StageExtractingText  Stage = "extracting_text"
	StageGeneratingNotes Stage = "generating_notes"
	StageGeneratingQuiz  Stage = "generating_quiz"
	StageCacheHit        Stage = "cache_hit"
	StageSaving          Stage = "saving"
	StageCaching         Stage = "caching"
	StageCompleted       Stage = "completed"
	StageFailed          Stage = "failed"
)

// stagePercents maps each stage to its canonical progress percentage.
var stagePercents = map[Stage]int{
	StageInitializing:    5,
	StageDownloading:     15,
	StageCheckingCache:   25,
	StageExtractingText:  30,
	StageGeneratingNotes: 60,
	StageGeneratingQuiz:  75,
	StageCacheHit:        90,
	StageSaving:          90,
	StageCaching:         95,
	StageCompleted:       100,
}

// Percent returns the canonical progress percentage for the stage.
// StageFailed has no canonical percentage and returns 0; a failed job
// keeps whatever progress it had reached.
func (s Stage) Percent() int {
	return stagePercents[s]
}

// Terminal reports whether the stage is one of the terminal stages.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}
