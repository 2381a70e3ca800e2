package download

// ProgressLevel indicates the severity/type of a progress message.
type ProgressLevel int

const (
	LevelInfo ProgressLevel = iota
	LevelVerbose
	LevelWarning
	LevelError
	LevelSuccess
)

// ProgressEvent represents a progress update.
type ProgressEvent struct {
	Message string
	Level   ProgressLevel
}

// Progress is a point-in-time snapshot of a run.
type Progress struct {
	ItemsTotal  int32
	ItemsDone   int32
	AssetsTotal int32
	AssetsDone  int32
	Acquired    int32
	Failed      int32
	Bytes       int64

	// Limit and InFlight mirror the concurrency governor.
	Limit    int
	InFlight int
}

// Fraction returns the share of finished assets in [0, 1].
func (p Progress) Fraction() float64 {
	if p.AssetsTotal == 0 {
		return 0
	}
	return float64(p.AssetsDone) / float64(p.AssetsTotal)
}
