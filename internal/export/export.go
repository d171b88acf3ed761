// Package export writes per-stack tracking results.
package export

import (
	"strconv"

	"github.com/LdDl/spotmate/internal/stack"
	"github.com/LdDl/spotmate/mot"
)

// Exporter persists results of one processed stack and returns where they went
type Exporter interface {
	Export(s *stack.Stack, model *mot.Model) (string, error)
}

// Renderer draws results of one processed stack
type Renderer interface {
	Render(s *stack.Stack, model *mot.Model) error
}

// Header is the first line of every results table
var Header = []string{
	"filename",
	"Track ID",
	mot.TrackMeanSpeed,
	mot.TrackMaxSpeed,
	mot.TrackMedianSpeed,
	mot.TrackMeanStraightLineSpeed,
	mot.TrackDisplacement,
	mot.TrackTotalDistance,
	mot.TrackDuration,
}

// Row is one visible track of a stack
type Row struct {
	Filename              string
	TrackID               int
	MeanSpeed             float64
	MaxSpeed              float64
	MedianSpeed           float64
	MeanStraightLineSpeed float64
	Displacement          float64
	TotalDistance         float64
	Duration              float64
}

// Rows returns one row per visible track in linker order
func Rows(filename string, model *mot.Model) []Row {
	tracks := model.VisibleTracks()
	ans := make([]Row, 0, len(tracks))
	for _, track := range tracks {
		features := model.Features[track.ID]
		ans = append(ans, Row{
			Filename:              filename,
			TrackID:               track.ID,
			MeanSpeed:             features[mot.TrackMeanSpeed],
			MaxSpeed:              features[mot.TrackMaxSpeed],
			MedianSpeed:           features[mot.TrackMedianSpeed],
			MeanStraightLineSpeed: features[mot.TrackMeanStraightLineSpeed],
			Displacement:          features[mot.TrackDisplacement],
			TotalDistance:         features[mot.TrackTotalDistance],
			Duration:              features[mot.TrackDuration],
		})
	}
	return ans
}

// Record formats row in Header order
func (row Row) Record() []string {
	return []string{
		row.Filename,
		strconv.Itoa(row.TrackID),
		formatFloat(row.MeanSpeed),
		formatFloat(row.MaxSpeed),
		formatFloat(row.MedianSpeed),
		formatFloat(row.MeanStraightLineSpeed),
		formatFloat(row.Displacement),
		formatFloat(row.TotalDistance),
		formatFloat(row.Duration),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
