package mot

import (
	"sort"
)

// Link is a directed edge between spots of two distinct frames
type Link struct {
	Source int
	Target int
	Cost   float64
	// Whether the link bridges at least one frame without detection
	GapClosing bool
}

// Track is a time-ordered chain of spots. Frame indices are strictly increasing.
type Track struct {
	ID    int
	Spots []*Spot
	// Links[i] connects Spots[i] and Spots[i+1]
	Links []Link
}

// Len returns number of spots in track
func (track *Track) Len() int {
	return len(track.Spots)
}

// First returns the earliest spot
func (track *Track) First() *Spot {
	return track.Spots[0]
}

// Last returns the latest spot
func (track *Track) Last() *Spot {
	return track.Spots[len(track.Spots)-1]
}

// TrackGraph is the union of accepted direct and gap-closing links partitioned into tracks.
// Tracks are stored in the order the linker produced them.
type TrackGraph struct {
	links       []Link
	tracks      []*Track
	trackOfSpot map[int]int
}

// newTrackGraph partitions links into connected components over spots.
// Each spot has at most one incoming and one outgoing link, so components are chains.
func newTrackGraph(spots *SpotCollection, links []Link) *TrackGraph {
	outgoing := make(map[int]Link, len(links))
	incoming := make(map[int]struct{}, len(links))
	for _, link := range links {
		outgoing[link.Source] = link
		incoming[link.Target] = struct{}{}
	}
	heads := make([]*Spot, 0)
	for _, link := range links {
		if _, ok := incoming[link.Source]; ok {
			continue
		}
		if spot, ok := spots.Get(link.Source); ok {
			heads = append(heads, spot)
		}
	}
	sort.Slice(heads, func(i, j int) bool {
		if heads[i].Frame != heads[j].Frame {
			return heads[i].Frame < heads[j].Frame
		}
		return heads[i].ID < heads[j].ID
	})

	graph := &TrackGraph{
		links:       make([]Link, 0, len(links)),
		tracks:      make([]*Track, 0, len(heads)),
		trackOfSpot: make(map[int]int),
	}
	for _, head := range heads {
		if _, seen := graph.trackOfSpot[head.ID]; seen {
			continue
		}
		track := &Track{
			ID:    len(graph.tracks),
			Spots: []*Spot{head},
		}
		graph.trackOfSpot[head.ID] = track.ID
		current := head.ID
		for {
			link, ok := outgoing[current]
			if !ok {
				break
			}
			next, ok := spots.Get(link.Target)
			if !ok {
				break
			}
			track.Spots = append(track.Spots, next)
			track.Links = append(track.Links, link)
			graph.links = append(graph.links, link)
			graph.trackOfSpot[next.ID] = track.ID
			current = next.ID
		}
		graph.tracks = append(graph.tracks, track)
	}
	return graph
}

// Links returns every accepted link, grouped by track
func (graph *TrackGraph) Links() []Link {
	return graph.links
}

// NumLinks returns number of accepted links
func (graph *TrackGraph) NumLinks() int {
	return len(graph.links)
}

// Tracks returns tracks in linker order
func (graph *TrackGraph) Tracks() []*Track {
	return graph.tracks
}

// NumTracks returns number of tracks
func (graph *TrackGraph) NumTracks() int {
	return len(graph.tracks)
}

// Track returns track by identifier
func (graph *TrackGraph) Track(id int) (*Track, bool) {
	if id < 0 || id >= len(graph.tracks) {
		return nil, false
	}
	return graph.tracks[id], true
}

// TrackOf returns identifier of the track containing spot
func (graph *TrackGraph) TrackOf(spotID int) (int, bool) {
	id, ok := graph.trackOfSpot[spotID]
	return id, ok
}
