package models

import "fmt"

// ItemKind identifies which part of a selection an item came from.
type ItemKind int

const (
	KindTrack ItemKind = iota
	KindAlbum
	KindPlaylist
)

func (k ItemKind) String() string {
	switch k {
	case KindTrack:
		return "track"
	case KindAlbum:
		return "album"
	case KindPlaylist:
		return "playlist"
	default:
		return ""
	}
}

func (k ItemKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *ItemKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "track":
		*k = KindTrack
	case "album":
		*k = KindAlbum
	case "playlist":
		*k = KindPlaylist
	default:
		return fmt.Errorf("unknown item kind %q", b)
	}
	return nil
}

// Confidence classifies how a destination identifier was found. Higher values carry stronger evidence.
type Confidence int

const (
	ConfidenceNone  Confidence = iota // no candidate
	ConfidenceFuzzy                   // top-ranked search result
	ConfidenceExact                   // normalized title and primary artist agree
	ConfidenceISRC                    // same recording code
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceNone:
		return "none"
	case ConfidenceFuzzy:
		return "fuzzy"
	case ConfidenceExact:
		return "exact"
	case ConfidenceISRC:
		return "isrc-exact"
	default:
		return ""
	}
}

// ParseConfidence is the inverse of [Confidence.String]. Unknown values map to [ConfidenceNone].
func ParseConfidence(s string) Confidence {
	switch s {
	case "fuzzy":
		return ConfidenceFuzzy
	case "exact":
		return ConfidenceExact
	case "isrc-exact":
		return ConfidenceISRC
	default:
		return ConfidenceNone
	}
}

// MatchResult is the outcome of one match attempt. It is never mutated after creation.
type MatchResult struct {
	Kind          ItemKind
	SourceID      string
	Label         string
	DestinationID string
	Confidence    Confidence
	Candidate     *Candidate
	Cached        bool // served from a match or failure cache without a search
}

// Matched reports whether a destination identifier was found.
func (m MatchResult) Matched() bool {
	return m.Confidence != ConfidenceNone && m.DestinationID != ""
}

// NoMatch builds a [ConfidenceNone] result.
func NoMatch(kind ItemKind, sourceID, label string) MatchResult {
	return MatchResult{Kind: kind, SourceID: sourceID, Label: label, Confidence: ConfidenceNone}
}

// NewMatch builds a result for the given candidate.
func NewMatch(kind ItemKind, sourceID, label string, c Candidate, conf Confidence) MatchResult {
	return MatchResult{
		Kind:          kind,
		SourceID:      sourceID,
		Label:         label,
		DestinationID: c.ID,
		Confidence:    conf,
		Candidate:     &c,
	}
}
