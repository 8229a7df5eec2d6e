package store

import (
	"time"

	"github.com/wagmirep/lahstats/internal/session"
)

// ClaimType identifies how a diarized speaker was attributed.
type ClaimType string

const (
	// ClaimNone marks a speaker nobody has claimed yet.
	ClaimNone ClaimType = ""
	// ClaimSelf attributes the speaker to the calling user.
	ClaimSelf ClaimType = "self"
	// ClaimUser attributes the speaker to another group member.
	ClaimUser ClaimType = "user"
	// ClaimGuest attributes the speaker to an unregistered guest by name.
	ClaimGuest ClaimType = "guest"
)

// Session is one group recording session moving through the processing
// lifecycle.
type Session struct {
	ID           string
	GroupID      string
	CreatedBy    string
	Status       session.Status
	Progress     int
	ErrorMessage string
	Duration     time.Duration
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Chunk is one uploaded audio chunk belonging to a session.
type Chunk struct {
	ID        int64
	SessionID string
	Sequence  int
	BlobRef   string
	SizeBytes int64
	Duration  time.Duration
	CreatedAt time.Time
}

// ChunkTranscript is the cached opportunistic transcription of one chunk.
// Rows are written once on upload and never mutated.
type ChunkTranscript struct {
	SessionID     string
	Sequence      int
	RawText       string
	CorrectedText string
	WordCounts    map[string]int
	CreatedAt     time.Time
}

// Speaker is one diarized speaker track within a session, including its
// aggregated word counts and eventual attribution.
type Speaker struct {
	ID           string
	SessionID    string
	Label        string
	WordCounts   map[string]int
	SegmentCount int
	Duration     time.Duration
	SampleRef    string
	ClaimType    ClaimType
	ClaimedBy    string
	GuestName    string
	ClaimedAt    *time.Time
}

// Claimed reports whether the speaker has been attributed.
func (sp *Speaker) Claimed() bool { return sp.ClaimType != ClaimNone }
