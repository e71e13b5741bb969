package main

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"storyvoice/internal/api"
	"storyvoice/internal/catalog"
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type dashboardJSON struct {
	UserID             string          `json:"user_id"`
	Recorded           []api.Story     `json:"my_stories"`
	Available          []api.Story     `json:"available_stories"`
	Recordings         []api.Recording `json:"recordings"`
	RecordingsDegraded bool            `json:"recordings_degraded,omitempty"`
	RecordingStatus    json.RawMessage `json:"recording_status,omitempty"`
	SnapshotAt         *time.Time      `json:"snapshot_at,omitempty"`
}

func newDashboardJSON(uid string, view catalog.View, recordings []api.Recording, degraded bool) dashboardJSON {
	out := dashboardJSON{
		UserID:             uid,
		Recorded:           view.Mine,
		Available:          view.Available,
		Recordings:         recordings,
		RecordingsDegraded: degraded,
	}
	if out.Recorded == nil {
		out.Recorded = []api.Story{}
	}
	if out.Available == nil {
		out.Available = []api.Story{}
	}
	if out.Recordings == nil {
		out.Recordings = []api.Recording{}
	}
	return out
}

type sessionJSON struct {
	StoryID     string          `json:"story_id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Exists      bool            `json:"exists"`
	Status      string          `json:"status"`
	Narration   bool            `json:"narration_available"`
	Others      []api.Recording `json:"other_recordings"`
}
