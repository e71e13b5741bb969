package catalog

import (
	"storyvoice/internal/api"
)

// View partitions the catalog for one user.
type View struct {
	// Available holds catalog stories the user has not recorded, in catalog order.
	Available []api.Story
	// Mine holds one entry per story the user has recorded, in order of the
	// story's first recording. Description is empty: recordings do not carry it.
	Mine []api.Story
}

// Reconcile computes the user's view from the catalog and the user's
// recordings. It is a pure function of its inputs. Duplicate recordings of a
// story fold into one Mine entry built from the first recording seen.
func Reconcile(stories []api.Story, recordings []api.Recording) View {
	owned := make(map[string]struct{}, len(recordings))
	mine := make([]api.Story, 0, len(recordings))
	for _, rec := range recordings {
		if _, seen := owned[rec.StoryID]; seen {
			continue
		}
		owned[rec.StoryID] = struct{}{}
		mine = append(mine, api.Story{
			StoryID:   rec.StoryID,
			Title:     rec.Title,
			CreatedAt: rec.CreatedAt,
		})
	}

	available := make([]api.Story, 0, len(stories))
	for _, story := range stories {
		if _, ok := owned[story.StoryID]; ok {
			continue
		}
		available = append(available, story)
	}
	return View{Available: available, Mine: mine}
}

// Owns reports whether the view lists storyID among the user's stories.
func (v View) Owns(storyID string) bool {
	for _, s := range v.Mine {
		if s.StoryID == storyID {
			return true
		}
	}
	return false
}
