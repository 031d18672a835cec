package session

import (
	"context"
	"fmt"
	"sort"

	"github.com/kozaktomas/reid/internal/identity"
)

// BuildRoster turns the committed track resolutions of a finished session
// into the roster. Session membership is already recorded by the catalogue's
// atomic resolve, so this only reads appearance counts back. Detected-only
// tracks get their own roster entry with an appearance count of 1.
func BuildRoster(ctx context.Context, catalogue identity.Catalogue, sessionID string, resolutions []TrackResolution) ([]RosterEntry, Summary, error) {
	type merged struct {
		res       TrackResolution
		newThis   bool
		firstSeen int
		lastSeen  int
	}

	identified := make(map[string]*merged)
	var order []string
	var detected []RosterEntry

	for _, res := range resolutions {
		if !res.Identified {
			detected = append(detected, RosterEntry{
				SessionID:          sessionID,
				PersonID:           res.TrackID,
				Type:               TypeDetected,
				SessionAppearances: 1,
				NewThisSession:     true,
				FirstSeenFrame:     res.FirstSeenFrame,
				LastSeenFrame:      res.LastSeenFrame,
			})
			continue
		}

		m, ok := identified[res.IdentityID]
		if !ok {
			identified[res.IdentityID] = &merged{
				res:       res,
				newThis:   res.NewIdentity,
				firstSeen: res.FirstSeenFrame,
				lastSeen:  res.LastSeenFrame,
			}
			order = append(order, res.IdentityID)
			continue
		}
		// two tracks, one person: merge the seen range
		if res.FirstSeenFrame < m.firstSeen {
			m.firstSeen = res.FirstSeenFrame
		}
		if res.LastSeenFrame > m.lastSeen {
			m.lastSeen = res.LastSeenFrame
		}
		m.newThis = m.newThis || res.NewIdentity
	}

	entries := make([]RosterEntry, 0, len(order)+len(detected))
	for _, identityID := range order {
		m := identified[identityID]
		id, err := catalogue.Get(ctx, identityID)
		if err != nil {
			return nil, Summary{}, fmt.Errorf("reading identity %s: %w", identityID, err)
		}
		entries = append(entries, RosterEntry{
			SessionID:          sessionID,
			PersonID:           identityID,
			Type:               TypeIdentified,
			SessionAppearances: id.SessionCount(),
			NewThisSession:     m.newThis,
			FirstSeenFrame:     m.firstSeen,
			LastSeenFrame:      m.lastSeen,
		})
	}
	entries = append(entries, detected...)

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].FirstSeenFrame != entries[j].FirstSeenFrame {
			return entries[i].FirstSeenFrame < entries[j].FirstSeenFrame
		}
		return entries[i].PersonID < entries[j].PersonID
	})

	summary := Summary{
		SessionID:          sessionID,
		TotalUniquePersons: len(entries),
	}
	for _, e := range entries {
		if e.Type == TypeIdentified {
			summary.IdentifiedCount++
		} else {
			summary.DetectedCount++
		}
	}
	return entries, summary, nil
}
