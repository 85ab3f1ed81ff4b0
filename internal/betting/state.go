package betting

import (
	"time"

	"github.com/smartdevs17/stakebet/internal/models"
)

// DisplayState projects a session's stored state onto what a user sees.
// An open session whose start time has passed shows as Closed.
func DisplayState(session *models.BettingSession, now time.Time) models.DisplayState {
	if session == nil {
		return models.DisplayUnknown
	}
	switch session.State {
	case models.SessionStateOpen:
		if !now.Before(session.StartTime) {
			return models.DisplayClosed
		}
		return models.DisplayOpen
	case models.SessionStateResultRequested:
		return models.DisplayResultRequested
	case models.SessionStateSettled:
		return models.DisplaySettled
	default:
		return models.DisplayUnknown
	}
}

// AcceptsBets reports whether the session is shown as open for betting.
func AcceptsBets(session *models.BettingSession, now time.Time) bool {
	return DisplayState(session, now) == models.DisplayOpen
}
