package orchestrator

import "github.com/JakeFAU/pagewatch/internal/watch"

// AlertEvent is the payload published for the notification dispatcher.
type AlertEvent struct {
	Alert   watch.Alert `json:"alert"`
	URL     string      `json:"url"`
	Changes []string    `json:"changes"`
}

// Attributes lets subscribers filter on severity and tenant.
func (e AlertEvent) Attributes() map[string]string {
	return map[string]string{
		"event":     "alert.created",
		"severity":  string(e.Alert.Severity),
		"owner_id":  e.Alert.OwnerID,
		"target_id": e.Alert.TargetID,
	}
}
