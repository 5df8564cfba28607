package hub

import "pagepulse/api/models"

// notificationFor builds the live payload for one event: eventType and
// sessionId always, plus the fields that make sense for the type. This is
// deliberately smaller than the stored record; details like IP and
// User-Agent never leave the store.
func notificationFor(event models.Event) map[string]any {
	payload := map[string]any{
		"eventType": event.EventType,
		"sessionId": event.SessionID,
	}

	switch event.EventType {
	case models.EventPageView:
		payload["page"] = event.Page
		payload["referrer"] = event.Referrer
	case models.EventArticleRead:
		payload["article"] = event.Page
		payload["duration"] = event.Duration
	case models.EventClick:
		payload["clicked"] = event.Details["clicked"]
		payload["target"] = event.Details["target"]
	}

	return payload
}
