package dispatcher

import (
	"encoding/json"

	"github.com/iaros/marketwatch/internal/models"
)

func encodeMonitoredPayload(p models.MonitoredProduct) (json.RawMessage, error) {
	userID := p.UserID
	targetPrice := p.TargetPrice
	return json.Marshal(scrapePayload{
		URL:         p.URL,
		MonitoredID: p.ID,
		UserID:      &userID,
		Name:        p.Name,
		TargetPrice: &targetPrice,
	})
}

func encodeCompetitorPayload(c models.CompetitorProduct) (json.RawMessage, error) {
	competitorID := c.ID
	return json.Marshal(scrapePayload{
		URL:          c.URL,
		MonitoredID:  c.MonitoredID,
		CompetitorID: &competitorID,
	})
}
