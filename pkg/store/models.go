package store

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/atharva9604/conversational-insights-generator/pkg/domain"
)

// CallRecordModel is the GORM model backing the call_records table.
// The created_at DESC index is created separately in the migration because
// GORM tags cannot express index sort order.
type CallRecordModel struct {
	ID             int64          `gorm:"primaryKey;autoIncrement"`
	UniqueID       string         `gorm:"column:unique_id;type:uuid;uniqueIndex:idx_call_records_unique_id;not null"`
	Transcript     string         `gorm:"type:text;not null"`
	Intent         string         `gorm:"type:text;not null"`
	Sentiment      string         `gorm:"type:text;not null;index:idx_call_records_sentiment;check:sentiment IN ('Negative','Neutral','Positive')"`
	ActionRequired bool           `gorm:"not null;index:idx_call_records_action_required"`
	Summary        string         `gorm:"type:text;not null"`
	Metadata       datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt      time.Time      `gorm:"not null"`
	UpdatedAt      time.Time      `gorm:"not null"`
}

// TableName implements the GORM tabler interface.
func (CallRecordModel) TableName() string { return "call_records" }

func recordToModel(transcript string, ins domain.Insight, metadata map[string]any, uniqueID string) (CallRecordModel, error) {
	model := CallRecordModel{
		UniqueID:       uniqueID,
		Transcript:     transcript,
		Intent:         ins.CustomerIntent,
		Sentiment:      string(ins.Sentiment),
		ActionRequired: ins.ActionRequired,
		Summary:        ins.Summary,
	}
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return CallRecordModel{}, err
		}
		model.Metadata = raw
	}
	return model, nil
}

func recordFromModel(m CallRecordModel) domain.CallRecord {
	var metadata map[string]any
	if len(m.Metadata) > 0 {
		_ = json.Unmarshal(m.Metadata, &metadata)
	}
	return domain.CallRecord{
		ID:             m.ID,
		UniqueID:       m.UniqueID,
		Transcript:     m.Transcript,
		CustomerIntent: m.Intent,
		Sentiment:      domain.Sentiment(m.Sentiment),
		ActionRequired: m.ActionRequired,
		Summary:        m.Summary,
		Metadata:       metadata,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}
