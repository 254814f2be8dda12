package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/angelmondragon/newsletter-backend/pkg/db/types"
	"github.com/angelmondragon/newsletter-backend/pkg/enums"
)

// Idempotency stores the admission record and cached response for an (actor, key) pair.
type Idempotency struct {
	ActorID            uuid.UUID               `gorm:"column:actor_id;type:uuid;primaryKey"`
	IdempotencyKey     string                  `gorm:"column:idempotency_key;primaryKey"`
	Status             enums.IdempotencyStatus `gorm:"column:status;not null"`
	ResponseStatusCode *int16                  `gorm:"column:response_status_code"`
	ResponseHeaders    dbtypes.HeaderPairs     `gorm:"column:response_headers;type:jsonb"`
	ResponseBody       []byte                  `gorm:"column:response_body;type:bytea"`
	CreatedAt          time.Time               `gorm:"column:created_at;not null"`
}

func (Idempotency) TableName() string {
	return "idempotency"
}
