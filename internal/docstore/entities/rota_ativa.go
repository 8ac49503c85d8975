package entities

import "time"

// RotaAtiva is the live-route record for one driver: where the driver is
// right now. Each position sample upserts this row; stopping a route marks
// it inactive rather than deleting it.
type RotaAtiva struct {
	MotoristaID string    `gorm:"primaryKey;size:32" json:"motorista_id"`
	Motorista   string    `gorm:"size:255;not null" json:"motorista"`
	Rota        string    `gorm:"size:255;not null" json:"rota"`
	Latitude    float64   `gorm:"not null" json:"latitude"`
	Longitude   float64   `gorm:"not null" json:"longitude"`
	Accuracy    float64   `gorm:"not null;default:0" json:"accuracy"`
	// Speed is meters per second as reported by the platform; nil when the
	// platform gave none.
	Speed     *float64  `json:"speed,omitempty"`
	Ativo     bool      `gorm:"not null;index" json:"ativo"`
	Timestamp time.Time `gorm:"not null" json:"timestamp"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the collection name for GORM.
func (RotaAtiva) TableName() string {
	return "rotas_ativas"
}
