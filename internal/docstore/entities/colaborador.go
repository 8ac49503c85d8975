// Package entities defines the document-store collections as GORM models.
// Collection and field names follow the portal frontend's document keys.
package entities

import "time"

// Employee roles stored in the perfil field.
const (
	PerfilMotorista  = "motorista"
	PerfilPassageiro = "passageiro"
	PerfilAdmin      = "admin"
)

// Colaborador is one employee-directory record, keyed by the employee ID
// (matricula) the driver types at login.
type Colaborador struct {
	Matricula string    `gorm:"primaryKey;size:32" json:"matricula"`
	Nome      string    `gorm:"size:255;not null" json:"nome"`
	Ativo     bool      `gorm:"not null;default:true" json:"ativo"`
	Perfil    string    `gorm:"size:32;not null;index" json:"perfil"`
	// Email and PasswordHash are set only for admin accounts that sign in
	// with credentials.
	Email        string    `gorm:"size:255;default:'';index" json:"email,omitempty"`
	PasswordHash string    `gorm:"size:255;default:''" json:"-"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the collection name for GORM.
func (Colaborador) TableName() string {
	return "colaboradores"
}
