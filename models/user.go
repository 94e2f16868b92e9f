package models

import (
	"time"
)

const DefaultAvatarURL = "/assets/default.png"

// Participant 参与者目录条目（患者、医生、保险机构）
type Participant struct {
	ID          string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	DisplayName string    `json:"displayName"`
	AvatarURL   string    `json:"avatarUrl"`
	Role        string    `json:"role,omitempty" gorm:"type:varchar(16);index"` // patient / doctor / insurance
	CreatedAt   time.Time `json:"-"`
	UpdatedAt   time.Time `json:"-"`
}

// PlaceholderParticipant is shown when the directory lookup fails.
func PlaceholderParticipant(id string) Participant {
	return Participant{ID: id, DisplayName: id, AvatarURL: DefaultAvatarURL}
}
