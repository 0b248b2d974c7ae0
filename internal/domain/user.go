package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID         uint64          `json:"id" gorm:"primaryKey;autoIncrement"`
	Nickname   string          `json:"nickname" gorm:"type:varchar(64)"`
	Phone      string          `json:"phone" gorm:"type:varchar(32)"`
	Balance    decimal.Decimal `json:"balance" gorm:"type:decimal(10,2);not null;default:0"`
	IsDelivery bool            `json:"isDelivery" gorm:"not null;default:false"`
	IsReceiver bool            `json:"isReceiver" gorm:"not null;default:false"`
	Status     int             `json:"status" gorm:"not null;default:1"`
	CreateTime time.Time       `json:"createTime" gorm:"autoCreateTime"`
	UpdateTime time.Time       `json:"updateTime" gorm:"autoUpdateTime"`
}

func (User) TableName() string {
	return "users"
}

type Shop struct {
	ID      uint64 `json:"id" gorm:"primaryKey;autoIncrement"`
	Name    string `json:"name" gorm:"type:varchar(128);not null"`
	OwnerID uint64 `json:"ownerId" gorm:"not null;uniqueIndex"`
	Status  int    `json:"status" gorm:"not null;default:1"`
}

func (Shop) TableName() string {
	return "shops"
}

type ApplicationType string

const (
	ApplicationDelivery ApplicationType = "delivery"
	ApplicationReceiver ApplicationType = "receiver"
)

type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "pending"
	ApplicationApproved ApplicationStatus = "approved"
	ApplicationRejected ApplicationStatus = "rejected"
)

// RoleApplication is a user's request to become a delivery or receiver user.
type RoleApplication struct {
	ID              uint64            `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID          uint64            `json:"userId" gorm:"not null;index:idx_app_user_type"`
	ApplicationType ApplicationType   `json:"applicationType" gorm:"type:varchar(16);not null;index:idx_app_user_type"`
	RealName        string            `json:"realName" gorm:"type:varchar(64);not null"`
	IDNumber        string            `json:"idNumber" gorm:"type:varchar(32);not null"`
	StudentNumber   string            `json:"studentNumber" gorm:"type:varchar(32);not null"`
	Phone           string            `json:"phone" gorm:"type:varchar(32);not null"`
	IDCardFrontURL  string            `json:"idCardFrontUrl" gorm:"type:varchar(255);not null"`
	IDCardBackURL   string            `json:"idCardBackUrl" gorm:"type:varchar(255);not null"`
	Status          ApplicationStatus `json:"status" gorm:"type:varchar(16);not null;index"`
	ReviewComment   string            `json:"reviewComment" gorm:"type:varchar(255)"`
	ReviewerID      *uint64           `json:"reviewerId"`
	ReviewTime      *time.Time        `json:"reviewTime"`
	CreateTime      time.Time         `json:"createTime" gorm:"not null"`
	UpdateTime      time.Time         `json:"updateTime" gorm:"not null"`
}

func (RoleApplication) TableName() string {
	return "role_applications"
}
