package store

import (
	"time"

	"gorm.io/datatypes"

	"confessly/pkg/domain"
)

// GORM models used for persistence. Field names are part of the data
// contract and mirror pkg/domain.
type UserModel struct {
	ID                    string `gorm:"primaryKey"`
	DailyPostCount        int    `gorm:"not null;default:0"`
	DailyReportCount      int    `gorm:"not null;default:0"`
	LastPostTime          time.Time
	LastReportTime        time.Time
	LastNotificationTime  time.Time
	PaidConfessionCredits int                                             `gorm:"not null;default:0"`
	NotificationSettings  datatypes.JSONType[domain.NotificationSettings] `gorm:"type:jsonb"`
	PushToken             string                                          `gorm:"index"`
}

func (UserModel) TableName() string { return "users" }

type ConfessionModel struct {
	ID               string `gorm:"primaryKey"`
	Content          string `gorm:"type:text;not null"`
	Category         string `gorm:"not null;index"`
	UserID           string `gorm:"not null;index"`
	City             string
	State            string
	Country          string
	ReactionCounts   datatypes.JSONType[map[domain.ReactionKind]int] `gorm:"type:jsonb"`
	ReportCount      int                                             `gorm:"not null;default:0"`
	IsTop            bool                                            `gorm:"not null;default:false"`
	IsHighlighted    bool                                            `gorm:"not null;default:false"`
	HighlightEndTime time.Time
	HighlightedBy    string
	IsPaid           bool      `gorm:"not null;default:false"`
	CreatedAt        time.Time `gorm:"not null;index"`
}

func (ConfessionModel) TableName() string { return "confessions" }

type ReactionModel struct {
	ConfessionID string    `gorm:"primaryKey"`
	UserID       string    `gorm:"primaryKey"`
	ReactionType string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (ReactionModel) TableName() string { return "reactions" }

type ReportModel struct {
	ConfessionID string    `gorm:"primaryKey"`
	ReporterID   string    `gorm:"primaryKey"`
	Reason       string    `gorm:"type:text;not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (ReportModel) TableName() string { return "reports" }

type UsedTokenModel struct {
	Token     string    `gorm:"primaryKey"`
	UserID    string    `gorm:"not null"`
	ProductID string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (UsedTokenModel) TableName() string { return "used_tokens" }

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:                    u.ID,
		DailyPostCount:        u.DailyPostCount,
		DailyReportCount:      u.DailyReportCount,
		LastPostTime:          u.LastPostTime,
		LastReportTime:        u.LastReportTime,
		LastNotificationTime:  u.LastNotificationTime,
		PaidConfessionCredits: u.PaidConfessionCredits,
		NotificationSettings:  datatypes.NewJSONType(u.NotificationSettings),
		PushToken:             u.PushToken,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:                    m.ID,
		DailyPostCount:        m.DailyPostCount,
		DailyReportCount:      m.DailyReportCount,
		LastPostTime:          m.LastPostTime,
		LastReportTime:        m.LastReportTime,
		LastNotificationTime:  m.LastNotificationTime,
		PaidConfessionCredits: m.PaidConfessionCredits,
		NotificationSettings:  m.NotificationSettings.Data(),
		PushToken:             m.PushToken,
	}
}

func confessionToModel(c domain.Confession) ConfessionModel {
	return ConfessionModel{
		ID:               c.ID,
		Content:          c.Content,
		Category:         c.Category,
		UserID:           c.UserID,
		City:             c.City,
		State:            c.State,
		Country:          c.Country,
		ReactionCounts:   datatypes.NewJSONType(c.ReactionCounts),
		ReportCount:      c.ReportCount,
		IsTop:            c.IsTop,
		IsHighlighted:    c.IsHighlighted,
		HighlightEndTime: c.HighlightEndTime,
		HighlightedBy:    c.HighlightedBy,
		IsPaid:           c.IsPaid,
		CreatedAt:        c.CreatedAt,
	}
}

func confessionFromModel(m ConfessionModel) domain.Confession {
	return domain.Confession{
		ID:               m.ID,
		Content:          m.Content,
		Category:         m.Category,
		UserID:           m.UserID,
		City:             m.City,
		State:            m.State,
		Country:          m.Country,
		ReactionCounts:   m.ReactionCounts.Data(),
		ReportCount:      m.ReportCount,
		IsTop:            m.IsTop,
		IsHighlighted:    m.IsHighlighted,
		HighlightEndTime: m.HighlightEndTime,
		HighlightedBy:    m.HighlightedBy,
		IsPaid:           m.IsPaid,
		CreatedAt:        m.CreatedAt,
	}
}

func reactionToModel(r domain.Reaction) ReactionModel {
	return ReactionModel{
		ConfessionID: r.ConfessionID,
		UserID:       r.UserID,
		ReactionType: string(r.Kind),
		CreatedAt:    r.CreatedAt,
	}
}

func reactionFromModel(m ReactionModel) domain.Reaction {
	return domain.Reaction{
		ConfessionID: m.ConfessionID,
		UserID:       m.UserID,
		Kind:         domain.ReactionKind(m.ReactionType),
		CreatedAt:    m.CreatedAt,
	}
}

func reportToModel(r domain.Report) ReportModel {
	return ReportModel{
		ConfessionID: r.ConfessionID,
		ReporterID:   r.ReporterID,
		Reason:       r.Reason,
		CreatedAt:    r.CreatedAt,
	}
}

func usedTokenToModel(t domain.UsedToken) UsedTokenModel {
	return UsedTokenModel{
		Token:     t.Token,
		UserID:    t.UserID,
		ProductID: t.ProductID,
		CreatedAt: t.CreatedAt,
	}
}
