package models

import (
	"time"
)

type User struct {
	ID           int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Email        string    `json:"email" gorm:"type:text;index:user_email,unique;not null"`
	PasswordHash string    `json:"-" gorm:"type:text;not null"`
	FirstName    string    `json:"firstName" gorm:"type:text;not null"`
	LastName     string    `json:"lastName" gorm:"type:text;not null"`
	MobileNumber string    `json:"mobileNumber" gorm:"type:text;index"`
	Role         string    `json:"role" gorm:"type:text;not null;index"`
	Lat          *float64  `json:"lat" gorm:"type:double precision"`
	Lng          *float64  `json:"lng" gorm:"type:double precision"`
	CDate        time.Time `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
}

type Issue struct {
	ID           int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	PublicID     string     `json:"publicId" gorm:"type:text;index:issue_public_id,unique;not null"`
	Title        string     `json:"title" gorm:"type:text;not null"`
	Description  string     `json:"description" gorm:"type:text;not null"`
	Category     string     `json:"category" gorm:"type:text;not null"`
	PhotoURLs    string     `json:"photoUrls" gorm:"type:text"`
	Lat          float64    `json:"lat" gorm:"type:double precision;not null"`
	Lng          float64    `json:"lng" gorm:"type:double precision;not null"`
	Status       string     `json:"status" gorm:"type:text;not null;index"`
	Rating       *int       `json:"rating" gorm:"type:integer"`
	ReporterID   int64      `json:"reporterId" gorm:"index;not null"`
	Reporter     User       `json:"-" gorm:"foreignKey:ReporterID;constraint:OnDelete:CASCADE;"`
	AssignedToID *int64     `json:"assignedToId" gorm:"index"`
	AssignedTo   *User      `json:"-" gorm:"foreignKey:AssignedToID;constraint:OnDelete:SET NULL;"`
	ResolvedAt   *time.Time `json:"resolvedAt" gorm:"type:timestamp with time zone"`
	CDate        time.Time  `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
	Comments     []Comment  `json:"comments" gorm:"constraint:OnDelete:CASCADE;"`
}

type Comment struct {
	ID       int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	IssueID  int64     `json:"issueId" gorm:"index;not null"`
	AuthorID int64     `json:"authorId" gorm:"index;not null"`
	Author   User      `json:"-" gorm:"foreignKey:AuthorID;constraint:OnDelete:CASCADE;"`
	Text     string    `json:"text" gorm:"type:text;not null"`
	CDate    time.Time `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
}
