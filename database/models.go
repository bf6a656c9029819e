package database

import (
	"time"
)

// CustomModel 替换 gorm.Model
type CustomModel struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// User 用户模型，远端对象 ID 与 URL 一起保存，替换时才能删除旧文件
type User struct {
	CustomModel
	Username     string `gorm:"type:varchar(50);uniqueIndex;not null" json:"username"`
	Email        string `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	FullName     string `gorm:"type:varchar(100);not null" json:"fullname"`
	Avatar       string `gorm:"type:varchar(512)" json:"avatar"`
	AvatarID     string `gorm:"type:varchar(255)" json:"-"`
	CoverImage   string `gorm:"type:varchar(512)" json:"coverImage"`
	CoverImageID string `gorm:"type:varchar(255)" json:"-"`
	Password     string `gorm:"type:varchar(255);not null" json:"-"`
}

// Video 视频模型
type Video struct {
	CustomModel
	OwnerID     uint    `gorm:"index;not null" json:"owner"`
	Owner       User    `gorm:"foreignKey:OwnerID" json:"-"`
	Title       string  `gorm:"type:varchar(255);not null" json:"title"`
	Description string  `gorm:"type:text;not null" json:"description"`
	VideoFile   string  `gorm:"type:varchar(512);not null" json:"videoFile"`
	VideoFileID string  `gorm:"type:varchar(255)" json:"-"`
	Thumbnail   string  `gorm:"type:varchar(512);not null" json:"thumbnail"`
	ThumbnailID string  `gorm:"type:varchar(255)" json:"-"`
	Duration    float64 `json:"duration"`
	Views       int64   `gorm:"default:0" json:"views"`
	IsPublished bool    `gorm:"default:true" json:"isPublished"`
}
