package main

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const notificationTTL = 30 * 24 * time.Hour

var ErrNotificationNotFound = errors.New("notification not found")

// Ledger stores the durable per-user notification records derived from
// distributed alerts. One record is created per (alert, recipient) pair no
// matter whether the recipient was online.
type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// Record writes one notification. Title and category are copied from the
// alert so the record stays displayable after the alert is deleted.
func (l *Ledger) Record(recipientID string, alert AlertPayload, kind string) error {
	n := Notification{
		NotificationsID: uuid.NewString(),
		UsersID:         recipientID,
		AlertsID:        alert.ID,
		Kind:            kind,
		Title:           alert.Title,
		Category:        alert.Category,
		ExpiresAt:       time.Now().Add(notificationTTL),
	}
	return l.db.Create(&n).Error
}

// NotificationView is a notification joined against its still-existing alert.
type NotificationView struct {
	Notification
	AlertTitle     string  `json:"alertTitle"`
	AlertCategory  string  `json:"alertCategory"`
	AlertCreatedBy string  `json:"alertCreatedBy"`
	AlertLongitude float64 `json:"alertLongitude"`
	AlertLatitude  float64 `json:"alertLatitude"`
}

// ListForUser returns the recipient's notifications newest first. Entries
// whose alert has been deleted are never returned: a dangling reference is
// filtered out here, not resolved. Expired rows are purged on the way in
// rather than by a background poller.
func (l *Ledger) ListForUser(recipientID string, page, pageSize int) ([]NotificationView, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	l.purgeExpired(recipientID)

	views := []NotificationView{}
	err := l.db.Model(&Notification{}).
		Select("notifications.*, alerts.title AS alert_title, alerts.category AS alert_category, alerts.createdby AS alert_created_by, alerts.longitude AS alert_longitude, alerts.latitude AS alert_latitude").
		Joins("JOIN alerts ON alerts.alertid = notifications.alertid AND alerts.deleted_at IS NULL").
		Where("notifications.userid = ?", recipientID).
		Order("notifications.created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Scan(&views).Error
	if err != nil {
		return nil, err
	}
	return views, nil
}

// UnreadCount counts unread notifications whose alert still exists.
func (l *Ledger) UnreadCount(recipientID string) (int64, error) {
	var count int64
	err := l.db.Model(&Notification{}).
		Joins("JOIN alerts ON alerts.alertid = notifications.alertid AND alerts.deleted_at IS NULL").
		Where("notifications.userid = ? AND notifications.isread = ? AND notifications.expires_at > ?",
			recipientID, false, time.Now()).
		Count(&count).Error
	return count, err
}

// MarkRead flips one notification to read. The recipient must own it;
// otherwise ErrNotificationNotFound, never a silent success.
func (l *Ledger) MarkRead(notificationID, recipientID string) error {
	res := l.db.Model(&Notification{}).
		Where("notificationid = ? AND userid = ?", notificationID, recipientID).
		Update("isread", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (l *Ledger) MarkAllRead(recipientID string) error {
	return l.db.Model(&Notification{}).
		Where("userid = ? AND isread = ?", recipientID, false).
		Update("isread", true).Error
}

// Delete removes one notification, ownership-checked like MarkRead.
func (l *Ledger) Delete(notificationID, recipientID string) error {
	res := l.db.
		Where("notificationid = ? AND userid = ?", notificationID, recipientID).
		Delete(&Notification{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (l *Ledger) purgeExpired(recipientID string) {
	if err := l.db.
		Where("userid = ? AND expires_at <= ?", recipientID, time.Now()).
		Delete(&Notification{}).Error; err != nil {
		zap.S().With("method", "purgeExpired", "user", recipientID).Error("db:purge expired notifications:", err)
	}
}
