package main

import (
	"time"

	"gorm.io/gorm"
)

// Categories is the closed set of alert tags users can subscribe to.
var Categories = []string{
	"blood_donation",
	"jobs",
	"tutoring",
	"lost_and_found",
	"urgent_help",
	"food_giveaway",
	"disaster_alert",
}

func ValidCategory(c string) bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

const (
	// Personal alert radius bounds in meters.
	MinAlertRadius     = 500
	DefaultAlertRadius = 3000
	MaxAlertRadius     = 10000

	// HardCapMeters bounds the coarse candidate query. It is a performance
	// guard, not a delivery rule, and must never be below MaxAlertRadius.
	HardCapMeters = 10000
)

type User struct {
	gorm.Model

	UsersID     string  `json:"usersid" gorm:"column:userid;uniqueIndex"`
	Name        string  `json:"name" gorm:"column:name"`
	Longitude   float64 `json:"longitude" gorm:"column:longitude;index"`
	Latitude    float64 `json:"latitude" gorm:"column:latitude;index"`
	AlertRadius float64 `json:"alertRadius" gorm:"column:alert_radius"`
}

type UserInterest struct {
	gorm.Model

	UsersID string `json:"usersid" gorm:"column:userid;index"`
	Tag     string `json:"tag" gorm:"column:tag;index"`
}

type Alert struct {
	gorm.Model

	AlertsID    string  `json:"alertsid" gorm:"column:alertid;uniqueIndex"`
	Title       string  `json:"title" gorm:"column:title"`
	Category    string  `json:"category" gorm:"column:category;index"`
	Description string  `json:"description" gorm:"column:description"`
	Longitude   float64 `json:"longitude" gorm:"column:longitude;index"`
	Latitude    float64 `json:"latitude" gorm:"column:latitude;index"`
	CreatedBy   string  `json:"createdBy" gorm:"column:createdby;index"`
}

// Delivery kinds recorded on a notification.
const (
	DeliveryLive   = "live"
	DeliveryQueued = "queued"
)

// Notification is the durable record of one alert delivered to one user.
// AlertsID is a weak reference: the alert may be deleted afterwards, so
// Title and Category are denormalized for display.
type Notification struct {
	gorm.Model

	NotificationsID string    `json:"notificationsid" gorm:"column:notificationid;uniqueIndex"`
	UsersID         string    `json:"usersid" gorm:"column:userid;index"`
	AlertsID        string    `json:"alertsid" gorm:"column:alertid;index"`
	Kind            string    `json:"kind" gorm:"column:kind"`
	IsRead          bool      `json:"isRead" gorm:"column:isread;index"`
	Title           string    `json:"title" gorm:"column:title"`
	Category        string    `json:"category" gorm:"column:category"`
	ExpiresAt       time.Time `json:"expiresAt" gorm:"column:expires_at;index"`
}

// AlertPayload is the wire shape of an alert, carried on the bus channel and
// in new_alert events.
type AlertPayload struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	Longitude   float64   `json:"longitude"`
	Latitude    float64   `json:"latitude"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
}

func NewAlertPayload(a Alert) AlertPayload {
	return AlertPayload{
		ID:          a.AlertsID,
		Title:       a.Title,
		Category:    a.Category,
		Description: a.Description,
		Longitude:   a.Longitude,
		Latitude:    a.Latitude,
		CreatedBy:   a.CreatedBy,
		CreatedAt:   a.CreatedAt,
	}
}

// AlertMessage is the bus payload published once per created alert.
type AlertMessage struct {
	AlertID string       `json:"alertId"`
	Alert   AlertPayload `json:"alert"`
}

// Events pushed to websocket clients.
const (
	EventNewAlert              = "new_alert"
	EventQueuedAlertsDelivered = "queued_alerts_delivered"
)

type ClientEvent struct {
	Type    string        `json:"type"`
	Alert   *AlertPayload `json:"alert,omitempty"`
	Count   int           `json:"count,omitempty"`
	Message string        `json:"message,omitempty"`
}
