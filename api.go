package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// API is the request/response surface around the core: alert authoring,
// notification reads and the user profile slice the distributor depends on.
// Creating an alert persists it and publishes one bus message, nothing more;
// delivery lives entirely behind the trigger.
type API struct {
	db     *gorm.DB
	bus    *Bus
	ledger *Ledger
}

func NewAPI(db *gorm.DB, bus *Bus, ledger *Ledger) *API {
	return &API{db: db, bus: bus, ledger: ledger}
}

func (a *API) Routes(r chi.Router) {
	r.Route("/api/alerts", func(r chi.Router) {
		r.Post("/", a.createAlert)
		r.Get("/", a.listAlerts)
		r.Get("/near", a.listAlertsNearMe)
		r.Get("/category/{category}", a.listAlertsByCategory)
		r.Get("/category/{category}/near", a.listAlertsNearbyByCategory)
		r.Delete("/{id}", a.deleteAlert)
	})
	r.Route("/api/notifications", func(r chi.Router) {
		r.Get("/", a.listNotifications)
		r.Get("/unread-count", a.unreadCount)
		r.Patch("/read-all", a.markAllRead)
		r.Patch("/{id}/read", a.markRead)
		r.Delete("/{id}", a.deleteNotification)
	})
	r.Route("/api/users", func(r chi.Router) {
		r.Put("/location", a.saveLocation)
		r.Get("/location", a.getLocation)
		r.Put("/interests", a.saveInterests)
		r.Get("/interests", a.getInterests)
		r.Put("/radius", a.saveRadius)
	})
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.S().Error("respond:", err)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]interface{}{
		"success": false,
		"message": msg,
	})
}

// callerID pulls the authenticated user from the request. Session issuance is
// the auth collaborator's job; by the time requests land here the gateway has
// stamped X-User-ID.
func callerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get("X-User-ID")
	if id == "" {
		respondError(w, http.StatusUnauthorized, "missing user identity")
		return "", false
	}
	return id, true
}

// ---------------- alerts ----------------

func (a *API) createAlert(w http.ResponseWriter, r *http.Request) {
	log := zap.S().With("method", "createAlert")
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	in := struct {
		Title       string  `json:"title"`
		Category    string  `json:"category"`
		Description string  `json:"description"`
		Longitude   float64 `json:"longitude"`
		Latitude    float64 `json:"latitude"`
	}{}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if in.Title == "" {
		respondError(w, http.StatusBadRequest, "title is required")
		return
	}
	if !ValidCategory(in.Category) {
		respondError(w, http.StatusBadRequest, "unknown category")
		return
	}

	alert := Alert{
		AlertsID:    uuid.NewString(),
		Title:       in.Title,
		Category:    in.Category,
		Description: in.Description,
		Longitude:   in.Longitude,
		Latitude:    in.Latitude,
		CreatedBy:   userID,
	}
	if err := a.db.Create(&alert).Error; err != nil {
		log.Error("db:create alert:", err)
		respondError(w, http.StatusInternalServerError, "failed to create alert")
		return
	}

	if err := a.bus.PublishAlert(r.Context(), NewAlertPayload(alert)); err != nil {
		// The alert exists but will not be distributed; surfacing a 500
		// here would just tempt the client into creating a duplicate.
		log.Error("bus:publish alert ", alert.AlertsID, ": ", err)
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"alert":   NewAlertPayload(alert),
	})
}

func (a *API) listAlerts(w http.ResponseWriter, r *http.Request) {
	alerts := []Alert{}
	if err := a.db.Order("created_at DESC").Find(&alerts).Error; err != nil {
		zap.S().Error("db:list alerts:", err)
		respondError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	respondAlerts(w, alerts)
}

func (a *API) listAlertsByCategory(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	if !ValidCategory(category) {
		respondError(w, http.StatusBadRequest, "unknown category")
		return
	}
	alerts := []Alert{}
	if err := a.db.Where("category = ?", category).
		Order("created_at DESC").Find(&alerts).Error; err != nil {
		zap.S().Error("db:list alerts by category:", err)
		respondError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	respondAlerts(w, alerts)
}

func (a *API) listAlertsNearMe(w http.ResponseWriter, r *http.Request) {
	a.nearby(w, r, "")
}

func (a *API) listAlertsNearbyByCategory(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	if !ValidCategory(category) {
		respondError(w, http.StatusBadRequest, "unknown category")
		return
	}
	a.nearby(w, r, category)
}

// nearby lists alerts around the caller's stored location within the
// caller's own alert radius, optionally restricted to one category.
func (a *API) nearby(w http.ResponseWriter, r *http.Request, category string) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	user, err := a.findUser(userID)
	if err != nil {
		respondError(w, http.StatusNotFound, "no location on record")
		return
	}

	dLat, dLon := BoundingBox(user.Latitude, user.AlertRadius)
	q := a.db.Where("latitude BETWEEN ? AND ?", user.Latitude-dLat, user.Latitude+dLat).
		Where("longitude BETWEEN ? AND ?", user.Longitude-dLon, user.Longitude+dLon)
	if category != "" {
		q = q.Where("category = ?", category)
	}
	alerts := []Alert{}
	if err := q.Order("created_at DESC").Find(&alerts).Error; err != nil {
		zap.S().Error("db:list nearby alerts:", err)
		respondError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}

	within := alerts[:0]
	for _, al := range alerts {
		if HaversineDistance(user.Longitude, user.Latitude, al.Longitude, al.Latitude) <= user.AlertRadius {
			within = append(within, al)
		}
	}
	respondAlerts(w, within)
}

func (a *API) deleteAlert(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	res := a.db.Where("alertid = ? AND createdby = ?", id, userID).Delete(&Alert{})
	if res.Error != nil {
		zap.S().Error("db:delete alert:", res.Error)
		respondError(w, http.StatusInternalServerError, "failed to delete alert")
		return
	}
	if res.RowsAffected == 0 {
		respondError(w, http.StatusNotFound, "alert not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "alert deleted",
	})
}

func respondAlerts(w http.ResponseWriter, alerts []Alert) {
	out := make([]AlertPayload, 0, len(alerts))
	for _, al := range alerts {
		out = append(out, NewAlertPayload(al))
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"alerts":  out,
	})
}

// ---------------- notifications ----------------

func (a *API) listNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	views, err := a.ledger.ListForUser(userID, page, limit)
	if err != nil {
		zap.S().Error("db:list notifications:", err)
		respondError(w, http.StatusInternalServerError, "failed to fetch notifications")
		return
	}
	unread, err := a.ledger.UnreadCount(userID)
	if err != nil {
		zap.S().Error("db:unread count:", err)
		respondError(w, http.StatusInternalServerError, "failed to fetch notifications")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"notifications": views,
		"unreadCount":   unread,
	})
}

func (a *API) unreadCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	unread, err := a.ledger.UnreadCount(userID)
	if err != nil {
		zap.S().Error("db:unread count:", err)
		respondError(w, http.StatusInternalServerError, "failed to fetch unread count")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"unreadCount": unread,
	})
}

func (a *API) markRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	err := a.ledger.MarkRead(chi.URLParam(r, "id"), userID)
	if errors.Is(err, ErrNotificationNotFound) {
		respondError(w, http.StatusNotFound, "notification not found")
		return
	}
	if err != nil {
		zap.S().Error("db:mark read:", err)
		respondError(w, http.StatusInternalServerError, "failed to mark notification as read")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "notification marked as read",
	})
}

func (a *API) markAllRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	if err := a.ledger.MarkAllRead(userID); err != nil {
		zap.S().Error("db:mark all read:", err)
		respondError(w, http.StatusInternalServerError, "failed to mark notifications as read")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "all notifications marked as read",
	})
}

func (a *API) deleteNotification(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	err := a.ledger.Delete(chi.URLParam(r, "id"), userID)
	if errors.Is(err, ErrNotificationNotFound) {
		respondError(w, http.StatusNotFound, "notification not found")
		return
	}
	if err != nil {
		zap.S().Error("db:delete notification:", err)
		respondError(w, http.StatusInternalServerError, "failed to delete notification")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "notification deleted",
	})
}

// ---------------- user profile ----------------

func (a *API) findUser(userID string) (User, error) {
	user := User{}
	err := a.db.Where("userid = ?", userID).First(&user).Error
	return user, err
}

// ensureUser loads the caller's profile row, creating it with defaults on
// first touch.
func (a *API) ensureUser(userID string) (User, error) {
	user := User{}
	err := a.db.Where("userid = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user = User{UsersID: userID, AlertRadius: DefaultAlertRadius}
		err = a.db.Create(&user).Error
	}
	return user, err
}

func (a *API) saveLocation(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	in := struct {
		Longitude float64 `json:"longitude"`
		Latitude  float64 `json:"latitude"`
	}{}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body")
		return
	}

	user, err := a.ensureUser(userID)
	if err == nil {
		err = a.db.Model(&user).Updates(map[string]interface{}{
			"longitude": in.Longitude,
			"latitude":  in.Latitude,
		}).Error
	}
	if err != nil {
		zap.S().Error("db:save location:", err)
		respondError(w, http.StatusInternalServerError, "failed to save location")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"longitude": in.Longitude,
		"latitude":  in.Latitude,
	})
}

func (a *API) getLocation(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	user, err := a.findUser(userID)
	if err != nil {
		respondError(w, http.StatusNotFound, "no location on record")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"longitude":   user.Longitude,
		"latitude":    user.Latitude,
		"alertRadius": user.AlertRadius,
	})
}

func (a *API) saveRadius(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	in := struct {
		AlertRadius float64 `json:"alertRadius"`
	}{}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if in.AlertRadius < MinAlertRadius {
		in.AlertRadius = MinAlertRadius
	}
	if in.AlertRadius > MaxAlertRadius {
		in.AlertRadius = MaxAlertRadius
	}

	user, err := a.ensureUser(userID)
	if err == nil {
		err = a.db.Model(&user).Update("alert_radius", in.AlertRadius).Error
	}
	if err != nil {
		zap.S().Error("db:save radius:", err)
		respondError(w, http.StatusInternalServerError, "failed to save radius")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"alertRadius": in.AlertRadius,
	})
}

func (a *API) saveInterests(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	in := struct {
		Interests []string `json:"interests"`
	}{}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Interests == nil {
		respondError(w, http.StatusBadRequest, "interests must be an array")
		return
	}
	for _, tag := range in.Interests {
		if !ValidCategory(tag) {
			respondError(w, http.StatusBadRequest, "unknown category: "+tag)
			return
		}
	}
	if _, err := a.ensureUser(userID); err != nil {
		zap.S().Error("db:ensure user:", err)
		respondError(w, http.StatusInternalServerError, "failed to save interests")
		return
	}
	if err := a.replaceInterests(userID, in.Interests); err != nil {
		zap.S().Error("db:save interests:", err)
		respondError(w, http.StatusInternalServerError, "failed to save interests")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"interests": in.Interests,
	})
}

// replaceInterests diffs the stored tags against the wanted set, adding and
// deleting only what changed.
func (a *API) replaceInterests(userID string, wanted []string) error {
	current := []string{}
	if err := a.db.Model(&UserInterest{}).
		Where("userid = ?", userID).
		Pluck("tag", &current).Error; err != nil {
		return err
	}

	have := map[string]bool{}
	for _, tag := range current {
		have[tag] = true
	}
	want := map[string]bool{}
	for _, tag := range wanted {
		want[tag] = true
	}

	for tag := range want {
		if !have[tag] {
			if err := a.db.Create(&UserInterest{UsersID: userID, Tag: tag}).Error; err != nil {
				return err
			}
		}
	}
	remove := []string{}
	for tag := range have {
		if !want[tag] {
			remove = append(remove, tag)
		}
	}
	if len(remove) > 0 {
		if err := a.db.Where("userid = ? AND tag IN ?", userID, remove).
			Delete(&UserInterest{}).Error; err != nil {
			return err
		}
	}
	return nil
}

func (a *API) getInterests(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	interests := []string{}
	if err := a.db.Model(&UserInterest{}).
		Where("userid = ?", userID).
		Pluck("tag", &interests).Error; err != nil {
		zap.S().Error("db:get interests:", err)
		respondError(w, http.StatusInternalServerError, "failed to fetch interests")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"interests": interests,
	})
}
