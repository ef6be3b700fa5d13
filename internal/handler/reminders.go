package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/voicebridge-ai/EchoGate/internal/models"
	"github.com/voicebridge-ai/EchoGate/pkg/logger"
	"github.com/voicebridge-ai/EchoGate/pkg/recurrence"
	"github.com/voicebridge-ai/EchoGate/pkg/response"
)

// handleCreateReminder 创建提醒，到点由后台调度器播到设备
// POST /api/reminders
func (h *Handlers) handleCreateReminder(c *gin.Context) {
	var form models.ReminderForm
	if err := c.BindJSON(&form); err != nil {
		response.AbortWithStatusJSON(c, http.StatusBadRequest, err)
		return
	}

	user := models.CurrentUser(c)

	// 只能往自己的设备上挂提醒
	device, err := models.GetDeviceByID(h.db, form.DeviceID)
	if err != nil || device.UserID != user.ID {
		response.AbortWithStatusJSON(c, http.StatusNotFound, errors.New("device not found"))
		return
	}

	if form.IsRecurring && !recurrence.Valid(form.RecurrenceRule) {
		response.AbortWithStatusJSON(c, http.StatusBadRequest, errors.New("unknown recurrence rule"))
		return
	}

	reminder := &models.Reminder{
		UserID:         user.ID,
		DeviceID:       form.DeviceID,
		RemindAt:       form.RemindAt,
		Message:        form.Message,
		IsRecurring:    form.IsRecurring,
		RecurrenceRule: form.RecurrenceRule,
		Source:         models.ReminderSourceAPI,
	}
	if err := models.CreateReminder(h.db, reminder); err != nil {
		response.AbortWithStatusJSON(c, http.StatusInternalServerError, err)
		return
	}

	logger.Info("[API] 创建提醒",
		zap.Uint("reminderId", reminder.ID),
		zap.String("deviceId", reminder.DeviceID),
		zap.Time("remindAt", reminder.RemindAt))

	response.Success(c, "created", reminder)
}

// handleListReminders 待投递提醒列表
// GET /api/reminders
func (h *Handlers) handleListReminders(c *gin.Context) {
	user := models.CurrentUser(c)

	var reminders []models.Reminder
	var err error
	if source := c.Query("source"); source != "" {
		reminders, err = models.GetUserRemindersBySource(h.db, user.ID, source)
	} else {
		reminders, err = models.GetUserReminders(h.db, user.ID)
	}
	if err != nil {
		response.AbortWithStatusJSON(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, "ok", reminders)
}

// handleDeleteReminder 删除提醒
// DELETE /api/reminders/:id
func (h *Handlers) handleDeleteReminder(c *gin.Context) {
	user := models.CurrentUser(c)

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.AbortWithStatusJSON(c, http.StatusBadRequest, errors.New("invalid reminder id"))
		return
	}

	if err := models.DeleteReminder(h.db, user.ID, uint(id)); err != nil {
		response.AbortWithStatusJSON(c, http.StatusNotFound, err)
		return
	}
	response.Success(c, "deleted", nil)
}
