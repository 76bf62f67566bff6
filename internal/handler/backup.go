package handler

import (
	"github.com/gin-gonic/gin"
	"hostpanel/internal/service"
)

type BackupHandler struct {
	Service *service.Service
}

type createBackupBody struct {
	Name   string   `json:"name" binding:"required"`
	Ignore []string `json:"ignore"`
}

func (h *BackupHandler) List(c *gin.Context) {
	p, found := principal(c)
	if !found {
		return
	}
	backups, err := h.Service.ListBackups(c.Request.Context(), p, c.Param("serverId"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "Backups fetched successfully", backups)
}

func (h *BackupHandler) Create(c *gin.Context) {
	p, found := principal(c)
	if !found {
		return
	}
	var body createBackupBody
	if !bind(c, &body) {
		return
	}
	b, err := h.Service.CreateBackup(c.Request.Context(), p, c.Param("serverId"), service.BackupInput{Name: body.Name, Ignore: body.Ignore})
	if err != nil {
		fail(c, err)
		return
	}
	created(c, "Backup started successfully", b)
}

func (h *BackupHandler) Restore(c *gin.Context) {
	p, found := principal(c)
	if !found {
		return
	}
	id, valid := idParam(c, "backupId")
	if !valid {
		return
	}
	if err := h.Service.RestoreBackup(c.Request.Context(), p, c.Param("serverId"), id); err != nil {
		fail(c, err)
		return
	}
	ok(c, "Backup restore started successfully", nil)
}

func (h *BackupHandler) Delete(c *gin.Context) {
	p, found := principal(c)
	if !found {
		return
	}
	id, valid := idParam(c, "backupId")
	if !valid {
		return
	}
	if err := h.Service.DeleteBackup(c.Request.Context(), p, c.Param("serverId"), id); err != nil {
		fail(c, err)
		return
	}
	ok(c, "Backup deleted successfully", nil)
}
