package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"hostpanel/internal/model"
	"hostpanel/internal/service"
)

// DaemonHandler serves the callbacks node daemons make. Every route sits
// behind the shared secret guard.
type DaemonHandler struct {
	Service *service.Service
	Logger  *zap.SugaredLogger
}

func (h *DaemonHandler) rejected(c *gin.Context, route string, err error) {
	if h.Logger != nil {
		h.Logger.Infow("daemon callback rejected", "route", route, "ip", c.ClientIP(), "error", err)
	}
	fail(c, err)
}

type registerNodeBody struct {
	Name       string `json:"name" binding:"required"`
	Address    string `json:"address" binding:"required"`
	DaemonPort int    `json:"daemonPort" binding:"required"`
	SFTPPort   int    `json:"sftpPort" binding:"required"`
	Location   string `json:"location"`
	SSL        bool   `json:"ssl"`
}

func (h *DaemonHandler) Register(c *gin.Context) {
	var body registerNodeBody
	if !bind(c, &body) {
		return
	}
	n, err := h.Service.RegisterNode(c.Request.Context(), service.RegisterNodeInput{
		Name:       body.Name,
		Address:    body.Address,
		DaemonPort: body.DaemonPort,
		SFTPPort:   body.SFTPPort,
		Location:   body.Location,
		SSL:        body.SSL,
	})
	if err != nil {
		h.rejected(c, "register", err)
		return
	}
	created(c, "Node registered successfully", gin.H{"id": n.ID})
}

type connectNodeBody struct {
	ID       uint `json:"id" binding:"required"`
	SSL      bool `json:"ssl"`
	SFTPPort int  `json:"sftpPort" binding:"required"`
}

func (h *DaemonHandler) Connect(c *gin.Context) {
	var body connectNodeBody
	if !bind(c, &body) {
		return
	}
	n, err := h.Service.ConnectNode(c.Request.Context(), service.ConnectNodeInput{
		ID:       body.ID,
		SSL:      body.SSL,
		SFTPPort: body.SFTPPort,
	}, c.ClientIP())
	if err != nil {
		h.rejected(c, "connect", err)
		return
	}
	ok(c, "Node connected successfully", n)
}

type statusPushBody struct {
	ContainerID string             `json:"containerId" binding:"required"`
	Status      model.ServerStatus `json:"status" binding:"required"`
}

func (h *DaemonHandler) Status(c *gin.Context) {
	var body statusPushBody
	if !bind(c, &body) {
		return
	}
	srv, err := h.Service.PushStatus(c.Request.Context(), body.ContainerID, body.Status)
	if err != nil {
		h.rejected(c, "status", err)
		return
	}
	ok(c, "Server status updated successfully", gin.H{"status": srv.Status})
}

type logsPushBody struct {
	ContainerID string `json:"containerId" binding:"required"`
	Logs        string `json:"logs" binding:"required"`
}

func (h *DaemonHandler) Logs(c *gin.Context) {
	var body logsPushBody
	if !bind(c, &body) {
		return
	}
	if err := h.Service.PushLogs(c.Request.Context(), body.ContainerID, body.Logs); err != nil {
		h.rejected(c, "logs", err)
		return
	}
	ok(c, "Server logs sent successfully", nil)
}

type backupPushBody struct {
	ContainerID string             `json:"containerId" binding:"required"`
	Name        string             `json:"name"`
	Status      model.BackupStatus `json:"status" binding:"required"`
}

func (h *DaemonHandler) Backups(c *gin.Context) {
	var body backupPushBody
	if !bind(c, &body) {
		return
	}
	res, err := h.Service.FinishBackup(c.Request.Context(), body.ContainerID, body.Name, body.Status)
	if err != nil {
		h.rejected(c, "backups", err)
		return
	}
	ok(c, "Backup status updated successfully", res)
}

type sftpBody struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *DaemonHandler) SFTP(c *gin.Context) {
	var body sftpBody
	if !bind(c, &body) {
		return
	}
	grant, err := h.Service.AuthenticateSFTP(c.Request.Context(), body.Username, body.Password)
	if err != nil {
		h.rejected(c, "sftp", err)
		return
	}
	ok(c, "SFTP login accepted", grant)
}
