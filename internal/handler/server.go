package handler

import (
	"github.com/gin-gonic/gin"
	"hostpanel/internal/service"
)

type ServerHandler struct {
	Service *service.Service
}

func (h *ServerHandler) List(c *gin.Context) {
	p, found := principal(c)
	if !found {
		return
	}
	servers, err := h.Service.ListServers(c.Request.Context(), p)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "Servers fetched successfully", servers)
}

func (h *ServerHandler) Get(c *gin.Context) {
	p, found := principal(c)
	if !found {
		return
	}
	srv, err := h.Service.GetServer(c.Request.Context(), p, c.Param("serverId"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "Server fetched successfully", srv)
}

func (h *ServerHandler) Permissions(c *gin.Context) {
	p, found := principal(c)
	if !found {
		return
	}
	caps, err := h.Service.Permissions(c.Request.Context(), p, c.Param("serverId"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "Permissions fetched successfully", caps)
}

func (h *ServerHandler) Power(c *gin.Context) {
	p, found := principal(c)
	if !found {
		return
	}
	srv, err := h.Service.Power(c.Request.Context(), p, c.Param("serverId"), c.Param("action"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "Power action sent successfully", gin.H{"status": srv.Status})
}

func (h *ServerHandler) Status(c *gin.Context) {
	p, found := principal(c)
	if !found {
		return
	}
	status, err := h.Service.RefreshStatus(c.Request.Context(), p, c.Param("serverId"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "Server status fetched successfully", gin.H{"status": status})
}

func (h *ServerHandler) Stats(c *gin.Context) {
	p, found := principal(c)
	if !found {
		return
	}
	srv, err := h.Service.Stats(c.Request.Context(), p, c.Param("serverId"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "Server stats fetched successfully", gin.H{
		"usage":     srv.Usage,
		"ramLimit":  srv.RAMLimit,
		"diskLimit": srv.DiskLimit,
	})
}

type javaBody struct {
	JavaVersion string `json:"javaVersion" binding:"required"`
}

func (h *ServerHandler) SetJava(c *gin.Context) {
	p, found := principal(c)
	if !found {
		return
	}
	var body javaBody
	if !bind(c, &body) {
		return
	}
	srv, err := h.Service.SetJavaVersion(c.Request.Context(), p, c.Param("serverId"), body.JavaVersion)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "Java version updated successfully", gin.H{"javaVersion": srv.JavaVersion})
}

type startupBody struct {
	RunType string `json:"runType" binding:"required,oneof=jar txt"`
	JarFile string `json:"jarFile"`
	TxtFile string `json:"txtFile"`
}

func (h *ServerHandler) SetStartup(c *gin.Context) {
	p, found := principal(c)
	if !found {
		return
	}
	var body startupBody
	if !bind(c, &body) {
		return
	}
	err := h.Service.SetStartup(c.Request.Context(), p, c.Param("serverId"), service.StartupInput{
		RunType: body.RunType,
		JarFile: body.JarFile,
		TxtFile: body.TxtFile,
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "Startup settings updated successfully", nil)
}

// Field checks happen in the service, after the game check.
type pluginBody struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Version string `json:"version"`
}

func (h *ServerHandler) InstallPlugin(c *gin.Context) {
	p, found := principal(c)
	if !found {
		return
	}
	var body pluginBody
	if !bind(c, &body) {
		return
	}
	err := h.Service.InstallPlugin(c.Request.Context(), p, c.Param("serverId"), service.PluginInput{
		ID:      body.ID,
		Type:    body.Type,
		Version: body.Version,
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "Plugin installed successfully", nil)
}

type provisionBody struct {
	Name         string `json:"name" binding:"required"`
	OwnerID      uint   `json:"ownerId" binding:"required"`
	NodeID       uint   `json:"nodeId" binding:"required"`
	Game         string `json:"game" binding:"required"`
	CPU          int    `json:"cpu" binding:"required"`
	RAM          int64  `json:"ram" binding:"required"`
	Disk         int64  `json:"disk" binding:"required"`
	Port         int    `json:"port"`
	ExtraPorts   int    `json:"extraPorts"`
	BackupsLimit *int   `json:"backupsLimit"`
}

func (h *ServerHandler) Provision(c *gin.Context) {
	p, found := principal(c)
	if !found {
		return
	}
	var body provisionBody
	if !bind(c, &body) {
		return
	}
	srv, err := h.Service.ProvisionServer(c.Request.Context(), p, service.ProvisionInput{
		Name:         body.Name,
		OwnerID:      body.OwnerID,
		NodeID:       body.NodeID,
		Game:         body.Game,
		CPU:          body.CPU,
		RAM:          body.RAM,
		Disk:         body.Disk,
		Port:         body.Port,
		ExtraPorts:   body.ExtraPorts,
		BackupsLimit: body.BackupsLimit,
	})
	if err != nil {
		fail(c, err)
		return
	}
	created(c, "Server created successfully", srv)
}

func (h *ServerHandler) Delete(c *gin.Context) {
	p, found := principal(c)
	if !found {
		return
	}
	if err := h.Service.DeleteServer(c.Request.Context(), p, c.Param("serverId")); err != nil {
		fail(c, err)
		return
	}
	ok(c, "Server deleted successfully", nil)
}

func (h *ServerHandler) Suspend(c *gin.Context)   { h.setSuspended(c, true) }
func (h *ServerHandler) Unsuspend(c *gin.Context) { h.setSuspended(c, false) }

func (h *ServerHandler) setSuspended(c *gin.Context, suspended bool) {
	p, found := principal(c)
	if !found {
		return
	}
	srv, err := h.Service.SetSuspended(c.Request.Context(), p, c.Param("serverId"), suspended)
	if err != nil {
		fail(c, err)
		return
	}
	msg := "Server unsuspended successfully"
	if suspended {
		msg = "Server suspended successfully"
	}
	ok(c, msg, srv)
}
