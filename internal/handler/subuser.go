package handler

import (
	"github.com/gin-gonic/gin"
	"hostpanel/internal/service"
)

type SubuserHandler struct {
	Service *service.Service
}

type addSubuserBody struct {
	Email        string   `json:"email" binding:"required"`
	Capabilities []string `json:"capabilities" binding:"required"`
}

type updateSubuserBody struct {
	Capabilities []string `json:"capabilities" binding:"required"`
}

func (h *SubuserHandler) List(c *gin.Context) {
	p, found := principal(c)
	if !found {
		return
	}
	subs, err := h.Service.ListSubusers(c.Request.Context(), p, c.Param("serverId"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "Subusers fetched successfully", subs)
}

func (h *SubuserHandler) Add(c *gin.Context) {
	p, found := principal(c)
	if !found {
		return
	}
	var body addSubuserBody
	if !bind(c, &body) {
		return
	}
	sub, err := h.Service.AddSubuser(c.Request.Context(), p, c.Param("serverId"), body.Email, body.Capabilities)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, "Subuser added successfully", sub)
}

func (h *SubuserHandler) Update(c *gin.Context) {
	p, found := principal(c)
	if !found {
		return
	}
	userID, valid := idParam(c, "userId")
	if !valid {
		return
	}
	var body updateSubuserBody
	if !bind(c, &body) {
		return
	}
	sub, err := h.Service.UpdateSubuser(c.Request.Context(), p, c.Param("serverId"), userID, body.Capabilities)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "Subuser updated successfully", sub)
}

func (h *SubuserHandler) Remove(c *gin.Context) {
	p, found := principal(c)
	if !found {
		return
	}
	userID, valid := idParam(c, "userId")
	if !valid {
		return
	}
	if err := h.Service.RemoveSubuser(c.Request.Context(), p, c.Param("serverId"), userID); err != nil {
		fail(c, err)
		return
	}
	ok(c, "Subuser removed successfully", nil)
}
