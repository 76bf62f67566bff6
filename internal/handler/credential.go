package handler

import (
	"github.com/gin-gonic/gin"
	"hostpanel/internal/service"
)

type CredentialHandler struct {
	Service *service.Service
}

type createCredentialBody struct {
	Name         string   `json:"name" binding:"required"`
	Capabilities []string `json:"capabilities"`
	IPAllowList  []string `json:"ipAllowList"`
}

func (h *CredentialHandler) List(c *gin.Context) {
	p, found := principal(c)
	if !found {
		return
	}
	creds, err := h.Service.ListCredentials(c.Request.Context(), p)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "API credentials fetched successfully", creds)
}

func (h *CredentialHandler) Create(c *gin.Context) {
	p, found := principal(c)
	if !found {
		return
	}
	var body createCredentialBody
	if !bind(c, &body) {
		return
	}
	cred, err := h.Service.CreateCredential(c.Request.Context(), p, service.CredentialInput{
		Name:         body.Name,
		Capabilities: body.Capabilities,
		IPAllowList:  body.IPAllowList,
	})
	if err != nil {
		fail(c, err)
		return
	}
	created(c, "API credential created successfully", cred)
}

func (h *CredentialHandler) Delete(c *gin.Context) {
	p, found := principal(c)
	if !found {
		return
	}
	id, valid := idParam(c, "credentialId")
	if !valid {
		return
	}
	if err := h.Service.DeleteCredential(c.Request.Context(), p, id); err != nil {
		fail(c, err)
		return
	}
	ok(c, "API credential deleted successfully", nil)
}
