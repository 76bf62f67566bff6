package handler

import (
	"github.com/gin-gonic/gin"
	"hostpanel/internal/service"
)

// NodeHandler serves the admin node routes.
type NodeHandler struct {
	Service *service.Service
}

func (h *NodeHandler) List(c *gin.Context) {
	p, found := principal(c)
	if !found {
		return
	}
	nodes, err := h.Service.ListNodes(c.Request.Context(), p)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "Nodes fetched successfully", nodes)
}

func (h *NodeHandler) Delete(c *gin.Context) {
	p, found := principal(c)
	if !found {
		return
	}
	id, valid := idParam(c, "nodeId")
	if !valid {
		return
	}
	if err := h.Service.DeleteNode(c.Request.Context(), p, id); err != nil {
		fail(c, err)
		return
	}
	ok(c, "Node deleted successfully", nil)
}

func (h *NodeHandler) Ping(c *gin.Context) {
	p, found := principal(c)
	if !found {
		return
	}
	id, valid := idParam(c, "nodeId")
	if !valid {
		return
	}
	took, err := h.Service.PingNode(c.Request.Context(), p, id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "Node is reachable", gin.H{"latency": took.Milliseconds()})
}

func (h *NodeHandler) SystemInfo(c *gin.Context) {
	p, found := principal(c)
	if !found {
		return
	}
	id, valid := idParam(c, "nodeId")
	if !valid {
		return
	}
	info, err := h.Service.NodeSystemInfo(c.Request.Context(), p, id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "System info fetched successfully", info)
}
