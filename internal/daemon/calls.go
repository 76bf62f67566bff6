package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"hostpanel/internal/model"
)

type CreateServerRequest struct {
	Name        string `json:"name"`
	Owner       uint   `json:"owner"`
	Game        string `json:"game"`
	ServerID    string `json:"serverId"`
	Port        int    `json:"port"`
	ExtraPorts  []int  `json:"extraPorts"`
	CPU         int    `json:"cpu"`
	RAM         int64  `json:"ram"`
	Disk        int64  `json:"disk"`
	JavaVersion string `json:"javaVersion"`
}

type CreatedServer struct {
	ContainerID  string `json:"id"`
	StartCommand string `json:"startCommand"`
}

func (g *Gateway) CreateServer(ctx context.Context, node model.Node, req CreateServerRequest) (CreatedServer, error) {
	var out CreatedServer
	if _, err := g.Call(ctx, node, http.MethodPost, "/servers/create", req, &out); err != nil {
		return CreatedServer{}, err
	}
	if out.ContainerID == "" {
		return CreatedServer{}, &Error{Code: CodeInvalidResponse, Message: "Node did not return a container id"}
	}
	return out, nil
}

type containerRequest struct {
	ContainerID string `json:"containerId"`
}

func (g *Gateway) DeleteServer(ctx context.Context, node model.Node, containerID string) error {
	_, err := g.Call(ctx, node, http.MethodPost, "/servers/delete", containerRequest{containerID}, nil)
	return err
}

type powerRequest struct {
	ContainerID string `json:"containerId"`
	Action      string `json:"action"`
	ServerID    string `json:"serverId"`
}

func (g *Gateway) Power(ctx context.Context, node model.Node, srv model.Server, action string) error {
	_, err := g.Call(ctx, node, http.MethodPost, "/servers/power", powerRequest{
		ContainerID: srv.ContainerID,
		Action:      action,
		ServerID:    srv.Identifier,
	}, nil)
	return err
}

type statusRequest struct {
	ContainerID string `json:"containerId"`
	Port        int    `json:"port"`
}

// Status returns the raw report (running, online or offline).
func (g *Gateway) Status(ctx context.Context, node model.Node, srv model.Server) (string, error) {
	var raw string
	_, err := g.Call(ctx, node, http.MethodPost, "/servers/status", statusRequest{srv.ContainerID, srv.Port}, &raw)
	return raw, err
}

type Stats struct {
	CPUUsage  float64 `json:"cpuUsage"`
	RAMUsage  int64   `json:"ramUsage"`
	RAMLimit  int64   `json:"ramLimit"`
	DiskUsage int64   `json:"diskUsage"`
	DiskLimit int64   `json:"diskLimit"`
	NetworkRx int64   `json:"networkRx"`
	NetworkTx int64   `json:"networkTx"`
}

func (g *Gateway) Stats(ctx context.Context, node model.Node, containerID string) (Stats, error) {
	var out Stats
	_, err := g.Call(ctx, node, http.MethodPost, "/servers/stats", containerRequest{containerID}, &out)
	return out, err
}

type backupRequest struct {
	ContainerID string   `json:"containerId"`
	Name        string   `json:"name"`
	Ignore      []string `json:"ignore,omitempty"`
}

type BackupCreated struct {
	Size int64 `json:"size"`
}

// CreateBackup asks the daemon to start a backup. The daemon answers pending
// and reports completion through the backup callback.
func (g *Gateway) CreateBackup(ctx context.Context, node model.Node, containerID, name string, ignore []string) (BackupCreated, error) {
	var out BackupCreated
	_, err := g.Call(ctx, node, http.MethodPost, "/servers/backups", backupRequest{containerID, name, ignore}, &out, AcceptPending())
	return out, err
}

func (g *Gateway) RestoreBackup(ctx context.Context, node model.Node, containerID, name string) error {
	_, err := g.Call(ctx, node, http.MethodPut, "/servers/backups", backupRequest{ContainerID: containerID, Name: name}, nil)
	return err
}

func (g *Gateway) DeleteBackup(ctx context.Context, node model.Node, containerID, name string) error {
	_, err := g.Call(ctx, node, http.MethodDelete, "/servers/backups", backupRequest{ContainerID: containerID, Name: name}, nil)
	return err
}

type javaRequest struct {
	ContainerID string `json:"containerId"`
	JavaVersion string `json:"javaVersion"`
}

func (g *Gateway) SetJavaVersion(ctx context.Context, node model.Node, containerID, version string) error {
	_, err := g.Call(ctx, node, http.MethodPost, "/servers/java", javaRequest{containerID, version}, nil)
	return err
}

type PluginRequest struct {
	ContainerID string `json:"containerId"`
	ID          string `json:"id"`
	Type        string `json:"type"`
	Version     string `json:"version"`
}

func (g *Gateway) InstallPlugin(ctx context.Context, node model.Node, req PluginRequest) error {
	_, err := g.Call(ctx, node, http.MethodPost, "/servers/plugins/install", req, nil)
	return err
}

type StartupRequest struct {
	ContainerID string `json:"containerId"`
	RunType     string `json:"runType"`
	JarFile     string `json:"jarFile,omitempty"`
	TxtFile     string `json:"txtFile,omitempty"`
}

func (g *Gateway) SetStartup(ctx context.Context, node model.Node, req StartupRequest) error {
	_, err := g.Call(ctx, node, http.MethodPatch, "/servers/startup", req, nil)
	return err
}

// DeleteNode tells the daemon to uninstall itself.
func (g *Gateway) DeleteNode(ctx context.Context, node model.Node) error {
	_, err := g.Call(ctx, node, http.MethodPost, "/delete", nil, nil)
	return err
}

// SystemInfo passes the daemon's host report through untouched.
func (g *Gateway) SystemInfo(ctx context.Context, node model.Node) (json.RawMessage, error) {
	env, err := g.Call(ctx, node, http.MethodGet, "/system-info", nil, nil)
	if err != nil {
		return nil, err
	}
	return env.Data, nil
}

// Ping returns the round trip to the daemon.
func (g *Gateway) Ping(ctx context.Context, node model.Node) (time.Duration, error) {
	started := time.Now()
	if _, err := g.Call(ctx, node, http.MethodGet, "/ping", nil, nil); err != nil {
		return 0, err
	}
	return time.Since(started), nil
}
