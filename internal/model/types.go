package model

import (
	"time"

	"hostpanel/internal/capability"
)

type User struct {
	ID           uint      `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Admin        bool      `json:"admin"`
	Superuser    bool      `json:"superuser"`
	Suspended    bool      `json:"suspended"`
	CreatedAt    time.Time `json:"createdAt"`
}

type APICredential struct {
	ID           uint           `json:"id"`
	UserID       uint           `json:"userId"`
	Name         string         `json:"name"`
	KeyHash      string         `json:"-"`
	KeyPrefix    string         `json:"keyPrefix"`
	Capabilities capability.Set `json:"capabilities"`
	IPAllowList  []string       `json:"ipAllowList"`
	CreatedAt    time.Time      `json:"createdAt"`
}

type Node struct {
	ID         uint       `json:"id"`
	Name       string     `json:"name"`
	Address    string     `json:"address"`
	DaemonPort int        `json:"daemonPort"`
	SFTPPort   int        `json:"sftpPort"`
	SSL        bool       `json:"ssl"`
	Location   string     `json:"location"`
	LastSeenAt *time.Time `json:"lastSeenAt"`
	CreatedAt  time.Time  `json:"createdAt"`
}

type ServerStatus string

const (
	StatusOffline    ServerStatus = "offline"
	StatusOnline     ServerStatus = "online"
	StatusStarting   ServerStatus = "starting"
	StatusStopping   ServerStatus = "stopping"
	StatusRestarting ServerStatus = "restarting"
	StatusKilling    ServerStatus = "killing"
	StatusUnknown    ServerStatus = "unknown"
)

func (s ServerStatus) IsTransient() bool {
	switch s {
	case StatusStarting, StatusStopping, StatusRestarting, StatusKilling:
		return true
	}
	return false
}

func (s ServerStatus) Valid() bool {
	switch s {
	case StatusOffline, StatusOnline, StatusUnknown:
		return true
	}
	return s.IsTransient()
}

type Server struct {
	ID            uint         `json:"id"`
	Identifier    string       `json:"serverId"`
	Name          string       `json:"name"`
	OwnerID       uint         `json:"ownerId"`
	NodeID        uint         `json:"nodeId"`
	ContainerID   string       `json:"containerId"`
	Game          string       `json:"game"`
	CPU           int          `json:"cpu"`
	RAMLimit      int64        `json:"ramLimit"`
	DiskLimit     int64        `json:"diskLimit"`
	Port          int          `json:"port"`
	ExtraPorts    []int        `json:"extraPorts"`
	Status        ServerStatus `json:"status"`
	StatusVersion int64        `json:"statusVersion"`
	Suspended     bool         `json:"suspended"`
	StartCommand  string       `json:"startCommand"`
	JavaVersion   string       `json:"javaVersion"`
	BackupsLimit  int          `json:"backupsLimit"`
	Usage         Usage        `json:"usage"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// Ports returns the primary port followed by every extra port.
func (s Server) Ports() []int {
	out := make([]int, 0, 1+len(s.ExtraPorts))
	out = append(out, s.Port)
	return append(out, s.ExtraPorts...)
}

type Usage struct {
	CPU       float64 `json:"cpuUsage"`
	RAM       int64   `json:"ramUsage"`
	Disk      int64   `json:"diskUsage"`
	NetworkRx int64   `json:"networkRx"`
	NetworkTx int64   `json:"networkTx"`
}

type Subuser struct {
	ID           uint           `json:"id"`
	UserID       uint           `json:"userId"`
	ServerID     uint           `json:"serverId"`
	Capabilities capability.Set `json:"capabilities"`
	CreatedAt    time.Time      `json:"createdAt"`
}

type BackupStatus string

const (
	BackupInProgress BackupStatus = "in_progress"
	BackupSuccess    BackupStatus = "success"
	BackupError      BackupStatus = "error"
)

type Backup struct {
	ID        uint         `json:"id"`
	ServerID  uint         `json:"serverId"`
	Name      string       `json:"name"`
	Size      int64        `json:"size"`
	Status    BackupStatus `json:"status"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

type PrincipalKind string

const (
	PrincipalInteractive PrincipalKind = "interactive"
	PrincipalAPI         PrincipalKind = "api"
)

// Principal is the resolved identity behind a request. For API principals
// Capabilities is the credential's own grant list; it is empty otherwise.
type Principal struct {
	Kind         PrincipalKind
	UserID       uint
	Name         string
	Email        string
	Admin        bool
	Superuser    bool
	Suspended    bool
	CredentialID uint
	Capabilities capability.Set
}

func (p Principal) IsInteractive() bool { return p.Kind == PrincipalInteractive }

func (p Principal) IsAPI() bool { return p.Kind == PrincipalAPI }
