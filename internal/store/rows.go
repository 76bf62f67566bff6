package store

import "time"

type userRow struct {
	ID           uint   `gorm:"primaryKey"`
	Name         string `gorm:"size:32;not null"`
	NameKey      string `gorm:"size:32;uniqueIndex;not null"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	Admin        bool
	Superuser    bool
	Suspended    bool
	CreatedAt    time.Time
}

func (userRow) TableName() string { return "users" }

type credentialRow struct {
	ID           uint   `gorm:"primaryKey"`
	UserID       uint   `gorm:"not null;uniqueIndex:idx_credential_user_name"`
	Name         string `gorm:"size:32;not null;uniqueIndex:idx_credential_user_name"`
	KeyHash      string `gorm:"size:64;not null;uniqueIndex"`
	KeyPrefix    string `gorm:"size:8"`
	Capabilities string `gorm:"not null"`
	IPAllowList  string `gorm:"not null"`
	CreatedAt    time.Time
}

func (credentialRow) TableName() string { return "api_credentials" }

type nodeRow struct {
	ID         uint   `gorm:"primaryKey"`
	Name       string `gorm:"not null;uniqueIndex"`
	Address    string `gorm:"not null"`
	DaemonPort int
	SFTPPort   int `gorm:"column:sftp_port"`
	SSL        bool
	Location   string
	LastSeenAt *time.Time
	CreatedAt  time.Time
}

func (nodeRow) TableName() string { return "nodes" }

type serverRow struct {
	ID            uint   `gorm:"primaryKey"`
	Identifier    string `gorm:"size:6;not null;uniqueIndex"`
	Name          string `gorm:"size:32;not null"`
	OwnerID       uint   `gorm:"not null;index"`
	NodeID        uint   `gorm:"not null;index"`
	ContainerID   string `gorm:"index"`
	Game          string
	CPU           int
	RAMLimit      int64
	DiskLimit     int64
	Port          int
	ExtraPorts    string
	Status        string `gorm:"not null"`
	StatusVersion int64  `gorm:"not null;default:0"`
	Suspended     bool
	StartCommand  string
	JavaVersion   string
	BackupsLimit  int
	CPUUsage      float64
	RAMUsage      int64
	DiskUsage     int64
	NetworkRx     int64
	NetworkTx     int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (serverRow) TableName() string { return "servers" }

// portRow is the uniqueness arbiter for primary and extra ports on a node.
type portRow struct {
	ID       uint `gorm:"primaryKey"`
	NodeID   uint `gorm:"not null;uniqueIndex:idx_node_port"`
	Port     int  `gorm:"not null;uniqueIndex:idx_node_port"`
	ServerID uint `gorm:"not null;index"`
}

func (portRow) TableName() string { return "server_ports" }

type subuserRow struct {
	ID           uint   `gorm:"primaryKey"`
	UserID       uint   `gorm:"not null;uniqueIndex:idx_subuser_user_server"`
	ServerID     uint   `gorm:"not null;uniqueIndex:idx_subuser_user_server"`
	Capabilities string `gorm:"not null"`
	CreatedAt    time.Time
}

func (subuserRow) TableName() string { return "subusers" }

type backupRow struct {
	ID        uint   `gorm:"primaryKey"`
	ServerID  uint   `gorm:"not null;index;uniqueIndex:idx_backup_server_name"`
	Name      string `gorm:"not null;uniqueIndex:idx_backup_server_name"`
	Size      int64
	Status    string `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (backupRow) TableName() string { return "backups" }
