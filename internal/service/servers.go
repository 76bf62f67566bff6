package service

import (
	"context"
	"regexp"
	"strings"

	"hostpanel/internal/apperr"
	"hostpanel/internal/capability"
	"hostpanel/internal/daemon"
	"hostpanel/internal/lifecycle"
	"hostpanel/internal/model"
)

const gameMinecraft = "minecraft"

var (
	javaVersionPattern = regexp.MustCompile(`^(8|11|17|21)$`)
	startupFilePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
)

// ListServers returns what p can see: everything for admins, owned and
// granted servers otherwise.
func (s *Service) ListServers(ctx context.Context, p model.Principal) ([]model.Server, error) {
	if p.Suspended {
		return nil, apperr.ErrSuspended()
	}
	if p.IsAPI() && !p.Capabilities.Has(capability.ServerView) {
		return nil, apperr.ErrForbidden()
	}
	var (
		servers []model.Server
		err     error
	)
	if p.Admin {
		servers, err = s.store.ListServers(ctx)
	} else {
		servers, err = s.store.ListServersForUser(ctx, p.UserID)
	}
	if err != nil {
		return nil, apperr.ErrInternal(err)
	}

	visible := make([]model.Server, 0, len(servers))
	for i := range servers {
		ok, err := s.evaluator.CanPerform(ctx, p, capability.ServerView, &servers[i])
		if err != nil {
			return nil, apperr.ErrInternal(err)
		}
		if ok {
			visible = append(visible, servers[i])
		}
	}
	return visible, nil
}

func (s *Service) GetServer(ctx context.Context, p model.Principal, identifier string) (model.Server, error) {
	return s.authorizedServer(ctx, p, identifier, capability.ServerView)
}

// Permissions is p's effective capability list on the server.
func (s *Service) Permissions(ctx context.Context, p model.Principal, identifier string) (capability.Set, error) {
	srv, err := s.authorizedServer(ctx, p, identifier, capability.ServerView)
	if err != nil {
		return capability.Set{}, err
	}
	caps, err := s.evaluator.Effective(ctx, p, &srv)
	if err != nil {
		return capability.Set{}, apperr.ErrInternal(err)
	}
	return caps, nil
}

func powerCapability(a lifecycle.Action) capability.Capability {
	switch a {
	case lifecycle.ActionStart:
		return capability.PowerOn
	case lifecycle.ActionStop:
		return capability.PowerOff
	case lifecycle.ActionRestart:
		return capability.PowerRestart
	default:
		return capability.PowerKill
	}
}

// Power sends the action to the daemon and records the transient intent only
// after the daemon accepted it.
func (s *Service) Power(ctx context.Context, p model.Principal, identifier, rawAction string) (model.Server, error) {
	action, err := lifecycle.ParseAction(rawAction)
	if err != nil {
		return model.Server{}, apperr.New(apperr.Invalid, apperr.CodeInvalidAction, "Invalid action")
	}
	return withServer(ctx, s, p, identifier, powerCapability(action), func(ctx context.Context, srv model.Server, node model.Node) (model.Server, error) {
		if srv.Suspended && (action == lifecycle.ActionStart || action == lifecycle.ActionRestart) {
			return model.Server{}, apperr.New(apperr.Forbidden, apperr.CodeServerSuspended, "Server is suspended")
		}
		if err := s.daemon.Power(ctx, node, srv, string(action)); err != nil {
			return model.Server{}, daemonErr(err)
		}
		updated, err := s.machine.RecordCommand(ctx, srv.ID, action)
		if err != nil {
			return model.Server{}, apperr.ErrInternal(err)
		}
		return updated, nil
	})
}

// RefreshStatus polls the daemon and merges the report into the stored state.
func (s *Service) RefreshStatus(ctx context.Context, p model.Principal, identifier string) (model.ServerStatus, error) {
	return withServer(ctx, s, p, identifier, capability.ServerView, func(ctx context.Context, srv model.Server, node model.Node) (model.ServerStatus, error) {
		raw, err := s.daemon.Status(ctx, node, srv)
		if err != nil {
			return "", daemonErr(err)
		}
		updated, err := s.machine.ApplyPoll(ctx, srv.ID, raw)
		if err != nil {
			return "", apperr.ErrInternal(err)
		}
		return updated.Status, nil
	})
}

// Stats fetches live usage and caches it on the server. A zero limit from the
// daemon keeps the provisioned one.
func (s *Service) Stats(ctx context.Context, p model.Principal, identifier string) (model.Server, error) {
	return withServer(ctx, s, p, identifier, capability.StatsView, func(ctx context.Context, srv model.Server, node model.Node) (model.Server, error) {
		st, err := s.daemon.Stats(ctx, node, srv.ContainerID)
		if err != nil {
			return model.Server{}, daemonErr(err)
		}
		usage := model.Usage{
			CPU:       st.CPUUsage,
			RAM:       st.RAMUsage,
			Disk:      st.DiskUsage,
			NetworkRx: st.NetworkRx,
			NetworkTx: st.NetworkTx,
		}
		ramLimit, diskLimit := srv.RAMLimit, srv.DiskLimit
		if st.RAMLimit > 0 {
			ramLimit = st.RAMLimit
		}
		if st.DiskLimit > 0 {
			diskLimit = st.DiskLimit
		}
		if err := s.store.UpdateServerUsage(ctx, srv.ID, usage, ramLimit, diskLimit); err != nil {
			return model.Server{}, apperr.ErrInternal(err)
		}
		srv.Usage = usage
		srv.RAMLimit = ramLimit
		srv.DiskLimit = diskLimit
		return srv, nil
	})
}

func (s *Service) SetJavaVersion(ctx context.Context, p model.Principal, identifier, version string) (model.Server, error) {
	if !javaVersionPattern.MatchString(version) {
		return model.Server{}, apperr.ErrBadRequest("You must provide a valid javaVersion (8, 11, 17 or 21)")
	}
	return withServer(ctx, s, p, identifier, capability.SettingsJava, func(ctx context.Context, srv model.Server, node model.Node) (model.Server, error) {
		if err := s.daemon.SetJavaVersion(ctx, node, srv.ContainerID, version); err != nil {
			return model.Server{}, daemonErr(err)
		}
		if err := s.store.UpdateServerJavaVersion(ctx, srv.ID, version); err != nil {
			return model.Server{}, apperr.ErrInternal(err)
		}
		srv.JavaVersion = version
		return srv, nil
	})
}

type StartupInput struct {
	RunType string
	JarFile string
	TxtFile string
}

func (in StartupInput) validate() error {
	switch in.RunType {
	case "jar":
		if !startupFilePattern.MatchString(in.JarFile) || !strings.HasSuffix(in.JarFile, ".jar") {
			return apperr.ErrBadRequest("jarFile must be a .jar file name")
		}
	case "txt":
		if !startupFilePattern.MatchString(in.TxtFile) || !strings.HasSuffix(in.TxtFile, ".txt") {
			return apperr.ErrBadRequest("txtFile must be a .txt file name")
		}
	default:
		return apperr.ErrBadRequest("runType must be jar or txt")
	}
	return nil
}

func (s *Service) SetStartup(ctx context.Context, p model.Principal, identifier string, in StartupInput) error {
	if err := in.validate(); err != nil {
		return err
	}
	_, err := withServer(ctx, s, p, identifier, capability.SettingsStartup, func(ctx context.Context, srv model.Server, node model.Node) (struct{}, error) {
		if srv.Game != gameMinecraft {
			return struct{}{}, apperr.New(apperr.Invalid, apperr.CodeGameNotSupported, "This game does not support startup settings")
		}
		err := s.daemon.SetStartup(ctx, node, daemon.StartupRequest{
			ContainerID: srv.ContainerID,
			RunType:     in.RunType,
			JarFile:     in.JarFile,
			TxtFile:     in.TxtFile,
		})
		if err != nil {
			return struct{}{}, daemonErr(err)
		}
		return struct{}{}, nil
	})
	return err
}

type PluginInput struct {
	ID      string
	Type    string
	Version string
}

// InstallPlugin forwards a plugin install to the daemon. Only minecraft
// servers take plugins.
func (s *Service) InstallPlugin(ctx context.Context, p model.Principal, identifier string, in PluginInput) error {
	_, err := withServer(ctx, s, p, identifier, capability.PluginsInstall, func(ctx context.Context, srv model.Server, node model.Node) (struct{}, error) {
		if srv.Game != gameMinecraft {
			return struct{}{}, apperr.New(apperr.Invalid, apperr.CodePluginsUnsupported, "You can't install plugins on this server")
		}
		if strings.TrimSpace(in.ID) == "" || strings.TrimSpace(in.Type) == "" || strings.TrimSpace(in.Version) == "" {
			return struct{}{}, apperr.ErrBadRequest("id, type and version are required")
		}
		err := s.daemon.InstallPlugin(ctx, node, daemon.PluginRequest{
			ContainerID: srv.ContainerID,
			ID:          in.ID,
			Type:        in.Type,
			Version:     in.Version,
		})
		if err != nil {
			return struct{}{}, daemonErr(err)
		}
		s.logger.Infow("plugin installed", "server", srv.Identifier, "plugin", in.ID, "version", in.Version)
		return struct{}{}, nil
	})
	return err
}
