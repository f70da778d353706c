package daemon

import (
	"context"

	"segue/internal/api"
	"segue/internal/staging"
)

// StatusView renders the runtime status as the wire shape shared by the
// HTTP API and the IPC surface.
func (d *Daemon) StatusView(ctx context.Context) api.StatusView {
	status := d.Status(ctx)
	view := api.StatusView{
		Running:        status.Running,
		PID:            status.PID,
		AppName:        d.cfg.App.Name,
		Channel:        string(d.cfg.Channel()),
		CurrentVersion: d.CurrentVersion(),
		DatabasePath:   status.DatabasePath,
		Stats:          api.SessionStats(status.Stats),
		Preflight:      api.FromPreflight(status.Preflight),
	}
	if dirs, err := staging.ListDirectories(d.cfg.Paths.StagingDir); err == nil {
		view.Staging = api.FromStaging(dirs)
	}
	if status.Session != nil {
		session := api.FromSession(status.Session)
		view.Session = &session
	}
	if status.LastSession != nil {
		last := api.FromSession(status.LastSession)
		view.LastSession = &last
	}
	return view
}
