package core

import "github.com/spacedriveapp/spacedrive-sub011/internal/actions"

// buildActionsRegistry registers every concrete action/query this
// repo ships against c's store and job manager. cmd/spacedrived adds
// nothing further here — it only looks names up and authorizes a
// Session, it does not register new actions of its own.
func buildActionsRegistry(c *Core) *actions.Registry {
	r := actions.NewRegistry()

	r.Register(&actions.AddLocationAction{Store: c.Store})
	r.Register(&actions.RemoveLocationAction{Store: c.Store})
	r.RegisterQuery(&actions.ListLocationsQuery{Store: c.Store})

	c.resolvePath = actions.NewResolvePathQuery(c.Store)
	r.RegisterQuery(c.resolvePath)

	r.Register(&actions.PauseJobAction{Manager: c.JobManager})
	r.Register(&actions.ResumeJobAction{Manager: c.JobManager})
	r.Register(&actions.CancelJobAction{Manager: c.JobManager})
	r.RegisterQuery(&actions.ListJobsQuery{Manager: c.JobManager})

	return r
}
