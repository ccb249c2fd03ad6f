package domain

// JobSpecData is a job's stored spec payload. Containers run sequentially;
// each must exit 0 before the next starts (§4.4 job run loop).
type JobSpecData struct {
	Name            string          `json:"name"`
	Containers      []ContainerSpec `json:"containers"`
	Secrets         []string        `json:"secrets,omitempty"`
	ImagePullPolicy ImagePullPolicy `json:"image_pull_policy,omitempty"`
	ImagePullSecret string          `json:"image_pull_secret,omitempty"`
	// Schedule, if set, is a cron expression registered with the external
	// scheduler collaborator (internal/jobsched) and removed on delete.
	Schedule string `json:"schedule,omitempty"`
	// TTL, in seconds, is stored with the spec; no component reads it, so
	// finished job processes are not swept after it elapses.
	TTL *int `json:"ttl,omitempty"`
}

// Job is a finite sequence of containers executed in order, optionally
// re-triggered on a cron schedule. Name is the primary key.
type Job struct {
	Name string `json:"name"`
	Spec Spec   `json:"spec"`
}
