package model

import "time"

// Channel is the delivery mechanism used by the dispatch step.
type Channel string

const (
	ChannelSMTP       Channel = "SMTP"
	ChannelRegulated  Channel = "REGULATED"
	ChannelFilesystem Channel = "FILESYSTEM"
)

func (c Channel) IsValid() bool {
	switch c {
	case ChannelSMTP, ChannelRegulated, ChannelFilesystem:
		return true
	}
	return false
}

// ContainerMode says whether artifacts are delivered one by one or bundled.
type ContainerMode string

const (
	ContainerUnit  ContainerMode = "UNIT"
	ContainerBatch ContainerMode = "BATCH"
)

func (m ContainerMode) IsValid() bool {
	switch m {
	case ContainerUnit, ContainerBatch:
		return true
	}
	return false
}

// JobKind names the workflow step a background job performs.
type JobKind string

const (
	JobFetch    JobKind = "fetch"
	JobGenerate JobKind = "generate"
	JobDispatch JobKind = "dispatch"
	JobPurge    JobKind = "purge"
)

// JournalEntry records the terminal outcome of one workflow job.
type JournalEntry struct {
	ID         string        `json:"id"`
	Kind       JobKind       `json:"kind"`
	Channel    Channel       `json:"channel,omitempty"`
	Container  ContainerMode `json:"container,omitempty"`
	Count      int           `json:"count"`
	State      string        `json:"state"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
}
