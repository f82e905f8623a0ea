package slot

// =============================================================================
// Status Projection
// =============================================================================

// SlotStatus is the reported view of one slot.
type SlotStatus struct {
	URL      string `json:"url" yaml:"url"`
	Version  string `json:"version" yaml:"version"`
	Instance string `json:"instance" yaml:"instance"`
	Revision string `json:"revision" yaml:"revision"`
}

// Status is the reported view of both roles.
type Status struct {
	Production SlotStatus `json:"production" yaml:"production"`
	Staging    SlotStatus `json:"staging" yaml:"staging"`
}

// Status projects the slot for reporting. Instance is the last path segment
// of the service ARN and Revision the last colon segment of the task
// definition ARN.
func (i Instance) Status() SlotStatus {
	return SlotStatus{
		URL:      i.TrafficHost,
		Version:  i.Version,
		Instance: LastSegment(i.ServiceARN, "/"),
		Revision: LastSegment(i.TaskDefinitionARN, ":"),
	}
}

// Status projects both roles for reporting.
func (t Topology) Status() Status {
	return Status{
		Production: t.Production.Status(),
		Staging:    t.Staging.Status(),
	}
}
