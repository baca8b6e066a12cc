package stats

// WorkflowRules classifies tickets by status and resolution.
type WorkflowRules interface {
	IsResolved(status, resolution string) bool
	IsAbandoned(status, resolution string) bool
	InProgressStatuses() []string
	DoneStatuses() []string
}

// StaticWorkflow is a WorkflowRules backed by fixed, configured name lists.
// All comparisons are case-insensitive.
type StaticWorkflow struct {
	inProgress []string
	done       []string

	doneSet                 nameSet
	abandonedResolutionsSet nameSet
	abandonedStatusesSet    nameSet
}

// WorkflowConfig lists the names a StaticWorkflow classifies by.
type WorkflowConfig struct {
	InProgress           []string
	Done                 []string
	AbandonedResolutions []string
	AbandonedStatuses    []string
}

// DefaultWorkflow returns the classic Jira workflow naming.
func DefaultWorkflow() WorkflowConfig {
	return WorkflowConfig{
		InProgress:           []string{"In Progress", "Blocked", "Quality Review"},
		Done:                 []string{"Done", "Resolved", "Closed"},
		AbandonedResolutions: []string{"Won't Do", "Won't Fix", "Duplicate", "Cannot Reproduce", "Obsolete"},
		AbandonedStatuses:    []string{"Abandoned", "Cancelled"},
	}
}

// NewStaticWorkflow builds a StaticWorkflow from cfg.
func NewStaticWorkflow(cfg WorkflowConfig) *StaticWorkflow {
	return &StaticWorkflow{
		inProgress:              append([]string(nil), cfg.InProgress...),
		done:                    append([]string(nil), cfg.Done...),
		doneSet:                 newNameSet(cfg.Done),
		abandonedResolutionsSet: newNameSet(cfg.AbandonedResolutions),
		abandonedStatusesSet:    newNameSet(cfg.AbandonedStatuses),
	}
}

// IsResolved reports whether the ticket sits in a done status or carries any
// resolution at all.
func (w *StaticWorkflow) IsResolved(status, resolution string) bool {
	return w.doneSet.has(status) || normalize(resolution) != ""
}

// IsAbandoned reports whether the ticket was closed without delivering.
func (w *StaticWorkflow) IsAbandoned(status, resolution string) bool {
	return w.abandonedResolutionsSet.has(resolution) || w.abandonedStatusesSet.has(status)
}

func (w *StaticWorkflow) InProgressStatuses() []string {
	return append([]string(nil), w.inProgress...)
}

func (w *StaticWorkflow) DoneStatuses() []string {
	return append([]string(nil), w.done...)
}
