package models

import (
	"regexp"
	"strings"
)

// OpType labels a queued operation for diagnostics and UI badges.
// It is resolved once at enqueue time from the method/URL mapping below
// and never used for dispatch.
type OpType string

const (
	OpTaskStart       OpType = "task_start"
	OpTaskPause       OpType = "task_pause"
	OpTaskResume      OpType = "task_resume"
	OpTaskComplete    OpType = "task_complete"
	OpChecklistSubmit OpType = "checklist_submit"
	OpInventoryUpdate OpType = "inventory_update"
	OpUnknown         OpType = "unknown"
)

type opRoute struct {
	methods []string
	path    *regexp.Regexp
	opType  OpType
}

var opRoutes = []opRoute{
	{[]string{"POST", "PATCH"}, regexp.MustCompile(`^/?\w*[\w/-]*/tasks/[^/]+/start/?$`), OpTaskStart},
	{[]string{"POST", "PATCH"}, regexp.MustCompile(`^/?\w*[\w/-]*/tasks/[^/]+/pause/?$`), OpTaskPause},
	{[]string{"POST", "PATCH"}, regexp.MustCompile(`^/?\w*[\w/-]*/tasks/[^/]+/resume/?$`), OpTaskResume},
	{[]string{"POST", "PATCH"}, regexp.MustCompile(`^/?\w*[\w/-]*/tasks/[^/]+/complete/?$`), OpTaskComplete},
	{[]string{"POST", "PUT"}, regexp.MustCompile(`^/?\w*[\w/-]*/checklists(/[^/]+)?(/submit)?/?$`), OpChecklistSubmit},
	{[]string{"POST", "PUT", "PATCH"}, regexp.MustCompile(`^/?\w*[\w/-]*/inventory(/[^/]+)*/?$`), OpInventoryUpdate},
}

// ClassifyOp maps a method/URL pair to an OpType. Unrecognized
// combinations classify as OpUnknown; they are still queued and replayed.
func ClassifyOp(method, url string) OpType {
	method = strings.ToUpper(strings.TrimSpace(method))
	if i := strings.IndexAny(url, "?#"); i >= 0 {
		url = url[:i]
	}
	for _, route := range opRoutes {
		if !route.path.MatchString(url) {
			continue
		}
		for _, m := range route.methods {
			if m == method {
				return route.opType
			}
		}
	}
	return OpUnknown
}

// EntityType groups operation types by the entity they mutate, used to
// key entity snapshots.
func (t OpType) EntityType() string {
	switch t {
	case OpTaskStart, OpTaskPause, OpTaskResume, OpTaskComplete:
		return "task"
	case OpChecklistSubmit:
		return "checklist"
	case OpInventoryUpdate:
		return "inventory"
	default:
		return "other"
	}
}
