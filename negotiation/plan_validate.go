package negotiation

import (
	"fmt"

	"github.com/parley-dev/parley/session"
)

// ValidatePlanJSON checks the two invariants spec.md §3/§8 impose on a
// present plan_json: the task graph must be acyclic, and every prerequisite
// id must resolve to a task in the same plan. A nil plan is valid (the
// structured form is optional).
func ValidatePlanJSON(p *session.PlanJSON) error {
	if p == nil {
		return nil
	}

	ids := make(map[string]bool, len(p.Tasks))
	for _, t := range p.Tasks {
		ids[t.ID] = true
	}
	for _, t := range p.Tasks {
		for _, prereq := range t.Prerequisites {
			if !ids[prereq] {
				return fmt.Errorf("task %q: dangling prerequisite %q", t.ID, prereq)
			}
		}
	}

	if err := checkAcyclic(p.Tasks); err != nil {
		return err
	}
	return nil
}

func checkAcyclic(tasks []session.PlanTask) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(tasks))
	adj := make(map[string][]string, len(tasks))
	for _, t := range tasks {
		adj[t.ID] = t.Prerequisites
	}

	var visit func(id string) error
	visit = func(id string) error {
		color[id] = gray
		for _, dep := range adj[id] {
			switch color[dep] {
			case gray:
				return fmt.Errorf("cycle detected involving task %q", dep)
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		color[id] = black
		return nil
	}

	for _, t := range tasks {
		if color[t.ID] == white {
			if err := visit(t.ID); err != nil {
				return err
			}
		}
	}
	return nil
}
