package realtime

import "github.com/samber/lo"

// Reconcile applies one event to items and selected and returns the results.
// The inputs are not modified. Events naming an unknown id, or missing the row they
// need, leave the state unchanged.
func Reconcile[T Identified](items []T, selected *T, ev Event[T]) ([]T, *T) {
	switch ev.Type {
	case EventInsert:
		if ev.New == nil {
			return items, selected
		}
		id := (*ev.New).ItemID()
		if lo.ContainsBy(items, func(it T) bool { return it.ItemID() == id }) {
			return items, selected
		}
		out := make([]T, 0, len(items)+1)
		out = append(out, *ev.New)
		return append(out, items...), selected

	case EventUpdate:
		if ev.New == nil {
			return items, selected
		}
		id := (*ev.New).ItemID()
		out := lo.Map(items, func(it T, _ int) T {
			if it.ItemID() == id {
				return *ev.New
			}
			return it
		})
		if selected != nil && (*selected).ItemID() == id {
			next := *ev.New
			selected = &next
		}
		return out, selected

	case EventDelete:
		if ev.Old == nil {
			return items, selected
		}
		id := (*ev.Old).ItemID()
		out := lo.Reject(items, func(it T, _ int) bool { return it.ItemID() == id })
		if selected != nil && (*selected).ItemID() == id {
			selected = nil
		}
		return out, selected
	}
	return items, selected
}
