package engine

import "github.com/roach88/listsync/internal/object"

// splice merges one refresh page into next.
//
// Objects are returned by the server in (namespace, name) order, so every
// tracked object that sorts after the previous cursor and up to the new
// cursor has been re-read by this page. Those that did not come back were
// deleted server-side. The result is
//
//	head (<= previous cursor) ++ batch ++ tail (> new cursor)
//
// with batch copies winning on UID collisions unless the tracked copy is
// newer, as after a patch confirmed while the page was in flight. When the
// sweep runs out of pages the tail is dropped as well: nothing after the
// last cursor exists any more.
func (m *Machine) splice(prev, next *State, batch []object.Tracked, canContinue bool) {
	batch = keepNewer(batch, prev.Items)

	prevCursor := prev.Sweep.Cursor
	newCursor := prevCursor
	if len(batch) > 0 {
		last := batch[len(batch)-1]
		if prevCursor == nil || object.Less(*prevCursor, last) {
			newCursor = &last
		}
	}

	keepTail := canContinue
	next.Items = spliceList(prev.Items, batch, prevCursor, newCursor, keepTail)
	next.FilteredItems = spliceList(prev.FilteredItems, object.FilterSlice(batch, prev.Filter), prevCursor, newCursor, keepTail)

	covered := prev.Sweep.Until == nil || (newCursor != nil && object.Compare(*newCursor, *prev.Sweep.Until) >= 0)
	if !canContinue || (covered && next.LimitSatisfied()) {
		next.Refreshing = false
		next.Finished = !canContinue
		next.Sweep = Sweep{}
		m.logger.Debug("refresh sweep complete",
			"activity", next.Activity.ID,
			"exhausted", !canContinue,
			"items", len(next.Items),
		)
		return
	}
	next.Sweep = Sweep{Cursor: newCursor, Until: prev.Sweep.Until}
}

// spliceList returns head ++ batch ++ tail of list around the cursors.
// A nil prevCursor means the head is empty; a nil newCursor means nothing
// has been covered yet, so the whole list is tail.
func spliceList(list, batch []object.Tracked, prevCursor, newCursor *object.Tracked, keepTail bool) []object.Tracked {
	fresh := make(map[string]bool, len(batch))
	for _, o := range batch {
		fresh[o.UID] = true
	}

	out := make([]object.Tracked, 0, len(list)+len(batch))
	for _, o := range list {
		if prevCursor != nil && object.Compare(o, *prevCursor) <= 0 && !fresh[o.UID] {
			out = append(out, o)
		}
	}
	out = appendUnique(out, batch)
	if !keepTail {
		return out
	}
	for _, o := range list {
		if (newCursor == nil || object.Compare(o, *newCursor) > 0) && !fresh[o.UID] {
			out = append(out, o)
		}
	}
	return out
}

// keepNewer returns batch with every object replaced by its tracked copy
// when that copy has a strictly newer resource version.
func keepNewer(batch, tracked []object.Tracked) []object.Tracked {
	idx := object.IndexByUID(tracked)
	out := make([]object.Tracked, len(batch))
	for i, o := range batch {
		if j, ok := idx[o.UID]; ok && !object.Newer(o, tracked[j]) {
			o = tracked[j]
		}
		out[i] = o
	}
	return out
}

// appendUnique appends batch to out, keeping the last copy of a UID that
// repeats within batch at the position of its first occurrence.
func appendUnique(out, batch []object.Tracked) []object.Tracked {
	pos := make(map[string]int, len(batch))
	for _, o := range batch {
		if i, ok := pos[o.UID]; ok {
			out[i] = o
			continue
		}
		pos[o.UID] = len(out)
		out = append(out, o)
	}
	return out
}
