package highlight

// SplitAround applies the split overlap policy for a new range [start, end)
// against existing records. A record strictly containing the range is removed
// and replaced by its left and right remainders, which keep its group, color
// and creation time. A record fully covered by the range is removed. Partial
// overlaps are left alone and stack.
//
// Remainders have no id and no quote; the caller stores them and fills the
// quote when it has the page text.
func SplitAround(existing []Record, start, end int) (remove []Record, add []Record) {
	for _, h := range existing {
		if !Overlaps(start, end, h.StartAbs, h.EndAbs) {
			continue
		}

		switch {
		case h.StartAbs < start && h.EndAbs > end:
			remove = append(remove, h)
			add = append(add, remainder(h, h.StartAbs, start), remainder(h, end, h.EndAbs))
		case start <= h.StartAbs && end >= h.EndAbs:
			remove = append(remove, h)
		}
	}
	return remove, add
}

func remainder(h Record, start, end int) Record {
	return Record{
		GroupID:   h.Group(),
		URLKey:    h.URLKey,
		Color:     h.Color,
		StartAbs:  start,
		EndAbs:    end,
		CreatedAt: h.CreatedAt,
	}
}
