package highlight

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Repair fills defaults on a record read back from storage and rejects it when
// it cannot be rendered: a missing group becomes the record's own id, an
// unknown color becomes DefaultColor.
func Repair(r Record) (Record, error) {
	if r.ID <= 0 {
		return Record{}, fmt.Errorf("%w: missing id", ErrInvalid)
	}
	if r.GroupID <= 0 {
		r.GroupID = r.ID
	}
	if !r.Color.Valid() {
		r.Color = DefaultColor
	}
	if err := r.Validate(); err != nil {
		return Record{}, fmt.Errorf("record %d: %w", r.ID, err)
	}
	return r, nil
}

// Coerce builds a record from an untyped JSON object. Numbers may arrive as
// JSON numbers or numeric strings.
func Coerce(obj gjson.Result) (Record, error) {
	if !obj.IsObject() {
		return Record{}, fmt.Errorf("%w: not an object", ErrInvalid)
	}

	id, ok := intField(obj, "id")
	if !ok {
		return Record{}, fmt.Errorf("%w: bad id %s", ErrInvalid, obj.Get("id").Raw)
	}
	start, ok := intField(obj, "startAbs")
	if !ok {
		return Record{}, fmt.Errorf("%w: record %d: bad startAbs", ErrInvalid, id)
	}
	end, ok := intField(obj, "endAbs")
	if !ok {
		return Record{}, fmt.Errorf("%w: record %d: bad endAbs", ErrInvalid, id)
	}
	group, _ := intField(obj, "groupId")
	created, _ := intField(obj, "createdAt")

	return Repair(Record{
		ID:        id,
		GroupID:   group,
		URLKey:    obj.Get("urlKey").String(),
		Color:     Color(obj.Get("color").String()),
		StartAbs:  int(start),
		EndAbs:    int(end),
		CreatedAt: created,
		Quote:     obj.Get("quote").String(),
	})
}

func intField(obj gjson.Result, key string) (int64, bool) {
	v := obj.Get(key)
	switch v.Type {
	case gjson.Number:
		f := v.Float()
		if f != math.Trunc(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return v.Int(), true
	case gjson.String:
		n, err := strconv.ParseInt(strings.TrimSpace(v.Str), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
