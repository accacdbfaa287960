package repository

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Op is a comparison operator accepted in list filters.
type Op string

const (
	OpEq       Op = "eq"
	OpNe       Op = "ne"
	OpGt       Op = "gt"
	OpGte      Op = "gte"
	OpLt       Op = "lt"
	OpLte      Op = "lte"
	OpIn       Op = "in"
	OpContains Op = "contains"
)

// Filter is one parsed query-string predicate, e.g. department[in]=A,B.
type Filter struct {
	Field string
	Op    Op
	Value string
}

// FieldType controls how filter values are converted before reaching SQL.
type FieldType int

const (
	FieldText FieldType = iota
	FieldInt
	FieldTime
	FieldBool
)

// FieldSpec describes one filterable column.
type FieldSpec struct {
	Column   string
	Type     FieldType
	Ops      []Op
	Sortable bool
}

// FilterSpec maps public field names to columns and their permitted operators.
type FilterSpec map[string]FieldSpec

// Sort orders a list by a field of a FilterSpec.
type Sort struct {
	Field string
	Desc  bool
}

var filterKeyRe = regexp.MustCompile(`^([a-z_]+)(?:\[([a-z]+)\])?$`)

// ParseFilters turns query parameters of the form field=value or
// field[op]=value into Filters. Keys listed in reserved are skipped.
// Output is sorted by key so generated SQL is stable.
func ParseFilters(params map[string]string, reserved ...string) ([]Filter, error) {
	skip := make(map[string]struct{}, len(reserved))
	for _, r := range reserved {
		skip[r] = struct{}{}
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		if _, ok := skip[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	filters := make([]Filter, 0, len(keys))
	for _, k := range keys {
		m := filterKeyRe.FindStringSubmatch(k)
		if m == nil {
			return nil, fmt.Errorf("%w: malformed key %q", ErrInvalidFilter, k)
		}
		op := OpEq
		if m[2] != "" {
			op = Op(m[2])
		}
		filters = append(filters, Filter{Field: m[1], Op: op, Value: params[k]})
	}
	return filters, nil
}

// ParseSort parses "field" or "-field". An empty string yields def.
func (s FilterSpec) ParseSort(raw string, def Sort) (Sort, error) {
	if raw == "" {
		return def, nil
	}
	out := Sort{Field: raw}
	if strings.HasPrefix(raw, "-") {
		out = Sort{Field: raw[1:], Desc: true}
	}
	f, ok := s[out.Field]
	if !ok || !f.Sortable {
		return Sort{}, fmt.Errorf("%w: cannot sort by %q", ErrInvalidFilter, out.Field)
	}
	return out, nil
}

// OrderBy renders an ORDER BY expression for srt. The sort must already be
// validated by ParseSort.
func (s FilterSpec) OrderBy(srt Sort, tiebreak string) string {
	dir := "ASC"
	if srt.Desc {
		dir = "DESC"
	}
	col := s[srt.Field].Column
	if tiebreak == "" {
		return fmt.Sprintf("%s %s", col, dir)
	}
	return fmt.Sprintf("%s %s, %s %s", col, dir, tiebreak, dir)
}

// Compile validates filters and renders them as SQL predicates using
// positional placeholders starting at $next. It returns the predicates, their
// arguments and the next free placeholder index.
func (s FilterSpec) Compile(filters []Filter, next int) ([]string, []any, int, error) {
	var (
		preds []string
		args  []any
	)
	for _, f := range filters {
		spec, ok := s[f.Field]
		if !ok {
			return nil, nil, 0, fmt.Errorf("%w: unknown field %q", ErrInvalidFilter, f.Field)
		}
		if !spec.allows(f.Op) {
			return nil, nil, 0, fmt.Errorf("%w: operator %q not allowed on %q", ErrInvalidFilter, f.Op, f.Field)
		}

		if f.Op == OpIn {
			parts := strings.Split(f.Value, ",")
			ph := make([]string, 0, len(parts))
			for _, p := range parts {
				v, err := spec.convert(strings.TrimSpace(p))
				if err != nil {
					return nil, nil, 0, fmt.Errorf("%w: %s: %v", ErrInvalidFilter, f.Field, err)
				}
				ph = append(ph, fmt.Sprintf("$%d", next))
				args = append(args, v)
				next++
			}
			preds = append(preds, fmt.Sprintf("%s IN (%s)", spec.Column, strings.Join(ph, ", ")))
			continue
		}

		v, err := spec.convert(f.Value)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("%w: %s: %v", ErrInvalidFilter, f.Field, err)
		}
		var pred string
		switch f.Op {
		case OpEq:
			pred = fmt.Sprintf("%s = $%d", spec.Column, next)
		case OpNe:
			pred = fmt.Sprintf("%s <> $%d", spec.Column, next)
		case OpGt:
			pred = fmt.Sprintf("%s > $%d", spec.Column, next)
		case OpGte:
			pred = fmt.Sprintf("%s >= $%d", spec.Column, next)
		case OpLt:
			pred = fmt.Sprintf("%s < $%d", spec.Column, next)
		case OpLte:
			pred = fmt.Sprintf("%s <= $%d", spec.Column, next)
		case OpContains:
			pred = fmt.Sprintf("strpos(lower(%s), lower($%d)) > 0", spec.Column, next)
		}
		preds = append(preds, pred)
		args = append(args, v)
		next++
	}
	return preds, args, next, nil
}

func (f FieldSpec) allows(op Op) bool {
	for _, o := range f.Ops {
		if o == op {
			return true
		}
	}
	return false
}

func (f FieldSpec) convert(raw string) (any, error) {
	switch f.Type {
	case FieldInt:
		return strconv.Atoi(raw)
	case FieldTime:
		return time.Parse(time.RFC3339, raw)
	case FieldBool:
		return strconv.ParseBool(raw)
	}
	return raw, nil
}

var (
	textOps  = []Op{OpEq, OpNe, OpIn, OpContains}
	exactOps = []Op{OpEq, OpNe, OpIn}
	rangeOps = []Op{OpEq, OpNe, OpGt, OpGte, OpLt, OpLte}
	timeOps  = []Op{OpGt, OpGte, OpLt, OpLte}
)

// DocumentFilterSpec lists the filterable and sortable document fields.
var DocumentFilterSpec = FilterSpec{
	"title":           {Column: "d.title", Type: FieldText, Ops: textOps, Sortable: true},
	"description":     {Column: "d.description", Type: FieldText, Ops: []Op{OpContains}},
	"department":      {Column: "d.department", Type: FieldText, Ops: textOps, Sortable: true},
	"machine_id":      {Column: "d.machine_id", Type: FieldText, Ops: exactOps, Sortable: true},
	"created_by":      {Column: "d.created_by", Type: FieldText, Ops: exactOps},
	"qr_id":           {Column: "q.qr_id", Type: FieldText, Ops: []Op{OpEq}},
	"current_version": {Column: "d.current_version", Type: FieldInt, Ops: rangeOps, Sortable: true},
	"created_at":      {Column: "d.created_at", Type: FieldTime, Ops: timeOps, Sortable: true},
	"updated_at":      {Column: "d.updated_at", Type: FieldTime, Ops: timeOps, Sortable: true},
}

// DefaultDocumentSort is newest-updated first.
var DefaultDocumentSort = Sort{Field: "updated_at", Desc: true}

// ScanLogSortSpec lists the sortable scan log fields.
var ScanLogSortSpec = FilterSpec{
	"timestamp":   {Column: "s.scanned_at", Type: FieldTime, Sortable: true},
	"department":  {Column: "s.department", Type: FieldText, Sortable: true},
	"document_id": {Column: "s.document_id", Type: FieldText, Sortable: true},
}

// DefaultScanLogSort is newest first.
var DefaultScanLogSort = Sort{Field: "timestamp", Desc: true}
