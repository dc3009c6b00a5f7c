package schema

// Severity levels for column changes. The drift decision itself never depends
// on them; they only annotate the diff shown next to a changed schema.
// - BLOCK for irreversible changes
// - WARN for risky but reversible changes
// - INFO for safe changes
const (
	SeverityInfo  = "INFO"
	SeverityWarn  = "WARN"
	SeverityBlock = "BLOCK"
)

const (
	ChangeColumnAdded       = "column_added"
	ChangeColumnRemoved     = "column_removed"
	ChangeTypeChanged       = "type_changed"
	ChangeNullableToNotNull = "nullable_to_notnull"
	ChangeNotNullToNullable = "notnull_to_nullable"
)

type Change struct {
	Kind     string
	Column   string
	From     string
	To       string
	Severity string
	Message  string
}

func SeverityForChange(kind string) string {
	switch kind {
	case ChangeColumnRemoved, ChangeNullableToNotNull:
		return SeverityBlock
	case ChangeTypeChanged:
		return SeverityWarn
	default:
		return SeverityInfo
	}
}

func MessageForChange(kind string) string {
	switch kind {
	case ChangeColumnAdded:
		return "added"
	case ChangeColumnRemoved:
		return "removed"
	case ChangeTypeChanged:
		return "type changed"
	case ChangeNullableToNotNull:
		return "nullable -> NOT NULL"
	case ChangeNotNullToNullable:
		return "NOT NULL -> nullable"
	default:
		return ""
	}
}

// Diff lists column-level differences from prev to cur, ordered by column
// name. A rename shows up as a removal plus an addition.
func Diff(prev, cur Schema) []Change {
	prevByName := map[string]Column{}
	for _, c := range prev {
		prevByName[c.Name] = c
	}
	curByName := map[string]Column{}
	for _, c := range cur {
		curByName[c.Name] = c
	}

	var changes []Change
	add := func(kind string, column, from, to string) {
		changes = append(changes, Change{
			Kind:     kind,
			Column:   column,
			From:     from,
			To:       to,
			Severity: SeverityForChange(kind),
			Message:  MessageForChange(kind),
		})
	}

	for _, c := range cur.Sorted() {
		p, ok := prevByName[c.Name]
		if !ok {
			add(ChangeColumnAdded, c.Name, "", c.Type)
			continue
		}
		if p.Type != c.Type {
			add(ChangeTypeChanged, c.Name, p.Type, c.Type)
		}
		if p.Nullable && !c.Nullable {
			add(ChangeNullableToNotNull, c.Name, "NULL", "NOT NULL")
		}
		if !p.Nullable && c.Nullable {
			add(ChangeNotNullToNullable, c.Name, "NOT NULL", "NULL")
		}
	}
	for _, p := range prev.Sorted() {
		if _, ok := curByName[p.Name]; !ok {
			add(ChangeColumnRemoved, p.Name, p.Type, "")
		}
	}
	return changes
}
