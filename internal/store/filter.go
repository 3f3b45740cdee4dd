package store

import (
	"strconv"
	"strings"
	"time"
)

// TransactionFilter narrows P2P and Gate listings. Zero values mean "no
// constraint"; a zero Limit returns every row.
type TransactionFilter struct {
	From          *time.Time
	To            *time.Time
	UserID        string
	Search        string
	UnmatchedOnly bool
	CompletedOnly bool
	ApprovedOnly  bool
	Limit         int
	Offset        int
}

// MatchFilter narrows match listings. A match falls inside [From, To] when
// either of its transactions does.
type MatchFilter struct {
	From   *time.Time
	To     *time.Time
	UserID string
	Search string
	Limit  int
	Offset int
}

type queryBuilder struct {
	clauses []string
	args    []any
}

func (q *queryBuilder) arg(value any) string {
	q.args = append(q.args, value)
	return "$" + strconv.Itoa(len(q.args))
}

func (q *queryBuilder) where(clause string) {
	q.clauses = append(q.clauses, clause)
}

func (q *queryBuilder) whereSQL() string {
	if len(q.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(q.clauses, " AND ")
}

func (q *queryBuilder) page(limit, offset int) string {
	if limit <= 0 {
		return ""
	}
	return " LIMIT " + q.arg(limit) + " OFFSET " + q.arg(offset)
}

// searchPattern turns user input into an ILIKE pattern, escaping wildcards.
func searchPattern(search string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + replacer.Replace(strings.TrimSpace(search)) + "%"
}

// anyILike builds "(a ILIKE $n OR b ILIKE $n ...)" sharing one placeholder.
func (q *queryBuilder) anyILike(search string, columns ...string) string {
	placeholder := q.arg(searchPattern(search))
	parts := make([]string, 0, len(columns))
	for _, column := range columns {
		parts = append(parts, column+" ILIKE "+placeholder)
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}
