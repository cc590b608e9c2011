package retrieval

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"paperlens/internal/models"
)

type fakeRows struct {
	rows [][]any
	idx  int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	r.idx++
	return r.idx <= len(r.rows)
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.idx-1]
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = row[i].(string)
		case **int:
			if row[i] == nil {
				*p = nil
			} else {
				v := row[i].(int)
				*p = &v
			}
		case *[]string:
			*p = row[i].([]string)
		case *float64:
			*p = row[i].(float64)
		default:
			return fmt.Errorf("unexpected scan dest %T", d)
		}
	}
	return nil
}

type fakeCall struct {
	sql  string
	args []any
}

type fakeQueryer struct {
	calls   []fakeCall
	results []*fakeRows
}

func (q *fakeQueryer) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	q.calls = append(q.calls, fakeCall{sql: sql, args: args})
	if len(q.results) == 0 {
		return &fakeRows{}, nil
	}
	rows := q.results[0]
	q.results = q.results[1:]
	return rows, nil
}

// chunkRow mirrors the column order of the retrieval queries. page may be
// nil for unpaged chunks.
func chunkRow(id string, page any, score float64) []any {
	return []any{id, "text of " + id, "Section", page, []string{}, []string{}, score}
}

func TestSearchWindowExpansion(t *testing.T) {
	q := &fakeQueryer{results: []*fakeRows{
		{rows: [][]any{chunkRow("c-005", 5, 0.9)}},
		{rows: [][]any{
			chunkRow("c-004", 4, 0),
			chunkRow("c-005", 5, 0),
			chunkRow("c-006", 6, 0),
		}},
	}}
	r := NewRetriever(q)

	res, err := r.Search(context.Background(), "p1", "attention", []float32{0.1, 0.2}, 8, 0.65, 1)
	require.NoError(t, err)
	require.Len(t, q.calls, 2)
	require.Equal(t, []int{4, 5, 6}, q.calls[1].args[1], "range query covers the merged page union")

	require.Len(t, res.Hits, 1)
	require.Equal(t, "c-005", res.Hits[0].ChunkID)
	require.False(t, res.Hits[0].FromWindow)

	require.Len(t, res.ExpandedWindow, 2, "hit chunk is not duplicated into the window set")
	for _, e := range res.ExpandedWindow {
		require.NotEqual(t, "c-005", e.ChunkID)
		require.True(t, e.FromWindow)
		require.Zero(t, e.Score)
		require.NotNil(t, e.Page)
		require.GreaterOrEqual(t, *e.Page, 4)
		require.LessOrEqual(t, *e.Page, 6)
	}
	require.Equal(t, []string{"c-005", "c-004", "c-006"}, chunkIDs(res.Union()))
}

func TestSearchWindowClampsAtFirstPage(t *testing.T) {
	q := &fakeQueryer{results: []*fakeRows{
		{rows: [][]any{chunkRow("c-001", 1, 0.7)}},
		{rows: [][]any{}},
	}}
	r := NewRetriever(q)

	_, err := r.Search(context.Background(), "p1", "q", []float32{0.1}, 8, 0.65, 2)
	require.NoError(t, err)
	require.Len(t, q.calls, 2)
	require.Equal(t, []int{1, 2, 3}, q.calls[1].args[1], "pages below 1 never enter the range")
}

func TestSearchSkipsWindowForUnpagedHits(t *testing.T) {
	q := &fakeQueryer{results: []*fakeRows{
		{rows: [][]any{chunkRow("c-a", nil, 0.5)}},
	}}
	r := NewRetriever(q)

	res, err := r.Search(context.Background(), "p1", "q", []float32{0.1}, 8, 0.65, 1)
	require.NoError(t, err)
	require.Len(t, q.calls, 1, "no range query when no hit carries a page")
	require.Empty(t, res.ExpandedWindow)
}

func chunkIDs(chunks []models.EvidenceChunk) []string {
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, c.ChunkID)
	}
	return out
}
