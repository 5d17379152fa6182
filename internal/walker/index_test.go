package walker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/regscan/crawler/internal/crawl"
)

type fakeRenderer struct {
	html string
	err  error
	// failures makes the first N renders fail before html is served.
	failures int
	calls    int
}

func (r *fakeRenderer) Render(context.Context, string) (string, error) {
	r.calls++
	if r.failures > 0 {
		r.failures--
		return "", errors.New("browser crashed")
	}
	return r.html, r.err
}
func (r *fakeRenderer) Close() {}

const indexHTML = `<html><body><table>
<tr><th>Date</th><th>Order</th></tr>
<tr><td>12/08/2026</td><td><a href="/orders/a.pdf">Order against A</a></td></tr>
<tr><td>11/08/2026</td><td><a href="/orders/b.pdf">Order against B</a></td></tr>
<tr><td>10/08/2026</td><td><a href="/orders/c.pdf">Order against C</a></td></tr>
</table></body></html>`

func newTestIndexWalker(t *testing.T, r Renderer) *IndexWalker {
	t.Helper()
	w, err := NewIndexWalker(IndexConfig{URL: "https://regulator.test/index.html"}, r, fastPolicy(2), zap.NewNop())
	require.NoError(t, err)
	return w
}

func TestIndexWalkerYieldsOneRowPerPage(t *testing.T) {
	w := newTestIndexWalker(t, &fakeRenderer{html: indexHTML})
	it := w.PagesFrom(0)
	ctx := context.Background()

	page, err := it.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, crawl.Cursor(0), page.Cursor)
	require.Len(t, page.Units, 1)
	assert.Equal(t, "https://regulator.test/orders/a.pdf", page.Units[0].Ref)
	assert.Equal(t, "12/08/2026", page.Units[0].Date)

	page, err = it.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, crawl.Cursor(1), page.Cursor)
	assert.Equal(t, "https://regulator.test/orders/b.pdf", page.Units[0].Ref)
}

func TestIndexWalkerResumesMidIndex(t *testing.T) {
	w := newTestIndexWalker(t, &fakeRenderer{html: indexHTML})
	it := w.PagesFrom(2)
	ctx := context.Background()

	page, err := it.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, crawl.Cursor(2), page.Cursor)
	assert.Equal(t, "https://regulator.test/orders/c.pdf", page.Units[0].Ref)

	_, err = it.Next(ctx)
	assert.ErrorIs(t, err, crawl.ErrEndOfListing)
}

func TestIndexWalkerRenderFailureIsTransient(t *testing.T) {
	r := &fakeRenderer{err: errors.New("browser crashed")}
	w := newTestIndexWalker(t, r)
	_, err := w.PagesFrom(0).Next(context.Background())
	require.Error(t, err)
	assert.Equal(t, crawl.KindTransient, crawl.KindOf(err))
	// The render was attempted up to the policy budget before escalating.
	assert.Equal(t, 2, r.calls)
}

func TestIndexWalkerRetriesFlakyRender(t *testing.T) {
	r := &fakeRenderer{html: indexHTML, failures: 1}
	w := newTestIndexWalker(t, r)

	page, err := w.PagesFrom(0).Next(context.Background())
	require.NoError(t, err)
	require.Len(t, page.Units, 1)
	assert.Equal(t, "https://regulator.test/orders/a.pdf", page.Units[0].Ref)
	assert.Equal(t, 2, r.calls)
}
