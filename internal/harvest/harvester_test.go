package harvest

import (
	"context"
	"errors"
	"io/fs"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	memorypublisher "github.com/JakeFAU/contact-harvester/internal/publisher/memory"
	"github.com/JakeFAU/contact-harvester/internal/table"
	"github.com/JakeFAU/contact-harvester/internal/table/memory"
)

type fakeFetcher struct {
	mu      sync.Mutex
	pages   map[string]Page
	errs    map[string]error
	panics  map[string]bool
	calls   []string
	onFetch func(url string)
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		pages:  map[string]Page{},
		errs:   map[string]error{},
		panics: map[string]bool{},
	}
}

func (f *fakeFetcher) page(url string, status int, body string) {
	f.pages[url] = Page{URL: url, StatusCode: status, Body: []byte(body)}
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (Page, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	hook := f.onFetch
	f.mu.Unlock()
	if hook != nil {
		hook(url)
	}
	if f.panics[url] {
		panic("fetch exploded")
	}
	if err := f.errs[url]; err != nil {
		return Page{}, err
	}
	if p, ok := f.pages[url]; ok {
		return p, nil
	}
	return Page{URL: url, StatusCode: 404}, nil
}

func (f *fakeFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeLinks map[string][]string

func (l fakeLinks) SameSiteLinks(pageURL string, _ []byte, _ int) ([]string, error) {
	return l[pageURL], nil
}

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type countingRecorder struct {
	nopRecorder
	mu                 sync.Mutex
	checkpointFailures map[string]int
	rows               map[Status]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{checkpointFailures: map[string]int{}, rows: map[Status]int{}}
}

func (r *countingRecorder) ObserveRow(s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[s]++
}

func (r *countingRecorder) ObserveCheckpointFailure(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkpointFailures[name]++
}

type fixture struct {
	dataset       *memory.Store
	emails        *memory.Store
	notAccessible *memory.Store
	fetcher       *fakeFetcher
	links         fakeLinks
	clock         *stepClock
	recorder      *countingRecorder
	cfg           Config
}

func newFixture(rows ...[]string) *fixture {
	dataset := table.New("Website", "accessible")
	for _, r := range rows {
		dataset.Append(r...)
	}
	cfg := DefaultConfig()
	cfg.Budget = time.Hour
	return &fixture{
		dataset:       memory.NewStore(dataset),
		emails:        memory.NewStore(nil),
		notAccessible: memory.NewStore(nil),
		fetcher:       newFakeFetcher(),
		links:         fakeLinks{},
		clock:         newStepClock(),
		recorder:      newCountingRecorder(),
		cfg:           cfg,
	}
}

func (f *fixture) harvester(t *testing.T, deps ...func(*Dependencies)) *Harvester {
	t.Helper()
	d := Dependencies{
		Fetcher:  f.fetcher,
		Links:    f.links,
		Clock:    f.clock,
		Recorder: f.recorder,
	}
	for _, fn := range deps {
		fn(&d)
	}
	h, err := New(f.cfg, Stores{Dataset: f.dataset, Emails: f.emails, NotAccessible: f.notAccessible}, d, zap.NewNop())
	require.NoError(t, err)
	return h
}

func rowsOf(t *testing.T, s *memory.Store) [][]string {
	t.Helper()
	snap := s.Snapshot()
	require.NotNil(t, snap)
	return snap.Rows
}

func TestRunClassifiesRoleBasedEmails(t *testing.T) {
	t.Parallel()

	f := newFixture([]string{"example.com", ""})
	f.fetcher.page("https://example.com", 200, `<p>contact@example.com and random@other.com</p>`)

	summary, err := f.harvester(t).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StopExhausted, summary.Reason)
	assert.Equal(t, 1, summary.Accessible)
	assert.Equal(t, [][]string{{"example.com", "YES"}}, rowsOf(t, f.dataset))
	assert.Equal(t, [][]string{{"https://example.com", "contact@example.com"}}, rowsOf(t, f.emails))
	assert.Empty(t, rowsOf(t, f.notAccessible))
	assert.Equal(t, []string{"Website", "Emails"}, f.emails.Snapshot().Header)
}

func TestRunTreatsNoMatchesLikeUnreachable(t *testing.T) {
	t.Parallel()

	f := newFixture([]string{"quiet.com", ""}, []string{"gone.com", ""})
	f.fetcher.page("https://quiet.com", 200, `<p>nobody@quiet.com</p>`)
	f.fetcher.page("https://gone.com", 404, "")

	summary, err := f.harvester(t).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.NotAccessible)
	assert.Equal(t, [][]string{{"quiet.com", "NO"}, {"gone.com", "NO"}}, rowsOf(t, f.dataset))
	assert.Equal(t, [][]string{{"https://quiet.com", "NO"}, {"https://gone.com", "NO"}}, rowsOf(t, f.notAccessible))
	assert.Empty(t, rowsOf(t, f.emails))
}

func TestRunTransportErrorMarksNo(t *testing.T) {
	t.Parallel()

	f := newFixture([]string{"down.com", ""})
	f.fetcher.errs["https://down.com"] = errors.New("connection refused")

	_, err := f.harvester(t).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"down.com", "NO"}}, rowsOf(t, f.dataset))
}

func TestRunIsIdempotentWhenNothingPending(t *testing.T) {
	t.Parallel()

	f := newFixture([]string{"a.com", "YES"}, []string{"b.com", "NO"})
	emails := table.New(ColumnWebsite, ColumnEmails)
	emails.Append("https://a.com", "info@a.com")
	f.emails = memory.NewStore(emails)
	before := f.dataset.Snapshot().Records()

	summary, err := f.harvester(t).Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, f.fetcher.Calls())
	assert.Equal(t, 0, summary.Pending)
	assert.Equal(t, before, f.dataset.Snapshot().Records())
	assert.Equal(t, emails.Records(), f.emails.Snapshot().Records())
	assert.Equal(t, [][]string{{"Website", "Accessible"}}, f.notAccessible.Snapshot().Records())
}

func TestRunResumesAfterBudgetStop(t *testing.T) {
	t.Parallel()

	f := newFixture(
		[]string{"one.com", ""},
		[]string{"two.com", "NO"},
		[]string{"three.com", ""},
		[]string{"four.com", ""},
	)
	f.fetcher.page("https://one.com", 200, "info@one.com")
	f.fetcher.page("https://three.com", 200, "nothing here")
	f.fetcher.page("https://four.com", 200, "sales@four.com")
	f.fetcher.onFetch = func(string) { f.clock.Advance(time.Minute) }
	f.cfg.Budget = 90 * time.Second

	first, err := f.harvester(t).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopBudget, first.Reason)
	assert.Equal(t, 2, first.Processed)
	assert.Equal(t, []string{"https://one.com", "https://three.com"}, f.fetcher.Calls())

	f.fetcher.calls = nil
	f.cfg.Budget = time.Hour
	second, err := f.harvester(t).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopExhausted, second.Reason)
	assert.Equal(t, 1, second.Pending)
	assert.Equal(t, []string{"https://four.com"}, f.fetcher.Calls())

	assert.Equal(t, [][]string{
		{"one.com", "YES"}, {"two.com", "NO"}, {"three.com", "NO"}, {"four.com", "YES"},
	}, rowsOf(t, f.dataset))
	assert.Equal(t, [][]string{
		{"https://one.com", "info@one.com"}, {"https://four.com", "sales@four.com"},
	}, rowsOf(t, f.emails))
	assert.Equal(t, [][]string{{"https://three.com", "NO"}}, rowsOf(t, f.notAccessible))
}

func TestRunZeroBudgetProcessesNothing(t *testing.T) {
	t.Parallel()

	f := newFixture([]string{"a.com", ""})
	f.cfg.Budget = 0
	before := f.dataset.Snapshot().Records()

	summary, err := f.harvester(t).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StopBudget, summary.Reason)
	assert.Empty(t, f.fetcher.Calls())
	assert.Equal(t, 1, f.dataset.Saves(), "final save still happens")
	assert.Equal(t, before, f.dataset.Snapshot().Records())
}

func TestRunIsolatesSubpageFailures(t *testing.T) {
	t.Parallel()

	f := newFixture([]string{"site.com", ""})
	f.fetcher.page("https://site.com", 200, "<a href='/a'>a</a><a href='/b'>b</a>")
	f.fetcher.errs["https://site.com/a"] = errors.New("timeout")
	f.fetcher.page("https://site.com/b", 200, "write to support@site.com")
	f.links["https://site.com"] = []string{"https://site.com/a", "https://site.com/b"}

	_, err := f.harvester(t).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"https://site.com", "support@site.com"}}, rowsOf(t, f.emails))
}

func TestRunJoinsAndSortsEmails(t *testing.T) {
	t.Parallel()

	f := newFixture([]string{"https://multi.com", ""})
	f.fetcher.page("https://multi.com", 200, "sales@multi.com info@multi.com")
	f.fetcher.page("https://multi.com/contact", 200, "info@multi.com hr@multi.com")
	f.links["https://multi.com"] = []string{"https://multi.com/contact"}

	_, err := f.harvester(t).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"https://multi.com", "hr@multi.com, info@multi.com, sales@multi.com"},
	}, rowsOf(t, f.emails))
}

func TestRunCapsSubpages(t *testing.T) {
	t.Parallel()

	f := newFixture([]string{"big.com", ""})
	f.fetcher.page("https://big.com", 200, "info@big.com")
	var links []string
	for i := 0; i < 15; i++ {
		links = append(links, "https://big.com/p"+string(rune('a'+i)))
	}
	f.links["https://big.com"] = links

	_, err := f.harvester(t).Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, f.fetcher.Calls(), 11)
}

func TestRunSkipsBlankWebsites(t *testing.T) {
	t.Parallel()

	f := newFixture([]string{"   ", ""}, []string{"ok.com", ""})
	f.fetcher.page("https://ok.com", 200, "info@ok.com")

	summary, err := f.harvester(t).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, [][]string{{"   ", ""}, {"ok.com", "YES"}}, rowsOf(t, f.dataset))
}

func TestRunInterruptLeavesRowPending(t *testing.T) {
	t.Parallel()

	f := newFixture([]string{"first.com", ""}, []string{"second.com", ""})
	f.fetcher.page("https://first.com", 200, "info@first.com")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.fetcher.onFetch = func(url string) {
		if url == "https://second.com" {
			cancel()
		}
	}
	f.fetcher.errs["https://second.com"] = context.Canceled

	summary, err := f.harvester(t).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, StopInterrupted, summary.Reason)
	assert.Equal(t, [][]string{{"first.com", "YES"}, {"second.com", ""}}, rowsOf(t, f.dataset))
	assert.Empty(t, rowsOf(t, f.notAccessible))
}

func TestRunSurvivesSaveFailures(t *testing.T) {
	t.Parallel()

	f := newFixture([]string{"a.com", ""}, []string{"b.com", ""})
	f.emails.FailSaves(errors.New("disk full"))
	f.fetcher.page("https://a.com", 200, "info@a.com")

	summary, err := f.harvester(t).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 3, f.recorder.checkpointFailures["emails"])
	assert.Equal(t, [][]string{{"a.com", "YES"}, {"b.com", "NO"}}, rowsOf(t, f.dataset))
}

func TestRunRecoversFromPanics(t *testing.T) {
	t.Parallel()

	f := newFixture([]string{"boom.com", ""})
	f.fetcher.panics["https://boom.com"] = true

	_, err := f.harvester(t).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"boom.com", "NO"}}, rowsOf(t, f.dataset))
	assert.Equal(t, 1, f.recorder.rows[StatusNo])
}

func TestRunAddsMissingStatusColumn(t *testing.T) {
	t.Parallel()

	f := newFixture()
	dataset := table.New("Website", "Country")
	dataset.Append("a.com", "CH")
	f.dataset = memory.NewStore(dataset)
	f.fetcher.page("https://a.com", 200, "info@a.com")

	_, err := f.harvester(t).Run(context.Background())
	require.NoError(t, err)
	snap := f.dataset.Snapshot()
	assert.Equal(t, []string{"Website", "Country", "accessible"}, snap.Header)
	assert.Equal(t, [][]string{{"a.com", "CH", "YES"}}, snap.Rows)
}

func TestRunSetupErrors(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.dataset = memory.NewStore(nil)
	_, err := f.harvester(t).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	f.dataset = memory.NewStore(table.New("URL"))
	_, err = f.harvester(t).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, table.ErrColumnMissing))
}

func TestRunPublishesSummary(t *testing.T) {
	t.Parallel()

	f := newFixture([]string{"a.com", ""})
	f.cfg.Topic = "harvest-runs"
	pub := memorypublisher.New()
	f.fetcher.page("https://a.com", 200, "info@a.com")

	_, err := f.harvester(t, func(d *Dependencies) { d.Publisher = pub }).Run(context.Background())
	require.NoError(t, err)

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "harvest-runs", msgs[0].Topic)
	summary, ok := msgs[0].Payload.(Summary)
	require.True(t, ok)
	assert.Equal(t, 1, summary.Accessible)
}

func TestNewValidatesDependencies(t *testing.T) {
	t.Parallel()

	f := newFixture()
	stores := Stores{Dataset: f.dataset, Emails: f.emails, NotAccessible: f.notAccessible}

	_, err := New(f.cfg, stores, Dependencies{Links: f.links}, nil)
	assert.Error(t, err)
	_, err = New(f.cfg, stores, Dependencies{Fetcher: f.fetcher}, nil)
	assert.Error(t, err)
	_, err = New(f.cfg, Stores{}, Dependencies{Fetcher: f.fetcher, Links: f.links}, nil)
	assert.Error(t, err)

	bad := f.cfg
	bad.Prefixes = nil
	_, err = New(bad, stores, Dependencies{Fetcher: f.fetcher, Links: f.links}, nil)
	assert.Error(t, err)
}
