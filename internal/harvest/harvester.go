package harvest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/contact-harvester/internal/clock/system"
	"github.com/JakeFAU/contact-harvester/internal/table"
)

// Stores groups the three persisted tables.
type Stores struct {
	Dataset       table.Store
	Emails        table.Store
	NotAccessible table.Store
}

// Dependencies groups injectable collaborators. Fetcher and Links are
// required; the rest fall back to defaults.
type Dependencies struct {
	Fetcher   Fetcher
	Links     LinkFinder
	Clock     Clock
	IDs       IDGenerator
	Recorder  Recorder
	Publisher Publisher
}

// Harvester runs the resumable harvest loop.
type Harvester struct {
	cfg       Config
	stores    Stores
	fetcher   Fetcher
	links     LinkFinder
	clock     Clock
	ids       IDGenerator
	recorder  Recorder
	publisher Publisher
	logger    *zap.Logger
}

// New constructs a Harvester.
func New(cfg Config, stores Stores, deps Dependencies, logger *zap.Logger) (*Harvester, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid harvest config: %w", err)
	}
	if stores.Dataset == nil || stores.Emails == nil || stores.NotAccessible == nil {
		return nil, fmt.Errorf("dataset, emails and not-accessible stores are required")
	}
	if deps.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if deps.Links == nil {
		return nil, fmt.Errorf("link finder is required")
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Harvester{
		cfg:       cfg,
		stores:    stores,
		fetcher:   deps.Fetcher,
		links:     deps.Links,
		clock:     deps.Clock,
		ids:       deps.IDs,
		recorder:  deps.Recorder,
		publisher: deps.Publisher,
		logger:    logger,
	}, nil
}

// state is the in-memory copy of the three tables for one run.
type state struct {
	dataset       *table.Table
	emails        *table.Table
	notAccessible *table.Table
	websiteCol    int
	statusCol     int
}

type rowOutcome struct {
	status Status
	emails []string
}

// Run processes every pending row until the queue is exhausted, the budget
// is spent or ctx is canceled. Only setup failures are returned; everything
// after loading is logged and absorbed.
func (h *Harvester) Run(ctx context.Context) (Summary, error) {
	start := h.clock.Now()
	summary := Summary{RunID: h.newRunID(), StartedAt: start, Reason: StopExhausted}
	logger := h.logger.With(zap.String("run_id", summary.RunID))

	st, err := h.load(ctx)
	if err != nil {
		return summary, err
	}

	pending := st.pendingRows()
	summary.Pending = len(pending)
	logger.Info("Harvest started", zap.Int("pending", len(pending)), zap.Int("rows", st.dataset.Len()))

	for _, idx := range pending {
		if ctx.Err() != nil {
			summary.Reason = StopInterrupted
			break
		}
		if h.clock.Now().Sub(start) >= h.cfg.Budget {
			logger.Info("Max runtime reached; stopping", zap.Duration("budget", h.cfg.Budget))
			summary.Reason = StopBudget
			break
		}

		website := NormalizeWebsite(st.dataset.Cell(idx, st.websiteCol))
		if website == "" {
			summary.Skipped++
			continue
		}

		rowLogger := logger.With(zap.Int("row", idx), zap.String("website", website))
		rowLogger.Info("Checking website")
		outcome := h.processRow(ctx, website, rowLogger)
		if ctx.Err() != nil {
			// The row was cut short; leave it unset for the next run.
			rowLogger.Warn("Interrupted mid-row; row left pending")
			summary.Reason = StopInterrupted
			break
		}

		st.record(idx, website, outcome)
		h.recorder.ObserveRow(outcome.status)
		summary.Processed++
		if outcome.status == StatusYes {
			summary.Accessible++
		} else {
			summary.NotAccessible++
		}
		h.checkpoint(ctx, st, logger)
	}

	if summary.Reason == StopInterrupted {
		logger.Warn("Interrupt received; saving progress before exit")
	}
	h.checkpoint(ctx, st, logger)

	summary.Duration = h.clock.Now().Sub(start)
	h.recorder.ObserveRun(summary.Reason, summary.Duration)
	logger.Info("Harvest finished",
		zap.String("reason", string(summary.Reason)),
		zap.Int("processed", summary.Processed),
		zap.Int("accessible", summary.Accessible),
		zap.Int("not_accessible", summary.NotAccessible),
		zap.Int("skipped", summary.Skipped),
		zap.Duration("duration", summary.Duration),
	)
	h.publishSummary(ctx, summary, logger)
	return summary, nil
}

func (h *Harvester) newRunID() string {
	if h.ids == nil {
		return ""
	}
	id, err := h.ids.NewID()
	if err != nil {
		h.logger.Warn("Failed to generate run id", zap.Error(err))
		return ""
	}
	return id
}

func (h *Harvester) load(ctx context.Context) (*state, error) {
	dataset, err := h.stores.Dataset.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	websiteCol, err := dataset.RequireColumn(h.cfg.WebsiteColumn)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	statusCol := dataset.EnsureColumn(h.cfg.StatusColumn)

	emails, err := loadOrCreate(ctx, h.stores.Emails, ColumnWebsite, ColumnEmails)
	if err != nil {
		return nil, fmt.Errorf("load emails table: %w", err)
	}
	notAccessible, err := loadOrCreate(ctx, h.stores.NotAccessible, ColumnWebsite, ColumnAccessible)
	if err != nil {
		return nil, fmt.Errorf("load not-accessible table: %w", err)
	}
	return &state{
		dataset:       dataset,
		emails:        emails,
		notAccessible: notAccessible,
		websiteCol:    websiteCol,
		statusCol:     statusCol,
	}, nil
}

func loadOrCreate(ctx context.Context, store table.Store, columns ...string) (*table.Table, error) {
	t, err := store.Load(ctx)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return table.New(columns...), nil
	case err != nil:
		return nil, err
	case len(t.Header) == 0:
		return table.New(columns...), nil
	default:
		return t, nil
	}
}

func (s *state) pendingRows() []int {
	var pending []int
	for i := range s.dataset.Rows {
		if strings.TrimSpace(s.dataset.Cell(i, s.statusCol)) == string(StatusUnset) {
			pending = append(pending, i)
		}
	}
	return pending
}

func (s *state) record(idx int, website string, outcome rowOutcome) {
	// statusCol always exists after EnsureColumn, so SetCell cannot fail here.
	_ = s.dataset.SetCell(idx, s.statusCol, string(outcome.status))
	if outcome.status == StatusYes {
		s.emails.Append(website, strings.Join(outcome.emails, ", "))
		return
	}
	s.notAccessible.Append(website, string(StatusNo))
}

func (h *Harvester) checkpoint(ctx context.Context, st *state, logger *zap.Logger) {
	saves := []struct {
		name  string
		store table.Store
		data  *table.Table
	}{
		{"emails", h.stores.Emails, st.emails},
		{"not_accessible", h.stores.NotAccessible, st.notAccessible},
		{"dataset", h.stores.Dataset, st.dataset},
	}
	for _, s := range saves {
		if err := s.store.Save(ctx, s.data); err != nil {
			h.recorder.ObserveCheckpointFailure(s.name)
			logger.Warn("Error saving table", zap.String("table", s.name), zap.Error(err))
		}
	}
}

// processRow classifies one website. Any failure, including a panic in a
// collaborator, yields StatusNo.
func (h *Harvester) processRow(ctx context.Context, website string, logger *zap.Logger) (outcome rowOutcome) {
	outcome = rowOutcome{status: StatusNo}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Row processing panicked", zap.Any("panic", r))
			outcome = rowOutcome{status: StatusNo}
		}
	}()

	page, err := h.fetcher.Fetch(ctx, website)
	h.recorder.ObserveFetch(err == nil && page.StatusCode == http.StatusOK)
	if err != nil {
		logger.Warn("Error accessing website", zap.Error(err))
		return outcome
	}
	if page.StatusCode != http.StatusOK {
		logger.Warn("Website returned non-200 status", zap.Int("status_code", page.StatusCode))
		return outcome
	}

	found := newEmailSet()
	found.add(ExtractEmails(page.Body))

	base := page.URL
	if base == "" {
		base = website
	}
	links, err := h.links.SameSiteLinks(base, page.Body, h.cfg.MaxSubpages)
	if err != nil {
		logger.Warn("Failed to parse links", zap.Error(err))
	}
	if len(links) > h.cfg.MaxSubpages {
		links = links[:h.cfg.MaxSubpages]
	}
	for _, link := range links {
		if ctx.Err() != nil {
			return outcome
		}
		found.add(h.emailsFrom(ctx, link, logger))
	}

	filtered := FilterByPrefix(found.sorted(), h.cfg.Prefixes)
	h.recorder.ObserveEmails(len(filtered))
	if len(filtered) == 0 {
		logger.Warn("Accessible but 0 valid emails; treated as not accessible")
		return outcome
	}
	logger.Info("Accessible and emails found", zap.Int("emails", len(filtered)))
	return rowOutcome{status: StatusYes, emails: filtered}
}

// emailsFrom fetches one subpage. Failures yield no emails.
func (h *Harvester) emailsFrom(ctx context.Context, link string, logger *zap.Logger) []string {
	page, err := h.fetcher.Fetch(ctx, link)
	ok := err == nil && page.StatusCode == http.StatusOK
	h.recorder.ObserveFetch(ok)
	if !ok {
		logger.Debug("Subpage skipped", zap.String("url", link), zap.Int("status_code", page.StatusCode), zap.Error(err))
		return nil
	}
	return ExtractEmails(page.Body)
}

func (h *Harvester) publishSummary(ctx context.Context, summary Summary, logger *zap.Logger) {
	if h.publisher == nil {
		return
	}
	// The run may have ended because ctx was canceled; publish anyway.
	id, err := h.publisher.Publish(context.WithoutCancel(ctx), h.cfg.Topic, summary)
	if err != nil {
		logger.Warn("Failed to publish run summary", zap.Error(err))
		return
	}
	logger.Info("Run summary published", zap.String("message_id", id))
}

type emailSet map[string]struct{}

func newEmailSet() emailSet {
	return make(emailSet)
}

func (s emailSet) add(emails []string) {
	for _, e := range emails {
		s[e] = struct{}{}
	}
}

func (s emailSet) sorted() []string {
	out := make([]string, 0, len(s))
	for e := range s {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}
