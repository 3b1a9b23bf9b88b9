package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/storylinehq/publisher/core/config"
	"github.com/storylinehq/publisher/domains/account"
	"github.com/storylinehq/publisher/domains/content"
	"github.com/storylinehq/publisher/domains/scheduler"
	pkgError "github.com/storylinehq/publisher/pkg/error"
	"github.com/storylinehq/publisher/pkg/healthscore"
	"github.com/storylinehq/publisher/pkg/retryqueue"
)

const (
	maintenanceInterval = time.Hour
	// An idle scheduler still counts as running while its last cycle is
	// recent enough that the timer is presumed alive.
	runningGracePeriod = 24 * time.Hour
	recentOutcomeDepth = 10
)

type schedulerService struct {
	cfg         config.SchedulerConfig
	contentRepo content.IContentRepository
	accountRepo account.IAccountRepository
	coordinator IDispatchCoordinator
	refresher   ICredentialRefresher
	media       content.IMediaGenerator
	queue       *retryqueue.Queue

	cron    *cron.Cron
	entryID cron.EntryID

	inProgress int32 // atomic: 1 while a cycle or manual retry holds the slot
	started    int32 // atomic

	mu         sync.Mutex
	cronExpr   string
	lastRunAt  *time.Time
	results    []scheduler.PublishRecord
	stats      scheduler.RunStats
	statsDay   time.Time
	totalDurMs float64

	stopOnce sync.Once
	stopCh   chan struct{}

	now func() time.Time
}

func NewSchedulerService(
	cfg config.SchedulerConfig,
	contentRepo content.IContentRepository,
	accountRepo account.IAccountRepository,
	coordinator IDispatchCoordinator,
	refresher ICredentialRefresher,
	media content.IMediaGenerator,
) scheduler.ISchedulerUsecase {
	return &schedulerService{
		cfg:         cfg,
		contentRepo: contentRepo,
		accountRepo: accountRepo,
		coordinator: coordinator,
		refresher:   refresher,
		media:       media,
		queue: retryqueue.New(retryqueue.Options{
			InitialDelay:    cfg.InitialRetryDelay,
			Multiplier:      cfg.BackoffMultiplier,
			MaxDelay:        cfg.MaxRetryDelay,
			MaxSize:         cfg.MaxQueueSize,
			StaleAfter:      cfg.QueueStaleAfter,
			MaxErrorHistory: cfg.MaxErrorHistory,
		}),
		cronExpr: cfg.CronExpression,
		stopCh:   make(chan struct{}),
		now:      time.Now,
	}
}

// --- Lifecycle ---

// Start is idempotent; a second call on a live scheduler is a no-op.
func (s *schedulerService) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.started, 0, 1) {
		logrus.Debug("[SCHEDULER] Start called while already running")
		return nil
	}

	s.mu.Lock()
	expr := s.cronExpr
	s.mu.Unlock()

	if _, err := cron.ParseStandard(expr); err != nil {
		atomic.StoreInt32(&s.started, 0)
		return pkgError.ValidationError(fmt.Sprintf("invalid cron expression %q: %v", expr, err))
	}

	c := cron.New()
	entryID, err := c.AddFunc(expr, func() {
		s.ExecuteCycle(context.Background())
	})
	if err != nil {
		atomic.StoreInt32(&s.started, 0)
		return pkgError.InternalServerError(fmt.Sprintf("failed to schedule cycle: %v", err))
	}
	s.mu.Lock()
	s.cron = c
	s.entryID = entryID
	s.mu.Unlock()
	c.Start()

	go s.maintenanceLoop()

	logrus.Infof("[SCHEDULER] Started with expression %q", expr)
	return nil
}

func (s *schedulerService) Stop() {
	s.stopOnce.Do(func() {
		atomic.StoreInt32(&s.started, 0)
		close(s.stopCh)
		s.mu.Lock()
		c := s.cron
		s.mu.Unlock()
		if c != nil {
			stopCtx := c.Stop()
			<-stopCtx.Done()
		}
		logrus.Info("[SCHEDULER] Stopped")
	})
}

// maintenanceLoop periodically evicts stale queue entries, nudges the
// rendering pipeline for items still waiting on media, and logs health
// when the loop has been failing.
func (s *schedulerService) maintenanceLoop() {
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := s.queue.ClearStale(); removed > 0 {
				logrus.Infof("[SCHEDULER] Evicted %d stale retry entries", removed)
			}
			s.nudgePendingMedia()
			if status := s.GetStatus(context.Background()); status.Health != scheduler.HealthHealthy {
				logrus.Warnf("[SCHEDULER] Health is %s, %d consecutive failures",
					status.Health, status.Stats.ConsecutiveFailures)
			}
		case <-s.stopCh:
			return
		}
	}
}

// nudgePendingMedia re-requests generation for items stuck in media-pending,
// in case an earlier fire-and-forget request was lost.
func (s *schedulerService) nudgePendingMedia() {
	items, err := s.contentRepo.GetItemsNeedingMedia(context.Background())
	if err != nil {
		logrus.WithError(err).Warn("[SCHEDULER] Failed to list media-pending items")
		return
	}
	for _, item := range items {
		s.media.RequestGeneration(item)
	}
	if len(items) > 0 {
		logrus.Debugf("[SCHEDULER] Re-requested media generation for %d items", len(items))
	}
}

// --- Cycle execution ---

func (s *schedulerService) ExecuteCycle(ctx context.Context) (result scheduler.CycleResult) {
	if !atomic.CompareAndSwapInt32(&s.inProgress, 0, 1) {
		logrus.Warn("[SCHEDULER] Cycle requested while another is in progress, skipping")
		return scheduler.CycleResult{Status: scheduler.CycleBusy}
	}
	defer atomic.StoreInt32(&s.inProgress, 0)

	start := s.now()
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("[SCHEDULER] Cycle panic: %v", r)
			result = scheduler.CycleResult{Status: scheduler.CycleFailed, Duration: s.now().Sub(start)}
			s.finishCycle(start, result, false)
		}
	}()

	items, err := s.collectWork(ctx, start)
	if err != nil {
		logrus.WithError(err).Error("[SCHEDULER] Failed to collect due items")
		result = scheduler.CycleResult{Status: scheduler.CycleFailed, Duration: s.now().Sub(start)}
		s.finishCycle(start, result, false)
		return result
	}

	result = s.processItems(ctx, items)
	result.Status = scheduler.CycleCompleted
	result.Duration = s.now().Sub(start)
	s.finishCycle(start, result, true)

	logrus.Infof("[SCHEDULER] Cycle done in %s: dispatched=%d succeeded=%d failed=%d deferred=%d",
		result.Duration.Round(time.Millisecond), result.Dispatched, result.Succeeded, result.Failed, result.Deferred)
	return result
}

func (s *schedulerService) TriggerFromWebhook(ctx context.Context) scheduler.CycleResult {
	logrus.Info("[SCHEDULER] Cycle triggered via webhook")
	return s.ExecuteCycle(ctx)
}

// collectWork merges due scheduled items with failed items whose backoff has
// elapsed, deduplicated by id.
func (s *schedulerService) collectWork(ctx context.Context, now time.Time) ([]content.ContentItem, error) {
	items, err := s.contentRepo.GetDueScheduledItems(ctx, now)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(items))
	for _, item := range items {
		seen[item.ID] = true
	}

	for _, entry := range s.queue.Due(now) {
		if seen[entry.ContentID] {
			continue
		}
		item, err := s.contentRepo.GetByID(ctx, entry.ContentID)
		if err != nil {
			// The item is gone; the queue entry has nothing to retry.
			logrus.WithError(err).Warnf("[SCHEDULER] Dropping retry entry for missing item %s", entry.ContentID)
			s.queue.Remove(entry.ContentID)
			continue
		}
		if item.Status != content.StatusFailed {
			s.queue.Remove(entry.ContentID)
			continue
		}
		seen[item.ID] = true
		items = append(items, item)
	}

	return items, nil
}

type rankedItem struct {
	item     content.ContentItem
	accounts map[string]account.Account
	score    float64
}

func (s *schedulerService) processItems(ctx context.Context, items []content.ContentItem) scheduler.CycleResult {
	var result scheduler.CycleResult
	now := s.now()

	var ranked []rankedItem
	for _, item := range items {
		if item.Status == content.StatusFailed && !s.queue.ReadyForRetry(item.ID, now) {
			continue
		}

		if item.NeedsMedia() {
			s.media.RequestGeneration(item)
			result.Deferred++
			logrus.Debugf("[SCHEDULER] Item %s deferred, media not ready", item.ID)
			continue
		}

		accounts, score := s.selectAccounts(ctx, item, now)
		ranked = append(ranked, rankedItem{item: item, accounts: accounts, score: score})
	}

	// Healthiest assignments publish first: when quota or rate limits bite
	// mid-cycle, the strongest accounts have already done their work.
	sortRankedItems(ranked)

	for _, r := range ranked {
		result.Dispatched++
		outcome := s.coordinator.Dispatch(ctx, r.item, r.accounts)
		s.recordOutcome(ctx, r.item, outcome)
		if outcome.Succeeded() {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}

	return result
}

// selectAccounts picks the healthiest usable account per target platform and
// returns the item's rank: the minimum score across its selections. Items
// with missing platforms rank lowest so complete assignments go first.
func (s *schedulerService) selectAccounts(ctx context.Context, item content.ContentItem, now time.Time) (map[string]account.Account, float64) {
	selected := make(map[string]account.Account)

	all, err := s.accountRepo.GetAccountsForUser(ctx, item.UserID)
	if err != nil {
		logrus.WithError(err).Errorf("[SCHEDULER] Failed to load accounts for user %s", item.UserID)
		return selected, 0
	}

	// Errored and expired accounts stay in the pool so the refresher can
	// reinstate them; only operator-disabled accounts are excluded.
	accounts := make([]account.Account, 0, len(all))
	for _, acc := range all {
		if !acc.CanPublish || acc.Status == account.StatusInactive {
			continue
		}
		accounts = append(accounts, acc)
	}

	accounts, refreshFailures := s.refresher.EnsureFresh(ctx, accounts)
	for _, failure := range refreshFailures {
		logrus.Warnf("[SCHEDULER] Account %s (%s) refresh failed, dispatching with stale credential: %s",
			failure.AccountID, failure.Platform, failure.Message)
	}

	scoreOpts := healthscore.Options{ExpiryWindow: s.cfg.TokenExpiryPenalty, Now: s.now}
	rank := -1.0

	for _, platform := range item.Platforms {
		bestScore := -1.0
		var best account.Account
		for _, acc := range accounts {
			if acc.Platform != platform {
				continue
			}
			score := healthscore.Score(acc, s.recentOutcomesFor(acc.ID), scoreOpts)
			if score > bestScore {
				bestScore = score
				best = acc
			}
		}
		if bestScore < 0 {
			// No usable account; the coordinator reports this as a
			// configuration failure. Rank stays at the floor.
			rank = 0
			continue
		}
		selected[platform] = best
		if rank < 0 || bestScore < rank {
			rank = bestScore
		}
	}

	if rank < 0 {
		rank = 0
	}
	return selected, rank
}

// recentOutcomesFor scans the results history backwards for the account's
// latest attempts, capped at recentOutcomeDepth.
func (s *schedulerService) recentOutcomesFor(accountID string) []healthscore.RecentOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	var outcomes []healthscore.RecentOutcome
	for i := len(s.results) - 1; i >= 0 && len(outcomes) < recentOutcomeDepth; i-- {
		if s.results[i].AccountID != accountID {
			continue
		}
		outcomes = append(outcomes, healthscore.RecentOutcome{
			Success:   s.results[i].Success,
			Timestamp: s.results[i].Timestamp,
		})
	}
	return outcomes
}

// recordOutcome is the single place content status transitions happen.
func (s *schedulerService) recordOutcome(ctx context.Context, item content.ContentItem, outcome DispatchOutcome) {
	now := s.now()

	for _, out := range outcome.Outcomes {
		if out.Skipped {
			continue
		}
		record := scheduler.PublishRecord{
			ID:            uuid.NewString(),
			Success:       out.Err == nil,
			ContentItemID: item.ID,
			Platform:      out.Platform,
			AccountID:     out.AccountID,
			Timestamp:     now,
		}
		if out.Err != nil {
			record.Message = out.Err.Error()
		} else {
			record.Message = out.ExternalID
			if out.AccountID != "" {
				if err := s.accountRepo.IncrementUsage(ctx, out.AccountID, now); err != nil {
					logrus.WithError(err).Warnf("[SCHEDULER] Failed to bump usage for account %s", out.AccountID)
				}
			}
		}
		s.appendResult(record)
	}

	if outcome.Succeeded() {
		publishedAt := now
		update := content.StatusUpdate{
			Status:        content.StatusPublished,
			PlatformPosts: outcome.PlatformPosts(),
			PublishedAt:   &publishedAt,
		}
		if err := s.contentRepo.UpdateStatus(ctx, item.ID, update); err != nil {
			logrus.WithError(err).Errorf("[SCHEDULER] Failed to mark item %s published", item.ID)
			return
		}
		s.queue.Remove(item.ID)
		s.bumpDailyStats(true)
		logrus.Infof("[SCHEDULER] Item %s published on all %d platforms", item.ID, len(outcome.Outcomes))
		return
	}

	summary := outcome.ErrorSummary()
	update := content.StatusUpdate{
		Status:        content.StatusFailed,
		LastError:     summary,
		PlatformPosts: outcome.PlatformPosts(), // keep partial wins for the retry
	}
	if err := s.contentRepo.UpdateStatus(ctx, item.ID, update); err != nil {
		logrus.WithError(err).Errorf("[SCHEDULER] Failed to mark item %s failed", item.ID)
	}
	s.bumpDailyStats(false)

	if !outcome.Retriable() {
		s.queue.Remove(item.ID)
		logrus.Warnf("[SCHEDULER] Item %s failed permanently, not retriable: %s", item.ID, summary)
		return
	}

	entry := s.queue.RecordFailure(item.ID, summary)
	if entry.RetryCount > s.cfg.MaxRetries {
		s.queue.Remove(item.ID)
		logrus.Warnf("[SCHEDULER] Item %s exhausted %d retries, giving up: %s", item.ID, s.cfg.MaxRetries, summary)
		return
	}
	logrus.Infof("[SCHEDULER] Item %s queued for retry %d/%d at %s",
		item.ID, entry.RetryCount, s.cfg.MaxRetries, entry.NextRetryAt.Format(time.RFC3339))
}

// --- Stats and history ---

func (s *schedulerService) appendResult(record scheduler.PublishRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, record)
	if max := s.cfg.MaxResultsHistory; max > 0 && len(s.results) > max {
		s.results = s.results[len(s.results)-max:]
	}
}

func (s *schedulerService) bumpDailyStats(success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rolloverLocked()
	s.stats.PublishedToday++
	if success {
		s.stats.SucceededToday++
	} else {
		s.stats.FailedToday++
	}
}

func (s *schedulerService) finishCycle(start time.Time, result scheduler.CycleResult, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rolloverLocked()
	last := start
	s.lastRunAt = &last
	s.stats.TotalExecutions++
	s.totalDurMs += float64(result.Duration.Milliseconds())
	s.stats.AvgExecutionMs = s.totalDurMs / float64(s.stats.TotalExecutions)
	if ok {
		s.stats.ConsecutiveFailures = 0
	} else {
		s.stats.ConsecutiveFailures++
	}
}

// rolloverLocked resets today's counters on the first touch of a new day.
func (s *schedulerService) rolloverLocked() {
	today := s.now().Truncate(24 * time.Hour)
	if s.statsDay.Equal(today) {
		return
	}
	s.statsDay = today
	s.stats.PublishedToday = 0
	s.stats.SucceededToday = 0
	s.stats.FailedToday = 0
}

// --- Operations surface ---

func (s *schedulerService) GetStatus(ctx context.Context) scheduler.Status {
	s.mu.Lock()
	expr := s.cronExpr
	stats := s.stats
	c := s.cron
	entryID := s.entryID
	var lastRun *time.Time
	if s.lastRunAt != nil {
		t := *s.lastRunAt
		lastRun = &t
	}
	s.mu.Unlock()

	status := scheduler.Status{
		LastRunAt:      lastRun,
		QueueDepth:     s.queue.Len(),
		CronExpression: expr,
		Stats:          stats,
	}

	timerLive := atomic.LoadInt32(&s.started) == 1
	recentRun := lastRun != nil && s.now().Sub(*lastRun) < runningGracePeriod
	status.Running = timerLive || recentRun

	if timerLive && c != nil {
		if entry := c.Entry(entryID); !entry.Next.IsZero() {
			next := entry.Next
			status.NextRunAt = &next
		}
	}

	switch {
	case stats.ConsecutiveFailures >= s.cfg.UnhealthyThreshold:
		status.Health = scheduler.HealthUnhealthy
	case stats.ConsecutiveFailures >= s.cfg.DegradedThreshold:
		status.Health = scheduler.HealthDegraded
	default:
		status.Health = scheduler.HealthHealthy
	}

	return status
}

// UpdateCronExpression swaps the schedule after validating the new
// expression. An invalid expression leaves the current schedule untouched.
func (s *schedulerService) UpdateCronExpression(expr string) error {
	if _, err := cron.ParseStandard(expr); err != nil {
		return pkgError.ValidationError(fmt.Sprintf("invalid cron expression %q: %v", expr, err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if atomic.LoadInt32(&s.started) == 1 && s.cron != nil {
		entryID, err := s.cron.AddFunc(expr, func() {
			s.ExecuteCycle(context.Background())
		})
		if err != nil {
			return pkgError.ValidationError(fmt.Sprintf("failed to apply cron expression %q: %v", expr, err))
		}
		s.cron.Remove(s.entryID)
		s.entryID = entryID
	}

	s.cronExpr = expr
	logrus.Infof("[SCHEDULER] Cron expression updated to %q", expr)
	return nil
}

// RetryItem forces a single failed item through dispatch immediately,
// bypassing its backoff. It shares the busy slot with the cycle.
func (s *schedulerService) RetryItem(ctx context.Context, id string) error {
	item, err := s.contentRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if item.Status != content.StatusFailed {
		return pkgError.ValidationError(fmt.Sprintf("item %s is %s, only failed items can be retried", id, item.Status))
	}
	if item.NeedsMedia() {
		return pkgError.AssetNotReadyError{ContentID: id}
	}

	if !atomic.CompareAndSwapInt32(&s.inProgress, 0, 1) {
		return pkgError.BusyError("a publication cycle is in progress, try again shortly")
	}
	defer atomic.StoreInt32(&s.inProgress, 0)

	accounts, _ := s.selectAccounts(ctx, item, s.now())
	outcome := s.coordinator.Dispatch(ctx, item, accounts)
	s.recordOutcome(ctx, item, outcome)

	if !outcome.Succeeded() {
		return pkgError.InternalServerError("retry failed: " + outcome.ErrorSummary())
	}
	return nil
}

func (s *schedulerService) ClearStaleQueueEntries() int {
	removed := s.queue.ClearStale()
	if removed > 0 {
		logrus.Infof("[SCHEDULER] Cleared %d stale retry entries on request", removed)
	}
	return removed
}

// RecentResults returns the newest records first, capped at limit.
func (s *schedulerService) RecentResults(limit int) []scheduler.PublishRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.results) {
		limit = len(s.results)
	}
	out := make([]scheduler.PublishRecord, 0, limit)
	for i := len(s.results) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.results[i])
	}
	return out
}

// sortRankedItems orders by score descending, keeping due order for ties.
func sortRankedItems(ranked []rankedItem) {
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})
}
