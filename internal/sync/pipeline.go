// Package sync pushes upstream source records into the search index,
// reporting a per-record outcome for every batch.
package sync

import (
	"context"
	"fmt"
	"time"

	gh "github.com/google/go-github/v80/github"

	"github.com/mooring-labs/searchlink/internal/config"
	"github.com/mooring-labs/searchlink/internal/github"
	"github.com/mooring-labs/searchlink/internal/index"
	"github.com/mooring-labs/searchlink/internal/logger"
	"github.com/mooring-labs/searchlink/internal/telemetry"
)

// sourceClient is the slice of the upstream API the pipeline reads.
type sourceClient interface {
	ListRepositories(ctx context.Context, owner string) ([]*gh.Repository, error)
	ListIssues(ctx context.Context, owner, repo string) ([]*gh.Issue, error)
	ListIssueEvents(ctx context.Context, owner, repo string, number int) ([]*gh.IssueEvent, error)
	GetReadme(ctx context.Context, owner, repo string) (string, error)
}

// itemWriter is the slice of the index API the pipeline writes.
type itemWriter interface {
	UpsertItem(ctx context.Context, connectionID string, item index.Item) error
	AddActivities(ctx context.Context, connectionID, itemID string, activities []index.Activity) error
}

// Pipeline synchronizes one owner's records into one index connection.
type Pipeline struct {
	source       sourceClient
	writer       itemWriter
	connectionID string
	owner        string
	retryBudget  int
	fetchContent bool
	metrics      *telemetry.SyncMetrics
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRetryBudget sets the number of rate-limit retries per upstream fetch.
func WithRetryBudget(budget int) Option {
	return func(p *Pipeline) {
		if budget >= 0 {
			p.retryBudget = budget
		}
	}
}

// WithContentFetching toggles the best-effort fetch of record content
// (READMEs, issue event trails).
func WithContentFetching(enabled bool) Option {
	return func(p *Pipeline) {
		p.fetchContent = enabled
	}
}

// WithMetrics attaches sync instruments.
func WithMetrics(metrics *telemetry.SyncMetrics) Option {
	return func(p *Pipeline) {
		p.metrics = metrics
	}
}

// NewPipeline builds a pipeline from the given source into the given
// connection.
func NewPipeline(source sourceClient, writer itemWriter, connectionID, owner string, opts ...Option) *Pipeline {
	p := &Pipeline{
		source:       source,
		writer:       writer,
		connectionID: connectionID,
		owner:        owner,
		retryBudget:  config.DefaultRetryBudget,
		fetchContent: true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SyncAll synchronizes every record of the given kind. A failing record is
// reported and the rest of the batch continues; the returned report covers
// whatever was attempted even when the run ends early with an error.
func (p *Pipeline) SyncAll(ctx context.Context, kind string) (*Report, error) {
	start := time.Now()
	report := &Report{Kind: kind}

	var err error
	switch kind {
	case config.RecordKindRepositories:
		err = p.syncRepositories(ctx, report)
	case config.RecordKindIssues:
		err = p.syncIssues(ctx, report)
	default:
		return nil, fmt.Errorf("unknown record kind %q (expected %s or %s)",
			kind, config.RecordKindRepositories, config.RecordKindIssues)
	}

	p.metrics.RecordSyncDuration(ctx, kind, time.Since(start), err == nil)
	if err != nil {
		return report, err
	}
	logger.Infof("Sync finished, %s", report.Summary())
	return report, nil
}

func (p *Pipeline) syncRepositories(ctx context.Context, report *Report) error {
	repos, err := github.FetchWithRetry(ctx, p.retryBudget, func(ctx context.Context) ([]*gh.Repository, error) {
		return p.source.ListRepositories(ctx, p.owner)
	})
	if err != nil {
		return fmt.Errorf("list repositories for %s: %w", p.owner, err)
	}
	logger.Infof("Syncing %d repositories for %s", len(repos), p.owner)

	for _, repo := range repos {
		readme := ""
		if p.fetchContent {
			readme, err = p.source.GetReadme(ctx, p.owner, repo.GetName())
			if err != nil {
				logger.Warnf("No README content for %s: %v", repo.GetFullName(), err)
				readme = ""
			}
		}
		p.push(ctx, report, repositoryItem(repo, readme), repo.GetFullName(),
			[]index.Activity{repositoryCreationActivity(repo)})
	}
	return nil
}

func (p *Pipeline) syncIssues(ctx context.Context, report *Report) error {
	repos, err := github.FetchWithRetry(ctx, p.retryBudget, func(ctx context.Context) ([]*gh.Repository, error) {
		return p.source.ListRepositories(ctx, p.owner)
	})
	if err != nil {
		return fmt.Errorf("list repositories for %s: %w", p.owner, err)
	}

	for _, repo := range repos {
		issues, err := github.FetchWithRetry(ctx, p.retryBudget, func(ctx context.Context) ([]*gh.Issue, error) {
			return p.source.ListIssues(ctx, p.owner, repo.GetName())
		})
		if err != nil {
			return fmt.Errorf("list issues for %s: %w", repo.GetFullName(), err)
		}
		logger.Infof("Syncing %d issues from %s", len(issues), repo.GetFullName())

		for _, issue := range issues {
			title := fmt.Sprintf("%s#%d", repo.GetFullName(), issue.GetNumber())
			activities := []index.Activity{issueCreationActivity(issue)}
			if p.fetchContent {
				events, err := github.FetchWithRetry(ctx, p.retryBudget, func(ctx context.Context) ([]*gh.IssueEvent, error) {
					return p.source.ListIssueEvents(ctx, p.owner, repo.GetName(), issue.GetNumber())
				})
				if err != nil {
					logger.Warnf("No event trail for %s: %v", title, err)
				} else {
					activities = append(activities, issueEventActivities(events)...)
				}
			}
			p.push(ctx, report, issueItem(issue), title, activities)
		}
	}
	return nil
}

// push upserts one item and attaches its activities. Upsert failures land in
// the report; activity failures do not, the item is already searchable.
func (p *Pipeline) push(ctx context.Context, report *Report, item index.Item, title string, activities []index.Activity) {
	if err := p.writer.UpsertItem(ctx, p.connectionID, item); err != nil {
		logger.Errorf("Failed to upsert %s (%s): %v", title, item.ID, err)
		p.metrics.RecordItemOutcome(ctx, report.Kind, false)
		report.record(item.ID, title, fmt.Errorf("upsert item: %w", err))
		return
	}
	if len(activities) > 0 {
		if err := p.writer.AddActivities(ctx, p.connectionID, item.ID, activities); err != nil {
			logger.Warnf("Failed to add activities for %s: %v", item.ID, err)
		}
	}
	p.metrics.RecordItemOutcome(ctx, report.Kind, true)
	report.record(item.ID, title, nil)
}
