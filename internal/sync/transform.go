package sync

import (
	"fmt"
	"time"

	gh "github.com/google/go-github/v80/github"

	"github.com/mooring-labs/searchlink/internal/index"
)

// repositoryItem converts one repository record to an index item. The README
// text, when available, becomes the item's searchable content.
func repositoryItem(repo *gh.Repository, readme string) index.Item {
	item := index.Item{
		ID: fmt.Sprintf("repo-%d", repo.GetID()),
		Properties: map[string]any{
			"title":       repo.GetFullName(),
			"url":         repo.GetHTMLURL(),
			"kind":        "repository",
			"state":       repo.GetVisibility(),
			"description": repo.GetDescription(),
			"labels":      repo.Topics,
			"author":      repo.GetOwner().GetLogin(),
			"language":    repo.GetLanguage(),
			"updatedAt":   repo.GetUpdatedAt().UTC().Format(time.RFC3339),
		},
		ACL: index.EveryoneReadACL(),
	}
	if readme != "" {
		item.Content = &index.ItemContent{
			Type:  index.ContentTypeText,
			Value: readme,
		}
	}
	return item
}

// issueItem converts one issue record to an index item. The issue body is
// the item's content.
func issueItem(issue *gh.Issue) index.Item {
	labels := make([]string, 0, len(issue.Labels))
	for _, label := range issue.Labels {
		labels = append(labels, label.GetName())
	}
	assignees := make([]string, 0, len(issue.Assignees))
	for _, assignee := range issue.Assignees {
		assignees = append(assignees, assignee.GetLogin())
	}

	item := index.Item{
		ID: fmt.Sprintf("issue-%d", issue.GetID()),
		Properties: map[string]any{
			"title":     issue.GetTitle(),
			"url":       issue.GetHTMLURL(),
			"kind":      "issue",
			"state":     issue.GetState(),
			"labels":    labels,
			"assignees": assignees,
			"author":    issue.GetUser().GetLogin(),
			"updatedAt": issue.GetUpdatedAt().UTC().Format(time.RFC3339),
		},
		ACL: index.EveryoneReadACL(),
	}
	if body := issue.GetBody(); body != "" {
		item.Content = &index.ItemContent{
			Type:  index.ContentTypeText,
			Value: body,
		}
	}
	return item
}

func repositoryCreationActivity(repo *gh.Repository) index.Activity {
	return index.Activity{
		Type:       index.ActivityCreated,
		ActorID:    repo.GetOwner().GetLogin(),
		OccurredAt: repo.GetCreatedAt().UTC(),
	}
}

func issueCreationActivity(issue *gh.Issue) index.Activity {
	return index.Activity{
		Type:       index.ActivityCreated,
		ActorID:    issue.GetUser().GetLogin(),
		OccurredAt: issue.GetCreatedAt().UTC(),
	}
}

// issueEventActivities converts an issue's event trail into modification
// activities, in the order the events happened.
func issueEventActivities(events []*gh.IssueEvent) []index.Activity {
	activities := make([]index.Activity, 0, len(events))
	for _, event := range events {
		activities = append(activities, index.Activity{
			Type:       index.ActivityModified,
			ActorID:    event.GetActor().GetLogin(),
			OccurredAt: event.GetCreatedAt().UTC(),
		})
	}
	return activities
}
