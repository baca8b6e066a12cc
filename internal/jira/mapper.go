package jira

import (
	"strconv"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// MapIssue transforms a Jira DTO into a domain Issue. pointsField is the
// internal ID of the story points field as resolved by FieldID; an empty
// ID leaves Points at zero.
func MapIssue(item IssueDTO, pointsField string) Issue {
	issue := Issue{
		Key:       item.Key,
		Summary:   item.Fields.Summary,
		IssueType: item.Fields.IssueType.Name,
		Status:    item.Fields.Status.Name,
	}

	if item.Fields.Resolution != nil {
		issue.Resolution = item.Fields.Resolution.Name
	}
	if a := item.Fields.Assignee; a != nil {
		issue.Assignee = a.Name
		if issue.Assignee == "" {
			issue.Assignee = a.DisplayName
		}
	}
	if t, err := ParseTime(item.Fields.Created); err == nil {
		issue.Created = t
	}

	if pointsField != "" {
		if raw, ok := item.Fields.Custom[pointsField]; ok {
			var est Estimate
			_ = json.Unmarshal(raw, &est)
			issue.Points = float64(est)
		}
	}

	if item.Changelog != nil {
		issue.Changelog = flattenChangelog(item.Key, item.Changelog)
	}
	return issue
}

// flattenChangelog turns histories into one entry per changed item. Histories
// with an unparsable timestamp are dropped; ordering is left to the caller.
func flattenChangelog(key string, changelog *ChangelogDTO) []ChangeEntry {
	var entries []ChangeEntry
	for _, h := range changelog.Histories {
		created, err := ParseTime(h.Created)
		if err != nil {
			log.Debug().Str("issue", key).Str("history", h.ID).Msg("Skipping history with invalid timestamp")
			continue
		}
		id, _ := strconv.ParseInt(h.ID, 10, 64)

		for _, itm := range h.Items {
			entries = append(entries, ChangeEntry{
				ID:      id,
				Created: created,
				Field:   itm.Field,
				From:    itm.FromString,
				To:      itm.ToString,
			})
		}
	}
	return entries
}

func mapSprint(s sprintDTO) Sprint {
	return Sprint{
		ID:           s.ID,
		Name:         s.Name,
		State:        s.State,
		StartDate:    parseAgileTime(s.StartDate),
		EndDate:      parseAgileTime(s.EndDate),
		CompleteDate: parseAgileTime(s.CompleteDate),
	}
}

func mapSprintReport(boardID int, dto sprintReportDTO) SprintReport {
	report := SprintReport{
		BoardID: boardID,
		Sprint: Sprint{
			ID:           dto.Sprint.ID,
			Name:         dto.Sprint.Name,
			State:        dto.Sprint.State,
			StartDate:    parseAgileTime(dto.Sprint.IsoStartDate),
			EndDate:      parseAgileTime(dto.Sprint.IsoEndDate),
			CompleteDate: parseAgileTime(dto.Sprint.IsoCompleteDate),
		},
		Completed:    mapReportIssues(dto.Contents.CompletedIssues),
		NotCompleted: mapReportIssues(dto.Contents.IssuesNotCompletedInCurrentSprint),
		Punted:       mapReportIssues(dto.Contents.PuntedIssues),
	}
	for key, added := range dto.Contents.IssueKeysAddedDuringSprint {
		if added {
			report.AddedDuringSprint = append(report.AddedDuringSprint, key)
		}
	}
	return report
}

func mapReportIssues(items []reportIssueDTO) []ReportIssue {
	out := make([]ReportIssue, 0, len(items))
	for _, itm := range items {
		out = append(out, ReportIssue{
			Key:    itm.Key,
			Points: itm.EstimateStatistic.StatFieldValue.Value,
		})
	}
	return out
}
