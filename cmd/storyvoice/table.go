package main

import (
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"storyvoice/internal/api"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

const descriptionWidth = 48

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

func storyRows(stories []api.Story, withDescription bool) [][]string {
	rows := make([][]string, 0, len(stories))
	for _, s := range stories {
		row := []string{s.StoryID, s.Title}
		if withDescription {
			row = append(row, text.Trim(s.Description, descriptionWidth))
		} else {
			row = append(row, formatTimestamp(s.CreatedAt))
		}
		rows = append(rows, row)
	}
	return rows
}

func renderAvailable(stories []api.Story) string {
	return renderTable([]string{"ID", "Title", "Description"}, storyRows(stories, true), nil)
}

func renderRecorded(stories []api.Story) string {
	return renderTable([]string{"ID", "Title", "First recorded"}, storyRows(stories, false), nil)
}

func renderRecordings(recordings []api.Recording) string {
	rows := make([][]string, 0, len(recordings))
	for _, r := range recordings {
		rows = append(rows, []string{r.RecordingID, r.StoryID, r.Title, yesNo(r.Processed), formatTimestamp(r.CreatedAt)})
	}
	return renderTable([]string{"Recording", "Story", "Title", "Processed", "Created"}, rows, nil)
}

func formatTimestamp(ts api.Timestamp) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Local().Format(time.DateTime)
}
