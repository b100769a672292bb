package main

import (
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"rmqmeta/internal/ipc"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	if len(headers) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, len(headers))
		for i := range r {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, len(headers))
	for i := range headers {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

func renderDeliveries(deliveries []ipc.Delivery) string {
	rows := make([][]string, 0, len(deliveries))
	for _, d := range deliveries {
		outcome := d.RecordID
		if outcome == "" {
			outcome = d.Reason
		}
		if d.Redelivered {
			outcome += " (redelivered)"
		}
		rows = append(rows, []string{
			d.CreatedAt.Local().Format(time.DateTime),
			d.MessageID,
			d.RoutingKey,
			d.State,
			strconv.Itoa(d.BackendsOK),
			(time.Duration(d.DurationMillis) * time.Millisecond).String(),
			outcome,
		})
	}
	return renderTable(
		[]string{"Time", "Message", "Routing Key", "State", "Backends", "Duration", "Record / Reason"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	)
}
