// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package terminal

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/autobrr/torrentdash/internal/models"
)

const shortHashLen = 8

type column struct {
	header string
	right  bool
}

var torrentColumns = []column{
	{header: ""},
	{header: "Hash"},
	{header: "Name"},
	{header: "State"},
	{header: "Size", right: true},
	{header: "Done", right: true},
	{header: "Down", right: true},
	{header: "Up", right: true},
	{header: "Uploaded", right: true},
	{header: "Ratio", right: true},
}

var peerColumns = []column{
	{header: "Address"},
	{header: "Client"},
	{header: "Done", right: true},
	{header: "Down", right: true},
	{header: "Up", right: true},
	{header: "Downloaded", right: true},
	{header: "Uploaded", right: true},
}

func renderTable(columns []column, rows [][]string) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(columns))
	configs := make([]table.ColumnConfig, 0, len(columns))
	for i, c := range columns {
		header[i] = c.header
		align := text.AlignLeft
		if c.right {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, len(columns))
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

// RenderTorrents draws torrents as a table. The focused torrent is marked
// with '>' and selected ones with '*'.
func RenderTorrents(torrents []models.Torrent, focus string) string {
	rows := make([][]string, 0, len(torrents))
	for _, t := range torrents {
		rows = append(rows, []string{
			marker(t, focus),
			shortHash(t.InfoHash),
			t.Name,
			t.State,
			humanize.IBytes(nonNegative(t.Size)),
			percent(t.Completed),
			speed(t.DownloadSpeed),
			speed(t.UploadSpeed),
			humanize.IBytes(nonNegative(t.Uploaded)),
			fmt.Sprintf("%.2f", t.Ratio),
		})
	}
	return renderTable(torrentColumns, rows)
}

func RenderPeers(peers []models.Peer) string {
	rows := make([][]string, 0, len(peers))
	for _, p := range peers {
		rows = append(rows, []string{
			p.Key().String(),
			p.Client,
			percent(p.Completed),
			speed(p.DownloadSpeed),
			speed(p.UploadSpeed),
			humanize.IBytes(nonNegative(p.Downloaded)),
			humanize.IBytes(nonNegative(p.Uploaded)),
		})
	}
	return renderTable(peerColumns, rows)
}

func marker(t models.Torrent, focus string) string {
	switch {
	case t.InfoHash == focus && t.Selected:
		return ">*"
	case t.InfoHash == focus:
		return ">"
	case t.Selected:
		return "*"
	default:
		return ""
	}
}

func shortHash(hash string) string {
	if len(hash) <= shortHashLen {
		return hash
	}
	return hash[:shortHashLen]
}

// percent accepts completion as a 0..1 fraction.
func percent(completed float64) string {
	return fmt.Sprintf("%.1f%%", completed*100)
}

func speed(bytesPerSecond float64) string {
	if bytesPerSecond <= 0 {
		return "-"
	}
	return humanize.IBytes(uint64(bytesPerSecond)) + "/s"
}

func nonNegative(n int64) uint64 {
	if n < 0 {
		return 0
	}
	return uint64(n)
}
