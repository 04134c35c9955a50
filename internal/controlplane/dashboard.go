// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package controlplane

import (
	"html"
	"net/http"
	"sort"

	"github.com/valyala/bytebufferpool"
	"github.com/valyala/quicktemplate"

	"github.com/Donghh0221/afk/internal/facade"
)

// rowBufferPool holds the small per-row scratch buffers dashboardPage
// uses while formatting each session's table row, so rendering a busy
// dashboard doesn't allocate one buffer per session. Grounded on the
// teacher's internal/api/handlers/pages.go, which renders the same
// kind of session table; this repo doesn't carry a .qtpl build step,
// so the page is assembled directly against bytebufferpool and
// quicktemplate's pooled-buffer API rather than generated template code.
var rowBufferPool bytebufferpool.Pool

// dashboard renders a minimal read-only operator page: the session
// table GetStatus/ListSessions already expose over the JSON API, as
// HTML for a browser with no client beyond curl or the chat bot.
func dashboard(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions := deps.Facade.ListSessions()
		sort.Slice(sessions, func(i, j int) bool {
			return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
		})

		page := quicktemplate.AcquireByteBuffer()
		defer quicktemplate.ReleaseByteBuffer(page)

		page.WriteString("<!doctype html><html><head><meta charset=\"utf-8\">")
		page.WriteString("<title>afk sessions</title>")
		page.WriteString("<style>body{font-family:monospace;margin:2rem}table{border-collapse:collapse}td,th{padding:.25rem .75rem;border-bottom:1px solid #ccc;text-align:left}</style>")
		page.WriteString("</head><body><h1>sessions</h1>")

		if len(sessions) == 0 {
			page.WriteString("<p>no active sessions</p>")
		} else {
			page.WriteString("<table><tr><th>name</th><th>project</th><th>agent</th><th>state</th><th>channel</th></tr>")
			for _, s := range sessions {
				dashboardRow(page, s)
			}
			page.WriteString("</table>")
		}

		page.WriteString("</body></html>")

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write(page.B)
	}
}

// dashboardRow formats one session's table row into a pooled scratch
// buffer before appending it to page, HTML-escaping every field that
// originates from operator or project input (name, project, channel
// ID) since none of it is trusted to be markup-safe.
func dashboardRow(page *quicktemplate.ByteBuffer, s facade.SessionInfo) {
	row := rowBufferPool.Get()
	defer rowBufferPool.Put(row)

	row.WriteString("<tr><td>")
	row.WriteString(html.EscapeString(s.Name))
	row.WriteString("</td><td>")
	row.WriteString(html.EscapeString(s.ProjectName))
	row.WriteString("</td><td>")
	row.WriteString(html.EscapeString(s.AgentName))
	row.WriteString("</td><td>")
	row.WriteString(html.EscapeString(s.State))
	row.WriteString("</td><td>")
	row.WriteString(html.EscapeString(s.ChannelID))
	row.WriteString("</td></tr>")

	page.B = append(page.B, row.B...)
}
