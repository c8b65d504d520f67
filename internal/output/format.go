// Package output provides formatters for CLI output.
package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"todoctl/internal/service"
)

const (
	// ListSeparator is the separator line for list sections.
	ListSeparator = "------------"

	// DateLayout is how due dates are printed and parsed.
	DateLayout = "2006-01-02"
)

// FormatDate formats t in local time.
func FormatDate(t time.Time) string {
	return t.In(time.Local).Format(DateLayout)
}

// FormatList formats a line for the lists command.
// Format: "{TITLE} ({DONE}/{TOTAL})" plus ", due {DATE}" when the list has tasks.
func FormatList(w io.Writer, list service.List) {
	title := normalizeTitle(list.Title)
	agg := list.Aggregate
	if list.EarliestDueDate != nil {
		fmt.Fprintf(w, "%s (%d/%d, due %s)\n", title, agg.CompletedTasks, agg.TotalTasks, FormatDate(*list.EarliestDueDate))
		return
	}
	fmt.Fprintf(w, "%s (%d/%d)\n", title, agg.CompletedTasks, agg.TotalTasks)
}

// FormatListHeader formats a list section header, with the description when present.
func FormatListHeader(w io.Writer, list service.List) {
	fmt.Fprintln(w, ListSeparator)
	fmt.Fprintln(w, normalizeTitle(list.Title))
	if d := strings.TrimSpace(list.Description); d != "" {
		fmt.Fprintln(w, singleLine(d))
	}
	fmt.Fprintln(w, ListSeparator)
}

// FormatTask formats a numbered task line.
// Format: "{N:>4}  [x] {TITLE}  {DUE}\n"
func FormatTask(w io.Writer, num int, task service.Task) {
	mark := " "
	if task.Done {
		mark = "x"
	}
	fmt.Fprintf(w, "%4d  [%s] %s  %s\n", num, mark, normalizeTitle(task.Title), FormatDate(task.DueDate))
}

// FormatMember formats a member line.
func FormatMember(w io.Writer, m service.Member) {
	name := strings.TrimSpace(m.Name)
	if name == "" {
		name = m.Email
	}
	fmt.Fprintf(w, "%s <%s>  %s\n", name, m.Email, m.ID)
}

// FormatUser formats the signed-in user.
func FormatUser(w io.Writer, u service.User) {
	fmt.Fprintf(w, "%s <%s>\n", u.Name, u.Email)
}

// normalizeTitle normalizes a title for display.
// - Empty or whitespace-only titles become "(untitled)"
// - Newlines are replaced with spaces
func normalizeTitle(title string) string {
	title = singleLine(title)
	if strings.TrimSpace(title) == "" {
		return "(untitled)"
	}
	return title
}

func singleLine(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	return strings.ReplaceAll(s, "\n", " ")
}
