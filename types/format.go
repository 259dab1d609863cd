package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
)

// TurnRequest is everything a collaborator may look at for one user turn.
type TurnRequest struct {
	Now        time.Time
	Stage      Stage
	Facts      Facts
	Missing    []FieldInfo
	Candidates []Candidate
	Venue      string
	Input      string
	FactSchema string
}

func formatFactsSection(f Facts) string {
	var buf strings.Builder
	buf.WriteString("# Collected so far:\n")
	table := tablewriter.NewTable(&buf, tablewriter.WithRenderer(renderer.NewMarkdown()))
	table.Header("Slot", "Pointer", "Value")
	row := func(name, pointer, value string) {
		if value == "" {
			value = "-"
		}
		_ = table.Append(name, pointer, value)
	}
	row("Cuisine", "/cuisine", f.Cuisine)
	row("Budget", "/budget", intOrEmpty(f.Budget))
	row("Location", "/location", f.Location)
	row("Search radius (miles)", "/radius_miles", floatOrEmpty(f.RadiusMiles))
	row("Reservation date", "/reservation_date", f.ReservationDate)
	row("Reservation time", "/reservation_time", f.ReservationTime)
	row("Friend", "/friend_id", f.FriendID)
	_ = table.Render()
	return buf.String()
}

func formatMissingSection(fields []FieldInfo) string {
	if len(fields) == 0 {
		return ""
	}
	var buf strings.Builder
	buf.WriteString("# Still missing:\n")
	table := tablewriter.NewTable(&buf, tablewriter.WithRenderer(renderer.NewMarkdown()))
	table.Header("Field", "Pointer", "Description")
	for _, field := range fields {
		_ = table.Append(field.DisplayName, field.JSONPointer, field.Description)
	}
	_ = table.Render()
	return buf.String()
}

func formatCandidatesSection(candidates []Candidate) string {
	if len(candidates) == 0 {
		return ""
	}
	var buf strings.Builder
	buf.WriteString("# Search results:\n")
	table := tablewriter.NewTable(&buf, tablewriter.WithRenderer(renderer.NewMarkdown()))
	table.Header("Rank", "Name", "Rating", "Address")
	for i, c := range candidates {
		_ = table.Append(strconv.Itoa(i+1), c.Name, strconv.FormatFloat(c.Rating, 'f', 1, 64), c.DisplayAddress)
	}
	_ = table.Render()
	return buf.String()
}

func FormatTurnRequest(req *TurnRequest) (string, error) {
	factsJSON, err := json.Marshal(req.Facts)
	if err != nil {
		return "", err
	}
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	sections := []string{
		fmt.Sprintf("# Current Date:\n%s", now.Format(time.RFC3339)),
		fmt.Sprintf("# Facts JSON:\n```json\n%s\n```", string(factsJSON)),
		formatFactsSection(req.Facts),
	}
	if req.FactSchema != "" {
		sections = append(sections, fmt.Sprintf("# Facts schema JSON:\n```json\n%s\n```", req.FactSchema))
	}
	if req.Stage != "" {
		sections = append(sections, fmt.Sprintf("# Current Stage:\n%s", req.Stage))
	}
	if req.Venue != "" {
		sections = append(sections, fmt.Sprintf("# Chosen restaurant:\n%s", req.Venue))
	}
	if s := formatMissingSection(req.Missing); s != "" {
		sections = append(sections, s)
	}
	if s := formatCandidatesSection(req.Candidates); s != "" {
		sections = append(sections, s)
	}
	if req.Input != "" {
		sections = append(sections, fmt.Sprintf("# User message:\n%s", req.Input))
	}
	return strings.Join(sections, "\n\n"), nil
}

func intOrEmpty(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

func floatOrEmpty(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
