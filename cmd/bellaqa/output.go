package main

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/fyrsmithlabs/bellaqa/internal/indexer"
	"github.com/fyrsmithlabs/bellaqa/internal/rag"
)

// Terminal styles
var (
	// Section title - bold bright cyan
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	// Label - dim cyan
	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	// Value - bright white
	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("46")).
		Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	// Answer box - rounded border with dim gray
	answerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
)

// sourcePreviewLen bounds the chunk text shown per source, in runes.
const sourcePreviewLen = 80

var stageLabels = map[indexer.Stage]string{
	indexer.StageLoaded:    "documents loaded",
	indexer.StageChunked:   "chunks produced",
	indexer.StageEmbedded:  "chunks embedded",
	indexer.StagePersisted: "chunks persisted",
}

// renderProgress renders one indexing stage as a single line.
func renderProgress(p indexer.Progress) string {
	label, ok := stageLabels[p.Stage]
	if !ok {
		label = string(p.Stage)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s", okStyle.Render("✓"), valueStyle.Render(fmt.Sprint(p.Count)), labelStyle.Render(label))
	for _, name := range p.Skipped {
		fmt.Fprintf(&b, "\n  %s %s", warningStyle.Render("skipped"), dimStyle.Render(name))
	}
	return b.String()
}

// renderIndexSummary renders the result of a successful run.
func renderIndexSummary(res *indexer.Result) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Index built"))
	b.WriteString("\n")

	row := func(label, value string) {
		fmt.Fprintf(&b, "  %s %s\n", labelStyle.Render(fmt.Sprintf("%-11s", label)), valueStyle.Render(value))
	}
	row("documents", fmt.Sprint(res.Documents))
	row("chunks", fmt.Sprint(res.Chunks))
	if m := res.Manifest; m != nil {
		row("build id", m.BuildID)
		row("model", m.EmbeddingModel)
		row("dimension", fmt.Sprint(m.Dimension))
	}
	row("duration", res.Duration.Round(time.Millisecond).String())
	if len(res.Skipped) > 0 {
		fmt.Fprintf(&b, "  %s %s\n", warningStyle.Render("skipped"), strings.Join(res.Skipped, ", "))
	}
	return b.String()
}

// renderAnswer renders the answer and, when asked, the chunks it was grounded on.
func renderAnswer(answer *rag.Answer, withSources bool) string {
	var b strings.Builder
	b.WriteString(answerStyle.Render(answer.Text))
	b.WriteString("\n")

	if !withSources {
		return b.String()
	}

	b.WriteString(titleStyle.Render("Sources"))
	b.WriteString("\n")
	for i, src := range answer.Sources {
		fmt.Fprintf(&b, "  %s %s %s\n    %s\n",
			valueStyle.Render(fmt.Sprintf("%d.", i+1)),
			labelStyle.Render(src.ID),
			dimStyle.Render(fmt.Sprintf("(%.3f)", src.Score)),
			preview(src.Text, sourcePreviewLen),
		)
	}
	return b.String()
}

// preview flattens text to one line and truncates it to n runes.
func preview(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	return string([]rune(text)[:n]) + "…"
}
