package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptTemplate(t *testing.T) {
	assert.Contains(t, PromptTemplate, "漫画『Bella』")
	assert.Contains(t, PromptTemplate, "日本語で")
	assert.Contains(t, PromptTemplate, "「"+FallbackAnswer+"」")
}

func TestBuildPrompt(t *testing.T) {
	prompt, err := BuildPrompt([]string{"one", "two"}, "what?")
	require.NoError(t, err)

	ctxAt := strings.Index(prompt, "# 関連情報:\none\n\ntwo\n")
	qAt := strings.Index(prompt, "# 質問:\nwhat?\n")
	aAt := strings.Index(prompt, "# 回答:")
	require.NotEqual(t, -1, ctxAt)
	require.NotEqual(t, -1, qAt)
	assert.Less(t, ctxAt, qAt)
	assert.Less(t, qAt, aAt)
}

func TestBuildPrompt_QuestionIsNotExpanded(t *testing.T) {
	prompt, err := BuildPrompt(nil, "{{.Context}} <b>&</b>")
	require.NoError(t, err)
	assert.Contains(t, prompt, "# 質問:\n{{.Context}} <b>&</b>\n")
}
