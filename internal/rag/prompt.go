package rag

import (
	"strings"
	"text/template"
)

// FallbackAnswer is what the model is told to reply when the retrieved
// context does not contain the answer.
const FallbackAnswer = "物語の中では言及されていないようです。"

// PromptTemplate is the fixed instruction sent with every question.
// It is executed with promptData.
const PromptTemplate = `
あなたは漫画『Bella』シリーズに関する、知識豊富な解説者です。
提供された「関連情報」だけを使って、ユーザーの「質問」に日本語で詳しく回答してください。
もし関連情報に答えがない場合は、「` + FallbackAnswer + `」と回答してください。

# 関連情報:
{{.Context}}

# 質問:
{{.Question}}

# 回答:
`

// ContextSeparator joins retrieved chunk texts.
const ContextSeparator = "\n\n"

var promptTmpl = template.Must(template.New("prompt").Parse(PromptTemplate))

type promptData struct {
	Context  string
	Question string
}

// BuildPrompt fills the template with the joined context and the question.
func BuildPrompt(contextTexts []string, question string) (string, error) {
	var b strings.Builder
	err := promptTmpl.Execute(&b, promptData{
		Context:  strings.Join(contextTexts, ContextSeparator),
		Question: question,
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}
