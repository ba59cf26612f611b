package services

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/GOGOSCHNO/assistantai1/internal/clients/openai"
)

var (
	markdownImageRe  = regexp.MustCompile(`!\[[^\]]*\]\((https?://[^\s)]+)\)`)
	citationRe       = regexp.MustCompile(`【\d+:\d+†[^】]+】`)
	boldRe           = regexp.MustCompile(`\*\*(.*?)\*\*`)
	italicRe         = regexp.MustCompile(`\*(.*?)\*`)
	strikeRe         = regexp.MustCompile(`~~(.*?)~~`)
	linkRe           = regexp.MustCompile(`\[(.*?)\]\((.*?)\)`)
	quoteRe          = regexp.MustCompile(`(?m)^>\s?(.*)$`)
	numberedListRe   = regexp.MustCompile(`(?m)^\d+\.\s`)
	whatsappBoldMark = "\x00wab\x00"
)

// ParseAssistantOutput extracts the final reply from a thread's message list:
// the latest assistant message's text, cleaned up for WhatsApp, plus every
// image URL found in markdown or returned by side-effect messages.
func ParseAssistantOutput(messages []openai.ThreadMessage) *TurnOutput {
	out := &TurnOutput{}

	var latest *openai.ThreadMessage
	for i := range messages {
		if messages[i].Role == "assistant" {
			latest = &messages[i]
			break
		}
	}
	if latest == nil {
		return out
	}

	parts := make([]string, 0, len(latest.Content))
	for _, c := range latest.Content {
		if c.Type == "text" && c.Text != nil {
			parts = append(parts, c.Text.Value)
		}
	}
	text := strings.Join(parts, " ")

	for _, m := range markdownImageRe.FindAllStringSubmatch(text, -1) {
		out.ImageURLs = append(out.ImageURLs, m[1])
	}
	text = markdownImageRe.ReplaceAllString(text, "")
	text = citationRe.ReplaceAllString(text, "")
	out.Text = convertMarkdownToWhatsApp(text)

	out.ImageURLs = append(out.ImageURLs, toolImageURLs(messages)...)
	return out
}

// convertMarkdownToWhatsApp rewrites OpenAI-flavored markdown into the subset
// WhatsApp renders: *bold*, _italic_, ~strikethrough~, plain links, dashed
// lists, no block quotes.
func convertMarkdownToWhatsApp(text string) string {
	// Bold first, through a placeholder so the italic pass cannot re-match
	// the single asterisks it produces.
	text = boldRe.ReplaceAllString(text, whatsappBoldMark+"$1"+whatsappBoldMark)
	text = italicRe.ReplaceAllString(text, "_${1}_")
	text = strings.ReplaceAll(text, whatsappBoldMark, "*")
	text = strikeRe.ReplaceAllString(text, "~$1~")
	text = markdownImageRe.ReplaceAllString(text, "")
	text = linkRe.ReplaceAllString(text, "$1 : $2")
	text = quoteRe.ReplaceAllString(text, "$1")
	text = numberedListRe.ReplaceAllString(text, "- ")
	return strings.TrimSpace(text)
}

// toolImageURLs collects image URLs from side-effect result messages, the
// way get_image_url reports them.
func toolImageURLs(messages []openai.ThreadMessage) []string {
	var urls []string
	for _, m := range messages {
		if m.Role != "tool" || len(m.Content) == 0 {
			continue
		}
		c := m.Content[0]
		if c.Type != "text" || c.Text == nil {
			continue
		}
		var payload struct {
			ImageURL string `json:"imageUrl"`
		}
		if err := json.Unmarshal([]byte(c.Text.Value), &payload); err != nil {
			continue
		}
		if strings.TrimSpace(payload.ImageURL) != "" {
			urls = append(urls, payload.ImageURL)
		}
	}
	return urls
}
