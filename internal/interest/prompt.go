package interest

import (
	"fmt"
	"sort"
	"strings"
)

const extractionSystemPrompt = `你是一个兴趣提取引擎。请分析用户的这句话，找出其中透露的兴趣爱好。

输出要求：
- 只输出一个 JSON 数组，不要输出任何其他文字、解释或 markdown。
- 数组中每个元素形如 {"category": "分类", "name": "具体兴趣", "level": 级别}。
- level 为整数：1=一般喜欢，2=比较喜欢，3=非常喜欢。
- 如果这句话中没有体现任何兴趣爱好，输出 []。`

// buildExtractionPrompt embeds the raw user message inside the fixed
// extraction instructions.
func buildExtractionPrompt(message string) string {
	return fmt.Sprintf("%s\n\n用户的话：%s", extractionSystemPrompt, message)
}

const (
	summaryPreamble  = "已了解到用户的兴趣爱好如下（级别：1=一般喜欢，2=比较喜欢，3=非常喜欢）：\n"
	summaryPostamble = "\n请在回复中自然地结合这些兴趣，不要生硬罗列；在合适的时候可以继续了解用户的其他爱好。"
)

// SummaryPrompt renders the current interest set as a prompt fragment for
// injection into the companion's system prompt. Returns "" when no interests
// are known; callers omit the fragment entirely in that case. Interests are
// listed by level descending; insertion order is preserved among equal
// levels. Never mutates stored state.
func (b *Book) SummaryPrompt() string {
	items := b.Interests()
	if len(items) == 0 {
		return ""
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Level > items[j].Level
	})

	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = fmt.Sprintf("- %s/%s (级别:%d)", it.Category, it.Name, it.Level)
	}

	return summaryPreamble + strings.Join(lines, "\n") + summaryPostamble
}
